// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package health implements the two liveness surfaces of the
// supervisory subsystem.
//
// [Probe] is the one-shot heartbeat: a fresh short-lived connection to
// the core service, one framed PING request, one decodable JSON
// response. It is deliberately independent of the persistent event
// channel — the core service may answer heartbeats while the channel
// is stale, or hold a live channel while too wedged to answer, and the
// guardian must be able to tell those apart.
//
// [Aggregator] is the on-demand fan-out: it probes a configured set of
// local endpoints concurrently (raw TCP dial, HTTP GET, or Prometheus
// metrics scrape), each under its own timeout so one hung endpoint
// cannot stall the rest, and assembles the results into a single
// timestamped [Snapshot].
package health
