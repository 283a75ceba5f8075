// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package guardian implements per-worker supervision of the core
// service: a periodic tick that runs the one-shot health probe and a
// resource check, a failure counter that crosses into recovery after
// three consecutive misses, and the recovery action itself (tree-kill
// the old process, free the well-known port, relaunch).
//
// A [Guardian] owns nothing it did not create: the event channel
// client, process inspector, clock, and logger are injected, and
// Stop() cancels only the tick loop. Event emission is best-effort —
// when the channel is disconnected events are dropped, not queued.
//
// The package also carries the two janitorial surfaces around
// supervision: [Audit], the startup reconciliation pass that closes
// registry entries whose process is gone or foreign, and the
// worker-death cleanup path with its tree-kill safety gate (a pid is
// only ever tree-killed when its executable lives under the
// installation's bin directory).
package guardian
