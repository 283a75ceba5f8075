// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package statefile persists the supervisor's runtime checkpoint: the
// timestamp of the last event received on the event channel, the last
// outbound sequence, and the last known core service pid. A restarted
// supervisor reads the checkpoint to request redelivery of events it
// missed (POLL_EVENTS since the recorded timestamp) and to resume
// watching the right process.
//
// The checkpoint is CBOR-encoded — it is machine-local state with no
// read surface for other tools, so the compact binary encoding is
// preferred over JSON. Writes are atomic (temporary file, fsync,
// rename); [Read] treats a missing or undecodable file as "no
// checkpoint" rather than an error, since the worst case is polling
// from zero.
package statefile
