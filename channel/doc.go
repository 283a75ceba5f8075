// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package channel implements the persistent event channel to the core
// service: a long-lived TCP connection carrying framed [wire.Event]
// messages in both directions.
//
// The [Client] owns three concerns beyond plain send/receive:
//
//   - Registration: every successful dial is followed by one REGISTER
//     event announcing version, hostname, pid, and capabilities, so
//     the core service can associate the connection with this
//     supervisor.
//
//   - Reconnection: any read or write failure marks the client
//     disconnected and schedules a reconnect starting at the
//     configured minimum delay, doubling per failed attempt up to the
//     ceiling. A successful reconnect resets the backoff, restarts
//     the receive loop, and re-registers.
//
//   - Keepalive: a PING is sent on a fixed interval while connected;
//     a failed keepalive send is treated exactly like a read failure.
//
// Inbound events land on a bounded queue read via Events(). When the
// queue is full the newest event is dropped with a logged warning —
// backpressure never blocks the network reader. Outbound frames on
// one connection are delivered in send-call order; no ordering
// guarantee survives a reconnect, and an in-flight frame may be lost.
//
// Events sent while disconnected return [ErrNotConnected]; callers
// that treat emission as best-effort (the guardian) drop them.
package channel
