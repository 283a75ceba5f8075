// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package wire defines the supervisory wire protocol shared by every
// TCP exchange with the core service: the [Event] envelope, the known
// event type constants, and the length-prefixed JSON framing.
//
// Every message on the wire is a 4-byte big-endian unsigned payload
// length followed by that many bytes of UTF-8 JSON. [WriteEvent] and
// [ReadEvent] implement the framing; [ReadEvent] never surfaces a
// partial frame and rejects declared lengths above [MaxPayloadLength]
// as corrupt-stream errors.
//
// Event payloads travel as an open string-keyed map for forward
// compatibility. Code that switches on the event type should go
// through the typed payload views in payload.go instead of indexing
// the map directly.
//
// This package depends on no other Warden packages.
package wire
