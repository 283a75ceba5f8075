// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// headerLength is the fixed size of a frame header: a 4-byte
// big-endian unsigned payload length.
const headerLength = 4

// MaxPayloadLength is the maximum allowed payload size. A declared
// length above this is treated as stream corruption, not as a large
// message: supervisory events are small, and a huge length almost
// always means the reader lost frame alignment.
const MaxPayloadLength = 10 * 1024 * 1024

// DecodeError reports a payload that arrived inside a well-formed
// frame but could not be parsed as JSON. The frame was fully consumed,
// so the connection is still aligned and the caller may keep reading.
type DecodeError struct {
	// Length is the declared payload length of the bad frame.
	Length uint32

	// Err is the underlying JSON error.
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding %d-byte event payload: %v", e.Length, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// EncodeEvent serializes an event into a single framed message:
// header plus JSON payload in one buffer, so a caller can issue it as
// one write.
func EncodeEvent(event Event) ([]byte, error) {
	frame, err := encodeFrame(event)
	if err != nil {
		return nil, fmt.Errorf("marshaling event %s: %w", event.Type, err)
	}
	return frame, nil
}

func encodeFrame(message any) ([]byte, error) {
	payload, err := json.Marshal(message)
	if err != nil {
		return nil, err
	}
	frame := make([]byte, headerLength+len(payload))
	binary.BigEndian.PutUint32(frame[:headerLength], uint32(len(payload)))
	copy(frame[headerLength:], payload)
	return frame, nil
}

// WriteEvent frames and writes an event to w as one write call.
// Callers that share w across goroutines must serialize WriteEvent
// calls themselves; the single write keeps frames from interleaving
// once they do.
func WriteEvent(w io.Writer, event Event) error {
	frame, err := EncodeEvent(event)
	if err != nil {
		return err
	}
	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("writing event frame: %w", err)
	}
	return nil
}

// ReadEvent reads exactly one framed event from r. It blocks until the
// whole frame has arrived — partial frames are never surfaced.
//
// Error classes, distinguishable by the caller:
//
//   - header read failure (including EOF): connection-fatal, returned
//     as-is;
//   - declared length above MaxPayloadLength: connection-fatal, the
//     stream can no longer be trusted to be frame-aligned;
//   - payload read failure: connection-fatal;
//   - malformed JSON inside a complete frame: returned as a
//     *DecodeError; the connection remains aligned and usable.
func ReadEvent(r io.Reader) (Event, error) {
	var header [headerLength]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Event{}, fmt.Errorf("reading frame header: %w", err)
	}

	payloadLength := binary.BigEndian.Uint32(header[:])
	if payloadLength > MaxPayloadLength {
		return Event{}, fmt.Errorf("declared payload length %d exceeds maximum %d: corrupt stream", payloadLength, MaxPayloadLength)
	}

	payload := make([]byte, payloadLength)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Event{}, fmt.Errorf("reading %d-byte frame payload: %w", payloadLength, err)
	}

	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return Event{}, &DecodeError{Length: payloadLength, Err: err}
	}
	return event, nil
}

// WriteMessage frames and writes an arbitrary JSON message. The
// heartbeat probe uses this for its request, which is not an Event
// envelope.
func WriteMessage(w io.Writer, message any) error {
	frame, err := encodeFrame(message)
	if err != nil {
		return fmt.Errorf("marshaling message: %w", err)
	}
	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("writing message frame: %w", err)
	}
	return nil
}

// ReadMessage reads one frame from r and decodes it into message. The
// error classes match ReadEvent: header failures and oversized lengths
// are connection-fatal, malformed JSON inside a complete frame is a
// *DecodeError.
func ReadMessage(r io.Reader, message any) error {
	var header [headerLength]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return fmt.Errorf("reading frame header: %w", err)
	}

	payloadLength := binary.BigEndian.Uint32(header[:])
	if payloadLength > MaxPayloadLength {
		return fmt.Errorf("declared payload length %d exceeds maximum %d: corrupt stream", payloadLength, MaxPayloadLength)
	}

	payload := make([]byte, payloadLength)
	if _, err := io.ReadFull(r, payload); err != nil {
		return fmt.Errorf("reading %d-byte frame payload: %w", payloadLength, err)
	}

	if err := json.Unmarshal(payload, message); err != nil {
		return &DecodeError{Length: payloadLength, Err: err}
	}
	return nil
}
