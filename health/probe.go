// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package health

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/warden-foundation/warden/wire"
)

const (
	probeDialTimeout = 2 * time.Second
	probeReadTimeout = 2 * time.Second
)

// probeSequence numbers heartbeat requests across the whole process so
// responses seen in a packet capture can be matched to requests.
var probeSequence atomic.Uint64

// Probe performs one heartbeat check against the core service: dial,
// write a framed PING request, read one framed response, close. Any
// decodable JSON object counts as alive; the response content is not
// inspected. A nil return means the service answered.
//
// Cancellation covers the dial; once connected, the read deadline
// bounds the rest.
func Probe(ctx context.Context, address, profileID string) error {
	return probe(ctx, address, profileID, probeDialTimeout, probeReadTimeout)
}

func probe(ctx context.Context, address, profileID string, dialTimeout, readTimeout time.Duration) error {
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", address, err)
	}
	defer conn.Close()

	request := wire.HeartbeatRequest{
		Type:      wire.EventTypePing,
		Sequence:  probeSequence.Add(1),
		Timestamp: time.Now().UnixNano(),
		ProfileID: profileID,
	}
	if err := wire.WriteMessage(conn, request); err != nil {
		return fmt.Errorf("writing heartbeat request: %w", err)
	}

	if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
		return fmt.Errorf("setting read deadline: %w", err)
	}
	var response map[string]any
	if err := wire.ReadMessage(conn, &response); err != nil {
		return fmt.Errorf("reading heartbeat response: %w", err)
	}
	return nil
}
