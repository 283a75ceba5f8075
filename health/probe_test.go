// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package health

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/warden-foundation/warden/wire"
)

// heartbeatServer accepts connections and answers each framed request
// with one framed PONG, recording the requests it saw.
type heartbeatServer struct {
	listener net.Listener
	Requests chan map[string]any
}

func newHeartbeatServer(t *testing.T, respond bool) *heartbeatServer {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	server := &heartbeatServer{listener: listener, Requests: make(chan map[string]any, 8)}
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go func(conn net.Conn) {
				defer conn.Close()
				var request map[string]any
				if err := wire.ReadMessage(conn, &request); err != nil {
					return
				}
				server.Requests <- request
				if respond {
					wire.WriteMessage(conn, map[string]any{"type": "PONG"})
				}
			}(conn)
		}
	}()
	t.Cleanup(func() { listener.Close() })
	return server
}

func (s *heartbeatServer) Address() string { return s.listener.Addr().String() }

func TestProbeSuccess(t *testing.T) {
	server := newHeartbeatServer(t, true)

	if err := Probe(context.Background(), server.Address(), "profile-7"); err != nil {
		t.Fatalf("Probe: %v", err)
	}

	request := <-server.Requests
	if request["type"] != "PING" {
		t.Errorf("request type = %v, want PING", request["type"])
	}
	if request["profile_id"] != "profile-7" {
		t.Errorf("request profile_id = %v, want profile-7", request["profile_id"])
	}
	if sequence, ok := request["sequence"].(float64); !ok || sequence <= 0 {
		t.Errorf("request sequence = %v, want positive", request["sequence"])
	}
	if timestamp, ok := request["timestamp"].(float64); !ok || timestamp <= 0 {
		t.Errorf("request timestamp = %v, want positive", request["timestamp"])
	}
}

func TestProbeSequencesIncrease(t *testing.T) {
	server := newHeartbeatServer(t, true)

	for i := 0; i < 2; i++ {
		if err := Probe(context.Background(), server.Address(), ""); err != nil {
			t.Fatalf("Probe %d: %v", i, err)
		}
	}

	first := (<-server.Requests)["sequence"].(float64)
	second := (<-server.Requests)["sequence"].(float64)
	if second <= first {
		t.Errorf("sequences %v, %v not strictly increasing", first, second)
	}
}

func TestProbeConnectionRefused(t *testing.T) {
	// Grab a port that is definitely closed.
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	address := listener.Addr().String()
	listener.Close()

	if err := Probe(context.Background(), address, ""); err == nil {
		t.Error("Probe succeeded against a closed port")
	}
}

func TestProbeNoResponse(t *testing.T) {
	server := newHeartbeatServer(t, false)

	start := time.Now()
	err := probe(context.Background(), server.Address(), "", time.Second, 100*time.Millisecond)
	if err == nil {
		t.Fatal("Probe succeeded with no response")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("probe took %v, want bounded by the read deadline", elapsed)
	}
}

func TestProbeMalformedResponse(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { listener.Close() })
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		var request map[string]any
		wire.ReadMessage(conn, &request)
		garbage := []byte("not json")
		header := []byte{0, 0, 0, byte(len(garbage))}
		conn.Write(append(header, garbage...))
	}()

	if err := Probe(context.Background(), listener.Addr().String(), ""); err == nil {
		t.Error("Probe succeeded on an undecodable response")
	}
}
