// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package health

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/warden-foundation/warden/lib/registry"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// livePort returns a loopback port with a listener accepting on it.
func livePort(t *testing.T) int {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { listener.Close() })
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()
	return listener.Addr().(*net.TCPAddr).Port
}

// deadPort returns a loopback port with nothing listening on it.
func deadPort(t *testing.T) int {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := listener.Addr().(*net.TCPAddr).Port
	listener.Close()
	return port
}

func serverPort(t *testing.T, server *httptest.Server) int {
	t.Helper()
	_, portString, err := net.SplitHostPort(strings.TrimPrefix(server.URL, "http://"))
	if err != nil {
		t.Fatal(err)
	}
	port, err := strconv.Atoi(portString)
	if err != nil {
		t.Fatal(err)
	}
	return port
}

type fakeRegistrar struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeRegistrar) Register(id, label, path string, priority int, categories []string, description string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, id+" "+path)
}

func (f *fakeRegistrar) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestCheckMixedEndpoints(t *testing.T) {
	httpServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(httpServer.Close)

	aggregator := NewAggregator(AggregatorOptions{
		Endpoints: []Endpoint{
			{Name: "Core Bridge", Port: livePort(t), Kind: KindTCP},
			{Name: "Stopped Service", Port: deadPort(t), Kind: KindTCP},
			{Name: "API", Port: serverPort(t, httpServer), Kind: KindHTTP, Path: "/health"},
		},
		ProbeTimeout: time.Second,
		Logger:       testLogger(),
	})

	snapshot := aggregator.Check(context.Background())

	if len(snapshot.Services) != 3 {
		t.Fatalf("got %d services, want 3", len(snapshot.Services))
	}
	// Results keep endpoint order regardless of completion order.
	byName := map[string]ServiceStatus{}
	for i, status := range snapshot.Services {
		if status.Name != aggregator.options.Endpoints[i].Name {
			t.Errorf("services[%d] = %q, want %q", i, status.Name, aggregator.options.Endpoints[i].Name)
		}
		byName[status.Name] = status
	}
	if !byName["Core Bridge"].Active {
		t.Error("live TCP endpoint reported inactive")
	}
	if byName["Stopped Service"].Active {
		t.Error("dead TCP endpoint reported active")
	}
	if !byName["API"].Active {
		t.Error("healthy HTTP endpoint reported inactive")
	}
	if !snapshot.Connected {
		t.Error("snapshot not marked connected with active services")
	}
	if snapshot.Timestamp.IsZero() {
		t.Error("snapshot timestamp not set")
	}
}

func TestCheckWallTimeBoundedBySlowestProbe(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	t.Cleanup(slow.Close)

	aggregator := NewAggregator(AggregatorOptions{
		Endpoints: []Endpoint{
			{Name: "Fast A", Port: livePort(t), Kind: KindTCP},
			{Name: "Fast B", Port: livePort(t), Kind: KindTCP},
			{Name: "Hung", Port: serverPort(t, slow), Kind: KindHTTP, Path: "/"},
		},
		ProbeTimeout: 200 * time.Millisecond,
		Logger:       testLogger(),
	})

	start := time.Now()
	snapshot := aggregator.Check(context.Background())
	elapsed := time.Since(start)

	// One hung endpoint costs one timeout, not one per endpoint.
	if elapsed > time.Second {
		t.Errorf("Check took %v, want roughly one probe timeout", elapsed)
	}
	byName := map[string]bool{}
	for _, status := range snapshot.Services {
		byName[status.Name] = status.Active
	}
	if !byName["Fast A"] || !byName["Fast B"] {
		t.Error("fast endpoints reported inactive")
	}
	if byName["Hung"] {
		t.Error("hung endpoint reported active")
	}
}

func TestCheckMetricsEndpoint(t *testing.T) {
	const exposition = `# HELP requests_total Total requests.
# TYPE requests_total counter
requests_total{code="200"} 40
requests_total{code="500"} 2
# TYPE queue_depth gauge
queue_depth 7
`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		io.WriteString(w, exposition)
	}))
	t.Cleanup(server.Close)

	aggregator := NewAggregator(AggregatorOptions{
		Endpoints: []Endpoint{{
			Name:     "Exporter",
			Port:     serverPort(t, server),
			Kind:     KindMetrics,
			Path:     "/metrics",
			Counters: []string{"requests_total", "queue_depth", "absent_metric"},
		}},
		ProbeTimeout: time.Second,
		Logger:       testLogger(),
	})

	snapshot := aggregator.Check(context.Background())
	status := snapshot.Services[0]
	if !status.Active {
		t.Fatal("parseable metrics endpoint reported inactive")
	}
	if got := status.Counters["requests_total"]; got != 42 {
		t.Errorf("requests_total = %v, want 42 (summed across labels)", got)
	}
	if got := status.Counters["queue_depth"]; got != 7 {
		t.Errorf("queue_depth = %v, want 7", got)
	}
	if got := status.Counters["absent_metric"]; got != 0 {
		t.Errorf("absent_metric = %v, want 0", got)
	}
}

func TestCheckMetricsEndpointUnparseable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "{ definitely not an exposition")
	}))
	t.Cleanup(server.Close)

	aggregator := NewAggregator(AggregatorOptions{
		Endpoints:    []Endpoint{{Name: "Bad", Port: serverPort(t, server), Kind: KindMetrics, Path: "/metrics"}},
		ProbeTimeout: time.Second,
		Logger:       testLogger(),
	})

	if snapshot := aggregator.Check(context.Background()); snapshot.Services[0].Active {
		t.Error("unparseable metrics endpoint reported active")
	}
}

func TestCheckPersistsAndRegistersOnce(t *testing.T) {
	dir := t.TempDir()
	snapshotPath := filepath.Join(dir, "system_status.json")
	registryPath := filepath.Join(dir, "profiles.json")

	err := registry.Update(registryPath, func(r *registry.Registry) {
		r.Profiles = append(r.Profiles,
			registry.Entry{ProfileID: "a", Status: registry.StatusOpen, PID: 100},
			registry.Entry{ProfileID: "b", Status: registry.StatusClosed})
	})
	if err != nil {
		t.Fatal(err)
	}

	registrar := &fakeRegistrar{}
	aggregator := NewAggregator(AggregatorOptions{
		Endpoints:    []Endpoint{{Name: "Core Bridge", Port: livePort(t), Kind: KindTCP}},
		ProbeTimeout: time.Second,
		RegistryPath: registryPath,
		SnapshotPath: snapshotPath,
		Registrar:    registrar,
		Logger:       testLogger(),
	})

	snapshot := aggregator.Check(context.Background())
	if snapshot.ProfilesRegistered != 2 {
		t.Errorf("ProfilesRegistered = %d, want 2", snapshot.ProfilesRegistered)
	}

	data, err := os.ReadFile(snapshotPath)
	if err != nil {
		t.Fatalf("reading persisted snapshot: %v", err)
	}
	var persisted Snapshot
	if err := json.Unmarshal(data, &persisted); err != nil {
		t.Fatalf("parsing persisted snapshot: %v", err)
	}
	if !persisted.Connected || len(persisted.Services) != 1 {
		t.Errorf("persisted snapshot = %+v, want connected with one service", persisted)
	}

	// The stream is registered once, not once per run.
	aggregator.Check(context.Background())
	if got := registrar.callCount(); got != 1 {
		t.Errorf("registrar called %d times, want 1", got)
	}
}
