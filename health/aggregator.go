// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package health

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/warden-foundation/warden/lib/clock"
	"github.com/warden-foundation/warden/lib/registry"
)

// Endpoint kinds understood by the aggregator.
const (
	// KindTCP probes liveness with a raw dial.
	KindTCP = "tcp"

	// KindHTTP probes with a GET against Path; 2xx or 302 is active.
	KindHTTP = "http"

	// KindMetrics fetches a Prometheus text exposition from Path; a
	// parseable payload is active and listed counters are attached.
	KindMetrics = "metrics"
)

// Endpoint is one aggregator probe target on the local host.
type Endpoint struct {
	// Name labels the endpoint in snapshots ("Core Bridge").
	Name string

	// Port is the local port to probe.
	Port int

	// Kind is one of KindTCP, KindHTTP, KindMetrics.
	Kind string

	// Path is the request path for http and metrics kinds.
	Path string

	// Counters lists metric family names to capture for the metrics
	// kind.
	Counters []string
}

// ServiceStatus is one endpoint's probe result.
type ServiceStatus struct {
	Name   string `json:"name"`
	Port   int    `json:"port"`
	Active bool   `json:"active"`

	// Counters holds captured metric family sums for metrics
	// endpoints.
	Counters map[string]float64 `json:"counters,omitempty"`
}

// Snapshot is one aggregator run: every configured endpoint's status
// at a single point in time.
type Snapshot struct {
	Timestamp time.Time `json:"timestamp"`

	// Connected is true when at least one endpoint answered.
	Connected bool `json:"connected"`

	Services []ServiceStatus `json:"services"`

	// ProfilesRegistered counts entries in the worker registry,
	// regardless of status. Zero when no registry path is configured.
	ProfilesRegistered int `json:"profiles_registered"`
}

// StreamRegistrar registers a status file as a telemetry stream. The
// telemetry package's Registrar satisfies it.
type StreamRegistrar interface {
	Register(id, label, path string, priority int, categories []string, description string)
}

// AggregatorOptions configures an Aggregator.
type AggregatorOptions struct {
	// Endpoints are the probe targets.
	Endpoints []Endpoint

	// ProbeTimeout bounds each individual probe. Default 2s. The whole
	// Check runs in roughly one timeout, not one per endpoint.
	ProbeTimeout time.Duration

	// RegistryPath, when set, is the worker registry file counted into
	// the snapshot.
	RegistryPath string

	// SnapshotPath, when set, receives the snapshot as one-line JSON
	// after every Check.
	SnapshotPath string

	// Registrar, when set, is told about SnapshotPath after the first
	// successful persist.
	Registrar StreamRegistrar

	// Clock defaults to clock.Real().
	Clock clock.Clock

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// HTTPClient serves http and metrics probes. Defaults to a client
	// bounded by ProbeTimeout.
	HTTPClient *http.Client
}

// Aggregator probes a fixed set of local endpoints concurrently and
// assembles one Snapshot per run.
type Aggregator struct {
	options AggregatorOptions

	registerOnce sync.Once
}

// NewAggregator creates an Aggregator for the given options.
func NewAggregator(options AggregatorOptions) *Aggregator {
	if options.ProbeTimeout <= 0 {
		options.ProbeTimeout = 2 * time.Second
	}
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	if options.HTTPClient == nil {
		options.HTTPClient = &http.Client{Timeout: options.ProbeTimeout}
	}
	return &Aggregator{options: options}
}

// Check probes every endpoint concurrently, one goroutine per
// endpoint fanning into a result channel sized to the endpoint count,
// and waits for all of them. Each probe carries its own timeout, so
// the wall time is bounded by the slowest single probe. The snapshot
// is persisted and registered when configured; persistence failures
// are logged, never returned.
func (a *Aggregator) Check(ctx context.Context) Snapshot {
	type indexedStatus struct {
		index  int
		status ServiceStatus
	}

	results := make(chan indexedStatus, len(a.options.Endpoints))
	var group sync.WaitGroup
	for i, endpoint := range a.options.Endpoints {
		group.Add(1)
		go func(i int, endpoint Endpoint) {
			defer group.Done()
			results <- indexedStatus{index: i, status: a.probeEndpoint(ctx, endpoint)}
		}(i, endpoint)
	}
	group.Wait()
	close(results)

	snapshot := Snapshot{
		Timestamp: a.options.Clock.Now(),
		Services:  make([]ServiceStatus, len(a.options.Endpoints)),
	}
	for result := range results {
		snapshot.Services[result.index] = result.status
		if result.status.Active {
			snapshot.Connected = true
		}
	}

	if a.options.RegistryPath != "" {
		reg, err := registry.Read(a.options.RegistryPath)
		if err != nil {
			a.options.Logger.Warn("reading worker registry", "path", a.options.RegistryPath, "error", err)
		} else {
			snapshot.ProfilesRegistered = len(reg.Profiles)
		}
	}

	a.persist(snapshot)
	return snapshot
}

// probeEndpoint runs one probe according to the endpoint kind.
func (a *Aggregator) probeEndpoint(ctx context.Context, endpoint Endpoint) ServiceStatus {
	status := ServiceStatus{Name: endpoint.Name, Port: endpoint.Port}

	switch endpoint.Kind {
	case KindTCP:
		dialer := net.Dialer{Timeout: a.options.ProbeTimeout}
		conn, err := dialer.DialContext(ctx, "tcp", fmt.Sprintf("127.0.0.1:%d", endpoint.Port))
		if err == nil {
			status.Active = true
			conn.Close()
		}

	case KindHTTP:
		response, err := a.get(ctx, endpoint)
		if err == nil {
			// 302 covers services that redirect their health path to
			// a UI.
			status.Active = response.StatusCode/100 == 2 || response.StatusCode == http.StatusFound
			response.Body.Close()
		}

	case KindMetrics:
		families, err := a.scrapeMetrics(ctx, endpoint)
		if err != nil {
			a.options.Logger.Warn("metrics probe failed", "endpoint", endpoint.Name, "error", err)
			break
		}
		status.Active = true
		if len(endpoint.Counters) > 0 {
			status.Counters = make(map[string]float64, len(endpoint.Counters))
			for _, name := range endpoint.Counters {
				status.Counters[name] = sumFamily(families[name])
			}
		}

	default:
		a.options.Logger.Warn("unknown endpoint kind", "endpoint", endpoint.Name, "kind", endpoint.Kind)
	}

	return status
}

func (a *Aggregator) get(ctx context.Context, endpoint Endpoint) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, a.options.ProbeTimeout)
	defer cancel()

	url := fmt.Sprintf("http://127.0.0.1:%d%s", endpoint.Port, endpoint.Path)
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return a.options.HTTPClient.Do(request)
}

// persist writes the snapshot as one-line JSON and registers the file
// as a telemetry stream on the first successful write.
func (a *Aggregator) persist(snapshot Snapshot) {
	if a.options.SnapshotPath == "" {
		return
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		a.options.Logger.Warn("marshaling snapshot", "error", err)
		return
	}
	data = append(data, '\n')

	temporaryPath := a.options.SnapshotPath + ".tmp"
	if err := os.WriteFile(temporaryPath, data, 0o644); err != nil {
		a.options.Logger.Warn("writing snapshot", "path", temporaryPath, "error", err)
		return
	}
	if err := os.Rename(temporaryPath, a.options.SnapshotPath); err != nil {
		a.options.Logger.Warn("renaming snapshot into place", "path", a.options.SnapshotPath, "error", err)
		return
	}

	if a.options.Registrar != nil {
		a.registerOnce.Do(func() {
			a.options.Registrar.Register(
				"system-health",
				"System Health",
				a.options.SnapshotPath,
				1,
				[]string{"health"},
				"Aggregated endpoint health snapshot",
			)
		})
	}
}
