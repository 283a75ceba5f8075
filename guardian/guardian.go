// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package guardian

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/warden-foundation/warden/health"
	"github.com/warden-foundation/warden/lib/clock"
	"github.com/warden-foundation/warden/lib/proc"
	"github.com/warden-foundation/warden/wire"
)

// State is the guardian's position in the supervision state machine.
type State string

const (
	// StateHealthy means the last probe succeeded.
	StateHealthy State = "healthy"

	// StateDegraded means one or two consecutive probes failed.
	StateDegraded State = "degraded"

	// StateRecovering means the failure threshold was crossed and a
	// recovery is in progress.
	StateRecovering State = "recovering"
)

// Emitter sends supervisory events on the persistent channel. The
// channel package's Client satisfies it.
type Emitter interface {
	Send(event wire.Event) error
	Connected() bool
}

// Prober runs one heartbeat check against the core service.
// health.Probe is the production implementation.
type Prober func(ctx context.Context, address, profileID string) error

// Launcher starts a fresh core service process and returns its pid.
type Launcher func() (int, error)

// Options configures a Guardian.
type Options struct {
	// ProfileID is the worker session this guardian belongs to.
	ProfileID string

	// LaunchID identifies one launch of the session. Generated when
	// empty.
	LaunchID string

	// ServicePID is the last known pid of the supervised core
	// service. Zero means unknown; the resource check is skipped
	// until a recovery learns the pid.
	ServicePID int

	// ServiceAddress is the core service's host:port for probes.
	ServiceAddress string

	// ServicePort is the well-known port freed during recovery.
	ServicePort int

	// BinDir is the installation's binary directory. The tree-kill
	// safety gate refuses pids whose executable lives elsewhere.
	BinDir string

	// ServiceBinary is the core service executable name inside
	// BinDir. Used by the default launcher.
	ServiceBinary string

	// RegistryPath is the worker registry updated during cleanup.
	RegistryPath string

	// LogDir, when set, receives a per-launch guardian log under
	// <LogDir>/<profile>/.
	LogDir string

	// TickInterval is the supervision period. Default 10s.
	TickInterval time.Duration

	// MaxFailures is the consecutive probe failure threshold.
	// Default 3.
	MaxFailures int

	// MemoryLimitBytes is the supervised process memory ceiling.
	// Default 500 MiB.
	MemoryLimitBytes int64

	// Emitter carries supervisory events. Nil means never emit.
	Emitter Emitter

	// Inspector provides process introspection and termination.
	Inspector proc.Inspector

	// Probe defaults to health.Probe.
	Probe Prober

	// Launch defaults to starting BinDir/ServiceBinary with
	// "service start --port <ServicePort>".
	Launch Launcher

	// Registrar, when set, registers the per-launch log file as a
	// telemetry stream.
	Registrar health.StreamRegistrar

	// Clock defaults to clock.Real().
	Clock clock.Clock

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Guardian supervises one worker session's core service.
type Guardian struct {
	options Options

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	log     *slog.Logger
	fileLog *slog.Logger
	launch  *launchLog

	// mu serializes ticks and cleanup so recovery never runs
	// concurrently with itself.
	mu         sync.Mutex
	state      State
	failures   int
	servicePID int
}

// New creates a Guardian. Call Start to begin the tick loop, or drive
// Tick directly.
func New(options Options) (*Guardian, error) {
	if options.LaunchID == "" {
		options.LaunchID = uuid.NewString()
	}
	if options.TickInterval <= 0 {
		options.TickInterval = 10 * time.Second
	}
	if options.MaxFailures <= 0 {
		options.MaxFailures = 3
	}
	if options.MemoryLimitBytes <= 0 {
		options.MemoryLimitBytes = 500 * 1024 * 1024
	}
	if options.Probe == nil {
		options.Probe = health.Probe
	}
	if options.Launch == nil {
		options.Launch = defaultLauncher(options.BinDir, options.ServiceBinary, options.ServicePort)
	}
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	g := &Guardian{
		options:    options,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		state:      StateHealthy,
		servicePID: options.ServicePID,
	}
	g.log = options.Logger.With("profile", options.ProfileID, "launch", options.LaunchID)

	if options.LogDir != "" {
		launch, err := openLaunchLog(options.LogDir, options.ProfileID, options.LaunchID)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("opening guardian log: %w", err)
		}
		g.launch = launch
		g.fileLog = slog.New(slog.NewTextHandler(launch, nil))

		if options.Registrar != nil {
			options.Registrar.Register(
				"guardian-"+options.ProfileID,
				"Guardian "+options.ProfileID,
				launch.Path(),
				2,
				[]string{"guardian", "logs"},
				"Per-launch guardian supervision log",
			)
		}
	}

	g.info("guardian active", "service_pid", g.servicePID)
	return g, nil
}

// defaultLauncher starts the core service detached: the child is never
// joined beyond reaping, and its pid is the only thing kept.
func defaultLauncher(binDir, binary string, port int) Launcher {
	return func() (int, error) {
		cmd := exec.Command(filepath.Join(binDir, binary), "service", "start", "--port", strconv.Itoa(port))
		if err := cmd.Start(); err != nil {
			return 0, err
		}
		pid := cmd.Process.Pid
		go cmd.Wait()
		return pid, nil
	}
}

// Start runs the supervision loop until Stop. One Tick per interval.
func (g *Guardian) Start() {
	go func() {
		defer close(g.done)
		ticker := g.options.Clock.NewTicker(g.options.TickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-g.ctx.Done():
				g.info("guardian loop stopped")
				if g.launch != nil {
					g.launch.Close()
				}
				return
			case <-ticker.C:
				g.Tick(g.ctx)
			}
		}
	}()
}

// Stop cancels the tick loop. Injected resources (emitter, inspector)
// are left untouched; they belong to the caller.
func (g *Guardian) Stop() {
	g.cancel()
	<-g.done
}

// State returns the current supervision state.
func (g *Guardian) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Failures returns the consecutive probe failure count.
func (g *Guardian) Failures() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.failures
}

// ServicePID returns the last known core service pid.
func (g *Guardian) ServicePID() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.servicePID
}

// Tick runs one supervision cycle: heartbeat probe, then resource
// check. Crossing the failure threshold triggers recovery exactly
// once; the counter restarts from zero afterwards, so the next
// recovery needs a fresh run of consecutive failures.
func (g *Guardian) Tick(ctx context.Context) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.options.Probe(ctx, g.options.ServiceAddress, g.options.ProfileID); err != nil {
		g.failures++
		g.state = StateDegraded
		g.warn("heartbeat failed", "failures", g.failures, "max", g.options.MaxFailures, "error", err)
		g.emit(wire.EventTypeHeartbeatFailed, wire.HeartbeatFailedPayload{
			Failures: g.failures,
			Max:      g.options.MaxFailures,
		}.Map())

		if g.failures >= g.options.MaxFailures {
			g.emit(wire.EventTypeExtensionError, map[string]any{
				"reason":               "heartbeat_timeout",
				"consecutive_failures": g.failures,
			})
			g.recoverLocked()
		}
	} else {
		if g.failures > 0 {
			g.info("heartbeat recovered", "after_failures", g.failures)
			g.emit(wire.EventTypeHeartbeatRecovered, nil)
		}
		g.failures = 0
		g.state = StateHealthy
	}

	if reason := g.resourceAnomalyLocked(); reason != "" {
		g.warn("resource anomaly", "reason", reason, "service_pid", g.servicePID)
		g.emit(wire.EventTypeResourceAnomaly, map[string]any{"reason": reason})
		g.recoverLocked()
	}
}

// resourceAnomalyLocked inspects the supervised process and returns a
// non-empty reason when it is gone or over the memory ceiling. An
// unknown pid is not an anomaly; there is nothing to inspect yet.
func (g *Guardian) resourceAnomalyLocked() string {
	if g.servicePID <= 0 || g.options.Inspector == nil {
		return ""
	}
	memory, err := g.options.Inspector.MemoryBytes(g.servicePID)
	if err != nil {
		return "process_not_found"
	}
	if memory > g.options.MemoryLimitBytes {
		return "memory_threshold_exceeded"
	}
	return ""
}

// recoverLocked replaces the core service: tree-kill the old pid,
// free the well-known port, relaunch. The failure counter resets
// whether or not the relaunch worked — a failed recovery needs a
// fresh run of consecutive failures before the next attempt.
func (g *Guardian) recoverLocked() {
	g.state = StateRecovering
	g.warn("starting service recovery", "service_pid", g.servicePID)
	g.emit(wire.EventTypeRecoveryStarted, wire.RecoveryPayload{PID: g.servicePID}.StartedMap())

	if g.options.Inspector != nil {
		if g.servicePID > 0 {
			if err := g.options.Inspector.KillTree(g.servicePID); err != nil {
				g.warn("terminating old service", "pid", g.servicePID, "error", err)
			}
		}
		if g.options.ServicePort > 0 {
			holder, err := g.options.Inspector.ListenerPID(g.options.ServicePort)
			if err != nil {
				g.warn("inspecting port holder", "port", g.options.ServicePort, "error", err)
			} else if holder > 0 && holder != g.servicePID {
				if err := g.options.Inspector.KillTree(holder); err != nil {
					g.warn("freeing service port", "port", g.options.ServicePort, "pid", holder, "error", err)
				}
			}
		}
	}

	newPID, err := g.options.Launch()
	if err != nil {
		g.error("service relaunch failed", err)
		g.emitError(wire.EventTypeRecoveryFailed, err)
		g.state = StateDegraded
	} else {
		g.servicePID = newPID
		g.info("service relaunched", "new_pid", newPID)
		g.emit(wire.EventTypeRecoveryComplete, wire.RecoveryPayload{PID: newPID}.CompleteMap())
		g.state = StateHealthy
	}

	g.failures = 0
}

// emit sends one supervisory event. Disconnected channels drop the
// event silently; send failures are logged and swallowed.
func (g *Guardian) emit(eventType string, data map[string]any) {
	g.send(wire.Event{Type: eventType, Data: data})
}

func (g *Guardian) emitError(eventType string, err error) {
	g.send(wire.Event{Type: eventType, Error: err.Error()})
}

func (g *Guardian) send(event wire.Event) {
	if g.options.Emitter == nil || !g.options.Emitter.Connected() {
		return
	}
	event.ProfileID = g.options.ProfileID
	event.LaunchID = g.options.LaunchID
	if err := g.options.Emitter.Send(event); err != nil {
		g.warn("emitting event", "type", event.Type, "error", err)
	}
}

func (g *Guardian) info(msg string, args ...any) {
	g.log.Info(msg, args...)
	if g.fileLog != nil {
		g.fileLog.Info(msg, args...)
	}
}

func (g *Guardian) warn(msg string, args ...any) {
	g.log.Warn(msg, args...)
	if g.fileLog != nil {
		g.fileLog.Warn(msg, args...)
	}
}

func (g *Guardian) error(msg string, err error) {
	g.log.Error(msg, "error", err)
	if g.fileLog != nil {
		g.fileLog.Error(msg, "error", err)
	}
}
