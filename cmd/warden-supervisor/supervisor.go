// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/warden-foundation/warden/channel"
	"github.com/warden-foundation/warden/guardian"
	"github.com/warden-foundation/warden/lib/config"
	"github.com/warden-foundation/warden/lib/proc"
	"github.com/warden-foundation/warden/lib/registry"
	"github.com/warden-foundation/warden/telemetry"
)

// supervisor owns the guardian fleet: one guardian per open worker
// session in the registry, started and retired as the registry
// changes and worker processes die.
type supervisor struct {
	client    *channel.Client
	inspector proc.Inspector
	registrar *telemetry.Registrar
	logger    *slog.Logger

	mu         sync.Mutex
	cfg        *config.Config
	guardians  map[string]*guardian.Guardian
	workerPIDs map[string]int
}

func newSupervisor(cfg *config.Config, client *channel.Client, inspector proc.Inspector, registrar *telemetry.Registrar, logger *slog.Logger) *supervisor {
	return &supervisor{
		client:     client,
		inspector:  inspector,
		registrar:  registrar,
		logger:     logger,
		cfg:        cfg,
		guardians:  make(map[string]*guardian.Guardian),
		workerPIDs: make(map[string]int),
	}
}

// run reconciles the fleet against the registry on the guardian tick
// cadence until ctx is cancelled.
func (s *supervisor) run(ctx context.Context) {
	s.mu.Lock()
	interval := s.cfg.Guardian.TickInterval.Std()
	s.mu.Unlock()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.reconcile()
		}
	}
}

// reconcile aligns the running guardians with the registry: a guardian
// per open entry, cleanup for workers that died, retirement for
// entries that closed.
func (s *supervisor) reconcile() {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := registry.Read(s.cfg.Paths.RegistryFile())
	if err != nil {
		s.logger.Warn("reading worker registry", "error", err)
		return
	}

	open := make(map[string]registry.Entry)
	for _, entry := range r.Profiles {
		if entry.Status == registry.StatusOpen {
			open[entry.ProfileID] = entry
		}
	}

	// Retire guardians whose worker died or whose entry closed.
	for profileID, g := range s.guardians {
		entry, stillOpen := open[profileID]
		if stillOpen && s.inspector.Alive(entry.PID) {
			continue
		}
		if stillOpen {
			// The entry says open but the process is gone: clean up
			// the session before retiring the guardian.
			s.logger.Info("worker died", "profile", profileID, "pid", entry.PID)
			g.CleanupWorker(entry.PID, "process_died")
		} else {
			s.logger.Info("worker session closed", "profile", profileID)
		}
		g.Stop()
		delete(s.guardians, profileID)
		delete(s.workerPIDs, profileID)
	}

	// Start guardians for newly opened entries.
	for profileID, entry := range open {
		if _, running := s.guardians[profileID]; running {
			continue
		}
		if !s.inspector.Alive(entry.PID) {
			// Died before we ever watched it; the next audit or
			// reconcile pass closes the entry.
			continue
		}
		s.startGuardianLocked(entry)
	}
}

func (s *supervisor) startGuardianLocked(entry registry.Entry) {
	servicePID, err := s.inspector.ListenerPID(s.cfg.Service.Port)
	if err != nil {
		servicePID = 0
	}

	options := guardian.Options{
		ProfileID:        entry.ProfileID,
		LaunchID:         entry.LaunchID,
		ServicePID:       servicePID,
		ServiceAddress:   s.cfg.Service.Address(),
		ServicePort:      s.cfg.Service.Port,
		BinDir:           s.cfg.Paths.Bin,
		ServiceBinary:    s.cfg.Service.Binary,
		RegistryPath:     s.cfg.Paths.RegistryFile(),
		LogDir:           filepath.Join(s.cfg.Paths.Logs, "profiles"),
		TickInterval:     s.cfg.Guardian.TickInterval.Std(),
		MaxFailures:      s.cfg.Guardian.MaxFailures,
		MemoryLimitBytes: s.cfg.Guardian.MemoryLimitBytes,
		Emitter:          s.client,
		Inspector:        s.inspector,
		Logger:           s.logger,
	}
	if s.registrar != nil {
		options.Registrar = s.registrar
	}
	g, err := guardian.New(options)
	if err != nil {
		s.logger.Error("starting guardian", "profile", entry.ProfileID, "error", err)
		return
	}
	g.Start()
	s.guardians[entry.ProfileID] = g
	s.workerPIDs[entry.ProfileID] = entry.PID
	s.logger.Info("guardian started",
		"profile", entry.ProfileID,
		"worker_pid", entry.PID,
		"service_pid", servicePID)
}

// applyConfig swaps in a reloaded config. Guardians carry their
// thresholds from creation, so the fleet restarts to pick them up.
func (s *supervisor) applyConfig(cfg *config.Config) {
	s.mu.Lock()
	s.cfg = cfg
	for profileID, g := range s.guardians {
		g.Stop()
		delete(s.guardians, profileID)
		delete(s.workerPIDs, profileID)
	}
	s.mu.Unlock()

	s.logger.Info("configuration applied, restarting guardians")
	s.reconcile()
}

// servicePID reports the best known core service pid: a running
// guardian's view first, the port listener as fallback.
func (s *supervisor) servicePID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, g := range s.guardians {
		if pid := g.ServicePID(); pid > 0 {
			return pid
		}
	}
	pid, err := s.inspector.ListenerPID(s.cfg.Service.Port)
	if err != nil {
		return 0
	}
	return pid
}

func (s *supervisor) stopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for profileID, g := range s.guardians {
		g.Stop()
		delete(s.guardians, profileID)
	}
}
