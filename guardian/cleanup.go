// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package guardian

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/warden-foundation/warden/lib/registry"
	"github.com/warden-foundation/warden/wire"
)

// CleanupWorker handles a worker process death: tree-kill whatever the
// worker left behind, close its registry entry, and announce the
// disconnect. The tree-kill only runs when the pid passes the safety
// gate; a refusal is logged and the rest of the cleanup proceeds, since
// a foreign pid usually means the worker is already gone and the pid
// was recycled.
func (g *Guardian) CleanupWorker(workerPID int, reason string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.info("cleaning up dead worker", "worker_pid", workerPID, "reason", reason)

	if err := g.killTreeGated(workerPID); err != nil {
		g.warn("worker tree-kill skipped", "worker_pid", workerPID, "error", err)
	}

	if g.options.RegistryPath != "" {
		err := registry.Update(g.options.RegistryPath, func(r *registry.Registry) {
			if entry := r.Find(g.options.ProfileID); entry != nil {
				entry.Status = registry.StatusClosed
				entry.PID = 0
			}
		})
		if err != nil {
			g.warn("updating registry", "error", err)
		}
	}

	g.emit(wire.EventTypeProfileDisconnected, wire.DisconnectedPayload{
		WorkerPID: workerPID,
		Reason:    reason,
	}.Map())
}

// killTreeGated tree-kills pid only when its executable lives under
// the installation bin directory. Refusing on any doubt is the point:
// a recycled pid could belong to anything on the host.
func (g *Guardian) killTreeGated(pid int) error {
	if g.options.Inspector == nil {
		return fmt.Errorf("no process inspector configured")
	}
	path, err := g.options.Inspector.ExecutablePath(pid)
	if err != nil {
		return fmt.Errorf("resolving executable of pid %d: %w", pid, err)
	}
	if !underDirectory(path, g.options.BinDir) {
		return fmt.Errorf("pid %d executable %s outside %s, refusing tree-kill", pid, path, g.options.BinDir)
	}
	return g.options.Inspector.KillTree(pid)
}

// underDirectory reports whether path is dir or lives inside it.
func underDirectory(path, dir string) bool {
	if dir == "" {
		return false
	}
	path = filepath.Clean(path)
	dir = filepath.Clean(dir)
	return path == dir || strings.HasPrefix(path, dir+string(filepath.Separator))
}
