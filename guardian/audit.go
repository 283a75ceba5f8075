// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package guardian

import (
	"log/slog"

	"github.com/warden-foundation/warden/lib/proc"
	"github.com/warden-foundation/warden/lib/registry"
)

// AuditReport summarizes one startup reconciliation pass over the
// worker registry.
type AuditReport struct {
	TotalProfiles    int      `json:"total_profiles"`
	OpenProfiles     int      `json:"open_profiles"`
	OrphanedProfiles []string `json:"orphaned_profiles"`
	CorrectedCount   int      `json:"corrected_count"`
}

// Audit reconciles the worker registry against the live process table.
// An entry marked open whose pid is dead, unset, or running an
// executable outside binDir is an orphan: its registry entry is
// corrected to closed with the pid cleared. The registry is the source
// of truth for sessions, the process table for liveness; on
// disagreement the process table wins.
func Audit(registryPath, binDir string, inspector proc.Inspector, logger *slog.Logger) (AuditReport, error) {
	report := AuditReport{OrphanedProfiles: []string{}}

	err := registry.Update(registryPath, func(r *registry.Registry) {
		report.TotalProfiles = len(r.Profiles)
		for i := range r.Profiles {
			entry := &r.Profiles[i]
			if entry.Status != registry.StatusOpen {
				continue
			}
			report.OpenProfiles++

			if validWorker(entry.PID, binDir, inspector) {
				continue
			}

			logger.Warn("orphaned registry entry",
				"profile", entry.ProfileID, "pid", entry.PID)
			report.OrphanedProfiles = append(report.OrphanedProfiles, entry.ProfileID)
			report.CorrectedCount++
			entry.Status = registry.StatusClosed
			entry.PID = 0
		}
	})
	if err != nil {
		return report, err
	}

	logger.Info("startup audit complete",
		"total", report.TotalProfiles,
		"open", report.OpenProfiles,
		"corrected", report.CorrectedCount)
	return report, nil
}

// validWorker reports whether pid is a live process running out of the
// installation bin directory.
func validWorker(pid int, binDir string, inspector proc.Inspector) bool {
	if pid <= 0 || !inspector.Alive(pid) {
		return false
	}
	path, err := inspector.ExecutablePath(pid)
	if err != nil {
		return false
	}
	return underDirectory(path, binDir)
}
