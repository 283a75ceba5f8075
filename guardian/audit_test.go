// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package guardian

import (
	"path/filepath"
	"testing"

	"github.com/warden-foundation/warden/lib/proc"
	"github.com/warden-foundation/warden/lib/registry"
)

func TestAuditCorrectsOrphans(t *testing.T) {
	registryPath := filepath.Join(t.TempDir(), "profiles.json")
	err := registry.Update(registryPath, func(r *registry.Registry) {
		r.Profiles = []registry.Entry{
			{ProfileID: "live", Status: registry.StatusOpen, PID: 100},
			{ProfileID: "dead", Status: registry.StatusOpen, PID: 200},
			{ProfileID: "foreign", Status: registry.StatusOpen, PID: 300},
			{ProfileID: "done", Status: registry.StatusClosed, PID: 0},
		}
	})
	if err != nil {
		t.Fatal(err)
	}

	inspector := proc.NewFake()
	inspector.Add(proc.FakeProcess{PID: 100, Executable: "/opt/warden/bin/worker"})
	inspector.Add(proc.FakeProcess{PID: 300, Executable: "/usr/lib/firefox/firefox"})

	report, err := Audit(registryPath, "/opt/warden/bin", inspector, discardLogger())
	if err != nil {
		t.Fatalf("Audit: %v", err)
	}

	if report.TotalProfiles != 4 || report.OpenProfiles != 3 {
		t.Errorf("report = %+v, want total=4 open=3", report)
	}
	if report.CorrectedCount != 2 {
		t.Errorf("corrected = %d, want 2", report.CorrectedCount)
	}
	wantOrphans := map[string]bool{"dead": true, "foreign": true}
	for _, id := range report.OrphanedProfiles {
		if !wantOrphans[id] {
			t.Errorf("unexpected orphan %q", id)
		}
		delete(wantOrphans, id)
	}
	for id := range wantOrphans {
		t.Errorf("orphan %q not reported", id)
	}

	r, err := registry.Read(registryPath)
	if err != nil {
		t.Fatal(err)
	}
	if entry := r.Find("live"); entry.Status != registry.StatusOpen || entry.PID != 100 {
		t.Errorf("live entry = %+v, want untouched", entry)
	}
	for _, id := range []string{"dead", "foreign"} {
		if entry := r.Find(id); entry.Status != registry.StatusClosed || entry.PID != 0 {
			t.Errorf("%s entry = %+v, want closed with pid 0", id, entry)
		}
	}
}

func TestAuditEmptyRegistry(t *testing.T) {
	registryPath := filepath.Join(t.TempDir(), "profiles.json")

	report, err := Audit(registryPath, "/opt/warden/bin", proc.NewFake(), discardLogger())
	if err != nil {
		t.Fatalf("Audit: %v", err)
	}
	if report.TotalProfiles != 0 || report.CorrectedCount != 0 {
		t.Errorf("report = %+v, want empty", report)
	}
}
