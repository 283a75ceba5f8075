// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package guardian

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/warden-foundation/warden/lib/clock"
	"github.com/warden-foundation/warden/lib/proc"
	"github.com/warden-foundation/warden/lib/registry"
	"github.com/warden-foundation/warden/wire"
)

func cleanupGuardian(t *testing.T, emitter *fakeEmitter, inspector *proc.FakeInspector, registryPath string) *Guardian {
	t.Helper()
	guardian, err := New(Options{
		ProfileID:    "profile-1",
		LaunchID:     "launch-1",
		BinDir:       "/opt/warden/bin",
		RegistryPath: registryPath,
		Emitter:      emitter,
		Inspector:    inspector,
		Probe:        (&scriptedProber{healthy: true}).probe,
		Launch:       func() (int, error) { return 1, nil },
		Clock:        clock.Fake(time.Now()),
		Logger:       discardLogger(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return guardian
}

func seedRegistry(t *testing.T, path string) {
	t.Helper()
	err := registry.Update(path, func(r *registry.Registry) {
		r.Profiles = append(r.Profiles, registry.Entry{
			ProfileID: "profile-1",
			Status:    registry.StatusOpen,
			PID:       900,
			LaunchID:  "launch-1",
		})
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestCleanupWorkerKillsAndCloses(t *testing.T) {
	registryPath := filepath.Join(t.TempDir(), "profiles.json")
	seedRegistry(t, registryPath)

	inspector := proc.NewFake()
	inspector.Add(proc.FakeProcess{PID: 900, Executable: "/opt/warden/bin/worker"})
	inspector.Add(proc.FakeProcess{PID: 901, ParentPID: 900, Executable: "/opt/warden/bin/worker"})
	emitter := &fakeEmitter{connected: true}
	guardian := cleanupGuardian(t, emitter, inspector, registryPath)

	guardian.CleanupWorker(900, "process_died")

	if len(inspector.Killed) != 1 || inspector.Killed[0] != 900 {
		t.Errorf("killed pids = %v, want [900]", inspector.Killed)
	}
	if inspector.Alive(901) {
		t.Error("child process survived the tree-kill")
	}

	r, err := registry.Read(registryPath)
	if err != nil {
		t.Fatal(err)
	}
	entry := r.Find("profile-1")
	if entry == nil || entry.Status != registry.StatusClosed || entry.PID != 0 {
		t.Errorf("registry entry = %+v, want closed with pid 0", entry)
	}

	types := emitter.types()
	if len(types) != 1 || types[0] != wire.EventTypeProfileDisconnected {
		t.Fatalf("emitted %v, want one PROFILE_DISCONNECTED", types)
	}
	event := emitter.event(0)
	if pid, _ := event.Data["worker_pid"].(int); pid != 900 {
		t.Errorf("worker_pid = %v, want 900", event.Data["worker_pid"])
	}
	if event.Data["reason"] != "process_died" {
		t.Errorf("reason = %v, want process_died", event.Data["reason"])
	}
}

func TestCleanupRefusesForeignExecutable(t *testing.T) {
	registryPath := filepath.Join(t.TempDir(), "profiles.json")
	seedRegistry(t, registryPath)

	inspector := proc.NewFake()
	inspector.Add(proc.FakeProcess{PID: 900, Executable: "/usr/bin/bash"})
	emitter := &fakeEmitter{connected: true}
	guardian := cleanupGuardian(t, emitter, inspector, registryPath)

	guardian.CleanupWorker(900, "process_died")

	if len(inspector.Killed) != 0 {
		t.Errorf("killed pids = %v, want none for a foreign executable", inspector.Killed)
	}
	// The registry and announcement still happen; only the kill is
	// refused.
	r, err := registry.Read(registryPath)
	if err != nil {
		t.Fatal(err)
	}
	if entry := r.Find("profile-1"); entry == nil || entry.Status != registry.StatusClosed {
		t.Errorf("registry entry = %+v, want closed", entry)
	}
	if types := emitter.types(); len(types) != 1 || types[0] != wire.EventTypeProfileDisconnected {
		t.Errorf("emitted %v, want one PROFILE_DISCONNECTED", types)
	}
}

func TestCleanupRefusesUnknownPid(t *testing.T) {
	registryPath := filepath.Join(t.TempDir(), "profiles.json")
	seedRegistry(t, registryPath)

	inspector := proc.NewFake()
	emitter := &fakeEmitter{connected: true}
	guardian := cleanupGuardian(t, emitter, inspector, registryPath)

	guardian.CleanupWorker(900, "process_died")

	if len(inspector.Killed) != 0 {
		t.Errorf("killed pids = %v, want none for an unknown pid", inspector.Killed)
	}
}

func TestUnderDirectory(t *testing.T) {
	tests := []struct {
		path string
		dir  string
		want bool
	}{
		{"/opt/warden/bin/worker", "/opt/warden/bin", true},
		{"/opt/warden/bin/sub/worker", "/opt/warden/bin", true},
		{"/opt/warden/bin", "/opt/warden/bin", true},
		{"/opt/warden/binary/worker", "/opt/warden/bin", false},
		{"/usr/bin/bash", "/opt/warden/bin", false},
		{"/opt/warden/bin/../../../usr/bin/bash", "/opt/warden/bin", false},
		{"/opt/warden/bin/worker", "", false},
	}
	for _, test := range tests {
		if got := underDirectory(test.path, test.dir); got != test.want {
			t.Errorf("underDirectory(%q, %q) = %v, want %v", test.path, test.dir, got, test.want)
		}
	}
}
