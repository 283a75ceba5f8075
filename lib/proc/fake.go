// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package proc

import "sync"

// FakeProcess is one entry in a FakeInspector's process table.
type FakeProcess struct {
	PID        int
	ParentPID  int
	Executable string
	Memory     int64
	Listening  []int
}

// FakeInspector is an in-memory Inspector for tests. Populate the
// table with Add; killed pids are recorded in order for assertions.
type FakeInspector struct {
	mu        sync.Mutex
	processes map[int]FakeProcess

	// Killed records every pid passed to KillTree, in call order.
	Killed []int

	// KillErr, when set, is returned by every KillTree call.
	KillErr error
}

// NewFake returns an empty FakeInspector.
func NewFake() *FakeInspector {
	return &FakeInspector{processes: make(map[int]FakeProcess)}
}

// Add inserts or replaces a process table entry.
func (f *FakeInspector) Add(p FakeProcess) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processes[p.PID] = p
}

// Remove deletes a process table entry, simulating process exit.
func (f *FakeInspector) Remove(pid int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.processes, pid)
}

func (f *FakeInspector) Alive(pid int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.processes[pid]
	return ok
}

func (f *FakeInspector) MemoryBytes(pid int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.processes[pid]
	if !ok {
		return 0, ErrProcessNotFound
	}
	return p.Memory, nil
}

func (f *FakeInspector) ExecutablePath(pid int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.processes[pid]
	if !ok {
		return "", ErrProcessNotFound
	}
	return p.Executable, nil
}

// KillTree removes pid and every transitive child from the table and
// records the call.
func (f *FakeInspector) KillTree(pid int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Killed = append(f.Killed, pid)
	if f.KillErr != nil {
		return f.KillErr
	}
	f.removeTreeLocked(pid)
	return nil
}

func (f *FakeInspector) removeTreeLocked(pid int) {
	for _, p := range f.processes {
		if p.ParentPID == pid {
			f.removeTreeLocked(p.PID)
		}
	}
	delete(f.processes, pid)
}

func (f *FakeInspector) ListenerPID(port int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.processes {
		for _, listening := range p.Listening {
			if listening == port {
				return p.PID, nil
			}
		}
	}
	return 0, nil
}
