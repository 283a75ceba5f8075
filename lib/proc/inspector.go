// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package proc

import "errors"

// ErrProcessNotFound reports a pid absent from the process table.
// Callers distinguish "gone" from "could not inspect" with errors.Is.
var ErrProcessNotFound = errors.New("process not found")

// Inspector provides process-table introspection and termination.
// All methods are synchronous and expected to return quickly.
type Inspector interface {
	// Alive reports whether pid exists in the process table.
	Alive(pid int) bool

	// MemoryBytes returns the resident memory of pid. Returns
	// ErrProcessNotFound when the process is gone.
	MemoryBytes(pid int) (int64, error)

	// ExecutablePath returns the absolute path of pid's executable.
	// Returns ErrProcessNotFound when the process is gone.
	ExecutablePath(pid int) (string, error)

	// KillTree force-terminates pid and all of its descendants.
	// Terminating an already-dead process is not an error.
	KillTree(pid int) error

	// ListenerPID returns the pid of the process listening on the
	// given local TCP port, or 0 when the port is free.
	ListenerPID(port int) (int, error)
}
