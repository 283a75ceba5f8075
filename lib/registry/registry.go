// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Worker status values stored in the registry.
const (
	// StatusOpen marks a worker session with a live process.
	StatusOpen = "open"

	// StatusClosed marks a worker session whose process has exited
	// or been cleaned up.
	StatusClosed = "closed"
)

// Entry is one worker session in the registry.
type Entry struct {
	ProfileID string `json:"profile_id"`
	Status    string `json:"status"`
	PID       int    `json:"pid"`
	LaunchID  string `json:"launch_id,omitempty"`
}

// Registry is the root document of the registry file.
type Registry struct {
	Profiles []Entry `json:"profiles"`
}

// Find returns a pointer to the entry for profileID, or nil.
func (r *Registry) Find(profileID string) *Entry {
	for i := range r.Profiles {
		if r.Profiles[i].ProfileID == profileID {
			return &r.Profiles[i]
		}
	}
	return nil
}

// Read parses the registry file. A missing file is an empty registry,
// not an error; a present-but-corrupt file is an error, because
// silently treating it as empty would let Update discard entries.
func Read(path string) (Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Registry{}, nil
		}
		return Registry{}, err
	}
	var r Registry
	if err := json.Unmarshal(data, &r); err != nil {
		return Registry{}, fmt.Errorf("parsing registry %s: %w", path, err)
	}
	return r, nil
}

// Update applies fn to the current registry contents and writes the
// result back atomically. Only the single designated writer process
// may call Update; concurrent readers keep seeing either the old or
// the new document, never a partial one.
func Update(path string, fn func(*Registry)) error {
	r, err := Read(path)
	if err != nil {
		return err
	}

	fn(&r)

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling registry: %w", err)
	}
	data = append(data, '\n')

	return replaceFile(path, data, 0o644)
}

// replaceFile writes data to path via a temporary file, fsync, and
// rename, then syncs the parent directory so the rename survives
// power loss.
func replaceFile(path string, data []byte, mode os.FileMode) error {
	temporaryPath := path + ".tmp"

	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("creating temporary registry file: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("writing temporary registry file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("syncing temporary registry file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("closing temporary registry file: %w", err)
	}
	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("renaming registry file into place: %w", err)
	}

	if parent, err := os.Open(filepath.Dir(path)); err == nil {
		parent.Sync()
		parent.Close()
	}
	return nil
}
