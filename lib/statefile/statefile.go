// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package statefile

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Checkpoint is the supervisor state that survives a restart.
type Checkpoint struct {
	// LastEventTime is the nanosecond timestamp of the most recent
	// event received on the event channel. Zero means none yet.
	LastEventTime int64 `cbor:"last_event_time"`

	// LastSequence is the highest outbound sequence assigned on the
	// previous connection. Informational; sequences restart per
	// connection.
	LastSequence uint64 `cbor:"last_sequence"`

	// ServicePID is the last known pid of the core service.
	ServicePID int `cbor:"service_pid"`

	// WrittenAt records when the checkpoint was persisted.
	WrittenAt time.Time `cbor:"written_at"`
}

// Write atomically persists a checkpoint: temporary file, fsync,
// rename, parent directory sync.
func Write(path string, checkpoint Checkpoint) error {
	data, err := cbor.Marshal(checkpoint)
	if err != nil {
		return fmt.Errorf("marshaling checkpoint: %w", err)
	}

	temporaryPath := path + ".tmp"
	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating temporary checkpoint file: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("writing temporary checkpoint file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("syncing temporary checkpoint file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("closing temporary checkpoint file: %w", err)
	}
	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("renaming checkpoint into place: %w", err)
	}

	if parent, err := os.Open(filepath.Dir(path)); err == nil {
		parent.Sync()
		parent.Close()
	}
	return nil
}

// Read loads a checkpoint. A missing or undecodable file returns a
// zero Checkpoint and ok=false — the supervisor then polls from the
// beginning, which is safe.
func Read(path string) (Checkpoint, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Checkpoint{}, false
	}
	var checkpoint Checkpoint
	if err := cbor.Unmarshal(data, &checkpoint); err != nil {
		return Checkpoint{}, false
	}
	return checkpoint, true
}
