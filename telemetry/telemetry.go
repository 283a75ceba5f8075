// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// FileName is the catalog file's name inside the telemetry directory.
const FileName = "telemetry.json"

// StreamInfo is one catalog entry: where a stream's log file lives and
// how a log viewer should present it.
type StreamInfo struct {
	Label       string   `json:"label"`
	Path        string   `json:"path"`
	Priority    int      `json:"priority"`
	Categories  []string `json:"categories"`
	Description string   `json:"description"`
	FirstSeen   string   `json:"first_seen"`
	LastUpdate  string   `json:"last_update"`
	Active      bool     `json:"active"`
}

// Data is the root object of the catalog file.
type Data struct {
	Streams map[string]StreamInfo `json:"active_streams"`
}

// Read parses the catalog under the given telemetry directory. A
// missing or unparseable file yields empty data, never an error: the
// catalog is advisory, and consumers must not fail because of it.
func Read(dir string) Data {
	data := Data{Streams: make(map[string]StreamInfo)}
	raw, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		return data
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return Data{Streams: make(map[string]StreamInfo)}
	}
	if data.Streams == nil {
		data.Streams = make(map[string]StreamInfo)
	}
	return data
}
