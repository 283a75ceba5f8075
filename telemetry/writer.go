// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/warden-foundation/warden/lib/clock"
)

// defaultFlushInterval is how often a long-running Writer persists
// dirty state. Registrations are idempotent, so losing the last
// interval's worth on a crash only delays the next update.
const defaultFlushInterval = 3 * time.Second

// Registration is one catalog mutation: register a new stream or
// refresh an existing one.
type Registration struct {
	ID          string
	Label       string
	Path        string
	Priority    int
	Categories  []string
	Description string
}

// WriterOptions configures a Writer.
type WriterOptions struct {
	// Path is the catalog file location.
	Path string

	// FlushInterval is the periodic flush cadence when Start is used.
	// Defaults to 3s.
	FlushInterval time.Duration

	// Clock defaults to the real clock.
	Clock clock.Clock

	// Logger receives flush failures from the background loop.
	// Defaults to a discard logger.
	Logger *slog.Logger
}

// Writer is the catalog's single authoritative mutator. Exactly one
// process holds a Writer for a given file: the warden-telemetry
// binary for one-shot registrations, or the supervisor when it
// registers its own streams in-process.
type Writer struct {
	path          string
	flushInterval time.Duration
	clock         clock.Clock
	log           *slog.Logger

	mu    sync.Mutex
	data  Data
	dirty bool

	loopStop chan struct{}
	loopDone chan struct{}
}

// NewWriter loads the catalog at path (empty when missing or corrupt)
// and returns a Writer over it.
func NewWriter(options WriterOptions) *Writer {
	if options.FlushInterval <= 0 {
		options.FlushInterval = defaultFlushInterval
	}
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Writer{
		path:          options.Path,
		flushInterval: options.FlushInterval,
		clock:         options.Clock,
		log:           options.Logger,
		data:          Read(filepath.Dir(options.Path)),
	}
}

// Apply registers or refreshes one stream in memory. first_seen is
// preserved across refreshes, last_update moves to now, and entries
// are never deleted. Call Flush (or run the flush loop) to persist.
func (w *Writer) Apply(reg Registration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.clock.Now().UTC().Format(time.RFC3339)
	firstSeen := now
	if existing, ok := w.data.Streams[reg.ID]; ok {
		firstSeen = existing.FirstSeen
	}

	w.data.Streams[reg.ID] = StreamInfo{
		Label:       reg.Label,
		Path:        filepath.ToSlash(reg.Path),
		Priority:    reg.Priority,
		Categories:  reg.Categories,
		Description: reg.Description,
		FirstSeen:   firstSeen,
		LastUpdate:  now,
		Active:      true,
	}
	w.dirty = true
}

// Data returns a copy of the in-memory catalog.
func (w *Writer) Data() Data {
	w.mu.Lock()
	defer w.mu.Unlock()
	streams := make(map[string]StreamInfo, len(w.data.Streams))
	for id, info := range w.data.Streams {
		streams[id] = info
	}
	return Data{Streams: streams}
}

// Flush persists the catalog if it has unsaved changes. The write is
// atomic: temp file, fsync, rename.
func (w *Writer) Flush() error {
	w.mu.Lock()
	if !w.dirty {
		w.mu.Unlock()
		return nil
	}
	encoded, err := json.MarshalIndent(w.data, "", "  ")
	if err != nil {
		w.mu.Unlock()
		return fmt.Errorf("marshaling telemetry catalog: %w", err)
	}
	w.dirty = false
	w.mu.Unlock()

	if err := writeFileAtomic(w.path, append(encoded, '\n')); err != nil {
		w.mu.Lock()
		w.dirty = true
		w.mu.Unlock()
		return err
	}
	return nil
}

// Start runs the periodic flush loop until Stop is called. Calling
// Start on a running Writer panics.
func (w *Writer) Start() {
	if w.loopStop != nil {
		panic("telemetry: Writer flush loop already running")
	}
	w.loopStop = make(chan struct{})
	w.loopDone = make(chan struct{})
	go w.flushLoop()
}

// Stop halts the flush loop and performs a final Flush.
func (w *Writer) Stop() error {
	if w.loopStop == nil {
		return w.Flush()
	}
	close(w.loopStop)
	<-w.loopDone
	w.loopStop = nil
	return w.Flush()
}

func (w *Writer) flushLoop() {
	defer close(w.loopDone)
	ticker := w.clock.NewTicker(w.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-w.loopStop:
			return
		case <-ticker.C:
			if err := w.Flush(); err != nil {
				w.log.Warn("telemetry flush failed", "path", w.path, "error", err)
			}
		}
	}
}

// writeFileAtomic replaces path with data so readers never observe a
// partial file.
func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating telemetry directory: %w", err)
	}

	temporaryPath := path + ".tmp"
	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("creating temporary telemetry file: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("writing temporary telemetry file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("syncing temporary telemetry file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("closing temporary telemetry file: %w", err)
	}
	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("renaming telemetry file into place: %w", err)
	}
	return nil
}
