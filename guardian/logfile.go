// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package guardian

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

// maxLaunchLogSize is the rotation threshold for one guardian log
// file. Guardian logs are line-oriented text and compress well, so
// rotated files are kept zstd-compressed next to the live file.
const maxLaunchLogSize = 4 * 1024 * 1024

// launchLogEncoder is shared across guardians. zstd.Encoder is safe
// for concurrent EncodeAll use.
var (
	launchLogEncoder     *zstd.Encoder
	launchLogEncoderOnce sync.Once
)

func encoder() *zstd.Encoder {
	launchLogEncoderOnce.Do(func() {
		var err error
		launchLogEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			panic("guardian: zstd encoder initialization failed: " + err.Error())
		}
	})
	return launchLogEncoder
}

// launchLog is one guardian's append-only log file with size-based
// rotation. It implements io.Writer so a slog handler can sit on top.
type launchLog struct {
	path    string
	maxSize int64

	mu   sync.Mutex
	file *os.File
	size int64
}

// openLaunchLog opens (appending) the log file for one launch at
// <dir>/<profileID>/guardian_<launchID>.log.
func openLaunchLog(dir, profileID, launchID string) (*launchLog, error) {
	logDir := filepath.Join(dir, profileID)
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating guardian log directory: %w", err)
	}

	path := filepath.Join(logDir, fmt.Sprintf("guardian_%s.log", launchID))
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening guardian log: %w", err)
	}

	size := int64(0)
	if info, err := file.Stat(); err == nil {
		size = info.Size()
	}

	return &launchLog{
		path:    path,
		maxSize: maxLaunchLogSize,
		file:    file,
		size:    size,
	}, nil
}

// Path returns the live log file path.
func (l *launchLog) Path() string { return l.path }

// Write appends to the log, rotating first when the write would push
// the file past the size threshold. A failed rotation never blocks
// logging; the live file just keeps growing.
func (l *launchLog) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.size+int64(len(p)) > l.maxSize && l.size > 0 {
		if err := l.rotateLocked(); err != nil {
			// Keep writing to the oversized live file.
			l.size = 0
		}
	}

	n, err := l.file.Write(p)
	l.size += int64(n)
	return n, err
}

// rotateLocked compresses the current contents into a timestamped
// .zst sibling and truncates the live file.
func (l *launchLog) rotateLocked() error {
	contents, err := os.ReadFile(l.path)
	if err != nil {
		return fmt.Errorf("reading log for rotation: %w", err)
	}

	rotatedPath := fmt.Sprintf("%s.%s.zst", l.path, time.Now().UTC().Format("20060102T150405"))
	compressed := encoder().EncodeAll(contents, nil)
	if err := os.WriteFile(rotatedPath, compressed, 0o644); err != nil {
		return fmt.Errorf("writing rotated log: %w", err)
	}

	if err := l.file.Truncate(0); err != nil {
		return fmt.Errorf("truncating live log: %w", err)
	}
	if _, err := l.file.Seek(0, 0); err != nil {
		return fmt.Errorf("rewinding live log: %w", err)
	}
	l.size = 0
	return nil
}

// Close closes the live file. Rotated siblings are left in place.
func (l *launchLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}
