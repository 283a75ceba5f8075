// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// Watch monitors path for changes and calls onChange with the newly
// loaded Config each time the file is rewritten. It blocks until ctx
// is cancelled.
//
// A reload that fails (unreadable file, invalid YAML, failed
// validation) is logged and onChange is not called — the previous
// config remains active.
func Watch(ctx context.Context, path string, logger *slog.Logger, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return err
	}

	logger.Info("watching config for changes", "path", path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// Editors and atomic writers replace the file via
			// rename, which arrives as Create rather than Write.
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			cfg, err := LoadFile(path)
			if err != nil {
				logger.Error("config reload failed, keeping previous config", "path", path, "error", err)
				continue
			}

			logger.Info("config reloaded", "path", path)
			onChange(cfg)

			// An atomic save replaces the inode; re-add the watch.
			_ = watcher.Add(path)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("config watcher error", "error", err)
		}
	}
}
