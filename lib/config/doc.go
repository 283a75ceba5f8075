// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for Warden
// components.
//
// Configuration is loaded from a single file specified by either the
// WARDEN_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There are no fallbacks, no ~/.config discovery,
// and no automatic file search. This ensures deterministic, auditable
// configuration with no hidden overrides.
//
// Variable expansion is performed on path fields after loading:
// ${HOME}, ${WARDEN_ROOT}, and ${VAR:-default} patterns are expanded.
// No other environment variables override config values.
//
// [Watch] re-loads the file on change and delivers the new Config via
// a callback; a malformed edit is logged and the previous config
// stays active.
//
// This package depends on no other Warden packages.
package config
