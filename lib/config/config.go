// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "10s" or "2m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the standard library representation.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the master configuration for the Warden supervisory
// subsystem.
type Config struct {
	// Paths configures directory locations.
	Paths PathsConfig `yaml:"paths"`

	// Service configures the supervised core service.
	Service ServiceConfig `yaml:"service"`

	// Guardian configures per-worker supervision.
	Guardian GuardianConfig `yaml:"guardian"`

	// Channel configures the persistent event channel.
	Channel ChannelConfig `yaml:"channel"`

	// Endpoints are the aggregator's health probe targets.
	Endpoints []EndpointConfig `yaml:"endpoints"`
}

// PathsConfig configures directory locations.
type PathsConfig struct {
	// Root is the base directory for Warden data.
	Root string `yaml:"root"`

	// Bin is where the installation's binaries live. The tree-kill
	// safety gate refuses to terminate any process whose executable
	// is outside this directory.
	Bin string `yaml:"bin"`

	// Logs is where per-profile guardian logs are written.
	Logs string `yaml:"logs"`

	// State is where runtime state (checkpoint, registry) is stored.
	State string `yaml:"state"`

	// Telemetry is the directory holding telemetry.json.
	Telemetry string `yaml:"telemetry"`
}

// RegistryFile is the worker process registry inside the state
// directory.
func (p PathsConfig) RegistryFile() string {
	return filepath.Join(p.State, "profiles.json")
}

// CheckpointFile is the supervisor runtime checkpoint inside the
// state directory.
func (p PathsConfig) CheckpointFile() string {
	return filepath.Join(p.State, "checkpoint.cbor")
}

// ServiceConfig configures the supervised core service.
type ServiceConfig struct {
	// Host is the loopback address the core service listens on.
	Host string `yaml:"host"`

	// Port is the core service's well-known event channel port.
	Port int `yaml:"port"`

	// Binary is the core service executable name inside Paths.Bin.
	Binary string `yaml:"binary"`
}

// Address returns host:port for dialing.
func (s ServiceConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// GuardianConfig configures the per-worker supervision loop.
type GuardianConfig struct {
	// TickInterval is the health check period.
	TickInterval Duration `yaml:"tick_interval"`

	// MaxFailures is the consecutive probe failure count that
	// triggers recovery.
	MaxFailures int `yaml:"max_failures"`

	// MemoryLimitBytes is the supervised process memory ceiling.
	MemoryLimitBytes int64 `yaml:"memory_limit_bytes"`
}

// ChannelConfig configures the persistent event channel client.
type ChannelConfig struct {
	// DialTimeout bounds each connection attempt.
	DialTimeout Duration `yaml:"dial_timeout"`

	// ReconnectMin is the first reconnect delay; each failed attempt
	// doubles it.
	ReconnectMin Duration `yaml:"reconnect_min"`

	// ReconnectMax caps the doubled reconnect delay.
	ReconnectMax Duration `yaml:"reconnect_max"`

	// KeepaliveInterval is the PING period while connected.
	KeepaliveInterval Duration `yaml:"keepalive_interval"`
}

// EndpointConfig declares one aggregator probe target.
type EndpointConfig struct {
	// Name labels the endpoint in snapshots ("Core Bridge").
	Name string `yaml:"name"`

	// Port is the local port to probe.
	Port int `yaml:"port"`

	// Kind selects the probe: "tcp" (liveness dial), "http" (GET
	// against Path, status-code based), or "metrics" (Prometheus
	// text exposition parse).
	Kind string `yaml:"kind"`

	// Path is the health or metrics path for http/metrics kinds.
	Path string `yaml:"path"`

	// Counters lists metric family names to capture from a metrics
	// endpoint and attach to its status.
	Counters []string `yaml:"counters"`
}

// Default returns a Config with development defaults rooted under
// ${HOME}/.warden.
func Default() *Config {
	return &Config{
		Paths: PathsConfig{
			Root:      "${HOME}/.warden",
			Bin:       "${WARDEN_ROOT}/bin",
			Logs:      "${WARDEN_ROOT}/logs",
			State:     "${WARDEN_ROOT}/state",
			Telemetry: "${WARDEN_ROOT}/telemetry",
		},
		Service: ServiceConfig{
			Host:   "127.0.0.1",
			Port:   5678,
			Binary: "core-service",
		},
		Guardian: GuardianConfig{
			TickInterval:     Duration(10 * time.Second),
			MaxFailures:      3,
			MemoryLimitBytes: 500 * 1024 * 1024,
		},
		Channel: ChannelConfig{
			DialTimeout:       Duration(5 * time.Second),
			ReconnectMin:      Duration(2 * time.Second),
			ReconnectMax:      Duration(60 * time.Second),
			KeepaliveInterval: Duration(30 * time.Second),
		},
	}
}

// Load loads configuration from the WARDEN_CONFIG environment
// variable. There are no fallbacks: if WARDEN_CONFIG is not set, Load
// fails.
func Load() (*Config, error) {
	path := os.Getenv("WARDEN_CONFIG")
	if path == "" {
		return nil, errors.New("WARDEN_CONFIG environment variable not set; " +
			"set it to the path of your warden.yaml config file, or use --config")
	}
	return LoadFile(path)
}

// LoadFile loads configuration from a specific file path, merging it
// over Default. Environment variables never override config values;
// the only expansion performed is ${VAR} substitution in path fields.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.expandVariables()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config %s: %w", path, err)
	}
	return cfg, nil
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in
// path fields.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"WARDEN_ROOT": c.Paths.Root,
		"HOME":        os.Getenv("HOME"),
	}

	c.Paths.Root = expandVars(c.Paths.Root, vars)
	vars["WARDEN_ROOT"] = c.Paths.Root // Update for dependent paths.

	c.Paths.Bin = expandVars(c.Paths.Bin, vars)
	c.Paths.Logs = expandVars(c.Paths.Logs, vars)
	c.Paths.State = expandVars(c.Paths.State, vars)
	c.Paths.Telemetry = expandVars(c.Paths.Telemetry, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} patterns, consulting
// the provided vars first and the environment second.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Paths.Root == "" {
		errs = append(errs, errors.New("paths.root is required"))
	}
	if c.Paths.Bin == "" {
		errs = append(errs, errors.New("paths.bin is required"))
	}
	if c.Service.Port <= 0 || c.Service.Port > 65535 {
		errs = append(errs, fmt.Errorf("service.port %d out of range", c.Service.Port))
	}
	if c.Service.Binary == "" {
		errs = append(errs, errors.New("service.binary is required"))
	}
	if c.Guardian.MaxFailures <= 0 {
		errs = append(errs, errors.New("guardian.max_failures must be positive"))
	}
	if c.Guardian.TickInterval.Std() <= 0 {
		errs = append(errs, errors.New("guardian.tick_interval must be positive"))
	}
	if c.Channel.ReconnectMin.Std() <= 0 || c.Channel.ReconnectMax.Std() < c.Channel.ReconnectMin.Std() {
		errs = append(errs, errors.New("channel.reconnect_min/reconnect_max must be positive and ordered"))
	}
	for i, endpoint := range c.Endpoints {
		switch endpoint.Kind {
		case "tcp", "http", "metrics":
		default:
			errs = append(errs, fmt.Errorf("endpoints[%d].kind %q must be tcp, http, or metrics", i, endpoint.Kind))
		}
		if endpoint.Port <= 0 || endpoint.Port > 65535 {
			errs = append(errs, fmt.Errorf("endpoints[%d].port %d out of range", i, endpoint.Port))
		}
	}

	return errors.Join(errs...)
}
