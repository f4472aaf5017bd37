// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// EnvironmentVariable names the variable Load reads the config path
// from.
const EnvironmentVariable = "RAPTORCAST_CONFIG"

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local runs and tests.
	Development Environment = "development"
	// Production is for long-lived deployments.
	Production Environment = "production"
)

// Store backends.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

// compressionNames are the values accepted by store.compression.
var compressionNames = []string{"none", "lz4", "zstd"}

// Duration is a time.Duration written as a Go duration string ("2s",
// "1m30s") in YAML and JSON.
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. yaml.v3 and
// encoding/json both use it for scalar strings.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Config is the master configuration for a raptorcast process.
type Config struct {
	// Environment selects which override section applies.
	Environment Environment `yaml:"environment" json:"environment"`

	// Engine configures encoding, distribution, scoring and
	// persistence retries.
	Engine EngineConfig `yaml:"engine" json:"engine"`

	// Store configures the provenance store.
	Store StoreConfig `yaml:"store" json:"store"`

	// Nodes is the participant registry. Empty selects the engine's
	// built-in twenty-node registry.
	Nodes []NodeConfig `yaml:"nodes,omitempty" json:"nodes,omitempty"`

	// Per-environment overrides, applied after the base config is
	// loaded.
	Development *Overrides `yaml:"development,omitempty" json:"development,omitempty"`
	Production  *Overrides `yaml:"production,omitempty" json:"production,omitempty"`
}

// Overrides contains the sections an environment may replace.
type Overrides struct {
	Engine *EngineConfig `yaml:"engine,omitempty" json:"engine,omitempty"`
	Store  *StoreConfig  `yaml:"store,omitempty" json:"store,omitempty"`

	// Nodes replaces the whole node list when non-empty.
	Nodes []NodeConfig `yaml:"nodes,omitempty" json:"nodes,omitempty"`
}

// EngineConfig holds the engine tunables. Zero values mean "engine
// default" except where Default sets them explicitly.
type EngineConfig struct {
	Fanout           int `yaml:"fanout" json:"fanout"`
	RedundancyFactor int `yaml:"redundancy_factor" json:"redundancy_factor"`
	ChunkSize        int `yaml:"chunk_size" json:"chunk_size"`

	// LevelOneProbability and LevelTwoProbability are the simulated
	// per-chunk delivery probabilities by tree level.
	LevelOneProbability float64 `yaml:"level_one_probability" json:"level_one_probability"`
	LevelTwoProbability float64 `yaml:"level_two_probability" json:"level_two_probability"`

	// MinConfirmations is the confirmation rate Verify requires.
	MinConfirmations float64 `yaml:"min_confirmations" json:"min_confirmations"`

	// EvolutionThreshold is the replication factor a broadcast must
	// exceed to earn an evolution factor.
	EvolutionThreshold float64 `yaml:"evolution_threshold" json:"evolution_threshold"`

	// Seed fixes the scoring random streams. Zero is a valid seed.
	Seed uint64 `yaml:"seed" json:"seed"`

	TreeCacheSize int `yaml:"tree_cache_size" json:"tree_cache_size"`

	ConfirmDelay   Duration `yaml:"confirm_delay" json:"confirm_delay"`
	ConfirmTimeout Duration `yaml:"confirm_timeout" json:"confirm_timeout"`

	// StoreTimeout bounds each store wait inside a propagation.
	StoreTimeout Duration `yaml:"store_timeout" json:"store_timeout"`

	RetryAttempts   int      `yaml:"retry_attempts" json:"retry_attempts"`
	RetryBackoff    Duration `yaml:"retry_backoff" json:"retry_backoff"`
	RetryMaxBackoff Duration `yaml:"retry_max_backoff" json:"retry_max_backoff"`

	BreakerFailures int      `yaml:"breaker_failures" json:"breaker_failures"`
	BreakerCooldown Duration `yaml:"breaker_cooldown" json:"breaker_cooldown"`
}

// StoreConfig configures the provenance store.
type StoreConfig struct {
	// Backend is "memory" or "sqlite".
	Backend string `yaml:"backend" json:"backend"`

	// Path is the SQLite database file. ${HOME} and ${VAR:-default}
	// are expanded.
	Path string `yaml:"path" json:"path"`

	// PoolSize is the number of SQLite connections. Zero selects the
	// pool default.
	PoolSize int `yaml:"pool_size" json:"pool_size"`

	// Durable requests synchronous=FULL from SQLite.
	Durable bool `yaml:"durable" json:"durable"`

	// Compression is "none", "lz4" or "zstd".
	Compression string `yaml:"compression" json:"compression"`

	// EncryptionKey is a hex-encoded 32-byte key enabling encryption
	// at rest. Usually written as ${RAPTORCAST_STORE_KEY} so the
	// secret stays out of the file.
	EncryptionKey string `yaml:"encryption_key,omitempty" json:"encryption_key,omitempty"`
}

// NodeConfig is one participant.
type NodeConfig struct {
	ID      string  `yaml:"id" json:"id"`
	Weight  float64 `yaml:"weight" json:"weight"`
	Offline bool    `yaml:"offline,omitempty" json:"offline,omitempty"`
}

// Default returns the default configuration. It is the base every file
// is merged over.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		Environment: Development,
		Engine: EngineConfig{
			Fanout:              5,
			RedundancyFactor:    3,
			ChunkSize:           1024,
			LevelOneProbability: 0.9,
			LevelTwoProbability: 0.8,
			MinConfirmations:    0.67,
			EvolutionThreshold:  0.8,
			TreeCacheSize:       256,
			ConfirmDelay:        Duration(2 * time.Second),
			ConfirmTimeout:      Duration(30 * time.Second),
			StoreTimeout:        Duration(2 * time.Second),
			RetryAttempts:       8,
			RetryBackoff:        Duration(time.Second),
			RetryMaxBackoff:     Duration(time.Minute),
			BreakerFailures:     5,
			BreakerCooldown:     Duration(30 * time.Second),
		},
		Store: StoreConfig{
			Backend:     BackendSQLite,
			Path:        filepath.Join(homeDir, ".cache", "raptorcast", "provenance.db"),
			Compression: "zstd",
		},
	}
}

// Load loads configuration from the file named by RAPTORCAST_CONFIG.
// There is no fallback: an unset variable is an error.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvironmentVariable)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your raptorcast config file, or use --config", EnvironmentVariable)
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from path over the defaults, applies
// the selected environment's overrides and expands variables. Files
// ending in .json or .jsonc are read as JSONC (JSON with comments and
// trailing commas); anything else as YAML.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg, err := Parse(data, formatOf(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Format is a config file syntax.
type Format int

const (
	FormatYAML Format = iota
	FormatJSONC
)

func formatOf(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		return FormatJSONC
	default:
		return FormatYAML
	}
}

// Parse decodes data over the defaults, applies overrides and expands
// variables. It does not validate.
func Parse(data []byte, format Format) (*Config, error) {
	cfg := Default()
	switch format {
	case FormatJSONC:
		if err := json.Unmarshal(jsonc.ToJSON(data), cfg); err != nil {
			return nil, fmt.Errorf("parsing JSONC config: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing YAML config: %w", err)
		}
	}
	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()
	return cfg, nil
}

// applyEnvironmentOverrides merges the section for c.Environment.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *Overrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Production:
		overrides = c.Production
		// Production defaults: fsync every commit.
		if overrides == nil {
			overrides = &Overrides{Store: &StoreConfig{Durable: true}}
		}
	}

	if overrides == nil {
		return
	}

	if overrides.Engine != nil {
		c.Engine.merge(*overrides.Engine)
	}
	if overrides.Store != nil {
		c.Store.merge(*overrides.Store)
	}
	if len(overrides.Nodes) > 0 {
		c.Nodes = slices.Clone(overrides.Nodes)
	}
}

// merge copies the non-zero fields of o into e.
func (e *EngineConfig) merge(o EngineConfig) {
	setIfNonZero(&e.Fanout, o.Fanout)
	setIfNonZero(&e.RedundancyFactor, o.RedundancyFactor)
	setIfNonZero(&e.ChunkSize, o.ChunkSize)
	setIfNonZero(&e.LevelOneProbability, o.LevelOneProbability)
	setIfNonZero(&e.LevelTwoProbability, o.LevelTwoProbability)
	setIfNonZero(&e.MinConfirmations, o.MinConfirmations)
	setIfNonZero(&e.EvolutionThreshold, o.EvolutionThreshold)
	setIfNonZero(&e.Seed, o.Seed)
	setIfNonZero(&e.TreeCacheSize, o.TreeCacheSize)
	setIfNonZero(&e.ConfirmDelay, o.ConfirmDelay)
	setIfNonZero(&e.ConfirmTimeout, o.ConfirmTimeout)
	setIfNonZero(&e.StoreTimeout, o.StoreTimeout)
	setIfNonZero(&e.RetryAttempts, o.RetryAttempts)
	setIfNonZero(&e.RetryBackoff, o.RetryBackoff)
	setIfNonZero(&e.RetryMaxBackoff, o.RetryMaxBackoff)
	setIfNonZero(&e.BreakerFailures, o.BreakerFailures)
	setIfNonZero(&e.BreakerCooldown, o.BreakerCooldown)
}

// merge copies the non-zero fields of o into s.
func (s *StoreConfig) merge(o StoreConfig) {
	setIfNonZero(&s.Backend, o.Backend)
	setIfNonZero(&s.Path, o.Path)
	setIfNonZero(&s.PoolSize, o.PoolSize)
	setIfNonZero(&s.Compression, o.Compression)
	setIfNonZero(&s.EncryptionKey, o.EncryptionKey)
	// Durable is a bool, so it is always applied from overrides.
	s.Durable = o.Durable
}

func setIfNonZero[T comparable](target *T, value T) {
	var zero T
	if value != zero {
		*target = value
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} in the store path
// and encryption key.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}
	c.Store.Path = expandVars(c.Store.Path, vars)
	c.Store.EncryptionKey = expandVars(c.Store.EncryptionKey, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

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

		// Provided vars first, then the environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors. Every problem is
// reported, joined.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	e := c.Engine
	if e.Fanout < 1 {
		errs = append(errs, fmt.Errorf("engine.fanout must be at least 1, got %d", e.Fanout))
	}
	if e.RedundancyFactor < 1 {
		errs = append(errs, fmt.Errorf("engine.redundancy_factor must be at least 1, got %d", e.RedundancyFactor))
	}
	if e.ChunkSize < 1 {
		errs = append(errs, fmt.Errorf("engine.chunk_size must be positive, got %d", e.ChunkSize))
	}
	for _, probability := range []struct {
		name  string
		value float64
	}{
		{"engine.level_one_probability", e.LevelOneProbability},
		{"engine.level_two_probability", e.LevelTwoProbability},
		{"engine.min_confirmations", e.MinConfirmations},
		{"engine.evolution_threshold", e.EvolutionThreshold},
	} {
		if !(probability.value >= 0 && probability.value <= 1) {
			errs = append(errs, fmt.Errorf("%s must be in [0, 1], got %v", probability.name, probability.value))
		}
	}
	if e.TreeCacheSize < 1 {
		errs = append(errs, fmt.Errorf("engine.tree_cache_size must be positive, got %d", e.TreeCacheSize))
	}
	if e.ConfirmDelay < 0 || e.ConfirmTimeout <= 0 {
		errs = append(errs, fmt.Errorf("engine.confirm_delay %v and confirm_timeout %v must be non-negative and positive",
			e.ConfirmDelay, e.ConfirmTimeout))
	}
	if e.StoreTimeout <= 0 {
		errs = append(errs, fmt.Errorf("engine.store_timeout must be positive, got %v", e.StoreTimeout))
	}
	if e.RetryAttempts < 0 || e.RetryBackoff <= 0 || e.RetryMaxBackoff < e.RetryBackoff {
		errs = append(errs, fmt.Errorf("engine retry settings: %d attempts, backoff %v up to %v",
			e.RetryAttempts, e.RetryBackoff, e.RetryMaxBackoff))
	}
	if e.BreakerFailures < 1 || e.BreakerCooldown < 0 {
		errs = append(errs, fmt.Errorf("engine breaker settings: %d failures, cooldown %v",
			e.BreakerFailures, e.BreakerCooldown))
	}

	switch c.Store.Backend {
	case BackendMemory:
		if c.Environment == Production {
			errs = append(errs, errors.New("store.backend memory keeps no history; production requires sqlite"))
		}
	case BackendSQLite:
		if c.Store.Path == "" {
			errs = append(errs, errors.New("store.path is required for the sqlite backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.backend must be one of: %v", []string{BackendMemory, BackendSQLite}))
	}
	if c.Store.PoolSize < 0 {
		errs = append(errs, fmt.Errorf("store.pool_size must not be negative, got %d", c.Store.PoolSize))
	}
	if !slices.Contains(compressionNames, c.Store.Compression) {
		errs = append(errs, fmt.Errorf("store.compression must be one of: %v", compressionNames))
	}
	if c.Store.EncryptionKey != "" {
		if key, err := hex.DecodeString(c.Store.EncryptionKey); err != nil || len(key) != 32 {
			errs = append(errs, errors.New("store.encryption_key must be 64 hex characters (32 bytes)"))
		}
	}

	seen := make(map[string]bool, len(c.Nodes))
	for i, node := range c.Nodes {
		if node.ID == "" {
			errs = append(errs, fmt.Errorf("nodes[%d].id is required", i))
			continue
		}
		if !(node.Weight > 0) {
			errs = append(errs, fmt.Errorf("nodes[%d] (%s): weight must be positive, got %v", i, node.ID, node.Weight))
		}
		if seen[node.ID] {
			errs = append(errs, fmt.Errorf("nodes[%d]: duplicate id %s", i, node.ID))
		}
		seen[node.ID] = true
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// EnsureStoreDir creates the directory holding the SQLite database.
func (c *Config) EnsureStoreDir() error {
	if c.Store.Backend != BackendSQLite {
		return nil
	}
	dir := filepath.Dir(c.Store.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	return nil
}
