package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/devblac/chainsyncd/internal/catalog"
)

// Config holds the YAML service configuration.
type Config struct {
	Version    int                  `yaml:"version"`
	Global     GlobalConfig         `yaml:"global"`
	Ecosystems map[string]Ecosystem `yaml:"ecosystems"`
}

type GlobalConfig struct {
	DBPath       string `yaml:"db_path"`
	PublishURL   string `yaml:"publish_url"`
	NetworksFile string `yaml:"networks_file"`
}

// Ecosystem configures one runtime family's sync behavior. Every family gets
// its own interval, batch bound, and admission-control capacity because block
// times and RPC costs differ wildly between them.
type Ecosystem struct {
	SyncEnabled           bool     `yaml:"sync_enabled"`
	SyncIntervalSeconds   int      `yaml:"sync_interval_seconds"`
	BatchSize             int      `yaml:"batch_size"`
	MaxConcurrentRequests int      `yaml:"max_concurrent_requests"`
	PriorityThreshold     int      `yaml:"priority_threshold"`
	RetentionDays         int      `yaml:"retention_days"`
	WarmStartWindow       uint64   `yaml:"warm_start_window"`
	RequestTimeoutSeconds int      `yaml:"request_timeout_seconds"`
	Networks              []string `yaml:"networks"`
}

// SyncInterval returns the wall-clock pause between cycles.
func (e Ecosystem) SyncInterval() time.Duration {
	return time.Duration(e.SyncIntervalSeconds) * time.Second
}

// RequestTimeout returns the per-RPC-call budget for this family.
func (e Ecosystem) RequestTimeout() time.Duration {
	if e.RequestTimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(e.RequestTimeoutSeconds) * time.Second
}

var envPattern = regexp.MustCompile(`\${([A-Za-z_][A-Za-z0-9_]*)}`)

// Load reads, interpolates env vars, parses YAML, and validates.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}

	if err := loadDotEnv(path); err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	interpolated, err := interpolateEnv(string(raw))
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(interpolated), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func loadDotEnv(configPath string) error {
	envPath := filepath.Join(filepath.Dir(configPath), ".env")
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			return fmt.Errorf("load .env: %w", err)
		}
	}
	return nil
}

func interpolateEnv(input string) (string, error) {
	missing := []string{}
	out := envPattern.ReplaceAllStringFunc(input, func(match string) string {
		name := envPattern.FindStringSubmatch(match)[1]
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		missing = append(missing, name)
		return match
	})

	if len(missing) > 0 {
		return "", fmt.Errorf("missing environment variables: %s", strings.Join(dedup(missing), ", "))
	}
	return out, nil
}

// knownEcosystems are the runtime families an ecosystems entry may configure.
var knownEcosystems = map[string]catalog.Runtime{
	"evm":       catalog.RuntimeEVM,
	"cosmos":    catalog.RuntimeCosmos,
	"substrate": catalog.RuntimeSubstrate,
	"bitcoin":   catalog.RuntimeBitcoin,
	"solana":    catalog.RuntimeSolana,
	"movevm":    catalog.RuntimeMoveVM,
	"starknet":  catalog.RuntimeStarknet,
}

// RuntimeFor maps an ecosystems key to its catalog runtime.
func RuntimeFor(name string) (catalog.Runtime, bool) {
	rt, ok := knownEcosystems[name]
	return rt, ok
}

// Validate performs small, direct schema checks.
func (c *Config) Validate() error {
	if c.Version == 0 {
		return errors.New("version is required")
	}
	if c.Global.DBPath == "" {
		return errors.New("global.db_path is required")
	}
	if len(c.Ecosystems) == 0 {
		return errors.New("at least one ecosystem is required")
	}

	for name, eco := range c.Ecosystems {
		if _, ok := knownEcosystems[name]; !ok {
			return fmt.Errorf("unknown ecosystem: %s", name)
		}
		if err := eco.Validate(); err != nil {
			return fmt.Errorf("ecosystem %s: %w", name, err)
		}
	}

	return nil
}

func (e Ecosystem) Validate() error {
	if !e.SyncEnabled {
		return nil
	}
	if e.SyncIntervalSeconds <= 0 {
		return errors.New("sync_interval_seconds must be positive")
	}
	if e.BatchSize <= 0 {
		return errors.New("batch_size must be positive")
	}
	if e.MaxConcurrentRequests <= 0 {
		return errors.New("max_concurrent_requests must be positive")
	}
	if e.PriorityThreshold < 0 || e.PriorityThreshold > 10 {
		return fmt.Errorf("priority_threshold %d out of range 0-10", e.PriorityThreshold)
	}
	if e.RetentionDays < 0 {
		return errors.New("retention_days cannot be negative")
	}
	if len(e.Networks) == 0 {
		return errors.New("at least one network is required")
	}
	seen := map[string]struct{}{}
	for _, n := range e.Networks {
		if _, dup := seen[n]; dup {
			return fmt.Errorf("duplicate network: %s", n)
		}
		seen[n] = struct{}{}
	}
	return nil
}

func dedup(values []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
