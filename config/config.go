package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"labledger/storage"
)

// EnvVar names the deployment environment override.
const EnvVar = "LABLEDGER_ENV"

const (
	DefaultListenAddress   = ":8080"
	DefaultDataDir         = "./labledger-data"
	DefaultUnstakeCooldown = "144h"
)

type Config struct {
	ListenAddress   string          `toml:"ListenAddress"`
	DataDir         string          `toml:"DataDir"`
	StorageBackend  string          `toml:"StorageBackend"`
	Environment     string          `toml:"Environment"`
	DAOAdmin        string          `toml:"DAOAdmin"`
	EscrowAdmin     string          `toml:"EscrowAdmin"`
	UnstakeCooldown string          `toml:"UnstakeCooldown"`
	PausedModules   []string        `toml:"PausedModules"`
	Auth            AuthConfig      `toml:"auth"`
	RateLimit       RateLimitConfig `toml:"rate_limit"`
	Logging         LoggingConfig   `toml:"logging"`
	Telemetry       TelemetryConfig `toml:"telemetry"`
	Faucet          FaucetConfig    `toml:"faucet"`
	Genesis         GenesisConfig   `toml:"genesis"`
}

// Default returns the configuration written when no file exists yet. The
// admin addresses are left empty and must be filled in before the node
// will start.
func Default() *Config {
	return &Config{
		ListenAddress:   DefaultListenAddress,
		DataDir:         DefaultDataDir,
		StorageBackend:  storage.BackendLevelDB,
		Environment:     "dev",
		UnstakeCooldown: DefaultUnstakeCooldown,
		PausedModules:   []string{},
		Auth: AuthConfig{
			Enabled:   true,
			Issuer:    "labledger",
			Audience:  "labledger-api",
			ClockSkew: "2m",
		},
		RateLimit: RateLimitConfig{RequestsPerMinute: 120, Burst: 20},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 28,
		},
		Telemetry: TelemetryConfig{Endpoint: "localhost:4318", Insecure: true},
		Genesis:   GenesisConfig{Allocations: []Allocation{}},
	}
}

// Load loads the configuration from the given path, creating a default file
// when none exists. Environment overrides are applied after decoding.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path required")
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	} else if err != nil {
		return nil, err
	}

	cfg := Default()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s has unknown key %q", path, undecoded[0].String())
	}
	if cfg.PausedModules == nil {
		cfg.PausedModules = []string{}
	}
	cfg.applyEnv(os.Getenv)
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if env := strings.TrimSpace(getenv(EnvVar)); env != "" {
		c.Environment = env
	}
	if endpoint := strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_ENDPOINT")); endpoint != "" {
		c.Telemetry.Endpoint = endpoint
	}
	if headers := strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_HEADERS")); headers != "" {
		c.Telemetry.Headers = headers
	}
	if value := strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_INSECURE")); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			c.Telemetry.Insecure = parsed
		}
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyEnv(os.Getenv)
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
