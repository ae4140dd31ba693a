package config

// AuthConfig configures bearer token verification for write routes.
type AuthConfig struct {
	Enabled    bool   `toml:"Enabled"`
	HMACSecret string `toml:"HMACSecret"`
	Issuer     string `toml:"Issuer"`
	Audience   string `toml:"Audience"`
	// ClockSkew is a duration string such as "2m".
	ClockSkew string `toml:"ClockSkew"`
}

// RateLimitConfig bounds requests per client key.
type RateLimitConfig struct {
	RequestsPerMinute float64 `toml:"RequestsPerMinute"`
	Burst             int     `toml:"Burst"`
}

type LoggingConfig struct {
	Level      string `toml:"Level"`
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
}

// TelemetryConfig controls the OTLP exporters. Endpoint, Insecure and Headers
// may be overridden by the standard OTEL_EXPORTER_OTLP_* variables.
type TelemetryConfig struct {
	Endpoint string `toml:"Endpoint"`
	Insecure bool   `toml:"Insecure"`
	Headers  string `toml:"Headers"`
	Traces   bool   `toml:"Traces"`
	Metrics  bool   `toml:"Metrics"`
}

type FaucetConfig struct {
	Enabled bool `toml:"Enabled"`
}

// Allocation credits Amount (a base-10 integer string) to Address at genesis.
type Allocation struct {
	Address string `toml:"Address"`
	Amount  string `toml:"Amount"`
}

type GenesisConfig struct {
	Allocations []Allocation `toml:"Allocations"`
}
