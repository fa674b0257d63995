// Package config loads and validates bridge configuration from YAML.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the bridge.
// All configuration is loaded from YAML and can be overridden by environment
// variables for secrets that should never sit in a checked-in file.
type Config struct {
	Bridge   BridgeConfig   `yaml:"bridge"`
	Cache    CacheConfig    `yaml:"cache"`
	TLS      TLSConfig      `yaml:"tls"`
	G2Server G2ServerConfig `yaml:"g2_server"`
	MDNS     MDNSConfig     `yaml:"mdns"`
	Timers   TimersConfig   `yaml:"timers"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// BridgeConfig identifies this bridge instance.
type BridgeConfig struct {
	ID     string `yaml:"id"`
	NodeID uint8  `yaml:"node_id"` // mDNS interface octet, 10.0.<node_id>.1
}

// CacheConfig contains connection settings for the replicated topic cache.
type CacheConfig struct {
	Addr          string `yaml:"addr"`
	Password      string `yaml:"password"`
	DB            int    `yaml:"db"`
	ChannelPrefix string `yaml:"channel_prefix"`
}

// TLSConfig contains the certificate pair the G2 server presents to clients.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// G2ServerConfig contains the inbound TLS WebSocket listener settings.
type G2ServerConfig struct {
	Port int `yaml:"port"`
}

// MDNSConfig contains discovery-listener settings.
type MDNSConfig struct {
	Service  string        `yaml:"service"`
	Interval time.Duration `yaml:"interval"`
}

// TimersConfig contains the reconciler's periodic tick intervals.
type TimersConfig struct {
	Valve     time.Duration `yaml:"valve"`
	Keepalive time.Duration `yaml:"keepalive"`
	ModeCheck time.Duration `yaml:"mode_check"`
}

// InfluxDBConfig contains settings for the optional energy-telemetry writer.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"` // seconds
}

// MetricsConfig contains the Prometheus exposition listener settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable
// overrides.
//
// Loading order:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values; secrets, cache address
//     and TLS paths)
//
// Environment variables follow the pattern DOMOBRIDGE_SECTION_KEY, e.g.
// DOMOBRIDGE_CACHE_PASSWORD, DOMOBRIDGE_INFLUXDB_TOKEN.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Bridge: BridgeConfig{
			ID:     "bridge-001",
			NodeID: 1,
		},
		Cache: CacheConfig{
			Addr:          "localhost:6379",
			DB:            0,
			ChannelPrefix: "domo",
		},
		G2Server: G2ServerConfig{
			Port: 5000,
		},
		MDNS: MDNSConfig{
			Service:  "_webthing._tcp",
			Interval: 5 * time.Second,
		},
		Timers: TimersConfig{
			Valve:     20 * time.Second,
			Keepalive: 10 * time.Second,
			ModeCheck: 10 * time.Second,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    ":9265",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides for the cache
// password and InfluxDB token, which should not live in a checked-in config
// file, and for the cache address and TLS certificate/key paths.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DOMOBRIDGE_CACHE_PASSWORD"); v != "" {
		cfg.Cache.Password = v
	}
	if v := os.Getenv("DOMOBRIDGE_CACHE_ADDR"); v != "" {
		cfg.Cache.Addr = v
	}
	if v := os.Getenv("DOMOBRIDGE_TLS_CERT_FILE"); v != "" {
		cfg.TLS.CertFile = v
	}
	if v := os.Getenv("DOMOBRIDGE_TLS_KEY_FILE"); v != "" {
		cfg.TLS.KeyFile = v
	}
	if v := os.Getenv("DOMOBRIDGE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for startup-fatal errors. A failure here
// is a FatalIO condition: the process must not start (spec §7, §6 exit codes).
func (c *Config) Validate() error {
	var errs []string

	if c.Bridge.ID == "" {
		errs = append(errs, "bridge.id is required")
	}

	if c.Cache.Addr == "" {
		errs = append(errs, "cache.addr is required")
	}

	if c.TLS.CertFile == "" || c.TLS.KeyFile == "" {
		errs = append(errs, "tls.cert_file and tls.key_file are required (G2 listener presents this certificate)")
	}

	if c.G2Server.Port < 1 || c.G2Server.Port > 65535 {
		errs = append(errs, "g2_server.port must be between 1 and 65535")
	}

	if c.Timers.Valve <= 0 || c.Timers.Keepalive <= 0 || c.Timers.ModeCheck <= 0 {
		errs = append(errs, "timers.valve, timers.keepalive and timers.mode_check must be positive")
	}

	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" || c.InfluxDB.Token == "" || c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.url, influxdb.token, influxdb.org and influxdb.bucket are required when influxdb.enabled is true")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}

	return nil
}
