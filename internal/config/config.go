// Package config provides YAML-backed configuration for the gasreld dispatcher.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the dispatcher daemon.
type Config struct {
	// Server settings for the health surface and event bus listener.
	Server ServerConfig `yaml:"server"`

	// Store holds relational store connection settings.
	Store StoreConfig `yaml:"store"`

	// Chain holds blockchain network settings.
	Chain ChainConfig `yaml:"chain"`

	// Sponsor holds the server-owned signing account.
	Sponsor SponsorConfig `yaml:"sponsor"`

	// Dispatcher holds queue-processing tunables.
	Dispatcher DispatcherConfig `yaml:"dispatcher"`

	// Logging settings.
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig holds host/port and event bus settings.
type ServerConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	EventPath   string `yaml:"event_path"`
	CORSOrigin  string `yaml:"cors_origin"`
}

// StoreConfig holds relational store connection settings.
type StoreConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
}

// DSN builds a lib/pq connection string from the store settings.
func (s StoreConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		s.Host, s.Port, s.Database, s.User, s.Password, s.SSLMode,
	)
}

// ChainConfig holds blockchain network settings.
type ChainConfig struct {
	// Network is the chain network name (e.g. "mainnet", "testnet", "devnet").
	Network string `yaml:"network"`

	// URL overrides the default RPC URL for Network, if set.
	URL string `yaml:"url,omitempty"`

	// PackageID is the Move package id published for this network.
	PackageID string `yaml:"package_id"`

	// RegistryID is the badge registry object id for this network.
	RegistryID string `yaml:"registry_id"`

	// GasBudget is the MIST budget attached to every submitted transaction.
	GasBudget uint64 `yaml:"gas_budget"`
}

// SponsorConfig holds the sponsor account's signing material.
type SponsorConfig struct {
	// Secret accepts a BIP39 mnemonic, a "suiprivkey"-prefixed bech32 string,
	// or a 64-hex-character raw secret (optional 0x prefix).
	// May be supplied via the GASRELD_SPONSOR_SECRET environment variable instead
	// of this field, so it need not live in a config file on disk.
	Secret string `yaml:"secret,omitempty"`

	// Address is the sponsor's on-chain address, used only to validate that the
	// decoded keypair matches the operator's expectation.
	Address string `yaml:"address,omitempty"`
}

// DispatcherConfig holds queue-processing tunables.
type DispatcherConfig struct {
	// ProcessingIntervalMS is how often the dispatcher scans for active actors.
	ProcessingIntervalMS int `yaml:"processing_interval_ms"`

	// MaxRetries is the retry cap before an intent is marked Failed.
	MaxRetries int `yaml:"max_retries"`

	// RetryBaseDelayMS is the base linear backoff delay.
	RetryBaseDelayMS int `yaml:"retry_base_delay_ms"`
}

// ProcessingInterval returns ProcessingIntervalMS as a time.Duration.
func (d DispatcherConfig) ProcessingInterval() time.Duration {
	return time.Duration(d.ProcessingIntervalMS) * time.Millisecond
}

// RetryBaseDelay returns RetryBaseDelayMS as a time.Duration.
func (d DispatcherConfig) RetryBaseDelay() time.Duration {
	return time.Duration(d.RetryBaseDelayMS) * time.Millisecond
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the log level (debug, info, warn, error).
	Level string `yaml:"level"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:       "0.0.0.0",
			Port:       8080,
			EventPath:  "/ws",
			CORSOrigin: "*",
		},
		Store: StoreConfig{
			Host:     "localhost",
			Port:     5432,
			Database: "gasreld",
			User:     "gasreld",
			SSLMode:  "disable",
		},
		Chain: ChainConfig{
			Network:   "mainnet",
			GasBudget: 100_000_000,
		},
		Dispatcher: DispatcherConfig{
			ProcessingIntervalMS: 1000,
			MaxRetries:           3,
			RetryBaseDelayMS:     5000,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// ConfigFileName is the default config file name.
const ConfigFileName = "config.yaml"

const sponsorSecretEnvVar = "GASRELD_SPONSOR_SECRET"

// LoadConfig loads configuration from a YAML file under dataDir.
// If the file doesn't exist, it creates one with default values.
// The sponsor secret, if present in the environment, always overrides the file.
func LoadConfig(dataDir string) (*Config, error) {
	expandedDir := expandPath(dataDir)
	configPath := filepath.Join(expandedDir, ConfigFileName)

	var cfg *Config

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg = DefaultConfig()
		if err := cfg.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	} else {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		cfg = DefaultConfig()
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if secret := os.Getenv(sponsorSecretEnvVar); secret != "" {
		cfg.Sponsor.Secret = secret
	}

	return cfg, nil
}

// Save writes the configuration to a YAML file. The sponsor secret is never
// persisted to disk by Save; callers that round-trip a loaded Config should
// supply secrets via the environment instead.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	toWrite := *c
	toWrite.Sponsor.Secret = ""

	data, err := yaml.Marshal(&toWrite)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte("# gasreld dispatcher configuration\n# Generated automatically on first run\n\n")
	data = append(header, data...)

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ConfigPath returns the full path to the config file for the given data directory.
func ConfigPath(dataDir string) string {
	return filepath.Join(expandPath(dataDir), ConfigFileName)
}

// expandPath expands ~ to home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}
