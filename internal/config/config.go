package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Backend names accepted in the config file.
const (
	BackendSystem  = "system"
	BackendKeyring = "keyring"
	BackendMemory  = "memory"
)

// Config holds keyguard configuration loaded from ~/.keyguard/config.yaml.
type Config struct {
	// Prefix is prepended to every key before it reaches the backend.
	Prefix         string `yaml:"prefix"`
	Service        string `yaml:"service"`
	AccessGroup    string `yaml:"access_group"`
	Synchronizable bool   `yaml:"synchronizable"`
	Backend        string `yaml:"backend"`

	AuditLog     string `yaml:"audit_log"`
	MetadataPath string `yaml:"metadata_path"`

	// Daemon settings.
	Socket    string  `yaml:"socket"`
	RateLimit float64 `yaml:"rate_limit"` // requests per second, 0 disables
	RateBurst int     `yaml:"rate_burst"`
}

// Home returns the keyguard home directory (~/.keyguard).
func Home() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".keyguard")
}

// DefaultPath returns the default config file path: ~/.keyguard/config.yaml.
func DefaultPath() string {
	home := Home()
	if home == "" {
		return ""
	}
	return filepath.Join(home, "config.yaml")
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	home := Home()
	return &Config{
		Prefix:       "keyguard.",
		Service:      "com.keyguard",
		Backend:      BackendSystem,
		AuditLog:     filepath.Join(home, "audit.log"),
		MetadataPath: filepath.Join(home, "secret-metadata.json"),
		Socket:       filepath.Join(home, "keyguard.sock"),
		RateLimit:    20,
		RateBurst:    40,
	}
}

// Load reads a YAML config file from path over the defaults. If the file
// does not exist, it returns the defaults and no error. An empty or
// all-comment file also returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks field values.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendSystem, BackendKeyring, BackendMemory:
	default:
		return fmt.Errorf("unknown backend %q (want %s, %s or %s)", c.Backend, BackendSystem, BackendKeyring, BackendMemory)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate_limit must not be negative, got %v", c.RateLimit)
	}
	if c.RateBurst < 0 {
		return fmt.Errorf("rate_burst must not be negative, got %d", c.RateBurst)
	}
	if c.RateLimit > 0 && c.RateBurst == 0 {
		return errors.New("rate_burst must be positive when rate_limit is set")
	}
	return nil
}
