package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config is the on-disk daemon configuration. Missing files are created with
// defaults so a fresh checkout boots without hand-editing.
type Config struct {
	ListenAddress     string   `toml:"ListenAddress"`
	DataDir           string   `toml:"DataDir"`
	StorageBackend    string   `toml:"StorageBackend"`
	ServiceName       string   `toml:"ServiceName"`
	Environment       string   `toml:"Environment"`
	VaultAddress      string   `toml:"VaultAddress"`
	RewardsPool       string   `toml:"RewardsPool"`
	Oracles           []string `toml:"Oracles"`
	RequestsPerMinute int      `toml:"RequestsPerMinute"`
	RateBurst         int      `toml:"RateBurst"`

	Log  LogConfig  `toml:"log"`
	OTLP OTLPConfig `toml:"otlp"`
}

// LogConfig controls optional file logging with rotation.
type LogConfig struct {
	Path       string `toml:"Path"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
}

// OTLPConfig points the telemetry exporters at a collector.
type OTLPConfig struct {
	Endpoint string `toml:"Endpoint"`
	Insecure bool   `toml:"Insecure"`
}

// Load reads the configuration at path, creating a default file when none
// exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.ListenAddress) == "" {
		c.ListenAddress = "127.0.0.1:8645"
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./splitd-data"
	}
	if strings.TrimSpace(c.StorageBackend) == "" {
		c.StorageBackend = "leveldb"
	}
	if strings.TrimSpace(c.ServiceName) == "" {
		c.ServiceName = "splitd"
	}
	if strings.TrimSpace(c.Environment) == "" {
		c.Environment = "dev"
	}
	if c.RequestsPerMinute <= 0 {
		c.RequestsPerMinute = 600
	}
	if c.RateBurst <= 0 {
		c.RateBurst = 50
	}
	if c.Oracles == nil {
		c.Oracles = []string{}
	}
}

// Validate rejects configurations the daemon cannot run with.
func (c *Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.StorageBackend)) {
	case "leveldb", "bolt", "memory":
	default:
		return fmt.Errorf("config: unknown storage backend %q", c.StorageBackend)
	}
	if strings.TrimSpace(c.VaultAddress) == "" {
		return fmt.Errorf("config: VaultAddress is required")
	}
	if strings.TrimSpace(c.RewardsPool) == "" {
		return fmt.Errorf("config: RewardsPool is required")
	}
	if c.VaultAddress == c.RewardsPool {
		return fmt.Errorf("config: VaultAddress and RewardsPool must differ")
	}
	return nil
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{
		VaultAddress: "0x0000000000000000000000000000000000000101",
		RewardsPool:  "0x0000000000000000000000000000000000000102",
	}
	cfg.applyDefaults()

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
