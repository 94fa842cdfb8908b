package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Config is the daemon configuration. Values come from the defaults, then
// the YAML file, then TORRENTRPC_* environment variables.
type Config struct {
	RPC       RPCConfig       `yaml:"rpc" envPrefix:"RPC_"`
	Storage   StorageConfig   `yaml:"storage" envPrefix:"STORAGE_"`
	Scheduler SchedulerConfig `yaml:"scheduler" envPrefix:"SCHEDULER_"`
	Log       LogConfig       `yaml:"log" envPrefix:"LOG_"`
	// Startup holds command lines run once the engine is ready.
	Startup []string `yaml:"startup" env:"STARTUP" envSeparator:";"`
}

type RPCConfig struct {
	Listen     string `yaml:"listen" env:"LISTEN"`
	GRPCListen string `yaml:"grpc_listen" env:"GRPC_LISTEN"`
	Dialect    string `yaml:"dialect" env:"DIALECT"`
	// SizeLimit is a human readable size such as "2 MiB".
	SizeLimit string `yaml:"size_limit" env:"SIZE_LIMIT"`
	Readonly  bool   `yaml:"readonly" env:"READONLY"`
}

type StorageConfig struct {
	// Path of the SQLite database holding user methods. Empty disables
	// persistence.
	Path string `yaml:"path" env:"PATH"`
}

type SchedulerConfig struct {
	MaxActive int64 `yaml:"max_active" env:"MAX_ACTIVE"`
}

type LogConfig struct {
	Level string `yaml:"level" env:"LEVEL"`
}

func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		RPC: RPCConfig{
			Listen:     "127.0.0.1:5000",
			GRPCListen: "127.0.0.1:5001",
			Dialect:    DialectI8,
			SizeLimit:  humanize.IBytes(DefaultSizeLimit),
		},
		Storage: StorageConfig{
			Path: filepath.Join(homeDir, ".torrentrpc", "methods.db"),
		},
		Scheduler: SchedulerConfig{MaxActive: -1},
		Log:       LogConfig{Level: "info"},
	}
}

// DefaultPath returns the default configuration file path.
func DefaultPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".torrentrpc", "config.yaml")
}

// Load reads path over the defaults and applies environment overrides. A
// missing file is not an error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := ParseEnv(cfg); err != nil {
		return nil, err
	}
	if _, err := cfg.SizeLimitBytes(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseEnv applies TORRENTRPC_* variables to cfg.
func ParseEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Save writes cfg as YAML, creating the directory if needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		path = DefaultPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// SizeLimitBytes parses RPC.SizeLimit. An empty value is the default.
func (c *Config) SizeLimitBytes() (uint64, error) {
	if c.RPC.SizeLimit == "" {
		return DefaultSizeLimit, nil
	}
	n, err := humanize.ParseBytes(c.RPC.SizeLimit)
	if err != nil {
		return 0, fmt.Errorf("rpc.size_limit: %w", err)
	}
	if n == 0 || n > MaxSizeLimit {
		return 0, fmt.Errorf("rpc.size_limit: %s is outside 1 B to %s", c.RPC.SizeLimit, humanize.IBytes(MaxSizeLimit))
	}
	return n, nil
}
