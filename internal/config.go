package internal

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	DefaultMaxQueueSize  = 1 << 20
	DefaultProgressEvery = 64
)

// Config holds the settings of one sync run. It can be loaded from a YAML
// file and is then overridden by flags given on the command line.
type Config struct {
	LocalDir      string `yaml:"local_dir"`
	Include       string `yaml:"include"`
	MaxQueueSize  int64  `yaml:"max_queue_size"`
	ProgressEvery int    `yaml:"progress_every"`

	LogDir   string `yaml:"log_dir"`
	LogLevel string `yaml:"log_level"`

	MetaAddr string `yaml:"meta_addr"`

	S3Endpoint    string `yaml:"s3_endpoint"`
	S3Region      string `yaml:"s3_region"`
	S3PathStyle   bool   `yaml:"s3_path_style"`
	MinioEndpoint string `yaml:"minio_endpoint"`
	MinioSecure   bool   `yaml:"minio_secure"`
}

func DefaultConfig() *Config {
	return &Config{
		LocalDir:      ".",
		MaxQueueSize:  DefaultMaxQueueSize,
		ProgressEvery: DefaultProgressEvery,
		LogLevel:      "info",
	}
}

// LoadConfigFile reads a YAML config on top of the defaults.
func LoadConfigFile(name string) (*Config, error) {
	conf := DefaultConfig()
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", name, err)
	}
	if err := yaml.Unmarshal(data, conf); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", name, err)
	}
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", name, err)
	}
	return conf, nil
}

func (c *Config) Validate() error {
	if c.LocalDir == "" {
		return fmt.Errorf("local_dir must not be empty")
	}
	if c.MaxQueueSize <= 0 {
		return fmt.Errorf("max_queue_size must be positive, got %d", c.MaxQueueSize)
	}
	if c.ProgressEvery <= 0 {
		return fmt.Errorf("progress_every must be positive, got %d", c.ProgressEvery)
	}
	return nil
}
