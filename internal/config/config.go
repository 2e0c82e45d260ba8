package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v2"
)

// Cache backends
const (
	CacheBackendNone   = "none"
	CacheBackendFile   = "file"
	CacheBackendBadger = "badger"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Generation GenerationConfig `yaml:"generation"`
	Index      IndexConfig      `yaml:"index"`
	Cache      CacheConfig      `yaml:"cache"`
	Mcp        McpConfig        `yaml:"mcp"`
}

type AppConfig struct {
	Port        int      `yaml:"port" validate:"gte=1,lte=65535"`
	LogLevel    string   `yaml:"log_level" validate:"oneof=debug info warn error"`
	LogOutputs  []string `yaml:"log_outputs" validate:"min=1"`
	MaxTokens   int      `yaml:"max_tokens" validate:"gte=0"` // 0 = unlimited corpus size
	MaxLength   int      `yaml:"max_length" validate:"gte=1"` // largest length a request may ask for
	ReleaseMode bool     `yaml:"release_mode"`
}

type GenerationConfig struct {
	DefaultLength  int      `yaml:"default_length" validate:"gte=1"`
	MaxStepsFactor int      `yaml:"max_steps_factor" validate:"gte=1"`
	Exclude        []string `yaml:"exclude"`
}

type IndexConfig struct {
	PruneSingletons   bool    `yaml:"prune_singletons"`
	ExpectedTrigrams  uint    `yaml:"expected_trigrams"`
	FalsePositiveRate float64 `yaml:"false_positive_rate" validate:"gte=0,lt=1"`
}

type CacheConfig struct {
	Backend       string `yaml:"backend" validate:"oneof=none file badger"`
	Dir           string `yaml:"dir"`
	InMemory      bool   `yaml:"in_memory"`
	SyncWrites    bool   `yaml:"sync_writes"`
	FailOnCorrupt bool   `yaml:"fail_on_corrupt"`
}

type McpConfig struct {
	Enabled bool   `yaml:"enabled"`
	Name    string `yaml:"name" validate:"required_if=Enabled true"`
	Version string `yaml:"version"`
}

var validate = validator.New()

// Default returns the configuration used when no file is given
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// LoadConfig reads a YAML config file, fills defaults and validates it
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return ParseConfig(data)
}

// ParseConfig parses YAML config bytes, fills defaults and validates the result
func ParseConfig(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.UnmarshalStrict(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Port == 0 {
		c.App.Port = 8080
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if len(c.App.LogOutputs) == 0 {
		c.App.LogOutputs = []string{"stdout"}
	}
	if c.App.MaxLength == 0 {
		c.App.MaxLength = 10000
	}
	if c.Generation.DefaultLength == 0 {
		c.Generation.DefaultLength = 100
	}
	if c.Generation.MaxStepsFactor == 0 {
		c.Generation.MaxStepsFactor = 10
	}
	if c.Index.ExpectedTrigrams == 0 {
		c.Index.ExpectedTrigrams = 100000
	}
	if c.Index.FalsePositiveRate == 0 {
		c.Index.FalsePositiveRate = 0.01
	}
	if c.Cache.Backend == "" {
		c.Cache.Backend = CacheBackendNone
	}
	if c.Cache.Dir == "" {
		c.Cache.Dir = "./trigram_cache"
	}
	if c.Mcp.Name == "" {
		c.Mcp.Name = "markov-go"
	}
	if c.Mcp.Version == "" {
		c.Mcp.Version = "1.0.0"
	}
}

// GetAddress returns the HTTP listen address
func (a AppConfig) GetAddress() string {
	return fmt.Sprintf(":%d", a.Port)
}

// NewLogger builds a production zap logger at the configured level
func NewLogger(cfg AppConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}

	cfgZap := zap.NewProductionConfig()
	cfgZap.Level.SetLevel(level)
	cfgZap.OutputPaths = cfg.LogOutputs
	return cfgZap.Build()
}
