// Package config loads the engine configuration from YAML or JSON files.
package config

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/aretw0/rehearsal/pkg/adapters/process"
	"github.com/aretw0/rehearsal/pkg/domain"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Environment variables that override file values.
const (
	EnvLogLevel  = "REHEARSAL_LOG_LEVEL"
	EnvRedisAddr = "REHEARSAL_REDIS_ADDR"
	EnvHTTPAddr  = "REHEARSAL_HTTP_ADDR"
)

// Config is the root configuration structure.
type Config struct {
	LogLevel             string            `mapstructure:"log_level"`
	DefaultTimeout       time.Duration     `mapstructure:"default_timeout"`
	AsyncTimeout         time.Duration     `mapstructure:"async_timeout"`
	MessageStoreCapacity int               `mapstructure:"message_store_capacity"`
	MaxResolveDepth      int               `mapstructure:"max_resolve_depth"`
	GlobalVariables      map[string]string `mapstructure:"global_variables"`
	Redis                RedisConfig       `mapstructure:"redis"`
	HTTP                 HTTPConfig        `mapstructure:"http"`
	Results              ResultsConfig     `mapstructure:"results"`
	Commands             []process.Command `mapstructure:"commands"`
}

// RedisConfig selects the Redis result store. An empty Addr keeps results in memory.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Prefix   string        `mapstructure:"prefix"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// HTTPConfig configures the results API.
type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

// ResultsConfig protects failure causes before they are stored. Keys are
// base64 encoded 32 byte AES keys.
type ResultsConfig struct {
	Redact        []string `mapstructure:"redact"`
	EncryptionKey string   `mapstructure:"encryption_key"`
	FallbackKeys  []string `mapstructure:"fallback_keys"`
}

// Keys decodes the encryption keys. A nil active key means encryption is off.
func (r ResultsConfig) Keys() (active []byte, fallback [][]byte, err error) {
	if r.EncryptionKey == "" {
		return nil, nil, nil
	}
	decode := func(field, s string) ([]byte, error) {
		key, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %s is not valid base64", domain.ErrInvalidConfiguration, field)
		}
		if len(key) != 32 {
			return nil, fmt.Errorf("%w: %s must decode to 32 bytes, got %d", domain.ErrInvalidConfiguration, field, len(key))
		}
		return key, nil
	}
	if active, err = decode("results.encryption_key", r.EncryptionKey); err != nil {
		return nil, nil, err
	}
	for i, s := range r.FallbackKeys {
		key, err := decode(fmt.Sprintf("results.fallback_keys[%d]", i), s)
		if err != nil {
			return nil, nil, err
		}
		fallback = append(fallback, key)
	}
	return active, fallback, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		LogLevel:             "info",
		DefaultTimeout:       5 * time.Second,
		AsyncTimeout:         30 * time.Second,
		MessageStoreCapacity: 100,
		MaxResolveDepth:      20,
		GlobalVariables:      map[string]string{},
		HTTP:                 HTTPConfig{Addr: ":8080"},
	}
}

// Load reads path on top of the defaults. A missing file yields the
// defaults. Files ending in .json are parsed as JSON, anything else as YAML.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		cfg.applyEnv()
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg.applyEnv()
			return cfg, cfg.Validate()
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	raw := map[string]any{}
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		err = json.Unmarshal(data, &raw)
	} else {
		err = yaml.Unmarshal(data, &raw)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := Decode(raw, cfg); err != nil {
		return nil, err
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Decode merges a generic map (as produced by a YAML or JSON decoder) into cfg.
// Durations accept strings such as "1500ms" or "2m".
func Decode(raw map[string]any, cfg *Config) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return fmt.Errorf("creating config decoder: %w", err)
	}
	if err := dec.Decode(raw); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidConfiguration, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvRedisAddr); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv(EnvHTTPAddr); v != "" {
		c.HTTP.Addr = v
	}
}

// Validate rejects negative durations and capacities, bad result
// protection settings and malformed command entries.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf("%w: "+format, append([]any{domain.ErrInvalidConfiguration}, args...)...))
		}
	}
	check(c.DefaultTimeout >= 0, "default_timeout must not be negative, got %s", c.DefaultTimeout)
	check(c.AsyncTimeout >= 0, "async_timeout must not be negative, got %s", c.AsyncTimeout)
	check(c.MessageStoreCapacity >= 0, "message_store_capacity must not be negative, got %d", c.MessageStoreCapacity)
	check(c.MaxResolveDepth >= 0, "max_resolve_depth must not be negative, got %d", c.MaxResolveDepth)
	check(c.Redis.TTL >= 0, "redis.ttl must not be negative, got %s", c.Redis.TTL)
	check(c.Redis.DB >= 0, "redis.db must not be negative, got %d", c.Redis.DB)
	for _, p := range c.Results.Redact {
		_, err := regexp.Compile(p)
		check(err == nil, "results.redact pattern %q: %v", p, err)
	}
	if _, _, err := c.Results.Keys(); err != nil {
		errs = append(errs, err)
	}
	seen := make(map[string]bool, len(c.Commands))
	for i, cmd := range c.Commands {
		check(cmd.Name != "", "commands[%d] has no name", i)
		check(cmd.Path != "", "commands[%d] (%q) has no command", i, cmd.Name)
		check(!seen[cmd.Name], "commands[%d]: duplicate name %q", i, cmd.Name)
		seen[cmd.Name] = true
	}
	return errors.Join(errs...)
}
