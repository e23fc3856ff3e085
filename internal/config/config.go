// Package config loads client settings from TOML, YAML or JSON files and from
// ARCOR_* environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/bytedance/sonic"
	"gopkg.in/yaml.v3"

	"github.com/EgorLis/arcorclient/internal/locking"
	"github.com/EgorLis/arcorclient/internal/logging"
)

const (
	DefaultURL       = "ws://localhost:6789"
	DefaultReadLimit = 64 << 20
)

type Config struct {
	URL                   string         `toml:"url" yaml:"url" json:"url"`
	RPCTimeout            Duration       `toml:"rpc_timeout" yaml:"rpc_timeout" json:"rpc_timeout"`
	LockMode              string         `toml:"lock_mode" yaml:"lock_mode" json:"lock_mode"` // auto | none
	ValidateResponseNames bool           `toml:"validate_response_names" yaml:"validate_response_names" json:"validate_response_names"`
	UserName              string         `toml:"user_name" yaml:"user_name" json:"user_name"`
	PingInterval          Duration       `toml:"ping_interval" yaml:"ping_interval" json:"ping_interval"`
	WriteTimeout          Duration       `toml:"write_timeout" yaml:"write_timeout" json:"write_timeout"`
	ReadLimit             int64          `toml:"read_limit" yaml:"read_limit" json:"read_limit"`
	Log                   logging.Config `toml:"log" yaml:"log" json:"log"`
}

func Default() Config {
	return Config{
		URL:                   DefaultURL,
		RPCTimeout:            Duration(15 * time.Second),
		LockMode:              locking.AutoLock.String(),
		ValidateResponseNames: true,
		WriteTimeout:          Duration(5 * time.Second),
		ReadLimit:             DefaultReadLimit,
		Log:                   logging.DefaultConfig(),
	}
}

// Load reads path over the defaults. The format follows the extension. A
// missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, err
	}
	if err := decode(path, b, &cfg); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func decode(path string, b []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		_, err := toml.Decode(string(b), cfg)
		return err
	case ".yaml", ".yml":
		return yaml.Unmarshal(b, cfg)
	case ".json":
		return sonic.ConfigStd.Unmarshal(b, cfg)
	default:
		return fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}
}

func encode(path string, cfg Config) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Marshal(cfg)
	case ".json":
		return sonic.ConfigStd.MarshalIndent(cfg, "", "  ")
	default:
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
}

// Save writes cfg to path in the format given by the extension, TOML when it is
// not recognised.
func Save(path string, cfg Config) error {
	b, err := encode(path, cfg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

// ApplyEnv overrides fields from ARCOR_* variables.
func (c *Config) ApplyEnv() error {
	if v, ok := os.LookupEnv("ARCOR_URL"); ok {
		c.URL = v
	}
	if v, ok := os.LookupEnv("ARCOR_RPC_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("ARCOR_RPC_TIMEOUT: %w", err)
		}
		c.RPCTimeout = Duration(d)
	}
	if v, ok := os.LookupEnv("ARCOR_LOCK_MODE"); ok {
		c.LockMode = v
	}
	if v, ok := os.LookupEnv("ARCOR_VALIDATE_RESPONSES"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("ARCOR_VALIDATE_RESPONSES: %w", err)
		}
		c.ValidateResponseNames = b
	}
	if v, ok := os.LookupEnv("ARCOR_USER"); ok {
		c.UserName = v
	}
	if v, ok := os.LookupEnv("ARCOR_LOG_LEVEL"); ok {
		c.Log.Level = v
	}
	if v, ok := os.LookupEnv("ARCOR_LOG_NOCOLOR"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("ARCOR_LOG_NOCOLOR: %w", err)
		}
		c.Log.NoColor = b
	}
	return nil
}

func (c Config) Validate() error {
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("url: scheme must be ws or wss, got %q", u.Scheme)
	}
	if c.RPCTimeout <= 0 {
		return errors.New("rpc_timeout must be positive")
	}
	if _, err := c.Mode(); err != nil {
		return err
	}
	if c.ReadLimit < 0 {
		return errors.New("read_limit must not be negative")
	}
	return nil
}

// Mode parses LockMode.
func (c Config) Mode() (locking.Mode, error) {
	return locking.ParseMode(c.LockMode)
}
