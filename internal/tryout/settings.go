package tryout

import (
	"errors"
	"fmt"
	"strings"
	"time"

	goNoPass "github.com/MrEthical07/goNoPass"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of environment overrides. Nested keys use a
// double underscore: NOPASS_REDIS__ADDR sets redis.addr.
const EnvPrefix = "NOPASS_"

// Settings is the tool configuration. Priority: flag > env > file.
type Settings struct {
	BaseURL  string        `koanf:"base_url"`
	ClientID string        `koanf:"client_id"`
	Secret   string        `koanf:"secret"`
	Dev      bool          `koanf:"dev"`
	Verbose  bool          `koanf:"verbose"`
	Silent   bool          `koanf:"silent"`
	Timeout  time.Duration `koanf:"timeout"`
	Redis    RedisSettings `koanf:"redis"`
}

// RedisSettings enables the challenge pairing check when Addr is set.
type RedisSettings struct {
	Addr   string        `koanf:"addr"`
	Prefix string        `koanf:"prefix"`
	TTL    time.Duration `koanf:"ttl"`
}

var errReadBytesNotSupported = errors.New("tryout: map provider only supports Read")

// mapProvider feeds explicitly set flags to koanf.
type mapProvider map[string]any

func (m mapProvider) ReadBytes() ([]byte, error) { return nil, errReadBytesNotSupported }
func (m mapProvider) Read() (map[string]any, error) {
	return m, nil
}

// loadSettings merges the YAML file at path (optional), NOPASS_* variables
// and flags, in that order.
func loadSettings(path string, flags map[string]any) (Settings, error) {
	k := koanf.New(".")

	if err := k.Load(mapProvider{"timeout": "30s"}, nil); err != nil {
		return Settings{}, fmt.Errorf("load defaults: %w", err)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Settings{}, fmt.Errorf("load config file %s: %w", path, err)
		}
	}
	envKey := func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(s, "__", ".")
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return Settings{}, fmt.Errorf("load env: %w", err)
	}
	if len(flags) > 0 {
		if err := k.Load(mapProvider(flags), nil); err != nil {
			return Settings{}, fmt.Errorf("load flags: %w", err)
		}
	}

	var s Settings
	if err := k.Unmarshal("", &s); err != nil {
		return Settings{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return s, nil
}

// clientConfig maps Settings onto a client configuration.
func (s Settings) clientConfig() goNoPass.Config {
	cfg := goNoPass.DefaultConfig()
	cfg.BaseURL = s.BaseURL
	cfg.ClientID = s.ClientID
	cfg.SharedSecretKey = s.Secret
	cfg.Verbose = s.Verbose
	cfg.Silent = s.Silent
	cfg.Dev = s.Dev
	cfg.HTTP.Timeout = s.Timeout
	return cfg
}
