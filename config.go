package nextrush

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Config holds the `App`'s static configuration, mirroring spec section 6's
// configuration table. Grounded on teacher air.go's `Config`/`Air` field
// list, trimmed of the ACME/HTTP2/PROXY-protocol fields this module's
// non-goals exclude and extended with the spec's rate-limit/CORS/static
// knobs.
type Config struct {
	Address string `mapstructure:"address"`

	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`

	// TrustProxy enables X-Forwarded-*/X-Real-IP based IP, host, and
	// scheme resolution (see request.go).
	TrustProxy bool `mapstructure:"trust_proxy"`

	// MaxBodyBytes bounds request body size before a `KindPayloadTooLarge`
	// error is raised (see bodyparser.go).
	MaxBodyBytes int64 `mapstructure:"max_body_bytes"`

	// RouteCacheSize bounds the router's LRU result cache (see router.go).
	RouteCacheSize int `mapstructure:"route_cache_size"`

	// StaticCacheBytes bounds the in-memory static asset cache (see
	// static.go).
	StaticCacheBytes int `mapstructure:"static_cache_bytes"`

	LogFormat string `mapstructure:"log_format"`
	LogJSON   bool   `mapstructure:"log_json"`
	DebugMode bool   `mapstructure:"debug_mode"`
}

// DefaultConfig returns the `Config` a new `App` starts with.
func DefaultConfig() Config {
	return Config{
		Address:          ":8080",
		ReadTimeout:      15 * time.Second,
		WriteTimeout:     15 * time.Second,
		IdleTimeout:      60 * time.Second,
		MaxBodyBytes:     10 << 20,
		RouteCacheSize:   2048,
		StaticCacheBytes: 64 << 20,
		LogFormat:        defaultLogFormat,
	}
}

// LoadConfig reads the config file at path (TOML, YAML, or JSON-as-YAML,
// selected by extension) into a generic map, then decodes it onto base via
// `mapstructure`, matching teacher air.go's `Serve()` config-file handling
// in spirit: read the whole file, decode loosely, keep zero-value fields
// at their defaults.
func LoadConfig(path string, base Config) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("nextrush: read config: %w", err)
	}

	var generic map[string]interface{}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(raw), &generic); err != nil {
			return base, fmt.Errorf("nextrush: parse toml config: %w", err)
		}
	case ".yaml", ".yml", ".json":
		if err := yaml.Unmarshal(raw, &generic); err != nil {
			return base, fmt.Errorf("nextrush: parse yaml config: %w", err)
		}
	default:
		return base, fmt.Errorf("nextrush: unrecognized config extension for %s", path)
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &base,
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return base, fmt.Errorf("nextrush: build config decoder: %w", err)
	}

	if err := decoder.Decode(generic); err != nil {
		return base, fmt.Errorf("nextrush: decode config: %w", err)
	}

	return base, nil
}
