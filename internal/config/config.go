package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/posewire/internal/logging"
	"github.com/danmuck/posewire/internal/protocol"
)

// Config is the posewire config.toml layout.
type Config struct {
	Codec  CodecConfig  `toml:"codec"`
	Server ServerConfig `toml:"server"`
	Log    LogConfig    `toml:"log"`
}

type CodecConfig struct {
	MaxDepth      int    `toml:"max_depth"`
	DuplicateKeys string `toml:"duplicate_keys"`
	DefaultKeyID  uint16 `toml:"default_key_id"`
}

type ServerConfig struct {
	ID           string   `toml:"id"`
	Addr         string   `toml:"addr"`
	CorsOrigins  []string `toml:"cors_origins"`
	ReadTimeout  string   `toml:"read_timeout"`
	WriteTimeout string   `toml:"write_timeout"`
	MaxBodyBytes int64    `toml:"max_body_bytes"`
	AuthToken    string   `toml:"auth_token"`
}

type LogConfig struct {
	Level     string `toml:"level"`
	Format    string `toml:"format"`
	NoColor   bool   `toml:"no_color"`
	Timestamp bool   `toml:"timestamp"`
}

func Default() Config {
	return Config{
		Codec: CodecConfig{
			MaxDepth:      protocol.DefaultMaxDepth,
			DuplicateKeys: protocol.DuplicateLastWins.String(),
			DefaultKeyID:  1,
		},
		Server: ServerConfig{
			ID:           "posewire",
			Addr:         ":9200",
			CorsOrigins:  []string{"http://localhost:3000"},
			ReadTimeout:  "15s",
			WriteTimeout: "15s",
			MaxBodyBytes: 1 << 20,
		},
		Log: LogConfig{
			Level:     "info",
			Format:    string(logging.FormatConsole),
			Timestamp: true,
		},
	}
}

// Load reads path over the defaults. Keys the file does not set keep their
// default; keys this layout does not know are rejected.
func Load(path string) (Config, error) {
	cfg := Default()
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return Config{}, fmt.Errorf("config parse failed (%s): unknown keys %s", path, strings.Join(keys, ", "))
	}
	if meta.IsDefined("server", "id") && strings.TrimSpace(cfg.Server.ID) == "" {
		cfg.Server.ID = Default().Server.ID
	}
	if err := Validate(cfg); err != nil {
		return Config{}, fmt.Errorf("config invalid (%s): %w", path, err)
	}
	return cfg, nil
}

func Validate(cfg Config) error {
	if cfg.Codec.MaxDepth < protocol.MinMaxDepth {
		return fmt.Errorf("codec.max_depth must be >= %d, got %d", protocol.MinMaxDepth, cfg.Codec.MaxDepth)
	}
	if _, err := protocol.ParseDuplicatePolicy(cfg.Codec.DuplicateKeys); err != nil {
		return fmt.Errorf("codec.duplicate_keys: %w", err)
	}
	if strings.TrimSpace(cfg.Server.Addr) == "" {
		return fmt.Errorf("server.addr is required")
	}
	if _, err := parseTimeout("server.read_timeout", cfg.Server.ReadTimeout); err != nil {
		return err
	}
	if _, err := parseTimeout("server.write_timeout", cfg.Server.WriteTimeout); err != nil {
		return err
	}
	if cfg.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("server.max_body_bytes must be > 0")
	}
	if strings.TrimSpace(cfg.Log.Level) != "" {
		if _, ok := logging.ParseLevel(cfg.Log.Level); !ok {
			return fmt.Errorf("log.level: unknown level %q", cfg.Log.Level)
		}
	}
	if strings.TrimSpace(cfg.Log.Format) != "" {
		if _, ok := logging.ParseFormat(cfg.Log.Format); !ok {
			return fmt.Errorf("log.format: unknown format %q", cfg.Log.Format)
		}
	}
	return nil
}

func parseTimeout(name, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be > 0", name)
	}
	return d, nil
}
