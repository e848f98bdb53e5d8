package config

import (
	"time"

	"github.com/danmuck/posewire/internal/logging"
	"github.com/danmuck/posewire/internal/protocol"
)

// DecodeOptions maps the [codec] section onto decoder options. cfg must have
// passed Validate.
func (cfg Config) DecodeOptions() protocol.DecodeOptions {
	policy, _ := protocol.ParseDuplicatePolicy(cfg.Codec.DuplicateKeys)
	return protocol.DecodeOptions{
		MaxDepth:   cfg.Codec.MaxDepth,
		Duplicates: policy,
	}.WithDefaults()
}

// Logging maps the [log] section onto a logger config.
func (cfg Config) Logging() logging.Config {
	out := logging.DefaultConfig(logging.ProfileRuntime)
	if lvl, ok := logging.ParseLevel(cfg.Log.Level); ok {
		out.Level = lvl
	}
	if f, ok := logging.ParseFormat(cfg.Log.Format); ok {
		out.Format = f
	}
	out.NoColor = cfg.Log.NoColor
	out.Timestamp = cfg.Log.Timestamp
	return out
}

// Timeouts returns the parsed server read/write timeouts.
func (cfg Config) Timeouts() (read, write time.Duration) {
	read, _ = parseTimeout("server.read_timeout", cfg.Server.ReadTimeout)
	write, _ = parseTimeout("server.write_timeout", cfg.Server.WriteTimeout)
	return read, write
}
