// Package logging sets up the process-wide zerolog logger from environment variables.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config is read from PFTMAPS_LOG_* environment variables.
type Config struct {
	Level  string `env:"PFTMAPS_LOG_LEVEL" envDefault:"info"`
	Format string `env:"PFTMAPS_LOG_FORMAT" envDefault:"console"`
}

// ParseEnv loads Config from the environment.
func ParseEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// New builds a logger writing to out. Unknown levels and formats are errors.
func New(app string, cfg Config, out io.Writer) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	switch strings.ToLower(cfg.Format) {
	case "console", "":
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	case "json":
	default:
		return zerolog.Nop(), fmt.Errorf("invalid log format %q, want console or json", cfg.Format)
	}

	return zerolog.New(out).Level(level).With().Timestamp().Str("app", app).Logger(), nil
}

// Init configures the global logger from the environment and returns it.
// Configuration errors fall back to console/info and are logged as warnings.
func Init(app string) zerolog.Logger {
	cfg, err := ParseEnv()
	if err == nil {
		var logger zerolog.Logger
		if logger, err = New(app, cfg, os.Stderr); err == nil {
			log.Logger = logger
			return logger
		}
	}

	logger, _ := New(app, Config{Level: "info", Format: "console"}, os.Stderr)
	logger.Warn().Err(err).Msg("ignoring invalid logging configuration")
	log.Logger = logger
	return logger
}
