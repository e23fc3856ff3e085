package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config selects level, format and destination of the process logger.
type Config struct {
	Level    string `json:"level" toml:"level" yaml:"level"`
	Format   string `json:"format" toml:"format" yaml:"format"` // console | json
	Output   string `json:"output" toml:"output" yaml:"output"` // stdout | stderr | file
	FilePath string `json:"file_path" toml:"file_path" yaml:"file_path"`
	NoColor  bool   `json:"no_color" toml:"no_color" yaml:"no_color"`
}

// DefaultConfig logs info and above to stderr in console format.
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Format: "console",
		Output: "stderr",
	}
}

// Setup builds the process logger from cfg and installs it as the zerolog
// global logger.
func Setup(cfg Config) (zerolog.Logger, error) {
	level := zerolog.InfoLevel
	if strings.TrimSpace(cfg.Level) != "" {
		lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		level = lvl
	}

	var console bool
	switch strings.ToLower(cfg.Format) {
	case "", "console":
		console = true
	case "json":
	default:
		return zerolog.Nop(), fmt.Errorf("unknown log format %q", cfg.Format)
	}

	var out io.Writer
	var file *os.File
	switch strings.ToLower(cfg.Output) {
	case "", "stderr":
		file = os.Stderr
	case "stdout":
		file = os.Stdout
	case "file":
		if cfg.FilePath == "" {
			return zerolog.Nop(), fmt.Errorf("log output file requires file_path")
		}
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o755); err != nil {
			return zerolog.Nop(), fmt.Errorf("create log dir: %w", err)
		}
		f, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("open log file %q: %w", cfg.FilePath, err)
		}
		file = f
	default:
		return zerolog.Nop(), fmt.Errorf("unknown log output %q", cfg.Output)
	}
	out = file
	if console {
		out = zerolog.ConsoleWriter{
			Out:        file,
			TimeFormat: time.RFC3339,
			NoColor:    cfg.NoColor || !isatty.IsTerminal(file.Fd()),
		}
	}

	logger := zerolog.New(out).Level(level).With().Timestamp().Logger()
	log.Logger = logger
	return logger, nil
}

// TestingLog is the subset of testing.TB used by ForTest.
type TestingLog interface {
	Log(args ...any)
	Logf(format string, args ...any)
	Helper()
}

// ForTest returns a debug level logger that writes through t.
func ForTest(t TestingLog) zerolog.Logger {
	return zerolog.New(zerolog.NewTestWriter(t)).Level(zerolog.DebugLevel).With().Timestamp().Logger()
}
