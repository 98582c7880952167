package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var (
	base        zerolog.Logger
	initialized bool
	logFile     *os.File
)

// Options configures Init. The zero value logs JSON at info level to stdout.
type Options struct {
	Level  string // debug|info|warn|error (default: info)
	Pretty bool   // human-readable console output instead of JSON
	File   string // optional path; lines are appended there as JSON as well
}

// Init configures the global logger.
//
// When File is set the directory is created and every event is written both to
// stdout and to the file. A previous file sink is closed.
func Init(opts Options) error {
	level := parseLevel(opts.Level)

	zerolog.TimeFieldFormat = time.RFC3339Nano
	var w io.Writer = os.Stdout
	if opts.Pretty {
		w = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return fmt.Errorf("create log dir: %w", err)
		}
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		logFile = f
		w = zerolog.MultiLevelWriter(w, f)
	}

	base = zerolog.New(w).With().Timestamp().Logger().Level(level)
	zerolog.DefaultContextLogger = &base
	initialized = true
	return nil
}

// L returns the global logger. Call Init() once on startup.
func L() *zerolog.Logger {
	if !initialized {
		_ = Init(Options{Level: getenv("LOG_LEVEL", "info")})
	}
	return &base
}

// Close releases the file sink, if any.
func Close() {
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error", "err":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
