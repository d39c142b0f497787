package common

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig controls the rotating log file. A zero Directory logs to the
// console only.
type LogConfig struct {
	Directory  string `yaml:"directory"`
	FileName   string `yaml:"fileName"`
	Level      string `yaml:"level"`
	MaxSizeMB  int    `yaml:"maxSizeMB"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
	MaxBackups int    `yaml:"maxBackups"`
	Compress   bool   `yaml:"compress"`
}

var (
	logMu  sync.RWMutex
	logger = newConsoleLogger(os.Stderr)
)

func newConsoleLogger(w io.Writer) zerolog.Logger {
	out := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	return zerolog.New(out).With().Timestamp().Str("app", "n2kgate").Logger()
}

// SetupLogging sends log output to the console and, when a directory is set,
// to a lumberjack rotated file. The returned closer releases the file.
func SetupLogging(cfg LogConfig) (io.Closer, error) {
	level := cfg.Level
	if env := strings.TrimSpace(os.Getenv("N2K_LOG_LEVEL")); env != "" {
		level = env
	}
	lvl := zerolog.InfoLevel
	if level != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(level))
		if err != nil {
			return nil, errors.Wrapf(err, "log level %q", level)
		}
		lvl = parsed
	}

	console := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	var out io.Writer = console
	var closer io.Closer = nopCloser{}
	if cfg.Directory != "" {
		if err := os.MkdirAll(cfg.Directory, 0o755); err != nil {
			return nil, errors.Wrap(err, "create log dir")
		}
		name := cfg.FileName
		if name == "" {
			name = "n2kgate.log"
		}
		rotator := &lumberjack.Logger{
			Filename:   filepath.Join(cfg.Directory, name),
			MaxSize:    cfg.MaxSizeMB,
			MaxAge:     cfg.MaxAgeDays,
			MaxBackups: cfg.MaxBackups,
			Compress:   cfg.Compress,
		}
		out = zerolog.MultiLevelWriter(console, rotator)
		closer = rotator
	}

	l := zerolog.New(out).Level(lvl).With().Timestamp().Str("app", "n2kgate").Logger()
	logMu.Lock()
	logger = l
	logMu.Unlock()
	return closer, nil
}

// SetLogOutput replaces the logger with a plain JSON logger on w. Tests use it
// to capture output.
func SetLogOutput(w io.Writer) {
	l := zerolog.New(w).With().Timestamp().Str("app", "n2kgate").Logger()
	logMu.Lock()
	logger = l
	logMu.Unlock()
}

// Logger returns the process logger.
func Logger() *zerolog.Logger {
	logMu.RLock()
	l := logger
	logMu.RUnlock()
	return &l
}

func Logf(format string, args ...interface{}) {
	Logger().Info().Msgf(format, args...)
}

func Debugf(format string, args ...interface{}) {
	Logger().Debug().Msgf(format, args...)
}

func Warnf(format string, args ...interface{}) {
	Logger().Warn().Msgf(format, args...)
}

func Errorf(format string, args ...interface{}) {
	Logger().Error().Msgf(format, args...)
}

func Fatalf(format string, args ...interface{}) {
	Logger().Fatal().Msgf(format, args...)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
