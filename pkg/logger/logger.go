package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger wraps zerolog.Logger so packages share one field vocabulary
// (component, video, phase, model) without importing zerolog directly.
type Logger struct {
	logger zerolog.Logger
}

// Config represents logger configuration
type Config struct {
	Level     string `yaml:"level" mapstructure:"level"`         // trace, debug, info, warn, error
	Format    string `yaml:"format" mapstructure:"format"`       // console, json
	Output    string `yaml:"output" mapstructure:"output"`       // stdout, stderr, file path
	Timestamp bool   `yaml:"timestamp" mapstructure:"timestamp"` // include timestamp
	Caller    bool   `yaml:"caller" mapstructure:"caller"`       // include caller info
	NoColor   bool   `yaml:"no_color" mapstructure:"no_color"`   // force plain console output
}

// DefaultConfig returns default logger configuration
func DefaultConfig() *Config {
	return &Config{
		Level:     "info",
		Format:    "console",
		Output:    "stderr",
		Timestamp: true,
	}
}

var (
	globalMu     sync.RWMutex
	globalLogger *Logger
	globalCloser io.Closer
)

// New builds a logger from config. The returned closer is non-nil only when
// the output is a file.
func New(config *Config) (*Logger, io.Closer, error) {
	if config == nil {
		config = DefaultConfig()
	}

	level, err := zerolog.ParseLevel(strings.ToLower(config.Level))
	if err != nil || config.Level == "" {
		level = zerolog.InfoLevel
	}

	var (
		output io.Writer
		closer io.Closer
		isTTY  bool
	)
	switch strings.ToLower(config.Output) {
	case "stdout":
		output = os.Stdout
		isTTY = isatty.IsTerminal(os.Stdout.Fd())
	case "stderr", "":
		output = os.Stderr
		isTTY = isatty.IsTerminal(os.Stderr.Fd())
	default:
		if err := os.MkdirAll(filepath.Dir(config.Output), 0o755); err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		file, err := os.OpenFile(config.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		output = file
		closer = file
	}

	var zl zerolog.Logger
	if strings.EqualFold(config.Format, "json") {
		zl = zerolog.New(output)
	} else {
		cw := zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.Kitchen,
			NoColor:    config.NoColor || !isTTY,
		}
		cw.FormatLevel = func(i interface{}) string {
			s, _ := i.(string)
			return fmt.Sprintf("%-5s", strings.ToUpper(s))
		}
		zl = zerolog.New(cw)
	}
	zl = zl.Level(level)

	if config.Timestamp {
		zl = zl.With().Timestamp().Logger()
	}
	if config.Caller {
		zl = zl.With().Caller().Logger()
	}

	return &Logger{logger: zl}, closer, nil
}

// Initialize replaces the global logger.
func Initialize(config *Config) error {
	l, closer, err := New(config)
	if err != nil {
		return err
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	if globalCloser != nil {
		_ = globalCloser.Close()
	}
	globalLogger = l
	globalCloser = closer
	log.Logger = l.logger
	return nil
}

// Close releases the global log file, if any.
func Close() error {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalCloser == nil {
		return nil
	}
	err := globalCloser.Close()
	globalCloser = nil
	return err
}

// Get returns the global logger instance
func Get() *Logger {
	globalMu.RLock()
	l := globalLogger
	globalMu.RUnlock()
	if l != nil {
		return l
	}
	_ = Initialize(nil)
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLogger
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{logger: zerolog.Nop()}
}

// FromWriter returns a JSON logger writing to w; handy in tests.
func FromWriter(w io.Writer) *Logger {
	return &Logger{logger: zerolog.New(w)}
}

// WithField adds a field to the logger
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{logger: l.logger.With().Interface(key, value).Logger()}
}

// WithFields adds multiple fields to the logger
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	ctx := l.logger.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &Logger{logger: ctx.Logger()}
}

// WithComponent tags every event with the emitting component.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{logger: l.logger.With().Str("component", component).Logger()}
}

// WithError adds an error field to the logger
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return &Logger{logger: l.logger.With().Err(err).Logger()}
}

func (l *Logger) Trace() *zerolog.Event { return l.logger.Trace() }
func (l *Logger) Debug() *zerolog.Event { return l.logger.Debug() }
func (l *Logger) Info() *zerolog.Event  { return l.logger.Info() }
func (l *Logger) Warn() *zerolog.Event  { return l.logger.Warn() }
func (l *Logger) Error() *zerolog.Event { return l.logger.Error() }

// GetLevel returns the current log level
func (l *Logger) GetLevel() zerolog.Level {
	return l.logger.GetLevel()
}

func Debug() *zerolog.Event { return Get().Debug() }
func Info() *zerolog.Event  { return Get().Info() }
func Warn() *zerolog.Event  { return Get().Warn() }
func Error() *zerolog.Event { return Get().Error() }

// WithComponent returns a component logger derived from the global logger.
func WithComponent(component string) *Logger {
	return Get().WithComponent(component)
}

// WithField returns a logger with a field using the global logger
func WithField(key string, value interface{}) *Logger {
	return Get().WithField(key, value)
}
