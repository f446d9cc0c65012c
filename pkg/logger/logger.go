package logger

import (
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
)

// Logger wraps charmbracelet/log.Logger with shipway's defaults.
type Logger struct {
	*log.Logger
}

var (
	instance *Logger
	once     sync.Once
)

// GetLogger returns the singleton logger, writing to stderr so stage
// diagnostics and builder output stay separable from command stdout.
func GetLogger() *Logger {
	once.Do(func() {
		instance = &Logger{
			Logger: log.NewWithOptions(os.Stderr, log.Options{
				Level:           log.InfoLevel,
				ReportTimestamp: true,
				TimeFormat:      "15:04:05",
			}),
		}
	})
	return instance
}

// SetLogLevel sets the level from its string name. Unknown names fall
// back to info rather than failing a run over a config typo.
func (l *Logger) SetLogLevel(level string) {
	lvl, err := log.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = log.InfoLevel
	}
	l.SetLevel(lvl)
	log.SetLevel(lvl) // keep the package-global logger in step
}

// ConfigureFromEnv applies SHIPWAY_LOG_LEVEL, letting a CI job turn on
// debug output without touching the config file.
func (l *Logger) ConfigureFromEnv() {
	if level := os.Getenv("SHIPWAY_LOG_LEVEL"); level != "" {
		l.SetLogLevel(level)
	}
}

// With returns a sub-logger carrying the given keyvals on every line.
// Used by the pipeline to stamp the run ID onto all stage output.
func With(keyvals ...interface{}) *Logger {
	return &Logger{Logger: GetLogger().Logger.With(keyvals...)}
}

// Debug logs a debug message
func Debug(msg string, keyvals ...interface{}) {
	GetLogger().Debug(msg, keyvals...)
}

// Info logs an info message
func Info(msg string, keyvals ...interface{}) {
	GetLogger().Info(msg, keyvals...)
}

// Warn logs a warning message
func Warn(msg string, keyvals ...interface{}) {
	GetLogger().Warn(msg, keyvals...)
}

// Error logs an error message
func Error(msg string, keyvals ...interface{}) {
	GetLogger().Error(msg, keyvals...)
}
