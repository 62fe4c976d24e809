package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog behind the printf-style surface the rest of the
// pipeline uses. One instance per process, tagged with the component name
// and the machine identifier so interleaved worker logs stay attributable.
type Logger struct {
	zl zerolog.Logger
}

func New(component, machine, level string) *Logger {
	return NewWithWriter(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}, component, machine, level)
}

func NewWithWriter(w io.Writer, component, machine, level string) *Logger {
	zl := zerolog.New(w).
		Level(ParseLevel(level)).
		With().
		Timestamp().
		Str("component", component).
		Str("machine", machine).
		Logger()

	return &Logger{zl: zl}
}

func ParseLevel(lvl string) zerolog.Level {
	switch strings.ToLower(lvl) {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func (l *Logger) Debug(f string, v ...any) { l.zl.Debug().Msgf(f, v...) }
func (l *Logger) Info(f string, v ...any)  { l.zl.Info().Msgf(f, v...) }
func (l *Logger) Warn(f string, v ...any)  { l.zl.Warn().Msgf(f, v...) }
func (l *Logger) Error(f string, v ...any) { l.zl.Error().Msgf(f, v...) }
func (l *Logger) Fatal(f string, v ...any) { l.zl.Fatal().Msgf(f, v...) }

// Write lets the logger stand in as an io.Writer for libraries that want one
// (echo's request logger, the MQTT client's error log).
func (l *Logger) Write(p []byte) (n int, err error) {
	msg := strings.TrimSpace(string(p))
	if msg != "" {
		l.Info("%s", msg)
	}
	return len(p), nil
}
