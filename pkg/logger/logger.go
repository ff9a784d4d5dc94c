package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
)

const (
	EMPTY   = ""
	DEBUG   = "debug"
	INFO    = "info"
	WARN    = "warn"
	ERROR   = "error"
	JSON    = "json"
	TEXT    = "text"
	SERVICE = "service"
)

type Logger struct {
	*slog.Logger
}

type Config struct {
	Level     string
	Format    string
	Output    io.Writer
	AddSource bool
	Service   string
}

func New(cfg Config) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}
	if cfg.Format == EMPTY {
		cfg.Format = JSON
	}

	opts := &slog.HandlerOptions{
		Level:     parseLevel(cfg.Level),
		AddSource: cfg.AddSource,
	}

	var handler slog.Handler
	if cfg.Format == JSON {
		handler = slog.NewJSONHandler(cfg.Output, opts)
	} else {
		handler = slog.NewTextHandler(cfg.Output, opts)
	}

	if cfg.Service != EMPTY {
		handler = handler.WithAttrs([]slog.Attr{
			slog.String(SERVICE, cfg.Service),
		})
	}

	return &Logger{Logger: slog.New(handler)}
}

// NewNop returns a logger that discards everything. Intended for tests.
func NewNop() *Logger {
	return New(Config{Output: io.Discard, Level: ERROR})
}

func parseLevel(level string) slog.Level {
	switch level {
	case DEBUG:
		return slog.LevelDebug
	case WARN:
		return slog.LevelWarn
	case ERROR:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// With returns a child logger that carries the given key/value pairs.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Fatal logs a critical error and exits the application with status code 1
func (l *Logger) Fatal(msg string, args ...any) {
	l.Error(msg, args...)
	os.Exit(1)
}

// Printf satisfies printf-style logger hooks of third-party clients (kafka-go).
func (l *Logger) Printf(format string, args ...any) {
	l.Log(context.Background(), slog.LevelError, fmt.Sprintf(format, args...))
}

// AsynqAdapter exposes the logger through the asynq.Logger interface.
type AsynqAdapter struct {
	log *Logger
}

func NewAsynqAdapter(log *Logger) *AsynqAdapter {
	return &AsynqAdapter{log: log.With("component", "asynq")}
}

func (a *AsynqAdapter) Debug(args ...any) { a.log.Debug(fmt.Sprint(args...)) }
func (a *AsynqAdapter) Info(args ...any)  { a.log.Info(fmt.Sprint(args...)) }
func (a *AsynqAdapter) Warn(args ...any)  { a.log.Warn(fmt.Sprint(args...)) }
func (a *AsynqAdapter) Error(args ...any) { a.log.Error(fmt.Sprint(args...)) }
func (a *AsynqAdapter) Fatal(args ...any) { a.log.Fatal(fmt.Sprint(args...)) }
