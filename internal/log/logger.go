// Package log wraps log/slog so every record carries a component attribute
// identifying the subsystem that emitted it.
package log

import (
	"log/slog"
	"os"
)

// Logger embeds a slog.Logger whose handler already carries the component
// attribute, so call sites log through the standard slog methods.
type Logger struct {
	*slog.Logger
	handler   slog.Handler
	component string
}

// Config controls the handler, level and component of a new logger.
type Config struct {
	Level     slog.Level
	Component string
	Handler   slog.Handler
}

func DefaultConfig() Config {
	return Config{Level: slog.LevelInfo, Component: ComponentApp}
}

// New builds a logger writing text records to stdout, unless the config
// supplies its own handler.
func New(cfg Config) *Logger {
	handler := cfg.Handler
	if handler == nil {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Level})
	}
	component := cfg.Component
	if component == "" {
		component = ComponentApp
	}
	return &Logger{
		Logger:    slog.New(handler).With(FieldComponent, component),
		handler:   handler,
		component: component,
	}
}

// With returns a derived logger carrying extra attributes on every record.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		Logger:    l.Logger.With(args...),
		handler:   l.handler,
		component: l.component,
	}
}

// WithComponent returns a logger for another subsystem, sharing the handler.
// The component attribute is replaced rather than stacked, so records never
// carry two component values; attributes added via With are not inherited.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		Logger:    slog.New(l.handler).With(FieldComponent, component),
		handler:   l.handler,
		component: component,
	}
}

// SetDefault routes the plain slog package functions through this logger.
func SetDefault(logger *Logger) {
	slog.SetDefault(logger.Logger)
}
