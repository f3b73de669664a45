// Package logging adapts log/slog to internal/core.Logger's narrow
// Debugf/Infof/Errorf shape, so the coordinator and command handlers
// depend on an interface rather than a concrete logging library.
package logging

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/fakturenn/invoicebridge/internal/core"
)

// Logger wraps a *slog.Logger to satisfy core.Logger.
type Logger struct {
	slog *slog.Logger
}

// New wraps the given slog.Logger. Passing nil uses slog.Default().
func New(l *slog.Logger) *Logger {
	if l == nil {
		l = slog.Default()
	}
	return &Logger{slog: l}
}

// NewJSON builds a Logger writing JSON records to w at the given level,
// the shape cmd/coordinator and cmd/automationctl use in production (text
// handlers are for local development only).
func NewJSON(w *os.File, level slog.Level) *Logger {
	return New(slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})))
}

func (l *Logger) Debugf(format string, args ...any) {
	if l == nil || l.slog == nil {
		return
	}
	l.slog.Debug(fmt.Sprintf(format, args...))
}

func (l *Logger) Infof(format string, args ...any) {
	if l == nil || l.slog == nil {
		return
	}
	l.slog.Info(fmt.Sprintf(format, args...))
}

func (l *Logger) Errorf(format string, args ...any) {
	if l == nil || l.slog == nil {
		return
	}
	l.slog.Error(fmt.Sprintf(format, args...))
}

var _ core.Logger = (*Logger)(nil)
