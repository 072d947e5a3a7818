package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kailas-cloud/kbsearch/internal/domain/retrieval/event"
)

// Events writes named structured events. The event name is the log message,
// attributes are flat zap fields. Emitting never panics: a failing core is
// swallowed so that logging cannot abort a search.
type Events struct {
	l *zap.Logger
}

// NewEvents wraps a zap logger. A nil logger discards everything.
func NewEvents(l *zap.Logger) Events {
	if l == nil {
		l = zap.NewNop()
	}
	return Events{l: l}
}

// With returns an Events that adds fields to every event.
func (e Events) With(fields ...zap.Field) Events {
	return Events{l: e.logger().With(fields...)}
}

// Info emits an informational event.
func (e Events) Info(name event.Name, fields ...zap.Field) {
	e.emit(zapcore.InfoLevel, name, fields)
}

// Warn emits a warning event.
func (e Events) Warn(name event.Name, fields ...zap.Field) {
	e.emit(zapcore.WarnLevel, name, fields)
}

// Error emits an error event.
func (e Events) Error(name event.Name, fields ...zap.Field) {
	e.emit(zapcore.ErrorLevel, name, fields)
}

// Logger returns the underlying zap logger.
func (e Events) Logger() *zap.Logger { return e.logger() }

func (e Events) logger() *zap.Logger {
	if e.l == nil {
		return zap.NewNop()
	}
	return e.l
}

func (e Events) emit(level zapcore.Level, name event.Name, fields []zap.Field) {
	defer func() { _ = recover() }()
	if ce := e.logger().Check(level, name.String()); ce != nil {
		ce.Write(append(fields, zap.String("event", name.String()))...)
	}
}
