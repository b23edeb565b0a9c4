// Package log implements the structured logging used across mailflow.
//
// It is a thin value-typed wrapper around zap: a Logger carries a name and a
// set of static fields and is cheap to copy.
package log

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"mailflow/internal/exterrors"
	"mailflow/internal/redact"
)

// Logger is stateless aside from its embedded zap core; copy freely.
type Logger struct {
	zl     *zap.Logger
	Name   string
	Debug  bool
	Fields map[string]interface{}
}

var base *zap.Logger

func init() {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	l, err := cfg.Build()
	if err != nil {
		l = zap.NewNop()
	}
	base = l
}

// New returns a Logger for the given component name, e.g. "dispatch.inbound".
func New(name string) Logger {
	return Logger{zl: base, Name: name}
}

func (l Logger) named() *zap.Logger {
	zl := l.zl
	if zl == nil {
		zl = base
	}
	if l.Name != "" {
		zl = zl.Named(l.Name)
	}
	return zl
}

// With returns a copy of l with additional static fields merged in.
func (l Logger) With(fields map[string]interface{}) Logger {
	merged := make(map[string]interface{}, len(l.Fields)+len(fields))
	for k, v := range l.Fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	l.Fields = merged
	return l
}

func (l Logger) zapFields(extra map[string]interface{}) []zap.Field {
	out := make([]zap.Field, 0, len(l.Fields)+len(extra))
	for k, v := range l.Fields {
		out = append(out, zap.Any(k, v))
	}
	for k, v := range extra {
		out = append(out, zap.Any(k, v))
	}
	return out
}

// Debugf logs a debug-level message if Debug is enabled on this Logger.
func (l Logger) Debugf(format string, args ...interface{}) {
	if !l.Debug {
		return
	}
	l.named().Sugar().Debugf(format, args...)
}

// Infof logs an info-level message.
func (l Logger) Infof(format string, args ...interface{}) {
	l.named().Sugar().Infof(format, args...)
}

// Warnf logs a warning-level message.
func (l Logger) Warnf(format string, args ...interface{}) {
	l.named().Sugar().Warnf(format, args...)
}

// Msg writes an info-level event with the given fields merged with Fields.
// Address-bearing fields and embedded email tokens are redacted first (P8).
func (l Logger) Msg(msg string, fields map[string]interface{}) {
	l.named().Info(redact.String(msg), l.zapFields(redact.Fields(fields))...)
}

// Error writes an error-level event. Fields attached to err via exterrors
// are folded into the log entry.
// Address-bearing fields and embedded email tokens are redacted first (P8).
func (l Logger) Error(msg string, err error, fields map[string]interface{}) {
	if err == nil {
		return
	}
	all := make(map[string]interface{}, len(fields)+4)
	for k, v := range exterrors.Fields(err) {
		all[k] = v
	}
	for k, v := range fields {
		all[k] = v
	}
	all["error"] = err.Error()
	l.named().Error(strings.TrimSpace(redact.String(msg)), l.zapFields(redact.Fields(all))...)
}

// Sync flushes any buffered log entries. Call once at process shutdown.
func Sync() {
	_ = base.Sync()
}
