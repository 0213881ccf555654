// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PaveTrack Systems

// Package logger provides a thin wrapper around zerolog.Logger used across
// the sync engine. The wrapper embeds zerolog.Logger, so the full zerolog
// API (Debug, Info, Warn, Error, ...) is available directly; engine
// components receive a *Logger at construction and derive child loggers
// with additional fields.
package logger

import (
	"context"
	"io"
	"os"
	"runtime"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger embeds zerolog.Logger so helper methods can be added without
// shadowing the upstream API.
type Logger struct {
	zerolog.Logger
}

// New constructs a *Logger writing JSON to os.Stdout. component is attached
// to every entry as the "component" field; the caller field records the
// fully-qualified function name instead of file:line.
func New(component string, level zerolog.Level) *Logger {
	return NewWithOutput(component, level, os.Stdout)
}

// NewWithOutput is New with an explicit output writer. Used by hosts that
// route engine logs into their own sink.
func NewWithOutput(component string, level zerolog.Level, w io.Writer) *Logger {
	zerolog.CallerMarshalFunc = func(pc uintptr, file string, line int) string {
		return runtime.FuncForPC(pc).Name()
	}
	zerolog.CallerFieldName = "func"

	l := zerolog.New(w).Level(level).With().
		Str("component", component).
		Timestamp().
		Caller().
		Logger()

	return &Logger{l}
}

// Nop returns a *Logger that discards all output. Intended for tests.
func Nop() *Logger {
	return &Logger{zerolog.Nop()}
}

// Child returns a new *Logger inheriting the receiver's fields. The child
// can be enriched without touching the parent.
func (l *Logger) Child() *Logger {
	return &Logger{l.With().Logger()}
}

// FromContext extracts the zerolog.Logger stored in ctx via zerolog's
// log.Ctx helper. If ctx carries no logger, zerolog's global logger is
// returned, so the result is never nil.
func FromContext(ctx context.Context) *Logger {
	return &Logger{*log.Ctx(ctx)}
}

// WithContext stores l in ctx so downstream code can recover it with
// FromContext.
func (l *Logger) WithContext(ctx context.Context) context.Context {
	return l.Logger.WithContext(ctx)
}
