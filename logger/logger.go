// SPDX-License-Identifier: GPL-3.0-or-later

// Package logger renders slog records for the sampler process: colored on a
// terminal, logfmt under journald or when redirected, JSON on request.
package logger

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync/atomic"
	"time"
)

// New returns a logger writing to stderr in the format picked by detectFormat.
func New() *Logger {
	return &Logger{sl: slog.New(newHandler(os.Stderr, detectFormat()))}
}

// NewWithHandler is used by tests that need to capture log records.
func NewWithHandler(h slog.Handler) *Logger {
	return &Logger{sl: slog.New(h)}
}

type Logger struct {
	muted atomic.Bool
	sl    *slog.Logger
}

func (l *Logger) Error(a ...any)   { l.log(0, slog.LevelError, fmt.Sprint(a...)) }
func (l *Logger) Warning(a ...any) { l.log(0, slog.LevelWarn, fmt.Sprint(a...)) }
func (l *Logger) Notice(a ...any)  { l.log(0, LevelNotice, fmt.Sprint(a...)) }
func (l *Logger) Info(a ...any)    { l.log(0, slog.LevelInfo, fmt.Sprint(a...)) }
func (l *Logger) Debug(a ...any)   { l.log(0, slog.LevelDebug, fmt.Sprint(a...)) }

func (l *Logger) Errorf(format string, a ...any) {
	l.log(0, slog.LevelError, fmt.Sprintf(format, a...))
}
func (l *Logger) Warningf(format string, a ...any) {
	l.log(0, slog.LevelWarn, fmt.Sprintf(format, a...))
}
func (l *Logger) Noticef(format string, a ...any) { l.log(0, LevelNotice, fmt.Sprintf(format, a...)) }
func (l *Logger) Infof(format string, a ...any)   { l.log(0, slog.LevelInfo, fmt.Sprintf(format, a...)) }
func (l *Logger) Debugf(format string, a ...any) {
	l.log(0, slog.LevelDebug, fmt.Sprintf(format, a...))
}

// With returns a child logger carrying the given attributes on every record.
func (l *Logger) With(args ...any) *Logger {
	if l.isNil() {
		return &Logger{sl: fallback.sl.With(args...)}
	}

	child := &Logger{sl: l.sl.With(args...)}
	child.muted.Store(l.muted.Load())

	return child
}

// Mute silences the logger and the children created after the call.
func (l *Logger) Mute(v bool) {
	if !l.isNil() {
		l.muted.Store(v)
	}
}

// log records the caller of the exported method, skip adds frames for
// wrappers such as the package level functions.
func (l *Logger) log(skip int, level slog.Level, msg string) {
	if l.isNil() {
		fallback.log(skip+1, level, msg)
		return
	}
	if l.muted.Load() {
		return
	}

	ctx := context.Background()
	h := l.sl.Handler()
	if !h.Enabled(ctx, level) {
		return
	}

	var pcs [1]uintptr
	// runtime.Callers, log, the exported method
	runtime.Callers(3+skip, pcs[:])

	r := slog.NewRecord(time.Now(), level, msg, pcs[0])
	_ = h.Handle(ctx, r)
}

func (l *Logger) isNil() bool { return l == nil || l.sl == nil }

var fallback = New()
