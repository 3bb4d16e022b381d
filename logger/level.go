// SPDX-License-Identifier: GPL-3.0-or-later

package logger

import (
	"log/slog"
	"strings"
)

const (
	LevelNotice  = slog.Level(2)
	levelDisable = slog.Level(99)
)

// Level is the minimum level of every logger created by New.
var Level = new(slog.LevelVar)

// ParseLevel understands the syslog style names used in netdata configs.
func ParseLevel(name string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "err", "error":
		return slog.LevelError, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "notice":
		return LevelNotice, true
	case "info":
		return slog.LevelInfo, true
	case "debug":
		return slog.LevelDebug, true
	case "emergency", "alert", "critical":
		return levelDisable, true
	}
	return 0, false
}

// SetLevel sets Level by name and reports whether the name was known.
func SetLevel(name string) bool {
	lvl, ok := ParseLevel(name)
	if ok {
		Level.Set(lvl)
	}
	return ok
}

func levelName(lvl slog.Level) string {
	if lvl == LevelNotice {
		return "notice"
	}
	return strings.ToLower(lvl.String())
}
