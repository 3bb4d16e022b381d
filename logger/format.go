// SPDX-License-Identifier: GPL-3.0-or-later

package logger

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
)

type format int

const (
	formatText format = iota
	formatTerminal
	formatJSON
)

const envLogFormat = "NETDATA_LOG_FORMAT"

var programAttr = slog.String("program", filepath.Base(os.Args[0]))

// detectFormat honors NETDATA_LOG_FORMAT (json, text) and otherwise picks
// the terminal format when stderr is a TTY.
func detectFormat() format {
	switch strings.ToLower(os.Getenv(envLogFormat)) {
	case "json":
		return formatJSON
	case "text", "logfmt":
		return formatText
	}
	if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		return formatTerminal
	}
	return formatText
}

func newHandler(w io.Writer, f format) slog.Handler {
	switch f {
	case formatTerminal:
		return tint.NewHandler(w, &tint.Options{
			NoColor:     runtime.GOOS == "windows",
			AddSource:   true,
			Level:       Level,
			ReplaceAttr: replaceTerminalAttr,
		})
	case formatJSON:
		return slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level:       Level,
			ReplaceAttr: replaceLevelAttr,
		}).WithAttrs([]slog.Attr{programAttr})
	default:
		journal := stderrIsJournal()
		return slog.NewTextHandler(w, &slog.HandlerOptions{
			Level: Level,
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				// journald stamps records itself
				if a.Key == slog.TimeKey && journal {
					return slog.Attr{}
				}
				return replaceLevelAttr(groups, a)
			},
		}).WithAttrs([]slog.Attr{programAttr})
	}
}

func replaceLevelAttr(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey {
		if lvl, ok := a.Value.Any().(slog.Level); ok {
			return slog.String(a.Key, levelName(lvl))
		}
	}
	return a
}

func replaceTerminalAttr(_ []string, a slog.Attr) slog.Attr {
	switch a.Key {
	case slog.TimeKey:
		return slog.Attr{}
	case slog.SourceKey:
		if Level.Level() > slog.LevelDebug {
			return slog.Attr{}
		}
	case slog.LevelKey:
		if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelNotice {
			return slog.String(a.Key, "\u001B[34mNTC\u001B[0m")
		}
	}
	return a
}
