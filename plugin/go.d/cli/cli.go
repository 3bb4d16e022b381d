// SPDX-License-Identifier: GPL-3.0-or-later

package cli

import (
	"fmt"
	"strconv"

	"github.com/jessevdk/go-flags"
)

const programName = "stmtsampler"

// Option holds the sampler command line. UpdateEvery is the optional
// positional argument; zero means "take it from the config file".
type Option struct {
	UpdateEvery int
	ConfigPath  string `short:"c" long:"config" description:"configuration file to read" default:"/etc/netdata/stmtsampler.conf"`
	Output      string `short:"o" long:"output" description:"file to append samples to, '-' for stdout" default:"-"`
	MetricsAddr string `short:"m" long:"metrics-addr" description:"address to serve prometheus metrics on, empty to disable"`
	Debug       bool   `short:"d" long:"debug" description:"debug mode"`
	Version     bool   `short:"v" long:"version" description:"display the version and exit"`
}

// Parse reads args, args[0] being the program name.
func Parse(args []string) (*Option, error) {
	var opt Option

	parser := flags.NewParser(&opt, flags.Default)
	parser.Name = programName
	parser.Usage = "[OPTIONS] [update every]"

	if len(args) > 0 {
		args = args[1:]
	}
	rest, err := parser.ParseArgs(args)
	if err != nil {
		return nil, err
	}

	if len(rest) == 0 {
		return &opt, nil
	}
	every, err := strconv.Atoi(rest[0])
	if err != nil {
		return nil, fmt.Errorf("update every: %v", err)
	}
	if every < 1 {
		return nil, fmt.Errorf("update every must be positive, got %d", every)
	}
	opt.UpdateEvery = every

	return &opt, nil
}

// IsHelp reports whether err is go-flags' "help was printed" error.
func IsHelp(err error) bool {
	return flags.WroteHelp(err)
}
