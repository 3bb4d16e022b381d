// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/netdata/netdata/go/stmtsampler/pkg/confopt"
	"github.com/netdata/netdata/go/stmtsampler/plugin/go.d/collector/mysql/stmtsamples"
)

type config struct {
	UpdateEvery int                `yaml:"update_every"`
	Tags        []string           `yaml:"tags"`
	Sampler     stmtsamples.Config `yaml:"sampler"`

	// set when the file gives sampler.min_collection_interval itself
	explicitInterval bool
}

func defaultConfig() *config {
	cfg := stmtsamples.DefaultConfig()
	cfg.Enabled = true
	return &config{
		UpdateEvery: int(cfg.MinCollectionInterval.Seconds()),
		Sampler:     cfg,
	}
}

func loadConfig(path string) (*config, error) {
	cfg := defaultConfig()

	bs, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg.Sampler.MinCollectionInterval = 0
	if err := yaml.Unmarshal(bs, cfg); err != nil {
		return nil, fmt.Errorf("'%s': %v", path, err)
	}
	if cfg.UpdateEvery <= 0 {
		return nil, fmt.Errorf("'%s': update_every must be positive, got %d", path, cfg.UpdateEvery)
	}
	cfg.explicitInterval = cfg.Sampler.MinCollectionInterval != 0
	cfg.setUpdateEvery(cfg.UpdateEvery)

	return cfg, nil
}

// setUpdateEvery changes the host check interval. The sampler's
// min_collection_interval follows it unless configured explicitly, so the
// background loop outlives the gap between two checks.
func (c *config) setUpdateEvery(seconds int) {
	c.UpdateEvery = seconds
	if !c.explicitInterval {
		c.Sampler.MinCollectionInterval = confopt.Duration(time.Duration(seconds) * time.Second)
	}
}
