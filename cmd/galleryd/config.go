// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package main

import (
	"fmt"

	"github.com/mattermost/galleryd/service"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"
)

const envPrefix = "galleryd"

// loadConfig reads the config file on top of the default settings and
// returns a new service.Config. Environment variables
// (GALLERYD_<SECTION>_<SETTING>) override values found in the file.
func loadConfig(path string) (service.Config, error) {
	var cfg service.Config
	cfg.SetDefaults()

	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return cfg, fmt.Errorf("failed to decode config file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return cfg, fmt.Errorf("unknown config keys: %v", undecoded)
	}

	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to process env overrides: %w", err)
	}

	return cfg, nil
}
