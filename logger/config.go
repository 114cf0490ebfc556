// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package logger

import (
	"fmt"
	"strings"

	"github.com/mattermost/mattermost/server/public/shared/mlog"
)

// Config holds information used to initialize a new logger.
type Config struct {
	EnableConsole bool   `toml:"enable_console"`
	ConsoleJSON   bool   `toml:"console_json"`
	ConsoleLevel  string `toml:"console_level"`
	EnableFile    bool   `toml:"enable_file"`
	FileJSON      bool   `toml:"file_json"`
	FileLevel     string `toml:"file_level"`
	FileLocation  string `toml:"file_location"`
	// FileMaxSizeMB is the size at which the log file gets rotated.
	FileMaxSizeMB int  `toml:"file_max_size_mb"`
	FileCompress  bool `toml:"file_compress"`
	EnableColor   bool `toml:"enable_color"`
}

func (c *Config) SetDefaults() {
	c.EnableConsole = true
	c.ConsoleJSON = false
	c.ConsoleLevel = "INFO"
	c.EnableFile = true
	c.FileJSON = true
	c.FileLevel = "DEBUG"
	c.FileLocation = "galleryd.log"
	c.FileMaxSizeMB = 100
	c.FileCompress = true
	c.EnableColor = false
}

func isValidLevel(level string) bool {
	for _, l := range mlog.StdAll {
		if strings.ToLower(level) == l.Name {
			return true
		}
	}
	return false
}

func (c Config) IsValid() error {
	if !c.EnableConsole && !c.EnableFile {
		return fmt.Errorf("should enable at least one logging target")
	}
	if c.EnableConsole && !isValidLevel(c.ConsoleLevel) {
		return fmt.Errorf("invalid ConsoleLevel value %q", c.ConsoleLevel)
	}
	if !c.EnableFile {
		return nil
	}
	if !isValidLevel(c.FileLevel) {
		return fmt.Errorf("invalid FileLevel value %q", c.FileLevel)
	}
	if c.FileLocation == "" {
		return fmt.Errorf("invalid FileLocation value: should not be empty")
	}
	if c.FileMaxSizeMB < 0 {
		return fmt.Errorf("invalid FileMaxSizeMB value: should not be negative")
	}
	return nil
}
