// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package logger

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mattermost/mattermost/server/public/shared/mlog"
)

const (
	targetQueueSize = 1000
	consoleTarget   = "_galleryConsole"
	fileTarget      = "_galleryFile"
)

// levelsUpTo returns the standard levels from the most severe down to
// (and including) level.
func levelsUpTo(level string) []mlog.Level {
	var levels []mlog.Level
	for _, l := range mlog.StdAll {
		levels = append(levels, l)
		if l.Name == strings.ToLower(level) {
			break
		}
	}
	return levels
}

func formatFor(jsonFormat, color bool) (string, json.RawMessage) {
	if jsonFormat {
		return "json", json.RawMessage(`{"enable_caller": true}`)
	}
	return "plain", json.RawMessage(fmt.Sprintf(`{"delim": " ", "min_level_len": 5, "min_msg_len": 45, "enable_color": %t, "enable_caller": true}`, color))
}

func targetsFor(config Config) (mlog.LoggerConfiguration, error) {
	targets := mlog.LoggerConfiguration{}

	if config.EnableConsole {
		format, formatOpts := formatFor(config.ConsoleJSON, config.EnableColor)
		targets[consoleTarget] = mlog.TargetCfg{
			Type:          "console",
			Levels:        levelsUpTo(config.ConsoleLevel),
			Options:       json.RawMessage(`{"out": "stdout"}`),
			Format:        format,
			FormatOptions: formatOpts,
			MaxQueueSize:  targetQueueSize,
		}
	}

	if config.EnableFile {
		opts, err := json.Marshal(map[string]any{
			"filename":    config.FileLocation,
			"max_size":    config.FileMaxSizeMB,
			"max_age":     0,
			"max_backups": 0,
			"compress":    config.FileCompress,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal file target options: %w", err)
		}
		format, formatOpts := formatFor(config.FileJSON, false)
		targets[fileTarget] = mlog.TargetCfg{
			Type:          "file",
			Levels:        levelsUpTo(config.FileLevel),
			Options:       opts,
			Format:        format,
			FormatOptions: formatOpts,
			MaxQueueSize:  targetQueueSize,
		}
	}

	return targets, nil
}

// New returns a newly created and initialized logger with the given cfg.
func New(config Config) (*mlog.Logger, error) {
	if err := config.IsValid(); err != nil {
		return nil, err
	}

	targets, err := targetsFor(config)
	if err != nil {
		return nil, err
	}

	logger, err := mlog.NewLogger()
	if err != nil {
		return nil, err
	}

	if err := logger.ConfigureTargets(targets, nil); err != nil {
		_ = logger.Shutdown()
		return nil, fmt.Errorf("failed to configure log targets: %w", err)
	}

	return logger, nil
}
