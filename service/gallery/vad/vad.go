// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package vad

import (
	"fmt"
	"time"

	"github.com/mattermost/galleryd/service/gallery/stat"
)

const (
	defaultVoiceLevelsSampleSize      = 50
	defaultVoiceActivationThreshold   = 10
	defaultVoiceDeactivationThreshold = 4
	defaultActivationDuration         = 2 * time.Second
)

// VoiceCB is called whenever the detected voice state flips.
type VoiceCB func(voice bool)

// Monitor detects voice activity from a stream of RFC 6464 audio levels
// (0 is the loudest, 127 silence) by looking at how much the levels vary
// over a sliding window.
type Monitor struct {
	cfg MonitorConfig

	levels             *stat.Window[uint8]
	lastActivationTime time.Time
	voiceState         bool
	cb                 VoiceCB
	now                func() time.Time
}

type MonitorConfig struct {
	VoiceLevelsSampleSize      int           `toml:"voice_levels_sample_size"`
	ActivationDuration         time.Duration `toml:"activation_duration"`
	VoiceActivationThreshold   int           `toml:"voice_activation_threshold"`
	VoiceDeactivationThreshold int           `toml:"voice_deactivation_threshold"`
}

func (c MonitorConfig) SetDefaults() MonitorConfig {
	if c.VoiceLevelsSampleSize == 0 {
		c.VoiceLevelsSampleSize = defaultVoiceLevelsSampleSize
	}

	if c.ActivationDuration == 0 {
		c.ActivationDuration = defaultActivationDuration
	}

	if c.VoiceActivationThreshold == 0 {
		c.VoiceActivationThreshold = defaultVoiceActivationThreshold
	}

	if c.VoiceDeactivationThreshold == 0 {
		c.VoiceDeactivationThreshold = defaultVoiceDeactivationThreshold
	}

	return c
}

func (c MonitorConfig) IsValid() error {
	if c.VoiceLevelsSampleSize <= 1 {
		return fmt.Errorf("VoiceLevelsSampleSize should be > 1")
	}

	if c.ActivationDuration <= 0 {
		return fmt.Errorf("ActivationDuration should be > 0")
	}

	if c.VoiceActivationThreshold <= 0 {
		return fmt.Errorf("VoiceActivationThreshold should be > 0")
	}

	if c.VoiceDeactivationThreshold <= 0 {
		return fmt.Errorf("VoiceDeactivationThreshold should be > 0")
	}

	if c.VoiceDeactivationThreshold > c.VoiceActivationThreshold {
		return fmt.Errorf("VoiceDeactivationThreshold should not be greater than VoiceActivationThreshold")
	}

	return nil
}

func NewMonitor(cfg MonitorConfig, cb VoiceCB) (*Monitor, error) {
	if err := cfg.IsValid(); err != nil {
		return nil, fmt.Errorf("invalid config: %s", err)
	}

	if cb == nil {
		return nil, fmt.Errorf("voice event callback is required")
	}

	return &Monitor{
		cfg:    cfg,
		levels: stat.NewWindow[uint8](cfg.VoiceLevelsSampleSize),
		cb:     cb,
		now:    time.Now,
	}, nil
}

// PushAudioLevel feeds a new level sample. The callback runs synchronously.
func (m *Monitor) PushAudioLevel(level uint8) {
	if !m.levels.Full() {
		m.levels.Push(level)
		return
	}
	m.levels.Push(level)

	dev := int(m.levels.StdDev())

	var newState bool
	if !m.voiceState && dev > m.cfg.VoiceActivationThreshold {
		newState = true
		m.lastActivationTime = m.now()
	} else if m.voiceState && dev < m.cfg.VoiceDeactivationThreshold {
		newState = false
	} else {
		return
	}

	// Voice is held for at least ActivationDuration to avoid flapping.
	if newState == m.voiceState || (!newState && m.now().Sub(m.lastActivationTime) < m.cfg.ActivationDuration) {
		return
	}

	m.cb(newState)
	m.voiceState = newState
}

func (m *Monitor) Voice() bool {
	return m.voiceState
}

// Reset clears the sampled levels and reports voice off.
func (m *Monitor) Reset() {
	m.levels.Reset()
	m.lastActivationTime = time.Time{}
	m.voiceState = false
	m.cb(false)
}
