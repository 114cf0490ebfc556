// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package vad

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMonitorConfig(t *testing.T) {
	t.Run("empty config", func(t *testing.T) {
		err := MonitorConfig{}.IsValid()
		require.EqualError(t, err, "VoiceLevelsSampleSize should be > 1")
	})

	t.Run("defaults", func(t *testing.T) {
		cfg := MonitorConfig{}.SetDefaults()
		require.NoError(t, cfg.IsValid())
		require.Equal(t, defaultVoiceLevelsSampleSize, cfg.VoiceLevelsSampleSize)
		require.Equal(t, defaultActivationDuration, cfg.ActivationDuration)
	})

	t.Run("thresholds", func(t *testing.T) {
		cfg := MonitorConfig{
			VoiceActivationThreshold:   4,
			VoiceDeactivationThreshold: 10,
		}.SetDefaults()
		err := cfg.IsValid()
		require.EqualError(t, err, "VoiceDeactivationThreshold should not be greater than VoiceActivationThreshold")
	})
}

func TestNewMonitor(t *testing.T) {
	defaultCfg := MonitorConfig{}.SetDefaults()

	t.Run("invalid config", func(t *testing.T) {
		m, err := NewMonitor(MonitorConfig{}, func(_ bool) {})
		require.EqualError(t, err, "invalid config: VoiceLevelsSampleSize should be > 1")
		require.Nil(t, m)
	})

	t.Run("missing callback", func(t *testing.T) {
		m, err := NewMonitor(defaultCfg, nil)
		require.EqualError(t, err, "voice event callback is required")
		require.Nil(t, m)
	})

	t.Run("default config", func(t *testing.T) {
		m, err := NewMonitor(defaultCfg, func(_ bool) {})
		require.NoError(t, err)
		require.NotNil(t, m)
		require.Zero(t, m.levels.Len())
		require.Equal(t, defaultCfg, m.cfg)
		require.False(t, m.Voice())
	})
}

func TestPushAudioLevel(t *testing.T) {
	cfg := MonitorConfig{
		VoiceLevelsSampleSize:      10,
		ActivationDuration:         250 * time.Millisecond,
		VoiceActivationThreshold:   10,
		VoiceDeactivationThreshold: 5,
	}

	var events []bool
	m, err := NewMonitor(cfg, func(voice bool) {
		events = append(events, voice)
	})
	require.NoError(t, err)

	now := time.Now()
	m.now = func() time.Time { return now }

	for i := 0; i < cfg.VoiceLevelsSampleSize; i++ {
		if (i % 2) == 0 {
			m.PushAudioLevel(55)
		} else {
			m.PushAudioLevel(45)
		}
	}
	require.Equal(t, uint8(50), m.levels.Avg())
	require.Equal(t, uint8(5), m.levels.StdDev())
	require.Empty(t, events)

	// Louder speech increases variance.
	for i := 0; i < 4; i++ {
		m.PushAudioLevel(30)
	}
	require.True(t, m.Voice())
	require.Equal(t, []bool{true}, events)

	// Steady levels bring variance down, but voice is held.
	for i := 0; i < 8; i++ {
		m.PushAudioLevel(40)
	}
	require.True(t, m.Voice())
	require.Equal(t, []bool{true}, events)

	now = now.Add(cfg.ActivationDuration)
	m.PushAudioLevel(40)
	require.False(t, m.Voice())
	require.Equal(t, []bool{true, false}, events)
}

func TestReset(t *testing.T) {
	cfg := MonitorConfig{
		VoiceLevelsSampleSize:      10,
		ActivationDuration:         250 * time.Millisecond,
		VoiceActivationThreshold:   10,
		VoiceDeactivationThreshold: 5,
	}

	var events []bool
	m, err := NewMonitor(cfg, func(voice bool) {
		events = append(events, voice)
	})
	require.NoError(t, err)

	for i := 0; i < cfg.VoiceLevelsSampleSize; i++ {
		m.PushAudioLevel(45)
	}
	require.Empty(t, events)

	m.PushAudioLevel(100)
	require.True(t, m.Voice())
	require.NotZero(t, m.lastActivationTime)
	require.Equal(t, []bool{true}, events)

	m.Reset()
	require.Zero(t, m.levels.Len())
	require.False(t, m.Voice())
	require.Zero(t, m.lastActivationTime)
	require.Equal(t, []bool{true, false}, events)
}
