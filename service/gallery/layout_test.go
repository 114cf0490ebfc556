// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package gallery

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLayoutConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg := LayoutConfig{}.SetDefaults()
		require.NoError(t, cfg.IsValid())
		require.Equal(t, LayoutConfig{
			MaxVideoTiles:            4,
			MaxVideoDominantSpeakers: 6,
			MaxAudioTiles:            100,
			MaxAudioDominantSpeakers: 6,
		}, cfg)
	})

	t.Run("negative values", func(t *testing.T) {
		cfg := LayoutConfig{}.SetDefaults()
		cfg.MaxVideoTiles = -1
		require.EqualError(t, cfg.IsValid(), "invalid MaxVideoTiles value: should not be negative")

		cfg = LayoutConfig{}.SetDefaults()
		cfg.MaxAudioDominantSpeakers = -1
		require.EqualError(t, cfg.IsValid(), "invalid MaxAudioDominantSpeakers value: should not be negative")
	})
}

func TestComputeLayout(t *testing.T) {
	cfg := LayoutConfig{
		MaxVideoTiles:            2,
		MaxVideoDominantSpeakers: 2,
		MaxAudioTiles:            3,
		MaxAudioDominantSpeakers: 2,
	}

	participants := []Participant{
		{ID: "A", VideoAvailable: true, StreamID: "streamA"},
		{ID: "B"},
		{ID: "C", VideoAvailable: true, StreamID: "streamC"},
		{ID: "D", VideoAvailable: true, StreamID: "streamD"},
		{ID: "E"},
		{ID: "F"},
	}

	t.Run("no speakers", func(t *testing.T) {
		layout := ComputeLayout(cfg, participants, nil, Layout{})
		require.Equal(t, []string{"A", "C"}, participantIDs(layout.Video))
		require.Equal(t, []string{"B", "D", "E"}, participantIDs(layout.Audio))
	})

	t.Run("dominant speakers", func(t *testing.T) {
		layout := ComputeLayout(cfg, participants, []string{"D", "F", "A"}, Layout{})
		require.Equal(t, []string{"D", "A"}, participantIDs(layout.Video))
		require.Equal(t, []string{"F", "B", "C"}, participantIDs(layout.Audio))
	})

	t.Run("video selected participant is excluded from audio even if dominant", func(t *testing.T) {
		layout := ComputeLayout(cfg, participants, []string{"C", "E"}, Layout{})
		require.Equal(t, []string{"C", "A"}, participantIDs(layout.Video))
		require.Equal(t, []string{"E", "B", "D"}, participantIDs(layout.Audio))
	})

	t.Run("video speakers do not use up the audio window", func(t *testing.T) {
		cfg := LayoutConfig{
			MaxVideoTiles:            4,
			MaxVideoDominantSpeakers: 4,
			MaxAudioTiles:            2,
			MaxAudioDominantSpeakers: 2,
		}
		var participants []Participant
		for i := 1; i <= 8; i++ {
			participants = append(participants, Participant{
				ID:             fmt.Sprintf("P%d", i),
				VideoAvailable: i <= 4,
			})
		}

		layout := ComputeLayout(cfg, participants, []string{"P1", "P2", "P8", "P7"}, Layout{})
		require.Equal(t, []string{"P1", "P2", "P3", "P4"}, participantIDs(layout.Video))
		require.Equal(t, []string{"P8", "P7"}, participantIDs(layout.Audio))
	})

	t.Run("previous layout is stable", func(t *testing.T) {
		last := ComputeLayout(cfg, participants, nil, Layout{})
		layout := ComputeLayout(cfg, participants, []string{"D", "F"}, last)
		require.Equal(t, []string{"A", "C"}, participantIDs(layout.Video))
		require.Equal(t, []string{"B", "D", "E"}, participantIDs(layout.Audio))
		require.True(t, layout.Equal(last))
		require.Zero(t, last.churn(layout))
	})

	t.Run("video turned off", func(t *testing.T) {
		last := ComputeLayout(cfg, participants, nil, Layout{})
		updated := make([]Participant, len(participants))
		copy(updated, participants)
		updated[0] = Participant{ID: "A"}

		layout := ComputeLayout(cfg, updated, nil, last)
		require.Equal(t, []string{"C", "D"}, participantIDs(layout.Video))
		require.Equal(t, []string{"B", "E", "A"}, participantIDs(layout.Audio))
		require.False(t, layout.Equal(last))
		require.Equal(t, 2, last.churn(layout))
	})

	t.Run("exclusivity", func(t *testing.T) {
		for _, speakers := range [][]string{nil, {"A"}, {"F", "E", "D", "C", "B", "A"}} {
			layout := ComputeLayout(cfg, participants, speakers, Layout{})
			onVideo := map[string]bool{}
			for _, p := range layout.Video {
				require.True(t, p.VideoAvailable)
				onVideo[p.ID] = true
			}
			for _, p := range layout.Audio {
				require.False(t, onVideo[p.ID])
			}
		}
	})

	t.Run("stream change is a layout change", func(t *testing.T) {
		a := Layout{Video: []Participant{{ID: "A", VideoAvailable: true, StreamID: "s1"}}}
		b := Layout{Video: []Participant{{ID: "A", VideoAvailable: true, StreamID: "s2"}}}
		require.False(t, a.Equal(b))
		require.Zero(t, a.churn(b))
		require.True(t, Layout{}.Equal(Layout{Video: []Participant{}}))
	})
}
