// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package gallery

import (
	"fmt"
)

const (
	defaultMaxVideoTiles            = 4
	defaultMaxVideoDominantSpeakers = 6
	defaultMaxAudioTiles            = 100
	defaultMaxAudioDominantSpeakers = 6
)

type LayoutConfig struct {
	// MaxVideoTiles is the maximum number of participants rendered with live
	// video at the same time.
	MaxVideoTiles int `toml:"max_video_tiles"`
	// MaxVideoDominantSpeakers is how many of the top dominant speakers may
	// claim a free video tile.
	MaxVideoDominantSpeakers int `toml:"max_video_dominant_speakers"`
	// MaxAudioTiles is the maximum number of audio-only tiles.
	MaxAudioTiles int `toml:"max_audio_tiles"`
	// MaxAudioDominantSpeakers is how many of the top dominant speakers may
	// claim a free audio tile.
	MaxAudioDominantSpeakers int `toml:"max_audio_dominant_speakers"`
}

func (c LayoutConfig) SetDefaults() LayoutConfig {
	if c.MaxVideoTiles == 0 {
		c.MaxVideoTiles = defaultMaxVideoTiles
	}
	if c.MaxVideoDominantSpeakers == 0 {
		c.MaxVideoDominantSpeakers = defaultMaxVideoDominantSpeakers
	}
	if c.MaxAudioTiles == 0 {
		c.MaxAudioTiles = defaultMaxAudioTiles
	}
	if c.MaxAudioDominantSpeakers == 0 {
		c.MaxAudioDominantSpeakers = defaultMaxAudioDominantSpeakers
	}
	return c
}

func (c LayoutConfig) IsValid() error {
	if c.MaxVideoTiles < 0 {
		return fmt.Errorf("invalid MaxVideoTiles value: should not be negative")
	}
	if c.MaxVideoDominantSpeakers < 0 {
		return fmt.Errorf("invalid MaxVideoDominantSpeakers value: should not be negative")
	}
	if c.MaxAudioTiles < 0 {
		return fmt.Errorf("invalid MaxAudioTiles value: should not be negative")
	}
	if c.MaxAudioDominantSpeakers < 0 {
		return fmt.Errorf("invalid MaxAudioDominantSpeakers value: should not be negative")
	}
	return nil
}

// Layout is the tile assignment for a single viewer.
type Layout struct {
	Video []Participant `json:"video" msgpack:"video"`
	Audio []Participant `json:"audio" msgpack:"audio"`
}

// ComputeLayout splits participants into video and audio-only tiles.
//
// Only participants with an available video stream compete for video tiles.
// Everyone not picked for video, including video-capable participants that
// did not fit, is then considered for audio tiles. The two lists never share
// a participant.
func ComputeLayout(cfg LayoutConfig, participants []Participant, dominantSpeakerIDs []string, last Layout) Layout {
	videoCandidates := make([]Participant, 0, len(participants))
	for _, p := range participants {
		if p.VideoAvailable {
			videoCandidates = append(videoCandidates, p)
		}
	}

	video := SelectVisible(videoCandidates, dominantSpeakerIDs, last.Video,
		cfg.MaxVideoTiles, cfg.MaxVideoDominantSpeakers)

	onVideo := make(map[string]bool, len(video))
	for _, p := range video {
		onVideo[p.ID] = true
	}

	audioCandidates := make([]Participant, 0, len(participants)-len(video))
	for _, p := range participants {
		if !onVideo[p.ID] {
			audioCandidates = append(audioCandidates, p)
		}
	}

	audio := SelectVisible(audioCandidates, dominantSpeakerIDs, last.Audio,
		cfg.MaxAudioTiles, cfg.MaxAudioDominantSpeakers)

	return Layout{
		Video: video,
		Audio: audio,
	}
}

// Equal reports whether both layouts place the same participants, in the
// same order, with the same video stream.
func (l Layout) Equal(other Layout) bool {
	return participantsEqual(l.Video, other.Video) && participantsEqual(l.Audio, other.Audio)
}

func participantsEqual(a, b []Participant) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// churn returns how many tiles of next were not occupied by the same
// participant in l.
func (l Layout) churn(next Layout) int {
	var n int
	prev := make(map[string]bool, len(l.Video)+len(l.Audio))
	for _, p := range l.Video {
		prev["v"+p.ID] = true
	}
	for _, p := range l.Audio {
		prev["a"+p.ID] = true
	}
	for _, p := range next.Video {
		if !prev["v"+p.ID] {
			n++
		}
	}
	for _, p := range next.Audio {
		if !prev["a"+p.ID] {
			n++
		}
	}
	return n
}
