// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package gallery

import (
	"fmt"
	"strings"

	"github.com/mattermost/galleryd/service/gallery/vad"
)

type ServerConfig struct {
	// Layout holds the tile limits applied to every viewer.
	Layout LayoutConfig `toml:"layout"`
	// VAD configures the voice activity monitors fed by audio level messages.
	VAD vad.MonitorConfig `toml:"vad"`
	// AudioLevelExtensionID is the RTP header extension id negotiated for
	// urn:ietf:params:rtp-hdrext:ssrc-audio-level (RFC 6464).
	AudioLevelExtensionID int `toml:"audio_level_extension_id"`
}

func (c *ServerConfig) SetDefaults() {
	c.Layout = c.Layout.SetDefaults()
	c.VAD = c.VAD.SetDefaults()
	if c.AudioLevelExtensionID == 0 {
		c.AudioLevelExtensionID = defaultAudioLevelExtensionID
	}
}

func (c ServerConfig) IsValid() error {
	if err := c.Layout.IsValid(); err != nil {
		return fmt.Errorf("invalid Layout config: %w", err)
	}

	if err := c.VAD.IsValid(); err != nil {
		return fmt.Errorf("invalid VAD config: %w", err)
	}

	// One-byte header extensions only allow ids in [1, 14].
	if c.AudioLevelExtensionID < 1 || c.AudioLevelExtensionID > 14 {
		return fmt.Errorf("invalid AudioLevelExtensionID value: %d is not in allowed range [1, 14]", c.AudioLevelExtensionID)
	}

	return nil
}

type SessionConfig struct {
	// GroupID specifies the id of the group the session should belong to.
	GroupID string
	// CallID specifies the id of the call the session should belong to.
	CallID string
	// SessionID specifies the unique identifier for the session. It doubles
	// as the participant id seen by the other sessions.
	SessionID string
}

func (c SessionConfig) IsValid() error {
	for _, f := range []struct{ name, value string }{
		{"GroupID", c.GroupID},
		{"CallID", c.CallID},
		{"SessionID", c.SessionID},
	} {
		if f.value == "" {
			return fmt.Errorf("invalid %s value: should not be empty", f.name)
		}
		// Ids are joined with keySeparator to build store keys.
		if strings.Contains(f.value, keySeparator) {
			return fmt.Errorf("invalid %s value: should not contain %q", f.name, keySeparator)
		}
	}

	return nil
}
