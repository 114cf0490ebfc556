// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package gallery

import (
	"fmt"

	"github.com/pion/rtp"
)

const defaultAudioLevelExtensionID = 1

// parseAudioLevel extracts the audio level from a raw RTP packet. ok is false
// when the packet doesn't carry the extension.
func parseAudioLevel(data []byte, extID uint8) (uint8, bool, error) {
	var packet rtp.Packet
	if err := packet.Unmarshal(data); err != nil {
		return 0, false, fmt.Errorf("failed to unmarshal rtp packet: %w", err)
	}

	extData := packet.GetExtension(extID)
	if extData == nil {
		return 0, false, nil
	}

	var ext rtp.AudioLevelExtension
	if err := ext.Unmarshal(extData); err != nil {
		return 0, false, fmt.Errorf("failed to unmarshal audio level extension: %w", err)
	}

	return ext.Level, true, nil
}
