// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package gallery

import (
	"strings"

	"github.com/mattermost/galleryd/service/gallery/vad"
)

// session is at the same time a participant others can see and a viewer
// with its own layout.
type session struct {
	cfg         SessionConfig
	participant Participant

	// layout is the last layout published to this viewer. It's fed back into
	// the selection on the next update.
	layout          Layout
	screenSessionID string
	published       bool

	vadMonitor *vad.Monitor
}

func (s *session) layoutInfo() LayoutInfo {
	return LayoutInfo{
		Video:           s.layout.Video,
		Audio:           s.layout.Audio,
		ScreenSessionID: s.screenSessionID,
	}
}

const keySeparator = ":"

// layoutKey is "layout:<group>:<call>:<session>". With an empty SessionID it
// is the prefix shared by every layout of the call, which is unambiguous
// since ids can't contain keySeparator.
func layoutKey(cfg SessionConfig) string {
	return strings.Join([]string{"layout", cfg.GroupID, cfg.CallID, cfg.SessionID}, keySeparator)
}
