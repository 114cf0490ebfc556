// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package gallery

type Metrics interface {
	IncCalls(groupID string)
	DecCalls(groupID string)
	IncSessions(groupID string)
	DecSessions(groupID string)
	IncLayoutUpdates(groupID string)
	AddTileChurn(groupID string, tiles int)
	ObserveLayoutTiles(videoTiles, audioTiles int)
	IncErrors(groupID, errType string)
}
