// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package gallery

// Participant is a remote call participant as seen by a viewer.
type Participant struct {
	// ID uniquely identifies the participant within a call.
	ID string `json:"id" msgpack:"id"`
	// VideoAvailable is true when the participant is publishing a live video stream.
	VideoAvailable bool `json:"video_available" msgpack:"video_available"`
	// StreamID identifies the active video stream, if any.
	StreamID string `json:"stream_id,omitempty" msgpack:"stream_id,omitempty"`
}

func participantIDs(participants []Participant) []string {
	ids := make([]string, len(participants))
	for i, p := range participants {
		ids[i] = p.ID
	}
	return ids
}
