// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package gallery

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

type MessageType int

const (
	JoinMessage MessageType = iota + 1
	LeaveMessage
	VideoOnMessage
	VideoOffMessage
	VoiceOnMessage
	VoiceOffMessage
	AudioLevelMessage
	DominantSpeakersMessage
	ScreenOnMessage
	ScreenOffMessage
	LayoutMessage
)

func (t MessageType) String() string {
	switch t {
	case JoinMessage:
		return "join"
	case LeaveMessage:
		return "leave"
	case VideoOnMessage:
		return "video_on"
	case VideoOffMessage:
		return "video_off"
	case VoiceOnMessage:
		return "voice_on"
	case VoiceOffMessage:
		return "voice_off"
	case AudioLevelMessage:
		return "audio_level"
	case DominantSpeakersMessage:
		return "dominant_speakers"
	case ScreenOnMessage:
		return "screen_on"
	case ScreenOffMessage:
		return "screen_off"
	case LayoutMessage:
		return "layout"
	default:
		return "unknown"
	}
}

// Message is the unit exchanged with the gallery server. The content of Data
// depends on Type:
//   - JoinMessage: optional msgpack encoded JoinData.
//   - VideoOnMessage: the video stream id.
//   - AudioLevelMessage: a raw RTP packet.
//   - DominantSpeakersMessage: msgpack encoded []string, most dominant first.
//   - LayoutMessage: msgpack encoded LayoutInfo.
type Message struct {
	GroupID   string      `msgpack:"group_id"`
	CallID    string      `msgpack:"call_id"`
	SessionID string      `msgpack:"session_id"`
	Type      MessageType `msgpack:"type"`
	Data      []byte      `msgpack:"data,omitempty"`
}

func (m *Message) IsValid() error {
	if err := m.sessionConfig().IsValid(); err != nil {
		return err
	}
	if m.Type < JoinMessage || m.Type > LayoutMessage {
		return fmt.Errorf("invalid Type value")
	}
	return nil
}

func (m *Message) sessionConfig() SessionConfig {
	return SessionConfig{
		GroupID:   m.GroupID,
		CallID:    m.CallID,
		SessionID: m.SessionID,
	}
}

type JoinData struct {
	VideoAvailable bool   `msgpack:"video_available"`
	StreamID       string `msgpack:"stream_id,omitempty"`
}

// LayoutInfo is what a viewer receives: the participants to render with
// video, the ones to render as audio-only tiles and the current screen
// sharer, if any.
type LayoutInfo struct {
	Video           []Participant `json:"video" msgpack:"video"`
	Audio           []Participant `json:"audio" msgpack:"audio"`
	ScreenSessionID string        `json:"screen_session_id,omitempty" msgpack:"screen_session_id,omitempty"`
}

func NewMessage(cfg SessionConfig, msgType MessageType, data []byte) Message {
	return Message{
		GroupID:   cfg.GroupID,
		CallID:    cfg.CallID,
		SessionID: cfg.SessionID,
		Type:      msgType,
		Data:      data,
	}
}

func NewJoinMessage(cfg SessionConfig, data JoinData) (Message, error) {
	js, err := msgpack.Marshal(data)
	if err != nil {
		return Message{}, fmt.Errorf("failed to marshal join data: %w", err)
	}
	return NewMessage(cfg, JoinMessage, js), nil
}

func NewDominantSpeakersMessage(cfg SessionConfig, ids []string) (Message, error) {
	data, err := msgpack.Marshal(ids)
	if err != nil {
		return Message{}, fmt.Errorf("failed to marshal dominant speakers: %w", err)
	}
	return NewMessage(cfg, DominantSpeakersMessage, data), nil
}

func newLayoutMessage(s *session, info LayoutInfo) (Message, error) {
	data, err := msgpack.Marshal(info)
	if err != nil {
		return Message{}, fmt.Errorf("failed to marshal layout: %w", err)
	}
	return NewMessage(s.cfg, LayoutMessage, data), nil
}

// DecodeLayoutInfo unpacks the payload of a LayoutMessage.
func DecodeLayoutInfo(msg Message) (LayoutInfo, error) {
	var info LayoutInfo
	if msg.Type != LayoutMessage {
		return info, fmt.Errorf("unexpected message type %s", msg.Type)
	}
	if err := msgpack.Unmarshal(msg.Data, &info); err != nil {
		return info, fmt.Errorf("failed to unmarshal layout: %w", err)
	}
	return info, nil
}
