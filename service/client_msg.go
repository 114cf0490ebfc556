// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package service

import (
	"fmt"

	"github.com/mattermost/galleryd/service/gallery"

	"github.com/vmihailenco/msgpack/v5"
)

// ClientMessage is the envelope exchanged over the WebSocket connection.
//
// Data depends on Type:
//   - hello (server to client): map[string]string with the "connID".
//   - join, leave (client to server): map[string]string with "callID" and
//     "sessionID". A join may carry a "streamID" in which case the session
//     starts with video available.
//   - gallery (both ways): a gallery.Message. Layout updates flow to the
//     client, participant state and voice activity flow to the server.
type ClientMessage struct {
	Type string      `msgpack:"type"`
	Data interface{} `msgpack:"data,omitempty"`
}

const (
	ClientMessageJoin    = "join"
	ClientMessageLeave   = "leave"
	ClientMessageGallery = "gallery"
	ClientMessageHello   = "hello"
)

var _ msgpack.CustomEncoder = (*ClientMessage)(nil)

func (cm *ClientMessage) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.EncodeMulti(cm.Type, cm.Data)
}

var _ msgpack.CustomDecoder = (*ClientMessage)(nil)

func (cm *ClientMessage) DecodeMsgpack(dec *msgpack.Decoder) error {
	msgType, err := dec.DecodeString()
	if err != nil {
		return fmt.Errorf("failed to decode msg.Type: %w", err)
	}
	cm.Type = msgType

	switch cm.Type {
	case ClientMessageJoin, ClientMessageLeave, ClientMessageHello:
		data, err := dec.DecodeTypedMap()
		if err != nil {
			return fmt.Errorf("failed to decode msg.Data: %w", err)
		}
		cm.Data = data
	case ClientMessageGallery:
		var galleryMsg gallery.Message
		if err = dec.Decode(&galleryMsg); err != nil {
			return fmt.Errorf("failed to decode gallery.Message: %w", err)
		}
		cm.Data = galleryMsg
	default:
		data, err := dec.DecodeInterface()
		if err != nil {
			return fmt.Errorf("failed to decode msg.Data: %w", err)
		}
		cm.Data = data
	}

	return nil
}

func NewClientMessage(msgType string, data interface{}) *ClientMessage {
	return &ClientMessage{
		Type: msgType,
		Data: data,
	}
}

func (cm *ClientMessage) Pack() ([]byte, error) {
	return msgpack.Marshal(&cm)
}

func (cm *ClientMessage) Unpack(data []byte) error {
	return msgpack.Unmarshal(data, &cm)
}

// sessionData extracts the call and session ids carried by join and leave
// messages.
func (cm *ClientMessage) sessionData() (map[string]string, error) {
	data, ok := cm.Data.(map[string]string)
	if !ok {
		return nil, fmt.Errorf("unexpected data type %T", cm.Data)
	}
	if data["callID"] == "" {
		return nil, fmt.Errorf("missing callID")
	}
	if data["sessionID"] == "" {
		return nil, fmt.Errorf("missing sessionID")
	}
	return data, nil
}
