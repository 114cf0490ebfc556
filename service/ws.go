// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package service

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/mattermost/galleryd/service/gallery"
	"github.com/mattermost/galleryd/service/ws"

	"github.com/mattermost/mattermost/server/public/shared/mlog"
)

func sessionKey(cfg gallery.SessionConfig) string {
	return cfg.GroupID + "/" + cfg.CallID + "/" + cfg.SessionID
}

func sessionConfigFromMsg(msg gallery.Message) gallery.SessionConfig {
	return gallery.SessionConfig{
		GroupID:   msg.GroupID,
		CallID:    msg.CallID,
		SessionID: msg.SessionID,
	}
}

// wsAuthHandler authenticates ws connections. Every connection must belong
// to a registered client since the client id is the gallery group.
func (s *Service) wsAuthHandler(w http.ResponseWriter, r *http.Request) (string, int, error) {
	clientID, code, err := s.authHandler(w, r)
	if err != nil {
		return "", code, err
	}
	if clientID == "" {
		return "", http.StatusForbidden, fmt.Errorf("ws connections require a client id")
	}
	return clientID, http.StatusOK, nil
}

func (s *Service) wsReader() {
	defer s.wg.Done()

	for msg := range s.wsServer.ReceiveCh() {
		switch msg.Type {
		case ws.OpenMessage:
			s.log.Debug("connect", mlog.String("connID", msg.ConnID), mlog.String("clientID", msg.ClientID))
			s.addConn(msg.ConnID)
			hello := NewClientMessage(ClientMessageHello, map[string]string{"connID": msg.ConnID})
			if err := s.sendClientMessage(msg.ConnID, msg.ClientID, hello); err != nil {
				s.log.Error("failed to send hello message", mlog.Err(err), mlog.String("connID", msg.ConnID))
			}
		case ws.CloseMessage:
			s.log.Debug("disconnect", mlog.String("connID", msg.ConnID), mlog.String("clientID", msg.ClientID))
			for _, cfg := range s.removeConn(msg.ConnID) {
				s.sendGalleryMessage(gallery.NewMessage(cfg, gallery.LeaveMessage, nil))
			}
		case ws.TextMessage:
			s.log.Error("unexpected text message", mlog.String("connID", msg.ConnID))
		case ws.BinaryMessage:
			var cm ClientMessage
			if err := cm.Unpack(msg.Data); err != nil {
				s.log.Error("failed to unpack client message", mlog.Err(err), mlog.String("connID", msg.ConnID))
				continue
			}
			if err := s.handleClientMessage(msg, cm); err != nil {
				s.log.Error("failed to handle client message",
					mlog.Err(err),
					mlog.String("type", cm.Type),
					mlog.String("connID", msg.ConnID),
					mlog.String("clientID", msg.ClientID))
			}
		default:
			s.log.Error("unexpected ws message type", mlog.Int("type", int(msg.Type)))
		}
	}
}

func (s *Service) handleClientMessage(msg ws.Message, cm ClientMessage) error {
	switch cm.Type {
	case ClientMessageJoin:
		data, err := cm.sessionData()
		if err != nil {
			return fmt.Errorf("invalid join message: %w", err)
		}
		cfg := gallery.SessionConfig{
			GroupID:   msg.ClientID,
			CallID:    data["callID"],
			SessionID: data["sessionID"],
		}
		joinMsg, err := gallery.NewJoinMessage(cfg, gallery.JoinData{
			VideoAvailable: data["streamID"] != "",
			StreamID:       data["streamID"],
		})
		if err != nil {
			return err
		}
		return s.joinSession(msg.ConnID, joinMsg)
	case ClientMessageLeave:
		data, err := cm.sessionData()
		if err != nil {
			return fmt.Errorf("invalid leave message: %w", err)
		}
		cfg := gallery.SessionConfig{
			GroupID:   msg.ClientID,
			CallID:    data["callID"],
			SessionID: data["sessionID"],
		}
		return s.leaveSession(msg.ConnID, gallery.NewMessage(cfg, gallery.LeaveMessage, nil))
	case ClientMessageGallery:
		galleryMsg, ok := cm.Data.(gallery.Message)
		if !ok {
			return fmt.Errorf("unexpected data type %T", cm.Data)
		}
		// Clients can only act on their own group.
		galleryMsg.GroupID = msg.ClientID

		switch galleryMsg.Type {
		case gallery.JoinMessage:
			return s.joinSession(msg.ConnID, galleryMsg)
		case gallery.LeaveMessage:
			return s.leaveSession(msg.ConnID, galleryMsg)
		case gallery.LayoutMessage:
			return fmt.Errorf("layout messages are server generated")
		}

		if s.getSessionConn(sessionConfigFromMsg(galleryMsg)) != msg.ConnID {
			return fmt.Errorf("session %q was not joined on this connection", galleryMsg.SessionID)
		}

		return s.galleryServer.Send(galleryMsg)
	default:
		return fmt.Errorf("unexpected client message type %q", cm.Type)
	}
}

// joinSession binds the session to connID and forwards the join. A session
// already bound to another connection is moved over without rejoining so a
// client reconnecting before its old connection timed out keeps its state.
func (s *Service) joinSession(connID string, msg gallery.Message) error {
	if err := msg.IsValid(); err != nil {
		return fmt.Errorf("invalid join message: %w", err)
	}

	cfg := sessionConfigFromMsg(msg)
	key := sessionKey(cfg)

	s.mut.Lock()
	sessions, ok := s.connSessions[connID]
	if !ok {
		s.mut.Unlock()
		return fmt.Errorf("connection %q not found", connID)
	}
	if prevConnID, ok := s.sessionConns[key]; ok {
		if prevConnID == connID {
			s.mut.Unlock()
			return fmt.Errorf("session %q already joined", cfg.SessionID)
		}
		delete(s.connSessions[prevConnID], key)
		s.sessionConns[key] = connID
		sessions[key] = cfg
		s.mut.Unlock()
		s.log.Debug("session moved to a new connection",
			mlog.String("sessionID", cfg.SessionID),
			mlog.String("prevConnID", prevConnID),
			mlog.String("connID", connID))
		return nil
	}
	sessions[key] = cfg
	s.sessionConns[key] = connID
	s.mut.Unlock()

	if err := s.galleryServer.Send(msg); err != nil {
		s.unbindSession(connID, key)
		return fmt.Errorf("failed to send join message: %w", err)
	}

	return nil
}

func (s *Service) leaveSession(connID string, msg gallery.Message) error {
	cfg := sessionConfigFromMsg(msg)
	if !s.unbindSession(connID, sessionKey(cfg)) {
		return fmt.Errorf("session %q was not joined on this connection", cfg.SessionID)
	}
	return s.galleryServer.Send(msg)
}

func (s *Service) sendGalleryMessage(msg gallery.Message) {
	if err := s.galleryServer.Send(msg); errors.Is(err, gallery.ErrServerStopped) {
		s.log.Debug("gallery server is stopped, dropping message", mlog.String("type", msg.Type.String()))
	} else if err != nil {
		s.log.Error("failed to send gallery message", mlog.Err(err), mlog.String("type", msg.Type.String()))
	}
}

func (s *Service) galleryReader() {
	defer s.wg.Done()

	for msg := range s.galleryServer.ReceiveCh() {
		connID := s.getSessionConn(sessionConfigFromMsg(msg))
		if connID == "" {
			s.log.Debug("no connection for session", mlog.String("sessionID", msg.SessionID), mlog.String("callID", msg.CallID))
			continue
		}

		cm := NewClientMessage(ClientMessageGallery, msg)
		if err := s.sendClientMessage(connID, msg.GroupID, cm); err != nil {
			s.log.Error("failed to send gallery message to client",
				mlog.Err(err),
				mlog.String("connID", connID),
				mlog.String("sessionID", msg.SessionID))
		}
	}
}

func (s *Service) sendClientMessage(connID, clientID string, cm *ClientMessage) error {
	data, err := cm.Pack()
	if err != nil {
		return fmt.Errorf("failed to pack message: %w", err)
	}
	return s.wsServer.Send(ws.Message{
		ConnID:   connID,
		ClientID: clientID,
		Type:     ws.BinaryMessage,
		Data:     data,
	})
}

func (s *Service) addConn(connID string) {
	s.mut.Lock()
	defer s.mut.Unlock()
	s.connSessions[connID] = map[string]gallery.SessionConfig{}
}

// removeConn forgets the connection and returns the sessions that were
// still bound to it.
func (s *Service) removeConn(connID string) []gallery.SessionConfig {
	s.mut.Lock()
	defer s.mut.Unlock()
	sessions := s.connSessions[connID]
	delete(s.connSessions, connID)
	cfgs := make([]gallery.SessionConfig, 0, len(sessions))
	for key, cfg := range sessions {
		delete(s.sessionConns, key)
		cfgs = append(cfgs, cfg)
	}
	return cfgs
}

func (s *Service) unbindSession(connID, key string) bool {
	s.mut.Lock()
	defer s.mut.Unlock()
	if s.sessionConns[key] != connID {
		return false
	}
	delete(s.sessionConns, key)
	delete(s.connSessions[connID], key)
	return true
}

func (s *Service) getSessionConn(cfg gallery.SessionConfig) string {
	s.mut.RLock()
	defer s.mut.RUnlock()
	return s.sessionConns[sessionKey(cfg)]
}
