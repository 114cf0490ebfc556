// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package ws

import (
	"fmt"
	"time"

	"github.com/mattermost/galleryd/service/random"

	"github.com/gorilla/websocket"
	"github.com/mattermost/mattermost/server/public/shared/mlog"
	"golang.org/x/time/rate"
)

const (
	connMaxReadBytes = 1024 * 1024 // 1MB
)

// conn is a single upgraded connection. The limiter only applies to inbound
// messages.
type conn struct {
	id       string
	clientID string
	ws       *websocket.Conn
	limiter  *rate.Limiter
	closeCh  chan struct{}
}

func newConn(id, clientID string, ws *websocket.Conn) *conn {
	return &conn{
		id:       id,
		clientID: clientID,
		ws:       ws,
		limiter:  rate.NewLimiter(rate.Inf, 0),
		closeCh:  make(chan struct{}),
	}
}

func newID() string {
	return random.NewID()
}

func wsMessageType(mt MessageType) (int, error) {
	switch mt {
	case TextMessage:
		return websocket.TextMessage, nil
	case BinaryMessage:
		return websocket.BinaryMessage, nil
	case CloseMessage:
		return websocket.CloseMessage, nil
	default:
		return 0, fmt.Errorf("unexpected message type %d", mt)
	}
}

func messageType(mt int) (MessageType, bool) {
	switch mt {
	case websocket.TextMessage:
		return TextMessage, true
	case websocket.BinaryMessage:
		return BinaryMessage, true
	default:
		return 0, false
	}
}

func (c *conn) write(msg Message) error {
	mt, err := wsMessageType(msg.Type)
	if err != nil {
		return err
	}
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWaitTime)); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}
	if err := c.ws.WriteMessage(mt, msg.Data); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

func (c *conn) ping() error {
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWaitTime))
}

func (c *conn) close() error {
	return c.ws.Close()
}

func (s *Server) addConn(c *conn) bool {
	if c == nil {
		return false
	}
	s.mut.Lock()
	defer s.mut.Unlock()
	if s.closed {
		return false
	}
	if _, ok := s.conns[c.id]; ok {
		return false
	}
	s.conns[c.id] = c
	return true
}

func (s *Server) removeConn(connID string) bool {
	s.mut.Lock()
	defer s.mut.Unlock()
	if _, ok := s.conns[connID]; !ok {
		return false
	}
	delete(s.conns, connID)
	return true
}

func (s *Server) getConn(connID string) *conn {
	if connID == "" {
		return nil
	}
	s.mut.RLock()
	defer s.mut.RUnlock()
	return s.conns[connID]
}

// getConns returns the open connections, optionally restricted to those
// owned by clientID.
func (s *Server) getConns(clientID ...string) []*conn {
	s.mut.RLock()
	defer s.mut.RUnlock()
	conns := make([]*conn, 0, len(s.conns))
	for _, c := range s.conns {
		if len(clientID) > 0 && c.clientID != clientID[0] {
			continue
		}
		conns = append(conns, c)
	}
	return conns
}

// CloseClientConns closes every connection owned by clientID and returns how
// many were closed. The regular close messages are still delivered.
func (s *Server) CloseClientConns(clientID string) int {
	conns := s.getConns(clientID)
	for _, c := range conns {
		if err := c.close(); err != nil {
			s.log.Debug("failed to close ws conn", mlog.Err(err), mlog.String("connID", c.id))
		}
	}
	return len(conns)
}
