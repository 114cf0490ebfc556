// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package ws

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mattermost/mattermost/server/public/shared/mlog"
	"golang.org/x/time/rate"
)

const (
	sendChSize    = 256
	receiveChSize = 256
	writeWaitTime = 10 * time.Second
)

type Server struct {
	cfg        ServerConfig
	log        mlog.LoggerIFace
	conns      map[string]*conn
	authCb     AuthCb
	metrics    Metrics
	mut        sync.RWMutex
	sendCh     chan Message
	receiveCh  chan Message
	writerDone chan struct{}
	closed     bool
}

// NewServer initializes and returns a new WebSocket server.
func NewServer(cfg ServerConfig, log mlog.LoggerIFace, opts ...ServerOption) (*Server, error) {
	if err := cfg.IsValid(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}
	if log == nil {
		return nil, fmt.Errorf("logger should not be nil")
	}

	s := &Server{
		cfg:        cfg,
		log:        log,
		conns:      make(map[string]*conn),
		sendCh:     make(chan Message, sendChSize),
		receiveCh:  make(chan Message, receiveChSize),
		writerDone: make(chan struct{}),
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	go s.connWriter()

	return s, nil
}

// Send queues a message to be written to the connection identified by
// msg.ConnID.
func (s *Server) Send(msg Message) error {
	s.mut.RLock()
	defer s.mut.RUnlock()
	if s.closed {
		return fmt.Errorf("server is closed")
	}

	select {
	case s.sendCh <- msg:
	default:
		return fmt.Errorf("failed to send message: channel is full")
	}
	return nil
}

// ReceiveCh returns a channel that should be used to receive messages from the
// connected clients, including open and close notifications.
func (s *Server) ReceiveCh() <-chan Message {
	return s.receiveCh
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var clientID string
	if s.authCb != nil {
		var code int
		var err error
		clientID, code, err = s.authCb(w, r)
		if err != nil {
			s.log.Debug("authCb failed", mlog.Err(err), mlog.Int("code", code))
			http.Error(w, err.Error(), code)
			return
		}
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  s.cfg.ReadBufferSize,
		WriteBufferSize: s.cfg.WriteBufferSize,
	}
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("failed to upgrade connection", mlog.Err(err))
		return
	}
	ws.SetReadLimit(connMaxReadBytes)

	conn := newConn(newID(), clientID, ws)
	if s.cfg.MaxMessagesPerSecond > 0 {
		conn.limiter = rate.NewLimiter(rate.Limit(s.cfg.MaxMessagesPerSecond), s.cfg.MessagesBurst)
	}

	defer conn.close()
	defer close(conn.closeCh)
	if !s.addConn(conn) {
		return
	}
	if s.metrics != nil {
		s.metrics.IncWSConnections(clientID)
		defer s.metrics.DecWSConnections(clientID)
	}

	s.receiveCh <- newOpenMessage(conn.id, clientID)

	defer s.removeConn(conn.id)
	defer func() {
		s.receiveCh <- newCloseMessage(conn.id, clientID)
	}()

	if err := ws.SetReadDeadline(time.Now().Add(2 * s.cfg.PingInterval)); err != nil {
		s.log.Error("failed to set read deadline", mlog.Err(err), mlog.String("connID", conn.id))
		return
	}
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(2 * s.cfg.PingInterval))
	})

	pingDoneCh := make(chan struct{})
	defer close(pingDoneCh)
	go s.pinger(conn, pingDoneCh)

	for {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug("ws read failed", mlog.Err(err), mlog.String("connID", conn.id))
			}
			return
		}

		if !conn.limiter.Allow() {
			s.log.Warn("dropping ws message: rate limit exceeded",
				mlog.String("connID", conn.id), mlog.String("clientID", clientID))
			if s.metrics != nil {
				s.metrics.IncWSDroppedMessages(clientID)
			}
			continue
		}

		msgType, ok := messageType(mt)
		if !ok {
			continue
		}

		if s.metrics != nil {
			s.metrics.IncWSMessages(clientID, "in")
		}

		s.receiveCh <- Message{
			ConnID:   conn.id,
			ClientID: clientID,
			Type:     msgType,
			Data:     data,
		}
	}
}

func (s *Server) pinger(conn *conn, doneCh <-chan struct{}) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := conn.ping(); err != nil {
				s.log.Debug("failed to send ping", mlog.Err(err), mlog.String("connID", conn.id))
				return
			}
		case <-doneCh:
			return
		}
	}
}

// Close closes all the connections and stops the server. Open connections
// are given the chance to deliver their close message before the receive
// channel gets closed.
func (s *Server) Close() {
	s.mut.Lock()
	if s.closed {
		s.mut.Unlock()
		return
	}
	s.closed = true
	close(s.sendCh)
	conns := make([]*conn, 0, len(s.conns))
	for _, conn := range s.conns {
		conns = append(conns, conn)
	}
	s.mut.Unlock()

	for _, conn := range conns {
		if err := conn.close(); err != nil {
			s.log.Error("failed to close ws conn", mlog.Err(err))
		}
		<-conn.closeCh
	}
	<-s.writerDone
	close(s.receiveCh)
}

func (s *Server) connWriter() {
	defer close(s.writerDone)

	for msg := range s.sendCh {
		conn := s.getConn(msg.ConnID)
		if conn == nil {
			s.log.Debug("failed to get conn for sending", mlog.String("connID", msg.ConnID))
			continue
		}

		if err := conn.write(msg); err != nil {
			s.log.Error("failed to send ws message", mlog.String("connID", msg.ConnID), mlog.Err(err))
			continue
		}

		if s.metrics != nil {
			s.metrics.IncWSMessages(conn.clientID, "out")
		}
	}
}
