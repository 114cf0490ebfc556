// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package gallery

import (
	"errors"
	"fmt"
	"sync"

	"github.com/mattermost/galleryd/service/gallery/vad"
	"github.com/mattermost/galleryd/service/store"

	"github.com/mattermost/mattermost/server/public/shared/mlog"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	msgChSize = 256
)

var (
	ErrCallNotFound    = errors.New("call not found")
	ErrSessionNotFound = errors.New("session not found")
	ErrServerStopped   = errors.New("server is stopped")
)

// Server tracks calls and their sessions and publishes a layout to every
// session whenever its tiles change.
//
// Incoming messages are handled one at a time on a single goroutine so
// state transitions never interleave.
type Server struct {
	cfg     ServerConfig
	log     mlog.LoggerIFace
	metrics Metrics
	store   store.Store

	groups map[string]*group

	inCh   chan Message
	outCh  chan Message
	stopCh chan struct{}
	doneCh chan struct{}

	started bool
	stopped bool
	mut     sync.RWMutex
}

// NewServer creates a gallery server. st is optional, when set layouts
// survive sessions reconnecting to the service.
func NewServer(cfg ServerConfig, log mlog.LoggerIFace, metrics Metrics, st store.Store) (*Server, error) {
	if err := cfg.IsValid(); err != nil {
		return nil, err
	}
	if log == nil {
		return nil, fmt.Errorf("log should not be nil")
	}
	if metrics == nil {
		return nil, fmt.Errorf("metrics should not be nil")
	}

	return &Server{
		cfg:     cfg,
		log:     log,
		metrics: metrics,
		store:   st,
		groups:  map[string]*group{},
		inCh:    make(chan Message, msgChSize),
		outCh:   make(chan Message, msgChSize),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}, nil
}

func (s *Server) Start() error {
	s.mut.Lock()
	defer s.mut.Unlock()
	if s.started || s.stopped {
		return fmt.Errorf("server cannot be started")
	}
	s.started = true
	go s.msgReader()
	return nil
}

// Stop halts message processing and closes the channel returned by ReceiveCh.
func (s *Server) Stop() error {
	s.mut.Lock()
	if s.stopped {
		s.mut.Unlock()
		return fmt.Errorf("server is already stopped")
	}
	s.stopped = true
	started := s.started
	s.mut.Unlock()

	close(s.stopCh)
	if started {
		<-s.doneCh
	}
	close(s.outCh)

	return nil
}

// Send queues a message for processing. It never blocks.
func (s *Server) Send(msg Message) error {
	if err := msg.IsValid(); err != nil {
		return fmt.Errorf("invalid message: %w", err)
	}
	select {
	case <-s.stopCh:
		return ErrServerStopped
	default:
	}
	select {
	case s.inCh <- msg:
	default:
		return fmt.Errorf("failed to send gallery message, channel is full")
	}
	return nil
}

// ReceiveCh returns the channel layout messages are published on.
func (s *Server) ReceiveCh() <-chan Message {
	return s.outCh
}

// GetLayout returns the last layout published to the given session.
func (s *Server) GetLayout(groupID, callID, sessionID string) (LayoutInfo, error) {
	c := s.getCall(groupID, callID)
	if c == nil {
		return LayoutInfo{}, ErrCallNotFound
	}
	c.mut.RLock()
	defer c.mut.RUnlock()
	us := c.sessions[sessionID]
	if us == nil {
		return LayoutInfo{}, ErrSessionNotFound
	}
	return us.layoutInfo(), nil
}

// GetDominantSpeakers returns the current ranking of a call.
func (s *Server) GetDominantSpeakers(groupID, callID string) ([]string, error) {
	c := s.getCall(groupID, callID)
	if c == nil {
		return nil, ErrCallNotFound
	}
	c.mut.RLock()
	defer c.mut.RUnlock()
	return c.speakers.IDs(), nil
}

func (s *Server) msgReader() {
	defer close(s.doneCh)
	for {
		select {
		case msg := <-s.inCh:
			if err := s.handleMessage(msg); err != nil {
				s.log.Error("failed to handle message",
					mlog.Err(err),
					mlog.String("type", msg.Type.String()),
					mlog.String("sessionID", msg.SessionID),
					mlog.String("callID", msg.CallID))
				s.metrics.IncErrors(msg.GroupID, msg.Type.String())
			}
		case <-s.stopCh:
			return
		}
	}
}

func (s *Server) handleMessage(msg Message) error {
	if msg.Type == JoinMessage {
		return s.addSession(msg)
	}

	c := s.getCall(msg.GroupID, msg.CallID)
	if c == nil {
		return ErrCallNotFound
	}
	us := c.getSession(msg.SessionID)
	if us == nil {
		return ErrSessionNotFound
	}

	switch msg.Type {
	case LeaveMessage:
		return s.removeSession(c, msg.SessionID)
	case VideoOnMessage, VideoOffMessage:
		c.mut.Lock()
		us.participant.VideoAvailable = msg.Type == VideoOnMessage
		us.participant.StreamID = ""
		if msg.Type == VideoOnMessage {
			us.participant.StreamID = string(msg.Data)
		}
		c.mut.Unlock()
	case VoiceOnMessage:
		s.onVoice(c, us, true)
		return nil
	case VoiceOffMessage:
		// Stale samples must not turn voice back on after an explicit mute.
		if us.vadMonitor != nil {
			us.vadMonitor.Reset()
			return nil
		}
		s.onVoice(c, us, false)
		return nil
	case AudioLevelMessage:
		return s.pushAudioLevel(c, us, msg.Data)
	case DominantSpeakersMessage:
		var ids []string
		if err := msgpack.Unmarshal(msg.Data, &ids); err != nil {
			return fmt.Errorf("failed to unmarshal dominant speakers: %w", err)
		}
		c.mut.Lock()
		changed := c.speakers.Set(ids)
		c.mut.Unlock()
		if !changed {
			return nil
		}
	case ScreenOnMessage:
		if !c.setScreenSession(msg.SessionID) {
			return fmt.Errorf("screen is already being shared")
		}
	case ScreenOffMessage:
		if !c.clearScreenSession(msg.SessionID) {
			return nil
		}
	default:
		return fmt.Errorf("unexpected message type %s", msg.Type)
	}

	s.updateLayouts(c)

	return nil
}

func (s *Server) addSession(msg Message) error {
	cfg := msg.sessionConfig()
	if err := cfg.IsValid(); err != nil {
		return fmt.Errorf("invalid session config: %w", err)
	}

	var data JoinData
	if len(msg.Data) > 0 {
		if err := msgpack.Unmarshal(msg.Data, &data); err != nil {
			return fmt.Errorf("failed to unmarshal join data: %w", err)
		}
	}

	c, created := s.getOrCreateCall(cfg.GroupID, cfg.CallID)
	if created {
		s.log.Debug("gallery: call created", mlog.String("callID", cfg.CallID), mlog.String("groupID", cfg.GroupID))
		s.metrics.IncCalls(cfg.GroupID)
	}

	us, added := c.addSession(cfg, Participant{
		ID:             cfg.SessionID,
		VideoAvailable: data.VideoAvailable,
		StreamID:       data.StreamID,
	})
	if !added {
		return fmt.Errorf("session already exists")
	}
	s.metrics.IncSessions(cfg.GroupID)

	if last, ok := s.loadLayout(cfg); ok {
		c.mut.Lock()
		us.layout = last
		c.mut.Unlock()
	}

	s.log.Debug("gallery: session joined",
		mlog.String("sessionID", cfg.SessionID),
		mlog.String("callID", cfg.CallID),
		mlog.Int("sessions", c.sessionsCount()))

	s.updateLayouts(c)

	return nil
}

func (s *Server) removeSession(c *call, sessionID string) error {
	if _, ok := c.removeSession(sessionID); !ok {
		return ErrSessionNotFound
	}
	s.metrics.DecSessions(c.groupID)

	s.log.Debug("gallery: session left",
		mlog.String("sessionID", sessionID),
		mlog.String("callID", c.id))

	if c.sessionsCount() > 0 {
		s.updateLayouts(c)
		return nil
	}

	s.removeCall(c.groupID, c.id)
	s.metrics.DecCalls(c.groupID)
	s.log.Debug("gallery: call ended", mlog.String("callID", c.id), mlog.String("groupID", c.groupID))

	s.deleteCallLayouts(c.groupID, c.id)

	return nil
}

func (s *Server) onVoice(c *call, us *session, voice bool) {
	s.log.Debug("gallery: voice", mlog.Bool("voice", voice), mlog.String("sessionID", us.cfg.SessionID))

	// Speakers that go quiet keep their rank until someone else talks.
	if !voice {
		return
	}

	c.mut.Lock()
	changed := c.speakers.Promote(us.cfg.SessionID)
	c.mut.Unlock()

	if changed {
		s.updateLayouts(c)
	}
}

func (s *Server) pushAudioLevel(c *call, us *session, data []byte) error {
	level, ok, err := parseAudioLevel(data, uint8(s.cfg.AudioLevelExtensionID))
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	if us.vadMonitor == nil {
		monitor, err := vad.NewMonitor(s.cfg.VAD, func(voice bool) {
			s.onVoice(c, us, voice)
		})
		if err != nil {
			return fmt.Errorf("failed to create vad monitor: %w", err)
		}
		us.vadMonitor = monitor
	}

	us.vadMonitor.PushAudioLevel(level)

	return nil
}

// updateLayouts recomputes the layout of every session in the call and
// publishes the ones that changed.
func (s *Server) updateLayouts(c *call) {
	var msgs []Message

	c.mut.Lock()
	dominantSpeakers := c.speakers.IDs()
	for _, id := range c.order {
		us := c.sessions[id]
		participants := c.participantsFor(id)
		layout := ComputeLayout(s.cfg.Layout, participants, dominantSpeakers, us.layout)

		if us.published && layout.Equal(us.layout) && us.screenSessionID == c.screenSessionID {
			continue
		}

		s.metrics.AddTileChurn(c.groupID, us.layout.churn(layout))
		s.metrics.ObserveLayoutTiles(len(layout.Video), len(layout.Audio))
		us.layout = layout
		us.screenSessionID = c.screenSessionID
		us.published = true

		msg, err := newLayoutMessage(us, us.layoutInfo())
		if err != nil {
			s.log.Error("failed to create layout message", mlog.Err(err), mlog.String("sessionID", id))
			continue
		}
		msgs = append(msgs, msg)
		s.saveLayout(us.cfg, layout)
	}
	c.mut.Unlock()

	for _, msg := range msgs {
		s.metrics.IncLayoutUpdates(msg.GroupID)
		select {
		case s.outCh <- msg:
		default:
			s.log.Error("failed to send layout message: channel is full", mlog.String("sessionID", msg.SessionID))
			s.metrics.IncErrors(msg.GroupID, "layout")
		}
	}
}

func (s *Server) saveLayout(cfg SessionConfig, layout Layout) {
	if s.store == nil {
		return
	}
	data, err := msgpack.Marshal(layout)
	if err != nil {
		s.log.Error("failed to marshal layout", mlog.Err(err), mlog.String("sessionID", cfg.SessionID))
		return
	}
	if err := s.store.Set(layoutKey(cfg), string(data)); err != nil {
		s.log.Error("failed to store layout", mlog.Err(err), mlog.String("sessionID", cfg.SessionID))
	}
}

func (s *Server) loadLayout(cfg SessionConfig) (Layout, bool) {
	var layout Layout
	if s.store == nil {
		return layout, false
	}
	data, err := s.store.Get(layoutKey(cfg))
	if errors.Is(err, store.ErrNotFound) {
		return layout, false
	} else if err != nil {
		s.log.Error("failed to load layout", mlog.Err(err), mlog.String("sessionID", cfg.SessionID))
		return layout, false
	}
	if err := msgpack.Unmarshal([]byte(data), &layout); err != nil {
		s.log.Error("failed to unmarshal layout", mlog.Err(err), mlog.String("sessionID", cfg.SessionID))
		return layout, false
	}
	return layout, true
}

// deleteCallLayouts drops the stored layouts of every session that was part
// of the call, including the ones left over by a previous run.
func (s *Server) deleteCallLayouts(groupID, callID string) {
	if s.store == nil {
		return
	}
	keys, err := s.store.Keys(layoutKey(SessionConfig{GroupID: groupID, CallID: callID}))
	if err != nil {
		s.log.Error("failed to list layouts", mlog.Err(err), mlog.String("callID", callID))
		return
	}
	for _, key := range keys {
		if err := s.store.Delete(key); err != nil {
			s.log.Error("failed to delete layout", mlog.Err(err), mlog.String("key", key))
		}
	}
}
