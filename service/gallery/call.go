// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package gallery

import (
	"sync"
)

type call struct {
	id      string
	groupID string

	sessions map[string]*session
	// order holds session ids in joining order, it's the input order for the
	// participant selection.
	order           []string
	speakers        speakerRanking
	screenSessionID string

	mut sync.RWMutex
}

func (c *call) getSession(sessionID string) *session {
	c.mut.RLock()
	defer c.mut.RUnlock()
	return c.sessions[sessionID]
}

func (c *call) addSession(cfg SessionConfig, participant Participant) (*session, bool) {
	c.mut.Lock()
	defer c.mut.Unlock()
	if s := c.sessions[cfg.SessionID]; s != nil {
		return s, false
	}

	s := &session{
		cfg:         cfg,
		participant: participant,
	}
	c.sessions[cfg.SessionID] = s
	c.order = append(c.order, cfg.SessionID)
	return s, true
}

func (c *call) removeSession(sessionID string) (*session, bool) {
	c.mut.Lock()
	defer c.mut.Unlock()
	s := c.sessions[sessionID]
	if s == nil {
		return nil, false
	}
	delete(c.sessions, sessionID)
	for i, id := range c.order {
		if id == sessionID {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	c.speakers.Remove(sessionID)
	if c.screenSessionID == sessionID {
		c.screenSessionID = ""
	}
	return s, true
}

func (c *call) sessionsCount() int {
	c.mut.RLock()
	defer c.mut.RUnlock()
	return len(c.sessions)
}

// participants returns everyone in the call in joining order, excluding
// the given viewer. Must be called with c.mut held.
func (c *call) participantsFor(viewerID string) []Participant {
	participants := make([]Participant, 0, len(c.order))
	for _, id := range c.order {
		if id == viewerID {
			continue
		}
		if s := c.sessions[id]; s != nil {
			participants = append(participants, s.participant)
		}
	}
	return participants
}

func (c *call) setScreenSession(sessionID string) bool {
	c.mut.Lock()
	defer c.mut.Unlock()
	if c.screenSessionID != "" {
		return false
	}
	c.screenSessionID = sessionID
	return true
}

func (c *call) clearScreenSession(sessionID string) bool {
	c.mut.Lock()
	defer c.mut.Unlock()
	if c.screenSessionID != sessionID {
		return false
	}
	c.screenSessionID = ""
	return true
}
