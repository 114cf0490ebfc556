// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package gallery

import (
	"sync"
)

// group defines a collection of calls that belongs to the same group.
type group struct {
	id    string
	calls map[string]*call

	mut sync.RWMutex
}

func (g *group) getCall(callID string) *call {
	g.mut.RLock()
	defer g.mut.RUnlock()
	return g.calls[callID]
}

func (s *Server) getGroup(groupID string) *group {
	s.mut.RLock()
	defer s.mut.RUnlock()
	return s.groups[groupID]
}

func (s *Server) getCall(groupID, callID string) *call {
	g := s.getGroup(groupID)
	if g == nil {
		return nil
	}
	return g.getCall(callID)
}

// getOrCreateCall returns the call, creating it (and its group) when needed.
func (s *Server) getOrCreateCall(groupID, callID string) (*call, bool) {
	s.mut.Lock()
	g := s.groups[groupID]
	if g == nil {
		g = &group{
			id:    groupID,
			calls: map[string]*call{},
		}
		s.groups[groupID] = g
	}
	s.mut.Unlock()

	g.mut.Lock()
	defer g.mut.Unlock()
	c := g.calls[callID]
	if c != nil {
		return c, false
	}
	c = &call{
		id:       callID,
		groupID:  groupID,
		sessions: map[string]*session{},
	}
	g.calls[callID] = c
	return c, true
}

func (s *Server) removeCall(groupID, callID string) {
	s.mut.Lock()
	defer s.mut.Unlock()
	g := s.groups[groupID]
	if g == nil {
		return
	}
	g.mut.Lock()
	delete(g.calls, callID)
	empty := len(g.calls) == 0
	g.mut.Unlock()
	if empty {
		delete(s.groups, groupID)
	}
}
