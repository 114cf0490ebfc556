// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package auth

import (
	"errors"
	"sync"
	"time"
)

var (
	errInvalidToken   = errors.New("token is invalid")
	errExpiredSession = errors.New("session is expired")
)

type CachedSession struct {
	ClientID       string
	ExpirationDate time.Time
}

type SessionCacheConfig struct {
	ExpirationMinutes int `toml:"expiration_minutes"`
}

func (c SessionCacheConfig) IsValid() error {
	if c.ExpirationMinutes <= 0 {
		return errors.New("invalid ExpirationMinutes value: should be a positive number")
	}
	return nil
}

// SessionCache maps bearer tokens to client ids. A client holds at most one
// token at a time.
type SessionCache struct {
	ttl        time.Duration
	sessionMap map[string]CachedSession
	// clientID -> token
	tokens map[string]string
	now    func() time.Time

	mut sync.RWMutex
}

func NewSessionCache(cfg SessionCacheConfig) (*SessionCache, error) {
	if err := cfg.IsValid(); err != nil {
		return nil, err
	}
	return &SessionCache{
		ttl:        time.Duration(cfg.ExpirationMinutes) * time.Minute,
		sessionMap: make(map[string]CachedSession),
		tokens:     make(map[string]string),
		now:        time.Now,
	}, nil
}

func (sc *SessionCache) Get(token string) (CachedSession, error) {
	sc.mut.RLock()
	session, ok := sc.sessionMap[token]
	sc.mut.RUnlock()
	if !ok {
		return CachedSession{}, errInvalidToken
	}

	if sc.now().After(session.ExpirationDate) {
		sc.mut.Lock()
		// The client may have logged in again meanwhile.
		if current, ok := sc.sessionMap[token]; ok && current == session {
			sc.remove(session.ClientID)
		}
		sc.mut.Unlock()
		return CachedSession{}, errExpiredSession
	}

	return session, nil
}

// Put stores token for clientID, replacing the previous token of the client.
func (sc *SessionCache) Put(clientID, token string) error {
	if clientID == "" {
		return errors.New("can not cache: invalid client id")
	}
	if token == "" {
		return errors.New("can not cache: invalid token")
	}

	sc.mut.Lock()
	defer sc.mut.Unlock()

	if _, ok := sc.sessionMap[token]; ok {
		return errors.New("can not cache: token in use")
	}

	sc.remove(clientID)
	sc.sessionMap[token] = CachedSession{
		ClientID:       clientID,
		ExpirationDate: sc.now().Add(sc.ttl),
	}
	sc.tokens[clientID] = token

	return nil
}

func (sc *SessionCache) Delete(clientID string) {
	sc.mut.Lock()
	sc.remove(clientID)
	sc.mut.Unlock()
}

// Prune drops every expired session and returns how many were removed.
func (sc *SessionCache) Prune() int {
	sc.mut.Lock()
	defer sc.mut.Unlock()

	now := sc.now()
	var pruned int
	for _, session := range sc.sessionMap {
		if now.After(session.ExpirationDate) {
			sc.remove(session.ClientID)
			pruned++
		}
	}
	return pruned
}

func (sc *SessionCache) remove(clientID string) {
	if token, ok := sc.tokens[clientID]; ok {
		delete(sc.sessionMap, token)
		delete(sc.tokens, clientID)
	}
}
