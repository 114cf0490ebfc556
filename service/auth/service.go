// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package auth

import (
	"errors"
	"fmt"

	"github.com/mattermost/galleryd/service/random"
	"github.com/mattermost/galleryd/service/store"
)

const (
	MinKeyLen   = 32
	tokenLen    = 48
	clientKeyNS = "client:"
)

// Service authenticates the backends (clients) allowed to drive galleries.
// Each client id maps to a gallery group.
type Service struct {
	store        store.Store
	sessionCache *SessionCache
}

func NewService(store store.Store, sessionCache *SessionCache) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("invalid store")
	}
	if sessionCache == nil {
		return nil, fmt.Errorf("invalid session cache")
	}
	return &Service{
		store:        store,
		sessionCache: sessionCache,
	}, nil
}

func (s *Service) Authenticate(id, authKey string) error {
	hash, err := s.store.Get(clientKeyNS + id)
	if err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}
	if err := compareKeyHash(hash, authKey); err != nil {
		return fmt.Errorf("authentication failed")
	}

	// Keys stored with an older cost get upgraded on their next use.
	if needsRehash(hash) {
		if newHash, err := hashKey(authKey); err == nil {
			_ = s.store.Set(clientKeyNS+id, newHash)
		}
	}

	return nil
}

func (s *Service) Register(id, authKey string) error {
	if id == "" {
		return fmt.Errorf("registration failed: %w", store.ErrEmptyKey)
	}

	if len(authKey) < MinKeyLen {
		return fmt.Errorf("registration failed: key not long enough")
	}

	hash, err := hashKey(authKey)
	if err != nil {
		return fmt.Errorf("registration failed: %w", err)
	}

	if err := s.store.Put(clientKeyNS+id, hash); errors.Is(err, store.ErrConflict) {
		return fmt.Errorf("registration failed: already registered")
	} else if err != nil {
		return fmt.Errorf("registration failed: %w", err)
	}

	return nil
}

func (s *Service) Unregister(id string) error {
	if _, err := s.store.Get(clientKeyNS + id); err != nil {
		return fmt.Errorf("unregister failed: %w", err)
	}

	if err := s.store.Delete(clientKeyNS + id); err != nil {
		return fmt.Errorf("unregister failed: %w", err)
	}

	s.sessionCache.Delete(id)

	return nil
}

// Login authenticates the client and returns a bearer token that can be used
// in place of the key until it expires.
func (s *Service) Login(id, authKey string) (string, error) {
	if err := s.Authenticate(id, authKey); err != nil {
		return "", err
	}

	token, err := random.NewSecureString(tokenLen)
	if err != nil {
		return "", fmt.Errorf("login failed: %w", err)
	}

	if err := s.sessionCache.Put(id, token); err != nil {
		return "", fmt.Errorf("login failed: %w", err)
	}

	return token, nil
}

// ResolveToken returns the client id owning a bearer token.
func (s *Service) ResolveToken(token string) (string, error) {
	session, err := s.sessionCache.Get(token)
	if err != nil {
		return "", fmt.Errorf("authentication failed: %w", err)
	}
	return session.ClientID, nil
}
