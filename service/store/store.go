// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package store

import (
	"errors"
)

var (
	ErrNotFound = errors.New("error: not found")
	ErrEmptyKey = errors.New("error: empty key")
	ErrConflict = errors.New("error: conflict")
)

// Store is a persistent key-value store. It holds client credentials and
// the last layout published to each session.
type Store interface {
	// Set writes value, replacing any existing one.
	Set(key, value string) error
	// Put writes value only if key is not set yet, failing with ErrConflict
	// otherwise.
	Put(key, value string) error
	Get(key string) (string, error)
	Delete(key string) error
	// Keys returns every key starting with prefix.
	Keys(prefix string) ([]string, error)
	Close() error
}

func New(dataSource string) (Store, error) {
	return newBitcaskStore(dataSource)
}
