// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// keyHashCost is the bcrypt cost applied to newly stored client keys.
var keyHashCost = bcrypt.DefaultCost

var (
	errEmptyKey  = errors.New("invalid empty key")
	errEmptyHash = errors.New("invalid empty hash")
)

func hashKey(key string) (string, error) {
	if key == "" {
		return "", errEmptyKey
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(key), keyHashCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash key: %w", err)
	}
	return string(hash), nil
}

// compareKeyHash checks key against a hash produced by hashKey.
func compareKeyHash(hash, key string) error {
	switch {
	case hash == "":
		return errEmptyHash
	case key == "":
		return errEmptyKey
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(key))
}

// needsRehash reports whether hash was produced with a lower cost than the
// one currently configured.
func needsRehash(hash string) bool {
	cost, err := bcrypt.Cost([]byte(hash))
	return err == nil && cost < keyHashCost
}
