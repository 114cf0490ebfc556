// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package ws

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestServerConfigIsValid(t *testing.T) {
	t.Run("empty struct", func(t *testing.T) {
		var cfg ServerConfig
		err := cfg.IsValid()
		require.Error(t, err)
		require.Equal(t, "invalid ReadBufferSize value: should be greater than zero", err.Error())
	})

	t.Run("invalid WriteBufferSize", func(t *testing.T) {
		var cfg ServerConfig
		cfg.ReadBufferSize = 1024
		err := cfg.IsValid()
		require.Error(t, err)
		require.Equal(t, "invalid WriteBufferSize value: should be greater than zero", err.Error())
	})

	t.Run("invalid PingInterval", func(t *testing.T) {
		var cfg ServerConfig
		cfg.ReadBufferSize = 1024
		cfg.WriteBufferSize = 1024
		cfg.PingInterval = 500 * time.Millisecond
		err := cfg.IsValid()
		require.Error(t, err)
		require.Equal(t, "invalid PingInterval value: should be at least 1 second", err.Error())
	})

	t.Run("invalid MaxMessagesPerSecond", func(t *testing.T) {
		cfg := ServerConfig{
			ReadBufferSize:       1024,
			WriteBufferSize:      1024,
			PingInterval:         time.Second,
			MaxMessagesPerSecond: -1,
		}
		err := cfg.IsValid()
		require.EqualError(t, err, "invalid MaxMessagesPerSecond value: should not be negative")
	})

	t.Run("missing MessagesBurst", func(t *testing.T) {
		cfg := ServerConfig{
			ReadBufferSize:       1024,
			WriteBufferSize:      1024,
			PingInterval:         time.Second,
			MaxMessagesPerSecond: 100,
		}
		err := cfg.IsValid()
		require.EqualError(t, err, "invalid MessagesBurst value: should be greater than zero")
	})

	t.Run("valid", func(t *testing.T) {
		cfg := ServerConfig{
			ReadBufferSize:       1024,
			WriteBufferSize:      1024,
			PingInterval:         time.Second,
			MaxMessagesPerSecond: 100,
			MessagesBurst:        50,
		}
		require.NoError(t, cfg.IsValid())
	})
}

func TestClientConfigIsValid(t *testing.T) {
	t.Run("empty URL", func(t *testing.T) {
		var cfg ClientConfig
		require.EqualError(t, cfg.IsValid(), "invalid URL value: should not be empty")
	})

	t.Run("invalid scheme", func(t *testing.T) {
		cfg := ClientConfig{URL: "http://localhost"}
		require.EqualError(t, cfg.IsValid(), `invalid URL value: should start with "ws://" or "wss://"`)
	})

	t.Run("invalid auth type", func(t *testing.T) {
		cfg := ClientConfig{URL: "ws://localhost", AuthType: 10}
		require.EqualError(t, cfg.IsValid(), "invalid AuthType value")
	})

	t.Run("valid", func(t *testing.T) {
		cfg := ClientConfig{URL: "wss://localhost/ws", AuthType: BearerClientAuthType}
		require.NoError(t, cfg.IsValid())
	})
}

func TestClientConfigAuthHeader(t *testing.T) {
	require.Empty(t, ClientConfig{}.authHeader())
	require.Equal(t, "Basic token", ClientConfig{AuthToken: "token"}.authHeader())
	require.Equal(t, "Basic token", ClientConfig{AuthToken: "token", AuthType: BasicClientAuthType}.authHeader())
	require.Equal(t, "Bearer token", ClientConfig{AuthToken: "token", AuthType: BearerClientAuthType}.authHeader())
}
