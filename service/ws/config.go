// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package ws

import (
	"fmt"
	"strings"
	"time"
)

type ServerConfig struct {
	// ReadBufferSize specifies the size of the internal buffer
	// used to read from a ws connection.
	ReadBufferSize int `toml:"read_buffer_size"`
	// WriteBufferSize specifies the size of the internal buffer
	// used to write to a ws connection.
	WriteBufferSize int `toml:"write_buffer_size"`
	// PingInterval specifies the interval at which the server should send ping
	// messages to its connections. If the client doesn't respond in 2*PingInterval
	// the server will consider the client as disconnected and drop the connection.
	PingInterval time.Duration `toml:"ping_interval"`
	// MaxMessagesPerSecond caps the rate of messages accepted on a single
	// connection. Messages over the limit are dropped. Zero means no limit.
	MaxMessagesPerSecond float64 `toml:"max_messages_per_second"`
	// MessagesBurst is the number of messages allowed to exceed the rate
	// momentarily.
	MessagesBurst int `toml:"messages_burst"`
}

func (c ServerConfig) IsValid() error {
	if c.ReadBufferSize <= 0 {
		return fmt.Errorf("invalid ReadBufferSize value: should be greater than zero")
	}
	if c.WriteBufferSize <= 0 {
		return fmt.Errorf("invalid WriteBufferSize value: should be greater than zero")
	}
	if c.PingInterval < time.Second {
		return fmt.Errorf("invalid PingInterval value: should be at least 1 second")
	}
	if c.MaxMessagesPerSecond < 0 {
		return fmt.Errorf("invalid MaxMessagesPerSecond value: should not be negative")
	}
	if c.MaxMessagesPerSecond > 0 && c.MessagesBurst <= 0 {
		return fmt.Errorf("invalid MessagesBurst value: should be greater than zero")
	}

	return nil
}

type ClientAuthType int

const (
	BasicClientAuthType ClientAuthType = iota + 1
	BearerClientAuthType
)

type ClientConfig struct {
	// URL specifies the WebSocket URL to connect to.
	// Should start with either `ws://` or `wss://`.
	URL string
	// AuthToken specifies the token to be used to authenticate
	// the connection.
	AuthToken string
	// AuthType specifies the type of HTTP authentication to use when connecting.
	AuthType ClientAuthType
}

func (c ClientConfig) IsValid() error {
	if c.URL == "" {
		return fmt.Errorf("invalid URL value: should not be empty")
	}

	if !strings.HasPrefix(c.URL, "ws://") && !strings.HasPrefix(c.URL, "wss://") {
		return fmt.Errorf(`invalid URL value: should start with "ws://" or "wss://"`)
	}

	if c.AuthType != 0 && c.AuthType != BasicClientAuthType && c.AuthType != BearerClientAuthType {
		return fmt.Errorf("invalid AuthType value")
	}

	return nil
}

func (c ClientConfig) authHeader() string {
	if c.AuthToken == "" {
		return ""
	}
	if c.AuthType == BearerClientAuthType {
		return "Bearer " + c.AuthToken
	}
	return "Basic " + c.AuthToken
}
