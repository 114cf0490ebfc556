// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package ws

import (
	"context"
	"net"
	"net/http"
)

// AuthCb authenticates an incoming connection before the upgrade. It returns
// the id of the client owning the connection, or an error together with the
// HTTP status code to reply with.
type AuthCb func(w http.ResponseWriter, r *http.Request) (string, int, error)

type ServerOption func(s *Server) error

// WithAuthCb lets the caller set an optional callback to be called prior to
// performing the websocket upgrade.
func WithAuthCb(cb AuthCb) ServerOption {
	return func(s *Server) error {
		s.authCb = cb
		return nil
	}
}

// Metrics is the set of counters the server updates while handling
// connections.
type Metrics interface {
	IncWSConnections(clientID string)
	DecWSConnections(clientID string)
	IncWSMessages(clientID, direction string)
	IncWSDroppedMessages(clientID string)
}

// WithMetrics makes the server report connection and traffic stats.
func WithMetrics(m Metrics) ServerOption {
	return func(s *Server) error {
		s.metrics = m
		return nil
	}
}

type DialContextFn func(ctx context.Context, network, addr string) (net.Conn, error)

type ClientOption func(c *Client) error

// WithDialFunc lets the caller set an optional dialing function used to
// establish the underlying network connection.
func WithDialFunc(dialFn DialContextFn) ClientOption {
	return func(c *Client) error {
		c.dialFn = dialFn
		return nil
	}
}
