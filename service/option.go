// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package service

import (
	"context"
	"fmt"
	"net"
	"time"
)

type ClientOption func(c *Client) error

// ClientReconnectCb is called before every reconnection attempt. Returning an
// error stops the client.
type ClientReconnectCb func(c *Client, attempt int) error

type DialContextFn func(ctx context.Context, network, addr string) (net.Conn, error)

func WithClientReconnectCb(cb ClientReconnectCb) ClientOption {
	return func(c *Client) error {
		c.reconnectCb = cb
		return nil
	}
}

// WithDialFunc sets the dialing function used by both the HTTP and the ws
// connections.
func WithDialFunc(dialFn DialContextFn) ClientOption {
	return func(c *Client) error {
		c.dialFn = dialFn
		return nil
	}
}

// WithRequestTimeout bounds how long the client waits for the response
// headers of an API request.
func WithRequestTimeout(d time.Duration) ClientOption {
	return func(c *Client) error {
		if d <= 0 {
			return fmt.Errorf("invalid request timeout %s: should be positive", d)
		}
		c.requestTimeout = d
		return nil
	}
}
