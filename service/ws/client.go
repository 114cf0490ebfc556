// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package ws

import (
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
)

type connState int32

const (
	connClosed connState = iota
	connOpen
	connClosing
)

// Client is a single WebSocket connection to a Server. Sends are queued and
// written by a dedicated goroutine.
type Client struct {
	cfg         ClientConfig
	dialFn      DialContextFn
	pingHandler func(appData string) error
	conn        *conn
	sendCh      chan Message
	receiveCh   chan Message
	errorCh     chan error
	wg          sync.WaitGroup
	state       atomic.Int32
}

// NewClient dials cfg.URL and returns a connected client.
func NewClient(cfg ClientConfig, opts ...ClientOption) (*Client, error) {
	if err := cfg.IsValid(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}

	c := &Client{
		cfg:       cfg,
		sendCh:    make(chan Message, sendChSize),
		receiveCh: make(chan Message, receiveChSize),
		errorCh:   make(chan error),
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	ws, err := c.dial()
	if err != nil {
		return nil, err
	}
	if c.pingHandler != nil {
		ws.SetPingHandler(c.pingHandler)
	}
	ws.SetReadLimit(connMaxReadBytes)
	c.conn = newConn(newID(), "", ws)

	c.setState(connOpen)
	c.wg.Add(2)
	go c.reader()
	go c.writer()

	return c, nil
}

func (c *Client) dial() (*websocket.Conn, error) {
	header := http.Header{}
	if auth := c.cfg.authHeader(); auth != "" {
		header.Set("Authorization", auth)
	}

	dialer := *websocket.DefaultDialer
	if c.dialFn != nil {
		dialer.NetDialContext = c.dialFn
	}

	ws, resp, err := dialer.Dial(c.cfg.URL, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil && resp != nil {
		return nil, fmt.Errorf("failed to dial: %w (status %d)", err, resp.StatusCode)
	} else if err != nil {
		return nil, fmt.Errorf("failed to dial: %w", err)
	}

	return ws, nil
}

func (c *Client) reader() {
	defer func() {
		close(c.receiveCh)
		c.wg.Done()
		close(c.conn.closeCh)
		c.wg.Wait()
		close(c.errorCh)
		c.setState(connClosed)
	}()

	for {
		mt, data, err := c.conn.ws.ReadMessage()
		if err != nil {
			c.sendError(fmt.Errorf("failed to read message: %w", err))
			return
		}

		msgType, ok := messageType(mt)
		if !ok {
			c.sendError(fmt.Errorf("unexpected message type: %d", mt))
			continue
		}

		c.receiveCh <- Message{
			ConnID: c.conn.id,
			Type:   msgType,
			Data:   data,
		}
	}
}

func (c *Client) writer() {
	defer c.wg.Done()

	for {
		select {
		case msg := <-c.sendCh:
			if err := c.conn.write(msg); err != nil {
				c.sendError(err)
			}
		case <-c.conn.closeCh:
			return
		}
	}
}

// sendError reports err unless the client is going away or nobody is
// listening.
func (c *Client) sendError(err error) {
	if c.getState() != connOpen {
		return
	}
	select {
	case c.errorCh <- err:
	default:
	}
}

// Send queues a message of type mt. It fails if the connection is not open
// or the send queue is full.
func (c *Client) Send(mt MessageType, data []byte) error {
	if c.getState() != connOpen {
		return fmt.Errorf("failed to send message: connection is closed")
	}
	if mt != TextMessage && mt != BinaryMessage {
		return fmt.Errorf("failed to send message: unexpected message type %d", mt)
	}

	select {
	case c.sendCh <- Message{Type: mt, Data: data}:
		return nil
	default:
		return fmt.Errorf("failed to send message: channel is full")
	}
}

// ReceiveCh returns the channel inbound messages are delivered on. It gets
// closed once the connection drops.
func (c *Client) ReceiveCh() <-chan Message {
	return c.receiveCh
}

// ErrorCh returns the channel asynchronous read and write errors are
// delivered on.
func (c *Client) ErrorCh() <-chan error {
	return c.errorCh
}

// Close closes the connection and waits for the client goroutines to exit.
func (c *Client) Close() error {
	c.setState(connClosing)
	err := c.conn.close()
	c.wg.Wait()
	return err
}

func (c *Client) setState(st connState) {
	c.state.Store(int32(st))
}

func (c *Client) getState() connState {
	return connState(c.state.Load())
}
