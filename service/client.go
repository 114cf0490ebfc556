// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package service

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/mattermost/galleryd/service/gallery"
	"github.com/mattermost/galleryd/service/ws"
)

const (
	msgChSize               = 64
	minReconnectWaitTime    = 100 * time.Millisecond
	maxReconnectWaitTime    = 5 * time.Second
	clientStateInit         = 0
	clientStateOpen         = 1
	clientStateClosed       = 2
	clientHTTPClientTimeout = 10 * time.Second
)

var errClientClosed = errors.New("ws client is closed")

type Client struct {
	cfg            *ClientConfig
	dialFn         DialContextFn
	reconnectCb    ClientReconnectCb
	requestTimeout time.Duration

	httpClient *http.Client
	wsClient   *ws.Client
	receiveCh  chan ClientMessage
	errorCh    chan error
	closeCh    chan struct{}

	state int
	mut   sync.RWMutex
	wg    sync.WaitGroup
}

func NewClient(cfg ClientConfig, opts ...ClientOption) (*Client, error) {
	if err := cfg.Parse(); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	c := &Client{
		cfg:            &cfg,
		requestTimeout: clientHTTPClientTimeout,
		receiveCh:      make(chan ClientMessage, msgChSize),
		errorCh:        make(chan error, msgChSize),
		closeCh:        make(chan struct{}),
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	dialFn := c.dialFn
	if dialFn == nil {
		dialFn = (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialFn,
		MaxConnsPerHost:       100,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   100,
		ResponseHeaderTimeout: c.requestTimeout,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   1 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	c.httpClient = &http.Client{Transport: transport}

	return c, nil
}

func (c *Client) doRequest(method, path string, reqData interface{}) (*http.Response, error) {
	var body io.Reader
	if reqData != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(reqData); err != nil {
			return nil, fmt.Errorf("failed to encode body: %w", err)
		}
		body = &buf
	}

	req, err := http.NewRequest(method, c.cfg.httpURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.SetBasicAuth(c.cfg.ClientID, c.cfg.AuthKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}

	return resp, nil
}

// responseError turns a failed response into an error, preferring the
// message carried in the JSON body.
func responseError(resp *http.Response) error {
	respData := map[string]interface{}{}
	if err := json.NewDecoder(resp.Body).Decode(&respData); err == nil {
		if errMsg, ok := respData["error"].(string); ok && errMsg != "" {
			return fmt.Errorf("request failed: %s", errMsg)
		}
	}
	return fmt.Errorf("request failed with status %s", resp.Status)
}

func (c *Client) Register(clientID, authKey string) error {
	resp, err := c.doRequest(http.MethodPost, "/register", map[string]string{
		"clientID": clientID,
		"authKey":  authKey,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return responseError(resp)
	}

	return nil
}

func (c *Client) Unregister(clientID string) error {
	resp, err := c.doRequest(http.MethodPost, "/unregister", map[string]string{
		"clientID": clientID,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return responseError(resp)
	}

	return nil
}

// Login exchanges the client credentials for a bearer token.
func (c *Client) Login(clientID, authKey string) (string, error) {
	resp, err := c.doRequest(http.MethodPost, "/login", map[string]string{
		"clientID": clientID,
		"authKey":  authKey,
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", responseError(resp)
	}

	respData := map[string]string{}
	if err := json.NewDecoder(resp.Body).Decode(&respData); err != nil {
		return "", fmt.Errorf("decoding http response failed: %w", err)
	}

	token := respData["bearerToken"]
	if token == "" {
		return "", fmt.Errorf("unexpected empty token")
	}

	return token, nil
}

func (c *Client) getJSON(path string, v interface{}) (int, error) {
	resp, err := c.doRequest(http.MethodGet, path, nil)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, fmt.Errorf("request failed with status %s", resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return resp.StatusCode, fmt.Errorf("decoding http response failed: %w", err)
	}

	return resp.StatusCode, nil
}

func (c *Client) GetVersionInfo() (VersionInfo, error) {
	var info VersionInfo
	_, err := c.getJSON("/version", &info)
	return info, err
}

func (c *Client) GetSystemInfo() (SystemInfo, error) {
	var info SystemInfo
	_, err := c.getJSON("/system", &info)
	return info, err
}

// GetLayout fetches the last layout published to a session. The returned
// status code lets callers tell a missing session apart from other failures.
func (c *Client) GetLayout(callID, sessionID string) (gallery.LayoutInfo, int, error) {
	var info gallery.LayoutInfo
	path := fmt.Sprintf("/calls/%s/sessions/%s/layout", url.PathEscape(callID), url.PathEscape(sessionID))
	code, err := c.getJSON(path, &info)
	return info, code, err
}

func (c *Client) GetDominantSpeakers(callID string) ([]string, error) {
	var res SpeakersResponse
	_, err := c.getJSON(fmt.Sprintf("/calls/%s/speakers", url.PathEscape(callID)), &res)
	return res.DominantSpeakerIDs, err
}

func (c *Client) Select(selReq SelectRequest) ([]gallery.Participant, error) {
	resp, err := c.doRequest(http.MethodPost, "/select", selReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("request failed with status %s", resp.Status)
	}

	var res SelectResponse
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, fmt.Errorf("decoding http response failed: %w", err)
	}

	return res.Visible, nil
}

func (c *Client) dialWS() (*ws.Client, error) {
	var opts []ws.ClientOption
	if c.dialFn != nil {
		opts = append(opts, ws.WithDialFunc(ws.DialContextFn(c.dialFn)))
	}
	return ws.NewClient(ws.ClientConfig{
		URL:       c.cfg.wsURL,
		AuthToken: base64.StdEncoding.EncodeToString([]byte(c.cfg.ClientID + ":" + c.cfg.AuthKey)),
		AuthType:  ws.BasicClientAuthType,
	}, opts...)
}

// Connect opens the WebSocket connection. The connection is transparently
// re-established if dropped until Close is called.
func (c *Client) Connect() error {
	c.mut.Lock()
	defer c.mut.Unlock()

	switch c.state {
	case clientStateOpen:
		return fmt.Errorf("ws client is already initialized")
	case clientStateClosed:
		return errClientClosed
	}

	wsClient, err := c.dialWS()
	if err != nil {
		return fmt.Errorf("failed to create ws client: %w", err)
	}

	c.wsClient = wsClient
	c.state = clientStateOpen

	c.wg.Add(1)
	go c.wsReader()

	return nil
}

func (c *Client) Send(msg ClientMessage) error {
	c.mut.RLock()
	defer c.mut.RUnlock()

	switch c.state {
	case clientStateInit:
		return fmt.Errorf("ws client is not initialized")
	case clientStateClosed:
		return errClientClosed
	}

	data, err := msg.Pack()
	if err != nil {
		return fmt.Errorf("failed to pack message: %w", err)
	}
	return c.wsClient.Send(ws.BinaryMessage, data)
}

func (c *Client) ReceiveCh() <-chan ClientMessage {
	return c.receiveCh
}

func (c *Client) ErrorCh() <-chan error {
	return c.errorCh
}

func (c *Client) Close() error {
	c.mut.Lock()
	if c.state == clientStateClosed {
		c.mut.Unlock()
		return errClientClosed
	}
	wasOpen := c.state == clientStateOpen
	c.state = clientStateClosed
	wsClient := c.wsClient
	close(c.closeCh)
	c.mut.Unlock()

	c.httpClient.CloseIdleConnections()

	var err error
	if wasOpen {
		err = wsClient.Close()
		c.wg.Wait()
	}

	return err
}

func (c *Client) sendError(err error) {
	select {
	case c.errorCh <- err:
	default:
		log.Printf("failed to send error: channel is full")
	}
}

func (c *Client) isClosed() bool {
	c.mut.RLock()
	defer c.mut.RUnlock()
	return c.state == clientStateClosed
}

func (c *Client) wsReader() {
	defer func() {
		close(c.receiveCh)
		close(c.errorCh)
		c.wg.Done()
	}()

	for {
		c.mut.RLock()
		wsClient := c.wsClient
		c.mut.RUnlock()

		c.readMessages(wsClient)

		if c.isClosed() {
			return
		}

		if err := c.reconnect(); err != nil {
			if !errors.Is(err, errClientClosed) {
				c.sendError(err)
			}
			c.mut.Lock()
			c.state = clientStateClosed
			c.mut.Unlock()
			return
		}
	}
}

// readMessages forwards messages from wsClient until its connection drops.
func (c *Client) readMessages(wsClient *ws.Client) {
	errDoneCh := make(chan struct{})
	go func() {
		defer close(errDoneCh)
		for err := range wsClient.ErrorCh() {
			c.sendError(err)
		}
	}()

	for msg := range wsClient.ReceiveCh() {
		if msg.Type != ws.BinaryMessage {
			c.sendError(fmt.Errorf("unexpected msg type: %d", msg.Type))
			continue
		}

		var cm ClientMessage
		if err := cm.Unpack(msg.Data); err != nil {
			c.sendError(fmt.Errorf("failed to unpack message: %w", err))
			continue
		}

		select {
		case c.receiveCh <- cm:
		default:
			c.sendError(fmt.Errorf("failed to send client message: channel is full"))
		}
	}

	<-errDoneCh
}

func (c *Client) reconnect() error {
	waitTime := minReconnectWaitTime
	for attempt := 1; ; attempt++ {
		select {
		case <-time.After(waitTime):
		case <-c.closeCh:
			return errClientClosed
		}

		if c.reconnectCb != nil {
			if err := c.reconnectCb(c, attempt); err != nil {
				return fmt.Errorf("reconnect callback failed: %w", err)
			}
		}

		wsClient, err := c.dialWS()
		if err != nil {
			c.sendError(fmt.Errorf("failed to reconnect: %w", err))
			waitTime = min(waitTime*2, maxReconnectWaitTime)
			continue
		}

		c.mut.Lock()
		if c.state == clientStateClosed {
			c.mut.Unlock()
			_ = wsClient.Close()
			return errClientClosed
		}
		c.wsClient = wsClient
		c.mut.Unlock()

		return nil
	}
}
