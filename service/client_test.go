// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mattermost/galleryd/service/auth"
	"github.com/mattermost/galleryd/service/gallery"
	"github.com/mattermost/galleryd/service/random"
	"github.com/mattermost/galleryd/service/ws"

	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	for _, tc := range []struct {
		name  string
		url   string
		err   string
		wsURL string
	}{
		{name: "empty config", err: "failed to parse config: invalid URL value: should not be empty"},
		{name: "invalid url", url: "not_a_url", err: "failed to parse config: invalid url host: should not be empty"},
		{name: "invalid scheme", url: "ftp://invalid", err: `failed to parse config: invalid url scheme: "ftp" is not valid`},
		{name: "http", url: "http://localhost", wsURL: "ws://localhost/ws"},
		{name: "https", url: "https://localhost", wsURL: "wss://localhost/ws"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			c, err := NewClient(ClientConfig{URL: tc.url})
			if tc.err != "" {
				require.EqualError(t, err, tc.err)
				require.Nil(t, c)
				return
			}
			require.NoError(t, err)
			defer c.Close()
			require.Equal(t, tc.url, c.cfg.httpURL)
			require.Equal(t, tc.wsURL, c.cfg.wsURL)
		})
	}

	t.Run("custom dialing function", func(t *testing.T) {
		var called atomic.Bool
		dialFn := func(ctx context.Context, network, addr string) (net.Conn, error) {
			called.Store(true)
			return (&net.Dialer{}).DialContext(ctx, network, addr)
		}

		c, err := NewClient(ClientConfig{URL: "http://localhost"}, WithDialFunc(dialFn))
		require.NoError(t, err)
		defer c.Close()

		_ = c.Register("", "")
		require.True(t, called.Load())
	})
}

func TestClientRequestTimeout(t *testing.T) {
	c, err := NewClient(ClientConfig{URL: "http://localhost"}, WithRequestTimeout(0))
	require.EqualError(t, err, "failed to apply option: invalid request timeout 0s: should be positive")
	require.Nil(t, c)

	c, err = NewClient(ClientConfig{URL: "http://localhost"}, WithRequestTimeout(time.Minute))
	require.NoError(t, err)
	defer c.Close()
	require.Equal(t, time.Minute, c.requestTimeout)
}

func TestClientRegistration(t *testing.T) {
	th := SetupTestHelper(t, nil)
	defer th.Teardown()

	authKey, err := random.NewSecureString(auth.MinKeyLen)
	require.NoError(t, err)

	t.Run("register", func(t *testing.T) {
		err := th.adminClient.Register("", authKey)
		require.EqualError(t, err, "request failed: registration failed: error: empty key")

		err = th.adminClient.Register("clientA", "")
		require.EqualError(t, err, "request failed: registration failed: key not long enough")

		require.NoError(t, th.adminClient.Register("clientA", authKey))

		err = th.adminClient.Register("clientA", authKey)
		require.EqualError(t, err, "request failed: registration failed: already registered")
	})

	t.Run("wrong admin key", func(t *testing.T) {
		c := th.newClient("", th.cfg.API.Security.AdminSecretKey+"_")
		defer c.Close()

		err := c.Register("clientB", authKey)
		require.EqualError(t, err, "request failed: authentication failed: unauthorized")
		err = c.Unregister("clientA")
		require.EqualError(t, err, "request failed: authentication failed: unauthorized")
	})

	t.Run("self registration", func(t *testing.T) {
		c := th.newClient("", "")
		defer c.Close()

		err := c.Register("clientB", authKey)
		require.EqualError(t, err, "request failed: authentication failed: unauthorized")

		th.srvc.cfg.API.Security.AllowSelfRegistration = true
		defer func() {
			th.srvc.cfg.API.Security.AllowSelfRegistration = false
		}()
		require.NoError(t, c.Register("clientB", authKey))

		token, err := c.Login("clientB", authKey)
		require.NoError(t, err)
		require.NotEmpty(t, token)
	})

	t.Run("unregister", func(t *testing.T) {
		err := th.adminClient.Unregister("")
		require.EqualError(t, err, "request failed: client id should not be empty")

		err = th.adminClient.Unregister("clientC")
		require.EqualError(t, err, "request failed: unregister failed: error: not found")

		require.NoError(t, th.adminClient.Unregister("clientA"))
		require.NoError(t, th.adminClient.Unregister("clientB"))
	})
}

func TestClientConnect(t *testing.T) {
	th := SetupTestHelper(t, nil)
	defer th.Teardown()

	t.Run("auth failure", func(t *testing.T) {
		c := th.newClient("clientA", "")
		defer c.Close()
		require.Error(t, c.Connect())
	})

	t.Run("lifecycle", func(t *testing.T) {
		c, _ := th.connectClient("clientA", th.registerClient("clientA"))

		require.EqualError(t, c.Connect(), "ws client is already initialized")
		require.NoError(t, c.Close())
		require.EqualError(t, c.Connect(), "ws client is closed")
		require.EqualError(t, c.Send(ClientMessage{}), "ws client is closed")
		require.EqualError(t, c.Close(), "ws client is closed")
	})

	t.Run("send before connecting", func(t *testing.T) {
		c := th.newClient("clientA", "")
		defer c.Close()
		require.EqualError(t, c.Send(ClientMessage{}), "ws client is not initialized")
	})

	t.Run("dial failure", func(t *testing.T) {
		dialFn := func(_ context.Context, _, _ string) (net.Conn, error) {
			return nil, fmt.Errorf("test dial failure")
		}
		c := th.newClient("clientA", "", WithDialFunc(dialFn))
		defer c.Close()

		err := c.Connect()
		require.EqualError(t, err, "failed to create ws client: failed to dial: test dial failure")
	})
}

func TestClientSendReceive(t *testing.T) {
	th := SetupTestHelper(t, nil)
	defer th.Teardown()

	clientID := "clientA"
	c, connID := th.connectClient(clientID, th.registerClient(clientID))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		err := <-c.ErrorCh()
		require.NoError(t, err)
	}()

	// Unknown message types are dropped by the service without closing the
	// connection.
	for i := 0; i < 10; i++ {
		require.NoError(t, c.Send(ClientMessage{Type: "unknown", Data: []byte("data")}))
	}

	msgs := []ClientMessage{
		{Type: "test"},
		{Type: "test2"},
		{Type: "test3"},
	}
	for _, msg := range msgs {
		data, err := msg.Pack()
		require.NoError(t, err)
		err = th.srvc.wsServer.Send(ws.Message{Type: ws.BinaryMessage, Data: data, ConnID: connID, ClientID: clientID})
		require.NoError(t, err)
	}

	for _, expected := range msgs {
		msg, ok := <-c.ReceiveCh()
		require.True(t, ok)
		require.Equal(t, expected, msg)
	}

	require.NoError(t, c.Close())
	wg.Wait()
}

func TestClientReconnect(t *testing.T) {
	th := SetupTestHelper(t, nil)
	defer th.Teardown()

	clientID := "clientA"
	authKey := th.registerClient(clientID)

	dropConn := func(connID string) {
		t.Helper()
		err := th.srvc.wsServer.Send(ws.Message{Type: ws.CloseMessage, ClientID: clientID, ConnID: connID})
		require.NoError(t, err)
	}

	t.Run("success", func(t *testing.T) {
		var attempts atomic.Int32
		c, connID := th.connectClient(clientID, authKey, WithClientReconnectCb(func(_ *Client, n int) error {
			require.Equal(t, 1, n)
			attempts.Add(1)
			return nil
		}))
		defer c.Close()

		dropConn(connID)
		newConnID := waitHello(t, c)
		require.NotEqual(t, connID, newConnID)
		require.Equal(t, int32(1), attempts.Load())
	})

	t.Run("callback error", func(t *testing.T) {
		var attempts atomic.Int32
		c, connID := th.connectClient(clientID, authKey, WithClientReconnectCb(func(_ *Client, _ int) error {
			attempts.Add(1)
			return errors.New("cb error")
		}))

		dropConn(connID)
		_, ok := <-c.ReceiveCh()
		require.False(t, ok)
		require.Equal(t, int32(1), attempts.Load())
		require.EqualError(t, c.Close(), "ws client is closed")
	})

	t.Run("close while reconnecting", func(t *testing.T) {
		c, connID := th.connectClient(clientID, authKey)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			dropConn(connID)
		}()
		go func() {
			defer wg.Done()
			time.Sleep(time.Millisecond)
			_ = c.Close()
		}()
		wg.Wait()

		for range c.ReceiveCh() {
		}
	})
}

func TestClientConcurrency(t *testing.T) {
	th := SetupTestHelper(t, nil)
	defer th.Teardown()

	c := th.newClient("clientA", th.registerClient("clientA"))

	concurrently := func(n int, fn func() error) int {
		var nErrors atomic.Int32
		var wg sync.WaitGroup
		wg.Add(n)
		for i := 0; i < n; i++ {
			go func() {
				defer wg.Done()
				if err := fn(); err != nil {
					nErrors.Add(1)
				}
			}()
		}
		wg.Wait()
		return int(nErrors.Load())
	}

	require.Equal(t, 9, concurrently(10, c.Connect))
	require.Equal(t, 9, concurrently(10, c.Close))
}

func TestClientInfo(t *testing.T) {
	th := SetupTestHelper(t, nil)
	defer th.Teardown()

	t.Run("version", func(t *testing.T) {
		buildHash = "432dad0"
		buildDate = "2022-05-12 09:05"
		buildVersion = "v0.1.0"
		defer func() {
			buildHash = ""
			buildDate = ""
			buildVersion = ""
		}()

		info, err := th.adminClient.GetVersionInfo()
		require.NoError(t, err)
		require.Equal(t, getVersionInfo(), info)
		require.Equal(t, "v0.1.0", info.BuildVersion)
	})

	t.Run("system", func(t *testing.T) {
		// Give enough time to collect a sample.
		time.Sleep(2 * time.Second)
		info, err := th.adminClient.GetSystemInfo()
		require.NoError(t, err)
		require.NotZero(t, info.CPULoad)
	})
}

func TestReconnectClientHerd(t *testing.T) {
	cfg := MakeDefaultCfg(t)
	cfg.API.HTTP.ListenAddress = ":38045"
	cfg.API.Security.AllowSelfRegistration = true

	th := SetupTestHelper(t, cfg)

	authKey, err := random.NewSecureString(auth.MinKeyLen)
	require.NoError(t, err)

	// NOTE: this value needs to be bumped for any serious benchmarking.
	n := 10
	var connectedWg sync.WaitGroup
	connectedWg.Add(n)
	var reconnectedWg sync.WaitGroup
	reconnectedWg.Add(n)

	for i := 0; i < n; i++ {
		go func(clientID string) {
			// The store does not survive the restart so clients register
			// again before every attempt.
			c := th.newClient(clientID, authKey, WithClientReconnectCb(func(c *Client, _ int) error {
				_ = c.Register(clientID, authKey)
				return nil
			}))
			require.NoError(t, c.Register(clientID, authKey))
			require.NoError(t, c.Connect())
			connectedWg.Done()

			hellos := 0
			for msg := range c.ReceiveCh() {
				if msg.Type != ClientMessageHello {
					continue
				}
				if hellos++; hellos == 2 {
					require.NoError(t, c.Close())
					reconnectedWg.Done()
				}
			}
		}(fmt.Sprintf("client%d", i))
	}

	connectedWg.Wait()

	th.Teardown()
	th = SetupTestHelper(t, cfg)
	defer th.Teardown()

	reconnectedWg.Wait()
}

func TestClientGetLayout(t *testing.T) {
	th := SetupTestHelper(t, nil)
	defer th.Teardown()

	authKey := th.registerClient("clientA")

	t.Run("unauthorized", func(t *testing.T) {
		c, err := NewClient(ClientConfig{
			URL: th.apiURL,
		})
		require.NoError(t, err)
		require.NotNil(t, c)
		defer c.Close()

		info, code, err := c.GetLayout("callID", "sessionID")
		require.EqualError(t, err, "request failed with status 401 Unauthorized")
		require.Empty(t, info)
		require.Equal(t, http.StatusUnauthorized, code)
	})

	t.Run("no call ongoing", func(t *testing.T) {
		c, err := NewClient(ClientConfig{
			URL:      th.apiURL,
			ClientID: "clientA",
			AuthKey:  authKey,
		})
		require.NoError(t, err)
		require.NotNil(t, c)
		defer c.Close()

		info, code, err := c.GetLayout("callID", "sessionID")
		require.EqualError(t, err, "request failed with status 404 Not Found")
		require.Empty(t, info)
		require.Equal(t, http.StatusNotFound, code)
	})

	t.Run("layout found", func(t *testing.T) {
		c, err := NewClient(ClientConfig{
			URL:      th.apiURL,
			ClientID: "clientA",
			AuthKey:  authKey,
		})
		require.NoError(t, err)
		require.NotNil(t, c)
		defer c.Close()

		for _, sessionID := range []string{"sessionA", "sessionB"} {
			err := th.srvc.galleryServer.Send(gallery.NewMessage(gallery.SessionConfig{
				GroupID:   "clientA",
				CallID:    "callIDA",
				SessionID: sessionID,
			}, gallery.JoinMessage, nil))
			require.NoError(t, err)
		}

		require.Eventually(t, func() bool {
			info, code, err := c.GetLayout("callIDA", "sessionA")
			return err == nil && code == http.StatusOK && len(info.Audio) == 1
		}, 2*time.Second, 10*time.Millisecond)

		info, _, err := c.GetLayout("callIDA", "sessionA")
		require.NoError(t, err)
		require.Empty(t, info.Video)
		require.Equal(t, []gallery.Participant{{ID: "sessionB"}}, info.Audio)

		_, code, err := c.GetLayout("callIDA", "sessionC")
		require.EqualError(t, err, "request failed with status 404 Not Found")
		require.Equal(t, http.StatusNotFound, code)
	})

	t.Run("admin needs a group", func(t *testing.T) {
		info, code, err := th.adminClient.GetLayout("callIDA", "sessionA")
		require.EqualError(t, err, "request failed with status 400 Bad Request")
		require.Empty(t, info)
		require.Equal(t, http.StatusBadRequest, code)
	})
}

func TestClientGetDominantSpeakers(t *testing.T) {
	th := SetupTestHelper(t, nil)
	defer th.Teardown()

	c := th.newClient("clientA", th.registerClient("clientA"))
	defer c.Close()

	_, err := c.GetDominantSpeakers("callA")
	require.EqualError(t, err, "request failed with status 404 Not Found")

	cfgA := gallery.SessionConfig{GroupID: "clientA", CallID: "callA", SessionID: "sessionA"}
	cfgB := gallery.SessionConfig{GroupID: "clientA", CallID: "callA", SessionID: "sessionB"}
	require.NoError(t, th.srvc.galleryServer.Send(gallery.NewMessage(cfgA, gallery.JoinMessage, nil)))
	require.NoError(t, th.srvc.galleryServer.Send(gallery.NewMessage(cfgB, gallery.JoinMessage, nil)))
	require.NoError(t, th.srvc.galleryServer.Send(gallery.NewMessage(cfgB, gallery.VoiceOnMessage, nil)))
	require.NoError(t, th.srvc.galleryServer.Send(gallery.NewMessage(cfgA, gallery.VoiceOnMessage, nil)))

	require.Eventually(t, func() bool {
		ids, err := c.GetDominantSpeakers("callA")
		return err == nil && len(ids) == 2
	}, 2*time.Second, 10*time.Millisecond)

	ids, err := c.GetDominantSpeakers("callA")
	require.NoError(t, err)
	require.Equal(t, []string{"sessionA", "sessionB"}, ids)
}

func TestClientSelect(t *testing.T) {
	th := SetupTestHelper(t, nil)
	defer th.Teardown()

	t.Run("unauthorized", func(t *testing.T) {
		c, err := NewClient(ClientConfig{URL: th.apiURL})
		require.NoError(t, err)
		defer c.Close()

		visible, err := c.Select(SelectRequest{})
		require.EqualError(t, err, "request failed with status 401 Unauthorized")
		require.Nil(t, visible)
	})

	t.Run("success", func(t *testing.T) {
		participants := []gallery.Participant{
			{ID: "A", VideoAvailable: true, StreamID: "streamA"},
			{ID: "B"},
			{ID: "C"},
			{ID: "D"},
			{ID: "E"},
		}
		visible, err := th.adminClient.Select(SelectRequest{
			Participants:        participants,
			DominantSpeakerIDs:  []string{"E", "B"},
			LastVisible:         []gallery.Participant{{ID: "C"}, {ID: "X"}},
			MaxVisible:          4,
			MaxDominantSpeakers: 2,
		})
		require.NoError(t, err)
		require.Equal(t, []gallery.Participant{
			{ID: "C"},
			{ID: "E"},
			{ID: "B"},
			{ID: "A", VideoAvailable: true, StreamID: "streamA"},
		}, visible)
	})

	t.Run("zero capacity", func(t *testing.T) {
		visible, err := th.adminClient.Select(SelectRequest{
			Participants: []gallery.Participant{{ID: "A"}},
			MaxVisible:   0,
		})
		require.NoError(t, err)
		require.Empty(t, visible)
	})
}

func TestClientGallery(t *testing.T) {
	th := SetupTestHelper(t, nil)
	defer th.Teardown()

	clientID := "clientA"
	c, _ := th.connectClient(clientID, th.registerClient(clientID))
	defer c.Close()

	waitLayout := func(sessionID string) gallery.LayoutInfo {
		t.Helper()
		for {
			select {
			case msg, ok := <-c.ReceiveCh():
				require.True(t, ok)
				require.Equal(t, ClientMessageGallery, msg.Type)
				galleryMsg, ok := msg.Data.(gallery.Message)
				require.True(t, ok)
				require.Equal(t, "callA", galleryMsg.CallID)
				if galleryMsg.SessionID != sessionID {
					continue
				}
				info, err := gallery.DecodeLayoutInfo(galleryMsg)
				require.NoError(t, err)
				return info
			case <-time.After(2 * time.Second):
				require.FailNow(t, "timed out waiting for layout")
			}
		}
	}

	join := func(sessionID, streamID string) {
		t.Helper()
		data := map[string]string{"callID": "callA", "sessionID": sessionID}
		if streamID != "" {
			data["streamID"] = streamID
		}
		err := c.Send(*NewClientMessage(ClientMessageJoin, data))
		require.NoError(t, err)
	}

	join("sessionA", "")
	info := waitLayout("sessionA")
	require.Empty(t, info.Video)
	require.Empty(t, info.Audio)

	join("sessionB", "streamB")
	info = waitLayout("sessionA")
	require.Equal(t, []gallery.Participant{{ID: "sessionB", VideoAvailable: true, StreamID: "streamB"}}, info.Video)
	require.Empty(t, info.Audio)

	join("sessionC", "")
	info = waitLayout("sessionA")
	require.Len(t, info.Video, 1)
	require.Equal(t, []gallery.Participant{{ID: "sessionC"}}, info.Audio)

	t.Run("screen sharing", func(t *testing.T) {
		err := c.Send(*NewClientMessage(ClientMessageGallery, gallery.Message{
			CallID:    "callA",
			SessionID: "sessionC",
			Type:      gallery.ScreenOnMessage,
		}))
		require.NoError(t, err)
		info := waitLayout("sessionA")
		require.Equal(t, "sessionC", info.ScreenSessionID)
	})

	t.Run("layouts are server generated", func(t *testing.T) {
		err := c.Send(*NewClientMessage(ClientMessageGallery, gallery.Message{
			CallID:    "callA",
			SessionID: "sessionA",
			Type:      gallery.LayoutMessage,
		}))
		require.NoError(t, err)

		info, err := th.srvc.galleryServer.GetLayout(clientID, "callA", "sessionA")
		require.NoError(t, err)
		require.Equal(t, "sessionC", info.ScreenSessionID)
		require.Len(t, info.Video, 1)
	})

	t.Run("leave", func(t *testing.T) {
		err := c.Send(*NewClientMessage(ClientMessageLeave, map[string]string{"callID": "callA", "sessionID": "sessionB"}))
		require.NoError(t, err)
		info := waitLayout("sessionA")
		require.Empty(t, info.Video)
		require.Equal(t, []gallery.Participant{{ID: "sessionC"}}, info.Audio)
	})

	t.Run("disconnect leaves the call", func(t *testing.T) {
		err := c.Close()
		require.NoError(t, err)

		require.Eventually(t, func() bool {
			_, err := th.srvc.galleryServer.GetLayout(clientID, "callA", "sessionA")
			return errors.Is(err, gallery.ErrCallNotFound)
		}, 2*time.Second, 10*time.Millisecond)
	})
}
