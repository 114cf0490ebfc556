// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package service

import (
	"net"
	"os"
	"testing"

	"github.com/mattermost/galleryd/service/auth"
	"github.com/mattermost/galleryd/service/random"

	"github.com/stretchr/testify/require"
)

type TestHelper struct {
	srvc        *Service
	adminClient *Client
	cfg         *Config
	tb          testing.TB
	apiURL      string
}

func MakeDefaultCfg(tb testing.TB) *Config {
	tb.Helper()

	dbDir, err := os.MkdirTemp("", "db")
	require.NoError(tb, err)

	var cfg Config
	cfg.SetDefaults()
	cfg.API.HTTP.ListenAddress = ":0"
	cfg.API.Security.EnableAdmin = true
	cfg.API.Security.AdminSecretKey = "admin_secret_key"
	cfg.Store.DataSource = dbDir
	cfg.Logger.EnableFile = false
	cfg.Logger.ConsoleLevel = "ERROR"

	return &cfg
}

func SetupTestHelper(tb testing.TB, cfg *Config) *TestHelper {
	tb.Helper()
	var err error

	if cfg == nil {
		cfg = MakeDefaultCfg(tb)
	}

	th := &TestHelper{
		cfg: cfg,
		tb:  tb,
	}

	th.srvc, err = New(*th.cfg)
	require.NoError(th.tb, err)
	require.NotNil(th.tb, th.srvc)

	err = th.srvc.Start()
	require.NoError(th.tb, err)

	_, port, err := net.SplitHostPort(th.srvc.apiServer.Addr())
	require.NoError(th.tb, err)
	th.apiURL = "http://localhost:" + port

	th.adminClient, err = NewClient(ClientConfig{
		URL:     th.apiURL,
		AuthKey: th.srvc.cfg.API.Security.AdminSecretKey,
	})
	require.NoError(th.tb, err)
	require.NotNil(th.tb, th.adminClient)

	return th
}

func (th *TestHelper) Teardown() {
	err := th.srvc.Stop()
	require.NoError(th.tb, err)

	err = os.RemoveAll(th.cfg.Store.DataSource)
	require.NoError(th.tb, err)

	err = th.adminClient.Close()
	require.NoError(th.tb, err)
}

// registerClient registers clientID through the admin API and returns its
// auth key.
func (th *TestHelper) registerClient(clientID string) string {
	th.tb.Helper()
	authKey, err := random.NewSecureString(auth.MinKeyLen)
	require.NoError(th.tb, err)
	require.NoError(th.tb, th.adminClient.Register(clientID, authKey))
	return authKey
}

func (th *TestHelper) newClient(clientID, authKey string, opts ...ClientOption) *Client {
	th.tb.Helper()
	c, err := NewClient(ClientConfig{
		URL:      th.apiURL,
		ClientID: clientID,
		AuthKey:  authKey,
	}, opts...)
	require.NoError(th.tb, err)
	require.NotNil(th.tb, c)
	return c
}

// connectClient opens a ws connection for clientID and returns the client
// along with the connection id sent in the hello message.
func (th *TestHelper) connectClient(clientID, authKey string, opts ...ClientOption) (*Client, string) {
	th.tb.Helper()
	c := th.newClient(clientID, authKey, opts...)
	require.NoError(th.tb, c.Connect())
	return c, waitHello(th.tb, c)
}

func waitHello(tb testing.TB, c *Client) string {
	tb.Helper()
	msg, ok := <-c.ReceiveCh()
	require.True(tb, ok)
	require.Equal(tb, ClientMessageHello, msg.Type)
	data, ok := msg.Data.(map[string]string)
	require.True(tb, ok)
	require.NotEmpty(tb, data["connID"])
	return data["connID"]
}
