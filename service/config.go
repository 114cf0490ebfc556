// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package service

import (
	"fmt"
	"net/url"
	"time"

	"github.com/mattermost/galleryd/logger"
	"github.com/mattermost/galleryd/service/api"
	"github.com/mattermost/galleryd/service/auth"
	"github.com/mattermost/galleryd/service/gallery"
	"github.com/mattermost/galleryd/service/ws"
)

type SecurityConfig struct {
	// Whether or not to enable admin API access.
	EnableAdmin bool `toml:"enable_admin"`
	// The secret key used to authenticate admin requests.
	AdminSecretKey string `toml:"admin_secret_key"`
	// Whether or not to allow clients to self-register.
	AllowSelfRegistration bool                    `toml:"allow_self_registration"`
	SessionCache          auth.SessionCacheConfig `toml:"session_cache"`
}

func (c SecurityConfig) IsValid() error {
	if !c.EnableAdmin {
		return nil
	}

	if c.AdminSecretKey == "" {
		return fmt.Errorf("invalid AdminSecretKey value: should not be empty")
	}

	return nil
}

type ProfilingConfig struct {
	// Whether or not to serve delta profiles under /debug/delta.
	Enable bool `toml:"enable"`
	// MutexFraction and BlockRate are passed to the runtime when profiling
	// is enabled.
	MutexFraction int `toml:"mutex_fraction"`
	BlockRate     int `toml:"block_rate"`
}

type APIConfig struct {
	HTTP      api.Config      `toml:"http"`
	Security  SecurityConfig  `toml:"security"`
	WS        ws.ServerConfig `toml:"ws"`
	Profiling ProfilingConfig `toml:"profiling"`
}

func (c APIConfig) IsValid() error {
	if err := c.Security.IsValid(); err != nil {
		return fmt.Errorf("failed to validate security config: %w", err)
	}

	if err := c.HTTP.IsValid(); err != nil {
		return fmt.Errorf("failed to validate http config: %w", err)
	}

	if err := c.WS.IsValid(); err != nil {
		return fmt.Errorf("failed to validate ws config: %w", err)
	}

	return nil
}

type Config struct {
	API     APIConfig            `toml:"api"`
	Gallery gallery.ServerConfig `toml:"gallery"`
	Store   StoreConfig          `toml:"store"`
	Logger  logger.Config        `toml:"logger"`
}

func (c Config) IsValid() error {
	if err := c.API.IsValid(); err != nil {
		return err
	}

	if err := c.Gallery.IsValid(); err != nil {
		return fmt.Errorf("failed to validate gallery config: %w", err)
	}

	if err := c.Store.IsValid(); err != nil {
		return err
	}

	return c.Logger.IsValid()
}

func (c *Config) SetDefaults() {
	c.API.HTTP.ListenAddress = ":8055"
	c.API.HTTP.SetDefaults()
	c.API.Security.SessionCache.ExpirationMinutes = 1440
	c.API.WS.ReadBufferSize = 4096
	c.API.WS.WriteBufferSize = 4096
	c.API.WS.PingInterval = 10 * time.Second
	c.API.WS.MaxMessagesPerSecond = 2000
	c.API.WS.MessagesBurst = 500
	c.API.Profiling.MutexFraction = 5
	c.API.Profiling.BlockRate = 10000
	c.Gallery.SetDefaults()
	c.Store.DataSource = "/tmp/galleryd_db"
	c.Logger.SetDefaults()
}

type StoreConfig struct {
	DataSource string `toml:"data_source"`
}

func (c StoreConfig) IsValid() error {
	if c.DataSource == "" {
		return fmt.Errorf("invalid DataSource value: should not be empty")
	}
	return nil
}

type ClientConfig struct {
	// URL is the base HTTP(S) address of the service.
	URL string
	// ClientID is the id the client registered with. Empty for admin access.
	ClientID string
	// AuthKey is the key of the client, or the admin secret key.
	AuthKey string

	httpURL string
	wsURL   string
}

// Parse validates the config and derives the HTTP and WebSocket endpoints.
func (c *ClientConfig) Parse() error {
	if c.URL == "" {
		return fmt.Errorf("invalid URL value: should not be empty")
	}

	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("failed to parse url: %w", err)
	}

	if u.Host == "" {
		return fmt.Errorf("invalid url host: should not be empty")
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return fmt.Errorf("invalid url scheme: %q is not valid", u.Scheme)
	}

	c.httpURL = c.URL
	u.Path = "/ws"
	c.wsURL = u.String()

	return nil
}
