// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package service

import (
	"fmt"
	"sync"
	"time"

	"github.com/mattermost/galleryd/logger"
	"github.com/mattermost/galleryd/service/api"
	"github.com/mattermost/galleryd/service/auth"
	"github.com/mattermost/galleryd/service/gallery"
	"github.com/mattermost/galleryd/service/perf"
	"github.com/mattermost/galleryd/service/store"
	"github.com/mattermost/galleryd/service/ws"

	"github.com/mattermost/mattermost/server/public/shared/mlog"
	"github.com/prometheus/procfs"
)

const (
	metricsNamespace       = "galleryd"
	sessionCachePruneEvery = time.Minute
)

type Service struct {
	cfg           Config
	apiServer     *api.Server
	wsServer      *ws.Server
	galleryServer *gallery.Server
	store         store.Store
	auth          *auth.Service
	sessionCache  *auth.SessionCache
	metrics       *perf.Metrics
	proc          procfs.FS
	log           *mlog.Logger

	// connSessions tracks the gallery sessions joined through each ws
	// connection, sessionConns is the reverse index used to route layouts.
	connSessions map[string]map[string]gallery.SessionConfig
	sessionConns map[string]string
	mut          sync.RWMutex

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func New(cfg Config) (*Service, error) {
	if err := cfg.IsValid(); err != nil {
		return nil, err
	}

	log, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to init logger: %w", err)
	}

	s := &Service{
		cfg:          cfg,
		log:          log,
		connSessions: map[string]map[string]gallery.SessionConfig{},
		sessionConns: map[string]string{},
		stopCh:       make(chan struct{}),
	}

	s.log.Info("galleryd: starting up", getVersionInfo().logFields()...)

	s.proc, err = procfs.NewDefaultFS()
	if err != nil {
		s.log.Warn("failed to open procfs, system info will be unavailable", mlog.Err(err))
	}

	s.store, err = store.New(cfg.Store.DataSource)
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}
	s.log.Info("initiated data store", mlog.String("DataSource", cfg.Store.DataSource))

	s.sessionCache, err = auth.NewSessionCache(cfg.API.Security.SessionCache)
	if err != nil {
		return nil, fmt.Errorf("failed to create session cache: %w", err)
	}

	s.auth, err = auth.NewService(s.store, s.sessionCache)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth service: %w", err)
	}

	s.metrics = perf.NewMetrics(metricsNamespace, nil)

	s.apiServer, err = api.NewServer(cfg.API.HTTP, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create api server: %w", err)
	}

	s.wsServer, err = ws.NewServer(cfg.API.WS, log, ws.WithAuthCb(s.wsAuthHandler), ws.WithMetrics(s.metrics))
	if err != nil {
		return nil, fmt.Errorf("failed to create ws server: %w", err)
	}

	s.galleryServer, err = gallery.NewServer(cfg.Gallery, log, s.metrics, s.store)
	if err != nil {
		return nil, fmt.Errorf("failed to create gallery server: %w", err)
	}

	s.apiServer.RegisterHandleFunc("/version", s.getVersion)
	s.apiServer.RegisterHandleFunc("/system", s.getSystemInfo)
	s.apiServer.RegisterHandleFunc("/stats", s.getStats)
	s.apiServer.RegisterHandler("/metrics", s.metrics.Handler())
	s.apiServer.RegisterHandleFunc("/register", s.registerClient)
	s.apiServer.RegisterHandleFunc("/unregister", s.unregisterClient)
	s.apiServer.RegisterHandleFunc("/login", s.loginClient)
	s.apiServer.RegisterHandleFunc("/calls/{callID}/sessions/{sessionID}/layout", s.handleGetLayout)
	s.apiServer.RegisterHandleFunc("/calls/{callID}/speakers", s.handleGetSpeakers)
	s.apiServer.RegisterHandleFunc("/select", s.handleSelect)
	s.apiServer.RegisterHandler("/ws", s.wsServer)

	if cfg.API.Profiling.Enable {
		profiles := perf.NewDeltaProfiles(cfg.API.Profiling.MutexFraction, cfg.API.Profiling.BlockRate)
		for _, name := range profiles.Names() {
			s.apiServer.RegisterHandleFunc("/debug/delta/"+name, api.HandleFunc(s.adminOnly(profiles.Handler(name))))
		}
		s.log.Info("delta profiling is enabled")
	}

	return s, nil
}

func (s *Service) Start() error {
	if err := s.galleryServer.Start(); err != nil {
		return fmt.Errorf("failed to start gallery server: %w", err)
	}

	if err := s.apiServer.Start(); err != nil {
		return fmt.Errorf("failed to start api server: %w", err)
	}

	s.wg.Add(3)
	go s.wsReader()
	go s.galleryReader()
	go s.sessionCachePruner()

	return nil
}

// Stop shuts the service down. The gallery server stops before the ws
// connections are dropped so stored layouts outlive the restart and
// reconnecting sessions resume their tiles.
func (s *Service) Stop() error {
	s.log.Info("galleryd: shutting down")

	if err := s.apiServer.Stop(); err != nil {
		return fmt.Errorf("failed to stop api server: %w", err)
	}

	if err := s.galleryServer.Stop(); err != nil {
		return fmt.Errorf("failed to stop gallery server: %w", err)
	}

	s.wsServer.Close()
	close(s.stopCh)
	s.wg.Wait()

	if err := s.store.Close(); err != nil {
		return fmt.Errorf("failed to close store: %w", err)
	}

	if err := s.log.Shutdown(); err != nil {
		return fmt.Errorf("failed to shutdown logger: %w", err)
	}

	return nil
}

func (s *Service) sessionCachePruner() {
	defer s.wg.Done()

	ticker := time.NewTicker(sessionCachePruneEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := s.sessionCache.Prune(); n > 0 {
				s.log.Debug("pruned expired sessions", mlog.Int("count", n))
			}
		case <-s.stopCh:
			return
		}
	}
}
