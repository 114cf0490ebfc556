// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package service

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/mattermost/mattermost/server/public/shared/mlog"
)

const bearerPrefix = "Bearer "

// authHandler authenticates the request and returns the client id. An empty
// client id with no error means the request was made by the admin.
func (s *Service) authHandler(_ http.ResponseWriter, r *http.Request) (string, int, error) {
	if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, bearerPrefix) {
		clientID, err := s.auth.ResolveToken(strings.TrimPrefix(authHeader, bearerPrefix))
		if err != nil {
			s.log.Debug("failed to resolve token", mlog.Err(err))
			return "", http.StatusUnauthorized, fmt.Errorf("authentication failed")
		}
		return clientID, http.StatusOK, nil
	}

	clientID, authKey, ok := r.BasicAuth()
	if !ok {
		return "", http.StatusUnauthorized, fmt.Errorf("authentication failed: invalid auth header")
	}

	if s.cfg.API.Security.EnableAdmin && clientID == "" && authKey == s.cfg.API.Security.AdminSecretKey {
		return "", http.StatusOK, nil
	}

	if clientID == "" {
		return "", http.StatusUnauthorized, fmt.Errorf("authentication failed: unauthorized")
	}

	if err := s.auth.Authenticate(clientID, authKey); err != nil {
		s.log.Error("authentication failed", mlog.Err(err), mlog.String("clientID", clientID))
		return "", http.StatusUnauthorized, fmt.Errorf("authentication failed")
	}

	return clientID, http.StatusOK, nil
}

func (s *Service) adminOnly(hf http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clientID, code, err := s.authHandler(w, r)
		if err != nil {
			http.Error(w, err.Error(), code)
			return
		}
		if clientID != "" {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		hf(w, r)
	}
}

func (s *Service) registerClient(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.NotFound(w, req)
		return
	}

	data := newHTTPData()
	defer s.httpAudit("registerClient", data, w, req)

	if !s.cfg.API.Security.AllowSelfRegistration {
		if !s.cfg.API.Security.EnableAdmin {
			data.err = "registration is disabled"
			data.code = http.StatusForbidden
			return
		}

		clientID, code, err := s.authHandler(w, req)
		if err != nil {
			data.fail(code, err)
			return
		}
		if clientID != "" {
			data.err = "only admin can register clients"
			data.code = http.StatusForbidden
			return
		}
	}

	if err := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxRequestBytes)).Decode(&data.reqData); err != nil {
		data.fail(http.StatusBadRequest, err)
		return
	}

	clientID := data.reqData["clientID"]
	if err := s.auth.Register(clientID, data.reqData["authKey"]); err != nil {
		data.fail(http.StatusBadRequest, err)
		return
	}
	delete(data.reqData, "authKey")

	data.code = http.StatusCreated
	data.resData["clientID"] = clientID
}

func (s *Service) unregisterClient(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.NotFound(w, req)
		return
	}

	data := newHTTPData()
	defer s.httpAudit("unregisterClient", data, w, req)

	if !s.cfg.API.Security.EnableAdmin && !s.cfg.API.Security.AllowSelfRegistration {
		data.err = "unregistration is disabled"
		data.code = http.StatusForbidden
		return
	}

	authID, code, err := s.authHandler(w, req)
	if err != nil {
		data.fail(code, err)
		return
	}

	if err := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxRequestBytes)).Decode(&data.reqData); err != nil {
		data.fail(http.StatusBadRequest, err)
		return
	}

	clientID := data.reqData["clientID"]
	if clientID == "" {
		data.err = "client id should not be empty"
		data.code = http.StatusBadRequest
		return
	}

	if authID != "" && authID != clientID {
		data.err = "forbidden"
		data.code = http.StatusForbidden
		return
	}

	if err := s.auth.Unregister(clientID); err != nil {
		data.fail(http.StatusBadRequest, err)
		return
	}

	// Connections authenticated with the old credentials go away too.
	if n := s.wsServer.CloseClientConns(clientID); n > 0 {
		s.log.Debug("closed ws connections of unregistered client",
			mlog.String("clientID", clientID), mlog.Int("conns", n))
	}

	data.code = http.StatusOK
}

func (s *Service) loginClient(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.NotFound(w, req)
		return
	}

	data := newHTTPData()
	defer s.httpAudit("loginClient", data, w, req)

	if err := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxRequestBytes)).Decode(&data.reqData); err != nil {
		data.fail(http.StatusBadRequest, err)
		return
	}

	token, err := s.auth.Login(data.reqData["clientID"], data.reqData["authKey"])
	delete(data.reqData, "authKey")
	if err != nil {
		data.fail(http.StatusUnauthorized, err)
		return
	}

	data.code = http.StatusOK
	data.resData["bearerToken"] = token
}
