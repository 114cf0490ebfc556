// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/mattermost/galleryd/service/gallery"

	"github.com/mattermost/mattermost/server/public/shared/mlog"
)

const maxRequestBytes = 1 << 20

type SelectRequest struct {
	Participants        []gallery.Participant `json:"participants"`
	DominantSpeakerIDs  []string              `json:"dominant_speaker_ids"`
	LastVisible         []gallery.Participant `json:"last_visible"`
	MaxVisible          int                   `json:"max_visible"`
	MaxDominantSpeakers int                   `json:"max_dominant_speakers"`
}

type SelectResponse struct {
	Visible []gallery.Participant `json:"visible"`
}

type SpeakersResponse struct {
	DominantSpeakerIDs []string `json:"dominant_speaker_ids"`
}

// groupForRequest returns the gallery group the request should act on. The
// admin picks the group through the groupID query parameter.
func (s *Service) groupForRequest(w http.ResponseWriter, req *http.Request) (string, int, error) {
	clientID, code, err := s.authHandler(w, req)
	if err != nil {
		return "", code, err
	}
	if clientID != "" {
		return clientID, http.StatusOK, nil
	}
	groupID := req.URL.Query().Get("groupID")
	if groupID == "" {
		return "", http.StatusBadRequest, fmt.Errorf("groupID is required")
	}
	return groupID, http.StatusOK, nil
}

func (s *Service) handleGetLayout(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		http.NotFound(w, req)
		return
	}

	groupID, code, err := s.groupForRequest(w, req)
	if err != nil {
		http.Error(w, err.Error(), code)
		return
	}

	callID := req.PathValue("callID")
	sessionID := req.PathValue("sessionID")

	info, err := s.galleryServer.GetLayout(groupID, callID, sessionID)
	if errors.Is(err, gallery.ErrCallNotFound) || errors.Is(err, gallery.ErrSessionNotFound) {
		http.Error(w, fmt.Sprintf("failed to get layout: %s", err.Error()), http.StatusNotFound)
		return
	} else if err != nil {
		http.Error(w, fmt.Sprintf("failed to get layout: %s", err.Error()), http.StatusInternalServerError)
		return
	}

	w.Header().Add("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(info); err != nil {
		s.log.Error("failed to encode data", mlog.Err(err))
	}
}

func (s *Service) handleGetSpeakers(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		http.NotFound(w, req)
		return
	}

	groupID, code, err := s.groupForRequest(w, req)
	if err != nil {
		http.Error(w, err.Error(), code)
		return
	}

	ids, err := s.galleryServer.GetDominantSpeakers(groupID, req.PathValue("callID"))
	if errors.Is(err, gallery.ErrCallNotFound) {
		http.Error(w, fmt.Sprintf("failed to get speakers: %s", err.Error()), http.StatusNotFound)
		return
	} else if err != nil {
		http.Error(w, fmt.Sprintf("failed to get speakers: %s", err.Error()), http.StatusInternalServerError)
		return
	}

	w.Header().Add("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(SpeakersResponse{DominantSpeakerIDs: ids}); err != nil {
		s.log.Error("failed to encode data", mlog.Err(err))
	}
}

// handleSelect runs a single stateless selection. It lets integrations that
// keep their own call state reuse the selector.
func (s *Service) handleSelect(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.NotFound(w, req)
		return
	}

	if _, code, err := s.authHandler(w, req); err != nil {
		http.Error(w, err.Error(), code)
		return
	}

	var selReq SelectRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxRequestBytes)).Decode(&selReq); err != nil {
		http.Error(w, fmt.Sprintf("failed to decode request: %s", err.Error()), http.StatusBadRequest)
		return
	}

	s.metrics.IncSelectRequests()

	res := SelectResponse{
		Visible: gallery.SelectVisible(selReq.Participants, selReq.DominantSpeakerIDs,
			selReq.LastVisible, selReq.MaxVisible, selReq.MaxDominantSpeakers),
	}

	w.Header().Add("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(res); err != nil {
		s.log.Error("failed to encode data", mlog.Err(err))
	}
}
