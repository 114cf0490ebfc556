// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package service

import (
	"net/http"
)

func (s *Service) getStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	data := newHTTPData()
	defer s.httpAudit("getStats", data, w, r)

	clientID, code, err := s.authHandler(w, r)
	if err != nil {
		data.fail(code, err)
		return
	}
	data.reqData["clientID"] = clientID

	// The admin gets stats across all groups.
	stats, err := s.metrics.GetGalleryStats(clientID)
	if err != nil {
		data.fail(http.StatusInternalServerError, err)
		return
	}

	data.resData["calls"] = stats.Calls
	data.resData["sessions"] = stats.Sessions
	data.resData["layout_updates"] = stats.LayoutUpdates
	data.code = http.StatusOK
}
