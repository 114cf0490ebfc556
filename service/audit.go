// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package service

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/mattermost/mattermost/server/public/shared/mlog"
)

// httpData collects what an API handler did so that it can be audited and
// written back as a single JSON envelope.
type httpData struct {
	start   time.Time
	err     string
	code    int
	reqData map[string]string
	resData map[string]any
}

func newHTTPData() *httpData {
	return &httpData{
		start:   time.Now(),
		reqData: map[string]string{},
		resData: map[string]any{},
	}
}

func (d *httpData) fail(code int, err error) {
	d.code = code
	d.err = err.Error()
}

func (s *Service) httpAudit(handler string, data *httpData, w http.ResponseWriter, r *http.Request) {
	elapsed := time.Since(data.start)
	s.metrics.ObserveAPIRequest(handler, data.code, elapsed)

	fields := append(reqAuditFields(r),
		mlog.Int("code", data.code),
		mlog.Float("durationMs", float64(elapsed.Microseconds())/1000),
	)
	status := "success"
	if data.err != "" {
		status = "fail"
		data.resData["error"] = data.err
		fields = append(fields, mlog.Err(errors.New(data.err)))
	}
	for _, key := range []string{"clientID", "callID", "sessionID"} {
		if v := data.reqData[key]; v != "" {
			fields = append(fields, mlog.String(key, v))
		}
	}
	s.log.Debug(handler, append(fields, mlog.String("status", status))...)

	if w == nil {
		return
	}
	data.resData["code"] = strconv.Itoa(data.code)
	w.Header().Add("Content-Type", "application/json")
	w.WriteHeader(data.code)
	if err := json.NewEncoder(w).Encode(data.resData); err != nil {
		s.log.Error("failed to encode data", mlog.Err(err))
	}
}

func reqAuditFields(req *http.Request) []mlog.Field {
	delete(req.Header, "Authorization")
	return []mlog.Field{
		mlog.String("remoteAddr", req.RemoteAddr),
		mlog.String("method", req.Method),
		mlog.String("url", req.URL.String()),
		mlog.Any("header", req.Header),
		mlog.String("host", req.Host),
	}
}
