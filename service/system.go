// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package service

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/mattermost/mattermost/server/public/shared/mlog"
)

const cpuSampleDuration = time.Second

type SystemInfo struct {
	CPULoad        float64 `json:"cpu_load"`
	ResidentMemory int     `json:"resident_memory"`
	Goroutines     int     `json:"goroutines"`
}

// sampleCPULoad returns the number of busy CPUs over the sampling period.
func (s *Service) sampleCPULoad(d time.Duration) (float64, error) {
	st1, err := s.proc.Stat()
	if err != nil {
		return 0, fmt.Errorf("failed to get cpu stat: %w", err)
	}
	t0 := time.Now()
	time.Sleep(d)
	st2, err := s.proc.Stat()
	if err != nil {
		return 0, fmt.Errorf("failed to get cpu stat: %w", err)
	}

	idleDiff := st2.CPUTotal.Idle - st1.CPUTotal.Idle
	if idleDiff <= 0 {
		return 0, nil
	}
	return 1 / (idleDiff / time.Since(t0).Seconds()), nil
}

func (s *Service) residentMemory() (int, error) {
	p, err := s.proc.Self()
	if err != nil {
		return 0, fmt.Errorf("failed to get process: %w", err)
	}
	st, err := p.Stat()
	if err != nil {
		return 0, fmt.Errorf("failed to get process stat: %w", err)
	}
	return st.ResidentMemory(), nil
}

func (s *Service) getSystemInfo(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		http.NotFound(w, req)
		return
	}

	info := SystemInfo{
		Goroutines: runtime.NumGoroutine(),
	}

	var err error
	if info.ResidentMemory, err = s.residentMemory(); err != nil {
		s.log.Error("failed to get resident memory", mlog.Err(err))
	}
	if info.CPULoad, err = s.sampleCPULoad(cpuSampleDuration); err != nil {
		s.log.Error("failed to sample cpu load", mlog.Err(err))
	}

	w.Header().Add("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(&info); err != nil {
		s.log.Error("failed to encode data", mlog.Err(err))
	}
}
