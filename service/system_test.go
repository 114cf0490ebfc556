// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package service

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGetSystem(t *testing.T) {
	th := SetupTestHelper(t, nil)
	defer th.Teardown()

	t.Run("invalid method", func(t *testing.T) {
		resp, err := http.Post(th.apiURL+"/system", "", nil)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("valid response", func(t *testing.T) {
		resp, err := http.Get(th.apiURL + "/system")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var info SystemInfo
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
		require.NotZero(t, info.CPULoad)
		require.NotZero(t, info.ResidentMemory)
		require.NotZero(t, info.Goroutines)
	})
}

func TestSampleCPULoad(t *testing.T) {
	th := SetupTestHelper(t, nil)
	defer th.Teardown()

	load, err := th.srvc.sampleCPULoad(100 * time.Millisecond)
	require.NoError(t, err)
	require.GreaterOrEqual(t, load, float64(0))

	rss, err := th.srvc.residentMemory()
	require.NoError(t, err)
	require.Positive(t, rss)
}
