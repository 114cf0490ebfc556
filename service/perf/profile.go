// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package perf

import (
	"fmt"
	"io"
	"net/http"
	"runtime"
	"sync"

	"github.com/grafana/pyroscope-go/godeltaprof"
)

type deltaProfiler interface {
	Profile(w io.Writer) error
}

// DeltaProfiles serves heap, mutex and block profiles holding only the
// samples collected since the previous request.
type DeltaProfiles struct {
	mut      sync.Mutex
	profiles map[string]deltaProfiler
}

// NewDeltaProfiles enables mutex and block profiling at the given rates and
// returns a handler set for them. Rates less than one are set to one.
func NewDeltaProfiles(mutexFraction, blockRate int) *DeltaProfiles {
	runtime.SetMutexProfileFraction(max(mutexFraction, 1))
	runtime.SetBlockProfileRate(max(blockRate, 1))

	return &DeltaProfiles{
		profiles: map[string]deltaProfiler{
			"heap":  godeltaprof.NewHeapProfiler(),
			"mutex": godeltaprof.NewMutexProfiler(),
			"block": godeltaprof.NewBlockProfiler(),
		},
	}
}

// Handler returns the http.HandlerFunc serving the named profile.
func (p *DeltaProfiles) Handler(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		p.mut.Lock()
		defer p.mut.Unlock()

		profiler, ok := p.profiles[name]
		if !ok {
			http.Error(w, fmt.Sprintf("unknown profile %q", name), http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.pb.gz"`, name))
		if err := profiler.Profile(w); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}

// Names returns the available profile names.
func (p *DeltaProfiles) Names() []string {
	return []string{"heap", "mutex", "block"}
}
