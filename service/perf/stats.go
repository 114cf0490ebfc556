// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package perf

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

type GalleryStats struct {
	Calls         float64 `json:"calls"`
	Sessions      float64 `json:"sessions"`
	LayoutUpdates float64 `json:"layout_updates"`
}

// GetGalleryStats sums the gallery metrics recorded for groupID. An empty
// groupID sums across all groups.
func (m *Metrics) GetGalleryStats(groupID string) (GalleryStats, error) {
	var stats GalleryStats
	var err error

	if stats.Calls, err = sumCollector(m.GalleryCalls, groupID); err != nil {
		return stats, fmt.Errorf("failed to collect calls: %w", err)
	}
	if stats.Sessions, err = sumCollector(m.GallerySessions, groupID); err != nil {
		return stats, fmt.Errorf("failed to collect sessions: %w", err)
	}
	if stats.LayoutUpdates, err = sumCollector(m.GalleryLayoutUpdates, groupID); err != nil {
		return stats, fmt.Errorf("failed to collect layout updates: %w", err)
	}

	return stats, nil
}

func sumCollector(c prometheus.Collector, groupID string) (float64, error) {
	ch := make(chan prometheus.Metric)
	go func() {
		c.Collect(ch)
		close(ch)
	}()

	var sum float64
	var err error
	for metric := range ch {
		if err != nil {
			continue
		}
		var pb dto.Metric
		if err = metric.Write(&pb); err != nil {
			continue
		}
		if groupID != "" && !hasLabel(&pb, "groupID", groupID) {
			continue
		}
		switch {
		case pb.Gauge != nil:
			sum += pb.Gauge.GetValue()
		case pb.Counter != nil:
			sum += pb.Counter.GetValue()
		}
	}

	return sum, err
}

func hasLabel(m *dto.Metric, name, value string) bool {
	for _, l := range m.GetLabel() {
		if l.GetName() == name {
			return l.GetValue() == value
		}
	}
	return false
}
