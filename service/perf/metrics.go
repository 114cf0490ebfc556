// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package perf

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	metricsSubSystemGallery = "gallery"
	metricsSubSystemWS      = "ws"
	metricsSubSystemAPI     = "api"
)

type Metrics struct {
	registry *prometheus.Registry

	GalleryCalls          *prometheus.GaugeVec
	GallerySessions       *prometheus.GaugeVec
	GalleryLayoutUpdates  *prometheus.CounterVec
	GalleryTileChurn      *prometheus.CounterVec
	GalleryLayoutTiles    *prometheus.HistogramVec
	GalleryErrorCounters  *prometheus.CounterVec
	GallerySelectRequests prometheus.Counter

	WSConnections            *prometheus.GaugeVec
	WSMessageCounters        *prometheus.CounterVec
	WSDroppedMessageCounters *prometheus.CounterVec

	APIRequests        *prometheus.CounterVec
	APIRequestDuration *prometheus.HistogramVec
}

func NewMetrics(namespace string, registry *prometheus.Registry) *Metrics {
	var m Metrics

	if registry != nil {
		m.registry = registry
	} else {
		m.registry = prometheus.NewRegistry()
		m.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{
			Namespace: namespace,
		}))
		m.registry.MustRegister(collectors.NewGoCollector())
	}

	m.GalleryCalls = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: metricsSubSystemGallery,
			Name:      "calls_total",
			Help:      "Total number of active calls",
		},
		[]string{"groupID"},
	)
	m.registry.MustRegister(m.GalleryCalls)

	m.GallerySessions = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: metricsSubSystemGallery,
			Name:      "sessions_total",
			Help:      "Total number of active sessions",
		},
		[]string{"groupID"},
	)
	m.registry.MustRegister(m.GallerySessions)

	m.GalleryLayoutUpdates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: metricsSubSystemGallery,
			Name:      "layout_updates_total",
			Help:      "Total number of layout updates published to viewers",
		},
		[]string{"groupID"},
	)
	m.registry.MustRegister(m.GalleryLayoutUpdates)

	m.GalleryTileChurn = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: metricsSubSystemGallery,
			Name:      "tile_churn_total",
			Help:      "Total number of participants that entered a tile list they were not part of",
		},
		[]string{"groupID"},
	)
	m.registry.MustRegister(m.GalleryTileChurn)

	m.GalleryLayoutTiles = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: metricsSubSystemGallery,
			Name:      "layout_tiles",
			Help:      "Number of tiles in published layouts",
			Buckets:   []float64{0, 1, 2, 4, 8, 16, 32, 64, 128},
		},
		[]string{"type"},
	)
	m.registry.MustRegister(m.GalleryLayoutTiles)

	m.GalleryErrorCounters = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: metricsSubSystemGallery,
			Name:      "errors_total",
			Help:      "Total number of gallery message handling errors",
		},
		[]string{"groupID", "type"},
	)
	m.registry.MustRegister(m.GalleryErrorCounters)

	m.GallerySelectRequests = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: metricsSubSystemGallery,
			Name:      "select_requests_total",
			Help:      "Total number of stateless selection requests",
		},
	)
	m.registry.MustRegister(m.GallerySelectRequests)

	m.WSConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: metricsSubSystemWS,
			Name:      "connections_total",
			Help:      "Total number of active WebSocket sessions",
		},
		[]string{"clientID"},
	)
	m.registry.MustRegister(m.WSConnections)

	m.WSMessageCounters = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: metricsSubSystemWS,
			Name:      "messages_total",
			Help:      "Total number of sent/received WebSocket messages",
		},
		[]string{"clientID", "direction"},
	)
	m.registry.MustRegister(m.WSMessageCounters)

	m.WSDroppedMessageCounters = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: metricsSubSystemWS,
			Name:      "dropped_messages_total",
			Help:      "Total number of inbound WebSocket messages dropped by the rate limiter",
		},
		[]string{"clientID"},
	)
	m.registry.MustRegister(m.WSDroppedMessageCounters)

	m.APIRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: metricsSubSystemAPI,
			Name:      "requests_total",
			Help:      "Total number of audited API requests",
		},
		[]string{"handler", "code"},
	)
	m.registry.MustRegister(m.APIRequests)

	m.APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: metricsSubSystemAPI,
			Name:      "request_duration_seconds",
			Help:      "Duration of audited API requests",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"handler"},
	)
	m.registry.MustRegister(m.APIRequestDuration)

	return &m
}

func (m *Metrics) IncCalls(groupID string) {
	m.GalleryCalls.With(prometheus.Labels{"groupID": groupID}).Inc()
}

func (m *Metrics) DecCalls(groupID string) {
	m.GalleryCalls.With(prometheus.Labels{"groupID": groupID}).Dec()
}

func (m *Metrics) IncSessions(groupID string) {
	m.GallerySessions.With(prometheus.Labels{"groupID": groupID}).Inc()
}

func (m *Metrics) DecSessions(groupID string) {
	m.GallerySessions.With(prometheus.Labels{"groupID": groupID}).Dec()
}

func (m *Metrics) IncLayoutUpdates(groupID string) {
	m.GalleryLayoutUpdates.With(prometheus.Labels{"groupID": groupID}).Inc()
}

func (m *Metrics) AddTileChurn(groupID string, tiles int) {
	if tiles <= 0 {
		return
	}
	m.GalleryTileChurn.With(prometheus.Labels{"groupID": groupID}).Add(float64(tiles))
}

func (m *Metrics) ObserveLayoutTiles(videoTiles, audioTiles int) {
	m.GalleryLayoutTiles.With(prometheus.Labels{"type": "video"}).Observe(float64(videoTiles))
	m.GalleryLayoutTiles.With(prometheus.Labels{"type": "audio"}).Observe(float64(audioTiles))
}

func (m *Metrics) IncErrors(groupID, errType string) {
	m.GalleryErrorCounters.With(prometheus.Labels{"groupID": groupID, "type": errType}).Inc()
}

func (m *Metrics) IncSelectRequests() {
	m.GallerySelectRequests.Inc()
}

func (m *Metrics) IncWSConnections(clientID string) {
	m.WSConnections.With(prometheus.Labels{"clientID": clientID}).Inc()
}

func (m *Metrics) DecWSConnections(clientID string) {
	m.WSConnections.With(prometheus.Labels{"clientID": clientID}).Dec()
}

func (m *Metrics) IncWSMessages(clientID, direction string) {
	m.WSMessageCounters.With(prometheus.Labels{"clientID": clientID, "direction": direction}).Inc()
}

func (m *Metrics) IncWSDroppedMessages(clientID string) {
	m.WSDroppedMessageCounters.With(prometheus.Labels{"clientID": clientID}).Inc()
}

func (m *Metrics) ObserveAPIRequest(handler string, code int, d time.Duration) {
	m.APIRequests.With(prometheus.Labels{"handler": handler, "code": strconv.Itoa(code)}).Inc()
	m.APIRequestDuration.With(prometheus.Labels{"handler": handler}).Observe(d.Seconds())
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
