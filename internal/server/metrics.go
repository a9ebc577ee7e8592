/*
Copyright 2024 The Spotalis Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package server

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// serverMetrics holds the managed server's own Prometheus counters, kept on
// a private registry so each pod's /metrics reports only its own counters
// rather than the process-wide default registry.
type serverMetrics struct {
	registry    *prometheus.Registry
	pingTotal   *prometheus.CounterVec
	reloadTotal prometheus.Counter
}

// newServerMetrics builds and registers the managed server's counters.
func newServerMetrics() *serverMetrics {
	registry := prometheus.NewRegistry()

	pingTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peering_server_pings_total",
			Help: "Total pings issued to peers, by outcome",
		},
		[]string{"peer", "result"},
	)
	reloadTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "peering_server_config_reloads_total",
			Help: "Total number of configuration reloads",
		},
	)

	registry.MustRegister(pingTotal, reloadTotal)

	return &serverMetrics{registry: registry, pingTotal: pingTotal, reloadTotal: reloadTotal}
}

func (m *serverMetrics) recordPing(peer string, success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	m.pingTotal.WithLabelValues(peer, result).Inc()
}

func (m *serverMetrics) recordReload() {
	m.reloadTotal.Inc()
}

// Handler returns the gin handler serving this pod's own /metrics scrape.
func (m *serverMetrics) Handler() gin.HandlerFunc {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
