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

// Package metrics provides Prometheus metrics for the operator's reconcile
// loop and watch engine, registered against controller-runtime's shared
// registry so they are scraped from the same endpoint as its own metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	ctrlmetrics "sigs.k8s.io/controller-runtime/pkg/metrics"
)

var (
	reconcilesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peering_operator_reconciles_total",
			Help: "Total number of PeeringServer reconciles, by outcome",
		},
		[]string{"namespace", "name", "result"},
	)

	reconcileDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "peering_operator_reconcile_duration_seconds",
			Help:    "Duration of a single PeeringServer reconcile",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"namespace", "name", "result"},
	)

	watchReconnectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peering_operator_watch_reconnects_total",
			Help: "Total number of watch stream reconnects, by reason",
		},
		[]string{"reason"},
	)
)

func init() {
	ctrlmetrics.Registry.MustRegister(reconcilesTotal, reconcileDuration, watchReconnectsTotal)
}

// Recorder implements controller.MetricsRecorder against the package's
// registered Prometheus vectors.
type Recorder struct{}

// NewRecorder returns a metrics.Recorder ready to hand to the Reconciler.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// RecordReconcile records the outcome and duration of one reconcile.
func (Recorder) RecordReconcile(namespace, name, result string, duration time.Duration) {
	reconcilesTotal.WithLabelValues(namespace, name, result).Inc()
	reconcileDuration.WithLabelValues(namespace, name, result).Observe(duration.Seconds())
}

// RecordWatchReconnect records a watch-stream reconnect, classified by
// reason (the watch engine reports "disconnected" or "clean").
func RecordWatchReconnect(reason string) {
	watchReconnectsTotal.WithLabelValues(reason).Inc()
}
