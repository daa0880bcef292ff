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

package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"fpguard/internal/aggregator"
	"fpguard/internal/telemetry"
	"fpguard/pkg/fingerprint"
	"fpguard/pkg/fplog"
	"fpguard/pkg/fpmode"
	"fpguard/pkg/httprecord"
)

// Overview:
//   fpguard-sim is a synthetic traffic generator and soak tool for the
//   aggregator + label generator + detector pipeline. It produces a
//   configurable mix of browser-like clusters (chained referrers, HTML
//   accept headers) and background/exfiltrating clusters (disconnected
//   requests impersonating a browser user-agent) across many synthetic
//   hosts, trains the pipeline on one pass, then replays a testing pass
//   that includes a deliberate exfiltration burst so the detector has
//   something to find. It exposes Prometheus metrics on -http so the
//   aggregator/detector counters introduced in internal/telemetry can be
//   observed without a captured log.
//
// Usage:
//   go run ./cmd/fpguard-sim -http :8080 -hosts 20 -qps 500 -duration 5s \
//       -out-log traffic.jsonl
func main() {
	httpAddr := flag.String("http", ":8080", "metrics HTTP listen address")
	hosts := flag.Int("hosts", 10, "number of distinct client hosts to synthesize")
	qps := flag.Int("qps", 500, "target requests per second during generation")
	duration := flag.Duration("duration", 5*time.Second, "generation duration; 0 for forever")
	outLog := flag.String("out-log", "", "optional path to also persist generated requests as a fplog JSONL file")
	logLevel := flag.String("log-level", "info", "zap log level: debug, info, warn, error")
	flag.Parse()

	logger, err := newLogger(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fpguard-sim: logger: %v\n", err)
		os.Exit(1)
	}
	zap.ReplaceGlobals(logger)
	defer logger.Sync() //nolint:errcheck

	if *hosts <= 0 {
		*hosts = 10
	}
	if *qps <= 0 {
		*qps = 500
	}
	if *duration < 0 {
		*duration = 0
	}

	metricsSrv := telemetry.Serve(*httpAddr)
	zap.L().Info("metrics endpoint listening", zap.String("addr", *httpAddr))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	base := time.Now().Add(-1 * time.Hour)
	rng := rand.New(rand.NewSource(42))

	trainRecords := generateTrainingTraffic(rng, base, *hosts)
	testRecords := generateTestingTraffic(rng, base.Add(20*time.Minute), *hosts)

	if *outLog != "" {
		if err := writeLog(*outLog, append(append([]*httprecord.Record{}, trainRecords...), testRecords...)); err != nil {
			zap.L().Error("failed to persist generated traffic", zap.Error(err))
		}
	}

	store := fingerprint.NewStore()
	agg := aggregator.New(store, aggregator.DefaultParams)

	done := make(chan struct{})
	var trainAlerts, testAlerts []aggregator.Alert
	go func() {
		defer close(done)
		pace(rng, *qps, *duration, len(trainRecords)+len(testRecords))

		trainAlerts, err = agg.Analyse(aggregator.NewSliceStream(trainRecords), fpmode.Training)
		if err != nil {
			zap.L().Error("training pass failed", zap.Error(err))
			return
		}
		testAlerts, err = agg.Analyse(aggregator.NewSliceStream(testRecords), fpmode.Testing)
		if err != nil {
			zap.L().Error("testing pass failed", zap.Error(err))
			return
		}
	}()

	select {
	case <-sigCh:
		zap.L().Info("interrupted, shutting down")
	case <-done:
	}

	zap.L().Info("run complete",
		zap.Int("trained_hosts", *hosts),
		zap.Int("training_alerts", len(trainAlerts)),
		zap.Int("testing_alerts", len(testAlerts)),
	)
	for _, a := range testAlerts {
		zap.L().Warn("alert",
			zap.String("host", a.Host),
			zap.String("label", a.Fingerprint.Label.String()),
			zap.String("method", a.Fingerprint.Method.String()),
			zap.String("user_agent", a.Fingerprint.UserAgent[0]),
			zap.Int("outgoing_info", a.Fingerprint.OutgoingInfo),
		)
	}

	ctx, cancel := signalShutdownContext()
	defer cancel()
	_ = metricsSrv.Shutdown(ctx)
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid -log-level %q: %w", level, err)
	}
	return cfg.Build()
}

// pace sleeps roughly as long as generating n records at qps would take,
// mirroring tfd-sim's generator loop without needing to route each
// synthetic record through a ticker individually.
func pace(_ *rand.Rand, qps int, duration time.Duration, n int) {
	if qps <= 0 {
		return
	}
	want := time.Duration(n) * time.Second / time.Duration(qps)
	if duration > 0 && want > duration {
		want = duration
	}
	time.Sleep(want)
}

func hostIP(i int) string { return fmt.Sprintf("10.0.%d.%d", i/256, i%256) }

func generateTrainingTraffic(rng *rand.Rand, base time.Time, hosts int) []*httprecord.Record {
	var out []*httprecord.Record
	for h := 0; h < hosts; h++ {
		ip := hostIP(h)
		out = append(out, browserCluster(ip, "Mozilla/5.0 (compatible; sim)", base, 10)...)
		out = append(out, backgroundCluster(ip, "myapp/1.0.0", base, 5, 0)...)
	}
	return out
}

func generateTestingTraffic(rng *rand.Rand, base time.Time, hosts int) []*httprecord.Record {
	var out []*httprecord.Record
	for h := 0; h < hosts; h++ {
		ip := hostIP(h)
		out = append(out, browserCluster(ip, "Mozilla/5.0 (compatible; sim)", base, 10)...)
		out = append(out, backgroundCluster(ip, "myapp/1.0.0", base, 5, 0)...)
	}
	// Exfiltration burst on host 0, impersonating a browser UA, per spec S3.
	out = append(out, exfiltrationBurst(hostIP(0), "Mozilla/5.0 Chrome/114.0", base.Add(time.Minute), 20)...)
	return out
}

func browserCluster(ip, ua string, base time.Time, n int) []*httprecord.Record {
	var out []*httprecord.Record
	for i := 0; i < n; i++ {
		out = append(out, &httprecord.Record{
			UID:      fmt.Sprintf("%s-browser-%d", ip, i),
			TS:       base.Add(time.Duration(i) * time.Second),
			OrigIP:   ip,
			DestIP:   "93.184.216.34",
			DestPort: 443,
			Method:   httprecord.MethodGET,
			URI:      "/index.html",
			Version:  "HTTP/1.1",
			Headers: map[string]string{
				"user-agent": ua,
				"accept":     "text/html",
				"host":       "example.com",
				"referer":    "https://example.com/",
			},
		})
	}
	return out
}

func backgroundCluster(ip, ua string, base time.Time, n, outgoingPerReq int) []*httprecord.Record {
	var out []*httprecord.Record
	for i := 0; i < n; i++ {
		out = append(out, &httprecord.Record{
			UID:      fmt.Sprintf("%s-bg-%d", ip, i),
			TS:       base.Add(time.Duration(i) * time.Second),
			OrigIP:   ip,
			DestIP:   "93.184.216.35",
			DestPort: 443,
			Method:   httprecord.MethodGET,
			URI:      "/ping",
			Version:  "HTTP/1.1",
			Headers: map[string]string{
				"user-agent": ua,
				"accept":     "*/*",
				"host":       "telemetry.example.com",
			},
		})
	}
	return out
}

func exfiltrationBurst(ip, ua string, base time.Time, n int) []*httprecord.Record {
	var out []*httprecord.Record
	for i := 0; i < n; i++ {
		out = append(out, &httprecord.Record{
			UID:      fmt.Sprintf("%s-exfil-%d", ip, i),
			TS:       base.Add(time.Duration(i) * time.Second),
			OrigIP:   ip,
			DestIP:   "198.51.100.9",
			DestPort: 443,
			Method:   httprecord.MethodGET,
			URI:      fmt.Sprintf("/upload?d=%0512d", i),
			Version:  "HTTP/1.1",
			Headers: map[string]string{
				"user-agent": ua,
				"accept":     "*/*",
				"host":       "exfil.example.net",
			},
		})
	}
	return out
}

func writeLog(path string, records []*httprecord.Record) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	for _, r := range records {
		if err := fplog.Append(f, r); err != nil {
			return err
		}
	}
	return nil
}

func signalShutdownContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}
