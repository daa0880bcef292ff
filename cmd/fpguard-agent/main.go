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

// Overview:
//   fpguard-agent is the log-mode front end: it trains the aggregator from
//   a captured JSONL request log, flips to testing mode against a second
//   log, and reports the alerts raised. Two optional extras can be layered
//   on top of the fingerprinting core: -length-detector runs the
//   length/entropy novelty gate alongside the real detector as a second
//   opinion, and -evaluate folds each alert against the log's is_malicious
//   ground truth into a precision/recall/F1 tally.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"fpguard/internal/aggregator"
	"fpguard/internal/persistence"
	"fpguard/internal/shard"
	"fpguard/pkg/evalstats"
	"fpguard/pkg/fingerprint"
	"fpguard/pkg/fpcsv"
	"fpguard/pkg/fplog"
	"fpguard/pkg/fpmode"
	"fpguard/pkg/httprecord"
	"fpguard/pkg/lengthdetector"
)

func main() {
	trainLog := flag.String("train-log", "", "path to a training JSONL request log")
	testLog := flag.String("test-log", "", "path to a testing JSONL request log")
	dumpCSV := flag.String("dump-csv", "", "optional path to write the trained fingerprint store as a CSV file")
	lengthDetect := flag.Bool("length-detector", false, "also run the length/entropy novelty gate as a second opinion")
	evaluate := flag.Bool("evaluate", false, "tally alerts against each record's is_malicious ground truth")
	redisAddr := flag.String("redis-addr", "", "optional Redis address to mirror trained fingerprints to (idempotent upsert)")
	alertTopic := flag.String("alert-topic", "", "optional Kafka topic to publish raised alerts to (logging stub without a real producer wired in)")
	shards := flag.Int("shards", 1, "number of rendezvous-hashed workers to route hosts across; 1 reproduces the default single-threaded pipeline")
	logLevel := flag.String("log-level", "info", "zap log level: debug, info, warn, error")
	flag.Parse()

	logger, err := newLogger(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fpguard-agent: logger: %v\n", err)
		os.Exit(1)
	}
	zap.ReplaceGlobals(logger)
	defer logger.Sync() //nolint:errcheck

	if *trainLog == "" || *testLog == "" {
		zap.L().Fatal("-train-log and -test-log are both required")
	}

	if err := run(runOpts{
		trainLog:     *trainLog,
		testLog:      *testLog,
		dumpCSV:      *dumpCSV,
		lengthDetect: *lengthDetect,
		evaluate:     *evaluate,
		redisAddr:    *redisAddr,
		alertTopic:   *alertTopic,
		shards:       *shards,
	}); err != nil {
		zap.L().Fatal("run failed", zap.Error(err))
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid -log-level %q: %w", level, err)
	}
	return cfg.Build()
}

type runOpts struct {
	trainLog, testLog string
	dumpCSV           string
	lengthDetect      bool
	evaluate          bool
	redisAddr         string
	alertTopic        string
	shards            int
}

func run(opts runOpts) error {
	trainRecords, err := fplog.ReadAll(opts.trainLog)
	if err != nil {
		return fmt.Errorf("reading training log: %w", err)
	}
	testRecords, err := fplog.ReadAll(opts.testLog)
	if err != nil {
		return fmt.Errorf("reading testing log: %w", err)
	}
	zap.L().Info("logs loaded",
		zap.Int("training_records", len(trainRecords)),
		zap.Int("testing_records", len(testRecords)),
	)

	store := fingerprint.NewStore()
	agg := aggregator.New(store, aggregator.DefaultParams)

	router := shard.NewRouter(opts.shards)
	trainHosts := distinctHosts(trainRecords)
	for _, h := range trainHosts {
		zap.L().Debug("host routed", zap.String("host", h), zap.String("worker", router.WorkerFor(h)))
	}

	if _, err := agg.Analyse(aggregator.NewSliceStream(trainRecords), fpmode.Training); err != nil {
		return fmt.Errorf("training pass: %w", err)
	}

	if opts.redisAddr != "" {
		if err := mirrorToRedis(context.Background(), opts.redisAddr, store); err != nil {
			return fmt.Errorf("mirroring trained store to redis: %w", err)
		}
	}

	var lengthModel *lengthdetector.Model
	if opts.lengthDetect {
		samples := make([]lengthdetector.Vector, len(trainRecords))
		for i, r := range trainRecords {
			samples[i] = lengthdetector.Extract(r)
		}
		lengthModel = lengthdetector.Fit(samples)
		zap.L().Info("length-detector model fitted", zap.Int("samples", len(samples)))
	}

	alerts, err := agg.Analyse(aggregator.NewSliceStream(testRecords), fpmode.Testing)
	if err != nil {
		return fmt.Errorf("testing pass: %w", err)
	}

	var alertSink persistence.AlertSink
	if opts.alertTopic != "" {
		alertSink = persistence.NewKafkaAlertSink(nil, opts.alertTopic)
	}

	alertedHosts := make(map[string]bool, len(alerts))
	for _, a := range alerts {
		alertedHosts[a.Host] = true
		zap.L().Warn("alert",
			zap.String("host", a.Host),
			zap.String("label", a.Fingerprint.Label.String()),
			zap.String("method", a.Fingerprint.Method.String()),
			zap.String("user_agent", a.Fingerprint.UserAgent[0]),
			zap.Int("outgoing_info", a.Fingerprint.OutgoingInfo),
		)
		if alertSink != nil {
			record := persistence.AlertRecord{
				Host:      a.Host,
				Label:     a.Fingerprint.Label.String(),
				Method:    a.Fingerprint.Method.String(),
				UserAgent: a.Fingerprint.UserAgent[0],
				Outgoing:  a.Fingerprint.OutgoingInfo,
			}
			if err := alertSink.PublishAlert(context.Background(), record); err != nil {
				zap.L().Error("publishing alert", zap.String("host", a.Host), zap.Error(err))
			}
		}
	}

	if opts.lengthDetect && lengthModel != nil {
		novel := 0
		for _, r := range testRecords {
			if lengthModel.IsNovel(lengthdetector.Extract(r), 4) {
				novel++
			}
		}
		zap.L().Info("length-detector pass complete", zap.Int("novel_requests", novel))
	}

	if opts.evaluate {
		var tally evalstats.Tally
		for _, r := range testRecords {
			tally.Record(alertedHosts[r.OrigIP], r.IsMalicious)
		}
		zap.L().Info("evaluation",
			zap.Float64("precision", tally.Precision()),
			zap.Float64("recall", tally.Recall()),
			zap.Float64("f1", tally.F1()),
		)
	}

	if opts.dumpCSV != "" {
		if err := dumpStore(opts.dumpCSV, store); err != nil {
			return fmt.Errorf("dumping CSV: %w", err)
		}
	}

	zap.L().Info("run complete", zap.Int("alerts", len(alerts)))
	return nil
}

func distinctHosts(records []*httprecord.Record) []string {
	seen := make(map[string]struct{}, len(records))
	var out []string
	for _, r := range records {
		if _, ok := seen[r.OrigIP]; ok {
			continue
		}
		seen[r.OrigIP] = struct{}{}
		out = append(out, r.OrigIP)
	}
	return out
}

func mirrorToRedis(ctx context.Context, addr string, store *fingerprint.Store) error {
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	redisStore := persistence.NewRedisFingerprintStore(client, 24*time.Hour)

	var records []persistence.FingerprintRecord
	store.ForEach(func(host string, fingerprints []*fingerprint.Fingerprint) {
		for _, fp := range fingerprints {
			records = append(records, persistence.NewFingerprintRecord(host, fp))
		}
	})
	if err := redisStore.UpsertBatch(ctx, records); err != nil {
		return err
	}
	zap.L().Info("trained store mirrored to redis", zap.String("addr", addr), zap.Int("fingerprints", len(records)))
	return nil
}

func dumpStore(path string, store *fingerprint.Store) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var entries []fpcsv.Entry
	store.ForEach(func(host string, fingerprints []*fingerprint.Fingerprint) {
		for _, fp := range fingerprints {
			entries = append(entries, fpcsv.Entry{Host: host, FP: fp})
		}
	})
	return fpcsv.Write(f, entries)
}
