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
//   fpguard-offline replays spec §6's CSV corpus layout directly: given a
//   directory containing "*training*.csv" and "*testing*.csv" files, it
//   loads already-trained fingerprints from the training files straight
//   into the store (bypassing the aggregator, since the CSVs are already
//   labelled sub-cluster summaries), then runs every testing fingerprint
//   through the Detector and reports what fired.
package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"fpguard/internal/detector"
	"fpguard/pkg/fingerprint"
	"fpguard/pkg/fpcsv"
)

func main() {
	dir := flag.String("dir", "", "directory containing *training*.csv and *testing*.csv files")
	logLevel := flag.String("log-level", "info", "zap log level: debug, info, warn, error")
	flag.Parse()

	logger, err := newLogger(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fpguard-offline: logger: %v\n", err)
		os.Exit(1)
	}
	zap.ReplaceGlobals(logger)
	defer logger.Sync() //nolint:errcheck

	if *dir == "" {
		zap.L().Fatal("-dir is required")
	}

	if err := run(*dir); err != nil {
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

func run(dir string) error {
	training, err := fpcsv.LoadTrainingDir(dir)
	if err != nil {
		return fmt.Errorf("loading training CSVs: %w", err)
	}
	testing, err := fpcsv.LoadTestingDir(dir)
	if err != nil {
		return fmt.Errorf("loading testing CSVs: %w", err)
	}

	store := fingerprint.NewStore()
	for _, e := range training {
		store.Insert(e.Host, e.FP)
	}
	zap.L().Info("trained store loaded", zap.Int("fingerprints", len(training)))

	det := detector.New(detector.DefaultParams)
	var alerts int
	for _, e := range testing {
		trained := store.For(e.Host)
		alerted, err := det.Detect(trained, e.FP)
		if err != nil {
			return fmt.Errorf("detecting host %s: %w", e.Host, err)
		}
		if alerted {
			alerts++
			zap.L().Warn("alert",
				zap.String("host", e.Host),
				zap.String("label", e.FP.Label.String()),
				zap.String("method", e.FP.Method.String()),
				zap.String("user_agent", e.FP.UserAgent[0]),
				zap.Int("outgoing_info", e.FP.OutgoingInfo),
			)
		}
	}

	zap.L().Info("run complete",
		zap.Int("testing_fingerprints", len(testing)),
		zap.Int("alerts", alerts),
	)
	return nil
}
