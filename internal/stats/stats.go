// Copyright 2025 Google LLC
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

// Package stats holds the process-wide counters the request executor
// folds its per-instance statistics into, and exports them through
// Prometheus.
package stats

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Global is the single process-wide counters struct. Every executor folds
// the tallies of each completed Run into it, under mu.
type Global struct {
	mu sync.Mutex

	RunCount       uint64
	RetryCount     uint64
	ElapsedNanos   int64
	BytesUploaded  uint64
	BytesDownloaded uint64
}

var (
	instance     = &Global{}
	registerOnce sync.Once

	runCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "s3fuse",
		Subsystem: "executor",
		Name:      "runs_total",
		Help:      "Total number of HTTP transactions run by the request executor.",
	})
	retryCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "s3fuse",
		Subsystem: "executor",
		Name:      "retries_total",
		Help:      "Total number of retried attempts across all HTTP transactions.",
	})
	elapsedHistogram = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "s3fuse",
		Subsystem: "executor",
		Name:      "transaction_seconds",
		Help:      "Elapsed wall-clock time of completed HTTP transactions, excluding the first request's connection warmup.",
		Buckets:   prometheus.DefBuckets,
	})
	bytesUpCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "s3fuse",
		Subsystem: "executor",
		Name:      "bytes_uploaded_total",
		Help:      "Total request body bytes sent.",
	})
	bytesDownCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "s3fuse",
		Subsystem: "executor",
		Name:      "bytes_downloaded_total",
		Help:      "Total response body bytes received.",
	})
)

// register lazily registers the exported collectors on first use, avoiding
// any dependency on Go init-order between this package and the default
// Prometheus registry.
func register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(runCounter, retryCounter, elapsedHistogram, bytesUpCounter, bytesDownCounter)
	})
}

// Instance returns the process-wide counters struct.
func Instance() *Global {
	return instance
}

// RecordTransaction folds the tallies of one completed executor Run into
// the process-wide totals and exports them. elapsed should be zero
// for the first request on a fresh connection, per the executor's
// warmup-skipping rule.
func (g *Global) RecordTransaction(retries int, elapsedSeconds float64, bytesUp, bytesDown uint64) {
	register()

	g.mu.Lock()
	g.RunCount++
	g.RetryCount += uint64(retries)
	g.BytesUploaded += bytesUp
	g.BytesDownloaded += bytesDown
	g.mu.Unlock()

	runCounter.Inc()
	if retries > 0 {
		retryCounter.Add(float64(retries))
	}
	if elapsedSeconds > 0 {
		elapsedHistogram.Observe(elapsedSeconds)
	}
	bytesUpCounter.Add(float64(bytesUp))
	bytesDownCounter.Add(float64(bytesDown))
}

// Snapshot is a point-in-time copy of Global's counters, for tests and
// diagnostics.
type Snapshot struct {
	RunCount        uint64
	RetryCount      uint64
	BytesUploaded   uint64
	BytesDownloaded uint64
}

// Snapshot returns a copy of the current counters.
func (g *Global) Snapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Snapshot{
		RunCount:        g.RunCount,
		RetryCount:      g.RetryCount,
		BytesUploaded:   g.BytesUploaded,
		BytesDownloaded: g.BytesDownloaded,
	}
}
