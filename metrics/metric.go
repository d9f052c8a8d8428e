// Copyright 2023 The CubeFS Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

// Package metrics wires a dedicated prometheus registry and the gRPC
// server interceptor metrics alongside the TAO-specific collectors.
package metrics

import (
	grpcprometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "Tao"

var (
	Registry = prometheus.NewRegistry()

	GRPCMetrics = grpcprometheus.NewServerMetrics(
		func(c *prometheus.CounterOpts) {
			c.Namespace = namespace
		},
	)

	// CoreOps counts every call to a public core operation, by op and
	// outcome (ok, unauthorized, not_found, conflict, shard_unavailable,
	// clock_regression, invalid_argument, error).
	CoreOps = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "core",
		Name:      "ops_total",
		Help:      "TAO core operations by name and outcome.",
	}, []string{"op", "outcome"})

	// CoreOpDuration observes wall-clock latency of core operations.
	CoreOpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "core",
		Name:      "op_duration_seconds",
		Help:      "TAO core operation latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"op"})

	// CacheResults counts cache-aside hits and misses by tier (object,
	// assoc_list, count).
	CacheResults = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "results_total",
		Help:      "Cache-aside hits and misses by tier.",
	}, []string{"tier", "result"})

	// ShardRetries counts ShardUnavailable retries by shard.
	ShardRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "topology",
		Name:      "shard_retries_total",
		Help:      "Retries issued after a ShardUnavailable error, by shard id.",
	}, []string{"shard_id"})

	// WalPending tracks the number of WAL records left pending across
	// recovery runs, a signal of how much work the next recovery has to
	// replay.
	WalPending = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "wal",
		Name:      "pending_records",
		Help:      "WAL records currently marked pending.",
	})
)

func init() {
	Registry.MustRegister(
		GRPCMetrics,
		CoreOps,
		CoreOpDuration,
		CacheResults,
		ShardRetries,
		WalPending,
	)
	GRPCMetrics.EnableHandlingTimeHistogram(
		func(h *prometheus.HistogramOpts) {
			h.Namespace = namespace
		},
	)
}
