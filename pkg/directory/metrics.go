// Copyright 2025 PLSync Authors
// SPDX-License-Identifier: Apache-2.0

package directory

import (
	"github.com/LeeDigitalWorks/plsync/pkg/debug"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	rpcCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "plsync",
			Subsystem: "directory",
			Name:      "rpc_calls_total",
			Help:      "Directory RPC calls by method and result",
		},
		[]string{"method", "result"},
	)

	rpcDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "plsync",
			Subsystem: "directory",
			Name:      "rpc_duration_seconds",
			Help:      "Directory RPC latency in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		},
		[]string{"method"},
	)

	dryRunSkippedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "plsync",
			Subsystem: "directory",
			Name:      "dryrun_skipped_total",
			Help:      "Mutating directory calls skipped in dry-run mode",
		},
		[]string{"method"},
	)
)

func init() {
	debug.Registry().MustRegister(
		rpcCallsTotal,
		rpcDuration,
		dryRunSkippedTotal,
	)
}
