// Copyright 2025 PLSync Authors
// SPDX-License-Identifier: Apache-2.0

// Package debug holds the process metrics registry and exports it at the
// end of a run.
package debug

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Global registry for custom metrics
var globalRegistry = prometheus.NewRegistry()

// Registry returns the Prometheus registry for registering custom metrics.
func Registry() prometheus.Registerer {
	return globalRegistry
}

// Gatherer combines the default process metrics with the custom registry.
func Gatherer() prometheus.Gatherer {
	return prometheus.Gatherers{
		prometheus.DefaultGatherer,
		globalRegistry,
	}
}

// PushConfig names the Pushgateway a run reports to.
type PushConfig struct {
	URL string
	Job string
	// Client overrides the HTTP client, mainly for tests.
	Client *http.Client
}

// Push replaces the metrics of cfg.Job on the Pushgateway with the current
// registry contents. The job is grouped by hostname so runs from different
// machines do not overwrite each other.
func Push(ctx context.Context, cfg PushConfig) error {
	if cfg.Job == "" {
		cfg.Job = "plsync"
	}
	p := push.New(cfg.URL, cfg.Job).Gatherer(Gatherer())
	if host, err := os.Hostname(); err == nil {
		p = p.Grouping("instance", host)
	}
	if cfg.Client != nil {
		p = p.Client(cfg.Client)
	}
	if err := p.PushContext(ctx); err != nil {
		return fmt.Errorf("failed to push metrics to %s: %w", cfg.URL, err)
	}
	return nil
}
