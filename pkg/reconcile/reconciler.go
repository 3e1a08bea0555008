// Copyright 2025 PLSync Authors
// SPDX-License-Identifier: Apache-2.0

// Package reconcile converges the directory toward a topology.
//
// Every entity goes through the same steps: look it up by its natural key,
// add it when absent, update it when it differs, and confirm it otherwise.
// Lookups that should be unique but match several records abort the run,
// as do authorization faults. Nothing is retried; rerunning converges the
// rest of the way.
package reconcile

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/LeeDigitalWorks/plsync/pkg/directory"
	"github.com/LeeDigitalWorks/plsync/pkg/logger"
	"github.com/LeeDigitalWorks/plsync/pkg/topology"
)

// Reconciler issues directory calls for one run. It is not safe for
// concurrent use.
type Reconciler struct {
	client directory.Client
	cfg    Config
	report *Report
}

// New returns a Reconciler that talks to client. With cfg.DryRun the client
// is wrapped so that only Get calls reach it.
func New(client directory.Client, cfg Config) *Reconciler {
	cfg.setDefaults()
	if cfg.DryRun {
		client = directory.NewDryRun(client)
	}
	return &Reconciler{
		client: client,
		cfg:    cfg,
		report: newReport(cfg.DryRun, cfg.Now()),
	}
}

// Report returns the outcomes recorded so far.
func (r *Reconciler) Report() *Report {
	r.report.Duration = r.cfg.Now().Sub(r.report.Started)
	return r.report
}

// SyncSites syncs each site in order and stops at the first error.
func (r *Reconciler) SyncSites(ctx context.Context, sites []*topology.Site) error {
	for _, site := range sites {
		if err := r.SyncSite(ctx, site); err != nil {
			return withGuidance(err)
		}
	}
	return nil
}

// SyncSlices syncs each slice in order and stops at the first error.
func (r *Reconciler) SyncSlices(ctx context.Context, decls []*topology.Slice) error {
	for _, slice := range decls {
		if err := r.SyncSlice(ctx, slice); err != nil {
			return withGuidance(err)
		}
	}
	return nil
}

// explicitTarget reports whether the run is narrowed to a host or site.
func (r *Reconciler) explicitTarget() bool {
	return r.cfg.Target != "" && r.cfg.Target != "all"
}

// selected reports whether the target filter includes node.
func (r *Reconciler) selected(node *topology.Node) bool {
	return r.hostSelected(node.Hostname)
}

// hostSelected applies the target filter to a hostname. The target may be
// the full hostname, the short name ("mlab1.abc01") or the site name.
func (r *Reconciler) hostSelected(hostname string) bool {
	if !r.explicitTarget() {
		return true
	}
	t := r.cfg.Target
	if t == hostname || (strings.Contains(t, ".") && strings.HasPrefix(hostname, t+".")) {
		return true
	}
	parts := strings.SplitN(hostname, ".", 3)
	return len(parts) == 3 && parts[1] == t
}

// siteSelected reports whether the target filter includes any node of site,
// or names the site itself.
func (r *Reconciler) siteSelected(site *topology.Site) bool {
	if !r.explicitTarget() || r.cfg.Target == site.Name {
		return true
	}
	return slices.ContainsFunc(site.Nodes(), r.selected)
}

func (r *Reconciler) multiValued(tagName string) bool {
	return slices.Contains(r.cfg.MultiValuedTags, tagName)
}

// outcome records action for kind and returns a log event for it. Adds and
// updates log at info, everything else at debug.
func (r *Reconciler) outcome(kind string, action Action) *zerolog.Event {
	r.report.record(kind, action)
	var ev *zerolog.Event
	switch action {
	case ActionAdd, ActionUpdate:
		ev = logger.Info()
	case ActionSkip:
		ev = logger.Warn()
	default:
		ev = logger.Debug()
	}
	return ev.Str("kind", kind).Str("action", string(action))
}

func (r *Reconciler) now() time.Time {
	return r.cfg.Now()
}
