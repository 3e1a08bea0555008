// Copyright 2025 PLSync Authors
// SPDX-License-Identifier: Apache-2.0

package reconcile

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/LeeDigitalWorks/plsync/pkg/debug"
)

// Action is the outcome of reconciling one entity.
type Action string

const (
	ActionAdd     Action = "add"
	ActionUpdate  Action = "update"
	ActionConfirm Action = "confirm"
	// ActionSkip marks an entity left alone, such as an undeclared site
	// member or a person that may not be created.
	ActionSkip Action = "skip"
)

// Entity kinds used in reports and metrics.
const (
	KindSite         = "site"
	KindSiteTag      = "site_tag"
	KindLocation     = "location"
	KindPerson       = "person"
	KindSiteMember   = "site_member"
	KindNode         = "node"
	KindPCU          = "pcu"
	KindNodeGroup    = "nodegroup"
	KindNodeTag      = "node_tag"
	KindInterface    = "interface"
	KindInterfaceTag = "interface_tag"
	KindSlice        = "slice"
	KindSliceExpiry  = "slice_expiration"
	KindSliceTag     = "slice_tag"
	KindSliceUser    = "slice_user"
	KindWhitelist    = "whitelist"
	KindSliceNode    = "slice_node"
)

var reconcileActionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "plsync",
		Subsystem: "reconcile",
		Name:      "actions_total",
		Help:      "Reconciled entities by kind and action",
	},
	[]string{"kind", "action"},
)

func init() {
	debug.Registry().MustRegister(reconcileActionsTotal)
}

// Report counts reconcile outcomes for one run.
type Report struct {
	DryRun   bool
	Started  time.Time
	Duration time.Duration
	counts   map[string]map[Action]int
}

func newReport(dryRun bool, now time.Time) *Report {
	return &Report{DryRun: dryRun, Started: now, counts: map[string]map[Action]int{}}
}

func (r *Report) record(kind string, action Action) {
	if r.counts[kind] == nil {
		r.counts[kind] = map[Action]int{}
	}
	r.counts[kind][action]++
	reconcileActionsTotal.WithLabelValues(kind, string(action)).Inc()
}

// Count returns how often action happened to entities of kind.
func (r *Report) Count(kind string, action Action) int {
	return r.counts[kind][action]
}

// Total returns how often action happened across kinds.
func (r *Report) Total(action Action) int {
	n := 0
	for _, c := range r.counts {
		n += c[action]
	}
	return n
}

// Changes returns the number of adds and updates.
func (r *Report) Changes() int {
	return r.Total(ActionAdd) + r.Total(ActionUpdate)
}

// Kinds returns the kinds seen so far in sorted order.
func (r *Report) Kinds() []string {
	kinds := make([]string, 0, len(r.counts))
	for k := range r.counts {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	return kinds
}

func (r *Report) String() string {
	var parts []string
	for _, k := range r.Kinds() {
		c := r.counts[k]
		parts = append(parts, fmt.Sprintf("%s(add=%d update=%d confirm=%d skip=%d)",
			k, c[ActionAdd], c[ActionUpdate], c[ActionConfirm], c[ActionSkip]))
	}
	return strings.Join(parts, " ")
}
