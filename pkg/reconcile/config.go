// Copyright 2025 PLSync Authors
// SPDX-License-Identifier: Apache-2.0

package reconcile

import (
	"time"

	"github.com/LeeDigitalWorks/plsync/pkg/topology"
)

// Steps enables the optional parts of a sync. Site, location, node tag,
// slice tag and expiration sync always run.
type Steps struct {
	// AddUsers adds declared operators to sites and declared users to
	// slices.
	AddUsers bool
	// CreateUsers creates and enables declared persons that do not exist.
	CreateUsers bool
	// AddNodes creates declared nodes that do not exist. Without it a
	// missing node is fatal.
	AddNodes bool
	// AddInterfaces syncs the primary and secondary IPv4 interfaces of
	// every node.
	AddInterfaces bool
	// AddWhitelist whitelists and assigns slices on their nodes.
	AddWhitelist bool
	// AddSliceIPs binds slot addresses to slices with ip_addresses tags.
	AddSliceIPs bool
	// CreateSlice creates declared slices that do not exist. Without it a
	// missing slice is fatal.
	CreateSlice bool
}

// AllSteps returns the steps enabled by --allsteps. Creating users and
// slices stays opt-in.
func AllSteps() Steps {
	return Steps{
		AddUsers:      true,
		AddNodes:      true,
		AddInterfaces: true,
		AddWhitelist:  true,
		AddSliceIPs:   true,
	}
}

// Config configures a Reconciler.
type Config struct {
	// Target narrows the visited nodes to one hostname or one site name.
	// Empty or "all" visits everything.
	Target string
	Steps  Steps
	// DryRun wraps the directory client so that no mutating call is sent.
	DryRun bool
	// MultiValuedTags lists slice tag names that may hold several values
	// in one scope. Nil selects topology.DefaultMultiValuedTags.
	MultiValuedTags []string
	// Now defaults to time.Now.
	Now func() time.Time
}

func (c *Config) setDefaults() {
	if c.MultiValuedTags == nil {
		c.MultiValuedTags = topology.DefaultMultiValuedTags
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}
