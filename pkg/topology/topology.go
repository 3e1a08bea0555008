// Copyright 2025 PLSync Authors
// SPDX-License-Identifier: Apache-2.0

// Package topology holds the declared fleet: sites, their nodes and PCUs,
// and the slices bound to every node. A Topology is built once per run and
// is read-only afterwards.
package topology

import (
	"errors"
	"fmt"

	"go4.org/netipx"
)

// DefaultMultiValuedTags is the set of slice tag names that may hold
// several values for the same scope at once.
var DefaultMultiValuedTags = []string{"vsys"}

// Policy carries directory policy that belongs with the declarations
// rather than with the code.
type Policy struct {
	// MultiValuedTags are slice tags that are only ever added, never
	// updated.
	MultiValuedTags []string `yaml:"multi_valued_tags,omitempty"`
}

// Topology is the full declared state.
type Topology struct {
	Domain string
	Sites  []*Site
	Slices []*Slice
	Policy Policy
}

// Build binds every slice to every node of every site, in declaration
// order, and checks that site names, slice names and address blocks are
// unique.
func Build(sites []*Site, slices []*Slice) (*Topology, error) {
	var errs []error

	siteNames := map[string]bool{}
	var blocks netipx.IPSetBuilder
	for _, site := range sites {
		if siteNames[site.Name] {
			errs = append(errs, fmt.Errorf("site %s is declared twice", site.Name))
		}
		siteNames[site.Name] = true

		if site.Network == nil {
			continue
		}
		pfx := site.Network.V4.Prefix()
		set, err := blocks.IPSet()
		if err != nil {
			return nil, err
		}
		if set.OverlapsPrefix(pfx) {
			errs = append(errs, fmt.Errorf("site %s: %s overlaps another site", site.Name, pfx))
		}
		blocks.AddPrefix(pfx)
	}

	sliceNames := map[string]bool{}
	for _, s := range slices {
		if sliceNames[s.Name] {
			errs = append(errs, fmt.Errorf("slice %s is declared twice", s.Name))
		}
		sliceNames[s.Name] = true
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	for _, s := range slices {
		for _, site := range sites {
			for _, n := range site.Nodes() {
				s.AddNodeAddress(n)
			}
		}
	}

	t := &Topology{
		Sites:  sites,
		Slices: slices,
		Policy: Policy{MultiValuedTags: DefaultMultiValuedTags},
	}
	if len(sites) > 0 {
		t.Domain = sites[0].Domain
	}
	return t, nil
}

// Site returns the named site.
func (t *Topology) Site(name string) (*Site, bool) {
	for _, s := range t.Sites {
		if s.Name == name {
			return s, true
		}
	}
	return nil, false
}

// Slice returns the named slice.
func (t *Topology) Slice(name string) (*Slice, bool) {
	for _, s := range t.Slices {
		if s.Name == name {
			return s, true
		}
	}
	return nil, false
}

// Node returns the node with the given hostname.
func (t *Topology) Node(hostname string) (*Node, bool) {
	for _, s := range t.Sites {
		if n, ok := s.Node(hostname); ok {
			return n, true
		}
	}
	return nil, false
}

// HasTarget reports whether target names a declared node by hostname or
// short name, or a declared site.
func (t *Topology) HasTarget(target string) bool {
	for _, s := range t.Sites {
		if s.Name == target {
			return true
		}
		for _, n := range s.Nodes() {
			if n.Hostname == target || n.ShortName() == target {
				return true
			}
		}
	}
	return false
}

// SelectSites returns the sites matching name, or every site when name is
// "all" or empty.
func (t *Topology) SelectSites(name string) ([]*Site, error) {
	if name == "" || name == "all" {
		return t.Sites, nil
	}
	if s, ok := t.Site(name); ok {
		return []*Site{s}, nil
	}
	return nil, fmt.Errorf("no site named %q", name)
}

// SelectSlices returns the slices matching name, or every slice when name
// is "all" or empty.
func (t *Topology) SelectSlices(name string) ([]*Slice, error) {
	if name == "" || name == "all" {
		return t.Slices, nil
	}
	if s, ok := t.Slice(name); ok {
		return []*Slice{s}, nil
	}
	return nil, fmt.Errorf("no slice named %q", name)
}
