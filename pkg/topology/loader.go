// Copyright 2025 PLSync Authors
// SPDX-License-Identifier: Apache-2.0

package topology

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Declaration is the on-disk form of a topology. DefaultOperators are
// given to sites that declare none.
type Declaration struct {
	Domain           string      `yaml:"domain,omitempty"`
	DefaultOperators []Person    `yaml:"default_operators,omitempty"`
	Policy           Policy      `yaml:"policy,omitempty"`
	Sites            []SiteSpec  `yaml:"sites"`
	Slices           []SliceSpec `yaml:"slices"`
}

// Load reads and builds the topology declared in the YAML file at path.
func Load(path string) (*Topology, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read topology: %w", err)
	}
	t, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// Parse decodes a YAML declaration and builds it. Every invalid site and
// slice is reported, not only the first.
func Parse(data []byte) (*Topology, error) {
	var decl Declaration
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&decl); err != nil {
		return nil, fmt.Errorf("failed to decode topology: %w", err)
	}
	return decl.Build()
}

// Build validates the declaration and returns its topology.
func (d *Declaration) Build() (*Topology, error) {
	var errs []error

	sites := make([]*Site, 0, len(d.Sites))
	for _, spec := range d.Sites {
		if len(spec.Operators) == 0 {
			spec.Operators = d.DefaultOperators
		}
		s, err := NewSite(spec, d.Domain)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		sites = append(sites, s)
	}

	slices := make([]*Slice, 0, len(d.Slices))
	for _, spec := range d.Slices {
		s, err := NewSlice(spec, d.Domain)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		slices = append(slices, s)
	}

	if len(d.Policy.MultiValuedTags) == 0 && d.Policy.MultiValuedTags != nil {
		errs = append(errs, errors.New("policy.multi_valued_tags: must not be empty when set"))
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	t, err := Build(sites, slices)
	if err != nil {
		return nil, err
	}
	if d.Domain != "" {
		t.Domain = d.Domain
	} else {
		t.Domain = DefaultDomain
	}
	if len(d.Policy.MultiValuedTags) > 0 {
		t.Policy = d.Policy
	}
	return t, nil
}
