// Copyright 2025 PLSync Authors
// SPDX-License-Identifier: Apache-2.0

package addr

import (
	"fmt"
	"strconv"
	"strings"
)

// Permutation reorders a host's natural slot list. Slot i of the remapped
// list is element p[i] of the natural list.
type Permutation [Slots]int

// Identity returns the permutation that keeps natural order.
func Identity() Permutation {
	var p Permutation
	for i := range p {
		p[i] = i
	}
	return p
}

// ParsePermutation parses a comma separated list such as
// "1,0,2,3,4,5,6,7,8,9,10,11".
func ParsePermutation(s string) (Permutation, error) {
	var p Permutation
	fields := strings.Split(s, ",")
	if len(fields) != Slots {
		return p, fmt.Errorf("remap %q: expected %d indices, got %d", s, Slots, len(fields))
	}
	for i, f := range fields {
		n, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return p, fmt.Errorf("remap %q: index %d: %w", s, i, err)
		}
		p[i] = n
	}
	if err := p.Validate(); err != nil {
		return p, fmt.Errorf("remap %q: %w", s, err)
	}
	return p, nil
}

// Validate checks that p is a bijection on 0..11.
func (p Permutation) Validate() error {
	var seen [Slots]bool
	for i, n := range p {
		if n < 0 || n >= Slots {
			return fmt.Errorf("index %d out of range: %d", i, n)
		}
		if seen[n] {
			return fmt.Errorf("index %d repeats %d", i, n)
		}
		seen[n] = true
	}
	return nil
}

func (p Permutation) String() string {
	parts := make([]string, len(p))
	for i, n := range p {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ",")
}

// Apply reorders natural by p. It panics if natural does not hold exactly
// 12 elements or p is not a bijection; both are programming errors since
// permutations are validated when the topology is loaded.
func Apply[T any](p Permutation, natural []T) []T {
	if len(natural) != Slots {
		panic(fmt.Sprintf("addr: remap of %d elements, want %d", len(natural), Slots))
	}
	if err := p.Validate(); err != nil {
		panic("addr: invalid remap: " + err.Error())
	}
	out := make([]T, Slots)
	for i, n := range p {
		out[i] = natural[n]
	}
	return out
}
