// Copyright 2025 PLSync Authors
// SPDX-License-Identifier: Apache-2.0

package topology

import (
	"net/netip"

	"github.com/LeeDigitalWorks/plsync/pkg/addr"
)

// Network is a site's address plan. V6 is nil when the site has no IPv6.
// Remap holds legacy slot orderings keyed by host index.
type Network struct {
	V4    addr.V4Prefix
	V6    *addr.V6Prefix
	Remap map[int]addr.Permutation
}

// HasIPv6 reports whether the site carries an IPv6 prefix.
func (n *Network) HasIPv6() bool {
	return n != nil && n.V6 != nil
}

// Interface returns the primary interface of host i.
func (n *Network) Interface(i int) addr.Interface {
	return n.V4.Interface(i)
}

// IPList returns host i's IPv4 slot addresses with any legacy remap applied.
func (n *Network) IPList(i int) []netip.Addr {
	ips := n.V4.IPList(i)
	if p, ok := n.Remap[i]; ok {
		return addr.Apply(p, ips)
	}
	return ips
}

// IPv6List returns host i's IPv6 slot addresses with the same remap as
// IPList. It returns nil when the site has no IPv6.
func (n *Network) IPv6List(i int) []string {
	if !n.HasIPv6() {
		return nil
	}
	ips := n.V6.Secondaries(i)
	if p, ok := n.Remap[i]; ok {
		return addr.Apply(p, ips)
	}
	return ips
}

// IPv6Primary returns host i's IPv6 address, or "" without IPv6.
func (n *Network) IPv6Primary(i int) string {
	if !n.HasIPv6() {
		return ""
	}
	return n.V6.Primary(i)
}

// IPv6Gateway returns the IPv6 default gateway, or "" without IPv6.
func (n *Network) IPv6Gateway() string {
	if !n.HasIPv6() {
		return ""
	}
	return n.V6.Gateway()
}

// DRAC returns the PCU address of host i.
func (n *Network) DRAC(i int) netip.Addr {
	return n.V4.DRAC(i)
}
