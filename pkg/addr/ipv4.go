// Copyright 2025 PLSync Authors
// SPDX-License-Identifier: Apache-2.0

// Package addr derives every address used at a site from the site's IPv4
// /26 block, its optional IPv6 /64 prefix, and a 1-based host index.
//
// Layout of a /26 block at offset N (N is 0, 64, 128 or 192):
//
//	N+0       network
//	N+1       gateway
//	N+3+i     PCU (DRAC) of host i
//	N+9+13(i-1)        primary interface of host i
//	N+10+13(i-1) ...   12 slot addresses of host i
//	N+63      broadcast
//
// All functions are pure. Alignment of the prefix is checked by callers.
package addr

import (
	"fmt"
	"net/netip"
	"strings"
)

// Slots is the number of tenant-assignable addresses per host.
const Slots = 12

// MaxHosts is the largest host count a /26 block can hold.
const MaxHosts = 4

const (
	hostSpacing  = 13
	hostBase     = 9
	dracBase     = 3
	gatewayOff   = 1
	broadcastOff = 63
)

// Fixed interface settings shared by every site.
const (
	Netmask = "255.255.255.192"
	DNS1    = "8.8.8.8"
	DNS2    = "8.8.4.4"
)

// V4Prefix is the first address of a site's IPv4 block.
type V4Prefix struct {
	octets [4]byte
}

// ParseV4Prefix parses a dotted quad such as "192.168.10.64". A trailing
// "/26" is accepted and ignored.
func ParseV4Prefix(s string) (V4Prefix, error) {
	s = strings.TrimSuffix(strings.TrimSpace(s), "/26")
	a, err := netip.ParseAddr(s)
	if err != nil {
		return V4Prefix{}, fmt.Errorf("invalid ipv4 prefix %q: %w", s, err)
	}
	if !a.Is4() {
		return V4Prefix{}, fmt.Errorf("invalid ipv4 prefix %q: not an ipv4 address", s)
	}
	return V4Prefix{octets: a.As4()}, nil
}

// MustParseV4Prefix is like ParseV4Prefix but panics on error.
func MustParseV4Prefix(s string) V4Prefix {
	p, err := ParseV4Prefix(s)
	if err != nil {
		panic(err)
	}
	return p
}

func (p V4Prefix) String() string {
	return p.Addr().String()
}

// Addr returns the network address of the block.
func (p V4Prefix) Addr() netip.Addr {
	return netip.AddrFrom4(p.octets)
}

// Prefix returns the block as a /26.
func (p V4Prefix) Prefix() netip.Prefix {
	return netip.PrefixFrom(p.Addr(), 26)
}

// Aligned reports whether the prefix starts on a /26 boundary.
func (p V4Prefix) Aligned() bool {
	return p.Prefix().Masked().Addr() == p.Addr()
}

// LastOctet returns the block offset within its /24.
func (p V4Prefix) LastOctet() int {
	return int(p.octets[3])
}

// Breakdown splits the prefix into its leading three octets and its last
// octet, and computes the primary address offset of hostIndex.
func (p V4Prefix) Breakdown(hostIndex int) (netPrefix string, netOffset, mlabOffset int) {
	netPrefix = fmt.Sprintf("%d.%d.%d", p.octets[0], p.octets[1], p.octets[2])
	netOffset = p.LastOctet()
	return netPrefix, netOffset, MlabOffset(netOffset, hostIndex)
}

// MlabOffset returns the last-octet offset of hostIndex's primary address.
func MlabOffset(netOffset, hostIndex int) int {
	return netOffset + (hostIndex-1)*hostSpacing + hostBase
}

// at returns the address with the given last octet. Offsets past 255 only
// happen for misaligned prefixes and wrap.
func (p V4Prefix) at(offset int) netip.Addr {
	o := p.octets
	o[3] = byte(offset)
	return netip.AddrFrom4(o)
}

// Gateway returns the default gateway of the block.
func (p V4Prefix) Gateway() netip.Addr {
	return p.at(p.LastOctet() + gatewayOff)
}

// Broadcast returns the broadcast address of the block.
func (p V4Prefix) Broadcast() netip.Addr {
	return p.at(p.LastOctet() + broadcastOff)
}

// Interface describes a node's primary IPv4 interface.
type Interface struct {
	Type      string
	Method    string
	Network   netip.Addr
	IP        netip.Addr
	Gateway   netip.Addr
	Broadcast netip.Addr
	Netmask   string
	DNS1      string
	DNS2      string
	IsPrimary bool
}

// Interface returns the primary interface of hostIndex.
func (p V4Prefix) Interface(hostIndex int) Interface {
	_, _, mlab := p.Breakdown(hostIndex)
	return Interface{
		Type:      "ipv4",
		Method:    "static",
		Network:   p.Addr(),
		IP:        p.at(mlab),
		Gateway:   p.Gateway(),
		Broadcast: p.Broadcast(),
		Netmask:   Netmask,
		DNS1:      DNS1,
		DNS2:      DNS2,
		IsPrimary: true,
	}
}

// IPList returns the 12 slot addresses of hostIndex in natural order.
func (p V4Prefix) IPList(hostIndex int) []netip.Addr {
	_, _, mlab := p.Breakdown(hostIndex)
	ips := make([]netip.Addr, 0, Slots)
	for off := mlab + 1; off <= mlab+Slots; off++ {
		ips = append(ips, p.at(off))
	}
	return ips
}

// DRAC returns the PCU address of hostIndex.
func (p V4Prefix) DRAC(hostIndex int) netip.Addr {
	return p.at(p.LastOctet() + dracBase + hostIndex)
}
