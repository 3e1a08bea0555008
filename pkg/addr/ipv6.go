// Copyright 2025 PLSync Authors
// SPDX-License-Identifier: Apache-2.0

package addr

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"
)

// V6Prefix is a site's IPv6 /64 prefix written as text ending in "::",
// for example "2604:ca00:f000::". Host addresses are formed by appending the
// decimal offset to that text, so host 1 of a block at last octet 0 is
// "2604:ca00:f000::9". Deployed fleets depend on this exact rendering.
type V6Prefix struct {
	prefix    string
	lastOctet int
	gateway   string
}

// ParseV6Prefix validates prefix and binds it to the IPv4 block's last
// octet. An empty gateway selects the default prefix+"1".
func ParseV6Prefix(prefix string, lastOctet int, gateway string) (V6Prefix, error) {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), "/64")
	if !strings.HasSuffix(prefix, ":") {
		return V6Prefix{}, fmt.Errorf("invalid ipv6 prefix %q: must end with ':'", prefix)
	}
	gw, err := netip.ParseAddr(prefix + "1")
	if err != nil || !gw.Is6() {
		return V6Prefix{}, fmt.Errorf("invalid ipv6 prefix %q: %v", prefix, err)
	}
	if gateway != "" {
		if _, err := netip.ParseAddr(gateway); err != nil {
			return V6Prefix{}, fmt.Errorf("invalid ipv6 gateway %q: %w", gateway, err)
		}
	}
	return V6Prefix{prefix: prefix, lastOctet: lastOctet, gateway: gateway}, nil
}

func (p V6Prefix) String() string {
	return p.prefix
}

// Prefix returns the /64 network the prefix text names.
func (p V6Prefix) Prefix() netip.Prefix {
	a, _ := netip.ParseAddr(p.prefix + "0")
	return netip.PrefixFrom(a, 64)
}

// Aligned reports whether the prefix text names a /64 boundary.
func (p V6Prefix) Aligned() bool {
	pfx := p.Prefix()
	return pfx.Masked().Addr() == pfx.Addr()
}

func (p V6Prefix) at(offset int) string {
	return p.prefix + strconv.Itoa(offset)
}

// Gateway returns the IPv6 default gateway.
func (p V6Prefix) Gateway() string {
	if p.gateway != "" {
		return p.gateway
	}
	return p.prefix + "1"
}

// Primary returns the IPv6 address of hostIndex.
func (p V6Prefix) Primary(hostIndex int) string {
	return p.at(MlabOffset(p.lastOctet, hostIndex))
}

// Secondaries returns the 12 IPv6 slot addresses of hostIndex in natural
// order.
func (p V6Prefix) Secondaries(hostIndex int) []string {
	mlab := MlabOffset(p.lastOctet, hostIndex)
	ips := make([]string, 0, Slots)
	for off := mlab + 1; off <= mlab+Slots; off++ {
		ips = append(ips, p.at(off))
	}
	return ips
}
