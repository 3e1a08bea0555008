// Copyright 2025 PLSync Authors
// SPDX-License-Identifier: Apache-2.0

package topology

import (
	"fmt"
	"net/netip"
	"strings"

	"github.com/LeeDigitalWorks/plsync/pkg/addr"
)

// IPAddressesKey is the slice tag carrying a slice's per-node addresses.
const IPAddressesKey = "ip_addresses"

// PCU is a node's power control unit.
type PCU struct {
	Hostname string
	IP       netip.Addr
	Username string
	Password string
	Model    string
}

// Tag is a named value attached to a directory record.
type Tag struct {
	Name  string
	Value string
}

// Node is one server at a site.
type Node struct {
	Index       int
	Hostname    string
	NodeGroup   string
	ExcludeIPv6 bool
	PCU         PCU

	site *Site
}

func newNode(site *Site, index int, excludeIPv6 bool, pcu PCUSpec) *Node {
	n := &Node{
		Index:       index,
		Hostname:    fmt.Sprintf("mlab%d.%s.%s", index, site.Name, site.Domain),
		NodeGroup:   site.NodeGroup,
		ExcludeIPv6: excludeIPv6,
		site:        site,
	}
	n.PCU = PCU{
		Hostname: fmt.Sprintf("mlab%dd.%s.%s", index, site.Name, site.Domain),
		IP:       site.Network.DRAC(index),
		Username: pcu.Username,
		Password: pcu.Password,
		Model:    pcu.Model,
	}
	return n
}

// Site returns the node's parent site.
func (n *Node) Site() *Site {
	return n.site
}

// ShortName is the hostname without the domain, e.g. "mlab1.abc01".
func (n *Node) ShortName() string {
	return strings.TrimSuffix(n.Hostname, "."+n.site.Domain)
}

// Interface returns the node's primary interface.
func (n *Node) Interface() addr.Interface {
	return n.site.Network.Interface(n.Index)
}

// IPList returns the node's 12 IPv4 slot addresses.
func (n *Node) IPList() []netip.Addr {
	return n.site.Network.IPList(n.Index)
}

// IPv6Enabled reports whether the site has IPv6 and the node is not
// excluded from it.
func (n *Node) IPv6Enabled() bool {
	return n.site.Network.HasIPv6() && !n.ExcludeIPv6
}

// IPv6Addr returns the node's own IPv6 address.
func (n *Node) IPv6Addr() string {
	return n.site.Network.IPv6Primary(n.Index)
}

// IPv6List returns the node's 12 IPv6 slot addresses.
func (n *Node) IPv6List() []string {
	return n.site.Network.IPv6List(n.Index)
}

// V6InterfaceTags returns the tags that configure IPv6 on the node's
// primary interface, or nil when IPv6 is not enabled.
func (n *Node) V6InterfaceTags() []Tag {
	if !n.IPv6Enabled() {
		return nil
	}
	return []Tag{
		{Name: "ipv6_defaultgw", Value: n.site.Network.IPv6Gateway()},
		{Name: "ipv6addr", Value: n.IPv6Addr()},
		{Name: "ipv6addr_secondaries", Value: strings.Join(n.IPv6List(), " ")},
	}
}

// InterfaceAttr returns the host scoped ip_addresses attribute binding
// slice s to this node, or nil when s has no slot index. The value is the
// IPv4 slot address, followed by the IPv6 slot address when both the node
// and the slice have IPv6 enabled.
func (n *Node) InterfaceAttr(s *Slice) *Attr {
	if s.Index == nil {
		return nil
	}
	i := *s.Index
	value := n.IPList()[i].String()
	if n.IPv6Enabled() && s.IPv6Enabled(n.Hostname) {
		value += "," + n.IPv6List()[i]
	}
	a := HostAttr(n.Hostname, IPAddressesKey, value)
	return &a
}

func (n *Node) String() string {
	return n.Hostname
}
