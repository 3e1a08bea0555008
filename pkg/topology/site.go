// Copyright 2025 PLSync Authors
// SPDX-License-Identifier: Apache-2.0

package topology

import (
	"fmt"
	"net/netip"
	"regexp"
	"slices"
	"strings"

	"go4.org/netipx"

	"github.com/LeeDigitalWorks/plsync/pkg/addr"
)

const (
	// DefaultDomain is appended to every generated hostname.
	DefaultDomain = "measurement-lab.org"
	// DefaultNodeGroup is the nodegroup of nodes at a site that names none.
	DefaultNodeGroup = "MeasurementLab"
	// DefaultHostCount is the number of nodes at a site that names none.
	DefaultHostCount = 3

	loginBasePrefix = "mlab"
	sitenamePrefix  = "MLab - "
)

var siteNameRE = regexp.MustCompile(`^[a-z]{3}[0-9][0-9a-z]$`)

// Location is a site's geographic metadata.
type Location struct {
	City      string  `yaml:"city"`
	Country   string  `yaml:"country"`
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
	Extra     string  `yaml:"extra,omitempty"`
}

// Person is a site operator or slice user.
type Person struct {
	FirstName string `yaml:"first_name"`
	LastName  string `yaml:"last_name"`
	Email     string `yaml:"email"`
}

// PCUSpec overrides PCU credentials for every node at a site.
type PCUSpec struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Model    string `yaml:"model"`
}

// SiteSpec is the declared form of a site.
type SiteSpec struct {
	Name        string         `yaml:"name"`
	V4Prefix    string         `yaml:"v4_prefix"`
	V6Prefix    string         `yaml:"v6_prefix,omitempty"`
	V6Gateway   string         `yaml:"v6_gateway,omitempty"`
	Count       *int           `yaml:"count,omitempty"`
	NodeGroup   string         `yaml:"nodegroup,omitempty"`
	Arch        string         `yaml:"arch,omitempty"`
	LoginBase   string         `yaml:"login_base,omitempty"`
	Operators   []Person       `yaml:"operators,omitempty"`
	Location    *Location      `yaml:"location,omitempty"`
	Remap       map[int]string `yaml:"remap,omitempty"`
	ExcludeIPv6 []int          `yaml:"exclude_ipv6,omitempty"`
	PCU         *PCUSpec       `yaml:"pcu,omitempty"`
}

// Site is a validated site with its nodes built.
type Site struct {
	Name        string
	LoginBase   string
	DisplayName string
	Domain      string
	Network     *Network
	NodeGroup   string
	Arch        string
	Operators   []Person
	Location    *Location

	nodes []*Node
}

// NewSite validates spec and builds the site's nodes and PCUs. An empty
// domain selects DefaultDomain.
func NewSite(spec SiteSpec, domain string) (*Site, error) {
	if domain == "" {
		domain = DefaultDomain
	}
	cerr := &ConfigurationError{Kind: "site", Name: spec.Name}

	if spec.Name == "" {
		cerr.AddError("name", "is required")
	} else if !siteNameRE.MatchString(spec.Name) {
		cerr.AddError("name", "%q is not a site code such as abc01", spec.Name)
	}

	count := DefaultHostCount
	if spec.Count != nil {
		count = *spec.Count
	}
	if count < 0 || count > addr.MaxHosts {
		cerr.AddError("count", "must be between 0 and %d, got %d", addr.MaxHosts, count)
	}

	net := buildNetwork(spec, count, cerr)

	for _, i := range spec.ExcludeIPv6 {
		if i < 1 || i > count {
			cerr.AddError("exclude_ipv6", "host index %d is outside 1..%d", i, count)
		}
	}

	if loc := spec.Location; loc != nil {
		if loc.City == "" {
			cerr.AddError("location.city", "is required when location is set")
		}
		if loc.Country == "" {
			cerr.AddError("location.country", "is required when location is set")
		}
		if loc.Latitude < -90 || loc.Latitude > 90 {
			cerr.AddError("location.latitude", "%v is out of range", loc.Latitude)
		}
		if loc.Longitude < -180 || loc.Longitude > 180 {
			cerr.AddError("location.longitude", "%v is out of range", loc.Longitude)
		}
	}

	for i, p := range spec.Operators {
		if p.Email == "" || !strings.Contains(p.Email, "@") {
			cerr.AddError(fmt.Sprintf("operators[%d].email", i), "%q is not an email address", p.Email)
		}
	}

	if err := cerr.err(); err != nil {
		return nil, err
	}

	site := &Site{
		Name:        spec.Name,
		LoginBase:   spec.LoginBase,
		DisplayName: sitenamePrefix + strings.ToUpper(spec.Name),
		Domain:      domain,
		Network:     net,
		NodeGroup:   spec.NodeGroup,
		Arch:        spec.Arch,
		Operators:   spec.Operators,
		Location:    spec.Location,
	}
	if site.LoginBase == "" {
		site.LoginBase = loginBasePrefix + spec.Name
	}
	if site.NodeGroup == "" {
		site.NodeGroup = DefaultNodeGroup
	}

	pcu := PCUSpec{Username: "admin", Password: "changeme", Model: "DRAC"}
	if spec.PCU != nil {
		if spec.PCU.Username != "" {
			pcu.Username = spec.PCU.Username
		}
		if spec.PCU.Password != "" {
			pcu.Password = spec.PCU.Password
		}
		if spec.PCU.Model != "" {
			pcu.Model = spec.PCU.Model
		}
	}

	for i := 1; i <= count; i++ {
		site.nodes = append(site.nodes, newNode(site, i, slices.Contains(spec.ExcludeIPv6, i), pcu))
	}

	if err := site.checkContainment(); err != nil {
		return nil, err
	}
	return site, nil
}

func buildNetwork(spec SiteSpec, count int, cerr *ConfigurationError) *Network {
	if spec.V4Prefix == "" {
		if count > 0 {
			cerr.AddError("v4_prefix", "is required for a site with nodes")
		}
		if spec.V6Prefix != "" {
			cerr.AddError("v6_prefix", "requires v4_prefix")
		}
		return nil
	}

	net := &Network{}
	v4, err := addr.ParseV4Prefix(spec.V4Prefix)
	if err != nil {
		cerr.AddError("v4_prefix", "%v", err)
		return nil
	}
	if !v4.Aligned() {
		cerr.AddError("v4_prefix", "%s is not aligned to a /26 block", v4)
	}
	net.V4 = v4

	if spec.V6Prefix != "" {
		v6, err := addr.ParseV6Prefix(spec.V6Prefix, v4.LastOctet(), spec.V6Gateway)
		if err != nil {
			cerr.AddError("v6_prefix", "%v", err)
		} else if !v6.Aligned() {
			cerr.AddError("v6_prefix", "%s is not aligned to a /64 block", v6)
		} else {
			net.V6 = &v6
		}
	} else if spec.V6Gateway != "" {
		cerr.AddError("v6_gateway", "requires v6_prefix")
	}

	if len(spec.Remap) > 0 {
		net.Remap = make(map[int]addr.Permutation, len(spec.Remap))
		for i, s := range spec.Remap {
			if i < 1 || i > count {
				cerr.AddError("remap", "host index %d is outside 1..%d", i, count)
				continue
			}
			p, err := addr.ParsePermutation(s)
			if err != nil {
				cerr.AddError("remap", "host %d: %v", i, err)
				continue
			}
			net.Remap[i] = p
		}
	}
	return net
}

// checkContainment verifies that every derived address lies inside the
// site block.
func (s *Site) checkContainment() error {
	if s.Network == nil {
		return nil
	}
	cerr := &ConfigurationError{Kind: "site", Name: s.Name}
	v4 := netipx.RangeOfPrefix(s.Network.V4.Prefix())
	var v6 netipx.IPRange
	if s.Network.HasIPv6() {
		v6 = netipx.RangeOfPrefix(s.Network.V6.Prefix())
	}
	for _, n := range s.nodes {
		for _, ip := range append([]netip.Addr{n.Interface().IP, n.PCU.IP}, n.IPList()...) {
			if !v4.Contains(ip) {
				cerr.AddError("v4_prefix", "%s of %s falls outside %s", ip, n.Hostname, s.Network.V4.Prefix())
			}
		}
		if !n.IPv6Enabled() {
			continue
		}
		for _, text := range append([]string{n.IPv6Addr()}, n.IPv6List()...) {
			ip, err := netip.ParseAddr(text)
			if err != nil || !v6.Contains(ip) {
				cerr.AddError("v6_prefix", "%s of %s falls outside %s", text, n.Hostname, s.Network.V6.Prefix())
			}
		}
	}
	return cerr.err()
}

// Nodes returns the site's nodes in host index order.
func (s *Site) Nodes() []*Node {
	return s.nodes
}

// Node looks up a node by hostname.
func (s *Site) Node(hostname string) (*Node, bool) {
	for _, n := range s.nodes {
		if n.Hostname == hostname {
			return n, true
		}
	}
	return nil, false
}

func (s *Site) String() string {
	return s.LoginBase
}
