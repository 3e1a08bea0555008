// Copyright 2025 PLSync Authors
// SPDX-License-Identifier: Apache-2.0

package topology

import (
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/LeeDigitalWorks/plsync/pkg/addr"
)

var sliceNameRE = regexp.MustCompile(`^[a-z0-9]+_[a-z0-9_]+$`)

// IPv6Mode selects the nodes on which a slice receives an IPv6 address.
type IPv6Mode int

const (
	IPv6None IPv6Mode = iota
	IPv6Hosts
	IPv6All
)

func (m IPv6Mode) String() string {
	switch m {
	case IPv6Hosts:
		return "hosts"
	case IPv6All:
		return "all"
	default:
		return "none"
	}
}

// IPv6Spec is the declared IPv6 eligibility of a slice: absent, the string
// "all", or a list of short hostnames such as "mlab1.abc01".
type IPv6Spec struct {
	Mode  IPv6Mode
	Hosts []string
}

func (s *IPv6Spec) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		switch node.Value {
		case "all":
			s.Mode = IPv6All
		case "", "none", "~", "null":
			s.Mode = IPv6None
		default:
			return fmt.Errorf("line %d: ipv6 must be \"all\" or a list of hosts, got %q", node.Line, node.Value)
		}
		return nil
	case yaml.SequenceNode:
		var hosts []string
		if err := node.Decode(&hosts); err != nil {
			return err
		}
		s.Mode = IPv6Hosts
		s.Hosts = hosts
		return nil
	default:
		return fmt.Errorf("line %d: ipv6 must be \"all\" or a list of hosts", node.Line)
	}
}

func (s IPv6Spec) MarshalYAML() (any, error) {
	switch s.Mode {
	case IPv6All:
		return "all", nil
	case IPv6Hosts:
		return s.Hosts, nil
	default:
		return nil, nil
	}
}

// SliceSpec is the declared form of a slice.
type SliceSpec struct {
	Name          string     `yaml:"name"`
	Index         *int       `yaml:"index,omitempty"`
	Attrs         []AttrSpec `yaml:"attrs,omitempty"`
	Users         []string   `yaml:"users,omitempty"`
	IPv6          IPv6Spec   `yaml:"ipv6,omitempty"`
	UseInitscript bool       `yaml:"use_initscript,omitempty"`
}

// Binding pairs a hostname with its node.
type Binding struct {
	Hostname string
	Node     *Node
}

// Slice is a validated tenant. Index is nil for slices that never receive
// an address.
type Slice struct {
	Name          string
	Index         *int
	Attrs         []Attr
	Users         []string
	IPv6Mode      IPv6Mode
	UseInitscript bool

	ipv6Hosts map[string]bool
	bindings  []Binding
	bound     map[string]bool
}

// NewSlice validates spec. Short hostnames in the IPv6 allow-list are
// completed with domain, or DefaultDomain when domain is empty.
func NewSlice(spec SliceSpec, domain string) (*Slice, error) {
	if domain == "" {
		domain = DefaultDomain
	}
	cerr := &ConfigurationError{Kind: "slice", Name: spec.Name}

	if spec.Name == "" {
		cerr.AddError("name", "is required")
	} else if !sliceNameRE.MatchString(spec.Name) {
		cerr.AddError("name", "%q is not of the form <site>_<name>", spec.Name)
	}
	if spec.Index != nil && (*spec.Index < 0 || *spec.Index >= addr.Slots) {
		cerr.AddError("index", "must be between 0 and %d, got %d", addr.Slots-1, *spec.Index)
	}
	for i, u := range spec.Users {
		if !strings.Contains(u, "@") {
			cerr.AddError(fmt.Sprintf("users[%d]", i), "%q is not an email address", u)
		}
	}

	s := &Slice{
		Name:          spec.Name,
		Index:         spec.Index,
		Users:         spec.Users,
		IPv6Mode:      spec.IPv6.Mode,
		UseInitscript: spec.UseInitscript,
		bound:         map[string]bool{},
	}
	if spec.IPv6.Mode == IPv6Hosts {
		s.ipv6Hosts = make(map[string]bool, len(spec.IPv6.Hosts))
		for _, h := range spec.IPv6.Hosts {
			if strings.Count(h, ".") != 1 {
				cerr.AddError("ipv6", "%q is not a short hostname such as mlab1.abc01", h)
				continue
			}
			s.ipv6Hosts[h+"."+domain] = true
		}
	}

	for i, as := range spec.Attrs {
		attrs, err := as.Attrs()
		if err != nil {
			cerr.AddError(fmt.Sprintf("attrs[%d]", i), "%v", err)
			continue
		}
		s.Attrs = append(s.Attrs, attrs...)
	}

	if err := cerr.err(); err != nil {
		return nil, err
	}
	return s, nil
}

// IPv6Enabled reports whether the slice receives an IPv6 address on
// hostname.
func (s *Slice) IPv6Enabled(hostname string) bool {
	switch s.IPv6Mode {
	case IPv6All:
		return true
	case IPv6Hosts:
		return s.ipv6Hosts[hostname]
	default:
		return false
	}
}

// AddNodeAddress binds node to the slice. Binding the same hostname twice
// is a no-op.
func (s *Slice) AddNodeAddress(node *Node) {
	if s.bound[node.Hostname] {
		return
	}
	s.bound[node.Hostname] = true
	s.bindings = append(s.bindings, Binding{Hostname: node.Hostname, Node: node})
}

// Bindings returns every (hostname, node) pair in site then host order.
func (s *Slice) Bindings() []Binding {
	return s.bindings
}

func (s *Slice) String() string {
	return s.Name
}
