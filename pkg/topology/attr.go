// Copyright 2025 PLSync Authors
// SPDX-License-Identifier: Apache-2.0

package topology

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Scope selects which nodes an Attr applies to.
type Scope int

const (
	ScopeAll Scope = iota
	ScopeHost
	ScopeNodeGroup
)

func (s Scope) String() string {
	switch s {
	case ScopeAll:
		return "all"
	case ScopeHost:
		return "hostname"
	case ScopeNodeGroup:
		return "nodegroup"
	default:
		return fmt.Sprintf("Scope(%d)", int(s))
	}
}

// Attr is a slice attribute: one key/value pair in one scope. Target is the
// hostname or nodegroup name and is empty for ScopeAll.
type Attr struct {
	Scope  Scope
	Target string
	Key    string
	Value  string
}

// NewAttr builds an attribute from a context string. An empty context
// applies to all nodes, a context containing a dot names a host, and any
// other context names a nodegroup.
func NewAttr(context, key, value string) (Attr, error) {
	cerr := &ConfigurationError{Kind: "attr", Name: key}
	if key == "" {
		cerr.AddError("key", "is required")
	}
	if err := cerr.err(); err != nil {
		return Attr{}, err
	}
	switch {
	case context == "":
		return Attr{Scope: ScopeAll, Key: key, Value: value}, nil
	case strings.Contains(context, "."):
		return HostAttr(context, key, value), nil
	default:
		return Attr{Scope: ScopeNodeGroup, Target: context, Key: key, Value: value}, nil
	}
}

// HostAttr builds an attribute scoped to one host.
func HostAttr(hostname, key, value string) Attr {
	return Attr{Scope: ScopeHost, Target: hostname, Key: key, Value: value}
}

func (a Attr) String() string {
	if a.Scope == ScopeAll {
		return fmt.Sprintf("%s=%s", a.Key, a.Value)
	}
	return fmt.Sprintf("%s=%s (%s %s)", a.Key, a.Value, a.Scope, a.Target)
}

// AttrSpec is the declared form of one or more attributes sharing a scope:
//
//	- vsys: web100_proc_write
//	- nodegroup: MeasurementLab
//	  disk_max: "80000000"
//	- host: mlab1.abc01.measurement-lab.org
//	  capabilities: CAP_NET_BIND_SERVICE
//
// Keys keep their declared order.
type AttrSpec struct {
	Host      string
	NodeGroup string
	Pairs     []Tag
}

// UnmarshalYAML decodes a mapping of scope keys and attribute pairs. Values
// are taken verbatim so numbers keep their declared spelling.
func (s *AttrSpec) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: attribute must be a mapping", node.Line)
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		k, v := node.Content[i], node.Content[i+1]
		if v.Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: attribute %q must have a scalar value", v.Line, k.Value)
		}
		switch k.Value {
		case "host":
			s.Host = v.Value
		case "nodegroup":
			s.NodeGroup = v.Value
		default:
			s.Pairs = append(s.Pairs, Tag{Name: k.Value, Value: v.Value})
		}
	}
	return nil
}

// MarshalYAML is the inverse of UnmarshalYAML.
func (s AttrSpec) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	add := func(k, v string) {
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: k},
			&yaml.Node{Kind: yaml.ScalarNode, Value: v})
	}
	if s.Host != "" {
		add("host", s.Host)
	}
	if s.NodeGroup != "" {
		add("nodegroup", s.NodeGroup)
	}
	for _, p := range s.Pairs {
		add(p.Name, p.Value)
	}
	return node, nil
}

// Attrs expands the declaration into one Attr per declared pair.
func (s AttrSpec) Attrs() ([]Attr, error) {
	cerr := &ConfigurationError{Kind: "attr"}
	if s.Host != "" && s.NodeGroup != "" {
		cerr.AddError("scope", "host %q and nodegroup %q are mutually exclusive", s.Host, s.NodeGroup)
	}
	if s.Host != "" && !strings.Contains(s.Host, ".") {
		cerr.AddError("host", "%q is not a hostname", s.Host)
	}
	if s.NodeGroup != "" && strings.Contains(s.NodeGroup, ".") {
		cerr.AddError("nodegroup", "%q looks like a hostname", s.NodeGroup)
	}
	if len(s.Pairs) == 0 {
		cerr.AddError("key", "at least one key is required")
	}
	if err := cerr.err(); err != nil {
		return nil, err
	}

	context := s.Host
	if context == "" {
		context = s.NodeGroup
	}
	attrs := make([]Attr, 0, len(s.Pairs))
	for _, p := range s.Pairs {
		a, err := NewAttr(context, p.Name, p.Value)
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, a)
	}
	return attrs, nil
}
