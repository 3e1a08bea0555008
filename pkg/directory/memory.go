// Copyright 2025 PLSync Authors
// SPDX-License-Identifier: Apache-2.0

package directory

import (
	"context"
	"fmt"
	"reflect"
	"slices"
	"sync"
)

// memoryFaultCode is reported for calls that reference missing records.
const memoryFaultCode = 100

// Call is one recorded directory call.
type Call struct {
	Method string
	Args   []any
}

// Memory is an in-process directory. It keeps the same record links PLCAPI
// maintains (site members, node groups derived from node tags, PCU ports,
// whitelists) and records every call in order. It does not enforce unique
// names, so tests can seed ambiguous state.
type Memory struct {
	mu     sync.Mutex
	nextID int

	sites         []*Site
	siteTags      []*SiteTag
	persons       []*Person
	nodes         []*Node
	nodeGroups    []*NodeGroup
	nodeTags      []*NodeTag
	pcus          []*PCU
	interfaces    []*Interface
	interfaceTags []*InterfaceTag
	tagTypes      []*TagType
	slices        []*Slice
	sliceTags     []*SliceTag

	calls    []Call
	failures map[string]error
}

var _ Client = (*Memory)(nil)

// NewMemory returns an empty directory.
func NewMemory() *Memory {
	return &Memory{failures: map[string]error{}}
}

// Calls returns every call made so far.
func (m *Memory) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.calls)
}

// Methods returns the method names of every call made so far.
func (m *Memory) Methods() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	for i, c := range m.calls {
		out[i] = c.Method
	}
	return out
}

// MutatingCalls returns the calls that changed state.
func (m *Memory) MutatingCalls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Call
	for _, c := range m.calls {
		if IsMutating(c.Method) {
			out = append(out, c)
		}
	}
	return out
}

// ResetCalls clears the call log, typically after seeding.
func (m *Memory) ResetCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// FailOn makes every later call of method return err.
func (m *Memory) FailOn(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[method] = err
}

// AddNodeGroup defines a node group whose members are the nodes carrying
// tagName=value.
func (m *Memory) AddNodeGroup(groupName, tagName, value string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	g := &NodeGroup{NodeGroupID: m.id(), GroupName: groupName, TagName: tagName, Value: value}
	m.nodeGroups = append(m.nodeGroups, g)
	for _, n := range m.nodes {
		m.regroup(n.NodeID)
	}
	return g.NodeGroupID
}

// AddTagType defines a tag type.
func (m *Memory) AddTagType(tagName, category string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &TagType{TagTypeID: m.id(), TagName: tagName, Category: category}
	m.tagTypes = append(m.tagTypes, t)
	return t.TagTypeID
}

func (m *Memory) id() int {
	m.nextID++
	return m.nextID
}

// begin records a call and returns any injected failure.
func (m *Memory) begin(ctx context.Context, method string, args ...any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.calls = append(m.calls, Call{Method: method, Args: args})
	return m.failures[method]
}

func missing(method, format string, args ...any) error {
	return &Fault{Method: method, Code: memoryFaultCode, Msg: fmt.Sprintf(format, args...)}
}

// matches reports whether record satisfies every filter entry. Fields left
// out by omitempty compare as their zero value.
func matches(record any, filter Filter) bool {
	if len(filter) == 0 {
		return true
	}
	fields, err := toFields(record)
	if err != nil {
		return false
	}
	for key, want := range filter {
		got, ok := fields[key]
		wv := reflect.ValueOf(want)
		if wv.Kind() == reflect.Slice {
			found := false
			for i := 0; i < wv.Len(); i++ {
				if equalValue(got, ok, wv.Index(i).Interface()) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
			continue
		}
		if !equalValue(got, ok, want) {
			return false
		}
	}
	return true
}

func equalValue(got any, present bool, want any) bool {
	if !present {
		return want == nil || reflect.ValueOf(want).IsZero()
	}
	return fmt.Sprint(got) == fmt.Sprint(want)
}

func selectRecords[T any](table []*T, filter Filter) []T {
	out := []T{}
	for _, r := range table {
		if matches(*r, filter) {
			out = append(out, *r)
		}
	}
	return out
}

func find[T any](table []*T, pred func(*T) bool) *T {
	for _, r := range table {
		if pred(r) {
			return r
		}
	}
	return nil
}

func appendUnique(ids []int, id int) []int {
	if slices.Contains(ids, id) {
		return ids
	}
	return append(ids, id)
}

func (m *Memory) siteByLoginBase(loginBase string) *Site {
	return find(m.sites, func(s *Site) bool { return s.LoginBase == loginBase })
}

func (m *Memory) nodeByID(id int) *Node {
	return find(m.nodes, func(n *Node) bool { return n.NodeID == id })
}

func (m *Memory) sliceByID(id int) *Slice {
	return find(m.slices, func(s *Slice) bool { return s.SliceID == id })
}

// regroup recomputes the node groups of nodeID from its tags.
func (m *Memory) regroup(nodeID int) {
	node := m.nodeByID(nodeID)
	if node == nil {
		return
	}
	node.NodeGroupIDs = nil
	for _, g := range m.nodeGroups {
		g.NodeIDs = slices.DeleteFunc(g.NodeIDs, func(id int) bool { return id == nodeID })
		tag := find(m.nodeTags, func(t *NodeTag) bool {
			return t.NodeID == nodeID && t.TagName == g.TagName && t.Value == g.Value
		})
		if tag != nil {
			node.NodeGroupIDs = append(node.NodeGroupIDs, g.NodeGroupID)
			g.NodeIDs = append(g.NodeIDs, nodeID)
		}
	}
}

func (m *Memory) GetSites(ctx context.Context, filter Filter) ([]Site, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(ctx, "GetSites", filter); err != nil {
		return nil, err
	}
	return selectRecords(m.sites, filter), nil
}

func (m *Memory) AddSite(ctx context.Context, site Site) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(ctx, "AddSite", site); err != nil {
		return 0, err
	}
	site.SiteID = m.id()
	m.sites = append(m.sites, &site)
	return site.SiteID, nil
}

func (m *Memory) UpdateSite(ctx context.Context, siteID int, fields Fields) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(ctx, "UpdateSite", siteID, fields); err != nil {
		return err
	}
	s := find(m.sites, func(s *Site) bool { return s.SiteID == siteID })
	if s == nil {
		return missing("UpdateSite", "no such site %d", siteID)
	}
	return decode(map[string]any(fields), s)
}

func (m *Memory) GetSiteTags(ctx context.Context, filter Filter) ([]SiteTag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(ctx, "GetSiteTags", filter); err != nil {
		return nil, err
	}
	return selectRecords(m.siteTags, filter), nil
}

func (m *Memory) AddSiteTag(ctx context.Context, siteID int, tagName, value string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(ctx, "AddSiteTag", siteID, tagName, value); err != nil {
		return 0, err
	}
	if find(m.sites, func(s *Site) bool { return s.SiteID == siteID }) == nil {
		return 0, missing("AddSiteTag", "no such site %d", siteID)
	}
	t := &SiteTag{SiteTagID: m.id(), SiteID: siteID, TagName: tagName, Value: value}
	m.siteTags = append(m.siteTags, t)
	return t.SiteTagID, nil
}

func (m *Memory) UpdateSiteTag(ctx context.Context, siteTagID int, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(ctx, "UpdateSiteTag", siteTagID, value); err != nil {
		return err
	}
	t := find(m.siteTags, func(t *SiteTag) bool { return t.SiteTagID == siteTagID })
	if t == nil {
		return missing("UpdateSiteTag", "no such site tag %d", siteTagID)
	}
	t.Value = value
	return nil
}

func (m *Memory) GetPersons(ctx context.Context, filter Filter) ([]Person, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(ctx, "GetPersons", filter); err != nil {
		return nil, err
	}
	return selectRecords(m.persons, filter), nil
}

func (m *Memory) AddPerson(ctx context.Context, person Person) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(ctx, "AddPerson", person.Email); err != nil {
		return 0, err
	}
	person.PersonID = m.id()
	person.Enabled = false
	m.persons = append(m.persons, &person)
	return person.PersonID, nil
}

func (m *Memory) UpdatePerson(ctx context.Context, personID int, fields Fields) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(ctx, "UpdatePerson", personID, fields); err != nil {
		return err
	}
	p := find(m.persons, func(p *Person) bool { return p.PersonID == personID })
	if p == nil {
		return missing("UpdatePerson", "no such person %d", personID)
	}
	return decode(map[string]any(fields), p)
}

func (m *Memory) AddPersonToSite(ctx context.Context, email, loginBase string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(ctx, "AddPersonToSite", email, loginBase); err != nil {
		return err
	}
	p := find(m.persons, func(p *Person) bool { return p.Email == email })
	if p == nil {
		return missing("AddPersonToSite", "no such account %s", email)
	}
	s := m.siteByLoginBase(loginBase)
	if s == nil {
		return missing("AddPersonToSite", "no such site %s", loginBase)
	}
	p.SiteIDs = appendUnique(p.SiteIDs, s.SiteID)
	s.PersonIDs = appendUnique(s.PersonIDs, p.PersonID)
	return nil
}

func (m *Memory) AddPersonToSlice(ctx context.Context, email, sliceName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(ctx, "AddPersonToSlice", email, sliceName); err != nil {
		return err
	}
	p := find(m.persons, func(p *Person) bool { return p.Email == email })
	if p == nil {
		return missing("AddPersonToSlice", "no such account %s", email)
	}
	s := find(m.slices, func(s *Slice) bool { return s.Name == sliceName })
	if s == nil {
		return missing("AddPersonToSlice", "no such slice %s", sliceName)
	}
	p.SliceIDs = appendUnique(p.SliceIDs, s.SliceID)
	s.PersonIDs = appendUnique(s.PersonIDs, p.PersonID)
	return nil
}

func (m *Memory) GetNodes(ctx context.Context, filter Filter) ([]Node, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(ctx, "GetNodes", filter); err != nil {
		return nil, err
	}
	return selectRecords(m.nodes, filter), nil
}

func (m *Memory) AddNode(ctx context.Context, loginBase string, node Node) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(ctx, "AddNode", loginBase, node.Hostname); err != nil {
		return 0, err
	}
	s := m.siteByLoginBase(loginBase)
	if s == nil {
		return 0, missing("AddNode", "no such site %s", loginBase)
	}
	node.NodeID = m.id()
	node.SiteID = s.SiteID
	m.nodes = append(m.nodes, &node)
	s.NodeIDs = appendUnique(s.NodeIDs, node.NodeID)
	return node.NodeID, nil
}

func (m *Memory) GetNodeGroups(ctx context.Context, filter Filter) ([]NodeGroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(ctx, "GetNodeGroups", filter); err != nil {
		return nil, err
	}
	return selectRecords(m.nodeGroups, filter), nil
}

func (m *Memory) GetNodeTags(ctx context.Context, filter Filter) ([]NodeTag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(ctx, "GetNodeTags", filter); err != nil {
		return nil, err
	}
	return selectRecords(m.nodeTags, filter), nil
}

func (m *Memory) AddNodeTag(ctx context.Context, nodeID int, tagName, value string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(ctx, "AddNodeTag", nodeID, tagName, value); err != nil {
		return 0, err
	}
	node := m.nodeByID(nodeID)
	if node == nil {
		return 0, missing("AddNodeTag", "no such node %d", nodeID)
	}
	t := &NodeTag{NodeTagID: m.id(), NodeID: nodeID, TagName: tagName, Value: value}
	m.nodeTags = append(m.nodeTags, t)
	node.NodeTagIDs = append(node.NodeTagIDs, t.NodeTagID)
	m.regroup(nodeID)
	return t.NodeTagID, nil
}

func (m *Memory) UpdateNodeTag(ctx context.Context, nodeTagID int, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(ctx, "UpdateNodeTag", nodeTagID, value); err != nil {
		return err
	}
	t := find(m.nodeTags, func(t *NodeTag) bool { return t.NodeTagID == nodeTagID })
	if t == nil {
		return missing("UpdateNodeTag", "no such node tag %d", nodeTagID)
	}
	t.Value = value
	m.regroup(t.NodeID)
	return nil
}

func (m *Memory) GetPCUs(ctx context.Context, filter Filter) ([]PCU, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(ctx, "GetPCUs", filter); err != nil {
		return nil, err
	}
	return selectRecords(m.pcus, filter), nil
}

func (m *Memory) AddPCU(ctx context.Context, loginBase string, pcu PCU) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(ctx, "AddPCU", loginBase, pcu.Hostname); err != nil {
		return 0, err
	}
	s := m.siteByLoginBase(loginBase)
	if s == nil {
		return 0, missing("AddPCU", "no such site %s", loginBase)
	}
	pcu.PCUID = m.id()
	pcu.SiteID = s.SiteID
	m.pcus = append(m.pcus, &pcu)
	return pcu.PCUID, nil
}

func (m *Memory) UpdatePCU(ctx context.Context, pcuID int, fields Fields) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(ctx, "UpdatePCU", pcuID, fields); err != nil {
		return err
	}
	p := find(m.pcus, func(p *PCU) bool { return p.PCUID == pcuID })
	if p == nil {
		return missing("UpdatePCU", "no such pcu %d", pcuID)
	}
	return decode(map[string]any(fields), p)
}

func (m *Memory) AddNodeToPCU(ctx context.Context, nodeID, pcuID, port int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(ctx, "AddNodeToPCU", nodeID, pcuID, port); err != nil {
		return err
	}
	node := m.nodeByID(nodeID)
	p := find(m.pcus, func(p *PCU) bool { return p.PCUID == pcuID })
	if node == nil || p == nil {
		return missing("AddNodeToPCU", "no such node %d or pcu %d", nodeID, pcuID)
	}
	p.NodeIDs = appendUnique(p.NodeIDs, nodeID)
	node.PCUIDs = appendUnique(node.PCUIDs, pcuID)
	return nil
}

func (m *Memory) GetInterfaces(ctx context.Context, filter Filter) ([]Interface, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(ctx, "GetInterfaces", filter); err != nil {
		return nil, err
	}
	return selectRecords(m.interfaces, filter), nil
}

func (m *Memory) AddInterface(ctx context.Context, nodeID int, iface Interface) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(ctx, "AddInterface", nodeID, iface.IP); err != nil {
		return 0, err
	}
	node := m.nodeByID(nodeID)
	if node == nil {
		return 0, missing("AddInterface", "no such node %d", nodeID)
	}
	iface.InterfaceID = m.id()
	iface.NodeID = nodeID
	m.interfaces = append(m.interfaces, &iface)
	node.InterfaceIDs = append(node.InterfaceIDs, iface.InterfaceID)
	return iface.InterfaceID, nil
}

func (m *Memory) UpdateInterface(ctx context.Context, interfaceID int, fields Fields) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(ctx, "UpdateInterface", interfaceID, fields); err != nil {
		return err
	}
	i := find(m.interfaces, func(i *Interface) bool { return i.InterfaceID == interfaceID })
	if i == nil {
		return missing("UpdateInterface", "no such interface %d", interfaceID)
	}
	return decode(map[string]any(fields), i)
}

func (m *Memory) GetInterfaceTags(ctx context.Context, filter Filter) ([]InterfaceTag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(ctx, "GetInterfaceTags", filter); err != nil {
		return nil, err
	}
	return selectRecords(m.interfaceTags, filter), nil
}

func (m *Memory) AddInterfaceTag(ctx context.Context, interfaceID, tagTypeID int, value string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(ctx, "AddInterfaceTag", interfaceID, tagTypeID, value); err != nil {
		return 0, err
	}
	i := find(m.interfaces, func(i *Interface) bool { return i.InterfaceID == interfaceID })
	tt := find(m.tagTypes, func(t *TagType) bool { return t.TagTypeID == tagTypeID })
	if i == nil || tt == nil {
		return 0, missing("AddInterfaceTag", "no such interface %d or tag type %d", interfaceID, tagTypeID)
	}
	t := &InterfaceTag{InterfaceTagID: m.id(), InterfaceID: interfaceID, TagTypeID: tagTypeID, TagName: tt.TagName, Value: value}
	m.interfaceTags = append(m.interfaceTags, t)
	i.InterfaceTagIDs = append(i.InterfaceTagIDs, t.InterfaceTagID)
	return t.InterfaceTagID, nil
}

func (m *Memory) UpdateInterfaceTag(ctx context.Context, interfaceTagID int, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(ctx, "UpdateInterfaceTag", interfaceTagID, value); err != nil {
		return err
	}
	t := find(m.interfaceTags, func(t *InterfaceTag) bool { return t.InterfaceTagID == interfaceTagID })
	if t == nil {
		return missing("UpdateInterfaceTag", "no such interface tag %d", interfaceTagID)
	}
	t.Value = value
	return nil
}

func (m *Memory) GetTagTypes(ctx context.Context, filter Filter) ([]TagType, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(ctx, "GetTagTypes", filter); err != nil {
		return nil, err
	}
	return selectRecords(m.tagTypes, filter), nil
}

func (m *Memory) GetSlices(ctx context.Context, filter Filter) ([]Slice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(ctx, "GetSlices", filter); err != nil {
		return nil, err
	}
	return selectRecords(m.slices, filter), nil
}

func (m *Memory) AddSlice(ctx context.Context, slice Slice) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(ctx, "AddSlice", slice.Name); err != nil {
		return 0, err
	}
	slice.SliceID = m.id()
	m.slices = append(m.slices, &slice)
	return slice.SliceID, nil
}

func (m *Memory) UpdateSlice(ctx context.Context, sliceID int, fields Fields) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(ctx, "UpdateSlice", sliceID, fields); err != nil {
		return err
	}
	s := m.sliceByID(sliceID)
	if s == nil {
		return missing("UpdateSlice", "no such slice %d", sliceID)
	}
	return decode(map[string]any(fields), s)
}

func (m *Memory) GetSliceTags(ctx context.Context, filter Filter) ([]SliceTag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(ctx, "GetSliceTags", filter); err != nil {
		return nil, err
	}
	return selectRecords(m.sliceTags, filter), nil
}

func (m *Memory) AddSliceTag(ctx context.Context, tag SliceTag) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(ctx, "AddSliceTag", tag); err != nil {
		return 0, err
	}
	s := m.sliceByID(tag.SliceID)
	if s == nil {
		return 0, missing("AddSliceTag", "no such slice %d", tag.SliceID)
	}
	tag.SliceTagID = m.id()
	tag.Name = s.Name
	m.sliceTags = append(m.sliceTags, &tag)
	return tag.SliceTagID, nil
}

func (m *Memory) UpdateSliceTag(ctx context.Context, sliceTagID int, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(ctx, "UpdateSliceTag", sliceTagID, value); err != nil {
		return err
	}
	t := find(m.sliceTags, func(t *SliceTag) bool { return t.SliceTagID == sliceTagID })
	if t == nil {
		return missing("UpdateSliceTag", "no such slice tag %d", sliceTagID)
	}
	t.Value = value
	return nil
}

func (m *Memory) AddSliceToNodesWhitelist(ctx context.Context, sliceID int, hostnames []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(ctx, "AddSliceToNodesWhitelist", sliceID, hostnames); err != nil {
		return err
	}
	if m.sliceByID(sliceID) == nil {
		return missing("AddSliceToNodesWhitelist", "no such slice %d", sliceID)
	}
	for _, h := range hostnames {
		node := find(m.nodes, func(n *Node) bool { return n.Hostname == h })
		if node == nil {
			return missing("AddSliceToNodesWhitelist", "no such node %s", h)
		}
		node.SliceIDsWhitelist = appendUnique(node.SliceIDsWhitelist, sliceID)
	}
	return nil
}

func (m *Memory) AddSliceToNodes(ctx context.Context, sliceID int, hostnames []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(ctx, "AddSliceToNodes", sliceID, hostnames); err != nil {
		return err
	}
	s := m.sliceByID(sliceID)
	if s == nil {
		return missing("AddSliceToNodes", "no such slice %d", sliceID)
	}
	for _, h := range hostnames {
		node := find(m.nodes, func(n *Node) bool { return n.Hostname == h })
		if node == nil {
			return missing("AddSliceToNodes", "no such node %s", h)
		}
		node.SliceIDs = appendUnique(node.SliceIDs, sliceID)
		s.NodeIDs = appendUnique(s.NodeIDs, node.NodeID)
	}
	return nil
}
