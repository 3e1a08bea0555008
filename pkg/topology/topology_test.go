// Copyright 2025 PLSync Authors
// SPDX-License-Identifier: Apache-2.0

package topology

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(i int) *int { return &i }

func TestLoad(t *testing.T) {
	t.Parallel()

	topo, err := Load("testdata/topology.yaml")
	require.NoError(t, err)

	assert.Equal(t, "measurement-lab.org", topo.Domain)
	assert.Equal(t, []string{"vsys"}, topo.Policy.MultiValuedTags)
	require.Len(t, topo.Sites, 2)
	require.Len(t, topo.Slices, 3)

	nuq, ok := topo.Site("nuq0t")
	require.True(t, ok)
	assert.Equal(t, "mlabnuq0t", nuq.LoginBase)
	assert.Equal(t, "MLab - NUQ0T", nuq.DisplayName)
	assert.Equal(t, "MeasurementLabCentos", nuq.NodeGroup)
	assert.Len(t, nuq.Nodes(), 4)
	assert.Equal(t, "sstuart@google.com", nuq.Operators[0].Email)

	lga, ok := topo.Site("lga0t")
	require.True(t, ok)
	assert.Len(t, lga.Nodes(), DefaultHostCount)
	assert.Equal(t, DefaultNodeGroup, lga.NodeGroup)
	assert.False(t, lga.Network.HasIPv6())
	assert.Equal(t, "colo", lga.Location.Extra)

	ndt, ok := topo.Slice("iupui_ndt")
	require.True(t, ok)
	require.NotNil(t, ndt.Index)
	assert.Equal(t, 1, *ndt.Index)
	assert.True(t, ndt.UseInitscript)
	require.Len(t, ndt.Attrs, 4)
	assert.Equal(t, Attr{Scope: ScopeAll, Key: "vsys", Value: "slice_restart"}, ndt.Attrs[0])
	assert.Equal(t, Attr{Scope: ScopeNodeGroup, Target: "MeasurementLabCentos", Key: "disk_max", Value: "100000000"}, ndt.Attrs[2])
	assert.Equal(t, "capabilities", ndt.Attrs[3].Key)

	// Every slice is bound to every node, in site then host order.
	assert.Len(t, ndt.Bindings(), 7)
	assert.Equal(t, "mlab1.nuq0t.measurement-lab.org", ndt.Bindings()[0].Hostname)
	assert.Equal(t, "mlab3.lga0t.measurement-lab.org", ndt.Bindings()[6].Hostname)
}

func TestNodeNaming(t *testing.T) {
	t.Parallel()

	site, err := NewSite(SiteSpec{Name: "abc01", V4Prefix: "192.168.1.0"}, "")
	require.NoError(t, err)

	n := site.Nodes()[1]
	assert.Equal(t, 2, n.Index)
	assert.Equal(t, "mlab2.abc01.measurement-lab.org", n.Hostname)
	assert.Equal(t, "mlab2.abc01", n.ShortName())
	assert.Equal(t, "mlab2d.abc01.measurement-lab.org", n.PCU.Hostname)
	assert.Equal(t, "192.168.1.5", n.PCU.IP.String())
	assert.Equal(t, "admin", n.PCU.Username)
	assert.Equal(t, "changeme", n.PCU.Password)
	assert.Equal(t, "DRAC", n.PCU.Model)
	assert.Equal(t, "192.168.1.22", n.Interface().IP.String())
	assert.Same(t, site, n.Site())

	got, ok := site.Node("mlab2.abc01.measurement-lab.org")
	require.True(t, ok)
	assert.Same(t, n, got)
}

func TestInterfaceAttr(t *testing.T) {
	t.Parallel()

	site, err := NewSite(SiteSpec{
		Name:        "abc01",
		V4Prefix:    "192.168.1.0",
		V6Prefix:    "2604:ca00:f000::",
		ExcludeIPv6: []int{3},
	}, "")
	require.NoError(t, err)

	v4only, err := NewSlice(SliceSpec{Name: "mlab_v4", Index: intPtr(1)}, "")
	require.NoError(t, err)
	all, err := NewSlice(SliceSpec{Name: "mlab_all", Index: intPtr(1), IPv6: IPv6Spec{Mode: IPv6All}}, "")
	require.NoError(t, err)
	some, err := NewSlice(SliceSpec{Name: "mlab_some", Index: intPtr(0), IPv6: IPv6Spec{Mode: IPv6Hosts, Hosts: []string{"mlab1.abc01"}}}, "")
	require.NoError(t, err)
	none, err := NewSlice(SliceSpec{Name: "mlab_none"}, "")
	require.NoError(t, err)

	host1 := site.Nodes()[0]
	host2 := site.Nodes()[1]
	host3 := site.Nodes()[2]

	attr := host2.InterfaceAttr(v4only)
	require.NotNil(t, attr)
	assert.Equal(t, HostAttr("mlab2.abc01.measurement-lab.org", "ip_addresses", "192.168.1.24"), *attr)

	attr = host2.InterfaceAttr(all)
	require.NotNil(t, attr)
	assert.Equal(t, "192.168.1.24,2604:ca00:f000::24", attr.Value)

	// Host 3 is excluded from IPv6.
	attr = host3.InterfaceAttr(all)
	require.NotNil(t, attr)
	assert.Equal(t, "192.168.1.37", attr.Value)

	assert.Equal(t, "192.168.1.10,2604:ca00:f000::10", host1.InterfaceAttr(some).Value)
	assert.Equal(t, "192.168.1.23", host2.InterfaceAttr(some).Value)

	assert.Nil(t, host1.InterfaceAttr(none))
}

func TestRemapAppliesToBothFamilies(t *testing.T) {
	t.Parallel()

	site, err := NewSite(SiteSpec{
		Name:     "abc01",
		V4Prefix: "192.168.1.0",
		V6Prefix: "2604:ca00:f000::",
		Remap:    map[int]string{1: "11,10,9,8,7,6,5,4,3,2,1,0"},
	}, "")
	require.NoError(t, err)

	n := site.Nodes()[0]
	assert.Equal(t, "192.168.1.21", n.IPList()[0].String())
	assert.Equal(t, "2604:ca00:f000::21", n.IPv6List()[0])
	assert.Equal(t, "192.168.1.10", n.IPList()[11].String())
	assert.Equal(t, "2604:ca00:f000::10", n.IPv6List()[11])

	// Host 2 keeps natural order.
	assert.Equal(t, "192.168.1.23", site.Nodes()[1].IPList()[0].String())
}

func TestV6InterfaceTags(t *testing.T) {
	t.Parallel()

	site, err := NewSite(SiteSpec{
		Name:      "abc01",
		V4Prefix:  "192.168.1.64",
		V6Prefix:  "2604:ca00:f000::",
		V6Gateway: "2604:ca00:f000::fe",
		Count:     intPtr(1),
	}, "")
	require.NoError(t, err)

	tags := site.Nodes()[0].V6InterfaceTags()
	require.Len(t, tags, 3)
	assert.Equal(t, Tag{Name: "ipv6_defaultgw", Value: "2604:ca00:f000::fe"}, tags[0])
	assert.Equal(t, Tag{Name: "ipv6addr", Value: "2604:ca00:f000::73"}, tags[1])
	assert.Equal(t, "ipv6addr_secondaries", tags[2].Name)
	assert.Contains(t, tags[2].Value, "2604:ca00:f000::74 2604:ca00:f000::75")

	noV6, err := NewSite(SiteSpec{Name: "abc02", V4Prefix: "192.168.2.0"}, "")
	require.NoError(t, err)
	assert.Nil(t, noV6.Nodes()[0].V6InterfaceTags())
	assert.Nil(t, noV6.Nodes()[0].IPv6List())
}

func TestNewSite_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		spec   SiteSpec
		fields []string
	}{
		{
			name:   "missing everything",
			spec:   SiteSpec{},
			fields: []string{"name", "v4_prefix"},
		},
		{
			name:   "misaligned v4",
			spec:   SiteSpec{Name: "abc01", V4Prefix: "192.168.1.10"},
			fields: []string{"v4_prefix"},
		},
		{
			name:   "misaligned v6",
			spec:   SiteSpec{Name: "abc01", V4Prefix: "192.168.1.0", V6Prefix: "2604:ca00:f000:0:0:0:1:"},
			fields: []string{"v6_prefix"},
		},
		{
			name:   "too many hosts",
			spec:   SiteSpec{Name: "abc01", V4Prefix: "192.168.1.0", Count: intPtr(5)},
			fields: []string{"count"},
		},
		{
			name:   "bad exclude and remap",
			spec:   SiteSpec{Name: "abc01", V4Prefix: "192.168.1.0", ExcludeIPv6: []int{0}, Remap: map[int]string{2: "0,0,1,2,3,4,5,6,7,8,9,10"}},
			fields: []string{"exclude_ipv6", "remap"},
		},
		{
			name:   "bad location",
			spec:   SiteSpec{Name: "abc01", V4Prefix: "192.168.1.0", Location: &Location{Latitude: 91, Longitude: -181}},
			fields: []string{"location.city", "location.country", "location.latitude", "location.longitude"},
		},
		{
			name:   "gateway without prefix",
			spec:   SiteSpec{Name: "abc01", V4Prefix: "192.168.1.0", V6Gateway: "2604:ca00:f000::1"},
			fields: []string{"v6_gateway"},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewSite(tt.spec, "")
			require.Error(t, err)

			var cerr *ConfigurationError
			require.True(t, errors.As(err, &cerr))
			for _, f := range tt.fields {
				assert.Truef(t, cerr.Has(f), "expected %s to be flagged in %v", f, cerr)
			}
		})
	}
}

func TestNewSite_EmptySite(t *testing.T) {
	t.Parallel()

	site, err := NewSite(SiteSpec{Name: "abc01", Count: intPtr(0)}, "")
	require.NoError(t, err)
	assert.Empty(t, site.Nodes())
	assert.Nil(t, site.Network)
}

func TestNewSlice_Errors(t *testing.T) {
	t.Parallel()

	_, err := NewSlice(SliceSpec{
		Name:  "Bad Name",
		Index: intPtr(12),
		Users: []string{"nobody"},
		IPv6:  IPv6Spec{Mode: IPv6Hosts, Hosts: []string{"mlab1.abc01.measurement-lab.org"}},
		Attrs: []AttrSpec{{Host: "mlab1.abc01.measurement-lab.org", NodeGroup: "MeasurementLab", Pairs: []Tag{{Name: "k", Value: "v"}}}},
	}, "")
	require.Error(t, err)

	var cerr *ConfigurationError
	require.True(t, errors.As(err, &cerr))
	for _, f := range []string{"name", "index", "users[0]", "ipv6", "attrs[0]"} {
		assert.Truef(t, cerr.Has(f), "expected %s to be flagged", f)
	}
}

func TestNewAttr(t *testing.T) {
	t.Parallel()

	a, err := NewAttr("", "enabled", "0")
	require.NoError(t, err)
	assert.Equal(t, ScopeAll, a.Scope)

	a, err = NewAttr("mlab1.abc01.measurement-lab.org", "enabled", "0")
	require.NoError(t, err)
	assert.Equal(t, ScopeHost, a.Scope)
	assert.Equal(t, "mlab1.abc01.measurement-lab.org", a.Target)

	a, err = NewAttr("MeasurementLabCentos", "enabled", "0")
	require.NoError(t, err)
	assert.Equal(t, ScopeNodeGroup, a.Scope)

	_, err = NewAttr("", "", "0")
	assert.Error(t, err)
}

func TestBuild_Duplicates(t *testing.T) {
	t.Parallel()

	a, err := NewSite(SiteSpec{Name: "abc01", V4Prefix: "192.168.1.0"}, "")
	require.NoError(t, err)
	b, err := NewSite(SiteSpec{Name: "abc02", V4Prefix: "192.168.1.0"}, "")
	require.NoError(t, err)
	s, err := NewSlice(SliceSpec{Name: "mlab_one"}, "")
	require.NoError(t, err)

	_, err = Build([]*Site{a, a}, nil)
	assert.ErrorContains(t, err, "declared twice")

	_, err = Build([]*Site{a, b}, nil)
	assert.ErrorContains(t, err, "overlaps")

	_, err = Build(nil, []*Slice{s, s})
	assert.ErrorContains(t, err, "declared twice")
}

func TestSelect(t *testing.T) {
	t.Parallel()

	topo, err := Load("testdata/topology.yaml")
	require.NoError(t, err)

	sites, err := topo.SelectSites("all")
	require.NoError(t, err)
	assert.Len(t, sites, 2)

	sites, err = topo.SelectSites("lga0t")
	require.NoError(t, err)
	require.Len(t, sites, 1)
	assert.Equal(t, "lga0t", sites[0].Name)

	_, err = topo.SelectSites("xyz01")
	assert.Error(t, err)

	slices, err := topo.SelectSlices("")
	require.NoError(t, err)
	assert.Len(t, slices, 3)

	_, err = topo.SelectSlices("nope_nope")
	assert.Error(t, err)

	n, ok := topo.Node("mlab4.nuq0t.measurement-lab.org")
	require.True(t, ok)
	assert.True(t, n.ExcludeIPv6)
}

func TestHasTarget(t *testing.T) {
	t.Parallel()

	topo, err := Load("testdata/topology.yaml")
	require.NoError(t, err)

	tests := []struct {
		target string
		want   bool
	}{
		{"nuq0t", true},
		{"mlab2.lga0t", true},
		{"mlab2.lga0t.measurement-lab.org", true},
		{"mlab4.lga0t", false},
		{"nuq0", false},
		{"measurement-lab.org", false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.target, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, topo.HasTarget(tt.target))
		})
	}
}

func TestParse_Errors(t *testing.T) {
	t.Parallel()

	_, err := Parse([]byte("sites:\n  - name: abc01\n    bogus: 1\n"))
	assert.ErrorContains(t, err, "bogus")

	_, err = Parse([]byte("slices:\n  - name: mlab_x\n    ipv6: some\n"))
	assert.Error(t, err)

	// Both bad records are reported.
	_, err = Parse([]byte("sites:\n  - name: abc01\n    v4_prefix: 1.2.3.4\nslices:\n  - name: x\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "site abc01")
	assert.Contains(t, err.Error(), "slice x")
}
