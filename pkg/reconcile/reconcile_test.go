// Copyright 2025 PLSync Authors
// SPDX-License-Identifier: Apache-2.0

package reconcile

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeeDigitalWorks/plsync/pkg/directory"
	"github.com/LeeDigitalWorks/plsync/pkg/topology"
)

const declaration = `
sites:
  - name: abc01
    v4_prefix: 192.168.1.0
    v6_prefix: "2604:ca00:f000::"
    count: 2
    operators:
      - first_name: Alice
        last_name: Operator
        email: ops@example.org
    location:
      city: Springfield_IL
      country: US
      latitude: 39.8
      longitude: -89.6

slices:
  - name: iupui_ndt
    index: 1
    ipv6: all
    users: [ops@example.org]
    attrs:
      - vsys: web100_proc_write
      - vsys: slice_restart
      - nodegroup: MeasurementLab
        disk_max: "100000000"

  - name: mlab_utility
`

var fixedNow = time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)

func loadTopology(t *testing.T) *topology.Topology {
	t.Helper()
	topo, err := topology.Parse([]byte(declaration))
	require.NoError(t, err)
	return topo
}

// newDirectory returns a directory holding the node group and tag types an
// operator defines once by hand.
func newDirectory() *directory.Memory {
	m := directory.NewMemory()
	m.AddNodeGroup("MeasurementLab", "deployment", "MeasurementLab")
	for _, name := range []string{"alias", "ifname", "ipv6_defaultgw", "ipv6addr", "ipv6addr_secondaries"} {
		m.AddTagType(name, "interface/config")
	}
	return m
}

func fullConfig() Config {
	steps := AllSteps()
	steps.CreateUsers = true
	steps.CreateSlice = true
	return Config{Steps: steps, Now: func() time.Time { return fixedNow }}
}

func run(t *testing.T, client directory.Client, topo *topology.Topology, cfg Config) (*Reconciler, error) {
	t.Helper()
	ctx := context.Background()
	r := New(client, cfg)
	if err := r.SyncSites(ctx, topo.Sites); err != nil {
		return r, err
	}
	return r, r.SyncSlices(ctx, topo.Slices)
}

// converge runs a full sync and clears the call log.
func converge(t *testing.T, m *directory.Memory, topo *topology.Topology) {
	t.Helper()
	_, err := run(t, m, topo, fullConfig())
	require.NoError(t, err)
	m.ResetCalls()
}

func sliceTags(t *testing.T, m *directory.Memory, tagName string) []directory.SliceTag {
	t.Helper()
	tags, err := m.GetSliceTags(context.Background(), directory.Filter{"tagname": tagName})
	require.NoError(t, err)
	return tags
}

func TestSyncConverges(t *testing.T) {
	t.Parallel()

	topo := loadTopology(t)
	m := newDirectory()

	r, err := run(t, m, topo, fullConfig())
	require.NoError(t, err)

	report := r.Report()
	assert.Equal(t, 1, report.Count(KindSite, ActionAdd))
	assert.Equal(t, 2, report.Count(KindNode, ActionAdd))
	assert.Equal(t, 2, report.Count(KindPCU, ActionAdd))
	assert.Equal(t, 2*13, report.Count(KindInterface, ActionAdd))
	assert.Equal(t, 2, report.Count(KindSlice, ActionAdd))
	assert.Equal(t, 2, report.Count(KindSliceExpiry, ActionUpdate))
	assert.Equal(t, 1, report.Count(KindSliceUser, ActionAdd))
	assert.Equal(t, 4, report.Count(KindWhitelist, ActionAdd))

	ctx := context.Background()
	nodes, err := m.GetNodes(ctx, directory.Filter{"hostname": "mlab1.abc01.measurement-lab.org"})
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Len(t, nodes[0].NodeGroupIDs, 1, "deployment tag places the node in its group")
	assert.Len(t, nodes[0].InterfaceIDs, 13)
	assert.Len(t, nodes[0].PCUIDs, 1)

	sites, err := m.GetSites(ctx, directory.Filter{"login_base": "mlababc01"})
	require.NoError(t, err)
	require.Len(t, sites, 1)
	assert.Equal(t, "MLab - ABC01", sites[0].Name)
	assert.InDelta(t, 39.8, sites[0].Latitude, 1e-9)
	assert.Len(t, sites[0].PersonIDs, 1)

	got, err := m.GetSlices(ctx, directory.Filter{"name": "iupui_ndt"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, fixedNow.Add(ExpiryHorizon).Unix(), got[0].Expires)

	addrs := sliceTags(t, m, topology.IPAddressesKey)
	require.Len(t, addrs, 2)
	for _, tag := range addrs {
		assert.Equal(t, "iupui_ndt", tag.Name)
		assert.NotZero(t, tag.NodeID)
		assert.Contains(t, tag.Value, ",2604:ca00:f000:", "IPv6 slot address follows the IPv4 one")
	}
}

func TestSyncIsIdempotent(t *testing.T) {
	t.Parallel()

	topo := loadTopology(t)
	m := newDirectory()
	converge(t, m, topo)

	r, err := run(t, m, topo, fullConfig())
	require.NoError(t, err)
	assert.Empty(t, m.MutatingCalls())
	assert.Zero(t, r.Report().Changes(), r.Report().String())
	assert.Positive(t, r.Report().Total(ActionConfirm))
}

func TestSliceWithoutIndexGetsNoAddresses(t *testing.T) {
	t.Parallel()

	topo := loadTopology(t)
	m := newDirectory()
	_, err := run(t, m, topo, fullConfig())
	require.NoError(t, err)

	for _, c := range m.MutatingCalls() {
		if c.Method != "AddSliceTag" {
			continue
		}
		tag := c.Args[0].(directory.SliceTag)
		if tag.TagName == topology.IPAddressesKey {
			assert.NotEqual(t, "mlab_utility", sliceName(t, m, tag.SliceID))
		}
	}

	nodes, err := m.GetNodes(context.Background(), directory.Filter{"hostname": "mlab2.abc01.measurement-lab.org"})
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Len(t, nodes[0].SliceIDsWhitelist, 2, "slices without an index are still whitelisted")
}

func sliceName(t *testing.T, m *directory.Memory, id int) string {
	t.Helper()
	recs, err := m.GetSlices(context.Background(), directory.Filter{"slice_id": id})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	return recs[0].Name
}

func TestDryRunIssuesSameLookups(t *testing.T) {
	t.Parallel()

	topo := loadTopology(t)
	seed := func() *directory.Memory {
		ctx := context.Background()
		m := newDirectory()
		_, err := m.AddSite(ctx, directory.Site{LoginBase: "mlababc01", Name: "M-Lab ABC01"})
		require.NoError(t, err)
		for _, n := range topo.Sites[0].Nodes() {
			_, err := m.AddNode(ctx, "mlababc01", directory.Node{Hostname: n.Hostname})
			require.NoError(t, err)
		}
		id, err := m.AddPerson(ctx, directory.Person{Email: "ops@example.org"})
		require.NoError(t, err)
		require.NoError(t, m.UpdatePerson(ctx, id, directory.Fields{"enabled": true}))
		for _, s := range topo.Slices {
			_, err := m.AddSlice(ctx, directory.Slice{Name: s.Name})
			require.NoError(t, err)
		}
		m.ResetCalls()
		return m
	}

	live, dry := seed(), seed()
	_, err := run(t, live, topo, fullConfig())
	require.NoError(t, err)

	cfg := fullConfig()
	cfg.DryRun = true
	r, err := run(t, dry, topo, cfg)
	require.NoError(t, err)

	lookups := func(m *directory.Memory) []string {
		return slices.DeleteFunc(m.Methods(), directory.IsMutating)
	}
	assert.Equal(t, lookups(live), lookups(dry))
	assert.Empty(t, dry.MutatingCalls())
	assert.NotEmpty(t, live.MutatingCalls())
	assert.True(t, r.Report().DryRun)
	assert.Positive(t, r.Report().Changes(), "dry runs still report what they would change")
}

func TestAmbiguityAborts(t *testing.T) {
	t.Parallel()

	t.Run("duplicate site", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		topo := loadTopology(t)
		m := newDirectory()
		for i := 0; i < 2; i++ {
			_, err := m.AddSite(ctx, directory.Site{LoginBase: "mlababc01"})
			require.NoError(t, err)
		}
		m.ResetCalls()

		_, err := run(t, m, topo, fullConfig())
		var ambErr *AmbiguityError
		require.ErrorAs(t, err, &ambErr)
		assert.Equal(t, KindSite, ambErr.Kind)
		assert.Equal(t, "mlababc01", ambErr.Key)
		assert.Len(t, ambErr.Records, 2)
		assert.Equal(t, []string{"GetSites"}, m.Methods())
	})

	t.Run("duplicate node", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		topo := loadTopology(t)
		m := newDirectory()
		converge(t, m, topo)
		_, err := m.AddNode(ctx, "mlababc01", directory.Node{Hostname: "mlab1.abc01.measurement-lab.org"})
		require.NoError(t, err)
		m.ResetCalls()

		_, err = run(t, m, topo, fullConfig())
		var ambErr *AmbiguityError
		require.ErrorAs(t, err, &ambErr)
		assert.Equal(t, KindNode, ambErr.Kind)
		assert.Empty(t, m.MutatingCalls())
	})

	t.Run("duplicate single-valued slice tag", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		topo := loadTopology(t)
		m := newDirectory()
		converge(t, m, topo)
		existing := sliceTags(t, m, "disk_max")
		require.Len(t, existing, 1)
		dup := existing[0]
		dup.SliceTagID = 0
		dup.Value = "1"
		_, err := m.AddSliceTag(ctx, dup)
		require.NoError(t, err)
		m.ResetCalls()

		_, err = run(t, m, topo, fullConfig())
		var ambErr *AmbiguityError
		require.ErrorAs(t, err, &ambErr)
		assert.Equal(t, KindSliceTag, ambErr.Kind)
		methods := m.Methods()
		assert.Equal(t, "GetSliceTags", methods[len(methods)-1], "nothing runs after the ambiguous lookup")
		assert.Empty(t, m.MutatingCalls())
	})
}

func TestMultiValuedTagsAreAddOnly(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	topo := loadTopology(t)
	m := newDirectory()
	converge(t, m, topo)

	vsys := sliceTags(t, m, "vsys")
	require.Len(t, vsys, 2)
	_, err := m.AddSliceTag(ctx, directory.SliceTag{SliceID: vsys[0].SliceID, TagName: "vsys", Value: "manually_added"})
	require.NoError(t, err)
	diskMax := sliceTags(t, m, "disk_max")
	require.Len(t, diskMax, 1)
	require.NoError(t, m.UpdateSliceTag(ctx, diskMax[0].SliceTagID, "1"))
	m.ResetCalls()

	r, err := run(t, m, topo, fullConfig())
	require.NoError(t, err)

	calls := m.MutatingCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "UpdateSliceTag", calls[0].Method)
	assert.Equal(t, []any{diskMax[0].SliceTagID, "100000000"}, calls[0].Args)
	assert.Equal(t, 1, r.Report().Count(KindSliceTag, ActionUpdate))

	values := []string{}
	for _, tag := range sliceTags(t, m, "vsys") {
		values = append(values, tag.Value)
	}
	assert.ElementsMatch(t, []string{"web100_proc_write", "slice_restart", "manually_added"}, values)
}

func TestSyncSliceExpiration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		expires time.Time
		extend  bool
	}{
		{"never set", time.Unix(0, 0), true},
		{"already expired", fixedNow.Add(-time.Hour), true},
		{"expires within threshold", fixedNow.Add(10 * 24 * time.Hour), true},
		{"expires at threshold", fixedNow.Add(ExpiryThreshold), false},
		{"expires later", fixedNow.Add(200 * 24 * time.Hour), false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			m := directory.NewMemory()
			id, err := m.AddSlice(ctx, directory.Slice{Name: "iupui_ndt"})
			require.NoError(t, err)
			require.NoError(t, m.UpdateSlice(ctx, id, directory.Fields{"expires": tt.expires.Unix()}))
			recs, err := m.GetSlices(ctx, directory.Filter{"slice_id": id})
			require.NoError(t, err)
			require.Len(t, recs, 1)
			m.ResetCalls()

			r := New(m, Config{Now: func() time.Time { return fixedNow }})
			require.NoError(t, r.SyncSliceExpiration(ctx, recs[0]))

			recs, err = m.GetSlices(ctx, directory.Filter{"slice_id": id})
			require.NoError(t, err)
			if tt.extend {
				assert.Equal(t, fixedNow.Add(ExpiryHorizon).Unix(), recs[0].Expires)
				assert.Equal(t, 1, r.Report().Count(KindSliceExpiry, ActionUpdate))
			} else {
				assert.Equal(t, tt.expires.Unix(), recs[0].Expires)
				assert.Equal(t, 1, r.Report().Count(KindSliceExpiry, ActionConfirm))
			}
		})
	}
}

func TestAuthorizationFaultAborts(t *testing.T) {
	t.Parallel()

	topo := loadTopology(t)
	m := newDirectory()
	m.FailOn("AddSite", &directory.Fault{Method: "AddSite", Code: directory.AuthFailureCode, Msg: "Not allowed to add sites"})

	_, err := run(t, m, topo, fullConfig())
	require.Error(t, err)
	var authErr *AuthorizationError
	require.ErrorAs(t, err, &authErr)
	assert.ErrorIs(t, err, directory.ErrAuthorization)
	assert.Contains(t, err.Error(), "refresh the session")
	assert.Equal(t, []string{"GetSites", "AddSite"}, m.Methods())
}

const (
	emptyArrayResponse = `<?xml version="1.0"?>
<methodResponse><params><param><value><array><data></data></array></value></param></params></methodResponse>`

	roleFaultResponse = `<?xml version="1.0"?>
<methodResponse><fault><value><struct>
<member><name>faultCode</name><value><int>103</int></value></member>
<member><name>faultString</name><value><string>Not allowed to add sites</string></value></member>
</struct></value></fault></methodResponse>`
)

// TestAuthorizationFaultFromPLCAPI drives the reconciler through the XML-RPC
// client against a server that refuses every write with fault 103.
func TestAuthorizationFaultFromPLCAPI(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var methods []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_, rest, _ := strings.Cut(string(body), "<methodName>")
		method, _, _ := strings.Cut(rest, "</methodName>")
		mu.Lock()
		methods = append(methods, method)
		mu.Unlock()

		w.Header().Set("Content-Type", "text/xml")
		if strings.HasPrefix(method, "Get") {
			_, _ = io.WriteString(w, emptyArrayResponse)
			return
		}
		_, _ = io.WriteString(w, roleFaultResponse)
	}))
	t.Cleanup(srv.Close)

	plc, err := directory.NewPLCClient(directory.PLCConfig{URL: srv.URL, Transport: srv.Client().Transport})
	require.NoError(t, err)
	t.Cleanup(func() { _ = plc.Close() })

	_, err = run(t, plc.WithSession("token-abc"), loadTopology(t), fullConfig())
	require.Error(t, err)
	var authErr *AuthorizationError
	require.ErrorAs(t, err, &authErr)
	assert.ErrorIs(t, err, directory.ErrAuthorization)
	assert.Contains(t, err.Error(), "refresh the session")

	var fault *directory.Fault
	require.ErrorAs(t, err, &fault)
	assert.Equal(t, "AddSite", fault.Method)
	assert.Equal(t, "Not allowed to add sites", fault.Msg)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"GetSites", "AddSite"}, methods)
}

func TestOtherFaultsAreNotAuthorization(t *testing.T) {
	t.Parallel()

	topo := loadTopology(t)
	m := newDirectory()
	m.FailOn("AddNode", &directory.Fault{Method: "AddNode", Code: 102, Msg: "Invalid argument"})

	_, err := run(t, m, topo, fullConfig())
	require.Error(t, err)
	var authErr *AuthorizationError
	assert.False(t, errors.As(err, &authErr))
	var fault *directory.Fault
	require.ErrorAs(t, err, &fault)
	assert.Equal(t, 102, fault.Code)
}

func TestMissingRecords(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		steps Steps
		sync  func(r *Reconciler, topo *topology.Topology) error
		kind  string
	}{
		{
			name:  "node without addnodes",
			steps: Steps{},
			sync: func(r *Reconciler, topo *topology.Topology) error {
				return r.SyncSites(context.Background(), topo.Sites)
			},
			kind: KindNode,
		},
		{
			name:  "slice without createslice",
			steps: Steps{},
			sync: func(r *Reconciler, topo *topology.Topology) error {
				return r.SyncSlices(context.Background(), topo.Slices)
			},
			kind: KindSlice,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			topo := loadTopology(t)
			m := newDirectory()
			r := New(m, Config{Steps: tt.steps, Now: func() time.Time { return fixedNow }})
			err := tt.sync(r, topo)
			var missErr *MissingError
			require.ErrorAs(t, err, &missErr)
			assert.Equal(t, tt.kind, missErr.Kind)
			assert.NotEmpty(t, missErr.Hint)
		})
	}
}

func TestMissingNodeGroupIsFatal(t *testing.T) {
	t.Parallel()

	topo := loadTopology(t)
	m := directory.NewMemory()
	_, err := run(t, m, topo, fullConfig())
	var missErr *MissingError
	require.ErrorAs(t, err, &missErr)
	assert.Equal(t, KindNodeGroup, missErr.Kind)
	assert.Equal(t, "MeasurementLab", missErr.Key)
}

func TestTargetSelectsHosts(t *testing.T) {
	t.Parallel()

	r := New(directory.NewMemory(), Config{})
	tests := []struct {
		target   string
		hostname string
		want     bool
	}{
		{"", "mlab1.abc01.measurement-lab.org", true},
		{"all", "mlab1.abc01.measurement-lab.org", true},
		{"mlab1.abc01.measurement-lab.org", "mlab1.abc01.measurement-lab.org", true},
		{"mlab1.abc01.measurement-lab.org", "mlab2.abc01.measurement-lab.org", false},
		{"mlab1.abc01", "mlab1.abc01.measurement-lab.org", true},
		{"mlab1.abc01", "mlab1.abc011.measurement-lab.org", false},
		{"abc01", "mlab3.abc01.measurement-lab.org", true},
		{"abc0", "mlab3.abc01.measurement-lab.org", false},
		{"xyz01", "mlab3.abc01.measurement-lab.org", false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.target+"/"+tt.hostname, func(t *testing.T) {
			t.Parallel()
			r := *r
			r.cfg.Target = tt.target
			assert.Equal(t, tt.want, r.hostSelected(tt.hostname))
		})
	}
}

func TestTargetNarrowsSync(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	topo := loadTopology(t)
	m := newDirectory()
	cfg := fullConfig()
	cfg.Target = "mlab2.abc01"

	_, err := run(t, m, topo, cfg)
	require.NoError(t, err)

	nodes, err := m.GetNodes(ctx, nil)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, "mlab2.abc01.measurement-lab.org", nodes[0].Hostname)
	assert.Len(t, sliceTags(t, m, topology.IPAddressesKey), 1)
}

func TestReportMetrics(t *testing.T) {
	topo := loadTopology(t)
	m := newDirectory()
	counter := reconcileActionsTotal.WithLabelValues(KindNode, string(ActionAdd))
	before := testutil.ToFloat64(counter)

	r, err := run(t, m, topo, fullConfig())
	require.NoError(t, err)
	assert.InDelta(t, 2, testutil.ToFloat64(counter)-before, 0)
	assert.Equal(t, 2, r.Report().Count(KindNode, ActionAdd))
	assert.Contains(t, r.Report().Kinds(), KindInterfaceTag)
	assert.Contains(t, r.Report().String(), "node(add=2 update=0 confirm=0 skip=0)")
}
