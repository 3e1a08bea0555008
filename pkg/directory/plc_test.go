// Copyright 2025 PLSync Authors
// SPDX-License-Identifier: Apache-2.0

package directory

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/rpc"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/kolo/xmlrpc"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sitesResponse = `<?xml version="1.0"?>
<methodResponse><params><param><value><array><data>
<value><struct>
<member><name>site_id</name><value><int>7</int></value></member>
<member><name>login_base</name><value><string>mlabnuq0t</string></value></member>
<member><name>name</name><value><string>MLab - NUQ0T</string></value></member>
<member><name>latitude</name><value><double>37.5</double></value></member>
<member><name>node_ids</name><value><array><data><value><int>11</int></value><value><int>12</int></value></data></array></value></member>
</struct></value>
</data></array></value></param></params></methodResponse>`

const faultResponse = `<?xml version="1.0"?>
<methodResponse><fault><value><struct>
<member><name>faultCode</name><value><int>103</int></value></member>
<member><name>faultString</name><value><string>Not allowed to add sites</string></value></member>
</struct></value></fault></methodResponse>`

const intResponse = `<?xml version="1.0"?>
<methodResponse><params><param><value><int>42</int></value></param></params></methodResponse>`

var methodName = regexp.MustCompile(`<methodName>([A-Za-z]+)</methodName>`)

type fakePLC struct {
	mu     sync.Mutex
	bodies map[string]string
}

func newFakePLC(t *testing.T) (*fakePLC, *PLCClient) {
	t.Helper()
	f := &fakePLC{bodies: map[string]string{}}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)

	c, err := NewPLCClient(PLCConfig{URL: srv.URL, Transport: srv.Client().Transport})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return f, c.WithSession("token-abc")
}

func (f *fakePLC) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	m := methodName.FindStringSubmatch(string(body))
	if m == nil {
		http.Error(w, "no method", http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	f.bodies[m[1]] = string(body)
	f.mu.Unlock()

	w.Header().Set("Content-Type", "text/xml")
	switch m[1] {
	case "GetSites":
		_, _ = io.WriteString(w, sitesResponse)
	case "AddSite":
		_, _ = io.WriteString(w, faultResponse)
	default:
		_, _ = io.WriteString(w, intResponse)
	}
}

func (f *fakePLC) body(method string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bodies[method]
}

func TestPLCClientGetSites(t *testing.T) {
	t.Parallel()

	f, c := newFakePLC(t)
	sites, err := c.GetSites(context.Background(), Filter{"login_base": "mlabnuq0t"})
	require.NoError(t, err)
	require.Len(t, sites, 1)

	assert.Equal(t, Site{
		SiteID:    7,
		LoginBase: "mlabnuq0t",
		Name:      "MLab - NUQ0T",
		Latitude:  37.5,
		NodeIDs:   []int{11, 12},
	}, sites[0])

	req := f.body("GetSites")
	assert.Contains(t, req, "<name>AuthMethod</name>")
	assert.Contains(t, req, "token-abc")
	assert.Contains(t, req, "mlabnuq0t")
}

func TestPLCClientFault(t *testing.T) {
	t.Parallel()

	_, c := newFakePLC(t)
	before := testutil.ToFloat64(rpcCallsTotal.WithLabelValues("AddSite", "error"))

	_, err := c.AddSite(context.Background(), Site{LoginBase: "mlabnuq0t", Name: "MLab - NUQ0T"})
	require.Error(t, err)
	assert.True(t, IsAuthorization(err))

	var fault *Fault
	require.ErrorAs(t, err, &fault)
	assert.Equal(t, "AddSite", fault.Method)
	assert.Equal(t, AuthFailureCode, fault.Code)
	assert.Equal(t, "Not allowed to add sites", fault.Msg)
	assert.Equal(t, before+1, testutil.ToFloat64(rpcCallsTotal.WithLabelValues("AddSite", "error")))

	// The client keeps working after a fault.
	id, err := c.AddNodeTag(context.Background(), 11, "deployment", "MeasurementLab")
	require.NoError(t, err)
	assert.Equal(t, 42, id)
}

func TestAsFault(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want *Fault
	}{
		{
			name: "flattened by net/rpc",
			err:  rpc.ServerError("Fault(103): Not allowed to add sites"),
			want: &Fault{Method: "AddSite", Code: 103, Msg: "Not allowed to add sites"},
		},
		{
			name: "message containing a colon",
			err:  rpc.ServerError("Fault(102): Invalid argument: hostname"),
			want: &Fault{Method: "AddSite", Code: 102, Msg: "Invalid argument: hostname"},
		},
		{
			name: "xmlrpc fault value",
			err:  xmlrpc.FaultError{Code: 103, String: "Failed to authenticate call"},
			want: &Fault{Method: "AddSite", Code: 103, Msg: "Failed to authenticate call"},
		},
		{
			name: "server error without a fault code",
			err:  rpc.ServerError("connection reset"),
		},
		{
			name: "transport error",
			err:  errors.New("dial tcp: i/o timeout"),
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, asFault("AddSite", tt.err))
		})
	}
}

func TestPLCClientAddSliceTagScope(t *testing.T) {
	t.Parallel()

	f, c := newFakePLC(t)
	_, err := c.AddSliceTag(context.Background(), SliceTag{SliceID: 3, TagName: "disk_max", Value: "10", NodeGroupID: 5})
	require.NoError(t, err)

	// slice, tagname, value, node, nodegroup follow the auth struct.
	req := f.body("AddSliceTag")
	assert.Equal(t, 1, strings.Count(req, "<name>AuthMethod</name>"))
	assert.Contains(t, req, "<string>disk_max</string>")
	assert.Less(t, strings.Index(req, "disk_max"), strings.LastIndex(req, "<int>5</int>"))
}

func TestPLCClientCanceledContext(t *testing.T) {
	t.Parallel()

	_, c := newFakePLC(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.GetNodes(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIsMutating(t *testing.T) {
	t.Parallel()

	tests := []struct {
		method string
		want   bool
	}{
		{"GetSites", false},
		{"AuthCheck", false},
		{"AddSite", true},
		{"UpdateSliceTag", true},
		{"AddSliceToNodesWhitelist", true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.method, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsMutating(tt.method))
		})
	}
}
