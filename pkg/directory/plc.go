// Copyright 2025 PLSync Authors
// SPDX-License-Identifier: Apache-2.0

package directory

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/rpc"
	"net/url"
	"strings"
	"time"

	"github.com/kolo/xmlrpc"
	"golang.org/x/time/rate"

	"github.com/LeeDigitalWorks/plsync/pkg/logger"
)

// DefaultURL is the PLCAPI endpoint used when none is configured.
const DefaultURL = "https://boot-api.planet-lab.org/PLCAPI/"

// PLCConfig configures a PLCClient.
type PLCConfig struct {
	URL string
	// QPS paces calls client side. Zero disables pacing.
	QPS float64
	// Timeout bounds each round trip. Zero selects 5 minutes.
	Timeout time.Duration
	// Transport overrides the HTTP transport, mainly for tests.
	Transport http.RoundTripper
}

// PLCClient talks to PLCAPI over XML-RPC. Calls are issued one at a time
// in the caller's goroutine. Each call opens its own xmlrpc.Client on the
// shared transport, since a fault shuts the underlying net/rpc client down.
type PLCClient struct {
	url       string
	transport http.RoundTripper
	limiter   *rate.Limiter
	auth      map[string]any
}

var _ Client = (*PLCClient)(nil)

// NewPLCClient returns an unauthenticated client. Use WithSession before
// issuing record calls.
func NewPLCClient(cfg PLCConfig) (*PLCClient, error) {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Minute
	}
	transport := cfg.Transport
	if transport == nil {
		transport = &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			ResponseHeaderTimeout: cfg.Timeout,
		}
	}
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, fmt.Errorf("invalid directory url %q: %w", cfg.URL, err)
	}
	c := &PLCClient{url: cfg.URL, transport: transport}
	if cfg.QPS > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.QPS), 1)
	}
	return c, nil
}

// URL returns the endpoint the client talks to.
func (c *PLCClient) URL() string {
	return c.url
}

// WithSession returns a copy of c that authenticates with a session token.
func (c *PLCClient) WithSession(token string) *PLCClient {
	cp := *c
	cp.auth = map[string]any{"AuthMethod": "session", "session": token}
	return &cp
}

// Close releases idle connections.
func (c *PLCClient) Close() error {
	if t, ok := c.transport.(interface{ CloseIdleConnections() }); ok {
		t.CloseIdleConnections()
	}
	return nil
}

// AuthCheck reports whether token is a valid session.
func (c *PLCClient) AuthCheck(ctx context.Context, token string) error {
	var ok any
	return c.WithSession(token).call(ctx, "AuthCheck", &ok)
}

// NewSession authenticates with a password and returns a session token
// valid for ttl.
func (c *PLCClient) NewSession(ctx context.Context, username, password string, ttl time.Duration) (string, error) {
	cp := *c
	cp.auth = map[string]any{"AuthMethod": "password", "Username": username, "AuthString": password}
	var token string
	if err := cp.call(ctx, "GetSession", &token, int(ttl.Seconds())); err != nil {
		return "", err
	}
	return token, nil
}

func (c *PLCClient) call(ctx context.Context, method string, reply any, args ...any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	params := make([]any, 0, len(args)+1)
	params = append(params, c.auth)
	params = append(params, args...)

	xc, err := xmlrpc.NewClient(c.url, c.transport)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer xc.Close()

	start := time.Now()
	err = xc.Call(method, params, reply)
	elapsed := time.Since(start)
	rpcDuration.WithLabelValues(method).Observe(elapsed.Seconds())

	logger.Trace().
		Str("method", method).
		Dur("elapsed", elapsed).
		Err(err).
		Msg("directory call")

	if err != nil {
		rpcCallsTotal.WithLabelValues(method, "error").Inc()
		if fault := asFault(method, err); fault != nil {
			return fault
		}
		return fmt.Errorf("%s: %w", method, err)
	}
	rpcCallsTotal.WithLabelValues(method, "ok").Inc()
	return nil
}

// asFault recovers the remote fault from a call error. net/rpc flattens
// faults into an rpc.ServerError carrying "Fault(<code>): <message>".
func asFault(method string, err error) *Fault {
	var fault xmlrpc.FaultError
	if errors.As(err, &fault) {
		return &Fault{Method: method, Code: fault.Code, Msg: fault.String}
	}
	var se rpc.ServerError
	if !errors.As(err, &se) {
		return nil
	}
	var code int
	if _, scanErr := fmt.Sscanf(string(se), "Fault(%d):", &code); scanErr != nil {
		return nil
	}
	_, msg, _ := strings.Cut(string(se), ": ")
	return &Fault{Method: method, Code: code, Msg: msg}
}

// get issues a Get call and decodes the returned structs into out.
func (c *PLCClient) get(ctx context.Context, method string, filter Filter, out any) error {
	var raw any
	if filter == nil {
		filter = Filter{}
	}
	if err := c.call(ctx, method, &raw, map[string]any(filter)); err != nil {
		return err
	}
	return decode(raw, out)
}

// add issues an Add call and returns the new id.
func (c *PLCClient) add(ctx context.Context, method string, args ...any) (int, error) {
	var id int
	if err := c.call(ctx, method, &id, args...); err != nil {
		return 0, err
	}
	return id, nil
}

// exec issues a call whose result is a status code.
func (c *PLCClient) exec(ctx context.Context, method string, args ...any) error {
	var status int
	return c.call(ctx, method, &status, args...)
}

func (c *PLCClient) GetSites(ctx context.Context, filter Filter) ([]Site, error) {
	var out []Site
	return out, c.get(ctx, "GetSites", filter, &out)
}

func (c *PLCClient) AddSite(ctx context.Context, site Site) (int, error) {
	fields, err := toFields(site)
	if err != nil {
		return 0, err
	}
	return c.add(ctx, "AddSite", fields)
}

func (c *PLCClient) UpdateSite(ctx context.Context, siteID int, fields Fields) error {
	return c.exec(ctx, "UpdateSite", siteID, map[string]any(fields))
}

func (c *PLCClient) GetSiteTags(ctx context.Context, filter Filter) ([]SiteTag, error) {
	var out []SiteTag
	return out, c.get(ctx, "GetSiteTags", filter, &out)
}

func (c *PLCClient) AddSiteTag(ctx context.Context, siteID int, tagName, value string) (int, error) {
	return c.add(ctx, "AddSiteTag", siteID, tagName, value)
}

func (c *PLCClient) UpdateSiteTag(ctx context.Context, siteTagID int, value string) error {
	return c.exec(ctx, "UpdateSiteTag", siteTagID, value)
}

func (c *PLCClient) GetPersons(ctx context.Context, filter Filter) ([]Person, error) {
	var out []Person
	return out, c.get(ctx, "GetPersons", filter, &out)
}

func (c *PLCClient) AddPerson(ctx context.Context, person Person) (int, error) {
	person.Enabled = false
	fields, err := toFields(person)
	if err != nil {
		return 0, err
	}
	return c.add(ctx, "AddPerson", fields)
}

func (c *PLCClient) UpdatePerson(ctx context.Context, personID int, fields Fields) error {
	return c.exec(ctx, "UpdatePerson", personID, map[string]any(fields))
}

func (c *PLCClient) AddPersonToSite(ctx context.Context, email, loginBase string) error {
	return c.exec(ctx, "AddPersonToSite", email, loginBase)
}

func (c *PLCClient) AddPersonToSlice(ctx context.Context, email, sliceName string) error {
	return c.exec(ctx, "AddPersonToSlice", email, sliceName)
}

func (c *PLCClient) GetNodes(ctx context.Context, filter Filter) ([]Node, error) {
	var out []Node
	return out, c.get(ctx, "GetNodes", filter, &out)
}

func (c *PLCClient) AddNode(ctx context.Context, loginBase string, node Node) (int, error) {
	fields, err := toFields(node)
	if err != nil {
		return 0, err
	}
	return c.add(ctx, "AddNode", loginBase, fields)
}

func (c *PLCClient) GetNodeGroups(ctx context.Context, filter Filter) ([]NodeGroup, error) {
	var out []NodeGroup
	return out, c.get(ctx, "GetNodeGroups", filter, &out)
}

func (c *PLCClient) GetNodeTags(ctx context.Context, filter Filter) ([]NodeTag, error) {
	var out []NodeTag
	return out, c.get(ctx, "GetNodeTags", filter, &out)
}

func (c *PLCClient) AddNodeTag(ctx context.Context, nodeID int, tagName, value string) (int, error) {
	return c.add(ctx, "AddNodeTag", nodeID, tagName, value)
}

func (c *PLCClient) UpdateNodeTag(ctx context.Context, nodeTagID int, value string) error {
	return c.exec(ctx, "UpdateNodeTag", nodeTagID, value)
}

func (c *PLCClient) GetPCUs(ctx context.Context, filter Filter) ([]PCU, error) {
	var out []PCU
	return out, c.get(ctx, "GetPCUs", filter, &out)
}

func (c *PLCClient) AddPCU(ctx context.Context, loginBase string, pcu PCU) (int, error) {
	fields, err := toFields(pcu)
	if err != nil {
		return 0, err
	}
	return c.add(ctx, "AddPCU", loginBase, fields)
}

func (c *PLCClient) UpdatePCU(ctx context.Context, pcuID int, fields Fields) error {
	return c.exec(ctx, "UpdatePCU", pcuID, map[string]any(fields))
}

func (c *PLCClient) AddNodeToPCU(ctx context.Context, nodeID, pcuID, port int) error {
	return c.exec(ctx, "AddNodeToPCU", nodeID, pcuID, port)
}

func (c *PLCClient) GetInterfaces(ctx context.Context, filter Filter) ([]Interface, error) {
	var out []Interface
	return out, c.get(ctx, "GetInterfaces", filter, &out)
}

func (c *PLCClient) AddInterface(ctx context.Context, nodeID int, iface Interface) (int, error) {
	fields, err := toFields(iface)
	if err != nil {
		return 0, err
	}
	return c.add(ctx, "AddInterface", nodeID, fields)
}

func (c *PLCClient) UpdateInterface(ctx context.Context, interfaceID int, fields Fields) error {
	return c.exec(ctx, "UpdateInterface", interfaceID, map[string]any(fields))
}

func (c *PLCClient) GetInterfaceTags(ctx context.Context, filter Filter) ([]InterfaceTag, error) {
	var out []InterfaceTag
	return out, c.get(ctx, "GetInterfaceTags", filter, &out)
}

func (c *PLCClient) AddInterfaceTag(ctx context.Context, interfaceID, tagTypeID int, value string) (int, error) {
	return c.add(ctx, "AddInterfaceTag", interfaceID, tagTypeID, value)
}

func (c *PLCClient) UpdateInterfaceTag(ctx context.Context, interfaceTagID int, value string) error {
	return c.exec(ctx, "UpdateInterfaceTag", interfaceTagID, value)
}

func (c *PLCClient) GetTagTypes(ctx context.Context, filter Filter) ([]TagType, error) {
	var out []TagType
	return out, c.get(ctx, "GetTagTypes", filter, &out)
}

func (c *PLCClient) GetSlices(ctx context.Context, filter Filter) ([]Slice, error) {
	var out []Slice
	return out, c.get(ctx, "GetSlices", filter, &out)
}

func (c *PLCClient) AddSlice(ctx context.Context, slice Slice) (int, error) {
	fields, err := toFields(slice)
	if err != nil {
		return 0, err
	}
	return c.add(ctx, "AddSlice", fields)
}

func (c *PLCClient) UpdateSlice(ctx context.Context, sliceID int, fields Fields) error {
	return c.exec(ctx, "UpdateSlice", sliceID, map[string]any(fields))
}

func (c *PLCClient) GetSliceTags(ctx context.Context, filter Filter) ([]SliceTag, error) {
	var out []SliceTag
	return out, c.get(ctx, "GetSliceTags", filter, &out)
}

// AddSliceTag scopes the tag with trailing node and nodegroup arguments.
// A nodegroup tag passes a nil node, which PLCAPI reads as "no node".
func (c *PLCClient) AddSliceTag(ctx context.Context, tag SliceTag) (int, error) {
	args := []any{tag.SliceID, tag.TagName, tag.Value}
	switch {
	case tag.NodeID != 0:
		args = append(args, tag.NodeID)
	case tag.NodeGroupID != 0:
		var noNode *int
		args = append(args, noNode, tag.NodeGroupID)
	}
	return c.add(ctx, "AddSliceTag", args...)
}

func (c *PLCClient) UpdateSliceTag(ctx context.Context, sliceTagID int, value string) error {
	return c.exec(ctx, "UpdateSliceTag", sliceTagID, value)
}

func (c *PLCClient) AddSliceToNodesWhitelist(ctx context.Context, sliceID int, hostnames []string) error {
	return c.exec(ctx, "AddSliceToNodesWhitelist", sliceID, hostnames)
}

func (c *PLCClient) AddSliceToNodes(ctx context.Context, sliceID int, hostnames []string) error {
	return c.exec(ctx, "AddSliceToNodes", sliceID, hostnames)
}
