// Copyright 2025 PLSync Authors
// SPDX-License-Identifier: Apache-2.0

package directory

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/LeeDigitalWorks/plsync/pkg/logger"
)

// DryRun forwards Get calls to the wrapped client and turns every mutating
// call into a logged no-op. Add calls report id 0.
type DryRun struct {
	Client
}

var _ Client = (*DryRun)(nil)

// NewDryRun wraps c.
func NewDryRun(c Client) *DryRun {
	return &DryRun{Client: c}
}

func (d *DryRun) skip(method string) *zerolog.Event {
	dryRunSkippedTotal.WithLabelValues(method).Inc()
	return logger.Info().Str("method", method)
}

func (d *DryRun) AddSite(ctx context.Context, site Site) (int, error) {
	d.skip("AddSite").Str("login_base", site.LoginBase).Msg("[DRY-RUN] Would add site")
	return 0, nil
}

func (d *DryRun) UpdateSite(ctx context.Context, siteID int, fields Fields) error {
	d.skip("UpdateSite").Int("site_id", siteID).Interface("fields", fields).Msg("[DRY-RUN] Would update site")
	return nil
}

func (d *DryRun) AddSiteTag(ctx context.Context, siteID int, tagName, value string) (int, error) {
	d.skip("AddSiteTag").Int("site_id", siteID).Str("tag", tagName).Str("value", value).Msg("[DRY-RUN] Would add site tag")
	return 0, nil
}

func (d *DryRun) UpdateSiteTag(ctx context.Context, siteTagID int, value string) error {
	d.skip("UpdateSiteTag").Int("site_tag_id", siteTagID).Str("value", value).Msg("[DRY-RUN] Would update site tag")
	return nil
}

func (d *DryRun) AddPerson(ctx context.Context, person Person) (int, error) {
	d.skip("AddPerson").Str("email", person.Email).Msg("[DRY-RUN] Would add person")
	return 0, nil
}

func (d *DryRun) UpdatePerson(ctx context.Context, personID int, fields Fields) error {
	d.skip("UpdatePerson").Int("person_id", personID).Interface("fields", fields).Msg("[DRY-RUN] Would update person")
	return nil
}

func (d *DryRun) AddPersonToSite(ctx context.Context, email, loginBase string) error {
	d.skip("AddPersonToSite").Str("email", email).Str("login_base", loginBase).Msg("[DRY-RUN] Would add person to site")
	return nil
}

func (d *DryRun) AddPersonToSlice(ctx context.Context, email, sliceName string) error {
	d.skip("AddPersonToSlice").Str("email", email).Str("slice", sliceName).Msg("[DRY-RUN] Would add person to slice")
	return nil
}

func (d *DryRun) AddNode(ctx context.Context, loginBase string, node Node) (int, error) {
	d.skip("AddNode").Str("hostname", node.Hostname).Str("login_base", loginBase).Msg("[DRY-RUN] Would add node")
	return 0, nil
}

func (d *DryRun) AddNodeTag(ctx context.Context, nodeID int, tagName, value string) (int, error) {
	d.skip("AddNodeTag").Int("node_id", nodeID).Str("tag", tagName).Str("value", value).Msg("[DRY-RUN] Would add node tag")
	return 0, nil
}

func (d *DryRun) UpdateNodeTag(ctx context.Context, nodeTagID int, value string) error {
	d.skip("UpdateNodeTag").Int("node_tag_id", nodeTagID).Str("value", value).Msg("[DRY-RUN] Would update node tag")
	return nil
}

func (d *DryRun) AddPCU(ctx context.Context, loginBase string, pcu PCU) (int, error) {
	d.skip("AddPCU").Str("hostname", pcu.Hostname).Str("ip", pcu.IP).Msg("[DRY-RUN] Would add PCU")
	return 0, nil
}

func (d *DryRun) UpdatePCU(ctx context.Context, pcuID int, fields Fields) error {
	d.skip("UpdatePCU").Int("pcu_id", pcuID).Interface("fields", fields).Msg("[DRY-RUN] Would update PCU")
	return nil
}

func (d *DryRun) AddNodeToPCU(ctx context.Context, nodeID, pcuID, port int) error {
	d.skip("AddNodeToPCU").Int("node_id", nodeID).Int("pcu_id", pcuID).Int("port", port).Msg("[DRY-RUN] Would link node to PCU")
	return nil
}

func (d *DryRun) AddInterface(ctx context.Context, nodeID int, iface Interface) (int, error) {
	d.skip("AddInterface").Int("node_id", nodeID).Str("ip", iface.IP).Msg("[DRY-RUN] Would add interface")
	return 0, nil
}

func (d *DryRun) UpdateInterface(ctx context.Context, interfaceID int, fields Fields) error {
	d.skip("UpdateInterface").Int("interface_id", interfaceID).Interface("fields", fields).Msg("[DRY-RUN] Would update interface")
	return nil
}

func (d *DryRun) AddInterfaceTag(ctx context.Context, interfaceID, tagTypeID int, value string) (int, error) {
	d.skip("AddInterfaceTag").Int("interface_id", interfaceID).Int("tag_type_id", tagTypeID).Str("value", value).Msg("[DRY-RUN] Would add interface tag")
	return 0, nil
}

func (d *DryRun) UpdateInterfaceTag(ctx context.Context, interfaceTagID int, value string) error {
	d.skip("UpdateInterfaceTag").Int("interface_tag_id", interfaceTagID).Str("value", value).Msg("[DRY-RUN] Would update interface tag")
	return nil
}

func (d *DryRun) AddSlice(ctx context.Context, slice Slice) (int, error) {
	d.skip("AddSlice").Str("slice", slice.Name).Msg("[DRY-RUN] Would add slice")
	return 0, nil
}

func (d *DryRun) UpdateSlice(ctx context.Context, sliceID int, fields Fields) error {
	d.skip("UpdateSlice").Int("slice_id", sliceID).Interface("fields", fields).Msg("[DRY-RUN] Would update slice")
	return nil
}

func (d *DryRun) AddSliceTag(ctx context.Context, tag SliceTag) (int, error) {
	d.skip("AddSliceTag").
		Int("slice_id", tag.SliceID).
		Str("tag", tag.TagName).
		Str("value", tag.Value).
		Int("node_id", tag.NodeID).
		Int("nodegroup_id", tag.NodeGroupID).
		Msg("[DRY-RUN] Would add slice tag")
	return 0, nil
}

func (d *DryRun) UpdateSliceTag(ctx context.Context, sliceTagID int, value string) error {
	d.skip("UpdateSliceTag").Int("slice_tag_id", sliceTagID).Str("value", value).Msg("[DRY-RUN] Would update slice tag")
	return nil
}

func (d *DryRun) AddSliceToNodesWhitelist(ctx context.Context, sliceID int, hostnames []string) error {
	d.skip("AddSliceToNodesWhitelist").Int("slice_id", sliceID).Strs("hostnames", hostnames).Msg("[DRY-RUN] Would whitelist slice")
	return nil
}

func (d *DryRun) AddSliceToNodes(ctx context.Context, sliceID int, hostnames []string) error {
	d.skip("AddSliceToNodes").Int("slice_id", sliceID).Strs("hostnames", hostnames).Msg("[DRY-RUN] Would assign slice")
	return nil
}
