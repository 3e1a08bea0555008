// Copyright 2025 PLSync Authors
// SPDX-License-Identifier: Apache-2.0

package reconcile

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/LeeDigitalWorks/plsync/pkg/directory"
	"github.com/LeeDigitalWorks/plsync/pkg/topology"
)

const (
	sliceURL         = "http://www.measurementlab.net"
	sliceDescription = "M-Lab slice managed by plsync"

	initscriptKey   = "initscript"
	initscriptValue = "mlab_generic_initscript"
)

const (
	// ExpiryThreshold is how close to expiring a slice may get before it is
	// extended.
	ExpiryThreshold = 90 * 24 * time.Hour
	// ExpiryHorizon is how far into the future an extended slice expires.
	ExpiryHorizon = 20 * 365 * 24 * time.Hour
)

// sliceScope holds the directory ids an attribute is bound to. Both are
// zero for attributes that apply to every node.
type sliceScope struct {
	nodeID      int
	nodeGroupID int
}

func (s sliceScope) matches(t directory.SliceTag) bool {
	return t.NodeID == s.nodeID && t.NodeGroupID == s.nodeGroupID
}

// SyncSlice converges one slice: the slice record, its expiration, its
// users when AddUsers is set, its declared attributes, then its per-node
// whitelist, address and initscript bindings for every selected node.
func (r *Reconciler) SyncSlice(ctx context.Context, slice *topology.Slice) error {
	rec, err := r.MakeSlice(ctx, slice)
	if err != nil {
		return err
	}
	if err := r.SyncSliceExpiration(ctx, rec); err != nil {
		return err
	}
	if r.cfg.Steps.AddUsers {
		if err := r.SyncSliceUsers(ctx, rec, slice); err != nil {
			return err
		}
	}
	for _, attr := range slice.Attrs {
		if attr.Scope == topology.ScopeHost && !r.hostSelected(attr.Target) {
			continue
		}
		if err := r.SyncSliceAttribute(ctx, rec, attr); err != nil {
			return fmt.Errorf("sync %s attribute %s: %w", slice.Name, attr, err)
		}
	}

	for _, b := range slice.Bindings() {
		if !r.selected(b.Node) {
			continue
		}
		if err := r.syncBinding(ctx, rec, slice, b); err != nil {
			return fmt.Errorf("sync %s on %s: %w", slice.Name, b.Hostname, err)
		}
	}
	return nil
}

func (r *Reconciler) syncBinding(ctx context.Context, rec directory.Slice, slice *topology.Slice, b topology.Binding) error {
	ipAttr := b.Node.InterfaceAttr(slice)
	wantIPs := r.cfg.Steps.AddSliceIPs && ipAttr != nil
	wantInit := slice.UseInitscript && r.explicitTarget()
	if !r.cfg.Steps.AddWhitelist && !wantIPs && !wantInit {
		return nil
	}

	nodes, err := r.client.GetNodes(ctx, directory.Filter{"hostname": b.Hostname})
	if err != nil {
		return err
	}
	node, err := exactlyOne(KindNode, b.Hostname, "sync its site with --addnodes first", nodes)
	if err != nil {
		return err
	}
	scope := sliceScope{nodeID: node.NodeID}

	if r.cfg.Steps.AddWhitelist {
		if err := r.WhitelistSliceOnNode(ctx, rec, node); err != nil {
			return err
		}
	}
	if wantIPs {
		if err := r.syncSliceTag(ctx, rec, *ipAttr, scope); err != nil {
			return err
		}
	}
	if wantInit {
		initAttr := topology.HostAttr(b.Hostname, initscriptKey, initscriptValue)
		if err := r.syncSliceTag(ctx, rec, initAttr, scope); err != nil {
			return err
		}
	}
	return nil
}

// MakeSlice returns the slice record, adding it when CreateSlice is set.
func (r *Reconciler) MakeSlice(ctx context.Context, slice *topology.Slice) (directory.Slice, error) {
	recs, err := r.client.GetSlices(ctx, directory.Filter{"name": slice.Name})
	if err != nil {
		return directory.Slice{}, err
	}
	found, err := atMostOne(KindSlice, slice.Name, recs)
	if err != nil {
		return directory.Slice{}, err
	}
	if found != nil {
		r.outcome(KindSlice, ActionConfirm).Str("slice", slice.Name).Int("slice_id", found.SliceID).Msg("Confirmed slice")
		return *found, nil
	}
	if !r.cfg.Steps.CreateSlice {
		return directory.Slice{}, &MissingError{Kind: KindSlice, Key: slice.Name, Hint: "rerun with --createslice to create it"}
	}

	rec := directory.Slice{Name: slice.Name, URL: sliceURL, Description: sliceDescription}
	id, err := r.client.AddSlice(ctx, rec)
	if err != nil {
		return directory.Slice{}, err
	}
	rec.SliceID = id
	r.outcome(KindSlice, ActionAdd).Str("slice", slice.Name).Int("slice_id", id).Msg("Added slice")
	return rec, nil
}

// SyncSliceExpiration extends a slice expiring within ExpiryThreshold to
// ExpiryHorizon from now.
func (r *Reconciler) SyncSliceExpiration(ctx context.Context, rec directory.Slice) error {
	now := r.now()
	expires := time.Unix(rec.Expires, 0)
	if rec.Expires >= now.Add(ExpiryThreshold).Unix() {
		r.outcome(KindSliceExpiry, ActionConfirm).
			Str("slice", rec.Name).
			Str("expires", humanize.RelTime(expires, now, "ago", "from now")).
			Msg("Confirmed slice expiration")
		return nil
	}

	next := now.Add(ExpiryHorizon)
	if err := r.client.UpdateSlice(ctx, rec.SliceID, directory.Fields{"expires": next.Unix()}); err != nil {
		return err
	}
	r.outcome(KindSliceExpiry, ActionUpdate).
		Str("slice", rec.Name).
		Str("was", humanize.RelTime(expires, now, "ago", "from now")).
		Time("expires", next).
		Msg("Extended slice expiration")
	return nil
}

// SyncSliceUsers adds declared users to the slice. Users without an
// account are reported and skipped.
func (r *Reconciler) SyncSliceUsers(ctx context.Context, rec directory.Slice, slice *topology.Slice) error {
	for _, email := range slice.Users {
		recs, err := r.client.GetPersons(ctx, directory.Filter{"email": email})
		if err != nil {
			return err
		}
		person, err := atMostOne(KindPerson, email, recs)
		if err != nil {
			return err
		}
		switch {
		case person == nil:
			r.outcome(KindSliceUser, ActionSkip).Str("slice", slice.Name).Str("email", email).Msg("Slice user has no account")
		case slices.Contains(person.SliceIDs, rec.SliceID):
			r.outcome(KindSliceUser, ActionConfirm).Str("slice", slice.Name).Str("email", email).Msg("Confirmed slice user")
		default:
			if err := r.client.AddPersonToSlice(ctx, email, slice.Name); err != nil {
				return err
			}
			r.outcome(KindSliceUser, ActionAdd).Str("slice", slice.Name).Str("email", email).Msg("Added slice user")
		}
	}
	return nil
}

// SyncSliceAttribute resolves the scope of attr and syncs it as a slice tag.
func (r *Reconciler) SyncSliceAttribute(ctx context.Context, rec directory.Slice, attr topology.Attr) error {
	var scope sliceScope
	switch attr.Scope {
	case topology.ScopeHost:
		nodes, err := r.client.GetNodes(ctx, directory.Filter{"hostname": attr.Target})
		if err != nil {
			return err
		}
		node, err := exactlyOne(KindNode, attr.Target, "sync its site with --addnodes first", nodes)
		if err != nil {
			return err
		}
		scope.nodeID = node.NodeID
	case topology.ScopeNodeGroup:
		groups, err := r.client.GetNodeGroups(ctx, directory.Filter{"groupname": attr.Target})
		if err != nil {
			return err
		}
		group, err := exactlyOne(KindNodeGroup, attr.Target, "create the nodegroup in the directory first", groups)
		if err != nil {
			return err
		}
		scope.nodeGroupID = group.NodeGroupID
	}
	return r.syncSliceTag(ctx, rec, attr, scope)
}

// syncSliceTag compares attr with the slice's tags of the same name in the
// same scope. Multi-valued tags are only ever added; other tags must have
// at most one value per scope.
func (r *Reconciler) syncSliceTag(ctx context.Context, rec directory.Slice, attr topology.Attr, scope sliceScope) error {
	tags, err := r.client.GetSliceTags(ctx, directory.Filter{"name": rec.Name, "tagname": attr.Key})
	if err != nil {
		return err
	}
	var same []directory.SliceTag
	for _, t := range tags {
		if scope.matches(t) {
			same = append(same, t)
		}
	}
	key := rec.Name + "/" + attr.String()

	add := func() error {
		_, err := r.client.AddSliceTag(ctx, directory.SliceTag{
			SliceID:     rec.SliceID,
			TagName:     attr.Key,
			Value:       attr.Value,
			NodeID:      scope.nodeID,
			NodeGroupID: scope.nodeGroupID,
		})
		if err != nil {
			return err
		}
		r.outcome(KindSliceTag, ActionAdd).Str("tag", key).Msg("Added slice tag")
		return nil
	}

	if r.multiValued(attr.Key) {
		if slices.ContainsFunc(same, func(t directory.SliceTag) bool { return t.Value == attr.Value }) {
			r.outcome(KindSliceTag, ActionConfirm).Str("tag", key).Msg("Confirmed slice tag")
			return nil
		}
		return add()
	}

	found, err := atMostOne(KindSliceTag, key, same)
	if err != nil {
		return err
	}
	switch {
	case found == nil:
		return add()
	case found.Value != attr.Value:
		if err := r.client.UpdateSliceTag(ctx, found.SliceTagID, attr.Value); err != nil {
			return err
		}
		r.outcome(KindSliceTag, ActionUpdate).Str("tag", key).Str("from", found.Value).Msg("Updated slice tag")
	default:
		r.outcome(KindSliceTag, ActionConfirm).Str("tag", key).Msg("Confirmed slice tag")
	}
	return nil
}

// WhitelistSliceOnNode whitelists the slice on node and assigns it there.
// Stray slices are never removed.
func (r *Reconciler) WhitelistSliceOnNode(ctx context.Context, rec directory.Slice, node directory.Node) error {
	hosts := []string{node.Hostname}
	if slices.Contains(node.SliceIDsWhitelist, rec.SliceID) {
		r.outcome(KindWhitelist, ActionConfirm).Str("slice", rec.Name).Str("hostname", node.Hostname).Msg("Confirmed whitelist")
	} else {
		if err := r.client.AddSliceToNodesWhitelist(ctx, rec.SliceID, hosts); err != nil {
			return err
		}
		r.outcome(KindWhitelist, ActionAdd).Str("slice", rec.Name).Str("hostname", node.Hostname).Msg("Whitelisted slice")
	}

	if slices.Contains(node.SliceIDs, rec.SliceID) {
		r.outcome(KindSliceNode, ActionConfirm).Str("slice", rec.Name).Str("hostname", node.Hostname).Msg("Confirmed slice assignment")
		return nil
	}
	if err := r.client.AddSliceToNodes(ctx, rec.SliceID, hosts); err != nil {
		return err
	}
	r.outcome(KindSliceNode, ActionAdd).Str("slice", rec.Name).Str("hostname", node.Hostname).Msg("Assigned slice to node")
	return nil
}
