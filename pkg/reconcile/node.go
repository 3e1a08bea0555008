// Copyright 2025 PLSync Authors
// SPDX-License-Identifier: Apache-2.0

package reconcile

import (
	"context"
	"slices"
	"strconv"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/LeeDigitalWorks/plsync/pkg/addr"
	"github.com/LeeDigitalWorks/plsync/pkg/directory"
	"github.com/LeeDigitalWorks/plsync/pkg/topology"
)

const (
	nodeBootState = "reinstall"
	nodeModel     = "unknown"
	pcuPort       = 1

	deploymentTag = "deployment"
	fcdistroTag   = "fcdistro"
	archTag       = "arch"
	aliasTag      = "alias"
	ifnameTag     = "ifname"

	centosNodeGroup = "MeasurementLabCentos"
	centosDistro    = "centos6"
	secondaryIfname = "eth0"
)

// writeOnceInterfaceTags are never updated once set.
var writeOnceInterfaceTags = []string{aliasTag}

// SyncNode converges one node: the node record, its PCU, its nodegroup and
// node tags, its interfaces when AddInterfaces is set, and the IPv6 tags
// of its primary interface.
func (r *Reconciler) SyncNode(ctx context.Context, site *topology.Site, node *topology.Node) error {
	rec, err := r.MakeNode(ctx, site, node)
	if err != nil {
		return err
	}
	if err := r.MakePCU(ctx, site, rec, node.PCU); err != nil {
		return err
	}
	if err := r.PutNodeInNodeGroup(ctx, rec, node.NodeGroup); err != nil {
		return err
	}
	if site.Arch != "" {
		if err := r.SyncNodeTag(ctx, rec, archTag, site.Arch); err != nil {
			return err
		}
	}

	primaryID := -1
	if r.cfg.Steps.AddInterfaces {
		primary := interfaceRecord(node.Interface())
		if primaryID, err = r.SyncInterface(ctx, rec, primary); err != nil {
			return err
		}
		for _, ip := range node.IPList() {
			secondary := interfaceRecord(node.Interface())
			secondary.IP = ip.String()
			secondary.IsPrimary = false
			if _, err := r.SyncInterface(ctx, rec, secondary); err != nil {
				return err
			}
		}
	}

	if tags := node.V6InterfaceTags(); len(tags) > 0 {
		if primaryID < 0 {
			primaryID, err = r.lookupInterface(ctx, rec, node.Interface().IP.String())
			if err != nil {
				return err
			}
		}
		if err := r.SyncInterfaceTags(ctx, primaryID, tags); err != nil {
			return err
		}
	}
	return nil
}

// MakeNode returns the node record, adding it when AddNodes is set.
func (r *Reconciler) MakeNode(ctx context.Context, site *topology.Site, node *topology.Node) (directory.Node, error) {
	recs, err := r.client.GetNodes(ctx, directory.Filter{"hostname": node.Hostname})
	if err != nil {
		return directory.Node{}, err
	}
	found, err := atMostOne(KindNode, node.Hostname, recs)
	if err != nil {
		return directory.Node{}, err
	}
	if found != nil {
		r.outcome(KindNode, ActionConfirm).Str("hostname", node.Hostname).Int("node_id", found.NodeID).Msg("Confirmed node")
		return *found, nil
	}
	if !r.cfg.Steps.AddNodes {
		return directory.Node{}, &MissingError{Kind: KindNode, Key: node.Hostname, Hint: "rerun with --addnodes to create it"}
	}

	rec := directory.Node{Hostname: node.Hostname, BootState: nodeBootState, Model: nodeModel}
	id, err := r.client.AddNode(ctx, site.LoginBase, rec)
	if err != nil {
		return directory.Node{}, err
	}
	rec.NodeID = id
	r.outcome(KindNode, ActionAdd).Str("hostname", node.Hostname).Int("node_id", id).Msg("Added node")
	return rec, nil
}

// MakePCU adds the node's PCU, corrects its address and model, and links
// it to the node.
func (r *Reconciler) MakePCU(ctx context.Context, site *topology.Site, node directory.Node, pcu topology.PCU) error {
	recs, err := r.client.GetPCUs(ctx, directory.Filter{"hostname": pcu.Hostname})
	if err != nil {
		return err
	}
	found, err := atMostOne(KindPCU, pcu.Hostname, recs)
	if err != nil {
		return err
	}

	if found == nil {
		id, err := r.client.AddPCU(ctx, site.LoginBase, directory.PCU{
			Hostname: pcu.Hostname,
			IP:       pcu.IP.String(),
			Username: pcu.Username,
			Password: pcu.Password,
			Model:    pcu.Model,
		})
		if err != nil {
			return err
		}
		if err := r.client.AddNodeToPCU(ctx, node.NodeID, id, pcuPort); err != nil {
			return err
		}
		r.outcome(KindPCU, ActionAdd).Str("hostname", pcu.Hostname).Str("ip", pcu.IP.String()).Msg("Added PCU")
		return nil
	}

	action := ActionConfirm
	update := directory.Fields{}
	if found.IP != pcu.IP.String() {
		update["ip"] = pcu.IP.String()
	}
	if found.Model != pcu.Model {
		update["model"] = pcu.Model
	}
	if len(update) > 0 {
		if err := r.client.UpdatePCU(ctx, found.PCUID, update); err != nil {
			return err
		}
		action = ActionUpdate
	}
	if !slices.Contains(found.NodeIDs, node.NodeID) {
		if err := r.client.AddNodeToPCU(ctx, node.NodeID, found.PCUID, pcuPort); err != nil {
			return err
		}
		action = ActionUpdate
	}
	r.outcome(KindPCU, action).Str("hostname", pcu.Hostname).Int("pcu_id", found.PCUID).Msg("Synced PCU")
	return nil
}

// PutNodeInNodeGroup tags the node into its nodegroup. The nodegroup must
// already exist.
func (r *Reconciler) PutNodeInNodeGroup(ctx context.Context, node directory.Node, groupName string) error {
	groups, err := r.client.GetNodeGroups(ctx, directory.Filter{"groupname": groupName})
	if err != nil {
		return err
	}
	group, err := exactlyOne(KindNodeGroup, groupName, "create the nodegroup in the directory first", groups)
	if err != nil {
		return err
	}

	if slices.Contains(node.NodeGroupIDs, group.NodeGroupID) {
		r.outcome(KindNodeGroup, ActionConfirm).Str("hostname", node.Hostname).Str("nodegroup", groupName).Msg("Confirmed nodegroup membership")
	} else if err := r.SyncNodeTag(ctx, node, deploymentTag, groupName); err != nil {
		return err
	}

	if groupName == centosNodeGroup {
		return r.SyncNodeTag(ctx, node, fcdistroTag, centosDistro)
	}
	return nil
}

// SyncNodeTag adds, updates or confirms a single-valued node tag.
func (r *Reconciler) SyncNodeTag(ctx context.Context, node directory.Node, tagName, value string) error {
	tags, err := r.client.GetNodeTags(ctx, directory.Filter{"node_id": node.NodeID, "tagname": tagName})
	if err != nil {
		return err
	}
	key := node.Hostname + "/" + tagName
	found, err := atMostOne(KindNodeTag, key, tags)
	if err != nil {
		return err
	}
	switch {
	case found == nil:
		if _, err := r.client.AddNodeTag(ctx, node.NodeID, tagName, value); err != nil {
			return err
		}
		r.outcome(KindNodeTag, ActionAdd).Str("tag", key).Str("value", value).Msg("Added node tag")
	case found.Value != value:
		if err := r.client.UpdateNodeTag(ctx, found.NodeTagID, value); err != nil {
			return err
		}
		r.outcome(KindNodeTag, ActionUpdate).Str("tag", key).Str("from", found.Value).Str("to", value).Msg("Updated node tag")
	default:
		r.outcome(KindNodeTag, ActionConfirm).Str("tag", key).Str("value", value).Msg("Confirmed node tag")
	}
	return nil
}

func interfaceRecord(i addr.Interface) directory.Interface {
	return directory.Interface{
		IsPrimary: i.IsPrimary,
		Type:      i.Type,
		Method:    i.Method,
		IP:        i.IP.String(),
		Network:   i.Network.String(),
		Netmask:   i.Netmask,
		Gateway:   i.Gateway.String(),
		Broadcast: i.Broadcast.String(),
		DNS1:      i.DNS1,
		DNS2:      i.DNS2,
	}
}

func interfaceFields(i directory.Interface) directory.Fields {
	return directory.Fields{
		"is_primary": i.IsPrimary,
		"type":       i.Type,
		"method":     i.Method,
		"ip":         i.IP,
		"network":    i.Network,
		"netmask":    i.Netmask,
		"gateway":    i.Gateway,
		"broadcast":  i.Broadcast,
		"dns1":       i.DNS1,
		"dns2":       i.DNS2,
	}
}

var ignoreInterfaceIDs = cmpopts.IgnoreFields(directory.Interface{}, "InterfaceID", "NodeID", "InterfaceTagIDs")

// SyncInterface adds, updates or confirms one interface and returns its id.
// Secondary interfaces also get alias and ifname tags.
func (r *Reconciler) SyncInterface(ctx context.Context, node directory.Node, want directory.Interface) (int, error) {
	recs, err := r.client.GetInterfaces(ctx, directory.Filter{
		"node_id":    node.NodeID,
		"is_primary": want.IsPrimary,
		"ip":         want.IP,
	})
	if err != nil {
		return 0, err
	}
	key := node.Hostname + "/" + want.IP
	found, err := atMostOne(KindInterface, key, recs)
	if err != nil {
		return 0, err
	}

	var id int
	switch {
	case found == nil:
		if id, err = r.client.AddInterface(ctx, node.NodeID, want); err != nil {
			return 0, err
		}
		r.outcome(KindInterface, ActionAdd).Str("interface", key).Bool("primary", want.IsPrimary).Msg("Added interface")
	default:
		id = found.InterfaceID
		if diff := cmp.Diff(*found, want, ignoreInterfaceIDs); diff != "" {
			if err := r.client.UpdateInterface(ctx, id, interfaceFields(want)); err != nil {
				return 0, err
			}
			r.outcome(KindInterface, ActionUpdate).Str("interface", key).Str("diff", diff).Msg("Updated interface")
		} else {
			r.outcome(KindInterface, ActionConfirm).Str("interface", key).Msg("Confirmed interface")
		}
	}

	if !want.IsPrimary {
		tags := []topology.Tag{
			{Name: aliasTag, Value: strconv.Itoa(id)},
			{Name: ifnameTag, Value: secondaryIfname},
		}
		if err := r.SyncInterfaceTags(ctx, id, tags); err != nil {
			return 0, err
		}
	}
	return id, nil
}

// lookupInterface returns the id of the node's interface with ip.
func (r *Reconciler) lookupInterface(ctx context.Context, node directory.Node, ip string) (int, error) {
	recs, err := r.client.GetInterfaces(ctx, directory.Filter{"node_id": node.NodeID, "ip": ip})
	if err != nil {
		return 0, err
	}
	found, err := exactlyOne(KindInterface, node.Hostname+"/"+ip, "rerun with --addinterfaces to create it", recs)
	if err != nil {
		return 0, err
	}
	return found.InterfaceID, nil
}

// SyncInterfaceTags adds, updates or confirms each tag on an interface.
// Write-once tags are confirmed even when their value differs.
func (r *Reconciler) SyncInterfaceTags(ctx context.Context, interfaceID int, tags []topology.Tag) error {
	for _, tag := range tags {
		if err := r.syncInterfaceTag(ctx, interfaceID, tag); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reconciler) syncInterfaceTag(ctx context.Context, interfaceID int, tag topology.Tag) error {
	recs, err := r.client.GetInterfaceTags(ctx, directory.Filter{"interface_id": interfaceID, "tagname": tag.Name})
	if err != nil {
		return err
	}
	key := strconv.Itoa(interfaceID) + "/" + tag.Name
	found, err := atMostOne(KindInterfaceTag, key, recs)
	if err != nil {
		return err
	}

	switch {
	case found == nil:
		types, err := r.client.GetTagTypes(ctx, directory.Filter{"tagname": tag.Name})
		if err != nil {
			return err
		}
		tt, err := exactlyOne("tag type", tag.Name, "define the tag type in the directory first", types)
		if err != nil {
			return err
		}
		if _, err := r.client.AddInterfaceTag(ctx, interfaceID, tt.TagTypeID, tag.Value); err != nil {
			return err
		}
		r.outcome(KindInterfaceTag, ActionAdd).Str("tag", key).Str("value", tag.Value).Msg("Added interface tag")
	case found.Value != tag.Value && !slices.Contains(writeOnceInterfaceTags, tag.Name):
		if err := r.client.UpdateInterfaceTag(ctx, found.InterfaceTagID, tag.Value); err != nil {
			return err
		}
		r.outcome(KindInterfaceTag, ActionUpdate).Str("tag", key).Str("from", found.Value).Str("to", tag.Value).Msg("Updated interface tag")
	default:
		r.outcome(KindInterfaceTag, ActionConfirm).Str("tag", key).Str("value", found.Value).Msg("Confirmed interface tag")
	}
	return nil
}
