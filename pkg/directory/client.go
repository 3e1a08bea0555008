// Copyright 2025 PLSync Authors
// SPDX-License-Identifier: Apache-2.0

// Package directory is the record API of the remote inventory. Client is
// implemented by PLCClient over XML-RPC and by the in-memory Memory used in
// tests, and wrapped by DryRun to suppress writes.
package directory

import (
	"context"
	"strings"
)

// Client exposes get/add/update operations per record kind. Add calls
// return the new record id.
type Client interface {
	GetSites(ctx context.Context, filter Filter) ([]Site, error)
	AddSite(ctx context.Context, site Site) (int, error)
	UpdateSite(ctx context.Context, siteID int, fields Fields) error

	GetSiteTags(ctx context.Context, filter Filter) ([]SiteTag, error)
	AddSiteTag(ctx context.Context, siteID int, tagName, value string) (int, error)
	UpdateSiteTag(ctx context.Context, siteTagID int, value string) error

	GetPersons(ctx context.Context, filter Filter) ([]Person, error)
	AddPerson(ctx context.Context, person Person) (int, error)
	UpdatePerson(ctx context.Context, personID int, fields Fields) error
	AddPersonToSite(ctx context.Context, email, loginBase string) error
	AddPersonToSlice(ctx context.Context, email, sliceName string) error

	GetNodes(ctx context.Context, filter Filter) ([]Node, error)
	AddNode(ctx context.Context, loginBase string, node Node) (int, error)

	GetNodeGroups(ctx context.Context, filter Filter) ([]NodeGroup, error)

	GetNodeTags(ctx context.Context, filter Filter) ([]NodeTag, error)
	AddNodeTag(ctx context.Context, nodeID int, tagName, value string) (int, error)
	UpdateNodeTag(ctx context.Context, nodeTagID int, value string) error

	GetPCUs(ctx context.Context, filter Filter) ([]PCU, error)
	AddPCU(ctx context.Context, loginBase string, pcu PCU) (int, error)
	UpdatePCU(ctx context.Context, pcuID int, fields Fields) error
	AddNodeToPCU(ctx context.Context, nodeID, pcuID, port int) error

	GetInterfaces(ctx context.Context, filter Filter) ([]Interface, error)
	AddInterface(ctx context.Context, nodeID int, iface Interface) (int, error)
	UpdateInterface(ctx context.Context, interfaceID int, fields Fields) error

	GetInterfaceTags(ctx context.Context, filter Filter) ([]InterfaceTag, error)
	AddInterfaceTag(ctx context.Context, interfaceID, tagTypeID int, value string) (int, error)
	UpdateInterfaceTag(ctx context.Context, interfaceTagID int, value string) error

	GetTagTypes(ctx context.Context, filter Filter) ([]TagType, error)

	GetSlices(ctx context.Context, filter Filter) ([]Slice, error)
	AddSlice(ctx context.Context, slice Slice) (int, error)
	UpdateSlice(ctx context.Context, sliceID int, fields Fields) error

	GetSliceTags(ctx context.Context, filter Filter) ([]SliceTag, error)
	AddSliceTag(ctx context.Context, tag SliceTag) (int, error)
	UpdateSliceTag(ctx context.Context, sliceTagID int, value string) error

	AddSliceToNodesWhitelist(ctx context.Context, sliceID int, hostnames []string) error
	AddSliceToNodes(ctx context.Context, sliceID int, hostnames []string) error
}

// IsMutating reports whether the named PLCAPI method changes remote state.
func IsMutating(method string) bool {
	return !strings.HasPrefix(method, "Get") && method != "AuthCheck"
}
