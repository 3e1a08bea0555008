// Copyright 2025 PLSync Authors
// SPDX-License-Identifier: Apache-2.0

package directory

// Records mirror the PLCAPI structs. Fields tagged omitempty are read-only
// or optional and are left out of Add calls when unset.

type Site struct {
	SiteID          int     `plc:"site_id,omitempty"`
	LoginBase       string  `plc:"login_base"`
	Name            string  `plc:"name"`
	AbbreviatedName string  `plc:"abbreviated_name"`
	URL             string  `plc:"url,omitempty"`
	Latitude        float64 `plc:"latitude,omitempty"`
	Longitude       float64 `plc:"longitude,omitempty"`
	MaxSlices       int     `plc:"max_slices,omitempty"`
	PersonIDs       []int   `plc:"person_ids,omitempty"`
	NodeIDs         []int   `plc:"node_ids,omitempty"`
}

type SiteTag struct {
	SiteTagID int    `plc:"site_tag_id,omitempty"`
	SiteID    int    `plc:"site_id"`
	TagName   string `plc:"tagname"`
	Value     string `plc:"value"`
}

type Person struct {
	PersonID  int    `plc:"person_id,omitempty"`
	Email     string `plc:"email"`
	FirstName string `plc:"first_name"`
	LastName  string `plc:"last_name"`
	Password  string `plc:"password,omitempty"`
	Enabled   bool   `plc:"enabled,omitempty"`
	SiteIDs   []int  `plc:"site_ids,omitempty"`
	SliceIDs  []int  `plc:"slice_ids,omitempty"`
}

type Node struct {
	NodeID            int    `plc:"node_id,omitempty"`
	Hostname          string `plc:"hostname"`
	SiteID            int    `plc:"site_id,omitempty"`
	BootState         string `plc:"boot_state,omitempty"`
	Model             string `plc:"model,omitempty"`
	NodeGroupIDs      []int  `plc:"nodegroup_ids,omitempty"`
	NodeTagIDs        []int  `plc:"node_tag_ids,omitempty"`
	InterfaceIDs      []int  `plc:"interface_ids,omitempty"`
	PCUIDs            []int  `plc:"pcu_ids,omitempty"`
	SliceIDs          []int  `plc:"slice_ids,omitempty"`
	SliceIDsWhitelist []int  `plc:"slice_ids_whitelist,omitempty"`
}

// NodeGroup is a set of nodes sharing a node tag value.
type NodeGroup struct {
	NodeGroupID int    `plc:"nodegroup_id,omitempty"`
	GroupName   string `plc:"groupname"`
	TagName     string `plc:"tagname,omitempty"`
	Value       string `plc:"value,omitempty"`
	NodeIDs     []int  `plc:"node_ids,omitempty"`
}

type NodeTag struct {
	NodeTagID int    `plc:"node_tag_id,omitempty"`
	NodeID    int    `plc:"node_id"`
	TagName   string `plc:"tagname"`
	Value     string `plc:"value"`
}

type PCU struct {
	PCUID    int    `plc:"pcu_id,omitempty"`
	SiteID   int    `plc:"site_id,omitempty"`
	Hostname string `plc:"hostname"`
	IP       string `plc:"ip"`
	Username string `plc:"username"`
	Password string `plc:"password"`
	Model    string `plc:"model"`
	NodeIDs  []int  `plc:"node_ids,omitempty"`
}

type Interface struct {
	InterfaceID     int    `plc:"interface_id,omitempty"`
	NodeID          int    `plc:"node_id,omitempty"`
	IsPrimary       bool   `plc:"is_primary"`
	Type            string `plc:"type"`
	Method          string `plc:"method"`
	IP              string `plc:"ip"`
	Network         string `plc:"network"`
	Netmask         string `plc:"netmask"`
	Gateway         string `plc:"gateway"`
	Broadcast       string `plc:"broadcast"`
	DNS1            string `plc:"dns1"`
	DNS2            string `plc:"dns2"`
	InterfaceTagIDs []int  `plc:"interface_tag_ids,omitempty"`
}

type InterfaceTag struct {
	InterfaceTagID int    `plc:"interface_tag_id,omitempty"`
	InterfaceID    int    `plc:"interface_id"`
	TagTypeID      int    `plc:"tag_type_id"`
	TagName        string `plc:"tagname"`
	Value          string `plc:"value"`
}

type TagType struct {
	TagTypeID   int    `plc:"tag_type_id,omitempty"`
	TagName     string `plc:"tagname"`
	Category    string `plc:"category,omitempty"`
	Description string `plc:"description,omitempty"`
}

type Slice struct {
	SliceID     int    `plc:"slice_id,omitempty"`
	Name        string `plc:"name"`
	URL         string `plc:"url,omitempty"`
	Description string `plc:"description,omitempty"`
	Expires     int64  `plc:"expires,omitempty"`
	SiteID      int    `plc:"site_id,omitempty"`
	NodeIDs     []int  `plc:"node_ids,omitempty"`
	PersonIDs   []int  `plc:"person_ids,omitempty"`
}

// SliceTag is a slice attribute. NodeID and NodeGroupID are zero for tags
// that apply to every node.
type SliceTag struct {
	SliceTagID  int    `plc:"slice_tag_id,omitempty"`
	SliceID     int    `plc:"slice_id"`
	Name        string `plc:"name,omitempty"`
	TagName     string `plc:"tagname"`
	Value       string `plc:"value"`
	NodeID      int    `plc:"node_id,omitempty"`
	NodeGroupID int    `plc:"nodegroup_id,omitempty"`
}

// Filter selects records by field equality. A slice value matches any of
// its elements.
type Filter map[string]any

// Fields is a partial record used by Update calls.
type Fields map[string]any
