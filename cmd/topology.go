// Copyright 2025 PLSync Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/LeeDigitalWorks/plsync/pkg/template"
	"github.com/LeeDigitalWorks/plsync/pkg/topology"
	"github.com/LeeDigitalWorks/plsync/pkg/utils"
)

var topologyCmd = &cobra.Command{
	Use:   "topology",
	Short: "Inspect the declared topology without contacting the directory",
}

var topologyShowCmd = &cobra.Command{
	Use:   "show [site|all]",
	Short: "Print the nodes and slices of the declared topology",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runTopologyShow,
}

var topologyValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the declaration file and report every error found",
	Args:  cobra.NoArgs,
	RunE:  runTopologyValidate,
}

var topologyTargetsCmd = &cobra.Command{
	Use:   "targets [site|all]",
	Short: "Print one line per node by expanding a {{name}} template",
	Long: `Print one line per node by expanding --template.

Node placeholders: {{hostname}}, {{name}}, {{site}}, {{ipv4}}, {{ipv6}},
{{nodegroup}}, {{pcu}}. With --slice the slice's own addresses on the node
are available as {{slice}}, {{slice_ipv4}} and {{slice_ipv6}}.
Placeholders without a value are printed unchanged.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTopologyTargets,
}

func init() {
	rootCmd.AddCommand(topologyCmd)
	topologyCmd.AddCommand(topologyShowCmd, topologyValidateCmd, topologyTargetsCmd)

	rootCmd.PersistentFlags().String("topology", "topology.yaml", "Topology declaration file")
	viper.BindPFlag("topology", rootCmd.PersistentFlags().Lookup("topology"))

	f := topologyTargetsCmd.Flags()
	f.String("template", "{{hostname}}", "Line template")
	f.String("slice", "", "Slice whose addresses fill the slice placeholders")
}

func loadTopology(fl *FlagLoader) (*topology.Topology, error) {
	return topology.Load(utils.ResolvePath(fl.String("topology")))
}

func siteArg(args []string) string {
	if len(args) == 0 {
		return "all"
	}
	return args[0]
}

func runTopologyShow(cmd *cobra.Command, args []string) error {
	topo, err := loadTopology(NewFlagLoader(cmd))
	if err != nil {
		return err
	}
	sites, err := topo.SelectSites(siteArg(args))
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	var rows [][]string
	nodes, v6 := 0, 0
	hosts := make(map[string]bool)
	for _, s := range sites {
		for _, n := range s.Nodes() {
			nodes++
			hosts[n.Hostname] = true
			ipv6 := "-"
			if n.IPv6Enabled() {
				v6++
				ipv6 = n.IPv6Addr()
			}
			rows = append(rows, []string{n.Hostname, n.Interface().IP.String(), ipv6, n.NodeGroup, n.PCU.Hostname})
		}
	}
	renderTable(out, []string{"HOSTNAME", "IPV4", "IPV6", "NODEGROUP", "PCU"}, rows)

	rows = rows[:0]
	for _, s := range topo.Slices {
		index := "-"
		if s.Index != nil {
			index = strconv.Itoa(*s.Index)
		}
		attrs := make([]string, 0, len(s.Attrs))
		for _, a := range s.Attrs {
			// Host attributes are listed only for the hosts shown above.
			if a.Scope == topology.ScopeHost && !hosts[a.Target] {
				continue
			}
			attrs = append(attrs, a.String())
		}
		rows = append(rows, []string{s.Name, index, s.IPv6Mode.String(), strconv.Itoa(len(s.Users)), strings.Join(attrs, " ")})
	}
	fmt.Fprintln(out)
	renderTable(out, []string{"SLICE", "INDEX", "IPV6", "USERS", "ATTRIBUTES"}, rows)

	fmt.Fprintf(out, "\n%s sites, %s nodes (%s with IPv6), %s slices\n",
		humanize.Comma(int64(len(sites))), humanize.Comma(int64(nodes)),
		humanize.Comma(int64(v6)), humanize.Comma(int64(len(topo.Slices))))
	return nil
}

func renderTable(w io.Writer, header []string, rows [][]string) {
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetBorder(false)
	table.SetHeaderLine(false)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeader(header)
	table.AppendBulk(rows)
	table.Render()
}

func runTopologyValidate(cmd *cobra.Command, args []string) error {
	topo, err := loadTopology(NewFlagLoader(cmd))
	if err != nil {
		return err
	}
	nodes := 0
	for _, s := range topo.Sites {
		nodes += len(s.Nodes())
	}
	fmt.Fprintf(cmd.OutOrStdout(), "ok: %d sites, %d nodes, %d slices\n", len(topo.Sites), nodes, len(topo.Slices))
	return nil
}

func runTopologyTargets(cmd *cobra.Command, args []string) error {
	fl := NewFlagLoader(cmd)
	topo, err := loadTopology(fl)
	if err != nil {
		return err
	}
	sites, err := topo.SelectSites(siteArg(args))
	if err != nil {
		return err
	}
	tmplText, _ := cmd.Flags().GetString("template")
	sliceName, _ := cmd.Flags().GetString("slice")

	var slice *topology.Slice
	if sliceName != "" {
		s, ok := topo.Slice(sliceName)
		if !ok {
			return fmt.Errorf("no slice named %q", sliceName)
		}
		slice = s
	}

	tmpl := template.New(tmplText)
	out := cmd.OutOrStdout()
	for _, s := range sites {
		for _, n := range s.Nodes() {
			fmt.Fprintln(out, tmpl.SafeSubstitute(targetVars(n, slice)))
		}
	}
	return nil
}

// targetVars returns the placeholder values for node. IPv6 placeholders
// are omitted when the node or slice has no IPv6 address.
func targetVars(n *topology.Node, slice *topology.Slice) map[string]string {
	vars := map[string]string{
		"hostname":  n.Hostname,
		"name":      n.ShortName(),
		"site":      n.Site().Name,
		"ipv4":      n.Interface().IP.String(),
		"nodegroup": n.NodeGroup,
		"pcu":       n.PCU.Hostname,
	}
	if n.IPv6Enabled() {
		vars["ipv6"] = n.IPv6Addr()
	}
	if slice == nil {
		return vars
	}
	vars["slice"] = slice.Name
	if attr := n.InterfaceAttr(slice); attr != nil {
		v4, v6, _ := strings.Cut(attr.Value, ",")
		vars["slice_ipv4"] = v4
		if v6 != "" {
			vars["slice_ipv6"] = v6
		}
	}
	return vars
}
