// Copyright 2025 PLSync Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/LeeDigitalWorks/plsync/pkg/debug"
	"github.com/LeeDigitalWorks/plsync/pkg/logger"
	"github.com/LeeDigitalWorks/plsync/pkg/reconcile"
	"github.com/LeeDigitalWorks/plsync/pkg/topology"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Converge the directory toward the declared topology",
	Long: `Converge the directory toward the declared topology.

Sites, location tags, node tags, slice tags and slice expiration are always
synced. Everything that creates records in bulk is opt-in through the step
flags; --allsteps enables all of them except --createusers and
--createslice. With --dryrun every lookup is still issued but nothing is
changed.`,
}

var syncSiteCmd = &cobra.Command{
	Use:   "site <name|all>",
	Short: "Sync sites, their operators, nodes, PCUs and interfaces",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSync(cmd, func(ctx context.Context, r *reconcile.Reconciler, topo *topology.Topology) error {
			sites, err := topo.SelectSites(args[0])
			if err != nil {
				return err
			}
			return r.SyncSites(ctx, sites)
		})
	},
}

var syncSliceCmd = &cobra.Command{
	Use:   "slice <name|all>",
	Short: "Sync slices, their attributes, users and node bindings",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSync(cmd, func(ctx context.Context, r *reconcile.Reconciler, topo *topology.Topology) error {
			slices, err := topo.SelectSlices(args[0])
			if err != nil {
				return err
			}
			return r.SyncSlices(ctx, slices)
		})
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
	syncCmd.AddCommand(syncSiteCmd, syncSliceCmd)

	pf := syncCmd.PersistentFlags()
	pf.String("on", "", "Limit the sync to one hostname, short name (mlab1.abc01) or site name")
	pf.Bool("dryrun", false, "Issue lookups only and log the changes that would be made")
	pf.Bool("allsteps", false, "Enable every step except --createusers and --createslice")
	pf.Bool("addusers", false, "Add declared operators to sites and users to slices")
	pf.Bool("createusers", false, "Create and enable declared persons that have no account")
	pf.Bool("addnodes", false, "Create declared nodes that do not exist")
	pf.Bool("addinterfaces", false, "Sync the primary and secondary interfaces of every node")
	pf.Bool("addwhitelist", false, "Whitelist and assign slices on their nodes")
	pf.Bool("addsliceips", false, "Bind slot addresses to slices with ip_addresses tags")
	pf.Bool("createslice", false, "Create declared slices that do not exist")
	pf.String("pushgateway_url", "", "Prometheus Pushgateway to report run metrics to")

	viper.BindPFlags(pf)
}

type syncFunc func(ctx context.Context, r *reconcile.Reconciler, topo *topology.Topology) error

func runSync(cmd *cobra.Command, sync syncFunc) error {
	fl := NewFlagLoader(cmd)
	ctx := cmd.Context()

	topo, err := loadTopology(fl)
	if err != nil {
		return err
	}
	if target := fl.String("on"); target != "" && target != "all" && !topo.HasTarget(target) {
		return fmt.Errorf("--on %q matches no declared host or site", target)
	}

	client, err := openDirectory(ctx, fl)
	if err != nil {
		return err
	}
	defer client.Close()

	cfg := reconcile.Config{
		Target:          fl.String("on"),
		Steps:           fl.Steps(),
		DryRun:          fl.Bool("dryrun"),
		MultiValuedTags: topo.Policy.MultiValuedTags,
	}
	logger.Info().
		Str("url", client.URL()).
		Str("target", cfg.Target).
		Bool("dryrun", cfg.DryRun).
		Interface("steps", cfg.Steps).
		Msg("Starting sync")

	r := reconcile.New(client, cfg)
	syncErr := sync(ctx, r, topo)
	finishSync(ctx, fl, r.Report())
	return syncErr
}

// finishSync logs the run report and pushes metrics when a Pushgateway is
// configured. Push failures are logged and do not fail the run.
func finishSync(ctx context.Context, fl *FlagLoader, report *reconcile.Report) {
	logger.Info().
		Bool("dryrun", report.DryRun).
		Dur("took", report.Duration).
		Str("started", humanize.Time(report.Started)).
		Int("changes", report.Changes()).
		Int("confirmed", report.Total(reconcile.ActionConfirm)).
		Int("skipped", report.Total(reconcile.ActionSkip)).
		Str("report", report.String()).
		Msg("Sync finished")

	url := fl.String("pushgateway_url")
	if url == "" {
		return
	}
	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := debug.Push(pushCtx, debug.PushConfig{URL: url, Job: "plsync"}); err != nil {
		logger.Warn().Err(err).Msg("Failed to push metrics")
	}
}
