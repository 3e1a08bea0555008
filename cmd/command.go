// Copyright 2025 PLSync Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/LeeDigitalWorks/plsync/pkg/logger"
	"github.com/LeeDigitalWorks/plsync/pkg/utils"
)

var rootCmd = &cobra.Command{
	Use:   "plsync",
	Short: "plsync - converge a PlanetLab directory toward the M-Lab topology",
	Long: `plsync reads the declared M-Lab topology (sites, nodes, slices) and
issues the directory calls needed to make PLCAPI match it. Every run looks
records up first and only adds or updates what differs, so rerunning after
an interruption is always safe.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: initialize,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&utils.ConfigurationFileDirectory, "config_dir", ".", "Directory for configuration files")
	pf.String("log_level", "", "Log level (trace, debug, info, warn, error); defaults to LOG_LEVEL or info")

	viper.BindPFlag("log_level", pf.Lookup("log_level"))
}

// initialize loads plsync.yaml and applies the log level before any
// subcommand runs.
func initialize(cmd *cobra.Command, args []string) error {
	utils.LoadConfiguration("plsync", false)
	return logger.SetLevelString(NewFlagLoader(cmd).String("log_level"))
}

// Execute runs the command line. SIGINT and SIGTERM cancel the run
// between directory calls.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		logger.Error().Err(err).Msg("plsync failed")
		os.Exit(1)
	}
}
