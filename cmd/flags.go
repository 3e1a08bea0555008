// Copyright 2025 PLSync Authors
// SPDX-License-Identifier: Apache-2.0

// Package cmd provides the plsync command line.
// This file contains reusable helpers for configuration loading with CLI flag precedence.
package cmd

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/LeeDigitalWorks/plsync/pkg/reconcile"
)

// FlagLoader provides methods for loading configuration values with CLI flag precedence.
// When a CLI flag is explicitly set, it takes precedence over config file and env vars.
// Otherwise, viper's standard priority applies: env > config file > default.
type FlagLoader struct {
	cmd *cobra.Command
}

// NewFlagLoader creates a FlagLoader for the given cobra command.
func NewFlagLoader(cmd *cobra.Command) *FlagLoader {
	return &FlagLoader{cmd: cmd}
}

// String returns CLI flag value if explicitly set, otherwise viper value.
func (f *FlagLoader) String(flagName string) string {
	if f.cmd.Flags().Changed(flagName) {
		val, _ := f.cmd.Flags().GetString(flagName)
		return val
	}
	return viper.GetString(flagName)
}

// Bool returns CLI flag value if explicitly set, otherwise viper value.
func (f *FlagLoader) Bool(flagName string) bool {
	if f.cmd.Flags().Changed(flagName) {
		val, _ := f.cmd.Flags().GetBool(flagName)
		return val
	}
	return viper.GetBool(flagName)
}

// Float64 returns CLI flag value if explicitly set, otherwise viper value.
func (f *FlagLoader) Float64(flagName string) float64 {
	if f.cmd.Flags().Changed(flagName) {
		val, _ := f.cmd.Flags().GetFloat64(flagName)
		return val
	}
	return viper.GetFloat64(flagName)
}

// Duration returns CLI flag value if explicitly set, otherwise viper value.
func (f *FlagLoader) Duration(flagName string) time.Duration {
	if f.cmd.Flags().Changed(flagName) {
		val, _ := f.cmd.Flags().GetDuration(flagName)
		return val
	}
	return viper.GetDuration(flagName)
}

// Steps returns the enabled sync steps. --allsteps turns on every step
// that does not create users or slices.
func (f *FlagLoader) Steps() reconcile.Steps {
	steps := reconcile.Steps{
		AddUsers:      f.Bool("addusers"),
		CreateUsers:   f.Bool("createusers"),
		AddNodes:      f.Bool("addnodes"),
		AddInterfaces: f.Bool("addinterfaces"),
		AddWhitelist:  f.Bool("addwhitelist"),
		AddSliceIPs:   f.Bool("addsliceips"),
		CreateSlice:   f.Bool("createslice"),
	}
	if f.Bool("allsteps") {
		all := reconcile.AllSteps()
		all.CreateUsers = steps.CreateUsers
		all.CreateSlice = steps.CreateSlice
		steps = all
	}
	return steps
}
