// Copyright 2025 PLSync Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/LeeDigitalWorks/plsync/pkg/directory"
	"github.com/LeeDigitalWorks/plsync/pkg/logger"
	"github.com/LeeDigitalWorks/plsync/pkg/session"
	"github.com/LeeDigitalWorks/plsync/pkg/utils"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage the cached directory session",
}

var sessionRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Open a new directory session and cache its token",
	Long: `Open a new session with the credentials from --plcconfig, or by
prompting on the terminal, and store its token in --session_file. The
previous token for the same URL is replaced.`,
	Args: cobra.NoArgs,
	RunE: runSessionRefresh,
}

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionRefreshCmd)

	pf := rootCmd.PersistentFlags()
	pf.String("url", directory.DefaultURL, "PLCAPI endpoint")
	pf.String("plcconfig", "", "TOML file with a [MyPLC] username and password; prompts when empty")
	pf.String("session_file", session.DefaultCachePath(), "File caching session tokens per URL")
	pf.Duration("session_ttl", session.DefaultTTL, "Lifetime requested for new sessions")
	pf.Float64("rpc_qps", 0, "Maximum directory calls per second; 0 disables pacing")
	pf.Duration("rpc_timeout", 0, "Timeout for each directory call; 0 selects 5 minutes")

	for _, name := range []string{"url", "plcconfig", "session_file", "session_ttl", "rpc_qps", "rpc_timeout"} {
		viper.BindPFlag(name, pf.Lookup(name))
	}
}

// newPLCClient returns an unauthenticated client for the configured URL.
func newPLCClient(fl *FlagLoader) (*directory.PLCClient, error) {
	return directory.NewPLCClient(directory.PLCConfig{
		URL:     fl.String("url"),
		QPS:     fl.Float64("rpc_qps"),
		Timeout: fl.Duration("rpc_timeout"),
	})
}

func newSessionManager(fl *FlagLoader, client *directory.PLCClient) *session.Manager {
	return session.NewManager(client, session.Config{
		URL:             client.URL(),
		CachePath:       utils.ResolvePath(fl.String("session_file")),
		CredentialsPath: utils.ResolvePath(fl.String("plcconfig")),
		TTL:             fl.Duration("session_ttl"),
	})
}

// openDirectory returns a client authenticated with a valid session,
// refreshing the cached token when needed. The caller closes the client.
func openDirectory(ctx context.Context, fl *FlagLoader) (*directory.PLCClient, error) {
	client, err := newPLCClient(fl)
	if err != nil {
		return nil, err
	}
	token, err := newSessionManager(fl, client).GetSession(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to get directory session: %w", err)
	}
	return client.WithSession(token), nil
}

func runSessionRefresh(cmd *cobra.Command, args []string) error {
	fl := NewFlagLoader(cmd)
	client, err := newPLCClient(fl)
	if err != nil {
		return err
	}
	defer client.Close()

	if _, err := newSessionManager(fl, client).Refresh(cmd.Context()); err != nil {
		return err
	}
	logger.Info().Str("session_file", utils.ResolvePath(fl.String("session_file"))).Msg("Session refreshed")
	return nil
}
