// Copyright 2025 PLSync Authors
// SPDX-License-Identifier: Apache-2.0

// Package session obtains directory session tokens. Tokens are cached per
// endpoint in a small text file so later runs skip the password exchange.
package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/LeeDigitalWorks/plsync/pkg/directory"
	"github.com/LeeDigitalWorks/plsync/pkg/logger"
)

// DefaultTTL is the lifetime requested for new sessions.
const DefaultTTL = 30 * 24 * time.Hour

// DefaultCachePath returns ~/.ssh/mlab_session.
func DefaultCachePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".ssh", "mlab_session")
	}
	return filepath.Join(home, ".ssh", "mlab_session")
}

// Authenticator checks and issues session tokens.
type Authenticator interface {
	AuthCheck(ctx context.Context, token string) error
	NewSession(ctx context.Context, username, password string, ttl time.Duration) (string, error)
}

// Config configures a Manager.
type Config struct {
	// URL keys the token cache.
	URL string
	// CachePath defaults to DefaultCachePath.
	CachePath string
	// CredentialsPath names a TOML file with a [MyPLC] table. When empty
	// the Prompt is used.
	CredentialsPath string
	// TTL defaults to DefaultTTL.
	TTL time.Duration
	// Prompt defaults to TerminalPrompt.
	Prompt Prompter
}

// Manager hands out a valid session token for one endpoint.
type Manager struct {
	cfg  Config
	auth Authenticator
}

// NewManager returns a Manager that validates tokens through auth.
func NewManager(auth Authenticator, cfg Config) *Manager {
	if cfg.CachePath == "" {
		cfg.CachePath = DefaultCachePath()
	}
	if cfg.TTL == 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Prompt == nil {
		cfg.Prompt = TerminalPrompt
	}
	return &Manager{cfg: cfg, auth: auth}
}

// GetSession returns the cached token for the endpoint when it still
// passes AuthCheck. A token rejected with an authorization fault is
// replaced by a new session; any other AuthCheck failure is returned.
func (m *Manager) GetSession(ctx context.Context) (string, error) {
	tokens, err := ReadCache(m.cfg.CachePath)
	if err != nil {
		return "", err
	}
	if token, ok := tokens[m.cfg.URL]; ok {
		err := m.auth.AuthCheck(ctx, token)
		if err == nil {
			logger.Debug().Str("url", m.cfg.URL).Msg("using cached session")
			return token, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if !directory.IsAuthorization(err) {
			return "", fmt.Errorf("failed to check cached session: %w", err)
		}
		logger.Info().Err(err).Str("url", m.cfg.URL).Msg("cached session rejected, refreshing")
	}
	return m.refresh(ctx, tokens)
}

// Refresh opens a new session regardless of the cache.
func (m *Manager) Refresh(ctx context.Context) (string, error) {
	tokens, err := ReadCache(m.cfg.CachePath)
	if err != nil {
		return "", err
	}
	return m.refresh(ctx, tokens)
}

func (m *Manager) refresh(ctx context.Context, tokens map[string]string) (string, error) {
	creds, err := m.credentials(ctx)
	if err != nil {
		return "", err
	}
	token, err := m.auth.NewSession(ctx, creds.Username, creds.Password, m.cfg.TTL)
	if err != nil {
		return "", fmt.Errorf("failed to open session for %s: %w", creds.Username, err)
	}

	tokens[m.cfg.URL] = token
	if err := WriteCache(m.cfg.CachePath, tokens); err != nil {
		return "", err
	}
	if err := m.auth.AuthCheck(ctx, token); err != nil {
		return "", fmt.Errorf("new session failed auth check: %w", err)
	}

	logger.Info().
		Str("url", m.cfg.URL).
		Str("username", creds.Username).
		Str("expires", humanize.Time(time.Now().Add(m.cfg.TTL))).
		Msg("opened directory session")
	return token, nil
}

func (m *Manager) credentials(ctx context.Context) (Credentials, error) {
	if m.cfg.CredentialsPath != "" {
		return LoadCredentials(m.cfg.CredentialsPath)
	}
	return m.cfg.Prompt(ctx, m.cfg.URL)
}
