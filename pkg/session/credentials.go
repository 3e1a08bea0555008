// Copyright 2025 PLSync Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"golang.org/x/term"
)

// ErrNoTerminal is returned by TerminalPrompt when stdin is not a terminal.
var ErrNoTerminal = errors.New("no terminal available to prompt for credentials")

// Credentials authenticate a new session.
type Credentials struct {
	Username string `toml:"username"`
	Password string `toml:"password"`
}

func (c Credentials) valid() bool {
	return c.Username != "" && c.Password != ""
}

type credentialsFile struct {
	MyPLC Credentials `toml:"MyPLC"`
}

// LoadCredentials reads the [MyPLC] table of a TOML credentials file.
func LoadCredentials(path string) (Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Credentials{}, fmt.Errorf("failed to read credentials: %w", err)
	}
	var f credentialsFile
	if err := toml.Unmarshal(data, &f); err != nil {
		return Credentials{}, fmt.Errorf("failed to parse credentials %s: %w", path, err)
	}
	if !f.MyPLC.valid() {
		return Credentials{}, fmt.Errorf("credentials %s: [MyPLC] needs username and password", path)
	}
	return f.MyPLC, nil
}

// Prompter asks the operator for credentials.
type Prompter func(ctx context.Context, url string) (Credentials, error)

// TerminalPrompt reads a username from stdin and the password without echo.
func TerminalPrompt(ctx context.Context, url string) (Credentials, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return Credentials{}, ErrNoTerminal
	}
	if err := ctx.Err(); err != nil {
		return Credentials{}, err
	}

	fmt.Fprintf(os.Stderr, "Login for %s\nUsername: ", url)
	username, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return Credentials{}, fmt.Errorf("failed to read username: %w", err)
	}
	fmt.Fprint(os.Stderr, "Password: ")
	password, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return Credentials{}, fmt.Errorf("failed to read password: %w", err)
	}

	c := Credentials{Username: strings.TrimSpace(username), Password: string(password)}
	if !c.valid() {
		return Credentials{}, errors.New("username and password are required")
	}
	return c, nil
}
