// Copyright 2025 PLSync Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// ReadCache reads a token cache of "url token" lines. A missing file is an
// empty cache.
func ReadCache(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session cache: %w", err)
	}
	return ParseCache(data)
}

// ParseCache parses token cache contents. Blank lines are skipped; any
// other line must hold exactly two fields.
func ParseCache(data []byte) (map[string]string, error) {
	tokens := map[string]string{}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	line := 0
	for scanner.Scan() {
		line++
		fields := strings.Fields(scanner.Text())
		switch len(fields) {
		case 0:
			continue
		case 2:
			tokens[fields[0]] = fields[1]
		default:
			return nil, fmt.Errorf("session cache line %d: want \"url token\", got %d fields", line, len(fields))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan session cache: %w", err)
	}
	return tokens, nil
}

// WriteCache replaces the cache at path, creating its directory if needed.
// Lines are sorted by url.
func WriteCache(path string, tokens map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create session cache directory: %w", err)
	}
	urls := make([]string, 0, len(tokens))
	for u := range tokens {
		urls = append(urls, u)
	}
	slices.Sort(urls)

	var buf bytes.Buffer
	for _, u := range urls {
		fmt.Fprintf(&buf, "%s %s\n", u, tokens[u])
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("failed to write session cache: %w", err)
	}
	return nil
}
