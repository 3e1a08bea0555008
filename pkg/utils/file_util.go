// Copyright 2025 PLSync Authors
// SPDX-License-Identifier: Apache-2.0

package utils

import (
	"os"
	"path/filepath"
	"strings"
)

// ResolvePath expands a leading ~ and environment variables in path and
// makes it absolute. Empty paths are returned unchanged.
func ResolvePath(path string) string {
	if path == "" {
		return path
	}

	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
		}
	}

	path = os.ExpandEnv(path)
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}

	return path
}
