package util

import (
	"fmt"
	"os"
	"path/filepath"
)

// AbsolutePath resolves a path relative to the current working directory.
// Absolute inputs pass through unchanged.
func AbsolutePath(relativePath string) (string, error) {
	if filepath.IsAbs(relativePath) {
		return relativePath, nil
	}
	root, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to determine working directory: %w", err)
	}
	return filepath.Join(root, relativePath), nil
}
