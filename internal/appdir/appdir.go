// Package appdir resolves the on-disk locations the application reads
// and writes to: the database file, segment audio directory, and local
// model directory, all rooted under a single per-user directory.
package appdir

import (
	"fmt"
	"os"
	"path/filepath"
)

const dirName = ".voicetypeless"

// Root returns the per-user application directory, creating it if
// necessary.
func Root() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	dir := filepath.Join(homeDir, dirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create app directory: %w", err)
	}
	return dir, nil
}

// DatabasePath returns the path to the sqlite database file.
func DatabasePath() (string, error) {
	root, err := Root()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, "voicetypeless.db"), nil
}

// SegmentDir returns the directory finalized VAD segments are written
// to, creating it if necessary.
func SegmentDir() (string, error) {
	root, err := Root()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(root, "segments")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create segment directory: %w", err)
	}
	return dir, nil
}

// ModelDir returns the directory local STT models are expected to live
// in, creating it if necessary.
func ModelDir() (string, error) {
	root, err := Root()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(root, "models")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create model directory: %w", err)
	}
	return dir, nil
}
