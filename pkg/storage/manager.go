package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Manager persists downloaded images under a single output directory.
// Same-named files are overwritten silently; there is no deduplication
// beyond the filename itself.
type Manager struct {
	outputDir string
}

// NewManager creates a storage manager, creating the output directory on
// demand
func NewManager(outputDir string) (*Manager, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	return &Manager{outputDir: outputDir}, nil
}

// SaveFile writes data to {outputDir}/{filename} atomically: the bytes land
// in a temp file first and are renamed into place so a crash never leaves a
// half-written image
func (m *Manager) SaveFile(filename string, data []byte) (string, error) {
	path := filepath.Join(m.outputDir, filename)

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write temporary file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return "", fmt.Errorf("failed to rename temporary file: %w", err)
	}

	return path, nil
}

// SetModTime stamps the file's access and modification times. Best effort:
// the caller ignores the returned error.
func (m *Manager) SetModTime(filename string, t time.Time) error {
	path := filepath.Join(m.outputDir, filename)
	return os.Chtimes(path, t, t)
}

// OutputDir returns the output directory path
func (m *Manager) OutputDir() string {
	return m.outputDir
}
