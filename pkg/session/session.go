// Package session handles the boundary with the browser-driven URL source:
// a manifest of image URLs plus the opaque headers and referer captured
// alongside them. How the manifest was produced is out of scope here.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Session is one captured gallery session: the URLs to fetch and the
// headers/referer that authorize them. Headers are opaque; nothing in this
// tool interprets them.
type Session struct {
	URLs       []string          `json:"urls"`
	Headers    map[string]string `json:"headers"`
	Referer    string            `json:"referer"`
	CapturedAt time.Time         `json:"captured_at,omitempty"`
}

// Load reads a session manifest from a JSON file
func Load(path string) (*Session, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open session file: %w", err)
	}
	defer f.Close()

	var s Session
	if err := json.NewDecoder(f).Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to decode session file: %w", err)
	}

	if len(s.URLs) == 0 {
		return nil, fmt.Errorf("session file %s contains no URLs", path)
	}
	if s.Headers == nil {
		s.Headers = make(map[string]string)
	}

	return &s, nil
}

// Save writes the session manifest atomically: temp file then rename, so
// an interrupted save never corrupts an existing manifest
func (s *Session) Save(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temporary session file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename session file: %w", err)
	}

	return nil
}
