package session

import (
	"encoding/json"
	"fmt"

	"github.com/zalando/go-keyring"
)

const (
	keyringService = "pzgrab"
	keyringKey     = "session_headers"
)

// HeaderStore persists the opaque session headers in the system keychain so
// a retry run can reuse them without the browser step. The headers remain an
// uninterpreted blob; retried URLs are expected to carry self-contained
// signed parameters, the stored headers are a best-effort supplement.
type HeaderStore struct{}

// NewHeaderStore creates a keychain-backed header store, verifying the
// keyring is usable
func NewHeaderStore() (*HeaderStore, error) {
	testKey := "test_availability"
	if err := keyring.Set(keyringService, testKey, "test"); err != nil {
		return nil, fmt.Errorf("keyring not available: %w", err)
	}
	_ = keyring.Delete(keyringService, testKey)

	return &HeaderStore{}, nil
}

// Store saves headers and referer to the keychain
func (h *HeaderStore) Store(headers map[string]string, referer string) error {
	payload := struct {
		Headers map[string]string `json:"headers"`
		Referer string            `json:"referer"`
	}{Headers: headers, Referer: referer}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal headers: %w", err)
	}

	if err := keyring.Set(keyringService, keyringKey, string(data)); err != nil {
		return fmt.Errorf("failed to store headers in keyring: %w", err)
	}

	return nil
}

// Retrieve loads the stored headers and referer. A missing entry yields an
// empty header map, not an error.
func (h *HeaderStore) Retrieve() (map[string]string, string, error) {
	data, err := keyring.Get(keyringService, keyringKey)
	if err != nil {
		if err == keyring.ErrNotFound {
			return map[string]string{}, "", nil
		}
		return nil, "", fmt.Errorf("failed to read headers from keyring: %w", err)
	}

	var payload struct {
		Headers map[string]string `json:"headers"`
		Referer string            `json:"referer"`
	}
	if err := json.Unmarshal([]byte(data), &payload); err != nil {
		return nil, "", fmt.Errorf("failed to unmarshal stored headers: %w", err)
	}
	if payload.Headers == nil {
		payload.Headers = map[string]string{}
	}

	return payload.Headers, payload.Referer, nil
}

// Clear removes the stored headers
func (h *HeaderStore) Clear() error {
	err := keyring.Delete(keyringService, keyringKey)
	if err != nil && err != keyring.ErrNotFound {
		return fmt.Errorf("failed to clear stored headers: %w", err)
	}
	return nil
}
