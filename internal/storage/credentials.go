// Package storage persists machine-local client state under the Chatty home
// directory. Its only durable slot today is the bearer credential.
package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Credentials is the durable slot holding the bearer credential. Absence
// means "no session"; it is a normal state, never an error.
//
// Reads are concurrent, writes are exclusive. Only Set and Clear mutate the
// underlying file.
type Credentials struct {
	path string
	mu   sync.RWMutex
}

// NewCredentials creates a store backed by the file at path.
func NewCredentials(path string) *Credentials {
	return &Credentials{path: path}
}

// Set persists the credential, overwriting any previous value. The token
// format is opaque to the store.
func (c *Credentials) Set(token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(c.path), 0o700); err != nil {
		return fmt.Errorf("failed to create credential directory: %w", err)
	}
	if err := os.WriteFile(c.path, []byte(token), 0o600); err != nil {
		return fmt.Errorf("failed to write credential: %w", err)
	}
	return nil
}

// Get returns the stored credential. A missing or empty file reports absence.
func (c *Credentials) Get() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	data, err := os.ReadFile(c.path)
	if err != nil {
		return "", false
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", false
	}
	return token, true
}

// Clear removes any stored credential. Clearing an empty store is a no-op.
func (c *Credentials) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.Remove(c.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove credential: %w", err)
	}
	return nil
}

// IsPresent reports whether a credential is currently stored.
func (c *Credentials) IsPresent() bool {
	_, ok := c.Get()
	return ok
}
