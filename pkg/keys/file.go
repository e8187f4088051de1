// Package keys resolves provider API keys for a user from the per-user
// store, the host key file and the environment.
package keys

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"aichat/pkg/ai"
)

// StoredKey is one provider key in the key file.
type StoredKey struct {
	Provider  ai.ProviderID `json:"provider"`
	APIKey    string        `json:"api_key"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// keyFile is the on-disk format of the key file.
type keyFile struct {
	Keys map[ai.ProviderID]StoredKey `json:"keys"`
}

// FileStore keeps host-wide provider keys in a JSON file readable only by
// its owner. Keys in it apply to every user.
type FileStore struct {
	path string
	mu   sync.RWMutex
	now  func() time.Time
}

// NewFileStore creates a FileStore at path. The file is created on the
// first Set.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, now: time.Now}
}

// Path returns the location of the key file.
func (s *FileStore) Path() string {
	return s.path
}

// Set stores the key for a provider, replacing any previous one.
func (s *FileStore) Set(provider ai.ProviderID, apiKey string) error {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return fmt.Errorf("empty api key for provider %s", provider)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	store, err := s.load()
	if err != nil {
		return err
	}
	store.Keys[provider] = StoredKey{Provider: provider, APIKey: apiKey, UpdatedAt: s.now().UTC()}

	slog.Debug("keys_file_set", "provider", provider, "path", s.path)
	return s.save(store)
}

// Delete removes the key for a provider. Missing keys are not an error.
func (s *FileStore) Delete(provider ai.ProviderID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	store, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := store.Keys[provider]; !ok {
		return nil
	}
	delete(store.Keys, provider)

	slog.Debug("keys_file_delete", "provider", provider, "path", s.path)
	return s.save(store)
}

// Providers lists the providers with a stored key, sorted.
func (s *FileStore) Providers() ([]ai.ProviderID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	store, err := s.load()
	if err != nil {
		return nil, err
	}
	out := make([]ai.ProviderID, 0, len(store.Keys))
	for p := range store.Keys {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// GetAPIKeys returns every stored key. userID is ignored.
func (s *FileStore) GetAPIKeys(_ context.Context, _ string) (map[ai.ProviderID]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	store, err := s.load()
	if err != nil {
		return nil, err
	}
	out := make(map[ai.ProviderID]string, len(store.Keys))
	for p, k := range store.Keys {
		out[p] = k.APIKey
	}
	return out, nil
}

func (s *FileStore) load() (*keyFile, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &keyFile{Keys: make(map[ai.ProviderID]StoredKey)}, nil
		}
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	var store keyFile
	if err := json.Unmarshal(data, &store); err != nil {
		return nil, fmt.Errorf("failed to parse key file: %w", err)
	}
	if store.Keys == nil {
		store.Keys = make(map[ai.ProviderID]StoredKey)
	}
	return &store, nil
}

func (s *FileStore) save(store *keyFile) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("failed to create key directory: %w", err)
	}

	data, err := json.MarshalIndent(store, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal keys: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write key file: %w", err)
	}
	return nil
}
