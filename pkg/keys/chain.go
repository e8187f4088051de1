package keys

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"aichat/pkg/ai"
	"aichat/pkg/config"
)

// Source is anything that can list a user's provider keys.
type Source interface {
	GetAPIKeys(ctx context.Context, userID string) (map[ai.ProviderID]string, error)
}

// EnvStore reads fallback keys from the environment, see config.EnvKeyVars.
type EnvStore struct {
	lookup func(string) (string, bool)
}

// NewEnvStore creates an EnvStore over the process environment.
func NewEnvStore() *EnvStore {
	return &EnvStore{lookup: os.LookupEnv}
}

// GetAPIKeys returns the keys set in the environment. userID is ignored.
func (s *EnvStore) GetAPIKeys(_ context.Context, _ string) (map[ai.ProviderID]string, error) {
	out := make(map[ai.ProviderID]string)
	for provider, name := range config.EnvKeyVars {
		if v, ok := s.lookup(name); ok && strings.TrimSpace(v) != "" {
			out[ai.ProviderID(provider)] = strings.TrimSpace(v)
		}
	}
	return out, nil
}

// Chain merges several sources. For each provider the first source with a
// non-empty key wins.
type Chain struct {
	sources []Source
}

// NewChain creates a Chain in priority order. Nil sources are skipped.
func NewChain(sources ...Source) *Chain {
	c := &Chain{}
	for _, s := range sources {
		if s != nil {
			c.sources = append(c.sources, s)
		}
	}
	return c
}

// GetAPIKeys returns the merged keys for userID. A failing source fails the
// lookup so a broken store never silently falls through to other keys.
func (c *Chain) GetAPIKeys(ctx context.Context, userID string) (map[ai.ProviderID]string, error) {
	out := make(map[ai.ProviderID]string)
	for i, s := range c.sources {
		keys, err := s.GetAPIKeys(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("key source %d: %w", i, err)
		}
		for p, k := range keys {
			if _, ok := out[p]; ok || strings.TrimSpace(k) == "" {
				continue
			}
			out[p] = k
		}
	}
	slog.Debug("keys_resolved", "user_id", userID, "providers", len(out))
	return out, nil
}
