// Package identity resolves organization members to contact addresses.
package identity

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"costwatch/internal/cache"
	"costwatch/internal/core"
	"costwatch/internal/ports"
)

const (
	DefaultCacheSize = 1024
	DefaultCacheTTL  = 15 * time.Minute
)

// Resolver fronts a ContactReader with an LRU cache. Only successful lookups
// are cached; failures are retried on the next call.
type Resolver struct {
	source ports.ContactReader
	cache  *cache.LRUCache[uuid.UUID, core.Contact]
}

func NewResolver(source ports.ContactReader, size int, ttl time.Duration) *Resolver {
	if size <= 0 {
		size = DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Resolver{
		source: source,
		cache:  cache.NewLRUCache[uuid.UUID, core.Contact](size, ttl),
	}
}

// Cache exposes the underlying cache so it can be registered for sweeping.
func (r *Resolver) Cache() *cache.LRUCache[uuid.UUID, core.Contact] {
	return r.cache
}

// GetContact implements ports.ContactReader
func (r *Resolver) GetContact(ctx context.Context, userID uuid.UUID) (core.Contact, error) {
	if c, ok := r.cache.Get(userID); ok {
		return c, nil
	}

	c, err := r.source.GetContact(ctx, userID)
	if err != nil {
		return core.Contact{}, fmt.Errorf("resolve contact: %w", err)
	}
	c.Email = strings.TrimSpace(c.Email)
	if c.Email == "" {
		return core.Contact{}, fmt.Errorf("resolve contact %s: %w", userID, ports.ErrNotFound)
	}

	r.cache.Set(userID, c)
	slog.DebugContext(ctx, "Contact resolved",
		"component", "identity",
		"user_id", userID)
	return c, nil
}

var _ ports.ContactReader = (*Resolver)(nil)
