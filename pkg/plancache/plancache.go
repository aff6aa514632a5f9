// Package plancache caches validated spec.Spec values by their content hash,
// so a later compile of the same spec can skip semantic validation.
// It is purely a performance optimization: a cache miss, or no cache at
// all, never changes the result of spec.Compile — only how often it's
// recomputed.
package plancache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/kanoniv/kanoniv/pkg/canonicalize"
	"github.com/kanoniv/kanoniv/pkg/spec"
	"github.com/redis/go-redis/v9"
)

// Cache is implemented by every plan cache backend.
type Cache interface {
	Get(ctx context.Context, hash string) (*spec.Spec, bool, error)
	Put(ctx context.Context, hash string, s *spec.Spec) error
}

// Memory is an in-process cache, the default when no external cache is
// configured.
type Memory struct {
	mu    sync.RWMutex
	specs map[string]*spec.Spec
}

func NewMemory() *Memory {
	return &Memory{specs: make(map[string]*spec.Spec)}
}

func (m *Memory) Get(_ context.Context, hash string) (*spec.Spec, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.specs[hash]
	return s, ok, nil
}

func (m *Memory) Put(_ context.Context, hash string, s *spec.Spec) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.specs[hash] = s
	return nil
}

// Redis is a Redis-backed cache for sharing compiled plans across
// processes. Entries expire after ttl so a stale cache self-heals even if
// never explicitly invalidated.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis connects to addr/db with the given TTL for cached entries.
func NewRedis(addr, password string, db int, ttl time.Duration) *Redis {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	return &Redis{client: client, ttl: ttl}
}

func (r *Redis) key(hash string) string { return fmt.Sprintf("kanoniv:plan:%s", hash) }

func (r *Redis) Get(ctx context.Context, hash string) (*spec.Spec, bool, error) {
	raw, err := r.client.Get(ctx, r.key(hash)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("plancache: redis get: %w", err)
	}
	var s spec.Spec
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, false, fmt.Errorf("plancache: decode cached spec: %w", err)
	}
	return &s, true, nil
}

func (r *Redis) Put(ctx context.Context, hash string, s *spec.Spec) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("plancache: encode spec: %w", err)
	}
	if err := r.client.Set(ctx, r.key(hash), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("plancache: redis set: %w", err)
	}
	return nil
}

// CompileCached is spec.Compile fronted by a cache keyed on the spec's
// content hash: if a byte-identical spec was already validated and cached
// under this hash, CompileCached skips validateSemantics and goes straight
// to spec.CompileTrusted. A cache miss, or no cache at all, falls back to
// the full spec.Compile path and populates the cache for next time.
//
// The content hash is computed before the cache lookup, so a cache miss
// still produces byte-identical output to an uncached Compile call.
func CompileCached(ctx context.Context, cache Cache, s *spec.Spec) (*spec.Plan, error) {
	hash, err := canonicalize.CanonicalHash(s)
	if err != nil {
		return nil, err
	}

	if cache != nil {
		if cached, found, getErr := cache.Get(ctx, hash); getErr == nil && found {
			return spec.CompileTrusted(cached)
		}
	}

	plan, err := spec.Compile(s)
	if err != nil {
		return nil, err
	}
	if cache != nil {
		_ = cache.Put(ctx, plan.Hash, s)
	}
	return plan, nil
}
