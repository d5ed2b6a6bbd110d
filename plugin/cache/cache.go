// Package cache provides a two-layer read-through cache for expensive
// aggregate reads: a fast in-process layer shadowing an optional shared
// (Redis) layer. Values must be JSON-serializable and idempotently
// recomputable; last-writer-wins on concurrent populates is acceptable.
package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

type entry struct {
	value     []byte
	expiresAt time.Time
}

// Tiered is an explicitly constructed, injectable cache instance.
type Tiered struct {
	mu     sync.RWMutex
	local  map[string]entry
	shared Shared

	// localTTL caps the in-process entry lifetime so the local layer stays a
	// shorter-lived shadow of the shared layer.
	localTTL time.Duration

	group singleflight.Group
}

// New creates a Tiered cache over the given shared layer. Pass a NoopShared
// when no shared cache is configured. localTTL <= 0 defaults to 30 seconds.
func New(shared Shared, localTTL time.Duration) *Tiered {
	if shared == nil {
		shared = NoopShared{}
	}
	if localTTL <= 0 {
		localTTL = 30 * time.Second
	}
	return &Tiered{
		local:    make(map[string]entry),
		shared:   shared,
		localTTL: localTTL,
	}
}

// GetOrCompute returns the cached value for key, consulting the local layer,
// then the shared layer, then computeFn. Both layers are populated on a full
// miss; shared-layer write failures are swallowed. A ttl <= 0 means "do not
// cache": any prior entry is removed and computeFn always runs.
func GetOrCompute[T any](ctx context.Context, c *Tiered, key string, ttl time.Duration, computeFn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	if ttl <= 0 {
		c.Invalidate(ctx, key)
		return computeFn(ctx)
	}

	if raw, ok := c.localGet(key); ok {
		var out T
		if err := json.Unmarshal(raw, &out); err == nil {
			return out, nil
		}
		// A corrupt local entry is dropped and recomputed.
		c.localDelete(key)
	}

	raw, err, _ := c.group.Do(key, func() (any, error) {
		if c.shared.Enabled() {
			if b, ok, err := c.shared.Get(ctx, key); err != nil {
				slog.Warn("shared cache read failed", "key", key, "err", err)
			} else if ok {
				var decoded T
				if err := json.Unmarshal(b, &decoded); err != nil {
					// A corrupt shared entry is dropped and recomputed, same
					// as a corrupt local one.
					slog.Warn("corrupt shared cache entry", "key", key, "err", err)
					_ = c.shared.Delete(ctx, key)
				} else {
					c.localSet(key, b, ttl)
					return b, nil
				}
			}
		}

		value, err := computeFn(ctx)
		if err != nil {
			return nil, err
		}
		b, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		c.localSet(key, b, ttl)
		if c.shared.Enabled() {
			if err := c.shared.Set(ctx, key, b, ttl); err != nil {
				slog.Warn("shared cache write failed", "key", key, "err", err)
			}
		}
		return b, nil
	})
	if err != nil {
		return zero, err
	}

	var out T
	if err := json.Unmarshal(raw.([]byte), &out); err != nil {
		return zero, err
	}
	return out, nil
}

// Invalidate removes the in-process entries matching keyOrPrefix (exact key
// plus any key under it) and issues a best-effort delete against the shared
// layer. Used by write paths so later reads are not stale beyond the next
// compute.
func (c *Tiered) Invalidate(ctx context.Context, keyOrPrefix string) {
	c.mu.Lock()
	for k := range c.local {
		if k == keyOrPrefix || strings.HasPrefix(k, keyOrPrefix) {
			delete(c.local, k)
		}
	}
	c.mu.Unlock()

	if c.shared.Enabled() {
		if err := c.shared.Delete(ctx, keyOrPrefix); err != nil {
			slog.Warn("shared cache delete failed", "key", keyOrPrefix, "err", err)
		}
	}
}

func (c *Tiered) localGet(key string) ([]byte, bool) {
	c.mu.RLock()
	e, ok := c.local[key]
	c.mu.RUnlock()
	if !ok || time.Now().After(e.expiresAt) {
		return nil, false
	}
	return e.value, true
}

func (c *Tiered) localSet(key string, value []byte, ttl time.Duration) {
	if ttl > c.localTTL {
		ttl = c.localTTL
	}
	c.mu.Lock()
	c.local[key] = entry{value: value, expiresAt: time.Now().Add(ttl)}
	c.mu.Unlock()
}

func (c *Tiered) localDelete(key string) {
	c.mu.Lock()
	delete(c.local, key)
	c.mu.Unlock()
}
