package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Kocoro-lab/Shannon/go/research/internal/circuitbreaker"
	"github.com/go-redis/redis/v8"
)

const mirrorKeyPrefix = "sources:"

// RedisMirror keeps source lists in Redis so other replicas can serve them
type RedisMirror struct {
	rw  *circuitbreaker.RedisWrapper
	ttl time.Duration
}

// NewRedisMirror wraps rw; ttl <= 0 stores keys without expiry
func NewRedisMirror(rw *circuitbreaker.RedisWrapper, ttl time.Duration) *RedisMirror {
	return &RedisMirror{rw: rw, ttl: ttl}
}

func (m *RedisMirror) key(handle string) string { return mirrorKeyPrefix + handle }

// Store writes items as JSON under sources:<handle>
func (m *RedisMirror) Store(ctx context.Context, handle string, items []Item) error {
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("marshal sources: %w", err)
	}
	ttl := m.ttl
	if ttl < 0 {
		ttl = 0
	}
	if err := m.rw.Set(ctx, m.key(handle), data, ttl).Err(); err != nil {
		return fmt.Errorf("mirror sources: %w", err)
	}
	return nil
}

// Load reads the list for handle; ok is false when the key does not exist
func (m *RedisMirror) Load(ctx context.Context, handle string) ([]Item, bool, error) {
	raw, err := m.rw.Get(ctx, m.key(handle)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load mirrored sources: %w", err)
	}
	var items []Item
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, false, fmt.Errorf("decode mirrored sources: %w", err)
	}
	if items == nil {
		items = []Item{}
	}
	return items, true, nil
}

// Ping checks the mirror connection
func (m *RedisMirror) Ping(ctx context.Context) error {
	return m.rw.Ping(ctx).Err()
}
