package sources

import (
	"container/list"
	"context"
	"sync"

	"github.com/Kocoro-lab/Shannon/go/research/internal/metrics"
	"go.uber.org/zap"
)

// DefaultCacheSize is the number of source lists kept in process
const DefaultCacheSize = 256

// Mirror is an optional second tier shared across processes
type Mirror interface {
	Load(ctx context.Context, handle string) ([]Item, bool, error)
	Store(ctx context.Context, handle string, items []Item) error
}

type entry struct {
	handle string
	items  []Item
}

// Cache maps session handles to source lists with least-recently-used
// eviction by capacity. It never expires entries by time. Mirror I/O
// happens outside the lock.
type Cache struct {
	capacity int
	mirror   Mirror
	logger   *zap.Logger

	mu    sync.Mutex
	ll    *list.List
	index map[string]*list.Element
}

// NewCache creates a cache; mirror may be nil
func NewCache(capacity int, mirror Mirror, logger *zap.Logger) *Cache {
	if capacity <= 0 {
		capacity = DefaultCacheSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		capacity: capacity,
		mirror:   mirror,
		logger:   logger,
		ll:       list.New(),
		index:    make(map[string]*list.Element),
	}
}

// Set stores items under handle as most recently used, evicting the least
// recently used entries beyond capacity.
func (c *Cache) Set(ctx context.Context, handle string, items []Item) {
	if items == nil {
		items = []Item{}
	}
	c.setLocal(handle, Clone(items))

	if c.mirror != nil {
		if err := c.mirror.Store(ctx, handle, items); err != nil {
			c.logger.Warn("Failed to mirror sources",
				zap.String("session_id", handle),
				zap.Error(err),
			)
		}
	}
}

// Get returns the items for handle and marks it most recently used
func (c *Cache) Get(ctx context.Context, handle string) ([]Item, bool) {
	if handle == "" {
		return nil, false
	}

	c.mu.Lock()
	if el, ok := c.index[handle]; ok {
		c.ll.MoveToFront(el)
		items := Clone(el.Value.(*entry).items)
		c.mu.Unlock()
		metrics.SourceCacheLookups.WithLabelValues("local", "hit").Inc()
		return items, true
	}
	c.mu.Unlock()
	metrics.SourceCacheLookups.WithLabelValues("local", "miss").Inc()

	if c.mirror == nil {
		return nil, false
	}
	items, ok, err := c.mirror.Load(ctx, handle)
	if err != nil {
		c.logger.Warn("Failed to load mirrored sources",
			zap.String("session_id", handle),
			zap.Error(err),
		)
		metrics.SourceCacheLookups.WithLabelValues("mirror", "error").Inc()
		return nil, false
	}
	if !ok {
		metrics.SourceCacheLookups.WithLabelValues("mirror", "miss").Inc()
		return nil, false
	}
	metrics.SourceCacheLookups.WithLabelValues("mirror", "hit").Inc()
	c.setLocal(handle, Clone(items))
	return items, true
}

// Len returns the number of in-process entries
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

func (c *Cache) setLocal(handle string, items []Item) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.index[handle]; ok {
		el.Value.(*entry).items = items
		c.ll.MoveToFront(el)
	} else {
		c.index[handle] = c.ll.PushFront(&entry{handle: handle, items: items})
	}

	for c.ll.Len() > c.capacity {
		oldest := c.ll.Back()
		c.ll.Remove(oldest)
		delete(c.index, oldest.Value.(*entry).handle)
		metrics.SourceCacheEvictions.Inc()
	}
	metrics.SourceCacheSize.Set(float64(c.ll.Len()))
}
