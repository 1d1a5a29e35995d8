package artifact

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/buyerd/internal/catalog"
	"github.com/fyrsmithlabs/buyerd/internal/logging"
)

// BlobStore persists cached result tables across restarts.
type BlobStore interface {
	Store(key string, blob []byte) error
	Fetch(key string) ([]byte, bool, error)
}

// NormalizeQuery canonicalizes a query for cache keying: case-folded,
// trimmed, inner whitespace collapsed to single spaces.
func NormalizeQuery(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}

// CacheKey derives the cache key for a query.
func CacheKey(query string) string {
	sum := sha256.Sum256([]byte(NormalizeQuery(query)))
	return hex.EncodeToString(sum[:])
}

type inflight struct {
	done chan struct{}
	rows []catalog.ProductRow
	err  error
}

// QueryCache caches search results by normalized query. The first
// completed fill for a key wins; concurrent fills for the same key
// collapse into a single upstream call.
type QueryCache struct {
	mu       sync.Mutex
	entries  map[string][]catalog.ProductRow
	inflight map[string]*inflight

	store  BlobStore
	logger *logging.Logger
}

// NewQueryCache creates a cache over the given blob store. The store
// may be nil for a purely in-memory cache.
func NewQueryCache(store BlobStore, logger *logging.Logger) *QueryCache {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &QueryCache{
		entries:  make(map[string][]catalog.ProductRow),
		inflight: make(map[string]*inflight),
		store:    store,
		logger:   logger.Named("cache"),
	}
}

// GetOrFill returns the cached rows for query, filling via fill on a
// miss. The second return reports whether the result came from cache.
func (c *QueryCache) GetOrFill(ctx context.Context, query string, fill func(context.Context) ([]catalog.ProductRow, error)) ([]catalog.ProductRow, bool, error) {
	key := CacheKey(query)

	c.mu.Lock()
	if rows, ok := c.entries[key]; ok {
		c.mu.Unlock()
		return rows, true, nil
	}
	if rows, ok := c.fetchLocked(ctx, key); ok {
		c.mu.Unlock()
		return rows, true, nil
	}
	if fl, ok := c.inflight[key]; ok {
		c.mu.Unlock()
		select {
		case <-fl.done:
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
		if fl.err != nil {
			return nil, false, fl.err
		}
		return fl.rows, true, nil
	}
	fl := &inflight{done: make(chan struct{})}
	c.inflight[key] = fl
	c.mu.Unlock()

	rows, err := fill(ctx)

	c.mu.Lock()
	delete(c.inflight, key)
	if err == nil {
		if _, exists := c.entries[key]; !exists {
			c.entries[key] = rows
			c.persistLocked(ctx, key, rows)
		} else {
			rows = c.entries[key]
		}
	}
	c.mu.Unlock()

	fl.rows, fl.err = rows, err
	close(fl.done)

	if err != nil {
		return nil, false, err
	}
	return rows, false, nil
}

// fetchLocked consults the blob store and promotes a hit into memory.
func (c *QueryCache) fetchLocked(ctx context.Context, key string) ([]catalog.ProductRow, bool) {
	if c.store == nil {
		return nil, false
	}
	blob, ok, err := c.store.Fetch(key)
	if err != nil {
		c.logger.Warn(ctx, "cache fetch failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var rows []catalog.ProductRow
	if err := json.Unmarshal(blob, &rows); err != nil {
		c.logger.Warn(ctx, "cache blob corrupt", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	c.entries[key] = rows
	return rows, true
}

func (c *QueryCache) persistLocked(ctx context.Context, key string, rows []catalog.ProductRow) {
	if c.store == nil {
		return
	}
	blob, err := json.Marshal(rows)
	if err != nil {
		c.logger.Warn(ctx, "cache encode failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.store.Store(key, blob); err != nil {
		c.logger.Warn(ctx, "cache store failed", zap.String("key", key), zap.Error(err))
	}
}

// Len reports the number of in-memory entries.
func (c *QueryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
