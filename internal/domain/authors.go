package domain

import (
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// TTLAuthorCache is an AuthorCache whose entries expire after a fixed time,
// bounding how stale a cached name can get.
type TTLAuthorCache struct {
	cache *ristretto.Cache[string, string]
	ttl   time.Duration
}

// NewAuthorCache creates a cache holding up to maxAuthors names for ttl.
func NewAuthorCache(maxAuthors int64, ttl time.Duration) (*TTLAuthorCache, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, string]{
		NumCounters:        maxAuthors * 10,
		MaxCost:            maxAuthors,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create author cache: %w", err)
	}

	return &TTLAuthorCache{cache: c, ttl: ttl}, nil
}

func (c *TTLAuthorCache) Get(userID string) (string, bool) {
	return c.cache.Get(userID)
}

// Set stores a name. Writes are buffered and may become visible to Get
// shortly after Set returns.
func (c *TTLAuthorCache) Set(userID, name string) {
	c.cache.SetWithTTL(userID, name, 1, c.ttl)
}

// Wait blocks until buffered writes are applied.
func (c *TTLAuthorCache) Wait() {
	c.cache.Wait()
}

func (c *TTLAuthorCache) Close() {
	c.cache.Close()
}
