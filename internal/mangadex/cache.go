package mangadex

import (
	"time"

	"github.com/philippgille/gokv"
	"github.com/philippgille/gokv/syncmap"
)

// Cache keeps raw metadata responses for a limited time. It is never used for
// feeds or image manifests.
type Cache struct {
	store gokv.Store
	ttl   time.Duration
	now   func() time.Time
}

type cacheEntry struct {
	Body    []byte    `json:"body"`
	Expires time.Time `json:"expires"`
}

func NewCache(store gokv.Store, ttl time.Duration) *Cache {
	return &Cache{
		store: store,
		ttl:   ttl,
		now:   time.Now,
	}
}

// NewMemoryCache returns a cache that lives as long as the process.
func NewMemoryCache(ttl time.Duration) *Cache {
	return NewCache(syncmap.NewStore(syncmap.DefaultOptions), ttl)
}

func (c *Cache) Get(key string) ([]byte, bool) {
	var entry cacheEntry
	found, err := c.store.Get(key, &entry)
	if err != nil || !found {
		return nil, false
	}

	if c.now().After(entry.Expires) {
		_ = c.store.Delete(key)
		return nil, false
	}

	return entry.Body, true
}

func (c *Cache) Set(key string, body []byte) {
	_ = c.store.Set(key, cacheEntry{Body: body, Expires: c.now().Add(c.ttl)})
}

func (c *Cache) Close() error {
	return c.store.Close()
}
