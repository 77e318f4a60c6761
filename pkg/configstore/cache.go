package configstore

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// cache holds recently-read entries keyed by (key, tenant). Every mutating
// store operation invalidates the exact pair before it returns, so readers
// never observe a stale policy after a successful write.
type cache struct {
	entries *lru.Cache[string, Entry]
}

func newCache(size int) *cache {
	c, err := lru.New[string, Entry](size)
	if err != nil {
		// lru.New only fails on size <= 0
		panic(err)
	}
	return &cache{entries: c}
}

func cacheKey(key, tenant string) string {
	return key + "\x00" + tenant
}

func (c *cache) get(key, tenant string) (Entry, bool) {
	return c.entries.Get(cacheKey(key, tenant))
}

func (c *cache) put(key, tenant string, e Entry) {
	c.entries.Add(cacheKey(key, tenant), e)
}

func (c *cache) invalidate(key, tenant string) {
	c.entries.Remove(cacheKey(key, tenant))
}
