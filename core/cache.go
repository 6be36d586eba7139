package core

import (
	"time"

	cache "github.com/go-pkgz/expirable-cache"
	lru "github.com/hashicorp/golang-lru/v2"
)

// tenantCache holds resolved tenants. Entries live until evicted by size.
type tenantCache struct {
	cache *lru.TwoQueueCache[string, *TenantConfig]
}

func newTenantCache(size int) (tenantCache, error) {
	c, err := lru.New2Q[string, *TenantConfig](size)
	return tenantCache{cache: c}, err
}

// Get returns the value from the cache
func (c tenantCache) Get(key string) (val *TenantConfig, fromCache bool) {
	val, fromCache = c.cache.Get(key)
	return
}

// Set sets the value in the cache
func (c tenantCache) Set(key string, val *TenantConfig) {
	c.cache.Add(key, val)
}

func (c tenantCache) Len() int {
	return c.cache.Len()
}

// roleCache holds parsed role documents for a fixed TTL. A zero TTL
// disables it.
type roleCache struct {
	cache cache.Cache
}

func newRoleCache(ttl time.Duration) (roleCache, error) {
	if ttl <= 0 {
		return roleCache{}, nil
	}
	c, err := cache.NewCache(cache.LRU(), cache.MaxKeys(10000), cache.TTL(ttl))
	return roleCache{cache: c}, err
}

func (c roleCache) Get(key string) (*Role, bool) {
	if c.cache == nil {
		return nil, false
	}
	v, ok := c.cache.Get(key)
	if !ok {
		return nil, false
	}
	r, ok := v.(*Role)
	return r, ok
}

func (c roleCache) Set(key string, r *Role) {
	if c.cache == nil {
		return
	}
	c.cache.Set(key, r, 0)
}
