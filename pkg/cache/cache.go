// Package cache implements the two-tier cache layer: an in-memory LRU
// backed by the on-disk badger store shared with the version manager.
// Namespaces are enforced at the API so a lookup can never cross families.
package cache

import (
	"encoding/json"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/floridify/floridify/pkg/resource"
	"github.com/floridify/floridify/pkg/store"
)

// DefaultLRUSize is the default in-memory tier capacity.
const DefaultLRUSize = 10_000

// entry is the on-disk value shape: the structured content plus an
// expiry, so TTL survives the filesystem boundary round-trip.
type entry struct {
	Value     any       `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
	HasTTL    bool      `json:"has_ttl"`
}

func (e entry) expired(now time.Time) bool {
	return e.HasTTL && now.After(e.ExpiresAt)
}

type namespacedKey struct {
	namespace resource.Namespace
	key       string
}

// Cache is the two-tier cache layer. The in-memory tier holds decoded
// values; the on-disk tier (pkg/store) persists them across process
// restarts. Cross-namespace reads are impossible: every lookup requires a
// namespace argument and namespace is baked into every key.
type Cache struct {
	mem   *lru.Cache[namespacedKey, entry]
	disk  *store.Store
	clock func() time.Time
}

// New builds a Cache with an in-memory LRU of size lruSize (DefaultLRUSize
// if <= 0) fronting disk.
func New(disk *store.Store, lruSize int) (*Cache, error) {
	if lruSize <= 0 {
		lruSize = DefaultLRUSize
	}
	mem, err := lru.New[namespacedKey, entry](lruSize)
	if err != nil {
		return nil, err
	}
	return &Cache{mem: mem, disk: disk, clock: time.Now}, nil
}

func diskKey(key string) string {
	return "cache/" + key
}

// Get returns the cached value for (namespace, key), or ok=false if absent
// or expired.
func (c *Cache) Get(namespace resource.Namespace, key string) (any, bool) {
	now := c.clock()
	nk := namespacedKey{namespace: namespace, key: key}

	if e, ok := c.mem.Get(nk); ok {
		if e.expired(now) {
			c.mem.Remove(nk)
			_ = c.disk.Delete(namespace, diskKey(key))
			return nil, false
		}
		return e.Value, true
	}

	data, err := c.disk.Get(namespace, diskKey(key))
	if err != nil {
		return nil, false
	}
	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, false
	}
	if e.expired(now) {
		_ = c.disk.Delete(namespace, diskKey(key))
		return nil, false
	}
	c.mem.Add(nk, e)
	return e.Value, true
}

// Set writes value under (namespace, key) to both tiers. A zero ttl means
// no expiry.
func (c *Cache) Set(namespace resource.Namespace, key string, value any, ttl time.Duration) error {
	e := entry{Value: value}
	if ttl > 0 {
		e.HasTTL = true
		e.ExpiresAt = c.clock().Add(ttl)
	}

	nk := namespacedKey{namespace: namespace, key: key}
	c.mem.Add(nk, e)

	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return c.disk.Put(namespace, diskKey(key), data)
}

// Delete removes (namespace, key) from both tiers. Idempotent.
func (c *Cache) Delete(namespace resource.Namespace, key string) error {
	c.mem.Remove(namespacedKey{namespace: namespace, key: key})
	return c.disk.Delete(namespace, diskKey(key))
}

// InvalidateResource drops the cache entries a version-manager write must
// invalidate: (namespace, resource_id) and (namespace, resource_id:version).
// The full set of version keys is not enumerable without a version list, so
// callers pass the known version explicitly when available.
func (c *Cache) InvalidateResource(namespace resource.Namespace, resourceID string, version string) error {
	if err := c.Delete(namespace, resourceID); err != nil {
		return err
	}
	if version != "" {
		if err := c.Delete(namespace, resourceID+":"+version); err != nil {
			return err
		}
	}
	return nil
}

// InvalidateCorpus drops the additional keys a corpus delete must
// invalidate: (namespace, corpus_name), (namespace, corpus_uuid),
// and derived stats.
func (c *Cache) InvalidateCorpus(namespace resource.Namespace, corpusName, corpusUUID string) error {
	for _, k := range []string{corpusName, corpusUUID, corpusUUID + ":stats"} {
		if err := c.Delete(namespace, k); err != nil {
			return err
		}
	}
	return nil
}
