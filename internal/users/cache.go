package users

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"
)

// CachedDirectory keeps recently read users in a local TTL cache in front of
// another Directory. Rating updates go straight through and evict the entry.
// A read that overlapped an update is not cached, so an old value fetched
// before the write cannot land after its eviction.
type CachedDirectory struct {
	next  Directory
	cache *ristretto.Cache
	ttl   time.Duration

	mu       sync.Mutex
	versions map[string]uint64
}

// NewCachedDirectory wraps next with a cache holding up to maxUsers entries.
func NewCachedDirectory(next Directory, maxUsers int64, ttl time.Duration) (*CachedDirectory, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxUsers * 10,
		MaxCost:     maxUsers,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create user cache: %w", err)
	}
	return &CachedDirectory{
		next:     next,
		cache:    cache,
		ttl:      ttl,
		versions: make(map[string]uint64),
	}, nil
}

func (d *CachedDirectory) GetUser(ctx context.Context, id string) (User, error) {
	if v, ok := d.cache.Get(id); ok {
		if u, ok := v.(User); ok {
			return u, nil
		}
	}
	d.mu.Lock()
	version := d.versions[id]
	d.mu.Unlock()

	u, err := d.next.GetUser(ctx, id)
	if err != nil {
		return User{}, err
	}

	d.mu.Lock()
	if d.versions[id] == version {
		d.cache.SetWithTTL(id, u, 1, d.ttl)
	}
	d.mu.Unlock()
	return u, nil
}

func (d *CachedDirectory) UpdateRating(ctx context.Context, id string, r float64) error {
	err := d.next.UpdateRating(ctx, id, r)
	d.mu.Lock()
	d.versions[id]++
	d.cache.Del(id)
	d.mu.Unlock()
	return err
}

// Wait blocks until buffered cache writes are applied.
func (d *CachedDirectory) Wait() {
	d.cache.Wait()
}

// Close stops the cache's background goroutines.
func (d *CachedDirectory) Close() {
	d.cache.Close()
}
