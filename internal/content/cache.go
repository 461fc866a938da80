package content

import (
	"context"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Cached fronts a Store with a TTL cache. Every message of a campaign shares
// one body, so workers would otherwise fetch the same object per send.
// Concurrent misses for the same campaign collapse into one backend read.
type Cached struct {
	store Store
	ttl   time.Duration
	now   func() time.Time

	group   singleflight.Group
	mu      sync.RWMutex
	entries map[int64]cacheEntry
}

type cacheEntry struct {
	body    []byte
	expires time.Time
}

// NewCached wraps store. A non-positive ttl defaults to one minute.
func NewCached(store Store, ttl time.Duration) *Cached {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Cached{
		store:   store,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[int64]cacheEntry),
	}
}

func (c *Cached) Get(ctx context.Context, campaignID int64) ([]byte, error) {
	c.mu.RLock()
	e, ok := c.entries[campaignID]
	c.mu.RUnlock()
	if ok && c.now().Before(e.expires) {
		return e.body, nil
	}

	v, err, _ := c.group.Do(strconv.FormatInt(campaignID, 10), func() (any, error) {
		body, err := c.store.Get(ctx, campaignID)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[campaignID] = cacheEntry{body: body, expires: c.now().Add(c.ttl)}
		c.mu.Unlock()
		return body, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// Put writes through and refreshes the cached copy.
func (c *Cached) Put(ctx context.Context, campaignID int64, body []byte) error {
	if err := c.store.Put(ctx, campaignID, body); err != nil {
		return err
	}
	c.mu.Lock()
	c.entries[campaignID] = cacheEntry{body: body, expires: c.now().Add(c.ttl)}
	c.mu.Unlock()
	return nil
}

func (c *Cached) Delete(ctx context.Context, campaignID int64) error {
	c.mu.Lock()
	delete(c.entries, campaignID)
	c.mu.Unlock()
	return c.store.Delete(ctx, campaignID)
}
