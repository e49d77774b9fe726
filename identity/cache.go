package identity

import (
	"context"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// CachedResolver wraps an inner Resolver with expiring LRU caches, keyed by
// id and by lowercased username. Negative results ("not found") are cached
// for the shorter ErrTTL so that typo'd usernames do not hammer the API.
type CachedResolver struct {
	Inner  Resolver
	ErrTTL time.Duration

	idCache   *expirable.LRU[uint64, cacheEntry]
	nameCache *expirable.LRU[string, cacheEntry]
}

type cacheEntry struct {
	Updated time.Time
	Player  *Player
	Err     error
}

// NewCachedResolver builds the caching wrapper. Capacity of zero means
// unlimited size; hitTTL of zero means entries never expire.
func NewCachedResolver(inner Resolver, capacity int, hitTTL, errTTL time.Duration) *CachedResolver {
	return &CachedResolver{
		Inner:     inner,
		ErrTTL:    errTTL,
		idCache:   expirable.NewLRU[uint64, cacheEntry](capacity, nil, hitTTL),
		nameCache: expirable.NewLRU[string, cacheEntry](capacity, nil, hitTTL),
	}
}

func (c *CachedResolver) isStale(e cacheEntry) bool {
	return e.Err != nil && time.Since(e.Updated) > c.ErrTTL
}

func (c *CachedResolver) Lookup(ctx context.Context, id uint64) (*Player, error) {
	if entry, ok := c.idCache.Get(id); ok && !c.isStale(entry) {
		return entry.Player, entry.Err
	}

	p, err := c.Inner.Lookup(ctx, id)
	entry := cacheEntry{Updated: time.Now(), Player: p, Err: err}
	c.idCache.Add(id, entry)
	if p != nil {
		c.nameCache.Add(strings.ToLower(p.Username), entry)
	}
	return p, err
}

func (c *CachedResolver) ResolveUsername(ctx context.Context, username string) (*Player, error) {
	key := strings.ToLower(username)
	if entry, ok := c.nameCache.Get(key); ok && !c.isStale(entry) {
		return entry.Player, entry.Err
	}

	p, err := c.Inner.ResolveUsername(ctx, username)
	entry := cacheEntry{Updated: time.Now(), Player: p, Err: err}
	c.nameCache.Add(key, entry)
	if p != nil {
		c.idCache.Add(p.ID, entry)
	}
	return p, err
}

var _ Resolver = (*CachedResolver)(nil)
