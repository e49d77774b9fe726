package identity

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingResolver wraps the mock and counts upstream calls.
type countingResolver struct {
	mu      sync.Mutex
	inner   *MockResolver
	lookups int
	queries int
}

func (c *countingResolver) Lookup(ctx context.Context, id uint64) (*Player, error) {
	c.mu.Lock()
	c.lookups++
	c.mu.Unlock()
	return c.inner.Lookup(ctx, id)
}

func (c *countingResolver) ResolveUsername(ctx context.Context, username string) (*Player, error) {
	c.mu.Lock()
	c.queries++
	c.mu.Unlock()
	return c.inner.ResolveUsername(ctx, username)
}

func newCountingResolver() *countingResolver {
	inner := NewMockResolver()
	inner.Add(Player{ID: 42, Username: "GriefQueen", DisplayName: "Grief Queen"})
	return &countingResolver{inner: inner}
}

func TestCachedLookupHitsUpstreamOnce(t *testing.T) {
	upstream := newCountingResolver()
	c := NewCachedResolver(upstream, 100, time.Hour, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		p, err := c.Lookup(ctx, 42)
		require.NoError(t, err)
		assert.Equal(t, "GriefQueen", p.Username)
	}
	assert.Equal(t, 1, upstream.lookups)
}

func TestCachedResolveUsernameCaseInsensitive(t *testing.T) {
	upstream := newCountingResolver()
	c := NewCachedResolver(upstream, 100, time.Hour, time.Minute)
	ctx := context.Background()

	p, err := c.ResolveUsername(ctx, "GriefQueen")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), p.ID)

	// differently-cased queries share the cache slot
	_, err = c.ResolveUsername(ctx, "griefqueen")
	require.NoError(t, err)
	_, err = c.ResolveUsername(ctx, "GRIEFQUEEN")
	require.NoError(t, err)
	assert.Equal(t, 1, upstream.queries)
}

func TestCacheCrossPopulates(t *testing.T) {
	upstream := newCountingResolver()
	c := NewCachedResolver(upstream, 100, time.Hour, time.Minute)
	ctx := context.Background()

	_, err := c.ResolveUsername(ctx, "GriefQueen")
	require.NoError(t, err)

	// the username hit also primed the id cache
	_, err = c.Lookup(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, 0, upstream.lookups)
}

func TestNegativeCaching(t *testing.T) {
	upstream := newCountingResolver()
	c := NewCachedResolver(upstream, 100, time.Hour, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := c.Lookup(ctx, 999)
		assert.ErrorIs(t, err, ErrPlayerNotFound)
	}
	assert.Equal(t, 1, upstream.lookups, "not-found is cached too")
}

func TestNegativeCacheExpires(t *testing.T) {
	upstream := newCountingResolver()
	c := NewCachedResolver(upstream, 100, time.Hour, 10*time.Millisecond)
	ctx := context.Background()

	_, err := c.Lookup(ctx, 999)
	assert.ErrorIs(t, err, ErrPlayerNotFound)

	// the player appears upstream; the stale negative entry is bypassed
	upstream.inner.Add(Player{ID: 999, Username: "NewPlayer"})
	time.Sleep(20 * time.Millisecond)

	p, err := c.Lookup(ctx, 999)
	require.NoError(t, err)
	assert.Equal(t, "NewPlayer", p.Username)
	assert.Equal(t, 2, upstream.lookups)
}
