package credentials

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/stellar/go-stellar-sdk/support/log"
)

const tokenCacheTTL = 3 * time.Minute

// CachedStore wraps Store's ValidateToken with a read-through ristretto
// cache, the same caching shape the teacher's apiKeyAuthenticator uses in
// front of its Postgres lookup, so every authenticated request on a hot
// sandbox doesn't round-trip to Postgres.
type CachedStore struct {
	*Store
	cache *ristretto.Cache
}

func NewCachedStore(store *Store) *CachedStore {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10_000,
		MaxCost:     1_000,
		BufferItems: 64,
	})
	if err != nil {
		log.Errorf("failed to create access token cache: %v", err)
		return &CachedStore{Store: store}
	}
	cache.Wait()

	return &CachedStore{Store: store, cache: cache}
}

func (c *CachedStore) ValidateToken(ctx context.Context, token string) (int64, error) {
	if c.cache == nil {
		return c.Store.ValidateToken(ctx, token)
	}

	if cached, found := c.cache.Get(token); found {
		if projectID, ok := cached.(int64); ok {
			return projectID, nil
		}
		c.cache.Del(token)
	}

	projectID, err := c.Store.ValidateToken(ctx, token)
	if err != nil {
		return 0, err
	}

	c.cache.SetWithTTL(token, projectID, 1, tokenCacheTTL)
	c.cache.Wait()

	return projectID, nil
}
