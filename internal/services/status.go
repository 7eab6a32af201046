package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/roomify/apiserver/internal/store"
)

const defaultStatusCacheSize = 4096

// AccountStatusCache answers "is this subject still active" from a short
// lived LRU in front of the account store.
type AccountStatusCache struct {
	accounts AccountRepository
	cache    *expirable.LRU[string, bool]
}

func NewAccountStatusCache(accounts AccountRepository, ttl time.Duration) *AccountStatusCache {
	return &AccountStatusCache{
		accounts: accounts,
		cache:    expirable.NewLRU[string, bool](defaultStatusCacheSize, nil, ttl),
	}
}

// IsActive reports false for unknown subjects.
func (c *AccountStatusCache) IsActive(ctx context.Context, subject string) (bool, error) {
	key := strings.ToLower(strings.TrimSpace(subject))
	if active, ok := c.cache.Get(key); ok {
		return active, nil
	}
	account, err := c.accounts.GetByEmail(ctx, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.cache.Add(key, false)
			return false, nil
		}
		return false, err
	}
	c.cache.Add(key, account.Active)
	return account.Active, nil
}

// Invalidate drops the cached status of subject.
func (c *AccountStatusCache) Invalidate(subject string) {
	c.cache.Remove(strings.ToLower(strings.TrimSpace(subject)))
}
