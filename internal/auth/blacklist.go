package auth

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Blacklist records logged-out tokens until they would have expired anyway.
// Entries are keyed by the token's ID claim.
type Blacklist interface {
	Add(ctx context.Context, tokenID string, ttl time.Duration) error
	Contains(ctx context.Context, tokenID string) (bool, error)
}

const blacklistKeyPrefix = "blacklisted:"

// RedisBlacklist stores entries as Redis keys with a TTL, so Redis expires
// them without any cleanup job, and every server instance sees the same
// set.
type RedisBlacklist struct {
	client *redis.Client
}

var _ Blacklist = (*RedisBlacklist)(nil)

func NewRedisBlacklist(client *redis.Client) *RedisBlacklist {
	return &RedisBlacklist{client: client}
}

// Add is a no-op for a non-positive ttl: the token has already expired and
// Validate rejects it on its own.
func (b *RedisBlacklist) Add(ctx context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return b.client.Set(ctx, blacklistKeyPrefix+tokenID, "1", ttl).Err()
}

func (b *RedisBlacklist) Contains(ctx context.Context, tokenID string) (bool, error) {
	n, err := b.client.Exists(ctx, blacklistKeyPrefix+tokenID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MemoryBlacklist is the single-process fallback used when no Redis address
// is configured. Expired entries are dropped lazily on lookup and on every
// Add.
type MemoryBlacklist struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

var _ Blacklist = (*MemoryBlacklist)(nil)

func NewMemoryBlacklist() *MemoryBlacklist {
	return &MemoryBlacklist{
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

func (b *MemoryBlacklist) Add(_ context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	for id, until := range b.entries {
		if !now.Before(until) {
			delete(b.entries, id)
		}
	}
	b.entries[tokenID] = now.Add(ttl)
	return nil
}

func (b *MemoryBlacklist) Contains(_ context.Context, tokenID string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	until, ok := b.entries[tokenID]
	if !ok {
		return false, nil
	}
	if !b.now().Before(until) {
		delete(b.entries, tokenID)
		return false, nil
	}
	return true, nil
}
