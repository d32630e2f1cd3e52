package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RevocationStore records bearer-token hashes invalidated before their
// natural expiry. A record only matters until the token would have expired
// anyway; implementations may drop it after that. Implementations must be
// safe for concurrent use.
type RevocationStore interface {
	Revoke(ctx context.Context, tokenHash string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, tokenHash string) (bool, error)
}

// MemoryRevocationStore keeps revocations in a process-local map. Suitable
// for single-instance deployments; swap in the Redis store otherwise.
type MemoryRevocationStore struct {
	mu      sync.Mutex
	revoked map[string]time.Time
}

func NewMemoryRevocationStore() *MemoryRevocationStore {
	return &MemoryRevocationStore{revoked: make(map[string]time.Time)}
}

func (s *MemoryRevocationStore) Revoke(_ context.Context, tokenHash string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked[tokenHash] = expiresAt
	return nil
}

func (s *MemoryRevocationStore) IsRevoked(_ context.Context, tokenHash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.revoked[tokenHash]
	if !ok {
		return false, nil
	}
	if time.Now().After(exp) {
		// Token expired on its own; the record is garbage.
		delete(s.revoked, tokenHash)
		return false, nil
	}
	return true, nil
}

// Sweep drops records for tokens past their natural expiry. Memory
// hygiene only; IsRevoked self-corrects on access.
func (s *MemoryRevocationStore) Sweep() {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for hash, exp := range s.revoked {
		if now.After(exp) {
			delete(s.revoked, hash)
		}
	}
}

// StartSweeper runs Sweep every interval until ctx is done.
func (s *MemoryRevocationStore) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Sweep()
			}
		}
	}()
}

// RedisRevocationStore shares revocations across instances. The entry TTL
// equals the token's remaining lifetime, so Redis purges it exactly when
// the record stops mattering.
type RedisRevocationStore struct {
	client *redis.Client
}

func NewRedisRevocationStore(client *redis.Client) *RedisRevocationStore {
	return &RedisRevocationStore{client: client}
}

func (s *RedisRevocationStore) Revoke(ctx context.Context, tokenHash string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		// Already past natural expiry; nothing to record.
		return nil
	}
	return s.client.Set(ctx, revocationKey(tokenHash), "1", ttl).Err()
}

func (s *RedisRevocationStore) IsRevoked(ctx context.Context, tokenHash string) (bool, error) {
	_, err := s.client.Get(ctx, revocationKey(tokenHash)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func revocationKey(tokenHash string) string {
	return fmt.Sprintf("revoked:%s", tokenHash)
}
