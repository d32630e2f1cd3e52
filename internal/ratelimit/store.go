package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

type window struct {
	count   int64
	resetAt time.Time
}

// MemoryWindowStore keeps counters in a process-local map. Expired
// windows are replaced on access; Sweep reclaims the rest.
type MemoryWindowStore struct {
	mu      sync.Mutex
	windows map[string]*window
}

func NewMemoryWindowStore() *MemoryWindowStore {
	return &MemoryWindowStore{windows: make(map[string]*window)}
}

func (s *MemoryWindowStore) Incr(_ context.Context, key string, windowLen time.Duration) (int64, time.Time, error) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[key]
	if !ok || now.After(w.resetAt) {
		w = &window{resetAt: now.Add(windowLen)}
		s.windows[key] = w
	}
	w.count++

	return w.count, w.resetAt, nil
}

// Sweep drops expired windows. Memory hygiene only; an unreclaimed
// expired window self-corrects on next access.
func (s *MemoryWindowStore) Sweep() {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, w := range s.windows {
		if now.After(w.resetAt) {
			delete(s.windows, key)
		}
	}
}

// StartSweeper runs Sweep every interval until ctx is done.
func (s *MemoryWindowStore) StartSweeper(ctx context.Context, interval time.Duration) {
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

// RedisWindowStore shares counters across instances. The key's TTL is the
// window; INCR on a fresh key starts a new window.
type RedisWindowStore struct {
	client *redis.Client
}

func NewRedisWindowStore(client *redis.Client) *RedisWindowStore {
	return &RedisWindowStore{client: client}
}

func (s *RedisWindowStore) Incr(ctx context.Context, key string, windowLen time.Duration) (int64, time.Time, error) {
	rkey := fmt.Sprintf("ratelimit:%s", key)

	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, rkey)
	pipe.ExpireNX(ctx, rkey, windowLen)
	ttl := pipe.PTTL(ctx, rkey)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, time.Time{}, err
	}

	resetAt := time.Now().Add(ttl.Val())
	return incr.Val(), resetAt, nil
}
