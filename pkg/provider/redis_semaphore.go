package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/codeready-toolchain/agentctl/internal/ctlerrors"
)

// RedisSemaphore implements Semaphore across multiple control-plane
// processes sharing one Redis instance, using a sorted-set of holder
// tokens with a TTL so a crashed holder's slot is reclaimed automatically.
// This is additive to the spec's single-process assumption (no cross-process
// consensus protocol is implemented — it is just a shared counter), used
// only when REDIS_ADDR is configured.
type RedisSemaphore struct {
	client   *redis.Client
	key      string
	capacity int
	ttl      time.Duration

	// token tracks the single in-flight holder. This mirrors the
	// capacity-1 default (spec §5 WIP limits default to 1); a RedisSemaphore
	// used at capacity > 1 needs one instance per concurrent caller, same as
	// the in-process chanSemaphore is one-per-Entry, not shared further.
	token string
}

// NewRedisSemaphore builds a distributed semaphore bound to key with the
// given capacity and holder TTL.
func NewRedisSemaphore(client *redis.Client, key string, capacity int, ttl time.Duration) *RedisSemaphore {
	return &RedisSemaphore{client: client, key: key, capacity: capacity, ttl: ttl}
}

func (s *RedisSemaphore) Acquire(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		if time.Now().After(deadline) {
			return ctlerrors.WithClassification(fmt.Errorf("provider: redis semaphore acquire timed out after %s", timeout), ctlerrors.Resource)
		}

		now := time.Now()
		// Drop expired holders.
		s.client.ZRemRangeByScore(ctx, s.key, "-inf", fmt.Sprintf("%d", now.Add(-s.ttl).UnixNano()))

		count, err := s.client.ZCard(ctx, s.key).Result()
		if err != nil {
			return ctlerrors.FailedTo("provider", "query redis semaphore", err)
		}
		if int(count) < s.capacity {
			token := uuid.NewString()
			added, err := s.client.ZAdd(ctx, s.key, redis.Z{Score: float64(now.UnixNano()), Member: token}).Result()
			if err == nil && added == 1 {
				s.token = token
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func (s *RedisSemaphore) Release() {
	if s.token == "" {
		return
	}
	s.client.ZRem(context.Background(), s.key, s.token)
	s.token = ""
}
