package ipblock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore shares the ledger between guard instances. Temporary blocks
// carry a Redis TTL, so SweepExpired has nothing to do.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, prefix: "ipblock:"}
}

func (s *RedisStore) blockKey(id string) string      { return s.prefix + "block:" + id }
func (s *RedisStore) failedKey(id string) string     { return s.prefix + "failed:" + id }
func (s *RedisStore) escalationKey(id string) string { return s.prefix + "escalation:" + id }

func (s *RedisStore) GetBlock(ctx context.Context, identity string) (*Record, error) {
	raw, err := s.client.Get(ctx, s.blockKey(identity)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode block: %w", err)
	}
	return &rec, nil
}

func (s *RedisStore) PutBlock(ctx context.Context, rec Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode block: %w", err)
	}
	var ttl time.Duration
	if !rec.Permanent {
		ttl = rec.Until.Sub(rec.BlockedAt)
		if ttl <= 0 {
			return s.DeleteBlock(ctx, rec.Identity)
		}
	}
	return s.client.Set(ctx, s.blockKey(rec.Identity), raw, ttl).Err()
}

func (s *RedisStore) DeleteBlock(ctx context.Context, identity string) error {
	return s.client.Del(ctx, s.blockKey(identity)).Err()
}

func (s *RedisStore) ListBlocks(ctx context.Context) ([]Record, error) {
	var out []Record
	iter := s.client.Scan(ctx, 0, s.prefix+"block:*", 100).Iterator()
	for iter.Next(ctx) {
		raw, err := s.client.Get(ctx, iter.Val()).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, err
		}
		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, iter.Err()
}

func (s *RedisStore) SweepExpired(context.Context, time.Time) (int, error) {
	return 0, nil
}

func (s *RedisStore) IncrFailed(ctx context.Context, identity string) (int, error) {
	n, err := s.client.Incr(ctx, s.failedKey(identity)).Result()
	return int(n), err
}

func (s *RedisStore) ResetFailed(ctx context.Context, identity string) error {
	return s.client.Del(ctx, s.failedKey(identity)).Err()
}

func (s *RedisStore) IncrEscalation(ctx context.Context, identity string) (int, error) {
	n, err := s.client.Incr(ctx, s.escalationKey(identity)).Result()
	return int(n), err
}

func (s *RedisStore) ResetEscalation(ctx context.Context, identity string) error {
	return s.client.Del(ctx, s.escalationKey(identity)).Err()
}
