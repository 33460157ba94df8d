package views

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/technosupport/ts-vms-monitor/internal/data"
)

// RedisRing shares recent events between monitor instances as a capped Redis list.
type RedisRing struct {
	rdb  *redis.Client
	key  string
	size int
	ttl  time.Duration
}

func NewRedisRing(rdb *redis.Client, key string, size int, ttl time.Duration) *RedisRing {
	return &RedisRing{rdb: rdb, key: key, size: size, ttl: ttl}
}

func (r *RedisRing) Push(ctx context.Context, evt data.DomainEvent) error {
	b, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	pipe := r.rdb.TxPipeline()
	pipe.LPush(ctx, r.key, b)
	pipe.LTrim(ctx, r.key, 0, int64(r.size-1))
	if r.ttl > 0 {
		pipe.Expire(ctx, r.key, r.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis ring push: %w", err)
	}
	return nil
}

// Reset replaces the list. events are expected newest first.
func (r *RedisRing) Reset(ctx context.Context, events []data.DomainEvent) error {
	if len(events) > r.size {
		events = events[:r.size]
	}
	vals := make([]any, 0, len(events))
	for _, evt := range events {
		b, err := json.Marshal(evt)
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}
		vals = append(vals, b)
	}

	pipe := r.rdb.TxPipeline()
	pipe.Del(ctx, r.key)
	if len(vals) > 0 {
		pipe.RPush(ctx, r.key, vals...)
		if r.ttl > 0 {
			pipe.Expire(ctx, r.key, r.ttl)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis ring reset: %w", err)
	}
	return nil
}

func (r *RedisRing) List(ctx context.Context) ([]data.DomainEvent, error) {
	raw, err := r.rdb.LRange(ctx, r.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis ring list: %w", err)
	}
	out := make([]data.DomainEvent, 0, len(raw))
	for _, s := range raw {
		var evt data.DomainEvent
		if err := json.Unmarshal([]byte(s), &evt); err != nil {
			// skip entries written by an incompatible version
			continue
		}
		out = append(out, evt)
	}
	return out, nil
}

func (r *RedisRing) Len(ctx context.Context) (int, error) {
	n, err := r.rdb.LLen(ctx, r.key).Result()
	return int(n), err
}
