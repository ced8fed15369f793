package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Redis struct {
	rdb *redis.Client
	// endedTTL bounds how long a finished match stays readable.
	endedTTL time.Duration
}

// NewRedis connects to redisURL and pings it before returning.
func NewRedis(ctx context.Context, redisURL string, endedTTL time.Duration) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("%w: redis ping: %v", ErrUnavailable, err)
	}
	return &Redis{rdb: rdb, endedTTL: endedTTL}, nil
}

func NewRedisFromClient(rdb *redis.Client, endedTTL time.Duration) *Redis {
	return &Redis{rdb: rdb, endedTTL: endedTTL}
}

func (r *Redis) Load(ctx context.Context, matchID string) (Snapshot, error) {
	b, err := r.rdb.Get(ctx, key(matchID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Snapshot{}, ErrNotFound
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: get %s: %v", ErrUnavailable, matchID, err)
	}
	return decode(b)
}

// Save writes the snapshot without expiry while the match is live, so it survives
// reconnects and restarts. Ended matches expire after endedTTL.
func (r *Redis) Save(ctx context.Context, s Snapshot) error {
	b, err := encode(s)
	if err != nil {
		return err
	}
	var ttl time.Duration
	if s.Ended {
		ttl = r.endedTTL
	}
	if err := r.rdb.Set(ctx, key(s.MatchID), b, ttl).Err(); err != nil {
		return fmt.Errorf("%w: set %s: %v", ErrUnavailable, s.MatchID, err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, matchID string) error {
	if err := r.rdb.Del(ctx, key(matchID)).Err(); err != nil {
		return fmt.Errorf("%w: del %s: %v", ErrUnavailable, matchID, err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.rdb.Close()
}
