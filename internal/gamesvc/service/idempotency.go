package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const idemKeyPrefix = "idem:capture:"

// Idempotency maps client idempotency keys to the capture they created,
// so a retried request replays the original response instead of
// spawning a second pipeline. Lookup and store are two calls; two
// simultaneous first requests with the same fresh key can both create
// (documented best-effort, acceptable for camera retry semantics).
type Idempotency struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewIdempotency(rdb *redis.Client) *Idempotency {
	return &Idempotency{rdb: rdb, ttl: 24 * time.Hour}
}

func (i *Idempotency) Lookup(ctx context.Context, key string) (uuid.UUID, bool, error) {
	val, err := i.rdb.Get(ctx, idemKeyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, err
	}
	id, err := uuid.Parse(val)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("corrupt idempotency entry for key %s: %w", key, err)
	}
	return id, true, nil
}

func (i *Idempotency) Store(ctx context.Context, key string, captureID uuid.UUID) error {
	return i.rdb.SetNX(ctx, idemKeyPrefix+key, captureID.String(), i.ttl).Err()
}
