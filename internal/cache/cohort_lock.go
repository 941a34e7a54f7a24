package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/InstanceChile/Plan-Demanda-Automatizacion/internal/domain"
	"github.com/InstanceChile/Plan-Demanda-Automatizacion/internal/reconcile"
)

const defaultLockTTL = 5 * time.Minute

// RedisCohortLocker holds one redis lock per (week, node) so passes running
// in different processes do not interleave on the same cohort.
type RedisCohortLocker struct {
	locker *redislock.Client
	ttl    time.Duration
}

var _ reconcile.CohortLocker = (*RedisCohortLocker)(nil)

func NewRedisCohortLocker(client *redis.Client, ttl time.Duration) *RedisCohortLocker {
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisCohortLocker{locker: redislock.New(client), ttl: ttl}
}

func (l *RedisCohortLocker) Lock(ctx context.Context, week domain.Week, node string) (reconcile.Unlock, error) {
	key := reconcile.CohortKey(week, node)
	lock, err := l.locker.Obtain(ctx, key, l.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, domain.ErrCohortBusy
	}
	if err != nil {
		return nil, fmt.Errorf("obtain cohort lock %s: %w", key, err)
	}

	return func(ctx context.Context) error {
		err := lock.Release(ctx)
		if errors.Is(err, redislock.ErrLockNotHeld) {
			log.Warn().Str("key", key).Msg("cohort lock expired before release")
			return nil
		}
		return err
	}, nil
}
