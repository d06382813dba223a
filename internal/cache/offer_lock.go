package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	apperrors "github.com/aditya/haggle/internal/errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const (
	offerLockKeyPrefix = "offer:lock:"
	minLockPoll        = 10 * time.Millisecond
	maxLockPoll        = 200 * time.Millisecond
)

// OfferLocker serializes mutations of a single offer. Lock waits at most the
// locker's configured timeout and returns ErrBusy when the offer stays held.
// The returned unlock func is safe to call more than once.
type OfferLocker interface {
	Lock(ctx context.Context, offerID string) (unlock func(), err error)
}

// releaseScript deletes the lock only if this holder still owns it, so a
// holder whose lease ran out cannot release somebody else's lock.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type redisOfferLocker struct {
	redis *redis.Client
	ttl   time.Duration
	wait  time.Duration
}

// NewRedisOfferLocker returns a lease-based lock shared by every replica.
func NewRedisOfferLocker(redisClient *redis.Client, ttl, wait time.Duration) OfferLocker {
	return &redisOfferLocker{redis: redisClient, ttl: ttl, wait: wait}
}

func (l *redisOfferLocker) Lock(ctx context.Context, offerID string) (func(), error) {
	key := offerLockKeyPrefix + offerID
	token := uuid.New().String()
	deadline := time.Now().Add(l.wait)
	poll := minLockPoll

	for {
		ok, err := l.redis.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock for offer %s: %w", offerID, err)
		}
		if ok {
			return l.unlocker(key, token), nil
		}

		if time.Now().Add(poll).After(deadline) {
			return nil, fmt.Errorf("offer %s is locked: %w", offerID, apperrors.ErrBusy)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("offer %s is locked: %w", offerID, apperrors.ErrBusy)
		case <-time.After(poll):
		}
		if poll *= 2; poll > maxLockPoll {
			poll = maxLockPoll
		}
	}
}

func (l *redisOfferLocker) unlocker(key, token string) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			// The request context may already be cancelled by the time we unlock.
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if err := releaseScript.Run(ctx, l.redis, []string{key}, token).Err(); err != nil {
				log.WithError(err).WithField("key", key).Warn("failed to release offer lock")
			}
		})
	}
}
