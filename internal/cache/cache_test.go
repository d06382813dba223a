package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	apperrors "github.com/aditya/haggle/internal/errors"
	"github.com/aditya/haggle/internal/models"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestRedisOfferLocker(t *testing.T) {
	mr, client := newTestRedis(t)
	locker := NewRedisOfferLocker(client, 10*time.Second, 50*time.Millisecond)
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "offer-1")
	require.NoError(t, err)
	assert.True(t, mr.Exists("offer:lock:offer-1"))

	_, err = locker.Lock(ctx, "offer-1")
	assert.ErrorIs(t, err, apperrors.ErrBusy)

	other, err := locker.Lock(ctx, "offer-2")
	require.NoError(t, err)
	other()

	unlock()
	unlock()
	assert.False(t, mr.Exists("offer:lock:offer-1"))

	again, err := locker.Lock(ctx, "offer-1")
	require.NoError(t, err)
	again()
}

func TestRedisOfferLockerDoesNotReleaseForeignLease(t *testing.T) {
	mr, client := newTestRedis(t)
	locker := NewRedisOfferLocker(client, time.Second, 50*time.Millisecond)
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "offer-1")
	require.NoError(t, err)

	// Lease runs out and another holder takes the lock.
	mr.FastForward(2 * time.Second)
	require.NoError(t, mr.Set("offer:lock:offer-1", "someone-else"))

	unlock()
	got, err := mr.Get("offer:lock:offer-1")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}

func TestLocalOfferLockerExclusive(t *testing.T) {
	locker := NewLocalOfferLocker(time.Second)
	ctx := context.Background()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.Lock(ctx, "offer-1")
			if err != nil {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
	assert.Empty(t, locker.(*localOfferLocker).slots)
}

func TestLocalOfferLockerTimesOut(t *testing.T) {
	locker := NewLocalOfferLocker(20 * time.Millisecond)
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "offer-1")
	require.NoError(t, err)
	defer unlock()

	_, err = locker.Lock(ctx, "offer-1")
	assert.ErrorIs(t, err, apperrors.ErrBusy)
}

func TestLocalOfferLockerHonoursCancellation(t *testing.T) {
	locker := NewLocalOfferLocker(time.Minute)

	unlock, err := locker.Lock(context.Background(), "offer-1")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = locker.Lock(ctx, "offer-1")
	assert.ErrorIs(t, err, apperrors.ErrBusy)
}

type countingListings struct {
	listing *models.Listing
	calls   int
}

func (c *countingListings) GetByID(_ context.Context, id string) (*models.Listing, error) {
	c.calls++
	if c.listing == nil || c.listing.ID != id {
		return nil, nil
	}
	l := *c.listing
	return &l, nil
}

func TestListingCacheReadThrough(t *testing.T) {
	_, client := newTestRedis(t)
	source := &countingListings{listing: &models.Listing{ID: "l1", SellerID: "seller", Price: 1000}}
	c := NewListingCache(client, source, time.Minute)
	ctx := context.Background()

	first, err := c.GetByID(ctx, "l1")
	require.NoError(t, err)
	second, err := c.GetByID(ctx, "l1")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, source.calls)

	source.listing.Price = 900
	require.NoError(t, c.Invalidate(ctx, "l1"))
	third, err := c.GetByID(ctx, "l1")
	require.NoError(t, err)
	assert.Equal(t, int64(900), third.Price)
	assert.Equal(t, 2, source.calls)

	missing, err := c.GetByID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestListingCacheFallsBackWhenRedisIsDown(t *testing.T) {
	mr, client := newTestRedis(t)
	source := &countingListings{listing: &models.Listing{ID: "l1", SellerID: "seller", Price: 1000}}
	c := NewListingCache(client, source, time.Minute)

	mr.Close()
	listing, err := c.GetByID(context.Background(), "l1")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), listing.Price)
}
