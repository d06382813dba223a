package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	apperrors "github.com/aditya/haggle/internal/errors"
)

type localSlot struct {
	ch   chan struct{}
	refs int
}

// localOfferLocker is an in-process OfferLocker for single node setups and
// tests. Slots are dropped once nobody holds or waits for them.
type localOfferLocker struct {
	mu    sync.Mutex
	slots map[string]*localSlot
	wait  time.Duration
}

func NewLocalOfferLocker(wait time.Duration) OfferLocker {
	return &localOfferLocker{
		slots: make(map[string]*localSlot),
		wait:  wait,
	}
}

func (l *localOfferLocker) Lock(ctx context.Context, offerID string) (func(), error) {
	l.mu.Lock()
	slot, ok := l.slots[offerID]
	if !ok {
		slot = &localSlot{ch: make(chan struct{}, 1)}
		l.slots[offerID] = slot
	}
	slot.refs++
	l.mu.Unlock()

	timer := time.NewTimer(l.wait)
	defer timer.Stop()

	select {
	case slot.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-slot.ch
				l.release(offerID, slot)
			})
		}, nil
	case <-timer.C:
	case <-ctx.Done():
	}

	l.release(offerID, slot)
	return nil, fmt.Errorf("offer %s is locked: %w", offerID, apperrors.ErrBusy)
}

func (l *localOfferLocker) release(offerID string, slot *localSlot) {
	l.mu.Lock()
	defer l.mu.Unlock()

	slot.refs--
	if slot.refs == 0 {
		delete(l.slots, offerID)
	}
}
