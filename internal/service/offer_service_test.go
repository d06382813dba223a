package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aditya/haggle/internal/cache"
	apperrors "github.com/aditya/haggle/internal/errors"
	"github.com/aditya/haggle/internal/metrics"
	"github.com/aditya/haggle/internal/models"
	"github.com/aditya/haggle/internal/repository"
	"github.com/aditya/haggle/internal/repository/inmemory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingDispatcher struct {
	mu       sync.Mutex
	outcomes []models.Outcome
}

func (d *recordingDispatcher) Dispatch(outcome models.Outcome) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.outcomes = append(d.outcomes, outcome)
}

func (d *recordingDispatcher) last() models.Outcome {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.outcomes[len(d.outcomes)-1]
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	svc        *offerService
	offers     repository.OfferRepository
	dispatcher *recordingDispatcher
	clock      *clock
}

const offerTTL = 72 * time.Hour

func newFixture(t *testing.T) *fixture {
	t.Helper()
	offers := inmemory.NewOfferRepository()
	listings := inmemory.NewListingRepository(
		models.Listing{ID: "bike", SellerID: "seller", Title: "Road bike", Price: 1000, Currency: "EUR"},
	)
	dispatcher := &recordingDispatcher{}
	clk := &clock{t: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}

	svc := NewOfferService(offers, listings, cache.NewLocalOfferLocker(time.Second), dispatcher, metrics.New(), offerTTL).(*offerService)
	svc.now = clk.Now

	return &fixture{svc: svc, offers: offers, dispatcher: dispatcher, clock: clk}
}

func (f *fixture) create(t *testing.T, price int64) *models.Offer {
	t.Helper()
	offer, err := f.svc.CreateOffer(context.Background(), "buyer", &models.CreateOfferRequest{ListingID: "bike", OfferedPrice: price})
	require.NoError(t, err)
	return offer
}

func respond(action models.Action, counter *int64) *models.RespondOfferRequest {
	return &models.RespondOfferRequest{Action: action, CounterPrice: counter}
}

func TestCreateOffer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	offer := f.create(t, 700)
	assert.Equal(t, models.OfferStatusPending, offer.Status)
	assert.Equal(t, f.clock.Now().Add(offerTTL), offer.ExpiresAt)

	out := f.dispatcher.last()
	require.Len(t, out.Notifications, 1)
	assert.Equal(t, "seller", out.Notifications[0].RecipientID)
	assert.Equal(t, models.EventOfferReceived, out.Notifications[0].Event)

	_, err := f.svc.CreateOffer(ctx, "buyer", &models.CreateOfferRequest{ListingID: "missing", OfferedPrice: 10})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = f.svc.CreateOffer(ctx, "seller", &models.CreateOfferRequest{ListingID: "bike", OfferedPrice: 500})
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	_, err = f.svc.CreateOffer(ctx, "buyer", &models.CreateOfferRequest{ListingID: "bike", OfferedPrice: 1000})
	assert.ErrorIs(t, err, apperrors.ErrInvalidPrice)

	events, err := f.svc.GetOfferHistory(ctx, offer.ID, "buyer")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.ActionCreate, events[0].Action)
}

func TestBuyerAcceptsCounter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	offer := f.create(t, 700)

	countered, err := f.svc.Respond(ctx, offer.ID, "seller", respond(models.ActionCounter, price(850)))
	require.NoError(t, err)
	assert.Equal(t, models.OfferStatusCountered, countered.Status)

	accepted, err := f.svc.Respond(ctx, offer.ID, "buyer", respond(models.ActionAccept, nil))
	require.NoError(t, err)
	assert.Equal(t, models.OfferStatusAccepted, accepted.Status)
	assert.Equal(t, int64(850), accepted.OfferedPrice)
	assert.Equal(t, 15, accepted.DiscountPercent)

	out := f.dispatcher.last()
	require.NotNil(t, out.Hint)
	assert.Equal(t, int64(850), out.Hint.Price)

	events, err := f.svc.GetOfferHistory(ctx, offer.ID, "seller")
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, models.ActionCounter, events[1].Action)
	assert.Equal(t, int64(850), *events[1].Price)
}

func TestCounterAtListedPriceLeavesOfferPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	offer := f.create(t, 700)
	before := len(f.dispatcher.outcomes)

	_, err := f.svc.Respond(ctx, offer.ID, "seller", respond(models.ActionCounter, price(1000)))
	assert.ErrorIs(t, err, apperrors.ErrInvalidPrice)

	stored, err := f.svc.GetOffer(ctx, offer.ID, "seller")
	require.NoError(t, err)
	assert.Equal(t, models.OfferStatusPending, stored.Status)
	assert.Nil(t, stored.CounterPrice)
	assert.Len(t, f.dispatcher.outcomes, before)
}

func TestRoleEnforcement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	offer := f.create(t, 700)

	_, err := f.svc.Respond(ctx, offer.ID, "buyer", respond(models.ActionAccept, nil))
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)

	_, err = f.svc.Respond(ctx, offer.ID, "stranger", respond(models.ActionReject, nil))
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	_, err = f.svc.Respond(ctx, offer.ID, "seller", respond(models.ActionCounter, price(900)))
	require.NoError(t, err)

	_, err = f.svc.Respond(ctx, offer.ID, "seller", respond(models.ActionAccept, nil))
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)

	_, err = f.svc.Respond(ctx, "missing", "seller", respond(models.ActionAccept, nil))
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = f.svc.GetOffer(ctx, offer.ID, "stranger")
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
}

func TestNoResurrection(t *testing.T) {
	terminate := map[string]func(t *testing.T, f *fixture, id string){
		"accepted": func(t *testing.T, f *fixture, id string) {
			_, err := f.svc.Respond(context.Background(), id, "seller", respond(models.ActionAccept, nil))
			require.NoError(t, err)
		},
		"rejected": func(t *testing.T, f *fixture, id string) {
			_, err := f.svc.Respond(context.Background(), id, "seller", respond(models.ActionReject, nil))
			require.NoError(t, err)
		},
		"expired": func(t *testing.T, f *fixture, id string) {
			f.clock.Advance(offerTTL)
			n, err := f.svc.ExpireDueOffers(context.Background(), f.clock.Now())
			require.NoError(t, err)
			require.Equal(t, 1, n)
		},
	}

	for name, finish := range terminate {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			offer := f.create(t, 700)
			finish(t, f, offer.ID)
			final, _ := f.svc.GetOffer(context.Background(), offer.ID, "buyer")

			for _, actor := range []string{"buyer", "seller"} {
				for _, action := range []models.Action{models.ActionAccept, models.ActionReject, models.ActionCounter} {
					_, err := f.svc.Respond(context.Background(), offer.ID, actor, respond(action, price(800)))
					assert.ErrorIs(t, err, apperrors.ErrInvalidTransition, "%s %s", actor, action)
				}
			}

			after, _ := f.svc.GetOffer(context.Background(), offer.ID, "buyer")
			assert.Equal(t, final, after)
		})
	}
}

func TestConcurrentResponsesProduceOneTerminalState(t *testing.T) {
	f := newFixture(t)
	offer := f.create(t, 700)

	actions := []models.Action{models.ActionAccept, models.ActionReject}
	results := make([]error, 10)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = f.svc.Respond(context.Background(), offer.ID, "seller", respond(actions[i%2], nil))
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range results {
		if err == nil {
			successes++
			continue
		}
		assert.True(t, errors.Is(err, apperrors.ErrInvalidTransition) || errors.Is(err, apperrors.ErrBusy), err)
	}
	assert.Equal(t, 1, successes)

	events, err := f.offers.ListEvents(context.Background(), offer.ID)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestRespondAfterHorizonLeavesOfferForSweep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	offer := f.create(t, 700)

	f.clock.Advance(offerTTL + time.Minute)
	_, err := f.svc.Respond(ctx, offer.ID, "seller", respond(models.ActionAccept, nil))
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)

	stored, _ := f.svc.GetOffer(ctx, offer.ID, "seller")
	assert.Equal(t, models.OfferStatusPending, stored.Status)
}

func TestRespondCannotExpireOffer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	offer := f.create(t, 700)
	f.clock.Advance(offerTTL)

	_, err := f.svc.Respond(ctx, offer.ID, "stranger", respond(models.ActionExpire, nil))
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	for _, actor := range []string{"buyer", "seller"} {
		_, err = f.svc.Respond(ctx, offer.ID, actor, respond(models.ActionExpire, nil))
		assert.ErrorIs(t, err, apperrors.ErrInvalidTransition, actor)
	}

	stored, err := f.svc.GetOffer(ctx, offer.ID, "seller")
	require.NoError(t, err)
	assert.Equal(t, models.OfferStatusPending, stored.Status)

	events, err := f.offers.ListEvents(ctx, offer.ID)
	require.NoError(t, err)
	assert.Len(t, events, 1)

	n, err := f.svc.ExpireDueOffers(ctx, f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestExpireDueOffersIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	due := f.create(t, 700)

	f.clock.Advance(time.Hour)
	countered := f.create(t, 600)
	_, err := f.svc.Respond(ctx, countered.ID, "seller", respond(models.ActionCounter, price(800)))
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	fresh := f.create(t, 650)

	f.clock.Advance(offerTTL - time.Hour)
	n, err := f.svc.ExpireDueOffers(ctx, f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, id := range []string{due.ID, countered.ID} {
		o, _ := f.svc.GetOffer(ctx, id, "buyer")
		assert.Equal(t, models.OfferStatusExpired, o.Status)
		assert.Nil(t, o.RespondedAt)
		assert.Nil(t, o.CounterPrice)
	}
	o, _ := f.svc.GetOffer(ctx, fresh.ID, "buyer")
	assert.Equal(t, models.OfferStatusPending, o.Status)

	out := f.dispatcher.last()
	require.Len(t, out.Notifications, 2)
	assert.Equal(t, models.EventOfferExpired, out.Notifications[0].Event)

	n, err = f.svc.ExpireDueOffers(ctx, f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	events, _ := f.offers.ListEvents(ctx, due.ID)
	assert.Len(t, events, 2)
}

func TestExpireSkipsLockedOffers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	offer := f.create(t, 700)
	f.svc.locker = cache.NewLocalOfferLocker(10 * time.Millisecond)

	unlock, err := f.svc.locker.Lock(ctx, offer.ID)
	require.NoError(t, err)

	f.clock.Advance(offerTTL)
	n, err := f.svc.ExpireDueOffers(ctx, f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	unlock()

	n, err = f.svc.ExpireDueOffers(ctx, f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestListOffers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.create(t, 700)
	f.clock.Advance(time.Minute)
	f.create(t, 750)
	_, err := f.svc.Respond(ctx, a.ID, "seller", respond(models.ActionReject, nil))
	require.NoError(t, err)

	all, err := f.svc.ListOffers(ctx, "seller", models.RoleSeller, models.ListOffersFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	rejected, err := f.svc.ListOffers(ctx, "buyer", models.RoleBuyer, models.ListOffersFilter{Status: models.OfferStatusRejected})
	require.NoError(t, err)
	require.Len(t, rejected, 1)
	assert.Equal(t, a.ID, rejected[0].ID)

	none, err := f.svc.ListOffers(ctx, "buyer", models.RoleSeller, models.ListOffersFilter{})
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = f.svc.ListOffers(ctx, "buyer", models.Role("admin"), models.ListOffersFilter{})
	assert.ErrorIs(t, err, apperrors.ErrBadRequest)

	_, err = f.svc.ListOffers(ctx, "buyer", models.RoleBuyer, models.ListOffersFilter{Status: "haggling"})
	assert.ErrorIs(t, err, apperrors.ErrBadRequest)

	_, err = f.svc.ListOffers(ctx, "buyer", models.RoleBuyer, models.ListOffersFilter{Limit: -1})
	assert.ErrorIs(t, err, apperrors.ErrBadRequest)
}

func TestExpirySweeperSweepOnce(t *testing.T) {
	f := newFixture(t)
	f.create(t, 700)
	f.clock.Advance(offerTTL)

	sweeper := NewExpirySweeper(f.svc, time.Minute, nil, metrics.New())
	sweeper.now = f.clock.Now

	n, err := sweeper.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestExpirySweeperStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	sweeper := NewExpirySweeper(f.svc, time.Hour, nil, metrics.New())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweeper.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
