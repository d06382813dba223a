package inmemory

import (
	"context"
	"testing"
	"time"

	apperrors "github.com/aditya/haggle/internal/errors"
	"github.com/aditya/haggle/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOffer(id, buyer string, createdAt time.Time) *models.Offer {
	return &models.Offer{
		ID:           id,
		ListingID:    "listing-1",
		ListedPrice:  1000,
		BuyerID:      buyer,
		SellerID:     "seller",
		OfferedPrice: 700,
		Status:       models.OfferStatusPending,
		CreatedAt:    createdAt,
		ExpiresAt:    createdAt.Add(time.Hour),
		UpdatedAt:    createdAt,
	}
}

func createEvent(o *models.Offer) *models.OfferEvent {
	return &models.OfferEvent{ID: o.ID + "-create", OfferID: o.ID, Action: models.ActionCreate, ActorID: o.BuyerID, ToStatus: o.Status, CreatedAt: o.CreatedAt}
}

func TestOfferRepositoryIsolation(t *testing.T) {
	ctx := context.Background()
	repo := NewOfferRepository()
	now := time.Now()

	o := newOffer("o1", "buyer", now)
	require.NoError(t, repo.Create(ctx, o, createEvent(o)))

	o.Status = models.OfferStatusAccepted
	stored, err := repo.GetByID(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, models.OfferStatusPending, stored.Status)

	stored.OfferedPrice = 1
	again, err := repo.GetByID(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, int64(700), again.OfferedPrice)

	missing, err := repo.GetByID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestOfferRepositoryConditionalUpdate(t *testing.T) {
	ctx := context.Background()
	repo := NewOfferRepository()
	now := time.Now()

	o := newOffer("o1", "buyer", now)
	require.NoError(t, repo.Create(ctx, o, createEvent(o)))

	accepted := o.Clone()
	accepted.Status = models.OfferStatusAccepted
	acceptEvent := &models.OfferEvent{ID: "e2", OfferID: "o1", Action: models.ActionAccept, FromStatus: models.OfferStatusPending, ToStatus: models.OfferStatusAccepted}
	require.NoError(t, repo.UpdateWithEvent(ctx, accepted, models.OfferStatusPending, acceptEvent))

	rejected := o.Clone()
	rejected.Status = models.OfferStatusRejected
	err := repo.UpdateWithEvent(ctx, rejected, models.OfferStatusPending, &models.OfferEvent{ID: "e3", OfferID: "o1"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)

	stored, _ := repo.GetByID(ctx, "o1")
	assert.Equal(t, models.OfferStatusAccepted, stored.Status)

	events, err := repo.ListEvents(ctx, "o1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, models.ActionCreate, events[0].Action)
	assert.Equal(t, models.ActionAccept, events[1].Action)
}

func TestOfferRepositoryListByParty(t *testing.T) {
	ctx := context.Background()
	repo := NewOfferRepository()
	now := time.Now()

	for i, id := range []string{"a", "b", "c"} {
		o := newOffer(id, "buyer", now.Add(time.Duration(i)*time.Minute))
		require.NoError(t, repo.Create(ctx, o, createEvent(o)))
	}
	other := newOffer("d", "someone-else", now)
	require.NoError(t, repo.Create(ctx, other, createEvent(other)))

	offers, err := repo.ListByParty(ctx, models.RoleBuyer, "buyer", models.ListOffersFilter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, offers, 2)
	assert.Equal(t, "c", offers[0].ID)
	assert.Equal(t, "b", offers[1].ID)

	offers, err = repo.ListByParty(ctx, models.RoleBuyer, "buyer", models.ListOffersFilter{Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, offers, 1)
	assert.Equal(t, "a", offers[0].ID)

	offers, err = repo.ListByParty(ctx, models.RoleSeller, "seller", models.ListOffersFilter{Status: models.OfferStatusCountered})
	require.NoError(t, err)
	assert.Empty(t, offers)

	offers, err = repo.ListByParty(ctx, models.RoleSeller, "seller", models.ListOffersFilter{})
	require.NoError(t, err)
	assert.Len(t, offers, 4)
}

func TestOfferRepositoryListDue(t *testing.T) {
	ctx := context.Background()
	repo := NewOfferRepository()
	now := time.Now()

	due := newOffer("due", "buyer", now.Add(-2*time.Hour))
	fresh := newOffer("fresh", "buyer", now)
	closed := newOffer("closed", "buyer", now.Add(-3*time.Hour))
	closed.Status = models.OfferStatusRejected
	for _, o := range []*models.Offer{due, fresh, closed} {
		require.NoError(t, repo.Create(ctx, o, createEvent(o)))
	}

	offers, err := repo.ListDue(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, offers, 1)
	assert.Equal(t, "due", offers[0].ID)
}
