package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	apperrors "github.com/aditya/haggle/internal/errors"
	"github.com/aditya/haggle/internal/models"
	"github.com/aditya/haggle/internal/repository"
)

type offerInmemoryStore struct {
	offers map[string]*models.Offer
	events map[string][]*models.OfferEvent
	locker *sync.Mutex
}

type offerRepositoryImpl struct {
	store *offerInmemoryStore
}

// NewOfferRepository returns an inmemory OfferRepository. Stored offers are
// copied on the way in and out so callers never share state with the store.
func NewOfferRepository() repository.OfferRepository {
	return &offerRepositoryImpl{
		store: &offerInmemoryStore{
			offers: map[string]*models.Offer{},
			events: map[string][]*models.OfferEvent{},
			locker: &sync.Mutex{},
		},
	}
}

func (r *offerRepositoryImpl) Create(_ context.Context, offer *models.Offer, event *models.OfferEvent) error {
	r.store.locker.Lock()
	defer r.store.locker.Unlock()

	if _, ok := r.store.offers[offer.ID]; ok {
		return fmt.Errorf("offer %s already exists", offer.ID)
	}
	r.store.offers[offer.ID] = offer.Clone()
	r.appendEvent(event)
	return nil
}

func (r *offerRepositoryImpl) GetByID(_ context.Context, id string) (*models.Offer, error) {
	r.store.locker.Lock()
	defer r.store.locker.Unlock()

	offer, ok := r.store.offers[id]
	if !ok {
		return nil, nil
	}
	return offer.Clone(), nil
}

func (r *offerRepositoryImpl) UpdateWithEvent(_ context.Context, offer *models.Offer, prev models.OfferStatus, event *models.OfferEvent) error {
	r.store.locker.Lock()
	defer r.store.locker.Unlock()

	stored, ok := r.store.offers[offer.ID]
	if !ok || stored.Status != prev {
		return fmt.Errorf("offer %s is no longer %s: %w", offer.ID, prev, apperrors.ErrInvalidTransition)
	}
	r.store.offers[offer.ID] = offer.Clone()
	r.appendEvent(event)
	return nil
}

func (r *offerRepositoryImpl) ListByParty(_ context.Context, role models.Role, userID string, filter models.ListOffersFilter) ([]*models.Offer, error) {
	r.store.locker.Lock()
	defer r.store.locker.Unlock()

	matches := make([]*models.Offer, 0)
	for _, o := range r.store.offers {
		if role == models.RoleSeller && o.SellerID != userID {
			continue
		}
		if role == models.RoleBuyer && o.BuyerID != userID {
			continue
		}
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		matches = append(matches, o.Clone())
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})

	return paginate(matches, filter.Limit, filter.Offset), nil
}

func (r *offerRepositoryImpl) ListDue(_ context.Context, now time.Time, limit int) ([]*models.Offer, error) {
	r.store.locker.Lock()
	defer r.store.locker.Unlock()

	due := make([]*models.Offer, 0)
	for _, o := range r.store.offers {
		if o.IsDue(now) {
			due = append(due, o.Clone())
		}
	}
	sort.Slice(due, func(i, j int) bool {
		return due[i].ExpiresAt.Before(due[j].ExpiresAt)
	})

	return paginate(due, limit, 0), nil
}

func (r *offerRepositoryImpl) ListEvents(_ context.Context, offerID string) ([]*models.OfferEvent, error) {
	r.store.locker.Lock()
	defer r.store.locker.Unlock()

	events := r.store.events[offerID]
	out := make([]*models.OfferEvent, len(events))
	for i, e := range events {
		c := *e
		out[i] = &c
	}
	return out, nil
}

func (r *offerRepositoryImpl) appendEvent(event *models.OfferEvent) {
	if event == nil {
		return
	}
	c := *event
	r.store.events[event.OfferID] = append(r.store.events[event.OfferID], &c)
}

func paginate(offers []*models.Offer, limit, offset int) []*models.Offer {
	if offset >= len(offers) {
		return []*models.Offer{}
	}
	offers = offers[offset:]
	if limit > 0 && limit < len(offers) {
		offers = offers[:limit]
	}
	return offers
}
