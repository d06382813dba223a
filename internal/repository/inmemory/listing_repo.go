package inmemory

import (
	"context"
	"sync"

	"github.com/aditya/haggle/internal/models"
)

// ListingRepository serves a fixed set of listings for tests.
type ListingRepository struct {
	listings map[string]models.Listing
	locker   sync.RWMutex
}

func NewListingRepository(listings ...models.Listing) *ListingRepository {
	r := &ListingRepository{listings: map[string]models.Listing{}}
	for _, l := range listings {
		r.listings[l.ID] = l
	}
	return r
}

func (r *ListingRepository) GetByID(_ context.Context, id string) (*models.Listing, error) {
	r.locker.RLock()
	defer r.locker.RUnlock()

	l, ok := r.listings[id]
	if !ok {
		return nil, nil
	}
	return &l, nil
}
