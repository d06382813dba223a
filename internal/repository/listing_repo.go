package repository

import (
	"context"
	"database/sql"

	"github.com/aditya/haggle/internal/models"
	"github.com/jmoiron/sqlx"
)

// ListingRepository is a read-only view of the catalogue's listings.
type ListingRepository interface {
	GetByID(ctx context.Context, id string) (*models.Listing, error)
}

type listingRepository struct {
	db *sqlx.DB
}

func NewListingRepository(db *sqlx.DB) ListingRepository {
	return &listingRepository{db: db}
}

func (r *listingRepository) GetByID(ctx context.Context, id string) (*models.Listing, error) {
	var listing models.Listing
	query := `SELECT id, seller_id, title, price, currency FROM listings WHERE id = $1`
	err := r.db.GetContext(ctx, &listing, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &listing, nil
}
