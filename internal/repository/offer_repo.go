package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	apperrors "github.com/aditya/haggle/internal/errors"
	"github.com/aditya/haggle/internal/models"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const offerColumns = `id, listing_id, listed_price, buyer_id, seller_id, offered_price,
	counter_price, status, message, response_message, discount_percent,
	created_at, responded_at, expires_at, updated_at`

const offerEventColumns = `id, offer_id, action, actor_id, from_status, to_status, price, message, created_at`

// OfferRepository persists offers together with their history. Every write
// stores the offer row and exactly one event in the same transaction.
type OfferRepository interface {
	Create(ctx context.Context, offer *models.Offer, event *models.OfferEvent) error
	GetByID(ctx context.Context, id string) (*models.Offer, error)
	// UpdateWithEvent writes offer only if the stored status is still prev.
	// A lost race returns ErrInvalidTransition and nothing is written.
	UpdateWithEvent(ctx context.Context, offer *models.Offer, prev models.OfferStatus, event *models.OfferEvent) error
	ListByParty(ctx context.Context, role models.Role, userID string, filter models.ListOffersFilter) ([]*models.Offer, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]*models.Offer, error)
	ListEvents(ctx context.Context, offerID string) ([]*models.OfferEvent, error)
}

type offerRepository struct {
	db *sqlx.DB
}

func NewOfferRepository(db *sqlx.DB) OfferRepository {
	return &offerRepository{db: db}
}

func (r *offerRepository) Create(ctx context.Context, offer *models.Offer, event *models.OfferEvent) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO offers (` + offerColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	if _, err := tx.ExecContext(ctx, query,
		offer.ID, offer.ListingID, offer.ListedPrice, offer.BuyerID, offer.SellerID, offer.OfferedPrice,
		offer.CounterPrice, offer.Status, offer.Message, offer.ResponseMessage, offer.DiscountPercent,
		offer.CreatedAt, offer.RespondedAt, offer.ExpiresAt, offer.UpdatedAt); err != nil {
		return fmt.Errorf("insert offer: %w", err)
	}

	if err := insertEvent(ctx, tx, event); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *offerRepository) GetByID(ctx context.Context, id string) (*models.Offer, error) {
	var offer models.Offer
	query := `SELECT ` + offerColumns + ` FROM offers WHERE id = $1`
	err := r.db.GetContext(ctx, &offer, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &offer, nil
}

func (r *offerRepository) UpdateWithEvent(ctx context.Context, offer *models.Offer, prev models.OfferStatus, event *models.OfferEvent) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
		UPDATE offers
		SET offered_price = $1, counter_price = $2, status = $3, response_message = $4,
			discount_percent = $5, responded_at = $6, updated_at = $7
		WHERE id = $8 AND status = $9
	`
	res, err := tx.ExecContext(ctx, query,
		offer.OfferedPrice, offer.CounterPrice, offer.Status, offer.ResponseMessage,
		offer.DiscountPercent, offer.RespondedAt, offer.UpdatedAt, offer.ID, prev)
	if err != nil {
		return fmt.Errorf("update offer: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("offer %s is no longer %s: %w", offer.ID, prev, apperrors.ErrInvalidTransition)
	}

	if err := insertEvent(ctx, tx, event); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *offerRepository) ListByParty(ctx context.Context, role models.Role, userID string, filter models.ListOffersFilter) ([]*models.Offer, error) {
	column := "buyer_id"
	if role == models.RoleSeller {
		column = "seller_id"
	}

	offers := []*models.Offer{}
	var err error
	if filter.Status != "" {
		query := `SELECT ` + offerColumns + ` FROM offers
			WHERE ` + column + ` = $1 AND status = $2
			ORDER BY created_at DESC
			LIMIT $3 OFFSET $4`
		err = r.db.SelectContext(ctx, &offers, query, userID, filter.Status, filter.Limit, filter.Offset)
	} else {
		query := `SELECT ` + offerColumns + ` FROM offers
			WHERE ` + column + ` = $1
			ORDER BY created_at DESC
			LIMIT $2 OFFSET $3`
		err = r.db.SelectContext(ctx, &offers, query, userID, filter.Limit, filter.Offset)
	}
	return offers, err
}

// ListDue returns open offers whose horizon has passed, oldest first.
func (r *offerRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*models.Offer, error) {
	offers := []*models.Offer{}
	query := `SELECT ` + offerColumns + ` FROM offers
		WHERE status = ANY($1) AND expires_at <= $2
		ORDER BY expires_at ASC
		LIMIT $3`
	err := r.db.SelectContext(ctx, &offers, query, pq.Array(statusStrings(models.NonTerminalStatuses)), now, limit)
	return offers, err
}

func (r *offerRepository) ListEvents(ctx context.Context, offerID string) ([]*models.OfferEvent, error) {
	events := []*models.OfferEvent{}
	query := `SELECT ` + offerEventColumns + ` FROM offer_events
		WHERE offer_id = $1
		ORDER BY created_at ASC, id ASC`
	err := r.db.SelectContext(ctx, &events, query, offerID)
	return events, err
}

func insertEvent(ctx context.Context, tx *sqlx.Tx, event *models.OfferEvent) error {
	query := `
		INSERT INTO offer_events (` + offerEventColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := tx.ExecContext(ctx, query,
		event.ID, event.OfferID, event.Action, event.ActorID, event.FromStatus, event.ToStatus,
		event.Price, event.Message, event.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert offer event: %w", err)
	}
	return nil
}

func statusStrings(statuses []models.OfferStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
