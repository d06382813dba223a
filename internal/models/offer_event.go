package models

import (
	"time"
)

// OfferEvent is one entry of an offer's audit history. Creation and every
// later transition append exactly one event.
type OfferEvent struct {
	ID         string      `db:"id" json:"id"`
	OfferID    string      `db:"offer_id" json:"offer_id"`
	Action     Action      `db:"action" json:"action"`
	ActorID    string      `db:"actor_id" json:"actor_id"`
	FromStatus OfferStatus `db:"from_status" json:"from_status,omitempty"`
	ToStatus   OfferStatus `db:"to_status" json:"to_status"`
	Price      *int64      `db:"price" json:"price,omitempty"`
	Message    *string     `db:"message" json:"message,omitempty"`
	CreatedAt  time.Time   `db:"created_at" json:"created_at"`
}
