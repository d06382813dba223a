package models

import (
	"time"
)

type NotificationEvent string

const (
	EventOfferReceived  NotificationEvent = "offer_received"
	EventOfferAccepted  NotificationEvent = "offer_accepted"
	EventOfferRejected  NotificationEvent = "offer_rejected"
	EventOfferCountered NotificationEvent = "offer_countered"
	EventOfferExpired   NotificationEvent = "offer_expired"
)

// Notification is delivered best-effort to one recipient.
type Notification struct {
	OfferID     string            `json:"offer_id"`
	Event       NotificationEvent `json:"event"`
	RecipientID string            `json:"recipient_id"`
	ListingID   string            `json:"listing_id"`
	Status      OfferStatus       `json:"status"`
	Price       int64             `json:"price"`
	OccurredAt  time.Time         `json:"occurred_at"`
}

// ConversationHint tells the chat service that buyer and seller agreed on a
// price and may want a thread. The engine never opens the thread itself.
type ConversationHint struct {
	OfferID   string `json:"offer_id"`
	ListingID string `json:"listing_id"`
	BuyerID   string `json:"buyer_id"`
	SellerID  string `json:"seller_id"`
	Price     int64  `json:"price"`
}

// Outcome bundles the side effects of one persisted transition.
type Outcome struct {
	Notifications []Notification
	Hint          *ConversationHint
}

func (o Outcome) IsEmpty() bool {
	return len(o.Notifications) == 0 && o.Hint == nil
}
