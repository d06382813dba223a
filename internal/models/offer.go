package models

import (
	"time"
)

type OfferStatus string

// Offer status constants
const (
	OfferStatusPending   OfferStatus = "pending"
	OfferStatusAccepted  OfferStatus = "accepted"
	OfferStatusRejected  OfferStatus = "rejected"
	OfferStatusCountered OfferStatus = "countered"
	OfferStatusExpired   OfferStatus = "expired"
)

// Valid offer state transitions
var ValidOfferTransitions = map[OfferStatus][]OfferStatus{
	OfferStatusPending:   {OfferStatusAccepted, OfferStatusRejected, OfferStatusCountered, OfferStatusExpired},
	OfferStatusCountered: {OfferStatusAccepted, OfferStatusRejected, OfferStatusExpired},
	OfferStatusAccepted:  {},
	OfferStatusRejected:  {},
	OfferStatusExpired:   {},
}

// IsTerminal reports whether no transition leaves this status.
func (s OfferStatus) IsTerminal() bool {
	return s == OfferStatusAccepted || s == OfferStatusRejected || s == OfferStatusExpired
}

func (s OfferStatus) IsValid() bool {
	_, ok := ValidOfferTransitions[s]
	return ok
}

// NonTerminalStatuses are the statuses the expiry sweep looks at.
var NonTerminalStatuses = []OfferStatus{OfferStatusPending, OfferStatusCountered}

type Action string

const (
	ActionCreate  Action = "create"
	ActionAccept  Action = "accept"
	ActionReject  Action = "reject"
	ActionCounter Action = "counter"
	ActionExpire  Action = "expire"
)

// IsResponse reports whether a party may send a as a response to an offer.
func (a Action) IsResponse() bool {
	return a == ActionAccept || a == ActionReject || a == ActionCounter
}

type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
	// RoleNone is returned for callers that are not a party to the offer.
	RoleNone Role = ""
)

func (r Role) IsValid() bool {
	return r == RoleBuyer || r == RoleSeller
}

// SystemActorID is recorded as the actor of clock-driven transitions.
const SystemActorID = "system"

// Offer prices are integer minor units (cents).
type Offer struct {
	ID              string      `db:"id" json:"id"`
	ListingID       string      `db:"listing_id" json:"listing_id"`
	ListedPrice     int64       `db:"listed_price" json:"listed_price"`
	BuyerID         string      `db:"buyer_id" json:"buyer_id"`
	SellerID        string      `db:"seller_id" json:"seller_id"`
	OfferedPrice    int64       `db:"offered_price" json:"offered_price"`
	CounterPrice    *int64      `db:"counter_price" json:"counter_price,omitempty"`
	Status          OfferStatus `db:"status" json:"status"`
	Message         *string     `db:"message" json:"message,omitempty"`
	ResponseMessage *string     `db:"response_message" json:"response_message,omitempty"`
	DiscountPercent int         `db:"discount_percent" json:"discount_percent"`
	CreatedAt       time.Time   `db:"created_at" json:"created_at"`
	RespondedAt     *time.Time  `db:"responded_at" json:"responded_at,omitempty"`
	ExpiresAt       time.Time   `db:"expires_at" json:"expires_at"`
	UpdatedAt       time.Time   `db:"updated_at" json:"updated_at"`
}

type CreateOfferRequest struct {
	ListingID    string `json:"listing_id" validate:"required"`
	OfferedPrice int64  `json:"offered_price"`
	Message      string `json:"message,omitempty" validate:"max=1000"`
}

type RespondOfferRequest struct {
	Action       Action `json:"action" validate:"required,oneof=accept reject counter"`
	CounterPrice *int64 `json:"counter_price,omitempty"`
	Message      string `json:"message,omitempty" validate:"max=1000"`
}

type ListOffersFilter struct {
	Status OfferStatus
	Limit  int
	Offset int
}

type OfferResponse struct {
	ID              string      `json:"id"`
	ListingID       string      `json:"listing_id"`
	ListedPrice     int64       `json:"listed_price"`
	BuyerID         string      `json:"buyer_id"`
	SellerID        string      `json:"seller_id"`
	OfferedPrice    int64       `json:"offered_price"`
	CounterPrice    *int64      `json:"counter_price,omitempty"`
	Status          OfferStatus `json:"status"`
	Message         *string     `json:"message,omitempty"`
	ResponseMessage *string     `json:"response_message,omitempty"`
	DiscountPercent int         `json:"discount_percent"`
	CreatedAt       time.Time   `json:"created_at"`
	RespondedAt     *time.Time  `json:"responded_at,omitempty"`
	ExpiresAt       time.Time   `json:"expires_at"`
}

func (o *Offer) ToResponse() *OfferResponse {
	return &OfferResponse{
		ID:              o.ID,
		ListingID:       o.ListingID,
		ListedPrice:     o.ListedPrice,
		BuyerID:         o.BuyerID,
		SellerID:        o.SellerID,
		OfferedPrice:    o.OfferedPrice,
		CounterPrice:    o.CounterPrice,
		Status:          o.Status,
		Message:         o.Message,
		ResponseMessage: o.ResponseMessage,
		DiscountPercent: o.DiscountPercent,
		CreatedAt:       o.CreatedAt,
		RespondedAt:     o.RespondedAt,
		ExpiresAt:       o.ExpiresAt,
	}
}

// Clone returns a deep copy so callers can compute a new state without
// touching the stored one.
func (o *Offer) Clone() *Offer {
	c := *o
	if o.CounterPrice != nil {
		v := *o.CounterPrice
		c.CounterPrice = &v
	}
	if o.Message != nil {
		v := *o.Message
		c.Message = &v
	}
	if o.ResponseMessage != nil {
		v := *o.ResponseMessage
		c.ResponseMessage = &v
	}
	if o.RespondedAt != nil {
		v := *o.RespondedAt
		c.RespondedAt = &v
	}
	return &c
}

// RoleOf resolves the caller's role on this offer once per call.
func (o *Offer) RoleOf(userID string) Role {
	switch userID {
	case o.SellerID:
		return RoleSeller
	case o.BuyerID:
		return RoleBuyer
	default:
		return RoleNone
	}
}

// CanTransitionTo checks if an offer can transition to a new status
func (o *Offer) CanTransitionTo(newStatus OfferStatus) bool {
	validNextStates, exists := ValidOfferTransitions[o.Status]
	if !exists {
		return false
	}

	for _, state := range validNextStates {
		if state == newStatus {
			return true
		}
	}
	return false
}

// IsDue reports whether the offer is still open but past its horizon.
func (o *Offer) IsDue(now time.Time) bool {
	return !o.Status.IsTerminal() && !now.Before(o.ExpiresAt)
}
