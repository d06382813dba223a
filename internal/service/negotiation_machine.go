package service

import (
	"fmt"
	"time"

	apperrors "github.com/aditya/haggle/internal/errors"
	"github.com/aditya/haggle/internal/models"
	"github.com/aditya/haggle/pkg/utils"
)

// Command is one requested action against an offer.
type Command struct {
	Action       models.Action
	ActorID      string
	CounterPrice *int64
	Message      string
}

// Transition is the result of applying a Command: the new offer state, the
// history entry to persist with it, and the side effects to dispatch after
// the write.
type Transition struct {
	From    models.OfferStatus
	Offer   *models.Offer
	Event   *models.OfferEvent
	Outcome models.Outcome
}

// NegotiationMachine is the offer transition function. It never mutates the
// offer it is given.
type NegotiationMachine struct {
	policy PricePolicy
}

func NewNegotiationMachine(policy PricePolicy) *NegotiationMachine {
	return &NegotiationMachine{policy: policy}
}

// Apply validates a party's response against the offer's current state and
// the actor's role, then computes the next state. Expiry is not a response;
// only the sweep reaches Expire.
func (m *NegotiationMachine) Apply(offer *models.Offer, cmd Command, now time.Time) (*Transition, error) {
	role := offer.RoleOf(cmd.ActorID)
	if role == models.RoleNone {
		return nil, fmt.Errorf("user is not a party to offer %s: %w", offer.ID, apperrors.ErrForbidden)
	}

	if offer.Status.IsTerminal() {
		return nil, fmt.Errorf("offer %s is already %s: %w", offer.ID, offer.Status, apperrors.ErrInvalidTransition)
	}

	if expected := actingRole(offer.Status); role != expected {
		return nil, fmt.Errorf("only the %s may respond to a %s offer: %w", expected, offer.Status, apperrors.ErrUnauthorized)
	}

	if !now.Before(offer.ExpiresAt) {
		return nil, fmt.Errorf("offer %s lapsed at %s: %w", offer.ID, offer.ExpiresAt.Format(time.RFC3339), apperrors.ErrInvalidTransition)
	}

	switch {
	case offer.Status == models.OfferStatusPending && cmd.Action == models.ActionAccept:
		return m.sellerAccept(offer, cmd, now), nil
	case offer.Status == models.OfferStatusPending && cmd.Action == models.ActionReject:
		return m.reject(offer, cmd, now), nil
	case offer.Status == models.OfferStatusPending && cmd.Action == models.ActionCounter:
		return m.counter(offer, cmd, now)
	case offer.Status == models.OfferStatusCountered && cmd.Action == models.ActionAccept:
		return m.buyerAccept(offer, cmd, now), nil
	case offer.Status == models.OfferStatusCountered && cmd.Action == models.ActionReject:
		return m.reject(offer, cmd, now), nil
	default:
		return nil, fmt.Errorf("%s cannot %s a %s offer: %w", role, cmd.Action, offer.Status, apperrors.ErrInvalidTransition)
	}
}

// Expire moves a due, non-terminal offer to expired. Expiry is a timeout, not
// a response, so an expired offer carries no RespondedAt even if it had been
// countered.
func (m *NegotiationMachine) Expire(offer *models.Offer, now time.Time) (*Transition, error) {
	if !offer.CanTransitionTo(models.OfferStatusExpired) {
		return nil, fmt.Errorf("offer %s is already %s: %w", offer.ID, offer.Status, apperrors.ErrInvalidTransition)
	}
	if now.Before(offer.ExpiresAt) {
		return nil, fmt.Errorf("offer %s is not due until %s: %w", offer.ID, offer.ExpiresAt.Format(time.RFC3339), apperrors.ErrInvalidTransition)
	}

	next := offer.Clone()
	next.Status = models.OfferStatusExpired
	next.CounterPrice = nil
	next.RespondedAt = nil
	next.UpdatedAt = now

	t := m.newTransition(offer, next, models.ActionExpire, models.SystemActorID, nil, nil, now)
	t.Outcome.Notifications = []models.Notification{
		notificationFor(next, models.EventOfferExpired, next.BuyerID, next.OfferedPrice, now),
		notificationFor(next, models.EventOfferExpired, next.SellerID, next.OfferedPrice, now),
	}
	return t, nil
}

// NewOffer builds a fresh pending offer and its creation event.
func (m *NegotiationMachine) NewOffer(listing *models.Listing, buyerID string, offeredPrice int64, message string, ttl time.Duration, now time.Time) (*Transition, error) {
	if listing.SellerID == buyerID {
		return nil, fmt.Errorf("cannot make an offer on your own listing: %w", apperrors.ErrForbidden)
	}
	if err := m.policy.ValidateInitialOffer(listing.Price, offeredPrice); err != nil {
		return nil, err
	}

	offer := &models.Offer{
		ID:              utils.GenerateID(),
		ListingID:       listing.ID,
		ListedPrice:     listing.Price,
		BuyerID:         buyerID,
		SellerID:        listing.SellerID,
		OfferedPrice:    offeredPrice,
		Status:          models.OfferStatusPending,
		Message:         optionalString(message),
		DiscountPercent: m.policy.DiscountPercent(listing.Price, offeredPrice),
		CreatedAt:       now,
		ExpiresAt:       now.Add(ttl),
		UpdatedAt:       now,
	}

	price := offeredPrice
	t := &Transition{
		Offer: offer,
		Event: &models.OfferEvent{
			ID:        utils.GenerateID(),
			OfferID:   offer.ID,
			Action:    models.ActionCreate,
			ActorID:   buyerID,
			ToStatus:  models.OfferStatusPending,
			Price:     &price,
			Message:   optionalString(message),
			CreatedAt: now,
		},
	}
	t.Outcome.Notifications = []models.Notification{
		notificationFor(offer, models.EventOfferReceived, offer.SellerID, offeredPrice, now),
	}
	return t, nil
}

func (m *NegotiationMachine) sellerAccept(offer *models.Offer, cmd Command, now time.Time) *Transition {
	next := offer.Clone()
	next.Status = models.OfferStatusAccepted
	next.RespondedAt = &now
	next.UpdatedAt = now
	if msg := optionalString(cmd.Message); msg != nil {
		next.ResponseMessage = msg
	}

	price := next.OfferedPrice
	t := m.newTransition(offer, next, models.ActionAccept, cmd.ActorID, &price, optionalString(cmd.Message), now)
	t.Outcome.Notifications = []models.Notification{
		notificationFor(next, models.EventOfferAccepted, next.BuyerID, price, now),
		notificationFor(next, models.EventOfferAccepted, next.SellerID, price, now),
	}
	t.Outcome.Hint = hintFor(next)
	return t
}

func (m *NegotiationMachine) buyerAccept(offer *models.Offer, cmd Command, now time.Time) *Transition {
	next := offer.Clone()
	next.Status = models.OfferStatusAccepted
	next.OfferedPrice = *offer.CounterPrice
	next.CounterPrice = nil
	next.DiscountPercent = m.policy.DiscountPercent(next.ListedPrice, next.OfferedPrice)
	next.RespondedAt = &now
	next.UpdatedAt = now

	price := next.OfferedPrice
	t := m.newTransition(offer, next, models.ActionAccept, cmd.ActorID, &price, optionalString(cmd.Message), now)
	t.Outcome.Notifications = []models.Notification{
		notificationFor(next, models.EventOfferAccepted, next.SellerID, price, now),
	}
	t.Outcome.Hint = hintFor(next)
	return t
}

func (m *NegotiationMachine) counter(offer *models.Offer, cmd Command, now time.Time) (*Transition, error) {
	if cmd.CounterPrice == nil {
		return nil, fmt.Errorf("counter requires a counter price: %w", apperrors.ErrInvalidPrice)
	}
	counterPrice := *cmd.CounterPrice
	if err := m.policy.ValidateCounter(offer.OfferedPrice, offer.ListedPrice, counterPrice); err != nil {
		return nil, err
	}

	next := offer.Clone()
	next.Status = models.OfferStatusCountered
	next.CounterPrice = &counterPrice
	next.ResponseMessage = optionalString(cmd.Message)
	next.RespondedAt = &now
	next.UpdatedAt = now

	price := counterPrice
	t := m.newTransition(offer, next, models.ActionCounter, cmd.ActorID, &price, optionalString(cmd.Message), now)
	t.Outcome.Notifications = []models.Notification{
		notificationFor(next, models.EventOfferCountered, next.BuyerID, counterPrice, now),
	}
	return t, nil
}

// reject covers both the seller rejecting a pending offer and the buyer
// rejecting a counter; the other party is notified.
func (m *NegotiationMachine) reject(offer *models.Offer, cmd Command, now time.Time) *Transition {
	next := offer.Clone()
	next.Status = models.OfferStatusRejected
	next.RespondedAt = &now
	next.UpdatedAt = now

	next.CounterPrice = nil

	recipient := next.SellerID
	if offer.Status == models.OfferStatusPending {
		next.ResponseMessage = optionalString(cmd.Message)
		recipient = next.BuyerID
	}

	t := m.newTransition(offer, next, models.ActionReject, cmd.ActorID, nil, optionalString(cmd.Message), now)
	t.Outcome.Notifications = []models.Notification{
		notificationFor(next, models.EventOfferRejected, recipient, next.OfferedPrice, now),
	}
	return t
}

func (m *NegotiationMachine) newTransition(prev, next *models.Offer, action models.Action, actorID string, price *int64, message *string, now time.Time) *Transition {
	return &Transition{
		From:  prev.Status,
		Offer: next,
		Event: &models.OfferEvent{
			ID:         utils.GenerateID(),
			OfferID:    next.ID,
			Action:     action,
			ActorID:    actorID,
			FromStatus: prev.Status,
			ToStatus:   next.Status,
			Price:      price,
			Message:    message,
			CreatedAt:  now,
		},
	}
}

// actingRole is the only role entitled to act on a non-terminal status.
func actingRole(status models.OfferStatus) models.Role {
	if status == models.OfferStatusCountered {
		return models.RoleBuyer
	}
	return models.RoleSeller
}

func notificationFor(offer *models.Offer, event models.NotificationEvent, recipientID string, price int64, now time.Time) models.Notification {
	return models.Notification{
		OfferID:     offer.ID,
		Event:       event,
		RecipientID: recipientID,
		ListingID:   offer.ListingID,
		Status:      offer.Status,
		Price:       price,
		OccurredAt:  now,
	}
}

func hintFor(offer *models.Offer) *models.ConversationHint {
	return &models.ConversationHint{
		OfferID:   offer.ID,
		ListingID: offer.ListingID,
		BuyerID:   offer.BuyerID,
		SellerID:  offer.SellerID,
		Price:     offer.OfferedPrice,
	}
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
