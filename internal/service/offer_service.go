package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aditya/haggle/internal/cache"
	apperrors "github.com/aditya/haggle/internal/errors"
	"github.com/aditya/haggle/internal/metrics"
	"github.com/aditya/haggle/internal/models"
	"github.com/aditya/haggle/internal/notify"
	"github.com/aditya/haggle/internal/repository"
	log "github.com/sirupsen/logrus"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
	expiryBatchSize  = 100
)

type OfferService interface {
	CreateOffer(ctx context.Context, buyerID string, req *models.CreateOfferRequest) (*models.Offer, error)
	Respond(ctx context.Context, offerID, actorID string, req *models.RespondOfferRequest) (*models.Offer, error)
	ListOffers(ctx context.Context, userID string, role models.Role, filter models.ListOffersFilter) ([]*models.Offer, error)
	GetOffer(ctx context.Context, offerID, actorID string) (*models.Offer, error)
	GetOfferHistory(ctx context.Context, offerID, actorID string) ([]*models.OfferEvent, error)
	// ExpireDueOffers expires every open offer whose horizon is at or before
	// now and returns how many it moved. Running it twice is harmless.
	ExpireDueOffers(ctx context.Context, now time.Time) (int, error)
}

type offerService struct {
	offers     repository.OfferRepository
	listings   repository.ListingRepository
	locker     cache.OfferLocker
	dispatcher notify.Dispatcher
	metrics    *metrics.Metrics
	machine    *NegotiationMachine
	offerTTL   time.Duration
	now        func() time.Time
}

func NewOfferService(
	offers repository.OfferRepository,
	listings repository.ListingRepository,
	locker cache.OfferLocker,
	dispatcher notify.Dispatcher,
	m *metrics.Metrics,
	offerTTL time.Duration,
) OfferService {
	return &offerService{
		offers:     offers,
		listings:   listings,
		locker:     locker,
		dispatcher: dispatcher,
		metrics:    m,
		machine:    NewNegotiationMachine(NewPricePolicy()),
		offerTTL:   offerTTL,
		now:        time.Now,
	}
}

func (s *offerService) CreateOffer(ctx context.Context, buyerID string, req *models.CreateOfferRequest) (*models.Offer, error) {
	offer, err := s.createOffer(ctx, buyerID, req)
	s.metrics.ObserveTransition(string(models.ActionCreate), err)
	return offer, err
}

func (s *offerService) createOffer(ctx context.Context, buyerID string, req *models.CreateOfferRequest) (*models.Offer, error) {
	listing, err := s.listings.GetByID(ctx, req.ListingID)
	if err != nil {
		return nil, fmt.Errorf("load listing %s: %w", req.ListingID, err)
	}
	if listing == nil {
		return nil, fmt.Errorf("listing %s: %w", req.ListingID, apperrors.ErrNotFound)
	}

	t, err := s.machine.NewOffer(listing, buyerID, req.OfferedPrice, req.Message, s.offerTTL, s.now())
	if err != nil {
		return nil, err
	}

	if err := s.offers.Create(ctx, t.Offer, t.Event); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"offer_id":   t.Offer.ID,
		"listing_id": listing.ID,
		"buyer_id":   buyerID,
		"price":      t.Offer.OfferedPrice,
	}).Info("offer created")

	s.dispatcher.Dispatch(t.Outcome)
	return t.Offer, nil
}

func (s *offerService) Respond(ctx context.Context, offerID, actorID string, req *models.RespondOfferRequest) (*models.Offer, error) {
	cmd := Command{
		Action:       req.Action,
		ActorID:      actorID,
		CounterPrice: req.CounterPrice,
		Message:      req.Message,
	}

	t, err := s.transition(ctx, offerID, func(current *models.Offer, now time.Time) (*Transition, error) {
		return s.machine.Apply(current, cmd, now)
	})
	action := string(req.Action)
	if !req.Action.IsResponse() {
		action = "unknown"
	}
	s.metrics.ObserveTransition(action, err)
	if err != nil {
		return nil, err
	}

	// Lock is released by now; delivery must never hold it.
	s.dispatcher.Dispatch(t.Outcome)
	return t.Offer, nil
}

func (s *offerService) ListOffers(ctx context.Context, userID string, role models.Role, filter models.ListOffersFilter) ([]*models.Offer, error) {
	if !role.IsValid() {
		return nil, fmt.Errorf("role must be buyer or seller: %w", apperrors.ErrBadRequest)
	}
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, fmt.Errorf("unknown status %q: %w", filter.Status, apperrors.ErrBadRequest)
	}
	if filter.Limit < 0 || filter.Offset < 0 {
		return nil, fmt.Errorf("limit and offset must not be negative: %w", apperrors.ErrBadRequest)
	}
	if filter.Limit == 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}

	return s.offers.ListByParty(ctx, role, userID, filter)
}

func (s *offerService) GetOffer(ctx context.Context, offerID, actorID string) (*models.Offer, error) {
	offer, err := s.offers.GetByID(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if offer == nil {
		return nil, fmt.Errorf("offer %s: %w", offerID, apperrors.ErrNotFound)
	}
	if offer.RoleOf(actorID) == models.RoleNone {
		return nil, fmt.Errorf("user is not a party to offer %s: %w", offerID, apperrors.ErrForbidden)
	}
	return offer, nil
}

func (s *offerService) GetOfferHistory(ctx context.Context, offerID, actorID string) ([]*models.OfferEvent, error) {
	if _, err := s.GetOffer(ctx, offerID, actorID); err != nil {
		return nil, err
	}
	return s.offers.ListEvents(ctx, offerID)
}

func (s *offerService) ExpireDueOffers(ctx context.Context, now time.Time) (int, error) {
	expired := 0
	seen := make(map[string]bool)

	for {
		due, err := s.offers.ListDue(ctx, now, expiryBatchSize)
		if err != nil {
			return expired, fmt.Errorf("list due offers: %w", err)
		}

		fresh := 0
		for _, offer := range due {
			if seen[offer.ID] {
				continue
			}
			seen[offer.ID] = true
			fresh++

			ok, err := s.expireOne(ctx, offer.ID, now)
			if err != nil {
				if ctx.Err() != nil {
					return expired, ctx.Err()
				}
				log.WithError(err).WithField("offer_id", offer.ID).Warn("failed to expire offer")
				continue
			}
			if ok {
				expired++
			}
		}

		// Skipped offers stay due, so stop once a batch brings nothing new.
		if len(due) < expiryBatchSize || fresh == 0 {
			break
		}
	}

	s.metrics.ObserveExpired(expired)
	return expired, nil
}

// expireOne reports false without error when the offer moved on or is held
// by a responder; the next sweep will look at it again if it is still due.
func (s *offerService) expireOne(ctx context.Context, offerID string, now time.Time) (bool, error) {
	t, err := s.transition(ctx, offerID, func(current *models.Offer, _ time.Time) (*Transition, error) {
		return s.machine.Expire(current, now)
	})
	switch {
	case err == nil:
	case errors.Is(err, apperrors.ErrBusy), errors.Is(err, apperrors.ErrInvalidTransition), errors.Is(err, apperrors.ErrNotFound):
		log.WithError(err).WithField("offer_id", offerID).Debug("skipping offer during expiry sweep")
		return false, nil
	default:
		return false, err
	}

	s.metrics.ObserveTransition(string(models.ActionExpire), nil)
	s.dispatcher.Dispatch(t.Outcome)
	return true, nil
}

// transition runs apply against the stored offer under the per-offer lock
// and persists the result conditionally on the status it was computed from.
func (s *offerService) transition(ctx context.Context, offerID string, apply func(*models.Offer, time.Time) (*Transition, error)) (*Transition, error) {
	start := time.Now()
	unlock, err := s.locker.Lock(ctx, offerID)
	s.metrics.ObserveLockWait(time.Since(start))
	if err != nil {
		return nil, err
	}
	defer unlock()

	current, err := s.offers.GetByID(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, fmt.Errorf("offer %s: %w", offerID, apperrors.ErrNotFound)
	}

	t, err := apply(current, s.now())
	if err != nil {
		return nil, err
	}

	if err := s.offers.UpdateWithEvent(ctx, t.Offer, t.From, t.Event); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"offer_id": offerID,
		"action":   t.Event.Action,
		"actor_id": t.Event.ActorID,
		"from":     t.From,
		"to":       t.Offer.Status,
	}).Info("offer transitioned")
	return t, nil
}
