package service

import (
	"context"
	"time"

	"github.com/aditya/haggle/internal/metrics"
	"github.com/newrelic/go-agent/v3/newrelic"
	log "github.com/sirupsen/logrus"
)

// ExpirySweeper periodically expires offers whose horizon has passed.
type ExpirySweeper struct {
	offers   OfferService
	interval time.Duration
	nrApp    *newrelic.Application
	metrics  *metrics.Metrics
	now      func() time.Time
}

// NewExpirySweeper builds a sweeper; nrApp may be nil.
func NewExpirySweeper(offers OfferService, interval time.Duration, nrApp *newrelic.Application, m *metrics.Metrics) *ExpirySweeper {
	return &ExpirySweeper{
		offers:   offers,
		interval: interval,
		nrApp:    nrApp,
		metrics:  m,
		now:      time.Now,
	}
}

// Run sweeps once immediately and then every interval until ctx is done.
func (s *ExpirySweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.WithField("interval", s.interval).Info("expiry sweeper started")
	for {
		if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
			log.WithError(err).Error("expiry sweep failed")
		}

		select {
		case <-ctx.Done():
			log.Info("expiry sweeper stopped")
			return
		case <-ticker.C:
		}
	}
}

// SweepOnce runs a single pass and returns the number of offers expired.
func (s *ExpirySweeper) SweepOnce(ctx context.Context) (int, error) {
	if s.nrApp != nil {
		txn := s.nrApp.StartTransaction("offers/expiry-sweep")
		defer txn.End()
		ctx = newrelic.NewContext(ctx, txn)
	}

	start := time.Now()
	n, err := s.offers.ExpireDueOffers(ctx, s.now())
	s.metrics.ObserveSweep(time.Since(start))

	if err != nil {
		if txn := newrelic.FromContext(ctx); txn != nil {
			txn.NoticeError(err)
		}
		return n, err
	}
	if n > 0 {
		log.WithField("count", n).Info("expired offers")
	}
	return n, nil
}
