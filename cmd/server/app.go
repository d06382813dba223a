package main

import (
	"net/http"
	"os"
	"time"

	"github.com/aditya/haggle/internal/cache"
	"github.com/aditya/haggle/internal/config"
	"github.com/aditya/haggle/internal/database"
	"github.com/aditya/haggle/internal/metrics"
	"github.com/aditya/haggle/internal/notify"
	"github.com/aditya/haggle/internal/repository"
	"github.com/aditya/haggle/internal/service"
	"github.com/newrelic/go-agent/v3/newrelic"
	log "github.com/sirupsen/logrus"
)

// app holds the wired dependencies shared by the serve, sweep and offers
// commands.
type app struct {
	cfg          *config.Config
	nrApp        *newrelic.Application
	db           *database.PostgresDB
	redis        *database.RedisDB
	metrics      *metrics.Metrics
	listingCache *cache.ListingCache
	dispatcher   *notify.AsyncDispatcher
	offerService service.OfferService
}

func newApp(cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg, metrics: metrics.New()}
	a.nrApp = newRelicApp(cfg)

	db, err := database.NewPostgres(cfg.DatabaseURL, cfg.DBMaxConnections, cfg.DBMaxIdleConnections)
	if err != nil {
		return nil, err
	}
	a.db = db

	redisDB, err := database.NewRedis(cfg.RedisURL, cfg.RedisPassword)
	if err != nil {
		db.Close()
		return nil, err
	}
	a.redis = redisDB

	offerRepo := repository.NewOfferRepository(db.DB)
	a.listingCache = cache.NewListingCache(redisDB.Client, repository.NewListingRepository(db.DB), cfg.ListingCacheTTL)
	locker := cache.NewRedisOfferLocker(redisDB.Client, cfg.LockTTL, cfg.LockWaitTimeout)

	sinks := []notify.Sink{notify.NewRedisPublisher(redisDB.Client)}
	if cfg.WebhookURL != "" {
		sinks = append(sinks, notify.NewWebhookNotifier(
			cfg.WebhookURL,
			cfg.WebhookSecret,
			cfg.WebhookRatePerSec,
			&http.Client{Timeout: 5 * time.Second},
		))
	}
	a.dispatcher = notify.NewAsyncDispatcher(notify.NewFanout(sinks...), a.metrics, cfg.NotifyQueueSize, cfg.NotifyWorkers)
	a.dispatcher.Start()

	a.offerService = service.NewOfferService(offerRepo, a.listingCache, locker, a.dispatcher, a.metrics, cfg.OfferTTL)
	return a, nil
}

// Close drains pending notifications before dropping connections.
func (a *app) Close() {
	a.dispatcher.Close()
	a.redis.Close()
	a.db.Close()
	if a.nrApp != nil {
		a.nrApp.Shutdown(10 * time.Second)
	}
}

func newRelicApp(cfg *config.Config) *newrelic.Application {
	if !cfg.NewRelicEnabled || cfg.NewRelicLicenseKey == "" {
		return nil
	}

	nrApp, err := newrelic.NewApplication(
		newrelic.ConfigAppName(cfg.NewRelicAppName),
		newrelic.ConfigLicense(cfg.NewRelicLicenseKey),
		newrelic.ConfigDistributedTracerEnabled(true),
		newrelic.ConfigAppLogForwardingEnabled(true),
		newrelic.ConfigInfoLogger(os.Stdout),
	)
	if err != nil {
		log.WithError(err).Warn("failed to initialize New Relic")
		return nil
	}

	if err := nrApp.WaitForConnection(10 * time.Second); err != nil {
		log.WithError(err).Warn("New Relic connection timeout")
	} else {
		log.Info("New Relic connected")
	}
	return nrApp
}
