package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/aditya/haggle/internal/handler"
	"github.com/aditya/haggle/internal/middleware"
	"github.com/aditya/haggle/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the expiry sweeper",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		sweeper := service.NewExpirySweeper(a.offerService, cfg.ExpirySweepInterval, a.nrApp, a.metrics)
		sweepDone := make(chan struct{})
		go func() {
			defer close(sweepDone)
			sweeper.Run(ctx)
		}()

		srv := &http.Server{
			Addr:         ":" + cfg.Port,
			Handler:      newRouter(a),
			ReadTimeout:  15 * time.Second,
			IdleTimeout:  60 * time.Second,
			// No WriteTimeout: the notification stream is long-lived.
		}

		go func() {
			<-ctx.Done()
			log.Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.WithError(err).Error("server shutdown error")
			}
		}()

		log.WithField("port", cfg.Port).Info("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		<-sweepDone
		log.Info("server stopped gracefully")
		return nil
	},
}

func newRouter(a *app) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery)
	r.Use(middleware.Logger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", middleware.IdempotencyHeader},
		ExposedHeaders:   []string{"Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.NewRelicMiddleware(a.nrApp))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if err := a.db.Health(ctx); err != nil {
			http.Error(w, "database unhealthy", http.StatusServiceUnavailable)
			return
		}

		if err := a.redis.Health(ctx); err != nil {
			http.Error(w, "redis unhealthy", http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok","services":{"database":"up","redis":"up"}}`))
	})
	r.Handle("/metrics", a.metrics.Handler())

	auth := middleware.NewAuthenticator(cfg.JWTSecret)
	ipLimiter := middleware.NewRateLimiter(a.redis.Client, cfg.IPRateLimitPerMinute, time.Minute, middleware.ByClientIP)
	callerLimiter := middleware.NewRateLimiter(a.redis.Client, cfg.RateLimitPerMinute, time.Minute, middleware.ByCaller)
	idempotencyMw := middleware.NewIdempotencyMiddleware(a.redis.Client)

	r.Route("/v1", func(r chi.Router) {
		r.Use(ipLimiter.Handler)
		r.Use(auth.Handler)
		r.Use(callerLimiter.Handler)
		r.Use(idempotencyMw.Handler)

		handler.NewOfferHandler(a.offerService).RegisterRoutes(r)
		handler.NewNotificationHandler(a.redis.Client).RegisterRoutes(r)
	})

	return r
}
