//go:build ignore

package main

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/aditya/haggle/internal/cache"
	"github.com/aditya/haggle/internal/config"
	"github.com/aditya/haggle/internal/database"
	"github.com/aditya/haggle/internal/metrics"
	"github.com/aditya/haggle/internal/middleware"
	"github.com/aditya/haggle/internal/models"
	"github.com/aditya/haggle/internal/notify"
	"github.com/aditya/haggle/internal/repository"
	"github.com/aditya/haggle/internal/service"
	log "github.com/sirupsen/logrus"
)

var (
	items   = []string{"Road bike", "Espresso machine", "Standing desk", "Film camera", "Bookshelf", "Guitar", "Drone", "Armchair"}
	sellers = []string{"seller-anita", "seller-raj", "seller-meera", "seller-vijay"}
	buyers  = []string{"buyer-priya", "buyer-amit", "buyer-sneha", "buyer-kiran", "buyer-deepa"}
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	config.SetupLogging(cfg)

	db, err := database.NewPostgres(cfg.DatabaseURL, cfg.DBMaxConnections, cfg.DBMaxIdleConnections)
	if err != nil {
		log.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	if _, err := database.Migrate(ctx, db.DB); err != nil {
		log.Fatalf("Failed to migrate: %v", err)
	}

	listingRepo := repository.NewListingRepository(db.DB)
	svc := service.NewOfferService(
		repository.NewOfferRepository(db.DB),
		listingRepo,
		cache.NewLocalOfferLocker(cfg.LockWaitTimeout),
		notify.Nop,
		metrics.New(),
		cfg.OfferTTL,
	)

	log.Infof("Creating %d listings...", len(items))
	listingIDs := make([]string, 0, len(items))
	for i, title := range items {
		listing := models.Listing{
			ID:       fmt.Sprintf("listing-%d", i+1),
			SellerID: sellers[i%len(sellers)],
			Title:    title,
			Price:    int64(5000 + rand.Intn(200)*500),
			Currency: "EUR",
		}
		_, err := db.NamedExecContext(ctx, `
			INSERT INTO listings (id, seller_id, title, price, currency)
			VALUES (:id, :seller_id, :title, :price, :currency)
			ON CONFLICT (id) DO UPDATE SET title = EXCLUDED.title, price = EXCLUDED.price`, listing)
		if err != nil {
			log.Fatalf("Failed to create listing: %v", err)
		}
		listingIDs = append(listingIDs, listing.ID)
	}

	log.Info("Creating offers...")
	created := 0
	for _, listingID := range listingIDs {
		for _, buyerID := range buyers[:1+rand.Intn(len(buyers))] {
			listing, err := listingRepo.GetByID(ctx, listingID)
			if err != nil || listing == nil {
				continue
			}
			price := listing.Price * int64(60+rand.Intn(35)) / 100
			if _, err := svc.CreateOffer(ctx, buyerID, &models.CreateOfferRequest{
				ListingID:    listingID,
				OfferedPrice: price,
				Message:      "Would you take this?",
			}); err != nil {
				log.WithError(err).Warn("Failed to create offer")
				continue
			}
			created++
		}
	}
	log.Infof("Created %d offers", created)

	if cfg.JWTSecret == "" {
		log.Warn("JWT_SECRET is empty, skipping tokens")
		return
	}

	auth := middleware.NewAuthenticator(cfg.JWTSecret)
	fmt.Println("\nBearer tokens (valid 24h):")
	for _, userID := range append(append([]string{}, sellers...), buyers...) {
		token, err := auth.IssueToken(userID, 24*time.Hour)
		if err != nil {
			log.Fatalf("Failed to issue token: %v", err)
		}
		fmt.Printf("  %-14s %s\n", userID, token)
	}
}
