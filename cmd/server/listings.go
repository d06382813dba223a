package main

import (
	"github.com/aditya/haggle/internal/cache"
	"github.com/aditya/haggle/internal/database"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var listingsCmd = &cobra.Command{
	Use:   "listings",
	Short: "Manage the cached listing projections",
}

func init() {
	listingsCmd.AddCommand(&cobra.Command{
		Use:   "invalidate <listing-id>...",
		Short: "Drop cached listings so the next offer reads the catalogue again",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			redisDB, err := database.NewRedis(cfg.RedisURL, cfg.RedisPassword)
			if err != nil {
				return err
			}
			defer redisDB.Close()

			// Only Invalidate is used, so no source store is needed.
			listingCache := cache.NewListingCache(redisDB.Client, nil, cfg.ListingCacheTTL)
			for _, id := range args {
				if err := listingCache.Invalidate(cmd.Context(), id); err != nil {
					return err
				}
				log.WithField("listing_id", id).Info("listing cache invalidated")
			}
			return nil
		},
	})
}
