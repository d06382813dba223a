package main

import (
	"encoding/json"
	"errors"
	"os"
	"time"

	"github.com/aditya/haggle/internal/cache"
	"github.com/aditya/haggle/internal/database"
	"github.com/aditya/haggle/internal/metrics"
	"github.com/aditya/haggle/internal/models"
	"github.com/aditya/haggle/internal/notify"
	"github.com/aditya/haggle/internal/repository"
	"github.com/aditya/haggle/internal/service"
	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var offersCmd = &cobra.Command{
	Use:   "offers",
	Short: "Inspect offers from the command line",
}

type offersListFlags struct {
	UserID string
	Role   string
	Status string
	Limit  int
	JSON   bool
}

func init() {
	offersCmd.AddCommand(offersListCmd())
}

func offersListCmd() *cobra.Command {
	var f offersListFlags
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a user's offers as buyer or seller",
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.UserID == "" {
				return errors.New("--user is required")
			}

			db, err := database.NewPostgres(cfg.DatabaseURL, cfg.DBMaxConnections, cfg.DBMaxIdleConnections)
			if err != nil {
				return err
			}
			defer db.Close()

			// Read-only: no transitions run, so no shared lock or sinks are needed.
			svc := service.NewOfferService(
				repository.NewOfferRepository(db.DB),
				repository.NewListingRepository(db.DB),
				cache.NewLocalOfferLocker(cfg.LockWaitTimeout),
				notify.Nop,
				metrics.New(),
				cfg.OfferTTL,
			)

			offers, err := svc.ListOffers(cmd.Context(), f.UserID, models.Role(f.Role), models.ListOffersFilter{
				Status: models.OfferStatus(f.Status),
				Limit:  f.Limit,
			})
			if err != nil {
				return err
			}

			if f.JSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(offers)
			}
			renderOffers(offers, time.Now())
			return nil
		},
	}
	cmd.Flags().StringVar(&f.UserID, "user", "", "user id")
	cmd.Flags().StringVar(&f.Role, "role", string(models.RoleBuyer), "buyer or seller")
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 20, "maximum offers to show")
	cmd.Flags().BoolVar(&f.JSON, "json", false, "output JSON")
	return cmd
}

func renderOffers(offers []*models.Offer, now time.Time) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Listing", "Buyer", "Seller", "Listed", "Offered", "Counter", "Status", "Created", "Expires"})
	for _, o := range offers {
		counter := ""
		if o.CounterPrice != nil {
			counter = formatPrice(*o.CounterPrice)
		}
		expires := ""
		if !o.Status.IsTerminal() {
			expires = humanize.RelTime(o.ExpiresAt, now, "ago", "from now")
		}
		tw.AppendRow(table.Row{
			o.ID, o.ListingID, o.BuyerID, o.SellerID,
			formatPrice(o.ListedPrice), formatPrice(o.OfferedPrice), counter,
			o.Status, humanize.RelTime(o.CreatedAt, now, "ago", "from now"), expires,
		})
	}
	tw.Render()
}

// formatPrice renders minor units with two decimals.
func formatPrice(minor int64) string {
	return decimal.New(minor, -2).StringFixed(2)
}
