package main

import (
	"time"

	"github.com/aditya/haggle/internal/service"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Expire every offer past its horizon once and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		sweeper := service.NewExpirySweeper(a.offerService, cfg.ExpirySweepInterval, a.nrApp, a.metrics)
		start := time.Now()
		expired, err := sweeper.SweepOnce(cmd.Context())
		if err != nil {
			return err
		}

		log.WithFields(log.Fields{
			"expired":  expired,
			"duration": time.Since(start).String(),
		}).Info("sweep finished")
		return nil
	},
}
