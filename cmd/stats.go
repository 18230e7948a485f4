package cmd

import (
	"context"
	"fmt"

	"github.com/filer/filer/internal/app"
	"github.com/filer/filer/internal/config"
)

func runStats(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	stats, err := app.Stats(ctx, cfg)
	if err != nil {
		return err
	}

	fmt.Printf("current observations: %d\n", stats.CurrentObservations)
	fmt.Printf("pending revisits:     %d\n", stats.PendingRevisits)
	if stats.NextRevisitTime != nil {
		fmt.Printf("next revisit time:    %d\n", *stats.NextRevisitTime)
	} else {
		fmt.Printf("next revisit time:    none\n")
	}
	return nil
}
