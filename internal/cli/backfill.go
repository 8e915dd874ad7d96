package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"fert-price-monitor/internal/app"
	"fert-price-monitor/internal/market"
)

var (
	backfillProduct string
	backfillRegion  string
	backfillDays    int
	backfillDryRun  bool
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Backfill historical price samples from the provider",
	RunE: func(cmd *cobra.Command, args []string) error {
		product, err := market.ParseFertilizerType(backfillProduct)
		if err != nil {
			return fmt.Errorf("invalid --product value: %w", err)
		}
		if backfillRegion == "" {
			return fmt.Errorf("--region must be provided")
		}
		if backfillDays <= 0 {
			return fmt.Errorf("--days must be greater than zero")
		}

		opts := app.BackfillOptions{
			Product: product,
			Region:  backfillRegion,
			Days:    backfillDays,
			DryRun:  backfillDryRun,
		}

		return getApp().Backfill(cmd.Context(), opts)
	},
}

func init() {
	backfillCmd.Flags().StringVar(&backfillProduct, "product", "", "Fertilizer type to backfill")
	backfillCmd.Flags().StringVar(&backfillRegion, "region", "", "Region code, e.g. us_midwest")
	backfillCmd.Flags().IntVar(&backfillDays, "days", 90, "Number of trailing days to fetch")
	backfillCmd.Flags().BoolVar(&backfillDryRun, "dry-run", false, "Fetch without writing to storage")
}
