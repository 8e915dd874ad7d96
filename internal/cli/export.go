package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"fert-price-monitor/internal/app"
	"fert-price-monitor/internal/market"
)

var (
	exportProduct   string
	exportRegion    string
	exportDays      int
	exportPNGPath   string
	exportCSVPath   string
	exportMaxPoints int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export price history as CSV and/or PNG chart",
	RunE: func(cmd *cobra.Command, args []string) error {
		product, err := market.ParseFertilizerType(exportProduct)
		if err != nil {
			return fmt.Errorf("invalid --product value: %w", err)
		}
		if exportRegion == "" {
			return fmt.Errorf("--region must be provided")
		}
		if exportDays <= 0 {
			return fmt.Errorf("--days must be greater than zero")
		}

		opts := app.ExportOptions{
			Product:   product,
			Region:    exportRegion,
			Days:      exportDays,
			PNGPath:   exportPNGPath,
			CSVPath:   exportCSVPath,
			MaxPoints: exportMaxPoints,
		}

		return getApp().Export(cmd.Context(), opts)
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportProduct, "product", "", "Fertilizer type (urea, uan, dap, map, potash, ammonium_sulfate)")
	exportCmd.Flags().StringVar(&exportRegion, "region", "", "Region code, e.g. us_midwest")
	exportCmd.Flags().IntVar(&exportDays, "days", 90, "History window in days, ending now")
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "Path to write PNG chart")
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "Path to write CSV data")
	exportCmd.Flags().IntVar(&exportMaxPoints, "max-points", 0, "Maximum data points to export (defaults to config)")
}
