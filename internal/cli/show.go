package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"fert-price-monitor/internal/app"
)

var (
	showLimit         int
	showAlerts        bool
	showModifications bool
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display recent price samples, alerts, or modifications",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}
		if showAlerts && showModifications {
			return fmt.Errorf("--alerts and --modifications are mutually exclusive")
		}

		opts := app.ShowOptions{
			Limit:         showLimit,
			Alerts:        showAlerts,
			Modifications: showModifications,
		}

		return getApp().Show(cmd.Context(), opts)
	},
}

func init() {
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Number of rows to display")
	showCmd.Flags().BoolVar(&showAlerts, "alerts", false, "Show recent alerts instead of samples")
	showCmd.Flags().BoolVar(&showModifications, "modifications", false, "Show recent strategy modifications instead of samples")
}
