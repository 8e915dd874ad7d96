package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"fert-price-monitor/internal/app"
	"fert-price-monitor/internal/market"
)

var (
	simulateProduct     string
	simulateRegion      string
	simulatePrices      []float64
	simulateIntelligent bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "模拟一段价格序列并走完整的告警链路",
	RunE: func(cmd *cobra.Command, args []string) error {
		product, err := market.ParseFertilizerType(simulateProduct)
		if err != nil {
			return fmt.Errorf("invalid --product value: %w", err)
		}
		if len(simulatePrices) == 1 {
			return fmt.Errorf("--prices 至少需要两个价格点")
		}

		opts := app.SimulateOptions{
			Product:     product,
			Region:      simulateRegion,
			Prices:      simulatePrices,
			Intelligent: simulateIntelligent,
		}

		return getApp().SimulateAlert(cmd.Context(), opts)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateProduct, "product", "urea", "Fertilizer type to simulate")
	simulateCmd.Flags().StringVar(&simulateRegion, "region", "us_midwest", "Region code")
	simulateCmd.Flags().Float64SliceVar(&simulatePrices, "prices", nil, "逐日价格序列 (USD/吨), 缺省使用内置的上涨行情")
	simulateCmd.Flags().BoolVar(&simulateIntelligent, "intelligent", false, "走评分门控的智能告警路径")
}
