package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"fert-price-monitor/internal/market"
	"fert-price-monitor/internal/session"
)

// demoSeries is a 36-day rally of roughly +30%, enough to fire the
// price-increase trigger and the approval path without tripping the
// market-shock rule.
func demoSeries(base float64) []float64 {
	prices := make([]float64, 36)
	price := base
	for i := range prices {
		prices[i] = price
		price *= 1.0075
	}
	return prices
}

// SimulateAlert 用一段合成价格序列走完整个链路: 分析、触发、调整、审批与告警投递。
func (a *App) SimulateAlert(ctx context.Context, opts SimulateOptions) error {
	prices := opts.Prices
	if len(prices) == 0 {
		prices = demoSeries(450)
	}
	if len(prices) < 2 {
		return errors.New("price series needs at least two points")
	}

	provider := market.NewStaticProvider("simulated")
	provider.SetSeries(opts.Product, opts.Region, market.DailySeries(time.Now().UTC(), prices...))

	dispatcher := a.newDispatcher()
	defer dispatcher.Close()

	manager, err := session.NewManager(session.Options{
		Provider:          provider,
		Composer:          a.newComposer(),
		Approvals:         a.newApprovals(),
		Dispatcher:        dispatcher,
		Channels:          a.Config.Alerting.Channels,
		HistoryDays:       a.Config.Monitor.HistoryDays,
		RecentCheckWindow: a.Config.Monitor.RecentCheckWindow,
		DefaultInterval:   a.Config.Monitor.DefaultInterval,
		MinInterval:       a.Config.Monitor.MinInterval,
		DefaultThreshold:  a.Config.Thresholds.Threshold(a.Config.Monitor.DefaultInterval),
		Intelligent:       opts.Intelligent || a.Config.Monitor.Intelligent,
		Logger:            a.Logger,
	})
	if err != nil {
		return err
	}

	started, err := manager.Start(ctx, session.StartRequest{
		UserID:          "simulator",
		FertilizerTypes: []market.FertilizerType{opts.Product},
		FieldIDs:        []string{"demo-field"},
		Region:          opts.Region,
	})
	if err != nil {
		return err
	}
	defer func() {
		_, _ = manager.Stop(context.WithoutCancel(ctx), started.SessionID)
	}()

	check, err := manager.Check(ctx, started.SessionID, true)
	if err != nil {
		return err
	}

	printSimulation(opts, len(prices), check)
	return nil
}

func printSimulation(opts SimulateOptions, points int, check session.CheckResult) {
	out := os.Stdout

	fmt.Fprintf(out, "simulated %s/%s over %d daily prices (session %s)\n",
		opts.Product, opts.Region, points, check.SessionID)

	for product, analysis := range check.Analyses {
		fmt.Fprintf(out, "trend %s: direction=%s strength=%s 7d=%s 30d=%s 90d=%s volatility30=%.1f%% confidence=%.2f\n",
			product,
			analysis.Direction,
			analysis.Strength,
			fmtPct(analysis.TrendPct7),
			fmtPct(analysis.TrendPct30),
			fmtPct(analysis.TrendPct90),
			analysis.Volatility30,
			analysis.TrendConfidence,
		)
	}

	if len(check.Triggers) == 0 {
		fmt.Fprintln(out, "no triggers fired")
	}
	for _, trigger := range check.Triggers {
		fmt.Fprintf(out, "trigger %s: change=%+.1f%% volatility=%.1f%%\n",
			trigger.Kind, trigger.ChangePct, trigger.Volatility)
	}

	for _, mod := range check.Modifications {
		fmt.Fprintf(out, "modification %s: %+.1f%% approval=%s (%s)\n",
			mod.Kind, mod.AdjustmentPct, mod.ApprovalStatus, mod.Reason)
	}
	if check.Impact != nil {
		fmt.Fprintf(out, "combined impact: cost %s $/acre, ROI %+.1f%% (confidence %.2f)\n",
			check.Impact.CostImpactPerAcre, check.Impact.ROIImpactPct, check.Impact.Confidence)
	}

	for _, al := range check.Alerts {
		fmt.Fprintf(out, "alert [%s] %s\n", al.Priority, al.Message)
	}
	for _, al := range check.IntelligentAlerts {
		fmt.Fprintf(out, "alert [%s] (%s score %.2f) %s\n",
			al.Priority, al.Category, al.Confidence, al.Message)
		for _, action := range al.RecommendedActions {
			fmt.Fprintf(out, "  - %s\n", action)
		}
	}

	for _, warning := range check.Warnings {
		fmt.Fprintf(out, "warning: %s\n", warning)
	}
}

func fmtPct(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%+.1f%%", *v)
}
