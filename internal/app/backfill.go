package app

import (
	"context"
	"errors"

	"fert-price-monitor/internal/market"
	"fert-price-monitor/internal/storage"
)

// Backfill loads provider history into storage, one sample per day.
func (a *App) Backfill(ctx context.Context, opts BackfillOptions) error {
	var store *storage.Store
	var closeStore func()
	var err error

	if opts.DryRun {
		a.Logger.Warn().Msg("回填 dry-run: 不会写入数据库")
	} else {
		store, closeStore, err = a.openStore(ctx)
		if err != nil {
			return err
		}
		if store == nil {
			return errors.New("database.dsn 未配置, 无法回填")
		}
		if closeStore != nil {
			defer closeStore()
		}
	}

	provider := a.newProvider()
	points, err := provider.FetchHistory(ctx, opts.Product, opts.Region, opts.Days)
	if err != nil {
		return err
	}
	if len(points) == 0 {
		a.Logger.Warn().
			Str("product", string(opts.Product)).
			Str("region", opts.Region).
			Msg("provider returned no history for the window")
		return nil
	}

	processed := 0
	failed := 0
	for _, point := range points {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		snapshot := market.PriceSnapshot{
			Product:      opts.Product,
			Region:       opts.Region,
			PricePerUnit: point.Price,
			Unit:         "ton",
			Currency:     "USD",
			Source:       a.Config.Provider.Source,
			AsOf:         point.Date,
			// History feeds carry less certainty than a live quote.
			Confidence: 0.8,
		}
		if err := snapshot.Validate(); err != nil {
			failed++
			a.Logger.Error().Err(err).Time("date", point.Date).Msg("回填样本非法, 已跳过")
			continue
		}

		if opts.DryRun {
			a.Logger.Info().
				Time("date", point.Date).
				Str("price", point.Price.String()).
				Msg("dry-run sample")
			processed++
			continue
		}

		if err := store.SaveSample(ctx, snapshot); err != nil {
			failed++
			a.Logger.Error().Err(err).Time("date", point.Date).Msg("回填失败")
			continue
		}
		processed++
	}

	a.Logger.Info().Int("processed", processed).Int("failed", failed).Msg("回填完成")
	if failed > 0 {
		return errors.New("部分样本回填失败, 请检查日志")
	}
	return nil
}
