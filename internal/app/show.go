package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"fert-price-monitor/internal/storage"
)

// Show prints recent samples, alerts, or modifications.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; nothing to show")
	}
	if closeStore != nil {
		defer closeStore()
	}

	switch {
	case opts.Alerts:
		return a.showAlerts(ctx, store, opts.Limit)
	case opts.Modifications:
		return a.showModifications(ctx, store, opts.Limit)
	default:
		return a.showSamples(ctx, store, opts.Limit)
	}
}

func (a *App) showSamples(ctx context.Context, store *storage.Store, limit int) error {
	samples, err := store.ListRecentSamples(ctx, limit)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		fmt.Fprintln(os.Stdout, "no samples found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Observed (UTC)\tProduct\tRegion\tPrice\tUnit\tSource\tConfidence")

	for _, sample := range samples {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\t%.2f\n",
			sample.ObservedAt.UTC().Format(time.RFC3339),
			sample.Product,
			sample.Region,
			formatDecimal(sample.Price, 2),
			sample.Unit,
			sample.Source,
			sample.Confidence,
		)
	}

	return writer.Flush()
}

func (a *App) showAlerts(ctx context.Context, store *storage.Store, limit int) error {
	alerts, err := store.ListRecentAlerts(ctx, limit)
	if err != nil {
		return err
	}
	if len(alerts) == 0 {
		fmt.Fprintln(os.Stdout, "no alerts found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Created (UTC)\tProduct\tRegion\tTrigger\tPriority\tStatus\tMessage")

	for _, record := range alerts {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			record.CreatedAt.UTC().Format(time.RFC3339),
			record.Product,
			record.Region,
			record.Trigger,
			record.Priority,
			record.Status,
			sanitizeInline(record.Message),
		)
	}

	return writer.Flush()
}

func (a *App) showModifications(ctx context.Context, store *storage.Store, limit int) error {
	mods, err := store.ListRecentModifications(ctx, limit)
	if err != nil {
		return err
	}
	if len(mods) == 0 {
		fmt.Fprintln(os.Stdout, "no modifications found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Created (UTC)\tProduct\tKind\tAdjust%\tApproval\tImplemented\tReason")

	for _, record := range mods {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%+.1f\t%s\t%t\t%s\n",
			record.CreatedAt.UTC().Format(time.RFC3339),
			record.Product,
			record.Kind,
			record.AdjustmentPct,
			record.ApprovalStatus,
			record.Implemented,
			sanitizeInline(record.Reason),
		)
	}

	return writer.Flush()
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
