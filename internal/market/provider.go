package market

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// ErrNotFound indicates the provider has no quote for the (product, region) pair.
var ErrNotFound = errors.New("market: no price data for product/region")

// ProviderError marks a transient upstream failure. Monitoring treats it as
// "no data this tick", never as a fatal condition.
type ProviderError struct {
	Source string
	Op     string
	Err    error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %s: %v", e.Source, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Provider retrieves current and historical prices from an external market
// data source.
type Provider interface {
	FetchCurrent(ctx context.Context, product FertilizerType, region string) (PriceSnapshot, error)
	FetchHistory(ctx context.Context, product FertilizerType, region string, days int) ([]PricePoint, error)
}

// StaticProvider serves fixed series, for simulations and tests.
type StaticProvider struct {
	Source string
	series map[string][]PricePoint
}

// NewStaticProvider builds an empty static provider.
func NewStaticProvider(source string) *StaticProvider {
	if source == "" {
		source = "static"
	}
	return &StaticProvider{Source: source, series: make(map[string][]PricePoint)}
}

// SetSeries installs the history for a (product, region) pair, oldest first.
func (p *StaticProvider) SetSeries(product FertilizerType, region string, points []PricePoint) {
	sorted := make([]PricePoint, len(points))
	copy(sorted, points)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })
	p.series[staticKey(product, region)] = sorted
}

// FetchCurrent derives a snapshot from the newest point of the installed series.
func (p *StaticProvider) FetchCurrent(_ context.Context, product FertilizerType, region string) (PriceSnapshot, error) {
	points, ok := p.series[staticKey(product, region)]
	if !ok || len(points) == 0 {
		return PriceSnapshot{}, ErrNotFound
	}
	last := points[len(points)-1]
	return PriceSnapshot{
		Product:      product,
		Region:       region,
		PricePerUnit: last.Price,
		Unit:         "ton",
		Currency:     "USD",
		Source:       p.Source,
		AsOf:         last.Date,
		Confidence:   1,
	}, nil
}

// FetchHistory returns the trailing window of the installed series.
func (p *StaticProvider) FetchHistory(_ context.Context, product FertilizerType, region string, days int) ([]PricePoint, error) {
	points, ok := p.series[staticKey(product, region)]
	if !ok || len(points) == 0 {
		return nil, ErrNotFound
	}
	if days <= 0 {
		days = 90
	}
	cutoff := points[len(points)-1].Date.AddDate(0, 0, -days)
	out := make([]PricePoint, 0, len(points))
	for _, pt := range points {
		if !pt.Date.Before(cutoff) {
			out = append(out, pt)
		}
	}
	return out, nil
}

func staticKey(product FertilizerType, region string) string {
	return string(product) + "|" + region
}

// DailySeries builds a synthetic daily history ending at asOf, one point per
// price, oldest first. Convenient for simulations.
func DailySeries(asOf time.Time, prices ...float64) []PricePoint {
	points := make([]PricePoint, len(prices))
	for i, price := range prices {
		points[i] = PricePoint{
			Date:  asOf.AddDate(0, 0, -(len(prices) - 1 - i)),
			Price: decimal.NewFromFloat(price),
		}
	}
	return points
}

var _ Provider = (*StaticProvider)(nil)
