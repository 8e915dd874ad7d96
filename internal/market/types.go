package market

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// FertilizerType identifies a tradable fertilizer product.
type FertilizerType string

const (
	FertilizerUrea            FertilizerType = "urea"
	FertilizerUAN             FertilizerType = "uan"
	FertilizerDAP             FertilizerType = "dap"
	FertilizerMAP             FertilizerType = "map"
	FertilizerPotash          FertilizerType = "potash"
	FertilizerAmmoniumSulfate FertilizerType = "ammonium_sulfate"
)

// KnownFertilizerTypes lists every product the monitor understands.
var KnownFertilizerTypes = []FertilizerType{
	FertilizerUrea,
	FertilizerUAN,
	FertilizerDAP,
	FertilizerMAP,
	FertilizerPotash,
	FertilizerAmmoniumSulfate,
}

// ParseFertilizerType normalises a user-supplied product name.
func ParseFertilizerType(raw string) (FertilizerType, error) {
	candidate := FertilizerType(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range KnownFertilizerTypes {
		if candidate == known {
			return known, nil
		}
	}
	return "", fmt.Errorf("unknown fertilizer type %q", raw)
}

// PricePoint is one element of an ordered price history series.
type PricePoint struct {
	Date  time.Time
	Price decimal.Decimal
}

// PriceSnapshot captures the current market price for a (product, region) pair.
// Snapshots are produced by a Provider and read-only downstream.
type PriceSnapshot struct {
	Product         FertilizerType
	Region          string
	PricePerUnit    decimal.Decimal
	Unit            string
	Currency        string
	Source          string
	AsOf            time.Time
	Confidence      float64
	ShortVolatility float64
}

// maxPlausiblePerTon bounds sanity checking of provider quotes. No regional
// fertilizer price has traded anywhere near this level; values beyond it are
// treated as corrupt feed data.
var maxPlausiblePerTon = decimal.NewFromInt(5000)

// Validate rejects implausible snapshots before they reach the analysis chain.
func (s PriceSnapshot) Validate() error {
	if s.Product == "" {
		return fmt.Errorf("snapshot missing product")
	}
	if !s.PricePerUnit.IsPositive() {
		return fmt.Errorf("price %s must be positive", s.PricePerUnit.String())
	}
	if s.PricePerUnit.GreaterThan(maxPlausiblePerTon) {
		return fmt.Errorf("price %s exceeds plausible ceiling %s", s.PricePerUnit.String(), maxPlausiblePerTon.String())
	}
	if s.Confidence < 0 || s.Confidence > 1 {
		return fmt.Errorf("confidence %.3f outside [0,1]", s.Confidence)
	}
	return nil
}
