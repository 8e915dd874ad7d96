package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	currentPricePath = "/v1/prices/current"
	priceHistoryPath = "/v1/prices/history"
)

// HTTPOptions parameterise the market data API client.
type HTTPOptions struct {
	BaseURL   string
	APIKey    string
	Source    string
	Timeout   time.Duration
	UserAgent string
}

// HTTPProvider fetches fertilizer quotes from a market data HTTP API.
type HTTPProvider struct {
	opts    HTTPOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewHTTPProvider constructs a provider with sane defaults.
func NewHTTPProvider(opts HTTPOptions, logger zerolog.Logger) *HTTPProvider {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")

	if opts.Source == "" {
		opts.Source = "market-api"
	}

	return &HTTPProvider{
		opts:    opts,
		logger:  logger.With().Str("component", "price_provider").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// FetchCurrent retrieves the latest quote for a (product, region) pair.
func (p *HTTPProvider) FetchCurrent(ctx context.Context, product FertilizerType, region string) (PriceSnapshot, error) {
	if p.baseURL == "" {
		return PriceSnapshot{}, errors.New("provider base url not configured")
	}

	query := url.Values{}
	query.Set("product", string(product))
	query.Set("region", region)

	var payload currentPriceResponse
	if err := p.getJSON(ctx, currentPricePath, query, &payload); err != nil {
		return PriceSnapshot{}, err
	}

	price, err := decimal.NewFromString(payload.Price)
	if err != nil {
		return PriceSnapshot{}, p.fail("fetch current", fmt.Errorf("parse price %q: %w", payload.Price, err))
	}

	asOf, err := time.Parse(time.RFC3339, payload.AsOf)
	if err != nil {
		asOf = time.Now().UTC()
	}

	snapshot := PriceSnapshot{
		Product:         product,
		Region:          region,
		PricePerUnit:    price,
		Unit:            orDefault(payload.Unit, "ton"),
		Currency:        orDefault(payload.Currency, "USD"),
		Source:          orDefault(payload.Source, p.opts.Source),
		AsOf:            asOf,
		Confidence:      payload.Confidence,
		ShortVolatility: payload.Volatility,
	}

	if err := snapshot.Validate(); err != nil {
		return PriceSnapshot{}, p.fail("fetch current", fmt.Errorf("implausible quote: %w", err))
	}

	return snapshot, nil
}

// FetchHistory retrieves up to `days` of daily prices, oldest first.
func (p *HTTPProvider) FetchHistory(ctx context.Context, product FertilizerType, region string, days int) ([]PricePoint, error) {
	if p.baseURL == "" {
		return nil, errors.New("provider base url not configured")
	}
	if days <= 0 {
		days = 90
	}

	query := url.Values{}
	query.Set("product", string(product))
	query.Set("region", region)
	query.Set("days", strconv.Itoa(days))

	var payload priceHistoryResponse
	if err := p.getJSON(ctx, priceHistoryPath, query, &payload); err != nil {
		return nil, err
	}

	if len(payload.Points) == 0 {
		return nil, ErrNotFound
	}

	points := make([]PricePoint, 0, len(payload.Points))
	for _, raw := range payload.Points {
		price, err := decimal.NewFromString(raw.Price)
		if err != nil {
			return nil, p.fail("fetch history", fmt.Errorf("parse price %q: %w", raw.Price, err))
		}
		if !price.IsPositive() || price.GreaterThan(maxPlausiblePerTon) {
			return nil, p.fail("fetch history", fmt.Errorf("implausible historical price %s on %s", price.String(), raw.Date))
		}
		date, err := time.Parse("2006-01-02", raw.Date)
		if err != nil {
			return nil, p.fail("fetch history", fmt.Errorf("parse date %q: %w", raw.Date, err))
		}
		points = append(points, PricePoint{Date: date, Price: price})
	}

	return points, nil
}

func (p *HTTPProvider) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	endpoint := p.baseURL + path + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return p.fail("build request", err)
	}
	req.Header.Set("Accept", "application/json")
	if p.opts.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.opts.APIKey)
	}
	if ua := strings.TrimSpace(p.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "fertwatch/1.0")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return p.fail("request", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return p.fail("read response", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return p.fail("request", parseAPIError(resp.StatusCode, body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return p.fail("decode response", err)
	}
	return nil
}

func (p *HTTPProvider) fail(op string, err error) error {
	return &ProviderError{Source: p.opts.Source, Op: op, Err: err}
}

type currentPriceResponse struct {
	Product    string  `json:"product"`
	Region     string  `json:"region"`
	Price      string  `json:"price"`
	Unit       string  `json:"unit"`
	Currency   string  `json:"currency"`
	Source     string  `json:"source"`
	AsOf       string  `json:"as_of"`
	Confidence float64 `json:"confidence"`
	Volatility float64 `json:"volatility"`
}

type priceHistoryResponse struct {
	Product string `json:"product"`
	Region  string `json:"region"`
	Points  []struct {
		Date  string `json:"date"`
		Price string `json:"price"`
	} `json:"points"`
}

type apiErrorResponse struct {
	ErrorType   string `json:"errorType"`
	Description string `json:"description"`
	Message     string `json:"message"`
}

func parseAPIError(status int, payload []byte) error {
	var apiErr apiErrorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		if apiErr.Description != "" {
			return fmt.Errorf("market api error (%d): %s", status, apiErr.Description)
		}
		if apiErr.Message != "" {
			return fmt.Errorf("market api error (%d): %s", status, apiErr.Message)
		}
		if apiErr.ErrorType != "" {
			return fmt.Errorf("market api error (%d): %s", status, apiErr.ErrorType)
		}
	}
	if len(payload) > 0 {
		return fmt.Errorf("market api error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("market api error (%d)", status)
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

var _ Provider = (*HTTPProvider)(nil)
