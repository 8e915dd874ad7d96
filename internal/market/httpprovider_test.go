package market

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestFetchCurrentMissingBaseURL(t *testing.T) {
	p := NewHTTPProvider(HTTPOptions{}, noopLogger())
	if _, err := p.FetchCurrent(context.Background(), FertilizerUrea, "us_midwest"); err == nil {
		t.Fatal("未配置 base url 时应返回错误")
	}
}

func TestFetchCurrentSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("product") != "urea" {
			t.Fatalf("product 参数不正确: %s", r.URL.RawQuery)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"product":    "urea",
			"region":     "us_midwest",
			"price":      "485.50",
			"unit":       "ton",
			"currency":   "USD",
			"source":     "dtn",
			"as_of":      time.Now().UTC().Format(time.RFC3339),
			"confidence": 0.9,
			"volatility": 3.4,
		})
	}))
	defer srv.Close()

	p := NewHTTPProvider(HTTPOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	snap, err := p.FetchCurrent(context.Background(), FertilizerUrea, "us_midwest")
	if err != nil {
		t.Fatalf("成功响应不应报错: %v", err)
	}
	if snap.PricePerUnit.String() != "485.5" {
		t.Fatalf("期望价格 485.5, 实际 %s", snap.PricePerUnit.String())
	}
	if snap.Source != "dtn" {
		t.Fatalf("应使用响应中的 source, 实际 %q", snap.Source)
	}
}

func TestFetchCurrentImplausiblePrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"product": "urea", "region": "us_midwest",
			"price": "99999", "confidence": 0.9,
		})
	}))
	defer srv.Close()

	p := NewHTTPProvider(HTTPOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	_, err := p.FetchCurrent(context.Background(), FertilizerUrea, "us_midwest")
	if err == nil {
		t.Fatal("超出合理区间的报价应报错")
	}
	var provErr *ProviderError
	if !errors.As(err, &provErr) {
		t.Fatalf("expected ProviderError, got %T", err)
	}
}

func TestFetchCurrentNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	p := NewHTTPProvider(HTTPOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	_, err := p.FetchCurrent(context.Background(), FertilizerDAP, "us_midwest")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("404 应映射为 ErrNotFound, 实际 %v", err)
	}
}

func TestFetchHistorySuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("days") != "30" {
			t.Fatalf("days 参数不正确: %s", r.URL.RawQuery)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"product": "potash",
			"region":  "us_midwest",
			"points": []map[string]string{
				{"date": "2026-08-01", "price": "360.00"},
				{"date": "2026-08-02", "price": "362.25"},
			},
		})
	}))
	defer srv.Close()

	p := NewHTTPProvider(HTTPOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	points, err := p.FetchHistory(context.Background(), FertilizerPotash, "us_midwest", 30)
	if err != nil {
		t.Fatalf("FetchHistory 应成功: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("期望 2 个数据点, 实际 %d", len(points))
	}
	if !points[0].Date.Before(points[1].Date) {
		t.Fatal("历史数据应按时间升序")
	}
}

func TestFetchHistoryAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_ = json.NewEncoder(w).Encode(map[string]string{"errorType": "upstream_down"})
	}))
	defer srv.Close()

	p := NewHTTPProvider(HTTPOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	if _, err := p.FetchHistory(context.Background(), FertilizerUrea, "us_midwest", 7); err == nil {
		t.Fatal("HTTP 502 应返回错误")
	}
}

func TestStaticProviderRoundTrip(t *testing.T) {
	p := NewStaticProvider("fixture")
	asOf := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)
	p.SetSeries(FertilizerUrea, "us_midwest", DailySeries(asOf, 100, 101, 102, 103))

	snap, err := p.FetchCurrent(context.Background(), FertilizerUrea, "us_midwest")
	if err != nil {
		t.Fatalf("static FetchCurrent: %v", err)
	}
	if snap.PricePerUnit.String() != "103" {
		t.Fatalf("expected last price 103, got %s", snap.PricePerUnit.String())
	}

	points, err := p.FetchHistory(context.Background(), FertilizerUrea, "us_midwest", 2)
	if err != nil {
		t.Fatalf("static FetchHistory: %v", err)
	}
	if len(points) != 3 {
		t.Fatalf("2 天窗口应包含 3 个点(含当日), 实际 %d", len(points))
	}

	if _, err := p.FetchCurrent(context.Background(), FertilizerDAP, "us_midwest"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("缺失序列应返回 ErrNotFound, 实际 %v", err)
	}
}
