package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/feedmux/feedgate/internal/model"
)

func TestFetchTick(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/md/ticks/EURUSD" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"tick": map[string]any{
				"symbol": "EURUSD", "bid": 1.1050, "ask": 1.1052,
				"last": 1.1051, "volume": 120, "time_ms": 1700000000123,
			},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key", WithTimeout(5*time.Second))

	tick, err := client.FetchTick(context.Background(), "EURUSD")
	if err != nil {
		t.Fatalf("FetchTick: %v", err)
	}
	if tick.Bid != 1.1050 || tick.Ask != 1.1052 || tick.TimeMS != 1700000000123 {
		t.Errorf("unexpected tick: %+v", tick)
	}
}

func TestFetchOrderBook(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"symbol":  "EURUSD",
			"time_ms": 1700000000500,
			"entries": []map[string]any{
				{"type": 2, "price": 1.1050, "volume": 100, "order_count": 3},
				{"type": 1, "price": 1.1055, "volume": 80, "order_count": 1},
				{"type": 0},
			},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "")

	raw, err := client.FetchOrderBook(context.Background(), "EURUSD")
	if err != nil {
		t.Fatalf("FetchOrderBook: %v", err)
	}
	if len(raw.Entries) != 3 {
		t.Fatalf("entries = %d, want 3 (raw depth is unfiltered)", len(raw.Entries))
	}
	if raw.Entries[0].Type != model.EntryBuy || raw.Entries[1].Type != model.EntrySell {
		t.Errorf("entry types not decoded: %+v", raw.Entries)
	}
}

func TestFetchPositionsEmptyIsNotNil(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/md/accounts/100045/positions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{"account": "100045"})
	}))
	defer server.Close()

	client := NewClient(server.URL, "")

	positions, err := client.FetchPositions(context.Background(), "100045")
	if err != nil {
		t.Fatalf("FetchPositions: %v", err)
	}
	if positions == nil {
		t.Fatal("empty position list decoded as nil")
	}
	if len(positions) != 0 {
		t.Errorf("positions = %v, want empty", positions)
	}
}

func TestRetryOnServerError(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"tick": map[string]any{"symbol": "EURUSD", "time_ms": 1}})
	}))
	defer server.Close()

	client := NewClient(server.URL, "", WithRetries(3, time.Millisecond))

	if _, err := client.FetchTick(context.Background(), "EURUSD"); err != nil {
		t.Fatalf("FetchTick after retries: %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestNoRetryOnClientError(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "symbol not found"})
	}))
	defer server.Close()

	client := NewClient(server.URL, "", WithRetries(3, time.Millisecond))

	_, err := client.FetchTick(context.Background(), "XXXYYY")
	if err == nil {
		t.Fatal("expected error")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusNotFound || apiErr.Message != "symbol not found" {
		t.Errorf("apiErr = %+v", apiErr)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1 (4xx must not be retried)", got)
	}
}

func TestFetchTickContextCancel(t *testing.T) {
	block := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer server.Close()
	defer close(block)

	client := NewClient(server.URL, "")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := client.FetchTick(ctx, "EURUSD"); err == nil {
		t.Fatal("expected context deadline error")
	}
}
