package acdc

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	t.Setenv("ACDC_BASE_URL", srv.URL)
	t.Setenv("ACDC_API_KEY", "secret")
	t.Setenv("ACDC_RATE_LIMIT_PER_MIN", "60000")
	client, err := NewClient()
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}
	return client, srv
}

func TestSearch_ParsesCandidates(t *testing.T) {
	var gotQuery, gotKey string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/search" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		gotQuery = r.URL.Query().Get("q")
		gotKey = r.Header.Get("X-API-Key")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"products":[{"label":"Widget","ref":"p1"},{"label":"Widget XL","ref":"p2"}]}`))
	}))

	candidates, err := client.Search(context.Background(), "widget")
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if gotQuery != "widget" {
		t.Fatalf("expected query widget, got %q", gotQuery)
	}
	if gotKey != "secret" {
		t.Fatalf("api key header not sent, got %q", gotKey)
	}
	if len(candidates) != 2 || candidates[0].Ref != "p1" {
		t.Fatalf("unexpected candidates: %+v", candidates)
	}
}

func TestSearch_EmptyQueryShortCircuits(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("empty query must not hit the service")
	}))
	candidates, err := client.Search(context.Background(), "   ")
	if err != nil || candidates != nil {
		t.Fatalf("expected nil, nil for empty query, got %v, %v", candidates, err)
	}
}

func TestFetch_ParsesListing(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/listing" || r.URL.Query().Get("ref") != "p1" {
			t.Fatalf("unexpected request %s?%s", r.URL.Path, r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ref":"p1","title":"Widget","pending":false,"price":"R 199.00","stock_table":[{"branch":"Edenvale","qty":"3"}]}`))
	}))

	listing, err := client.Fetch(context.Background(), "p1")
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if !listing.HasStockTable() || len(listing.StockTable) != 1 {
		t.Fatalf("stock table not parsed: %+v", listing)
	}
	if !listing.HasPriceBlock() {
		t.Fatal("price block not detected")
	}
	if price, ok := listing.Price(); !ok || price.String() != "199" {
		t.Fatalf("price parse expected 199, got %v ok=%v", price, ok)
	}
}

func TestFetch_MissingStockTableStaysNil(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ref":"p1","pending":true}`))
	}))

	listing, err := client.Fetch(context.Background(), "p1")
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if listing.HasStockTable() {
		t.Fatal("absent stock_table key must stay nil")
	}
	if !listing.Pending {
		t.Fatal("pending flag lost")
	}
}

func TestClient_ServerErrorIsUnavailable(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream render timed out", http.StatusBadGateway)
	}))

	_, err := client.Search(context.Background(), "widget")
	var unavailable *UnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected UnavailableError, got %v", err)
	}

	_, err = client.Fetch(context.Background(), "p1")
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected UnavailableError, got %v", err)
	}
}

func TestNewClient_RequiresBaseURL(t *testing.T) {
	t.Setenv("ACDC_BASE_URL", "")
	if _, err := NewClient(); err == nil {
		t.Fatal("expected error without ACDC_BASE_URL")
	}
}
