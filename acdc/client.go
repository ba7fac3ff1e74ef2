package acdc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/stocksync_backend/config"
)

// Source is the supplier boundary consumed by the reconcile core.
type Source interface {
	Search(ctx context.Context, query string) ([]Candidate, error)
	Fetch(ctx context.Context, ref string) (*Listing, error)
}

// Client talks to the render service over HTTP. Requests are paced through a
// ticker so the supplier site behind the service is not hammered; search
// results are cached in redis for a short TTL so a run that queries the same
// text twice only hits the service once.
type Client struct {
	baseURL    string
	apiKey     string
	apiKeyHdr  string
	http       *http.Client
	limiter    <-chan time.Time
	searchTTL  time.Duration
	cachePrefx string
}

func NewClient() (*Client, error) {
	baseURL := strings.TrimSpace(os.Getenv("ACDC_BASE_URL"))
	if baseURL == "" {
		return nil, errors.New("ACDC_BASE_URL is required")
	}
	apiKeyHeader := strings.TrimSpace(os.Getenv("ACDC_API_KEY_HEADER"))
	if apiKeyHeader == "" {
		apiKeyHeader = "X-API-Key"
	}
	apiKey := strings.TrimSpace(os.Getenv("ACDC_API_KEY"))

	rateLimitPerMin := int64(30)
	if v := strings.TrimSpace(os.Getenv("ACDC_RATE_LIMIT_PER_MIN")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			rateLimitPerMin = n
		}
	}
	interval := time.Minute / time.Duration(rateLimitPerMin)

	searchTTL := 10 * time.Minute
	if v := strings.TrimSpace(os.Getenv("ACDC_SEARCH_CACHE_TTL")); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			searchTTL = d
		}
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		apiKeyHdr:  apiKeyHeader,
		http:       &http.Client{Timeout: 30 * time.Second},
		limiter:    time.Tick(interval),
		searchTTL:  searchTTL,
		cachePrefx: "acdc:search:",
	}, nil
}

type searchResponse struct {
	Products []Candidate `json:"products"`
}

func (c *Client) Search(ctx context.Context, query string) ([]Candidate, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	cacheKey := c.cachePrefx + strings.ToLower(query)
	var cached []Candidate
	if hit, err := config.GetRedisObject(cacheKey, &cached); err == nil && hit {
		return cached, nil
	}

	params := url.Values{}
	params.Set("q", query)
	body, err := c.get(ctx, "/api/search", params)
	if err != nil {
		return nil, err
	}

	var parsed searchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &UnavailableError{Op: "search", Err: err}
	}

	_ = config.SetRedisObject(cacheKey, parsed.Products, c.searchTTL)
	return parsed.Products, nil
}

func (c *Client) Fetch(ctx context.Context, ref string) (*Listing, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, &UnavailableError{Op: "fetch", Err: errors.New("empty listing ref")}
	}

	params := url.Values{}
	params.Set("ref", ref)
	body, err := c.get(ctx, "/api/listing", params)
	if err != nil {
		return nil, err
	}

	var listing Listing
	if err := json.Unmarshal(body, &listing); err != nil {
		return nil, &UnavailableError{Op: "fetch", Err: err}
	}
	if listing.Ref == "" {
		listing.Ref = ref
	}
	return &listing, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	select {
	case <-c.limiter:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint = endpoint + "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &UnavailableError{Op: path, Err: err}
	}
	if c.apiKey != "" {
		req.Header.Set(c.apiKeyHdr, c.apiKey)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &UnavailableError{Op: path, Err: err}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &UnavailableError{
			Op:  path,
			Err: fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
		}
	}
	return body, nil
}
