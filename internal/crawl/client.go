// Package crawl is the HTTP client for the scraping sidecar. The sidecar
// wraps a headless browser and exposes single-page scrape, batched scrape,
// web search, and health endpoints.
package crawl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultPageTimeout      = 30 * time.Second
	defaultRequestTimeout   = 45 * time.Second
	defaultBatchTimeoutCap  = 3 * time.Minute
	defaultSearchMaxResults = 10
)

// Result is the outcome of scraping one URL. Success false with an Error
// message is a page-level failure reported by the sidecar, not a transport
// error.
type Result struct {
	URL             string         `json:"url"`
	Success         bool           `json:"success"`
	Markdown        string         `json:"markdown"`
	HTML            string         `json:"html"`
	Title           string         `json:"title"`
	Error           string         `json:"error"`
	ExtractedFields map[string]any `json:"extracted_fields"`
}

// SearchResult is one hit from the sidecar's web search endpoint.
type SearchResult struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// Config describes the sidecar connection.
type Config struct {
	// BaseURL is the sidecar address, e.g. "http://127.0.0.1:5000".
	BaseURL string

	// PageTimeout is the per-page browser timeout forwarded to the sidecar.
	PageTimeout time.Duration

	// RequestTimeout bounds a single sidecar HTTP call.
	RequestTimeout time.Duration

	// BatchTimeoutCap is the upper bound for scaled batch call timeouts.
	BatchTimeoutCap time.Duration

	// SearchMaxResults is the default result count requested from search.
	SearchMaxResults int

	// Client overrides the HTTP client. Mostly for tests.
	Client *http.Client
}

// Client talks to the scraping sidecar.
type Client struct {
	baseURL          string
	pageTimeout      time.Duration
	requestTimeout   time.Duration
	batchTimeoutCap  time.Duration
	searchMaxResults int
	client           *http.Client
}

// NewClient builds a sidecar client. Callers should pass a validated config.
func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("crawl base url is required")
	}

	pageTimeout := cfg.PageTimeout
	if pageTimeout <= 0 {
		pageTimeout = defaultPageTimeout
	}
	requestTimeout := cfg.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = defaultRequestTimeout
	}
	batchCap := cfg.BatchTimeoutCap
	if batchCap <= 0 {
		batchCap = defaultBatchTimeoutCap
	}
	if batchCap < requestTimeout {
		batchCap = requestTimeout
	}
	searchMax := cfg.SearchMaxResults
	if searchMax < 1 {
		searchMax = defaultSearchMaxResults
	}

	hc := cfg.Client
	if hc == nil {
		hc = &http.Client{}
	}

	return &Client{
		baseURL:          baseURL,
		pageTimeout:      pageTimeout,
		requestTimeout:   requestTimeout,
		batchTimeoutCap:  batchCap,
		searchMaxResults: searchMax,
		client:           hc,
	}, nil
}

type scrapeRequest struct {
	URL string `json:"url"`
	// Timeout is the sidecar's page timeout in milliseconds.
	Timeout int `json:"timeout"`
}

type batchRequest struct {
	URLs    []string `json:"urls"`
	Timeout int      `json:"timeout"`
}

type batchResponse struct {
	Results []Result `json:"results"`
}

type searchRequest struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

type searchResponse struct {
	Results []SearchResult `json:"results"`
}

// Fetch scrapes a single URL. A nil error with Success false means the
// sidecar reached the page pipeline but the page itself failed.
func (c *Client) Fetch(ctx context.Context, url string) (*Result, error) {
	if strings.TrimSpace(url) == "" {
		return nil, errors.New("url is required")
	}

	body, err := c.post(ctx, "/scrape", scrapeRequest{
		URL:     url,
		Timeout: int(c.pageTimeout / time.Millisecond),
	}, c.requestTimeout)
	if err != nil {
		return nil, err
	}

	var result Result
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode scrape response: %w", err)
	}
	result.URL = url
	return &result, nil
}

// BatchFetch scrapes all URLs in one sidecar call. Results come back in
// request order, tagged with their URL; per-page failures surface as
// Success false entries. The call timeout scales with the batch size up to
// the configured cap.
func (c *Client) BatchFetch(ctx context.Context, urls []string) ([]Result, error) {
	if len(urls) == 0 {
		return []Result{}, nil
	}

	timeout := c.requestTimeout * time.Duration(len(urls))
	if timeout > c.batchTimeoutCap {
		timeout = c.batchTimeoutCap
	}

	body, err := c.post(ctx, "/batch", batchRequest{
		URLs:    urls,
		Timeout: int(c.pageTimeout / time.Millisecond),
	}, timeout)
	if err != nil {
		return nil, err
	}

	var parsed batchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode batch response: %w", err)
	}
	if len(parsed.Results) != len(urls) {
		return nil, fmt.Errorf("batch returned %d results for %d urls", len(parsed.Results), len(urls))
	}

	for i := range parsed.Results {
		parsed.Results[i].URL = urls[i]
	}
	return parsed.Results, nil
}

// Search runs a web search through the sidecar and returns candidate pages.
func (c *Client) Search(ctx context.Context, query string) ([]SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("query is required")
	}

	body, err := c.post(ctx, "/search", searchRequest{
		Query:      query,
		MaxResults: c.searchMaxResults,
	}, c.requestTimeout)
	if err != nil {
		return nil, err
	}

	var parsed searchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	return parsed.Results, nil
}

// Health checks the sidecar's health endpoint.
func (c *Client) Health(ctx context.Context) error {
	callCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("create health request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("crawl sidecar unreachable: %w", err)
	}

	body, err := readSidecarBody(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("crawl sidecar unhealthy: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, payload any, timeout time.Duration) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode crawl request: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create crawl request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("crawl request failed: %w", err)
	}

	respBody, err := readSidecarBody(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("crawl %s %s: %s", path, resp.Status, strings.TrimSpace(string(respBody)))
	}
	return respBody, nil
}

func readSidecarBody(body io.ReadCloser) ([]byte, error) {
	data, readErr := io.ReadAll(body)
	if readErr != nil {
		closeErr := body.Close()
		if closeErr != nil {
			return nil, errors.Join(
				fmt.Errorf("read crawl response: %w", readErr),
				fmt.Errorf("close response body: %w", closeErr),
			)
		}
		return nil, fmt.Errorf("read crawl response: %w", readErr)
	}
	if err := body.Close(); err != nil {
		return nil, fmt.Errorf("close response body: %w", err)
	}
	return data, nil
}
