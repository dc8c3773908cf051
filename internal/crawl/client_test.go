package crawl

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base url is required")
}

func TestNewClientDefaults(t *testing.T) {
	client, err := NewClient(Config{BaseURL: "http://127.0.0.1:5000/"})
	require.NoError(t, err)

	assert.Equal(t, "http://127.0.0.1:5000", client.baseURL)
	assert.Equal(t, defaultPageTimeout, client.pageTimeout)
	assert.Equal(t, defaultRequestTimeout, client.requestTimeout)
	assert.Equal(t, defaultBatchTimeoutCap, client.batchTimeoutCap)
	assert.Equal(t, defaultSearchMaxResults, client.searchMaxResults)
}

func TestClientFetch(t *testing.T) {
	var captured scrapeRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/scrape", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"success": true,
			"markdown": "# Oat Milk\n$4.99",
			"html": "<h1>Oat Milk</h1>",
			"title": "Oat Milk - Example Store",
			"extracted_fields": {"price": "4.99", "currency": "CAD"}
		}`))
	}))
	defer srv.Close()

	client, err := NewClient(Config{BaseURL: srv.URL, PageTimeout: 20 * time.Second})
	require.NoError(t, err)

	result, err := client.Fetch(context.Background(), "https://example.com/oat-milk")
	require.NoError(t, err)

	assert.Equal(t, "https://example.com/oat-milk", captured.URL)
	assert.Equal(t, 20000, captured.Timeout)

	assert.True(t, result.Success)
	assert.Equal(t, "https://example.com/oat-milk", result.URL)
	assert.Equal(t, "# Oat Milk\n$4.99", result.Markdown)
	assert.Equal(t, "Oat Milk - Example Store", result.Title)
	assert.Equal(t, "4.99", result.ExtractedFields["price"])
}

func TestClientFetchPageFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success": false, "error": "net::ERR_NAME_NOT_RESOLVED"}`))
	}))
	defer srv.Close()

	client, err := NewClient(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	result, err := client.Fetch(context.Background(), "https://does-not-resolve.invalid/x")
	require.NoError(t, err, "page-level failures are data, not transport errors")

	assert.False(t, result.Success)
	assert.Equal(t, "net::ERR_NAME_NOT_RESOLVED", result.Error)
}

func TestClientFetchTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("browser pool exhausted"))
	}))
	defer srv.Close()

	client, err := NewClient(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = client.Fetch(context.Background(), "https://example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Contains(t, err.Error(), "browser pool exhausted")
}

func TestClientFetchEmptyURL(t *testing.T) {
	client, err := NewClient(Config{BaseURL: "http://127.0.0.1:5000"})
	require.NoError(t, err)

	_, err = client.Fetch(context.Background(), "  ")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "url is required")
}

func TestClientBatchFetch(t *testing.T) {
	var captured batchRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/batch", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results": [
			{"success": true, "markdown": "first page", "title": "First"},
			{"success": false, "error": "timeout waiting for networkidle"},
			{"success": true, "markdown": "third page", "title": "Third"}
		]}`))
	}))
	defer srv.Close()

	client, err := NewClient(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	urls := []string{
		"https://a.example.com/p",
		"https://b.example.com/p",
		"https://c.example.com/p",
	}
	results, err := client.BatchFetch(context.Background(), urls)
	require.NoError(t, err)

	assert.Equal(t, urls, captured.URLs)
	require.Len(t, results, 3)

	assert.Equal(t, "https://a.example.com/p", results[0].URL)
	assert.True(t, results[0].Success)
	assert.Equal(t, "https://b.example.com/p", results[1].URL)
	assert.False(t, results[1].Success)
	assert.Equal(t, "timeout waiting for networkidle", results[1].Error)
	assert.Equal(t, "https://c.example.com/p", results[2].URL)
	assert.Equal(t, "third page", results[2].Markdown)
}

func TestClientBatchFetchEmptyInput(t *testing.T) {
	client, err := NewClient(Config{BaseURL: "http://127.0.0.1:5000"})
	require.NoError(t, err)

	results, err := client.BatchFetch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestClientBatchFetchCountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results": [{"success": true}]}`))
	}))
	defer srv.Close()

	client, err := NewClient(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = client.BatchFetch(context.Background(), []string{"https://a.example.com", "https://b.example.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch returned 1 results for 2 urls")
}

func TestClientSearch(t *testing.T) {
	var captured searchRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/search", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results": [
			{"url": "https://shop.example.com/milk", "title": "Milk deals", "snippet": "Oat milk from $4.99"},
			{"url": "https://other.example.com/milk", "title": "Dairy aisle", "snippet": "All milks"}
		]}`))
	}))
	defer srv.Close()

	client, err := NewClient(Config{BaseURL: srv.URL, SearchMaxResults: 5})
	require.NoError(t, err)

	results, err := client.Search(context.Background(), "oat milk price")
	require.NoError(t, err)

	assert.Equal(t, "oat milk price", captured.Query)
	assert.Equal(t, 5, captured.MaxResults)

	require.Len(t, results, 2)
	assert.Equal(t, "https://shop.example.com/milk", results[0].URL)
	assert.Equal(t, "Milk deals", results[0].Title)
	assert.Equal(t, "Oat milk from $4.99", results[0].Snippet)
}

func TestClientSearchEmptyQuery(t *testing.T) {
	client, err := NewClient(Config{BaseURL: "http://127.0.0.1:5000"})
	require.NoError(t, err)

	_, err = client.Search(context.Background(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query is required")
}

func TestClientHealth(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/health", r.URL.Path)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"status": "ok", "service": "crawl4ai"}`))
		}))
		defer srv.Close()

		client, err := NewClient(Config{BaseURL: srv.URL})
		require.NoError(t, err)
		assert.NoError(t, client.Health(context.Background()))
	})

	t.Run("unhealthy status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("starting browser"))
		}))
		defer srv.Close()

		client, err := NewClient(Config{BaseURL: srv.URL})
		require.NoError(t, err)

		err = client.Health(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unhealthy")
	})

	t.Run("unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
		srv.Close()

		client, err := NewClient(Config{BaseURL: srv.URL})
		require.NoError(t, err)

		err = client.Health(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unreachable")
	})
}
