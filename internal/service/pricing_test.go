package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/danavision/discovery-go/internal/ai"
	"github.com/danavision/discovery-go/internal/core"
	"github.com/danavision/discovery-go/internal/crawl"
	"github.com/danavision/discovery-go/internal/data"
	"github.com/danavision/discovery-go/internal/domain/model"
	"github.com/danavision/discovery-go/internal/domain/runcontext"
	"github.com/danavision/discovery-go/internal/domain/runlog"
	apperrors "github.com/danavision/discovery-go/internal/errors"
	"github.com/danavision/discovery-go/internal/mocks"
	"github.com/danavision/discovery-go/internal/testutil"
)

type fakeCrawler struct {
	mu          sync.Mutex
	batchCalls  [][]string
	fetchCalls  []string
	searchCalls []string

	batchFn  func(urls []string) ([]crawl.Result, error)
	fetchFn  func(url string) (*crawl.Result, error)
	searchFn func(query string) ([]crawl.SearchResult, error)
}

func (f *fakeCrawler) Fetch(_ context.Context, url string) (*crawl.Result, error) {
	f.mu.Lock()
	f.fetchCalls = append(f.fetchCalls, url)
	f.mu.Unlock()
	if f.fetchFn != nil {
		return f.fetchFn(url)
	}
	return &crawl.Result{URL: url, Success: false, Error: "no fixture"}, nil
}

func (f *fakeCrawler) BatchFetch(_ context.Context, urls []string) ([]crawl.Result, error) {
	f.mu.Lock()
	f.batchCalls = append(f.batchCalls, urls)
	f.mu.Unlock()
	if f.batchFn != nil {
		return f.batchFn(urls)
	}
	out := make([]crawl.Result, len(urls))
	for i, u := range urls {
		out[i] = crawl.Result{URL: u, Success: false, Error: "no fixture"}
	}
	return out, nil
}

func (f *fakeCrawler) Search(_ context.Context, query string) ([]crawl.SearchResult, error) {
	f.mu.Lock()
	f.searchCalls = append(f.searchCalls, query)
	f.mu.Unlock()
	if f.searchFn != nil {
		return f.searchFn(query)
	}
	return nil, nil
}

type fakeCompleter struct {
	prompts    []string
	completeFn func(prompt string) (string, error)

	// answers overrides the single synthetic answer CompleteAll reports.
	answers []ai.ProviderAnswer
}

func (f *fakeCompleter) Complete(_ context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	if f.completeFn != nil {
		return f.completeFn(prompt)
	}
	return `{"lowest_index": 0, "confidence": 0.9, "recommendation": "Buy from the first result."}`, nil
}

func (f *fakeCompleter) CompleteAll(ctx context.Context, prompt string) (string, []ai.ProviderAnswer, error) {
	text, err := f.Complete(ctx, prompt)
	answers := f.answers
	if answers == nil {
		answers = []ai.ProviderAnswer{{Provider: "fake", Text: text, Err: err}}
	}
	if err != nil {
		return "", answers, err
	}
	return text, answers, nil
}

type progressRecorder struct {
	progress []int
}

func (r *progressRecorder) checkpoint() runcontext.Checkpoint {
	return func(_ context.Context, progress int, _ json.RawMessage) error {
		r.progress = append(r.progress, progress)
		return nil
	}
}

func templatedStore(name, domain string, pos int) *model.ResolvedStore {
	rs := &model.ResolvedStore{Position: pos, EffectivePriority: 100 - pos}
	rs.ID = "store-" + domain
	rs.Name = name
	rs.Domain = domain
	rs.IsActive = true
	tpl := "https://" + domain + "/search?q={query}"
	rs.URLTemplate = &tpl
	return rs
}

// pricedBatch builds a batch handler serving structured prices per URL.
// URLs outside the map come back as page failures.
func pricedBatch(prices map[string]float64) func(urls []string) ([]crawl.Result, error) {
	return func(urls []string) ([]crawl.Result, error) {
		out := make([]crawl.Result, len(urls))
		for i, u := range urls {
			price, ok := prices[u]
			if !ok {
				out[i] = crawl.Result{URL: u, Success: false, Error: "blocked"}
				continue
			}
			out[i] = crawl.Result{
				URL:             u,
				Success:         true,
				ExtractedFields: map[string]any{"price": price},
			}
		}
		return out, nil
	}
}

func testSelectors() map[string]string {
	return map[string]string{
		"price":    "price || offers.price",
		"currency": "currency",
		"in_stock": "in_stock || offers.availability",
	}
}

func TestNewPricingService(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	stores := mocks.NewMockStoreRepository(ctrl)

	t.Run("success", func(t *testing.T) {
		svc, err := NewPricingService(PricingServiceOptions{Stores: stores, Crawler: &fakeCrawler{}})
		require.NoError(t, err)
		assert.NotNil(t, svc)
	})

	t.Run("missing stores", func(t *testing.T) {
		_, err := NewPricingService(PricingServiceOptions{Crawler: &fakeCrawler{}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "StoreRepository is required")
	})

	t.Run("missing crawler", func(t *testing.T) {
		_, err := NewPricingService(PricingServiceOptions{Stores: stores})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "PageFetcher is required")
	})

	t.Run("invalid selector", func(t *testing.T) {
		_, err := NewPricingService(PricingServiceOptions{
			Stores:              stores,
			Crawler:             &fakeCrawler{},
			ExtractionSelectors: map[string]string{"price": "]["},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "extraction selector")
	})
}

func TestMustNewPricingService(t *testing.T) {
	assert.Panics(t, func() {
		MustNewPricingService(PricingServiceOptions{})
	})
}

func TestPricingService_DiscoverPrices_RanksConfiguredStores(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	resolved := []*model.ResolvedStore{
		templatedStore("Alpha", "alpha.example", 0),
		templatedStore("Bravo", "bravo.example", 1),
		templatedStore("Charlie", "charlie.example", 2),
		templatedStore("Delta", "delta.example", 3),
	}
	stores := mocks.NewMockStoreRepository(ctrl)
	stores.EXPECT().ResolveForUser(gomock.Any(), "owner-1").Return(resolved, nil)

	crawler := &fakeCrawler{
		batchFn: pricedBatch(map[string]float64{
			"https://alpha.example/search?q=ps5+controller":   29.99,
			"https://bravo.example/search?q=ps5+controller":   99.99,
			"https://charlie.example/search?q=ps5+controller": 19.99,
			"https://delta.example/search?q=ps5+controller":   49.99,
		}),
	}
	completer := &fakeCompleter{}
	rec := &progressRecorder{}
	run := runlog.New("price-search")

	svc := MustNewPricingService(PricingServiceOptions{
		Stores:              stores,
		Crawler:             crawler,
		AI:                  completer,
		ExtractionSelectors: testSelectors(),
	})

	result, fromCache, err := svc.DiscoverPrices(context.Background(), PriceDiscoveryParams{
		OwnerID:    "owner-1",
		Query:      "ps5 controller",
		Run:        run,
		Checkpoint: rec.checkpoint(),
	})
	require.NoError(t, err)
	assert.False(t, fromCache)

	require.Len(t, result.Results, 4)
	prices := make([]float64, len(result.Results))
	for i, r := range result.Results {
		prices[i] = r.Price
	}
	assert.Equal(t, []float64{19.99, 29.99, 49.99, 99.99}, prices)
	assert.Equal(t, "Charlie", result.Results[0].Retailer)
	assert.Equal(t, model.TierConfiguredStores, result.Results[0].Tier)

	require.NotNil(t, result.LowestPrice)
	assert.InDelta(t, 19.99, result.LowestPrice.Price, 0.001)
	assert.InDelta(t, 0.9, result.Confidence, 0.001)
	assert.Equal(t, "Buy from the first result.", result.Recommendation)

	// Four usable tier-1 results clear the default minimum, so no search.
	assert.Empty(t, crawler.searchCalls)
	assert.Equal(t, 4, run.Counter(runlog.CounterTier1Results))
	assert.Equal(t, 4, run.Counter(runlog.CounterPricesFound))

	assert.Equal(t, []int{10, 15, 40, 75, 90}, rec.progress)

	require.Len(t, completer.prompts, 1)
	assert.Contains(t, completer.prompts[0], "ps5 controller")
}

func TestPricingService_DiscoverPrices_EscalatesWhenTier1Short(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	stores := mocks.NewMockStoreRepository(ctrl)
	stores.EXPECT().ResolveForUser(gomock.Any(), "owner-1").
		Return([]*model.ResolvedStore{templatedStore("Alpha", "alpha.example", 0)}, nil)

	crawler := &fakeCrawler{
		batchFn: pricedBatch(map[string]float64{
			"https://alpha.example/search?q=ps5": 29.99,
		}),
		searchFn: func(string) ([]crawl.SearchResult, error) {
			return []crawl.SearchResult{
				{URL: "https://xray.example/p1", Title: "PS5 deal"},
				{URL: "https://xray.example/p1", Title: "duplicate"},
				{URL: ""},
				{URL: "https://yankee.example/p2", Title: "PS5 listing"},
			}, nil
		},
		fetchFn: func(url string) (*crawl.Result, error) {
			switch url {
			case "https://xray.example/p1":
				return &crawl.Result{
					URL:      url,
					Success:  true,
					Markdown: "Limited offer: now only $15.49 today",
				}, nil
			case "https://yankee.example/p2":
				return &crawl.Result{
					URL:     url,
					Success: true,
					HTML:    `<html><body><script>var p = "$9.99";</script><span>£25.00</span></body></html>`,
				}, nil
			default:
				return &crawl.Result{URL: url, Success: false, Error: "blocked"}, nil
			}
		},
	}

	rec := &progressRecorder{}
	run := runlog.New("price-search")
	svc := MustNewPricingService(PricingServiceOptions{
		Stores:              stores,
		Crawler:             crawler,
		AI:                  &fakeCompleter{},
		ExtractionSelectors: testSelectors(),
		Tier2RatePerSecond:  1000,
	})

	result, _, err := svc.DiscoverPrices(context.Background(), PriceDiscoveryParams{
		OwnerID:    "owner-1",
		Query:      "ps5",
		Run:        run,
		Checkpoint: rec.checkpoint(),
	})
	require.NoError(t, err)

	require.Len(t, crawler.searchCalls, 1)
	assert.Equal(t, []string{"https://xray.example/p1", "https://yankee.example/p2"}, crawler.fetchCalls,
		"duplicate and empty search hits should be dropped before fetching")

	require.Len(t, result.Results, 3)
	assert.InDelta(t, 15.49, result.Results[0].Price, 0.001)
	assert.Equal(t, "USD", result.Results[0].Currency)
	assert.Equal(t, model.TierWebSearch, result.Results[0].Tier)
	assert.InDelta(t, 25.00, result.Results[1].Price, 0.001)
	assert.Equal(t, "GBP", result.Results[1].Currency, "script text must not win over visible price")
	assert.InDelta(t, 29.99, result.Results[2].Price, 0.001)
	assert.Equal(t, model.TierConfiguredStores, result.Results[2].Tier)

	assert.Equal(t, 2, run.Counter(runlog.CounterTier2Results))
	assert.Equal(t, []int{10, 15, 40, 65, 75, 90}, rec.progress)
}

func TestPricingService_DiscoverPrices_MergePrefersConfiguredStores(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	stores := mocks.NewMockStoreRepository(ctrl)
	stores.EXPECT().ResolveForUser(gomock.Any(), "owner-1").
		Return([]*model.ResolvedStore{templatedStore("Alpha", "alpha.example", 0)}, nil)

	crawler := &fakeCrawler{
		batchFn: pricedBatch(map[string]float64{
			"https://alpha.example/search?q=ps5": 29.99,
		}),
		searchFn: func(string) ([]crawl.SearchResult, error) {
			// The same page resurfaces through search with a different
			// subdomain form and a better-looking price.
			return []crawl.SearchResult{{URL: "https://www.alpha.example/search?q=ps5&src=deal"}}, nil
		},
		fetchFn: func(url string) (*crawl.Result, error) {
			return &crawl.Result{URL: url, Success: true, Markdown: "Deal price $19.99"}, nil
		},
	}

	svc := MustNewPricingService(PricingServiceOptions{
		Stores:              stores,
		Crawler:             crawler,
		AI:                  &fakeCompleter{},
		ExtractionSelectors: testSelectors(),
		Tier2RatePerSecond:  1000,
	})

	result, _, err := svc.DiscoverPrices(context.Background(), PriceDiscoveryParams{
		OwnerID: "owner-1",
		Query:   "ps5",
	})
	require.NoError(t, err)

	require.Len(t, result.Results, 1, "both observations share alpha.example/search")
	assert.InDelta(t, 29.99, result.Results[0].Price, 0.001)
	assert.Equal(t, model.TierConfiguredStores, result.Results[0].Tier)
}

func TestPricingService_DiscoverPrices_CapsTier2Fetches(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	stores := mocks.NewMockStoreRepository(ctrl)
	stores.EXPECT().ResolveForUser(gomock.Any(), "owner-1").Return(nil, nil)

	hits := make([]crawl.SearchResult, 15)
	for i := range hits {
		hits[i] = crawl.SearchResult{URL: "https://vendor" + string(rune('a'+i)) + ".example/p"}
	}
	crawler := &fakeCrawler{
		searchFn: func(string) ([]crawl.SearchResult, error) { return hits, nil },
	}

	completer := &fakeCompleter{}
	svc := MustNewPricingService(PricingServiceOptions{
		Stores:             stores,
		Crawler:            crawler,
		AI:                 completer,
		MaxTier2URLs:       5,
		Tier2RatePerSecond: 1000,
	})

	run := runlog.New("price-search")
	_, _, err := svc.DiscoverPrices(context.Background(), PriceDiscoveryParams{
		OwnerID: "owner-1",
		Query:   "obscure gadget",
		Run:     run,
	})
	require.ErrorIs(t, err, model.ErrNoResults,
		"a run where no tier yields a usable price must fail, not report an empty result")

	assert.Len(t, crawler.fetchCalls, 5)
	assert.Empty(t, completer.prompts, "aggregation must not run without results")
	assert.Positive(t, run.ErrorCount(), "empty runs should fail loudly in the run log")
}

func TestPricingService_DiscoverPrices_FailsWhenNoUsableResults(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	stores := mocks.NewMockStoreRepository(ctrl)
	stores.EXPECT().ResolveForUser(gomock.Any(), "owner-1").
		Return([]*model.ResolvedStore{templatedStore("Alpha", "alpha.example", 0)}, nil)

	// Every page is blocked and search comes back empty, so no tier yields
	// a usable observation.
	crawler := &fakeCrawler{}
	rec := &progressRecorder{}
	run := runlog.New("price-search")

	svc := MustNewPricingService(PricingServiceOptions{
		Stores:              stores,
		Crawler:             crawler,
		AI:                  &fakeCompleter{},
		ExtractionSelectors: testSelectors(),
		Tier2RatePerSecond:  1000,
	})

	_, _, err := svc.DiscoverPrices(context.Background(), PriceDiscoveryParams{
		OwnerID:    "owner-1",
		Query:      "obscure gadget",
		Run:        run,
		Checkpoint: rec.checkpoint(),
	})
	require.ErrorIs(t, err, model.ErrNoResults)
	assert.Contains(t, err.Error(), "obscure gadget")
	assert.Equal(t, []int{10, 15, 40, 65, 75}, rec.progress, "failure lands after the merge stage")
	assert.Positive(t, run.ErrorCount())
}

func TestPricingService_DiscoverPrices_AppliesSearchOptions(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	resolved := []*model.ResolvedStore{
		templatedStore("Alpha", "alpha.example", 0),
		templatedStore("Bravo", "bravo.example", 1),
		templatedStore("Charlie", "charlie.example", 2),
	}
	stores := mocks.NewMockStoreRepository(ctrl)
	stores.EXPECT().ResolveForUser(gomock.Any(), "owner-1").Return(resolved, nil)

	crawler := &fakeCrawler{
		batchFn: func(urls []string) ([]crawl.Result, error) {
			out := make([]crawl.Result, len(urls))
			for i, u := range urls {
				switch {
				case u == "https://alpha.example/search?q=ps5":
					out[i] = crawl.Result{URL: u, Success: true, ExtractedFields: map[string]any{
						"price":    19.99,
						"in_stock": "https://schema.org/OutOfStock",
					}}
				case u == "https://bravo.example/search?q=ps5":
					out[i] = crawl.Result{URL: u, Success: true, ExtractedFields: map[string]any{
						"price": 29.99,
					}}
				default:
					out[i] = crawl.Result{URL: u, Success: true, ExtractedFields: map[string]any{
						"price": 59.99,
					}}
				}
			}
			return out, nil
		},
	}

	svc := MustNewPricingService(PricingServiceOptions{
		Stores:              stores,
		Crawler:             crawler,
		AI:                  &fakeCompleter{},
		ExtractionSelectors: testSelectors(),
		MinResults:          1,
	})

	result, _, err := svc.DiscoverPrices(context.Background(), PriceDiscoveryParams{
		OwnerID: "owner-1",
		Query:   "ps5",
		Options: model.SearchOptions{InStockOnly: true, MaxPrice: 30},
	})
	require.NoError(t, err)

	require.Len(t, result.Results, 1, "out-of-stock and over-budget results must be filtered")
	assert.Equal(t, "bravo.example", result.Results[0].StoreDomain)
}

func TestPricingService_DiscoverPrices_CacheRoundTrip(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	resolved := []*model.ResolvedStore{templatedStore("Alpha", "alpha.example", 0)}
	stores := mocks.NewMockStoreRepository(ctrl)
	stores.EXPECT().ResolveForUser(gomock.Any(), "owner-1").Return(resolved, nil).Times(2)

	crawler := &fakeCrawler{
		batchFn: pricedBatch(map[string]float64{
			"https://alpha.example/search?q=ps5": 29.99,
		}),
	}

	priceCache := core.NewPriceCacheService(core.PriceCacheServiceOptions{
		Cache: data.NewRedisCacheRepo(testutil.SetupMiniRedis(t)),
	})
	svc := MustNewPricingService(PricingServiceOptions{
		Stores:              stores,
		Crawler:             crawler,
		AI:                  &fakeCompleter{},
		Cache:               priceCache,
		ExtractionSelectors: testSelectors(),
		MinResults:          1,
	})

	ctx := context.Background()
	params := PriceDiscoveryParams{OwnerID: "owner-1", Query: "ps5"}

	first, fromCache, err := svc.DiscoverPrices(ctx, params)
	require.NoError(t, err)
	assert.False(t, fromCache)
	require.Len(t, crawler.batchCalls, 1)

	second, fromCache, err := svc.DiscoverPrices(ctx, params)
	require.NoError(t, err)
	assert.True(t, fromCache, "second identical search should come from cache")
	assert.Len(t, crawler.batchCalls, 1, "cache hits must not touch the sidecar")
	assert.Equal(t, first, second)

	refreshParams := params
	refreshParams.BypassCache = true
	_, fromCache, err = svc.DiscoverPrices(ctx, refreshParams)
	require.NoError(t, err)
	assert.False(t, fromCache)
	assert.Len(t, crawler.batchCalls, 2, "refresh must bypass the cache read")
}

func TestPricingService_DiscoverPrices_AggregationDegrades(t *testing.T) {
	resolved := []*model.ResolvedStore{
		templatedStore("Alpha", "alpha.example", 0),
		templatedStore("Bravo", "bravo.example", 1),
		templatedStore("Charlie", "charlie.example", 2),
	}
	batch := pricedBatch(map[string]float64{
		"https://alpha.example/search?q=ps5":   29.99,
		"https://bravo.example/search?q=ps5":   19.99,
		"https://charlie.example/search?q=ps5": 49.99,
	})

	tests := []struct {
		name        string
		ai          Aggregator
		wantQueried int
		wantFailed  int
	}{
		{
			name: "provider error",
			ai: &fakeCompleter{completeFn: func(string) (string, error) {
				return "", errors.New("upstream 503")
			}},
			wantQueried: 1,
			wantFailed:  1,
		},
		{
			name: "unparseable answer",
			ai: &fakeCompleter{completeFn: func(string) (string, error) {
				return "sorry, I cannot help with that", nil
			}},
			wantQueried: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			stores := mocks.NewMockStoreRepository(ctrl)
			stores.EXPECT().ResolveForUser(gomock.Any(), "owner-1").Return(resolved, nil)

			svc := MustNewPricingService(PricingServiceOptions{
				Stores:              stores,
				Crawler:             &fakeCrawler{batchFn: batch},
				AI:                  tt.ai,
				ExtractionSelectors: testSelectors(),
			})

			run := runlog.New("price-search")
			result, _, err := svc.DiscoverPrices(context.Background(), PriceDiscoveryParams{
				OwnerID: "owner-1",
				Query:   "ps5",
				Run:     run,
			})
			require.NoError(t, err, "aggregation problems must never fail a run that has results")

			require.Len(t, result.Results, 3)
			require.NotNil(t, result.LowestPrice)
			assert.InDelta(t, 19.99, result.LowestPrice.Price, 0.001)
			assert.InDelta(t, degradedConfidence, result.Confidence, 0.001)
			assert.Empty(t, result.Recommendation)
			assert.Nil(t, result.BestValue)

			assert.Equal(t, tt.wantQueried, run.Counter(runlog.CounterProvidersQueried))
			assert.Equal(t, tt.wantFailed, run.Counter(runlog.CounterProvidersFailed))
			assert.Positive(t, run.WarningCount())
		})
	}
}

func TestPricingService_DiscoverPrices_FailsWithoutProvider(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	// No ResolveForUser expectation: the run must stop before touching the
	// resolver or the sidecar.
	stores := mocks.NewMockStoreRepository(ctrl)
	crawler := &fakeCrawler{}
	svc := MustNewPricingService(PricingServiceOptions{Stores: stores, Crawler: crawler})

	rec := &progressRecorder{}
	run := runlog.New("price-search")
	_, _, err := svc.DiscoverPrices(context.Background(), PriceDiscoveryParams{
		OwnerID:    "owner-1",
		Query:      "ps5",
		Run:        run,
		Checkpoint: rec.checkpoint(),
	})
	require.ErrorIs(t, err, ai.ErrNoProviders)
	assert.Contains(t, err.Error(), "no provider")
	assert.Equal(t, []int{10}, rec.progress, "failure lands right after the cache stage")
	assert.Empty(t, crawler.batchCalls)
	assert.Positive(t, run.ErrorCount())
}

func TestPricingService_DiscoverPrices_CountsProviderAnswers(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	stores := mocks.NewMockStoreRepository(ctrl)
	stores.EXPECT().ResolveForUser(gomock.Any(), "owner-1").
		Return([]*model.ResolvedStore{templatedStore("Alpha", "alpha.example", 0)}, nil)

	// Two providers answered, one failed; the merged answer still lands.
	completer := &fakeCompleter{
		completeFn: func(string) (string, error) {
			return `{"lowest_index": 0, "confidence": 0.8, "recommendation": "Alpha wins on price."}`, nil
		},
		answers: []ai.ProviderAnswer{
			{Provider: "openai", Text: `{"lowest_index": 0, "confidence": 0.8}`},
			{Provider: "gemini", Err: errors.New("upstream 503")},
		},
	}
	run := runlog.New("price-search")

	svc := MustNewPricingService(PricingServiceOptions{
		Stores: stores,
		Crawler: &fakeCrawler{batchFn: pricedBatch(map[string]float64{
			"https://alpha.example/search?q=ps5": 29.99,
		})},
		AI:                  completer,
		ExtractionSelectors: testSelectors(),
		MinResults:          1,
	})

	result, _, err := svc.DiscoverPrices(context.Background(), PriceDiscoveryParams{
		OwnerID: "owner-1",
		Query:   "ps5",
		Run:     run,
	})
	require.NoError(t, err)

	assert.Equal(t, 2, run.Counter(runlog.CounterProvidersQueried))
	assert.Equal(t, 1, run.Counter(runlog.CounterProvidersFailed))
	require.NotNil(t, result.LowestPrice)
	assert.InDelta(t, 0.8, result.Confidence, 0.001)
	assert.Equal(t, "Alpha wins on price.", result.Recommendation)
}

func TestPricingService_DiscoverPrices_CancelledAtFirstCheckpoint(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	stores := mocks.NewMockStoreRepository(ctrl)
	crawler := &fakeCrawler{}
	svc := MustNewPricingService(PricingServiceOptions{Stores: stores, Crawler: crawler})

	cancelled := func(context.Context, int, json.RawMessage) error {
		return model.ErrRunCancelled
	}
	_, _, err := svc.DiscoverPrices(context.Background(), PriceDiscoveryParams{
		OwnerID:    "owner-1",
		Query:      "ps5",
		Checkpoint: cancelled,
	})
	require.ErrorIs(t, err, model.ErrRunCancelled)
	assert.Empty(t, crawler.batchCalls, "cancelled runs must not start fetching")
}

func TestPricingService_DiscoverPrices_Validation(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc := MustNewPricingService(PricingServiceOptions{
		Stores:  mocks.NewMockStoreRepository(ctrl),
		Crawler: &fakeCrawler{},
	})

	_, _, err := svc.DiscoverPrices(context.Background(), PriceDiscoveryParams{
		OwnerID: "owner-1",
		Query:   "   ",
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
}

func TestPricingService_DiscoverPrices_ResolverError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	dbErr := errors.New("connection reset")
	stores := mocks.NewMockStoreRepository(ctrl)
	stores.EXPECT().ResolveForUser(gomock.Any(), "owner-1").Return(nil, dbErr)

	svc := MustNewPricingService(PricingServiceOptions{
		Stores:  stores,
		Crawler: &fakeCrawler{},
		AI:      &fakeCompleter{},
	})

	_, _, err := svc.DiscoverPrices(context.Background(), PriceDiscoveryParams{
		OwnerID: "owner-1",
		Query:   "ps5",
	})
	require.ErrorIs(t, err, dbErr)
}

func TestPricingService_ExtractResult(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc := MustNewPricingService(PricingServiceOptions{
		Stores:              mocks.NewMockStoreRepository(ctrl),
		Crawler:             &fakeCrawler{},
		ExtractionSelectors: testSelectors(),
	})

	tests := []struct {
		name   string
		res    crawl.Result
		wantOK bool
		check  func(t *testing.T, pr model.PriceResult)
	}{
		{
			name: "structured price and currency",
			res: crawl.Result{
				URL:     "https://shop.example/p",
				Success: true,
				ExtractedFields: map[string]any{
					"price":    499.0,
					"currency": "usd",
				},
			},
			wantOK: true,
			check: func(t *testing.T, pr model.PriceResult) {
				assert.InDelta(t, 499.0, pr.Price, 0.001)
				assert.Equal(t, "USD", pr.Currency)
				assert.True(t, pr.InStock)
				assert.Equal(t, "shop.example", pr.StoreDomain)
			},
		},
		{
			name: "string price with symbol and separators",
			res: crawl.Result{
				URL:             "https://shop.example/p",
				Success:         true,
				ExtractedFields: map[string]any{"price": "$1,299.99"},
			},
			wantOK: true,
			check: func(t *testing.T, pr model.PriceResult) {
				assert.InDelta(t, 1299.99, pr.Price, 0.001)
			},
		},
		{
			name: "nested offers price via selector fallback",
			res: crawl.Result{
				URL:     "https://shop.example/p",
				Success: true,
				ExtractedFields: map[string]any{
					"offers": map[string]any{"price": "59.95"},
				},
			},
			wantOK: true,
			check: func(t *testing.T, pr model.PriceResult) {
				assert.InDelta(t, 59.95, pr.Price, 0.001)
			},
		},
		{
			name: "schema availability marks out of stock",
			res: crawl.Result{
				URL:     "https://shop.example/p",
				Success: true,
				ExtractedFields: map[string]any{
					"price":    19.99,
					"in_stock": "https://schema.org/OutOfStock",
				},
			},
			wantOK: true,
			check: func(t *testing.T, pr model.PriceResult) {
				assert.False(t, pr.InStock)
			},
		},
		{
			name: "markdown fallback",
			res: crawl.Result{
				URL:      "https://shop.example/p",
				Success:  true,
				Markdown: "Sale: $24.99 (was $39.99)",
			},
			wantOK: true,
			check: func(t *testing.T, pr model.PriceResult) {
				assert.InDelta(t, 24.99, pr.Price, 0.001)
				assert.Equal(t, "USD", pr.Currency)
			},
		},
		{
			name: "markdown fallback honors out of stock text",
			res: crawl.Result{
				URL:      "https://shop.example/p",
				Success:  true,
				Markdown: "$24.99 - currently unavailable",
			},
			wantOK: true,
			check: func(t *testing.T, pr model.PriceResult) {
				assert.False(t, pr.InStock)
			},
		},
		{
			name: "html fallback skips script text",
			res: crawl.Result{
				URL:     "https://shop.example/p",
				Success: true,
				HTML:    `<html><body><script>track("$1.00")</script><div class="price">€89.00</div></body></html>`,
			},
			wantOK: true,
			check: func(t *testing.T, pr model.PriceResult) {
				assert.InDelta(t, 89.0, pr.Price, 0.001)
				assert.Equal(t, "EUR", pr.Currency)
			},
		},
		{
			name: "absent rating fields stay nil",
			res: crawl.Result{
				URL:     "https://shop.example/p",
				Success: true,
				ExtractedFields: map[string]any{
					"price": 10.0,
				},
			},
			wantOK: true,
			check: func(t *testing.T, pr model.PriceResult) {
				assert.Nil(t, pr.Rating)
				assert.Nil(t, pr.ReviewCount)
			},
		},
		{
			name:   "no price anywhere",
			res:    crawl.Result{URL: "https://shop.example/p", Success: true, Markdown: "lovely product"},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pr, ok := svc.extractResult(&tt.res, model.TierWebSearch)
			require.Equal(t, tt.wantOK, ok)
			if tt.check != nil {
				tt.check(t, pr)
			}
		})
	}
}

func TestPriceFromText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		text     string
		want     float64
		currency string
		found    bool
	}{
		{name: "dollars with separators", text: "only $1,299.99 today", want: 1299.99, currency: "USD", found: true},
		{name: "euros with space", text: "€ 49", want: 49, currency: "EUR", found: true},
		{name: "pounds", text: "£5.50", want: 5.5, currency: "GBP", found: true},
		{name: "no currency marker", text: "order 12345678", found: false},
		{name: "zero is implausible", text: "$0.00", found: false},
		{name: "absurd amount is implausible", text: "$2500000", found: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, currency, found := priceFromText(tt.text)
			require.Equal(t, tt.found, found)
			if !tt.found {
				return
			}
			assert.InDelta(t, tt.want, got, 0.001)
			assert.Equal(t, tt.currency, currency)
		})
	}
}

func TestParseAvailability(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		value   any
		inStock bool
		known   bool
	}{
		{name: "bool", value: true, inStock: true, known: true},
		{name: "schema in stock", value: "https://schema.org/InStock", inStock: true, known: true},
		{name: "schema out of stock", value: "https://schema.org/OutOfStock", inStock: false, known: true},
		{name: "sold out with underscore", value: "sold_out", inStock: false, known: true},
		{name: "limited availability", value: "LimitedAvailability", inStock: true, known: true},
		{name: "unrecognized string", value: "preorder", known: false},
		{name: "unrecognized type", value: 42, known: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			inStock, known := parseAvailability(tt.value)
			require.Equal(t, tt.known, known)
			if tt.known {
				assert.Equal(t, tt.inStock, inStock)
			}
		})
	}
}
