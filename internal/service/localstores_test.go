package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/danavision/discovery-go/internal/core"
	"github.com/danavision/discovery-go/internal/crawl"
	"github.com/danavision/discovery-go/internal/data"
	"github.com/danavision/discovery-go/internal/domain/model"
	apperrors "github.com/danavision/discovery-go/internal/errors"
	"github.com/danavision/discovery-go/internal/mocks"
	"github.com/danavision/discovery-go/internal/testutil"
)

func areaHits() []crawl.SearchResult {
	return []crawl.SearchResult{
		{URL: "https://freshmart.example/stores/m5v", Title: "FreshMart M5V", Snippet: "Grocery store at 1 King St"},
		{URL: "https://greengrocer.example/locations", Title: "Green Grocer", Snippet: "Open daily 8-22"},
	}
}

func localStoreAnswer() string {
	return `[
		{"name": "FreshMart", "domain": "freshmart.example", "address": "1 King St", "store_type": "grocery", "latitude": 43.64, "longitude": -79.39},
		{"name": "Green Grocer", "domain": "greengrocer.example", "store_type": "grocery"}
	]`
}

func TestLocalStoreService_DiscoverNearby_RecordsStores(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	stores := mocks.NewMockStoreRepository(ctrl)
	for _, domain := range []string{"freshmart.example", "greengrocer.example"} {
		st := &model.Store{ID: "store-" + domain, Domain: domain}
		stores.EXPECT().
			UpsertLocal(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, params core.UpsertLocalStoreParams) (*model.Store, error) {
				assert.Equal(t, domain, params.Domain)
				assert.Equal(t, "grocery", params.Category)
				return st, nil
			})
		stores.EXPECT().
			SetPreference(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, params core.SetStorePreferenceParams) (*model.StorePreference, error) {
				assert.Equal(t, "owner-1", params.UserID)
				assert.Equal(t, st.ID, params.StoreID)
				require.NotNil(t, params.Req.Enabled)
				assert.True(t, *params.Req.Enabled)
				return &model.StorePreference{UserID: params.UserID, StoreID: params.StoreID, Enabled: true}, nil
			})
	}

	states := mocks.NewMockDiscoveryStateRepository(ctrl)
	states.EXPECT().
		Upsert(gomock.Any(), core.UpsertDiscoveryStateParams{
			OwnerID:    "owner-1",
			PostalCode: "M5V 3L9",
			StoreType:  "grocery",
			StoreCount: 2,
		}).
		Return(&model.LocalDiscoveryState{DiscoveredAt: time.Now()}, nil)

	crawler := &fakeCrawler{searchFn: func(string) ([]crawl.SearchResult, error) {
		return areaHits(), nil
	}}
	completer := &fakeCompleter{completeFn: func(string) (string, error) {
		return localStoreAnswer(), nil
	}}

	svc := MustNewLocalStoreService(LocalStoreServiceOptions{
		Stores:  stores,
		States:  states,
		Crawler: crawler,
		AI:      completer,
	})

	rec := &progressRecorder{}
	out, fromCache, err := svc.DiscoverNearby(context.Background(), NearbyStoreParams{
		OwnerID:    "owner-1",
		Input:      &model.NearbyStoreDiscoveryInput{PostalCode: "M5V 3L9"},
		Checkpoint: rec.checkpoint(),
	})
	require.NoError(t, err)
	assert.False(t, fromCache)

	require.Len(t, out.Stores, 2)
	assert.Equal(t, "FreshMart", out.Stores[0].Name)
	assert.Equal(t, "freshmart.example", out.Stores[0].Domain)
	require.NotNil(t, out.Stores[0].Latitude)
	assert.InDelta(t, 43.64, *out.Stores[0].Latitude, 0.001)
	assert.Equal(t, "M5V 3L9", out.PostalCode)
	assert.Equal(t, "grocery", out.StoreType)

	assert.Equal(t, []int{
		progressAreaCacheChecked,
		progressAreaQueriesBuilt,
		progressAreaSearched,
		progressAreaAggregated,
	}, rec.progress)
	require.Len(t, crawler.searchCalls, 2, "both area query phrasings should be searched")
	assert.Contains(t, crawler.searchCalls[0], "M5V 3L9")
}

func TestLocalStoreService_DiscoverNearby_CacheRoundTrip(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	stores := mocks.NewMockStoreRepository(ctrl)
	stores.EXPECT().UpsertLocal(gomock.Any(), gomock.Any()).
		Return(&model.Store{ID: "store-1", Domain: "freshmart.example"}, nil).
		Times(2)
	stores.EXPECT().SetPreference(gomock.Any(), gomock.Any()).
		Return(&model.StorePreference{}, nil).
		Times(2)
	states := mocks.NewMockDiscoveryStateRepository(ctrl)
	states.EXPECT().Upsert(gomock.Any(), gomock.Any()).
		Return(&model.LocalDiscoveryState{}, nil).
		Times(2)

	crawler := &fakeCrawler{searchFn: func(string) ([]crawl.SearchResult, error) {
		return areaHits()[:1], nil
	}}
	completer := &fakeCompleter{completeFn: func(string) (string, error) {
		return `[{"name": "FreshMart", "domain": "freshmart.example", "store_type": "grocery"}]`, nil
	}}
	cache := core.NewLocalStoreCacheService(core.LocalStoreCacheServiceOptions{
		Cache: data.NewRedisCacheRepo(testutil.SetupMiniRedis(t)),
	})

	svc := MustNewLocalStoreService(LocalStoreServiceOptions{
		Stores:  stores,
		States:  states,
		Crawler: crawler,
		AI:      completer,
		Cache:   cache,
	})

	ctx := context.Background()
	params := NearbyStoreParams{
		OwnerID: "owner-1",
		Input:   &model.NearbyStoreDiscoveryInput{PostalCode: "M5V 3L9"},
	}

	first, fromCache, err := svc.DiscoverNearby(ctx, params)
	require.NoError(t, err)
	assert.False(t, fromCache)
	searchesAfterFirst := len(crawler.searchCalls)

	second, fromCache, err := svc.DiscoverNearby(ctx, NearbyStoreParams{
		OwnerID: "owner-1",
		Input:   &model.NearbyStoreDiscoveryInput{PostalCode: "m5v3l9"},
	})
	require.NoError(t, err)
	assert.True(t, fromCache, "same area spelled differently should hit the cache")
	assert.Len(t, crawler.searchCalls, searchesAfterFirst, "cache hits must not touch the sidecar")
	assert.Equal(t, first.Stores, second.Stores)

	refresh := params
	refresh.BypassCache = true
	_, fromCache, err = svc.DiscoverNearby(ctx, refresh)
	require.NoError(t, err)
	assert.False(t, fromCache)
	assert.Greater(t, len(crawler.searchCalls), searchesAfterFirst, "refresh must bypass the cache read")
}

func TestLocalStoreService_DiscoverNearby_FallsBackToSearchHits(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	stores := mocks.NewMockStoreRepository(ctrl)
	stores.EXPECT().UpsertLocal(gomock.Any(), gomock.Any()).
		Return(&model.Store{ID: "store-1"}, nil).
		Times(2)
	stores.EXPECT().SetPreference(gomock.Any(), gomock.Any()).
		Return(&model.StorePreference{}, nil).
		Times(2)
	states := mocks.NewMockDiscoveryStateRepository(ctrl)
	states.EXPECT().Upsert(gomock.Any(), gomock.Any()).Return(&model.LocalDiscoveryState{}, nil)

	crawler := &fakeCrawler{searchFn: func(string) ([]crawl.SearchResult, error) {
		return areaHits(), nil
	}}
	completer := &fakeCompleter{completeFn: func(string) (string, error) {
		return "I could not find structured data, sorry.", nil
	}}

	svc := MustNewLocalStoreService(LocalStoreServiceOptions{
		Stores:  stores,
		States:  states,
		Crawler: crawler,
		AI:      completer,
	})

	out, _, err := svc.DiscoverNearby(context.Background(), NearbyStoreParams{
		OwnerID: "owner-1",
		Input:   &model.NearbyStoreDiscoveryInput{PostalCode: "M5V 3L9"},
	})
	require.NoError(t, err)

	require.Len(t, out.Stores, 2, "unparseable answers should degrade to the search hits")
	assert.Equal(t, "FreshMart M5V", out.Stores[0].Name)
	assert.Equal(t, "freshmart.example", out.Stores[0].Domain)
	assert.Equal(t, "grocery", out.Stores[0].StoreType)
}

func TestLocalStoreService_DiscoverNearby_NoSearchResults(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	crawler := &fakeCrawler{searchFn: func(string) ([]crawl.SearchResult, error) {
		return nil, errors.New("sidecar down")
	}}
	svc := MustNewLocalStoreService(LocalStoreServiceOptions{
		Stores:  mocks.NewMockStoreRepository(ctrl),
		States:  mocks.NewMockDiscoveryStateRepository(ctrl),
		Crawler: crawler,
		AI:      &fakeCompleter{},
	})

	_, _, err := svc.DiscoverNearby(context.Background(), NearbyStoreParams{
		OwnerID: "owner-1",
		Input:   &model.NearbyStoreDiscoveryInput{PostalCode: "M5V 3L9"},
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsProviderUnavailable(err))
}

func TestLocalStoreService_DiscoverNearby_Validation(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc := MustNewLocalStoreService(LocalStoreServiceOptions{
		Stores:  mocks.NewMockStoreRepository(ctrl),
		States:  mocks.NewMockDiscoveryStateRepository(ctrl),
		Crawler: &fakeCrawler{},
	})

	_, _, err := svc.DiscoverNearby(context.Background(), NearbyStoreParams{
		Input: &model.NearbyStoreDiscoveryInput{PostalCode: "M5V 3L9"},
	})
	require.Error(t, err, "owner id is required")

	_, _, err = svc.DiscoverNearby(context.Background(), NearbyStoreParams{OwnerID: "owner-1"})
	require.Error(t, err, "input is required")

	_, _, err = svc.DiscoverNearby(context.Background(), NearbyStoreParams{
		OwnerID: "owner-1",
		Input:   &model.NearbyStoreDiscoveryInput{PostalCode: "   "},
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
}

func TestSanitizeStores(t *testing.T) {
	lat := 43.64
	stores := []model.DiscoveredStore{
		{Name: "  FreshMart  ", Domain: "https://FreshMart.example/stores", Latitude: &lat},
		{Name: "FreshMart Two", Domain: "freshmart.example"},
		{Name: "", Domain: "nameless.example"},
		{Name: "No Domain Deli"},
		{Name: "no domain deli", Domain: "not a domain !!"},
	}

	out := sanitizeStores(stores, "grocery", 10)

	require.Len(t, out, 2)
	assert.Equal(t, "FreshMart", out[0].Name)
	assert.Equal(t, "freshmart.example", out[0].Domain)
	assert.Equal(t, "grocery", out[0].StoreType)
	assert.Equal(t, "No Domain Deli", out[1].Name)
	assert.Empty(t, out[1].Domain)

	capped := sanitizeStores(stores, "grocery", 1)
	assert.Len(t, capped, 1)
}
