package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/danavision/discovery-go/internal/ai"
	"github.com/danavision/discovery-go/internal/core"
	"github.com/danavision/discovery-go/internal/crawl"
	"github.com/danavision/discovery-go/internal/domain/model"
	"github.com/danavision/discovery-go/internal/domain/runcontext"
	"github.com/danavision/discovery-go/internal/domain/runlog"
	apperrors "github.com/danavision/discovery-go/internal/errors"
)

const (
	progressAreaCacheChecked = 10
	progressAreaQueriesBuilt = 25
	progressAreaSearched     = 60
	progressAreaAggregated   = 80
)

// defaultMaxLocalStores caps how many stores one discovery run records.
const defaultMaxLocalStores = 12

// AreaSearcher is the slice of the crawl sidecar client nearby-store
// discovery uses. *crawl.Client satisfies it.
type AreaSearcher interface {
	Search(ctx context.Context, query string) ([]crawl.SearchResult, error)
}

// LocalStoreServiceOptions groups dependencies for LocalStoreService.
type LocalStoreServiceOptions struct {
	Stores  core.StoreRepository           // Required: upserts discovered stores
	States  core.DiscoveryStateRepository  // Required: records discovery freshness per area
	Crawler AreaSearcher                   // Required: web search sidecar client
	AI      Completer                      // Optional: aggregation falls back to search hits without it
	Cache   *core.LocalStoreCacheService   // Optional: per-area result cache

	// MaxStores caps the stores recorded per run. Defaults to 12.
	MaxStores int

	Logger *slog.Logger // Optional: structured logger
}

// LocalStoreService discovers retail stores around a postal code: web search
// over the area, AI aggregation into a structured store list, then upserts of
// auto-configured local stores wired into the owner's preferences.
type LocalStoreService struct {
	stores    core.StoreRepository
	states    core.DiscoveryStateRepository
	crawler   AreaSearcher
	ai        Completer
	cache     *core.LocalStoreCacheService
	maxStores int
	logger    *slog.Logger
	now       func() time.Time
}

// NewLocalStoreService constructs a new LocalStoreService.
func NewLocalStoreService(opts LocalStoreServiceOptions) (*LocalStoreService, error) {
	if opts.Stores == nil {
		return nil, errors.New("StoreRepository is required")
	}
	if opts.States == nil {
		return nil, errors.New("DiscoveryStateRepository is required")
	}
	if opts.Crawler == nil {
		return nil, errors.New("AreaSearcher is required")
	}
	maxStores := opts.MaxStores
	if maxStores < 1 {
		maxStores = defaultMaxLocalStores
	}
	return &LocalStoreService{
		stores:    opts.Stores,
		states:    opts.States,
		crawler:   opts.Crawler,
		ai:        opts.AI,
		cache:     opts.Cache,
		maxStores: maxStores,
		logger:    opts.Logger,
		now:       time.Now,
	}, nil
}

// MustNewLocalStoreService constructs a new LocalStoreService and panics on error.
func MustNewLocalStoreService(opts LocalStoreServiceOptions) *LocalStoreService {
	svc, err := NewLocalStoreService(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create LocalStoreService: %v", err))
	}
	return svc
}

// NearbyStoreParams carries one nearby-store discovery run's inputs. Run and
// Checkpoint are optional; missing ones are replaced with inert defaults.
type NearbyStoreParams struct {
	OwnerID string
	Input   *model.NearbyStoreDiscoveryInput

	// BypassCache skips the cache read while still repopulating the entry
	// afterwards, which is how scheduled refreshes force fresh observations.
	BypassCache bool

	Run        *runlog.Logger
	Checkpoint runcontext.Checkpoint
}

// DiscoverNearby finds stores around an owner's postal code and returns the
// recorded store list plus whether it came from cache. Discovered stores are
// upserted as auto-configured local stores with an enabled preference for the
// owner, and the area's discovery state row is refreshed.
func (s *LocalStoreService) DiscoverNearby(
	ctx context.Context,
	params NearbyStoreParams,
) (*model.NearbyStoreDiscoveryOutput, bool, error) {
	if strings.TrimSpace(params.OwnerID) == "" {
		return nil, false, apperrors.Validation("owner id is required")
	}
	if params.Input == nil {
		return nil, false, apperrors.Validation("discovery input is required")
	}
	if err := params.Input.Validate(); err != nil {
		return nil, false, apperrors.Validation(err.Error())
	}
	input := params.Input
	run, checkpoint := runDefaults(params.Run, params.Checkpoint, "nearby-store-discovery")

	if s.cache != nil && !params.BypassCache {
		entry, err := s.cache.Get(ctx, params.OwnerID, input.PostalCode, input.StoreType)
		switch {
		case err != nil:
			run.Warning("local store cache read failed", map[string]any{"error": err.Error()})
		case entry != nil && !s.cache.Stale(entry, s.now()):
			run.Info("local store cache hit", map[string]any{"discovered_at": entry.DiscoveredAt})
			if err := checkpoint(ctx, progressAreaCacheChecked, nil); err != nil {
				return nil, false, err
			}
			return &model.NearbyStoreDiscoveryOutput{
				PostalCode: input.PostalCode,
				StoreType:  input.StoreType,
				Stores:     entry.Stores,
				FromCache:  true,
			}, true, nil
		case entry != nil:
			run.Info("local store cache entry stale", map[string]any{"discovered_at": entry.DiscoveredAt})
		}
	}
	if err := checkpoint(ctx, progressAreaCacheChecked, nil); err != nil {
		return nil, false, err
	}

	queries := areaQueries(input)
	if err := checkpoint(ctx, progressAreaQueriesBuilt, nil); err != nil {
		return nil, false, err
	}

	hits := s.searchArea(ctx, queries, run)
	if ctx.Err() != nil {
		return nil, false, ctx.Err()
	}
	if err := checkpoint(ctx, progressAreaSearched, countPatch("search_results", len(hits))); err != nil {
		return nil, false, err
	}
	if len(hits) == 0 {
		return nil, false, apperrors.ProviderUnavailable("area web search returned no results")
	}

	stores := s.aggregateStores(ctx, input, hits, run)
	stores = sanitizeStores(stores, input.StoreType, s.maxStores)
	if err := checkpoint(ctx, progressAreaAggregated, countPatch("stores_found", len(stores))); err != nil {
		return nil, false, err
	}

	recorded := s.recordStores(ctx, params.OwnerID, stores, run)
	if state, err := s.states.Upsert(ctx, core.UpsertDiscoveryStateParams{
		OwnerID:    params.OwnerID,
		PostalCode: input.PostalCode,
		StoreType:  input.StoreType,
		StoreCount: len(stores),
	}); err != nil {
		run.Warning("discovery state write failed", map[string]any{"error": err.Error()})
	} else {
		run.Debug("discovery state refreshed", map[string]any{"discovered_at": state.DiscoveredAt})
	}

	if s.cache != nil && len(stores) > 0 {
		entry := &core.CachedLocalStores{
			PostalCode: input.PostalCode,
			StoreType:  input.StoreType,
			Stores:     stores,
		}
		if err := s.cache.Put(ctx, params.OwnerID, entry); err != nil {
			run.Warning("local store cache write failed", map[string]any{"error": err.Error()})
		}
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "nearby store discovery complete",
			"owner_id", params.OwnerID,
			"postal_code", input.PostalCode,
			"store_type", input.StoreType,
			"stores_found", len(stores),
			"stores_recorded", recorded,
		)
	}
	return &model.NearbyStoreDiscoveryOutput{
		PostalCode: input.PostalCode,
		StoreType:  input.StoreType,
		Stores:     stores,
	}, false, nil
}

// searchArea runs every area query against the sidecar and merges the hits,
// keeping the first occurrence of each URL. Per-query failures are logged and
// never fatal; the caller decides what an empty merge means.
func (s *LocalStoreService) searchArea(
	ctx context.Context,
	queries []string,
	run *runlog.Logger,
) []crawl.SearchResult {
	seen := make(map[string]struct{})
	var merged []crawl.SearchResult
	for _, q := range queries {
		if ctx.Err() != nil {
			return merged
		}
		hits, err := s.crawler.Search(ctx, q)
		if err != nil {
			run.Warning("area search failed", map[string]any{"query": q, "error": err.Error()})
			continue
		}
		run.Info("area search complete", map[string]any{"query": q, "hits": len(hits)})
		for _, hit := range hits {
			if hit.URL == "" {
				continue
			}
			if _, dup := seen[hit.URL]; dup {
				continue
			}
			seen[hit.URL] = struct{}{}
			merged = append(merged, hit)
		}
	}
	return merged
}

// aggregateStores turns raw search hits into a structured store list. With a
// provider configured the hits are summarized by the model; otherwise, or
// when the answer does not parse, the hits themselves become coarse entries.
func (s *LocalStoreService) aggregateStores(
	ctx context.Context,
	input *model.NearbyStoreDiscoveryInput,
	hits []crawl.SearchResult,
	run *runlog.Logger,
) []model.DiscoveredStore {
	if s.ai == nil {
		run.Info("no AI provider configured, deriving stores from search hits", nil)
		return storesFromHits(hits, input.StoreType)
	}
	run.Count(runlog.CounterProvidersQueried, 1)
	answer, err := s.ai.Complete(ctx, areaAggregationPrompt(input, hits))
	if err != nil {
		run.Count(runlog.CounterProvidersFailed, 1)
		run.Warning("store aggregation failed, deriving stores from search hits", map[string]any{
			"error": err.Error(),
		})
		return storesFromHits(hits, input.StoreType)
	}
	stores, ok := ai.ExtractJSONArray[[]model.DiscoveredStore](answer)
	if !ok {
		run.Warning("store aggregation answer did not parse, deriving stores from search hits", nil)
		return storesFromHits(hits, input.StoreType)
	}
	run.Success("store aggregation complete", map[string]any{"stores": len(stores)})
	return stores
}

// recordStores upserts each discovered store with a domain and enables it in
// the owner's preferences. Per-store failures are logged, never fatal.
func (s *LocalStoreService) recordStores(
	ctx context.Context,
	ownerID string,
	stores []model.DiscoveredStore,
	run *runlog.Logger,
) int {
	enabled := true
	recorded := 0
	for _, ds := range stores {
		if ds.Domain == "" {
			continue
		}
		st, err := s.stores.UpsertLocal(ctx, core.UpsertLocalStoreParams{
			Name:      ds.Name,
			Domain:    ds.Domain,
			Category:  ds.StoreType,
			Latitude:  ds.Latitude,
			Longitude: ds.Longitude,
		})
		if err != nil {
			run.Warning("store upsert failed", map[string]any{"domain": ds.Domain, "error": err.Error()})
			continue
		}
		if _, err := s.stores.SetPreference(ctx, core.SetStorePreferenceParams{
			UserID:  ownerID,
			StoreID: st.ID,
			Req:     &model.UpdateStorePreferenceRequest{Enabled: &enabled},
		}); err != nil {
			run.Warning("store preference write failed", map[string]any{"store_id": st.ID, "error": err.Error()})
			continue
		}
		recorded++
	}
	run.Info("local stores recorded", map[string]any{"recorded": recorded})
	return recorded
}

// areaQueries builds the web searches for an area. Two phrasings cover both
// aggregator pages and store-locator pages.
func areaQueries(input *model.NearbyStoreDiscoveryInput) []string {
	base := fmt.Sprintf("%s stores near %s", input.StoreType, input.PostalCode)
	if input.RadiusKM > 0 {
		base = fmt.Sprintf("%s within %.0f km", base, input.RadiusKM)
	}
	return []string{
		base,
		fmt.Sprintf("best %s near %s with online ordering", input.StoreType, input.PostalCode),
	}
}

func areaAggregationPrompt(input *model.NearbyStoreDiscoveryInput, hits []crawl.SearchResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "These are web search results for %q stores near postal code %s.\n",
		input.StoreType, input.PostalCode)
	if input.RadiusKM > 0 {
		fmt.Fprintf(&b, "Only include stores within roughly %.0f km.\n", input.RadiusKM)
	}
	b.WriteString("Extract the distinct retail stores mentioned. Respond with only a JSON array of this exact shape:\n")
	b.WriteString(`[{"name": "<store name>", "domain": "<website domain or empty>", "address": "<street address or empty>", ` +
		`"store_type": "<category>", "latitude": <number or null>, "longitude": <number or null>, ` +
		`"distance_km": <number or null>}]` + "\n\n")
	for i, hit := range hits {
		fmt.Fprintf(&b, "%d. %s\n%s\n%s\n\n", i+1, hit.Title, hit.URL, hit.Snippet)
	}
	return b.String()
}

// storesFromHits is the aggregation fallback: each search hit with a usable
// domain becomes a coarse store entry named after the page title.
func storesFromHits(hits []crawl.SearchResult, storeType string) []model.DiscoveredStore {
	stores := make([]model.DiscoveredStore, 0, len(hits))
	for _, hit := range hits {
		domain := resultDomain(hit.URL)
		if domain == "" {
			continue
		}
		name := strings.TrimSpace(hit.Title)
		if name == "" {
			name = domain
		}
		stores = append(stores, model.DiscoveredStore{
			Name:      name,
			Domain:    domain,
			StoreType: storeType,
		})
	}
	return stores
}

// sanitizeStores normalizes domains, fills the store type, drops duplicates
// and nameless entries, and caps the list.
func sanitizeStores(stores []model.DiscoveredStore, storeType string, limit int) []model.DiscoveredStore {
	seen := make(map[string]struct{})
	out := make([]model.DiscoveredStore, 0, len(stores))
	for _, ds := range stores {
		ds.Name = strings.TrimSpace(ds.Name)
		if ds.Name == "" {
			continue
		}
		if ds.StoreType == "" {
			ds.StoreType = storeType
		}
		if ds.Domain != "" {
			normalized, err := model.NormalizeDomain(ds.Domain)
			if err != nil {
				ds.Domain = ""
			} else {
				ds.Domain = normalized
			}
		}
		key := ds.Domain
		if key == "" {
			key = "name:" + strings.ToLower(ds.Name)
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, ds)
		if len(out) >= limit {
			break
		}
	}
	return out
}
