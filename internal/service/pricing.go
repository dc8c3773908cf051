package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/danavision/discovery-go/internal/ai"
	"github.com/danavision/discovery-go/internal/core"
	"github.com/danavision/discovery-go/internal/crawl"
	"github.com/danavision/discovery-go/internal/domain/discovery"
	"github.com/danavision/discovery-go/internal/domain/model"
	"github.com/danavision/discovery-go/internal/domain/runcontext"
	"github.com/danavision/discovery-go/internal/domain/runlog"
	apperrors "github.com/danavision/discovery-go/internal/errors"
	jmespath "github.com/jmespath-community/go-jmespath"
	"golang.org/x/net/html"
	"golang.org/x/time/rate"
)

const (
	defaultMinResults   = 3
	defaultMaxTier2URLs = 10
	defaultTier2Rate    = 2

	// maxPlausiblePrice guards the regex fallback against matching order
	// numbers and SKUs that happen to look like amounts.
	maxPlausiblePrice = 1_000_000

	defaultCurrency = "USD"

	// degradedConfidence marks results whose aggregation fell back to the
	// cheapest raw observation.
	degradedConfidence = 0.3
)

// Progress checkpoints for a price discovery run. The surrounding job
// handler owns 0 and 100.
const (
	progressCacheChecked   = 10
	progressStoresResolved = 15
	progressTier1Done      = 40
	progressTier2Done      = 65
	progressMerged         = 75
	progressAggregated     = 90
)

// priceRe matches currency-prefixed amounts like "$1,299.99" or "€ 49".
var priceRe = regexp.MustCompile(`([$€£])\s?([0-9][0-9,]*(?:\.[0-9]{1,2})?)`)

// outOfStockRe flags availability phrasing in scraped page text.
var outOfStockRe = regexp.MustCompile(`(?i)\b(out of stock|sold out|currently unavailable)\b`)

// PageFetcher is the slice of the crawl sidecar client price discovery
// uses. *crawl.Client satisfies it.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (*crawl.Result, error)
	BatchFetch(ctx context.Context, urls []string) ([]crawl.Result, error)
	Search(ctx context.Context, query string) ([]crawl.SearchResult, error)
}

// Completer answers a single prompt through the primary provider.
// *ai.Gateway satisfies it.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Aggregator is the slice of the AI gateway price discovery uses: it fans
// a prompt across every configured provider and merges the answers.
// *ai.Gateway satisfies it.
type Aggregator interface {
	CompleteAll(ctx context.Context, prompt string) (string, []ai.ProviderAnswer, error)
}

// PricingServiceOptions groups dependencies for PricingService.
type PricingServiceOptions struct {
	Stores  core.StoreRepository    // Required: resolves each owner's store order
	Crawler PageFetcher             // Required: scraping sidecar client
	AI      Aggregator              // Required at run time: runs fail with ai.ErrNoProviders when nil
	Cache   *core.PriceCacheService // Optional: price result cache

	// MinResults is the usable tier-1 count below which the run escalates
	// to web search. Defaults to 3.
	MinResults int

	// MaxTier2URLs caps tier-2 page fetches per run. Defaults to 10.
	MaxTier2URLs int

	// Tier2RatePerSecond limits tier-2 fetch rate against the sidecar.
	// Defaults to 2.
	Tier2RatePerSecond float64

	// ExtractionSelectors maps extraction field names (price, currency,
	// in_stock, rating, review_count) to JMESPath expressions evaluated
	// against a scrape's structured fields. Empty disables structured-field
	// extraction and leaves only the text fallbacks.
	ExtractionSelectors map[string]string

	Logger *slog.Logger // Optional: structured logger
}

// PricingService runs tiered price discovery: configured stores first, web
// search escalation when they come up short, then AI aggregation over the
// merged ranking.
type PricingService struct {
	stores     core.StoreRepository
	crawler    PageFetcher
	ai         Aggregator
	cache      *core.PriceCacheService
	minResults int
	maxTier2   int
	tier2Rate  rate.Limit
	selectors  map[string]string
	logger     *slog.Logger
}

// NewPricingService constructs a new PricingService.
func NewPricingService(opts PricingServiceOptions) (*PricingService, error) {
	if opts.Stores == nil {
		return nil, errors.New("StoreRepository is required")
	}
	if opts.Crawler == nil {
		return nil, errors.New("PageFetcher is required")
	}
	for name, expr := range opts.ExtractionSelectors {
		if _, err := jmespath.Compile(expr); err != nil {
			return nil, fmt.Errorf("extraction selector %q: %w", name, err)
		}
	}

	minResults := opts.MinResults
	if minResults < 1 {
		minResults = defaultMinResults
	}
	maxTier2 := opts.MaxTier2URLs
	if maxTier2 < 1 {
		maxTier2 = defaultMaxTier2URLs
	}
	tier2Rate := opts.Tier2RatePerSecond
	if tier2Rate <= 0 {
		tier2Rate = defaultTier2Rate
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "pricing_service")
	}

	return &PricingService{
		stores:     opts.Stores,
		crawler:    opts.Crawler,
		ai:         opts.AI,
		cache:      opts.Cache,
		minResults: minResults,
		maxTier2:   maxTier2,
		tier2Rate:  rate.Limit(tier2Rate),
		selectors:  opts.ExtractionSelectors,
		logger:     logger,
	}, nil
}

// MustNewPricingService constructs a new PricingService and panics on error.
func MustNewPricingService(opts PricingServiceOptions) *PricingService {
	svc, err := NewPricingService(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create PricingService: %v", err))
	}
	return svc
}

// PriceDiscoveryParams carries one discovery run's inputs. Run and
// Checkpoint are optional; missing ones are replaced with inert defaults.
type PriceDiscoveryParams struct {
	OwnerID string
	Query   string
	Options model.SearchOptions

	// BypassCache skips the cache read while still repopulating the entry
	// afterwards, which is how refresh jobs force fresh observations.
	BypassCache bool

	Run        *runlog.Logger
	Checkpoint runcontext.Checkpoint
}

// DiscoverPrices runs one tiered discovery pass for an owner's query and
// returns the aggregated result plus whether it came from cache. Progress
// and partial counts are flushed through the checkpoint at stage
// boundaries, so cancellation lands between stages with output intact.
func (s *PricingService) DiscoverPrices(
	ctx context.Context,
	params PriceDiscoveryParams,
) (*model.DiscoveryResult, bool, error) {
	query := strings.TrimSpace(params.Query)
	if query == "" {
		return nil, false, apperrors.Validation("query is required")
	}
	run := params.Run
	if run == nil {
		run = runlog.New("price-discovery")
	}
	checkpoint := params.Checkpoint
	if checkpoint == nil {
		checkpoint = runcontext.Noop()
	}

	if s.cache != nil && !params.BypassCache {
		entry, err := s.cache.Get(ctx, params.OwnerID, query, params.Options)
		switch {
		case err != nil:
			run.Warning("price cache read failed", map[string]any{"error": err.Error()})
		case entry != nil && entry.Discovery != nil:
			run.Info("price cache hit", map[string]any{"cached_at": entry.CachedAt})
			if err := checkpoint(ctx, progressCacheChecked, nil); err != nil {
				return nil, false, err
			}
			return entry.Discovery, true, nil
		}
	}
	if err := checkpoint(ctx, progressCacheChecked, nil); err != nil {
		return nil, false, err
	}

	// Aggregation cannot be skipped, so a missing provider fails the run
	// before any store is fetched.
	if s.ai == nil {
		run.Error("no aggregation provider configured", map[string]any{"query": query})
		return nil, false, fmt.Errorf("discover prices for %q: %w", query, ai.ErrNoProviders)
	}

	resolved, err := s.resolveStores(ctx, params.OwnerID)
	if err != nil {
		return nil, false, err
	}
	rank := discovery.BuildStoreRank(resolved)
	if err := checkpoint(ctx, progressStoresResolved, nil); err != nil {
		return nil, false, err
	}

	tier1 := s.fetchTier1(ctx, query, resolved, run)
	if err := checkpoint(ctx, progressTier1Done, countPatch("tier1_results", len(tier1))); err != nil {
		return nil, false, err
	}

	var tier2 []model.PriceResult
	if usable := discovery.FilterUsable(tier1, params.Options); len(usable) < s.minResults {
		run.Info("escalating to web search", map[string]any{
			"tier1_usable": len(usable),
			"min_results":  s.minResults,
		})
		tier2 = s.fetchTier2(ctx, query, run)
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		if err := checkpoint(ctx, progressTier2Done, countPatch("tier2_results", len(tier2))); err != nil {
			return nil, false, err
		}
	}

	ranked := discovery.Rank(discovery.FilterUsable(discovery.Merge(tier1, tier2), params.Options), rank)
	if limit := params.Options.MaxResults; limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	if err := checkpoint(ctx, progressMerged, countPatch("ranked_results", len(ranked))); err != nil {
		return nil, false, err
	}
	if len(ranked) == 0 {
		run.Error("no usable prices found", map[string]any{"query": query})
		return nil, false, fmt.Errorf("discover prices for %q: %w", query, model.ErrNoResults)
	}

	result := s.buildDiscoveryResult(ctx, query, ranked, run)
	if err := checkpoint(ctx, progressAggregated, nil); err != nil {
		return nil, false, err
	}

	if s.cache != nil && len(result.Results) > 0 {
		entry := &core.CachedPrices{Query: query, Options: params.Options, Discovery: result}
		if err := s.cache.Put(ctx, params.OwnerID, entry); err != nil {
			run.Warning("price cache write failed", map[string]any{"error": err.Error()})
		}
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "price discovery complete",
			"owner_id", params.OwnerID,
			"results", len(result.Results),
			"prices_found", run.Counter(runlog.CounterPricesFound),
		)
	}
	return result, false, nil
}

func (s *PricingService) resolveStores(ctx context.Context, ownerID string) ([]model.ResolvedStore, error) {
	stores, err := s.stores.ResolveForUser(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("resolve stores for %s: %w", ownerID, err)
	}
	resolved := make([]model.ResolvedStore, 0, len(stores))
	for _, st := range stores {
		if st != nil {
			resolved = append(resolved, *st)
		}
	}
	return resolved, nil
}

// fetchTier1 scrapes every templated store's search page in one sidecar
// batch. Per-URL failures are logged and counted, never fatal; a transport
// failure on the whole batch just leaves tier 2 to do the work.
func (s *PricingService) fetchTier1(
	ctx context.Context,
	query string,
	stores []model.ResolvedStore,
	run *runlog.Logger,
) []model.PriceResult {
	urls := make([]string, 0, len(stores))
	storeByURL := make(map[string]*model.ResolvedStore, len(stores))
	for i := range stores {
		u := stores[i].SearchURL(query)
		if u == "" {
			continue
		}
		if _, seen := storeByURL[u]; seen {
			continue
		}
		urls = append(urls, u)
		storeByURL[u] = &stores[i]
	}
	if len(urls) == 0 {
		run.Warning("no configured stores with search templates", nil)
		run.TierComplete(1, 0)
		return nil
	}

	results, err := s.crawler.BatchFetch(ctx, urls)
	if err != nil {
		run.Error("store batch fetch failed", map[string]any{
			"error": err.Error(),
			"urls":  len(urls),
		})
		run.TierComplete(1, 0)
		return nil
	}

	out := make([]model.PriceResult, 0, len(results))
	for i := range results {
		res := &results[i]
		if !res.Success {
			run.FetchAttempt(res.URL, false, res.Error)
			continue
		}
		run.FetchAttempt(res.URL, true, "")

		st := storeByURL[res.URL]
		pr, ok := s.extractResult(res, model.TierConfiguredStores)
		if !ok {
			run.PriceExtraction(storeLabel(st, res.URL), false, 0)
			continue
		}
		if st != nil {
			pr.Retailer = st.Name
			pr.StoreDomain = st.Domain
		}
		run.PriceExtraction(pr.StoreDomain, true, pr.Price)
		out = append(out, pr)
	}
	run.TierComplete(1, len(out))
	return out
}

// fetchTier2 escalates to web search and fetches candidate pages one at a
// time under the configured rate limit.
func (s *PricingService) fetchTier2(ctx context.Context, query string, run *runlog.Logger) []model.PriceResult {
	hits, err := s.crawler.Search(ctx, query)
	if err != nil {
		run.Error("web search failed", map[string]any{"error": err.Error()})
		run.TierComplete(2, 0)
		return nil
	}

	urls := make([]string, 0, len(hits))
	seen := make(map[string]struct{}, len(hits))
	for _, hit := range hits {
		u := strings.TrimSpace(hit.URL)
		if u == "" {
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		urls = append(urls, u)
		if len(urls) == s.maxTier2 {
			break
		}
	}
	if len(urls) == 0 {
		run.Warning("web search returned no candidate pages", nil)
		run.TierComplete(2, 0)
		return nil
	}

	limiter := rate.NewLimiter(s.tier2Rate, 1)
	out := make([]model.PriceResult, 0, len(urls))
	for _, u := range urls {
		if err := limiter.Wait(ctx); err != nil {
			run.Warning("web search fetches interrupted", map[string]any{"error": err.Error()})
			break
		}
		res, err := s.crawler.Fetch(ctx, u)
		if err != nil {
			run.FetchAttempt(u, false, err.Error())
			continue
		}
		if !res.Success {
			run.FetchAttempt(res.URL, false, res.Error)
			continue
		}
		run.FetchAttempt(res.URL, true, "")

		pr, ok := s.extractResult(res, model.TierWebSearch)
		if !ok {
			run.PriceExtraction(storeLabel(nil, res.URL), false, 0)
			continue
		}
		run.PriceExtraction(pr.StoreDomain, true, pr.Price)
		out = append(out, pr)
	}
	run.TierComplete(2, len(out))
	return out
}

// extractResult pulls one price observation out of a successful scrape.
// Structured extraction fields win; the markdown and HTML fallbacks only
// run when no selector produced a price.
func (s *PricingService) extractResult(res *crawl.Result, tier model.ResultTier) (model.PriceResult, bool) {
	pr := model.PriceResult{
		StoreDomain: resultDomain(res.URL),
		URL:         res.URL,
		InStock:     true,
		Tier:        tier,
	}

	if v, ok := s.selectField(res.ExtractedFields, "price"); ok {
		if price, good := parsePriceValue(v); good {
			pr.Price = price
		}
	}
	if v, ok := s.selectField(res.ExtractedFields, "currency"); ok {
		if cur, good := v.(string); good && strings.TrimSpace(cur) != "" {
			pr.Currency = strings.ToUpper(strings.TrimSpace(cur))
		}
	}
	if v, ok := s.selectField(res.ExtractedFields, "in_stock"); ok {
		if inStock, known := parseAvailability(v); known {
			pr.InStock = inStock
		}
	}
	if v, ok := s.selectField(res.ExtractedFields, "rating"); ok {
		if rating, good := toFloat(v); good && rating >= 0 {
			pr.Rating = &rating
		}
	}
	if v, ok := s.selectField(res.ExtractedFields, "review_count"); ok {
		if n, good := toFloat(v); good && n >= 0 {
			count := int(n)
			pr.ReviewCount = &count
		}
	}

	if pr.Price == 0 {
		price, currency, found := priceFromText(res.Markdown)
		if !found {
			price, currency, found = priceFromHTML(res.HTML)
		}
		if !found {
			return model.PriceResult{}, false
		}
		pr.Price = price
		if pr.Currency == "" {
			pr.Currency = currency
		}
		if outOfStockRe.MatchString(res.Markdown) {
			pr.InStock = false
		}
	}

	if pr.Currency == "" {
		pr.Currency = defaultCurrency
	}
	if pr.Retailer == "" {
		pr.Retailer = storeLabel(nil, res.URL)
	}
	return pr, pr.Price > 0
}

// selectField evaluates the named JMESPath selector against a scrape's
// structured fields. Evaluation errors count as absent fields.
func (s *PricingService) selectField(fields map[string]any, name string) (any, bool) {
	expr, ok := s.selectors[name]
	if !ok || len(fields) == 0 {
		return nil, false
	}
	v, err := jmespath.Search(expr, fields)
	if err != nil || v == nil {
		return nil, false
	}
	return v, true
}

// aggregationSummary is the JSON shape the aggregation prompt asks the
// primary provider to return. Indexes refer to the ranked results array.
type aggregationSummary struct {
	LowestIndex    *int    `json:"lowest_index"`
	BestValueIndex *int    `json:"best_value_index"`
	Confidence     float64 `json:"confidence"`
	Recommendation string  `json:"recommendation"`
	WaitRationale  string  `json:"wait_rationale"`
}

// buildDiscoveryResult fans the aggregation prompt across every provider
// and lets the merged answer pick from the ranked results. Provider or
// parse failures degrade to the cheapest raw result; they never fail a run
// that holds results.
func (s *PricingService) buildDiscoveryResult(
	ctx context.Context,
	query string,
	ranked []model.PriceResult,
	run *runlog.Logger,
) *model.DiscoveryResult {
	result := &model.DiscoveryResult{Results: ranked}

	answer, answers, err := s.ai.CompleteAll(ctx, buildAggregationPrompt(query, ranked))
	run.Count(runlog.CounterProvidersQueried, len(answers))
	for _, a := range answers {
		if a.Err != nil {
			run.Count(runlog.CounterProvidersFailed, 1)
		}
	}
	if err != nil {
		s.degrade(result, run, err.Error())
		return result
	}

	summary, ok := ai.ExtractJSONObject[aggregationSummary](answer)
	if !ok {
		s.degrade(result, run, "provider answer held no JSON object")
		return result
	}

	result.Confidence = clamp01(summary.Confidence)
	result.Recommendation = strings.TrimSpace(summary.Recommendation)
	result.WaitRationale = strings.TrimSpace(summary.WaitRationale)
	result.LowestPrice = resultAt(ranked, summary.LowestIndex)
	if result.LowestPrice == nil {
		result.LowestPrice = discovery.Lowest(ranked)
	}
	result.BestValue = resultAt(ranked, summary.BestValueIndex)
	run.Success("aggregation complete", map[string]any{"confidence": result.Confidence})
	return result
}

func (s *PricingService) degrade(result *model.DiscoveryResult, run *runlog.Logger, reason string) {
	result.LowestPrice = discovery.Lowest(result.Results)
	result.Confidence = degradedConfidence
	run.Warning("aggregation degraded to cheapest result", map[string]any{"reason": reason})
}

// promptResult is the slimmed result shape embedded in the aggregation
// prompt, indexed so the provider can reference results without restating
// them.
type promptResult struct {
	Index    int     `json:"index"`
	Retailer string  `json:"retailer"`
	Domain   string  `json:"store_domain"`
	Price    float64 `json:"price"`
	Currency string  `json:"currency,omitempty"`
	InStock  bool    `json:"in_stock"`
	Tier     int     `json:"tier"`
}

func buildAggregationPrompt(query string, ranked []model.PriceResult) string {
	slim := make([]promptResult, len(ranked))
	for i, r := range ranked {
		slim[i] = promptResult{
			Index:    i,
			Retailer: r.Retailer,
			Domain:   r.StoreDomain,
			Price:    r.Price,
			Currency: r.Currency,
			InStock:  r.InStock,
			Tier:     int(r.Tier),
		}
	}
	encoded, err := json.Marshal(slim)
	if err != nil {
		encoded = []byte("[]")
	}

	var b strings.Builder
	b.WriteString("You are a shopping assistant evaluating price search results.\n")
	fmt.Fprintf(&b, "Product query: %q\n\n", query)
	b.WriteString("Ranked results, cheapest first:\n")
	b.Write(encoded)
	b.WriteString("\n\nRespond with only a JSON object of this exact shape:\n")
	b.WriteString(`{"lowest_index": <int>, "best_value_index": <int>, "confidence": <0..1>, ` +
		`"recommendation": "<one sentence>", "wait_rationale": "<only when waiting for a better price seems wise>"}`)
	b.WriteString("\nIndexes refer to the results array above. Never invent results.")
	return b.String()
}

// countPatch builds a small output patch so observable job output carries
// the running result counts.
func countPatch(key string, n int) json.RawMessage {
	raw, err := json.Marshal(map[string]int{key: n})
	if err != nil {
		return nil
	}
	return raw
}

func resultAt(results []model.PriceResult, idx *int) *model.PriceResult {
	if idx == nil || *idx < 0 || *idx >= len(results) {
		return nil
	}
	cp := results[*idx]
	return &cp
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// storeLabel names a result source for logs and retailer fallbacks: the
// configured store when known, otherwise the page's normalized domain.
func storeLabel(st *model.ResolvedStore, rawURL string) string {
	if st != nil {
		return st.Domain
	}
	if d := resultDomain(rawURL); d != "" {
		return d
	}
	return rawURL
}

func resultDomain(rawURL string) string {
	d, err := model.NormalizeDomain(rawURL)
	if err != nil {
		return ""
	}
	return d
}

func parsePriceValue(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, plausiblePrice(val)
	case int:
		return float64(val), plausiblePrice(float64(val))
	case json.Number:
		f, err := val.Float64()
		return f, err == nil && plausiblePrice(f)
	case string:
		return priceFromString(val)
	default:
		return 0, false
	}
}

func priceFromString(raw string) (float64, bool) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimLeft(cleaned, "$€£ ")
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	if f, err := strconv.ParseFloat(cleaned, 64); err == nil {
		return f, plausiblePrice(f)
	}
	if price, _, ok := priceFromText(raw); ok {
		return price, true
	}
	return 0, false
}

// priceFromText finds the first currency-prefixed amount in free text.
func priceFromText(text string) (float64, string, bool) {
	m := priceRe.FindStringSubmatch(text)
	if m == nil {
		return 0, "", false
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(m[2], ",", ""), 64)
	if err != nil || !plausiblePrice(f) {
		return 0, "", false
	}
	return f, currencyForSymbol(m[1]), true
}

// priceFromHTML walks the document's text nodes, skipping script and style
// subtrees, and returns the first plausible amount.
func priceFromHTML(src string) (float64, string, bool) {
	if strings.TrimSpace(src) == "" {
		return 0, "", false
	}
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return 0, "", false
	}

	var (
		price    float64
		currency string
		found    bool
	)
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if found {
			return
		}
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			if p, cur, ok := priceFromText(n.Data); ok {
				price, currency, found = p, cur, true
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return price, currency, found
}

func plausiblePrice(v float64) bool {
	return v > 0 && v < maxPlausiblePrice
}

func currencyForSymbol(sym string) string {
	switch sym {
	case "€":
		return "EUR"
	case "£":
		return "GBP"
	default:
		return defaultCurrency
	}
}

// parseAvailability maps structured availability values, including
// schema.org item availability URLs, onto an in-stock flag. The second
// return reports whether the value was recognized at all.
func parseAvailability(v any) (bool, bool) {
	switch val := v.(type) {
	case bool:
		return val, true
	case string:
		folded := strings.ToLower(strings.NewReplacer(" ", "", "_", "", "-", "").Replace(val))
		switch {
		case strings.Contains(folded, "outofstock"),
			strings.Contains(folded, "soldout"),
			strings.Contains(folded, "discontinued"):
			return false, true
		case strings.Contains(folded, "instock"),
			strings.Contains(folded, "limitedavailability"),
			folded == "true", folded == "yes", folded == "available":
			return true, true
		}
	}
	return false, false
}

func toFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case int:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
