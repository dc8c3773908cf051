// Package discovery holds the pure merge and ranking rules for tiered price
// discovery. Everything here is side-effect free so the ordering guarantees
// can be tested without providers or stores.
package discovery

import (
	"net/url"
	"sort"
	"strings"

	"github.com/danavision/discovery-go/internal/domain/model"
)

// unrankedStore sorts results from stores outside the user's resolver order
// after every configured store on price ties.
const unrankedStore = 1 << 20

// StoreRank maps a normalized store domain to its position in the user's
// resolved store order (0 = highest priority).
type StoreRank map[string]int

// BuildStoreRank derives a StoreRank from resolver output.
func BuildStoreRank(stores []model.ResolvedStore) StoreRank {
	rank := make(StoreRank, len(stores))
	for i, s := range stores {
		if _, seen := rank[s.Domain]; !seen {
			rank[s.Domain] = i
		}
	}
	return rank
}

func (r StoreRank) position(domain string) int {
	if r == nil {
		return unrankedStore
	}
	if pos, ok := r[domain]; ok {
		return pos
	}
	return unrankedStore
}

// Merge combines tier-1 and tier-2 results, deduplicating by normalized
// store domain plus URL path when the result links a specific page, so
// distinct product pages on one store survive the merge. Tier-1 results
// always win collisions with tier-2; within a tier the cheaper observation
// wins. Results without a usable domain are kept as-is.
func Merge(tier1, tier2 []model.PriceResult) []model.PriceResult {
	out := make([]model.PriceResult, 0, len(tier1)+len(tier2))
	byKey := make(map[string]int)

	add := func(r model.PriceResult, tier1Wins bool) {
		key := mergeKey(r)
		if key == "" {
			out = append(out, r)
			return
		}
		idx, seen := byKey[key]
		if !seen {
			byKey[key] = len(out)
			out = append(out, r)
			return
		}
		existing := out[idx]
		if existing.Tier == model.TierConfiguredStores && r.Tier == model.TierWebSearch {
			return
		}
		if tier1Wins && r.Tier == model.TierConfiguredStores && existing.Tier == model.TierWebSearch {
			out[idx] = r
			return
		}
		// Same tier: keep the cheaper observation.
		if r.Price > 0 && (existing.Price <= 0 || r.Price < existing.Price) {
			out[idx] = r
		}
	}

	for _, r := range tier1 {
		add(r, true)
	}
	for _, r := range tier2 {
		add(r, true)
	}
	return out
}

// Rank orders results by ascending price; price ties break toward the
// store earlier in the user's resolver order, then toward tier 1, keeping
// input order beyond that.
func Rank(results []model.PriceResult, rank StoreRank) []model.PriceResult {
	out := make([]model.PriceResult, len(results))
	copy(out, results)

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Price != out[j].Price {
			return out[i].Price < out[j].Price
		}
		pi, pj := rank.position(out[i].StoreDomain), rank.position(out[j].StoreDomain)
		if pi != pj {
			return pi < pj
		}
		return out[i].Tier < out[j].Tier
	})
	return out
}

// FilterUsable drops results that cannot be ranked or that violate the
// search options.
func FilterUsable(results []model.PriceResult, opts model.SearchOptions) []model.PriceResult {
	out := make([]model.PriceResult, 0, len(results))
	for _, r := range results {
		if !r.Usable() {
			continue
		}
		if opts.InStockOnly && !r.InStock {
			continue
		}
		if opts.Condition != "" && r.Condition != "" && r.Condition != opts.Condition {
			continue
		}
		if opts.MaxPrice > 0 && r.Price > opts.MaxPrice {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Lowest returns the cheapest usable result, or nil when none qualify.
func Lowest(results []model.PriceResult) *model.PriceResult {
	var best *model.PriceResult
	for i := range results {
		if !results[i].Usable() {
			continue
		}
		if best == nil || results[i].Price < best.Price {
			best = &results[i]
		}
	}
	if best == nil {
		return nil
	}
	cp := *best
	return &cp
}

// mergeKey is the dedup identity of a result: its normalized domain, plus
// the URL path when the URL points at a specific page rather than a root.
func mergeKey(r model.PriceResult) string {
	domain := normalizeResultDomain(r)
	if domain == "" {
		return ""
	}
	if p := urlPath(r.URL); p != "" {
		return domain + p
	}
	return domain
}

// urlPath extracts a comparison path from a result URL. Root and empty
// paths collapse to "" so bare-domain observations still key on domain
// alone.
func urlPath(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	p := strings.TrimRight(u.Path, "/")
	if p == "" {
		return ""
	}
	return p
}

func normalizeResultDomain(r model.PriceResult) string {
	if r.StoreDomain != "" {
		if d, err := model.NormalizeDomain(r.StoreDomain); err == nil {
			return d
		}
		return r.StoreDomain
	}
	if r.URL != "" {
		if d, err := model.NormalizeDomain(r.URL); err == nil {
			return d
		}
	}
	return ""
}
