//revive:disable-next-line:var-naming // legacy package name widely used across the project
package model

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrNoResults is returned when a discovery run finds no usable price in
// any tier. Runs that end here fail rather than report an empty result.
var ErrNoResults = errors.New("no usable price results")

// ProductCondition describes the condition of an offered product.
type ProductCondition string

const (
	ConditionNew         ProductCondition = "new"
	ConditionUsed        ProductCondition = "used"
	ConditionRefurbished ProductCondition = "refurbished"
)

// Valid reports whether the condition is supported. The empty string is
// valid as "any" in search options but not on a result.
func (c ProductCondition) Valid() bool {
	switch c {
	case ConditionNew, ConditionUsed, ConditionRefurbished:
		return true
	default:
		return false
	}
}

// ResultTier identifies which discovery tier produced a price result.
type ResultTier int

const (
	// TierConfiguredStores marks results from direct configured-store fetches.
	TierConfiguredStores ResultTier = 1
	// TierWebSearch marks results from web-search escalation.
	TierWebSearch ResultTier = 2
)

// PriceResult is one price observation for a product at one retailer.
// Results are transient: only the ranked best-of-run subset survives in the
// job output.
type PriceResult struct {
	Retailer    string           `json:"retailer"`
	StoreDomain string           `json:"store_domain"`
	Price       float64          `json:"price"`
	Currency    string           `json:"currency"`
	URL         string           `json:"url"`
	InStock     bool             `json:"in_stock"`
	Shipping    string           `json:"shipping,omitempty"`
	Condition   ProductCondition `json:"condition"`
	Rating      *float64         `json:"rating,omitempty"`
	ReviewCount *int             `json:"review_count,omitempty"`
	Tier        ResultTier       `json:"tier"`
}

// Usable reports whether the result carries enough signal to rank: a
// positive price and a source URL.
func (p *PriceResult) Usable() bool {
	return p.Price > 0 && p.URL != ""
}

// DiscoveryResult is the merged, ranked outcome of one price discovery run,
// plus the aggregation layer's picks. Single use; never persisted outside
// the producing job's output.
type DiscoveryResult struct {
	Results        []PriceResult `json:"results"`
	LowestPrice    *PriceResult  `json:"lowest_price,omitempty"`
	BestValue      *PriceResult  `json:"best_value,omitempty"`
	Confidence     float64       `json:"confidence"`
	Recommendation string        `json:"recommendation,omitempty"`
	WaitRationale  string        `json:"wait_rationale,omitempty"`
}

// SearchOptions tune a price discovery run.
type SearchOptions struct {
	MaxResults  int              `json:"max_results,omitempty"`
	Condition   ProductCondition `json:"condition,omitempty"`
	InStockOnly bool             `json:"in_stock_only,omitempty"`
	MaxPrice    float64          `json:"max_price,omitempty"`
	Currency    string           `json:"currency,omitempty"`
}

// Canonical returns a deterministic encoding of the options for cache key
// derivation. Zero-value fields are omitted so semantically equal option
// sets collide.
func (o SearchOptions) Canonical() string {
	parts := make([]string, 0, 5)
	if o.MaxResults > 0 {
		parts = append(parts, fmt.Sprintf("max=%d", o.MaxResults))
	}
	if o.Condition != "" {
		parts = append(parts, "cond="+string(o.Condition))
	}
	if o.InStockOnly {
		parts = append(parts, "instock=1")
	}
	if o.MaxPrice > 0 {
		parts = append(parts, fmt.Sprintf("maxprice=%.2f", o.MaxPrice))
	}
	if o.Currency != "" {
		parts = append(parts, "cur="+strings.ToUpper(o.Currency))
	}
	sort.Strings(parts)
	return strings.Join(parts, "&")
}

// Validate validates SearchOptions.
func (o *SearchOptions) Validate() error {
	if o.MaxResults < 0 {
		return fmt.Errorf("max_results must be >= 0")
	}
	if o.Condition != "" && !o.Condition.Valid() {
		return fmt.Errorf("invalid condition: %q", o.Condition)
	}
	if o.MaxPrice < 0 {
		return fmt.Errorf("max_price must be >= 0")
	}
	return nil
}
