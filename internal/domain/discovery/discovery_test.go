package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danavision/discovery-go/internal/domain/model"
)

func result(domain string, price float64, tier model.ResultTier) model.PriceResult {
	return model.PriceResult{
		Retailer:    domain,
		StoreDomain: domain,
		Price:       price,
		Currency:    "USD",
		URL:         "https://" + domain + "/p/1",
		Tier:        tier,
	}
}

func TestMerge_Tier1WinsDomainCollision(t *testing.T) {
	tier1 := []model.PriceResult{result("bestbuy.com", 249.99, model.TierConfiguredStores)}
	tier2 := []model.PriceResult{
		// Same retailer surfaced by web search, cheaper but untrusted tier.
		result("www.bestbuy.com", 229.99, model.TierWebSearch),
		result("ebay.com", 199.99, model.TierWebSearch),
	}

	merged := Merge(tier1, tier2)

	require.Len(t, merged, 2)
	var bestbuy *model.PriceResult
	for i := range merged {
		if merged[i].StoreDomain == "bestbuy.com" {
			bestbuy = &merged[i]
		}
	}
	require.NotNil(t, bestbuy)
	assert.Equal(t, model.TierConfiguredStores, bestbuy.Tier)
	assert.Equal(t, 249.99, bestbuy.Price)
}

func TestMerge_SameTierKeepsCheaper(t *testing.T) {
	tier2 := []model.PriceResult{
		result("ebay.com", 59.99, model.TierWebSearch),
		result("ebay.com", 44.99, model.TierWebSearch),
		result("ebay.com", 61.00, model.TierWebSearch),
	}

	merged := Merge(nil, tier2)

	require.Len(t, merged, 1)
	assert.Equal(t, 44.99, merged[0].Price)
}

func TestMerge_KeysOnDomainAndPath(t *testing.T) {
	disc := result("bestbuy.com", 249.99, model.TierConfiguredStores)
	disc.URL = "https://bestbuy.com/site/ps5-disc.p"
	digital := result("bestbuy.com", 219.99, model.TierWebSearch)
	digital.URL = "https://www.bestbuy.com/site/ps5-digital.p"

	merged := Merge([]model.PriceResult{disc}, []model.PriceResult{digital})

	// Distinct product pages on one store are distinct observations.
	require.Len(t, merged, 2)
}

func TestMerge_RootPathCollapsesToDomain(t *testing.T) {
	bare := result("ebay.com", 59.99, model.TierWebSearch)
	bare.URL = "https://ebay.com"
	slash := result("ebay.com", 44.99, model.TierWebSearch)
	slash.URL = "https://www.ebay.com/"

	merged := Merge(nil, []model.PriceResult{bare, slash})

	require.Len(t, merged, 1)
	assert.Equal(t, 44.99, merged[0].Price)
}

func TestRank_AscendingPrice(t *testing.T) {
	results := []model.PriceResult{
		result("a.com", 29.99, model.TierConfiguredStores),
		result("b.com", 99.99, model.TierConfiguredStores),
		result("c.com", 19.99, model.TierWebSearch),
		result("d.com", 49.99, model.TierConfiguredStores),
	}

	ranked := Rank(results, nil)

	prices := make([]float64, len(ranked))
	for i, r := range ranked {
		prices[i] = r.Price
	}
	assert.Equal(t, []float64{19.99, 29.99, 49.99, 99.99}, prices)
}

func TestRank_PriceTieBreaksOnStoreOrder(t *testing.T) {
	stores := []model.ResolvedStore{
		{Store: model.Store{Domain: "target.com"}},
		{Store: model.Store{Domain: "walmart.com"}},
	}
	rank := BuildStoreRank(stores)

	results := []model.PriceResult{
		result("walmart.com", 24.99, model.TierConfiguredStores),
		result("target.com", 24.99, model.TierConfiguredStores),
		result("unknown.com", 24.99, model.TierWebSearch),
	}

	ranked := Rank(results, rank)

	require.Len(t, ranked, 3)
	assert.Equal(t, "target.com", ranked[0].StoreDomain)
	assert.Equal(t, "walmart.com", ranked[1].StoreDomain)
	assert.Equal(t, "unknown.com", ranked[2].StoreDomain)
}

func TestFilterUsable(t *testing.T) {
	inStock := result("a.com", 10, model.TierConfiguredStores)
	inStock.InStock = true
	outOfStock := result("b.com", 8, model.TierConfiguredStores)
	noPrice := result("c.com", 0, model.TierConfiguredStores)
	tooExpensive := result("d.com", 120, model.TierConfiguredStores)
	tooExpensive.InStock = true
	used := result("e.com", 9, model.TierConfiguredStores)
	used.InStock = true
	used.Condition = model.ConditionUsed

	opts := model.SearchOptions{InStockOnly: true, MaxPrice: 100, Condition: model.ConditionNew}
	got := FilterUsable([]model.PriceResult{inStock, outOfStock, noPrice, tooExpensive, used}, opts)

	require.Len(t, got, 1)
	assert.Equal(t, "a.com", got[0].StoreDomain)
}

func TestLowest(t *testing.T) {
	assert.Nil(t, Lowest(nil))
	assert.Nil(t, Lowest([]model.PriceResult{result("a.com", 0, model.TierWebSearch)}))

	results := []model.PriceResult{
		result("a.com", 29.99, model.TierConfiguredStores),
		result("b.com", 19.99, model.TierWebSearch),
	}
	low := Lowest(results)
	require.NotNil(t, low)
	assert.Equal(t, 19.99, low.Price)

	// Returned pick is a copy, not an alias into the slice.
	low.Price = 1
	assert.Equal(t, 19.99, results[1].Price)
}
