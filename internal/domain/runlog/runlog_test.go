package runlog

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_LevelsAndCounts(t *testing.T) {
	l := New("price-search")

	l.Info("starting run", nil)
	l.Success("tier 1 hit", map[string]any{"store": "bestbuy.com"})
	l.Warning("slow response", nil)
	l.Error("provider timeout", map[string]any{"provider": "primary"})
	l.Debug("raw payload", nil)

	assert.True(t, l.HasErrors())
	assert.Equal(t, 1, l.ErrorCount())
	assert.Equal(t, 1, l.WarningCount())

	entries := l.Entries()
	require.Len(t, entries, 5)
	assert.Equal(t, LevelInfo, entries[0].Level)
	assert.Equal(t, LevelError, entries[3].Level)
	assert.Equal(t, "provider timeout", entries[3].Message)
}

func TestLogger_FetchAttempt(t *testing.T) {
	l := New("price-search")

	l.FetchAttempt("https://bestbuy.com/search", true, "")
	l.FetchAttempt("https://walmart.com/search", false, "timeout")
	l.FetchAttempt("https://target.com/search", true, "")

	assert.Equal(t, 3, l.Counter(CounterURLsAttempted))
	assert.Equal(t, 2, l.Counter(CounterURLsSucceeded))
	assert.Equal(t, 1, l.Counter(CounterURLsFailed))
	assert.False(t, l.HasErrors(), "fetch failures are warnings, not run errors")
	assert.Equal(t, 1, l.WarningCount())
}

func TestLogger_PriceExtractionAndTiers(t *testing.T) {
	l := New("price-search")

	l.PriceExtraction("bestbuy.com", true, 199.99)
	l.PriceExtraction("walmart.com", false, 0)
	l.TierComplete(1, 2)
	l.TierComplete(2, 3)

	assert.Equal(t, 1, l.Counter(CounterPricesFound))
	assert.Equal(t, 2, l.Counter(CounterTier1Results))
	assert.Equal(t, 3, l.Counter(CounterTier2Results))
}

func TestLogger_StatsDuration(t *testing.T) {
	l := New("discovery")

	base := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	current := base
	l.now = func() time.Time { return current }
	l.started = base

	current = base.Add(1500 * time.Millisecond)
	stats := l.Stats()

	assert.Equal(t, int64(1500), stats.DurationMS)
	assert.Equal(t, base, stats.StartedAt)

	// Duration is recomputed each read.
	current = base.Add(3 * time.Second)
	assert.Equal(t, int64(3000), l.Stats().DurationMS)
}

func TestLogger_MarshalJSON(t *testing.T) {
	l := New("nearby-store-discovery")
	l.Info("searching", map[string]any{"postal_code": "97210"})
	l.Count(CounterProvidersQueried, 2)

	raw, err := json.Marshal(l)
	require.NoError(t, err)

	var decoded struct {
		Scope   string  `json:"scope"`
		Entries []Entry `json:"entries"`
		Stats   Stats   `json:"stats"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "nearby-store-discovery", decoded.Scope)
	require.Len(t, decoded.Entries, 1)
	assert.Equal(t, 2, decoded.Stats.Counters[CounterProvidersQueried])
	assert.Equal(t, 1, decoded.Stats.EntryCount)
}

func TestLogger_ConcurrentAppends(t *testing.T) {
	l := New("price-search")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.FetchAttempt("https://example.com", true, "")
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, l.Counter(CounterURLsAttempted))
	assert.Len(t, l.Entries(), 20)
}
