package config

import (
	"strings"
	"time"
)

// AIProviderConfig describes one OpenAI-compatible chat completion endpoint.
// A provider is considered configured when BaseURL is non-empty.
type AIProviderConfig struct {
	// Name identifies the provider in logs and run output.
	Name string `env:"NAME"`

	// BaseURL is the API root, e.g. "https://api.openai.com/v1".
	BaseURL string `env:"BASE_URL"`

	// APIKey is sent as a bearer token. Ignored when TokenURL is set.
	APIKey string `env:"API_KEY"`

	// Model is the chat completion model for text prompts.
	Model string `env:"MODEL" envDefault:"gpt-4o-mini"`

	// VisionModel is the model for image analysis. Defaults to Model.
	VisionModel string `env:"VISION_MODEL"`

	// Timeout bounds a single completion call.
	Timeout time.Duration `env:"TIMEOUT" envDefault:"60s"`

	// TokenURL enables OAuth2 client-credentials auth for deployments where
	// the provider sits behind an enterprise API gateway. When set, ClientID
	// and ClientSecret are exchanged for bearer tokens instead of APIKey.
	TokenURL     string   `env:"TOKEN_URL"`
	ClientID     string   `env:"CLIENT_ID"`
	ClientSecret string   `env:"CLIENT_SECRET"`
	Scopes       []string `env:"SCOPES" envSeparator:","`
}

// IsConfigured reports whether this provider block has an endpoint.
func (p *AIProviderConfig) IsConfigured() bool {
	return strings.TrimSpace(p.BaseURL) != ""
}

func (p *AIProviderConfig) sanitize(defaultName string) {
	p.Name = strings.TrimSpace(p.Name)
	p.BaseURL = strings.TrimRight(strings.TrimSpace(p.BaseURL), "/")
	if p.Name == "" {
		p.Name = defaultName
	}
	if p.VisionModel == "" {
		p.VisionModel = p.Model
	}
	if p.Timeout <= 0 {
		p.Timeout = 60 * time.Second
	}
}

// AIConfig groups AI provider configuration. Up to three providers may be
// configured; the primary answers single-provider calls, and all configured
// providers participate in multi-provider aggregation. env cannot express a
// variable-length list of structs, so the blocks are fixed.
type AIConfig struct {
	Primary   AIProviderConfig `envPrefix:"AI_PRIMARY_"`
	Secondary AIProviderConfig `envPrefix:"AI_SECONDARY_"`
	Tertiary  AIProviderConfig `envPrefix:"AI_TERTIARY_"`
}

// Sanitize normalizes provider blocks and promotes a configured block into
// the primary slot if the primary is empty.
func (c *AIConfig) Sanitize() {
	c.Primary.sanitize("primary")
	c.Secondary.sanitize("secondary")
	c.Tertiary.sanitize("tertiary")

	if !c.Primary.IsConfigured() {
		switch {
		case c.Secondary.IsConfigured():
			c.Primary, c.Secondary = c.Secondary, AIProviderConfig{}
		case c.Tertiary.IsConfigured():
			c.Primary, c.Tertiary = c.Tertiary, AIProviderConfig{}
		}
	}
}

// Configured returns the configured provider blocks, primary first.
func (c *AIConfig) Configured() []AIProviderConfig {
	out := make([]AIProviderConfig, 0, 3)
	for _, p := range []AIProviderConfig{c.Primary, c.Secondary, c.Tertiary} {
		if p.IsConfigured() {
			out = append(out, p)
		}
	}
	return out
}

// CrawlConfig contains crawl sidecar configuration. The sidecar wraps a
// headless browser and exposes scrape, batch, and search endpoints.
type CrawlConfig struct {
	// BaseURL is the sidecar address.
	BaseURL string `env:"CRAWL_BASE_URL" envDefault:"http://127.0.0.1:5000"`

	// PageTimeout is the per-page browser timeout forwarded to the sidecar.
	PageTimeout time.Duration `env:"CRAWL_PAGE_TIMEOUT" envDefault:"30s"`

	// RequestTimeout bounds a whole sidecar HTTP call. Batch calls scale
	// this by the number of URLs up to BatchTimeoutCap.
	RequestTimeout time.Duration `env:"CRAWL_REQUEST_TIMEOUT" envDefault:"45s"`

	// BatchTimeoutCap is the upper bound for batch call timeouts.
	BatchTimeoutCap time.Duration `env:"CRAWL_BATCH_TIMEOUT_CAP" envDefault:"3m"`

	// SearchMaxResults is the default result count requested from /search.
	SearchMaxResults int `env:"CRAWL_SEARCH_MAX_RESULTS" envDefault:"10"`
}

// Sanitize applies guardrails to crawl configuration values.
func (c *CrawlConfig) Sanitize() {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if c.PageTimeout <= 0 {
		c.PageTimeout = 30 * time.Second
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 45 * time.Second
	}
	if c.BatchTimeoutCap < c.RequestTimeout {
		c.BatchTimeoutCap = c.RequestTimeout
	}
	if c.SearchMaxResults < 1 {
		c.SearchMaxResults = 10
	}
}

// DiscoveryConfig tunes the tiered price discovery engine.
type DiscoveryConfig struct {
	// MinResults is the usable tier-1 result count below which the engine
	// escalates to tier-2 web search.
	MinResults int `env:"DISCOVERY_MIN_RESULTS" envDefault:"3"`

	// MaxTier2URLs caps how many tier-2 candidate pages are fetched per run.
	MaxTier2URLs int `env:"DISCOVERY_MAX_TIER2_URLS" envDefault:"10"`

	// Tier2RatePerSecond limits tier-2 page fetch rate against the sidecar.
	Tier2RatePerSecond float64 `env:"DISCOVERY_TIER2_RATE" envDefault:"2"`

	// ExtractionSelectors maps provider extraction field names to JMESPath
	// expressions evaluated against the structured fields a scrape returns.
	// Defaults cover the common shapes; deployments override per retailer
	// ecosystem. Format: "field=expr" pairs.
	ExtractionSelectors map[string]string `env:"DISCOVERY_EXTRACTION_SELECTORS" envSeparator:";" envKeyValSeparator:"="`
}

// Sanitize applies guardrails to discovery configuration values.
func (d *DiscoveryConfig) Sanitize() {
	if d.MinResults < 1 {
		d.MinResults = 1
	}
	if d.MaxTier2URLs < 1 {
		d.MaxTier2URLs = 1
	}
	if d.Tier2RatePerSecond <= 0 {
		d.Tier2RatePerSecond = 2
	}
	if len(d.ExtractionSelectors) == 0 {
		d.ExtractionSelectors = map[string]string{
			"price":    "price || offers.price || product.price",
			"currency": "currency || offers.priceCurrency",
			"title":    "title || product.name",
			"in_stock": "in_stock || offers.availability",
		}
	}
}

// ImageStoreConfig controls storage of analyzed product images.
type ImageStoreConfig struct {
	// Dir is the filesystem root for stored images.
	Dir string `env:"IMAGE_STORE_DIR" envDefault:"data/images"`

	// MaxBytes rejects uploads larger than this (decoded size).
	MaxBytes int64 `env:"IMAGE_STORE_MAX_BYTES" envDefault:"10485760"` // 10 MiB
}
