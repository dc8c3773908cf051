// Package core provides the business logic and service layer for the danavision job system.
package core

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/danavision/discovery-go/internal/domain/model"
)

// CacheRepository defines the interface for caching operations.
// This follows the hexagonal architecture pattern where the core defines interfaces
// and the data layer provides implementations.
type CacheRepository interface {
	// Set stores a value in the cache with the given key and TTL.
	// If TTL is 0, the key will not expire.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Get retrieves a value from the cache by key.
	// Returns nil if the key doesn't exist or has expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes a key from the cache.
	// Returns true if the key was deleted, false if it didn't exist.
	Delete(ctx context.Context, key string) (bool, error)

	// Exists checks if a key exists in the cache.
	Exists(ctx context.Context, key string) (bool, error)

	// SetTTL updates the TTL for an existing key.
	// Returns true if the key exists and TTL was updated.
	SetTTL(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// SetIfNotExists atomically sets a key only if it doesn't already exist.
	// Returns true if the key was set, false if it already existed.
	// This is useful for implementing distributed locks and deduplication.
	SetIfNotExists(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Health checks the health of the cache connection.
	Health(ctx context.Context) error
}

// CachedPrices is one cached price discovery outcome for an owner's
// normalized query plus options. The full discovery result is cached so a
// hit serves exactly what the producing run returned, aggregation included.
type CachedPrices struct {
	Query     string                 `json:"query"`
	Options   model.SearchOptions    `json:"options"`
	Discovery *model.DiscoveryResult `json:"discovery"`
	CachedAt  time.Time              `json:"cached_at"`
}

// CachedLocalStores is one cached nearby-store discovery outcome for an
// owner's (postal code, store type) area.
type CachedLocalStores struct {
	PostalCode   string                  `json:"postal_code"`
	StoreType    string                  `json:"store_type"`
	Stores       []model.DiscoveredStore `json:"stores"`
	DiscoveredAt time.Time               `json:"discovered_at"`
}

// PriceCacheConfig holds configuration for price result caching.
type PriceCacheConfig struct {
	TTL time.Duration `json:"ttl"`
}

// DefaultPriceCacheConfig returns a PriceCacheConfig with sensible defaults.
func DefaultPriceCacheConfig() PriceCacheConfig {
	return PriceCacheConfig{
		TTL: 15 * time.Minute,
	}
}

// PriceCacheServiceOptions bundles dependencies for NewPriceCacheService.
type PriceCacheServiceOptions struct {
	Cache  CacheRepository
	Config PriceCacheConfig
}

// PriceCacheService caches price discovery results per owner and normalized
// query. Prices move fast, so entries live minutes, not hours.
type PriceCacheService struct {
	cache CacheRepository
	ttl   time.Duration
}

// NewPriceCacheService creates a new PriceCacheService.
func NewPriceCacheService(opts PriceCacheServiceOptions) *PriceCacheService {
	ttl := opts.Config.TTL
	if ttl <= 0 {
		ttl = DefaultPriceCacheConfig().TTL
	}
	return &PriceCacheService{
		cache: opts.Cache,
		ttl:   ttl,
	}
}

// Get returns the cached outcome for (ownerID, query, options), or nil on a
// miss. Corrupt entries count as misses.
func (s *PriceCacheService) Get(
	ctx context.Context,
	ownerID string,
	query string,
	options model.SearchOptions,
) (*CachedPrices, error) {
	raw, err := s.cache.Get(ctx, s.key(ownerID, query, options))
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}
	var entry CachedPrices
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, nil
	}
	return &entry, nil
}

// Put stores a price discovery outcome under the owner's normalized query
// key. A zero CachedAt is stamped with the current time.
func (s *PriceCacheService) Put(ctx context.Context, ownerID string, entry *CachedPrices) error {
	if entry == nil {
		return nil
	}
	if entry.CachedAt.IsZero() {
		entry.CachedAt = time.Now().UTC()
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return s.cache.Set(ctx, s.key(ownerID, entry.Query, entry.Options), raw, s.ttl)
}

// Invalidate drops the cached outcome for (ownerID, query, options).
func (s *PriceCacheService) Invalidate(
	ctx context.Context,
	ownerID string,
	query string,
	options model.SearchOptions,
) error {
	_, err := s.cache.Delete(ctx, s.key(ownerID, query, options))
	return err
}

// key derives the cache key. The query is case-folded and trimmed before
// hashing so trivially different spellings of the same search collide.
func (s *PriceCacheService) key(ownerID, query string, options model.SearchOptions) string {
	normalized := strings.ToLower(strings.TrimSpace(query))
	sum := sha256.Sum256([]byte(normalized + "\n" + options.Canonical()))
	return "price:v1:" + ownerID + ":" + hex.EncodeToString(sum[:])
}

// LocalStoreCacheConfig holds configuration for local store caching.
type LocalStoreCacheConfig struct {
	TTL time.Duration `json:"ttl"`
	// StaleAfter is the age past which a cached entry is still served but
	// flagged stale, prompting a background refresh.
	StaleAfter time.Duration `json:"stale_after"`
}

// DefaultLocalStoreCacheConfig returns a LocalStoreCacheConfig with sensible defaults.
func DefaultLocalStoreCacheConfig() LocalStoreCacheConfig {
	return LocalStoreCacheConfig{
		TTL:        24 * time.Hour,
		StaleAfter: 7 * 24 * time.Hour,
	}
}

// LocalStoreCacheServiceOptions bundles dependencies for NewLocalStoreCacheService.
type LocalStoreCacheServiceOptions struct {
	Cache  CacheRepository
	Config LocalStoreCacheConfig
}

// LocalStoreCacheService caches nearby-store discovery outcomes per owner
// and area. Store footprints change slowly, so entries live about a day.
type LocalStoreCacheService struct {
	cache      CacheRepository
	ttl        time.Duration
	staleAfter time.Duration
}

// NewLocalStoreCacheService creates a new LocalStoreCacheService.
func NewLocalStoreCacheService(opts LocalStoreCacheServiceOptions) *LocalStoreCacheService {
	cfg := opts.Config
	defaults := DefaultLocalStoreCacheConfig()
	if cfg.TTL <= 0 {
		cfg.TTL = defaults.TTL
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = defaults.StaleAfter
	}
	return &LocalStoreCacheService{
		cache:      opts.Cache,
		ttl:        cfg.TTL,
		staleAfter: cfg.StaleAfter,
	}
}

// Get returns the cached stores for (ownerID, postalCode, storeType), or nil
// on a miss. Corrupt entries count as misses.
func (s *LocalStoreCacheService) Get(
	ctx context.Context,
	ownerID string,
	postalCode string,
	storeType string,
) (*CachedLocalStores, error) {
	raw, err := s.cache.Get(ctx, s.key(ownerID, postalCode, storeType))
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}
	var entry CachedLocalStores
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, nil
	}
	return &entry, nil
}

// Put stores a nearby-store discovery outcome. A zero DiscoveredAt is
// stamped with the current time.
func (s *LocalStoreCacheService) Put(ctx context.Context, ownerID string, entry *CachedLocalStores) error {
	if entry == nil {
		return nil
	}
	if entry.DiscoveredAt.IsZero() {
		entry.DiscoveredAt = time.Now().UTC()
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return s.cache.Set(ctx, s.key(ownerID, entry.PostalCode, entry.StoreType), raw, s.ttl)
}

// Stale reports whether a cached entry is old enough to warrant a refresh.
func (s *LocalStoreCacheService) Stale(entry *CachedLocalStores, now time.Time) bool {
	if entry == nil {
		return true
	}
	return now.Sub(entry.DiscoveredAt) > s.staleAfter
}

// key derives the cache key. Postal codes are case-folded with inner
// whitespace removed so "M5V 3L9" and "m5v3l9" hit the same entry.
func (s *LocalStoreCacheService) key(ownerID, postalCode, storeType string) string {
	st := strings.ToLower(strings.TrimSpace(storeType))
	return "localstores:v1:" + ownerID + ":" + model.NormalizePostalCode(postalCode) + ":" + st
}
