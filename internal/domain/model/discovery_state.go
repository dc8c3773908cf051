//revive:disable-next-line:var-naming // legacy package name widely used across the project
package model

import (
	"strings"
	"time"
)

// LocalDiscoveryState records when local stores were last discovered for one
// (owner, postal code, store type) area. The scheduler scans it to re-enqueue
// refresh jobs once the data goes stale. Staleness is independent of the
// Redis cache TTL: expired cache entries recompute lazily, stale state rows
// refresh proactively.
type LocalDiscoveryState struct {
	ID           string    `json:"id"            db:"id"`
	OwnerID      string    `json:"owner_id"      db:"owner_id"`
	PostalCode   string    `json:"postal_code"   db:"postal_code"`
	StoreType    string    `json:"store_type"    db:"store_type"`
	StoreCount   int       `json:"store_count"   db:"store_count"`
	DiscoveredAt time.Time `json:"discovered_at" db:"discovered_at"`
	CreatedAt    time.Time `json:"created_at"    db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"    db:"updated_at"`
}

// Stale reports whether the discovery data is older than maxAge at now.
func (s *LocalDiscoveryState) Stale(now time.Time, maxAge time.Duration) bool {
	return now.Sub(s.DiscoveredAt) > maxAge
}

// NormalizePostalCode case-folds a postal code and strips inner whitespace so
// "M5V 3L9" and "m5v3l9" key the same area.
func NormalizePostalCode(raw string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(raw), " ", ""))
}
