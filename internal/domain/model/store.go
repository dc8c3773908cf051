//revive:disable-next-line:var-naming // legacy package name widely used across the project
package model

import (
	"errors"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	maxStoreNameLen = 255

	// QueryPlaceholder is the token substituted with the escaped search
	// query when building a retailer search URL from a template.
	QueryPlaceholder = "{query}"

	// DefaultStoreCategory is applied when a store is created without one.
	DefaultStoreCategory = "general"
)

// Store represents a retailer the discovery engine can query.
// Default stores ship with the system and cannot be deleted; local stores
// are auto-configured by nearby-store-discovery runs.
type Store struct {
	ID              string     `json:"id"                     db:"id"`
	Name            string     `json:"name"                   db:"name"`
	Domain          string     `json:"domain"                 db:"domain"`
	URLTemplate     *string    `json:"url_template,omitempty" db:"url_template"`
	Category        string     `json:"category"               db:"category"`
	DefaultPriority int        `json:"default_priority"       db:"default_priority"`
	IsDefault       bool       `json:"is_default"             db:"is_default"`
	IsActive        bool       `json:"is_active"              db:"is_active"`
	IsLocal         bool       `json:"is_local"               db:"is_local"`
	AutoConfigured  bool       `json:"auto_configured"        db:"auto_configured"`
	Latitude        *float64   `json:"latitude,omitempty"     db:"latitude"`
	Longitude       *float64   `json:"longitude,omitempty"    db:"longitude"`
	CreatedAt       time.Time  `json:"created_at"             db:"created_at"`
	UpdatedAt       *time.Time `json:"updated_at,omitempty"   db:"updated_at"`
}

// SearchURL builds the store's search URL for a query, or "" when the store
// has no template. The query is URL-escaped before substitution.
func (s *Store) SearchURL(query string) string {
	if s.URLTemplate == nil || *s.URLTemplate == "" {
		return ""
	}
	return strings.ReplaceAll(*s.URLTemplate, QueryPlaceholder, url.QueryEscape(query))
}

// StorePreference captures one user's per-store settings. A missing row
// means the store is enabled with default priority.
type StorePreference struct {
	ID               string    `json:"id"                          db:"id"`
	UserID           string    `json:"user_id"                     db:"user_id"`
	StoreID          string    `json:"store_id"                    db:"store_id"`
	Enabled          bool      `json:"enabled"                     db:"enabled"`
	Favorite         bool      `json:"favorite"                    db:"favorite"`
	PriorityOverride *int      `json:"priority_override,omitempty" db:"priority_override"`
	Position         int       `json:"position"                    db:"position"`
	CreatedAt        time.Time `json:"created_at"                  db:"created_at"`
}

// ResolvedStore is a store merged with one user's preference, in the order
// discovery will query it.
type ResolvedStore struct {
	Store
	Favorite          bool `json:"favorite"           db:"favorite"`
	EffectivePriority int  `json:"effective_priority" db:"effective_priority"`
	Position          int  `json:"position"           db:"position"`
}

// CreateStoreRequest represents parameters to add a store by domain.
type CreateStoreRequest struct {
	Domain      string  `json:"domain"`
	Name        string  `json:"name,omitempty"`
	URLTemplate *string `json:"url_template,omitempty"`
	Category    string  `json:"category,omitempty"`
}

// Validate validates CreateStoreRequest. Domain is normalized in place.
func (r *CreateStoreRequest) Validate() error {
	domain, err := NormalizeDomain(r.Domain)
	if err != nil {
		return err
	}
	r.Domain = domain
	r.Name = strings.TrimSpace(r.Name)
	if utf8.RuneCountInString(r.Name) > maxStoreNameLen {
		return errors.New("name cannot exceed 255 characters")
	}
	if r.URLTemplate != nil {
		tpl := strings.TrimSpace(*r.URLTemplate)
		if tpl != "" && !strings.Contains(tpl, QueryPlaceholder) {
			return errors.New("url_template must contain the {query} placeholder")
		}
		r.URLTemplate = &tpl
	}
	r.Category = strings.ToLower(strings.TrimSpace(r.Category))
	if r.Category == "" {
		r.Category = DefaultStoreCategory
	}
	return nil
}

// StoreListOptions groups filters for listing stores.
type StoreListOptions struct {
	ActiveOnly bool    // Only stores with is_active = true
	LocalOnly  bool    // Only auto-configured local stores
	Category   *string // Optional category filter
	Limit      int     // Pagination limit (0 means repository default)
	Offset     int     // Pagination offset
}

// UpdateStorePreferenceRequest represents parameters to update one user's
// preference for a store. Nil fields are left unchanged.
type UpdateStorePreferenceRequest struct {
	Enabled          *bool `json:"enabled,omitempty"`
	Favorite         *bool `json:"favorite,omitempty"`
	PriorityOverride *int  `json:"priority_override,omitempty"`
}

// HasUpdates reports whether any field is set in UpdateStorePreferenceRequest.
func (r *UpdateStorePreferenceRequest) HasUpdates() bool {
	return r.Enabled != nil || r.Favorite != nil || r.PriorityOverride != nil
}

// Validate validates UpdateStorePreferenceRequest.
func (r *UpdateStorePreferenceRequest) Validate() error {
	if !r.HasUpdates() {
		return errors.New("at least one field must be updated")
	}
	if r.PriorityOverride != nil && (*r.PriorityOverride < -100 || *r.PriorityOverride > 100) {
		return errors.New("priority_override must be between -100 and 100")
	}
	return nil
}

// NormalizeDomain reduces a raw domain or URL to its canonical comparison
// form: lowercase host without scheme, "www." prefix, port, path, or
// trailing dot. Result dedup and store identity both key on this form.
func NormalizeDomain(raw string) (string, error) {
	v := strings.ToLower(strings.TrimSpace(raw))
	if v == "" {
		return "", errors.New("domain is required")
	}
	if strings.Contains(v, "://") {
		u, err := url.Parse(v)
		if err != nil || u.Host == "" {
			return "", errors.New("invalid domain")
		}
		v = u.Host
	} else {
		// Bare "example.com/path" inputs still carry paths.
		if i := strings.IndexAny(v, "/?#"); i >= 0 {
			v = v[:i]
		}
	}
	if i := strings.LastIndex(v, ":"); i >= 0 && !strings.Contains(v, "]") {
		v = v[:i]
	}
	v = strings.TrimPrefix(v, "www.")
	v = strings.TrimSuffix(v, ".")
	if v == "" || !strings.Contains(v, ".") {
		return "", errors.New("invalid domain")
	}
	return v, nil
}
