// This file is a documentation template and is not compiled. It uses
// placeholder types (WatchlistService, core.WatchlistRepository) that do not
// exist. Copy the shapes below when adding a service.
//
//go:build ignore

package service

// TEMPLATE.go — service layer conventions
//
// Every service in this package follows the same shape. The concrete
// references are JobService (job lifecycle), StoreService (store rotation)
// and PricingService (the discovery pipeline); when in doubt, read those.
//
// RULES:
//  1. Dependencies arrive through an Options struct, one per service.
//  2. Options structs stay at ≤3 fields; more than that means a nested
//     Config struct (see PricingServiceOptions → PricingConfig).
//  3. Services depend on core port interfaces, never on internal/data,
//     internal/http or internal/adapters concrete types.
//  4. Required dependencies are validated in the constructor and panic when
//     nil; optional ones are nil-checked at use.
//  5. Every method takes context.Context first.
//  6. Errors wrap with fmt.Errorf("operation: %w", err); user-facing
//     conditions use the internal/errors taxonomy (Forbidden, InvalidState,
//     Validation, ...).
//  7. Owner scoping is enforced here, not in repos: load, compare owner,
//     return errors.Forbidden on mismatch.

import (
	"context"
	"fmt"
	"log/slog"

	apperrors "github.com/danavision/discovery-go/internal/errors"

	"github.com/danavision/discovery-go/internal/core"
	"github.com/danavision/discovery-go/internal/domain/model"
)

// WatchlistServiceOptions groups dependencies for WatchlistService.
type WatchlistServiceOptions struct {
	Repo   core.WatchlistRepository // required
	Logger *slog.Logger             // optional; nil disables service logging
	Cache  watchlistCache           // optional
}

// watchlistCache is the minimal cache behavior the service needs. Optional
// dependencies get their own small interface so tests can fake them without
// pulling in the full core.CacheRepository surface.
type watchlistCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// WatchlistService owns business logic for one domain area. Fields are
// private; construction goes through NewWatchlistService.
type WatchlistService struct {
	repo   core.WatchlistRepository
	logger *slog.Logger
	cache  watchlistCache
}

// NewWatchlistService constructs the service, panicking on missing required
// dependencies. Wiring errors are programmer errors and should fail at boot,
// not at first request.
func NewWatchlistService(opts WatchlistServiceOptions) *WatchlistService {
	if opts.Repo == nil {
		panic("WatchlistService: Repo is required")
	}
	return &WatchlistService{
		repo:   opts.Repo,
		logger: opts.Logger,
		cache:  opts.Cache,
	}
}

// Get loads one record, enforcing owner visibility. The not-found and
// foreign-owner cases deliberately produce different codes: 404 for rows
// that do not exist, 403 for rows the caller cannot see.
func (s *WatchlistService) Get(ctx context.Context, ownerID, id string) (*model.Watchlist, error) {
	w, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get watchlist: %w", err)
	}
	if w.OwnerID != ownerID {
		return nil, apperrors.Forbidden("watchlist belongs to another user")
	}
	return w, nil
}

// Create validates input before touching the repo. Validation failures carry
// the offending field so the HTTP layer can render a 400 with context.
func (s *WatchlistService) Create(ctx context.Context, ownerID string, req *model.CreateWatchlistRequest) (*model.Watchlist, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	w, err := s.repo.Create(ctx, ownerID, req)
	if err != nil {
		return nil, fmt.Errorf("create watchlist: %w", err)
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, "watchlist created", "watchlist_id", w.ID, "owner_id", ownerID)
	}
	return w, nil
}
