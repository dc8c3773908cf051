package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/danavision/discovery-go/internal/core"
	"github.com/danavision/discovery-go/internal/data"
	"github.com/danavision/discovery-go/internal/domain/model"
	apperrors "github.com/danavision/discovery-go/internal/errors"
)

// StoreServiceOptions groups dependencies for StoreService.
type StoreServiceOptions struct {
	Repo   core.StoreRepository // Required: store repository
	Logger *slog.Logger         // Optional: structured logger
}

// StoreService manages the retailer catalog and per-user preferences, and
// resolves the effective store ordering discovery runs query against.
type StoreService struct {
	repo   core.StoreRepository
	logger *slog.Logger
}

// NewStoreService constructs a new StoreService.
func NewStoreService(opts StoreServiceOptions) (*StoreService, error) {
	if opts.Repo == nil {
		return nil, errors.New("StoreRepository is required")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "store_service")
	}

	return &StoreService{
		repo:   opts.Repo,
		logger: logger,
	}, nil
}

// MustNewStoreService constructs a new StoreService and panics on error.
func MustNewStoreService(opts StoreServiceOptions) *StoreService {
	svc, err := NewStoreService(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create StoreService: %v", err))
	}
	return svc
}

// ResolveForUser returns the user's effective store list in discovery query
// order: favorites first, then effective priority descending, then stable
// insertion order. Stores the user disabled are excluded.
func (s *StoreService) ResolveForUser(ctx context.Context, userID string) ([]*model.ResolvedStore, error) {
	stores, err := s.repo.ResolveForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("resolve stores for user: %w", err)
	}
	return stores, nil
}

// AddByDomain adds a store to the user's rotation by domain. When a store
// with the normalized domain already exists the user just gets an enabled,
// favorited preference for it; no duplicate store row is ever created.
func (s *StoreService) AddByDomain(
	ctx context.Context,
	userID string,
	req *model.CreateStoreRequest,
) (*model.Store, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, apperrors.Validation("user is required")
	}
	if req == nil {
		return nil, apperrors.Validation("request body is required")
	}
	if err := req.Validate(); err != nil {
		return nil, apperrors.ValidationField("domain", err.Error())
	}

	store, err := s.repo.GetByDomain(ctx, req.Domain)
	switch {
	case err == nil:
		// Existing store: only the preference changes.
	case errors.Is(err, data.ErrStoreNotFound):
		store, err = s.repo.Create(ctx, req)
		if err != nil {
			if errors.Is(err, data.ErrStoreDomainExists) {
				// Raced with a concurrent add; use the winner's row.
				store, err = s.repo.GetByDomain(ctx, req.Domain)
			}
			if err != nil {
				return nil, fmt.Errorf("create store %s: %w", req.Domain, err)
			}
		}
		if s.logger != nil {
			s.logger.InfoContext(ctx, "store created",
				"id", store.ID,
				"domain", store.Domain,
			)
		}
	default:
		return nil, fmt.Errorf("look up store %s: %w", req.Domain, err)
	}

	enabled := true
	favorite := true
	_, err = s.repo.SetPreference(ctx, core.SetStorePreferenceParams{
		UserID:  userID,
		StoreID: store.ID,
		Req: &model.UpdateStorePreferenceRequest{
			Enabled:  &enabled,
			Favorite: &favorite,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("set preference for store %s: %w", store.ID, err)
	}

	return store, nil
}

// SetPreference updates one user's preference for a store. Missing stores
// surface as not-found.
func (s *StoreService) SetPreference(
	ctx context.Context,
	userID, storeID string,
	req *model.UpdateStorePreferenceRequest,
) (*model.StorePreference, error) {
	if req == nil {
		return nil, apperrors.Validation("request body is required")
	}
	if err := req.Validate(); err != nil {
		return nil, apperrors.Validation(err.Error())
	}

	pref, err := s.repo.SetPreference(ctx, core.SetStorePreferenceParams{
		UserID:  userID,
		StoreID: storeID,
		Req:     req,
	})
	if err != nil {
		if errors.Is(err, data.ErrStoreNotFound) {
			return nil, apperrors.NotFoundf("store %s not found", storeID)
		}
		return nil, fmt.Errorf("set preference for store %s: %w", storeID, err)
	}
	return pref, nil
}

// GetPreferences returns all of the user's explicit store preferences.
func (s *StoreService) GetPreferences(ctx context.Context, userID string) ([]*model.StorePreference, error) {
	prefs, err := s.repo.GetPreferences(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get store preferences: %w", err)
	}
	return prefs, nil
}

// GetByID returns one store.
func (s *StoreService) GetByID(ctx context.Context, id string) (*model.Store, error) {
	store, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, data.ErrStoreNotFound) {
			return nil, apperrors.NotFoundf("store %s not found", id)
		}
		return nil, fmt.Errorf("get store %s: %w", id, err)
	}
	return store, nil
}

// List returns stores matching the given filters.
func (s *StoreService) List(ctx context.Context, opts model.StoreListOptions) ([]*model.Store, error) {
	stores, err := s.repo.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("list stores: %w", err)
	}
	return stores, nil
}

// Delete removes a non-default store. Default stores ship with the system
// and deleting them is forbidden.
func (s *StoreService) Delete(ctx context.Context, id string) error {
	store, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if store.IsDefault {
		return apperrors.Forbidden("default stores cannot be deleted")
	}

	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("delete store %s: %w", id, err)
	}
	if !deleted {
		return apperrors.NotFoundf("store %s not found", id)
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "store deleted", "id", id, "domain", store.Domain)
	}
	return nil
}

// UpsertLocal records an auto-configured local store found by a
// nearby-store-discovery run.
func (s *StoreService) UpsertLocal(ctx context.Context, params core.UpsertLocalStoreParams) (*model.Store, error) {
	store, err := s.repo.UpsertLocal(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("upsert local store %s: %w", params.Domain, err)
	}
	return store, nil
}
