package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/danavision/discovery-go/internal/core"
	"github.com/danavision/discovery-go/internal/data"
	"github.com/danavision/discovery-go/internal/domain/model"
	apperrors "github.com/danavision/discovery-go/internal/errors"
	"github.com/danavision/discovery-go/internal/mocks"
)

func newTestStoreService(t *testing.T, repo *mocks.MockStoreRepository) *StoreService {
	t.Helper()
	return MustNewStoreService(StoreServiceOptions{Repo: repo})
}

func TestNewStoreService(t *testing.T) {
	t.Run("missing repo", func(t *testing.T) {
		svc, err := NewStoreService(StoreServiceOptions{})
		require.Error(t, err)
		assert.Nil(t, svc)
	})
}

func TestStoreService_AddByDomain_NewStore(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := mocks.NewMockStoreRepository(ctrl)
	svc := newTestStoreService(t, repo)

	created := &model.Store{ID: "store-1", Name: "example.com", Domain: "example.com"}

	repo.EXPECT().GetByDomain(gomock.Any(), "example.com").Return(nil, data.ErrStoreNotFound)
	repo.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, req *model.CreateStoreRequest) (*model.Store, error) {
			assert.Equal(t, "example.com", req.Domain)
			assert.Equal(t, model.DefaultStoreCategory, req.Category)
			return created, nil
		},
	)
	repo.EXPECT().SetPreference(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, params core.SetStorePreferenceParams) (*model.StorePreference, error) {
			assert.Equal(t, "user-1", params.UserID)
			assert.Equal(t, "store-1", params.StoreID)
			require.NotNil(t, params.Req.Enabled)
			require.NotNil(t, params.Req.Favorite)
			assert.True(t, *params.Req.Enabled)
			assert.True(t, *params.Req.Favorite)
			return &model.StorePreference{StoreID: "store-1", UserID: "user-1"}, nil
		},
	)

	store, err := svc.AddByDomain(context.Background(), "user-1", &model.CreateStoreRequest{
		Domain: "https://www.example.com/shop",
	})
	require.NoError(t, err)
	assert.Equal(t, created, store)
}

func TestStoreService_AddByDomain_ExistingStore(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := mocks.NewMockStoreRepository(ctrl)
	svc := newTestStoreService(t, repo)

	existing := &model.Store{ID: "store-7", Domain: "example.com"}
	repo.EXPECT().GetByDomain(gomock.Any(), "example.com").Return(existing, nil)
	repo.EXPECT().SetPreference(gomock.Any(), gomock.Any()).Return(&model.StorePreference{}, nil)

	store, err := svc.AddByDomain(context.Background(), "user-1", &model.CreateStoreRequest{
		Domain: "example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, existing, store)
}

func TestStoreService_AddByDomain_CreateRace(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := mocks.NewMockStoreRepository(ctrl)
	svc := newTestStoreService(t, repo)

	winner := &model.Store{ID: "store-9", Domain: "example.com"}
	repo.EXPECT().GetByDomain(gomock.Any(), "example.com").Return(nil, data.ErrStoreNotFound)
	repo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil, data.ErrStoreDomainExists)
	repo.EXPECT().GetByDomain(gomock.Any(), "example.com").Return(winner, nil)
	repo.EXPECT().SetPreference(gomock.Any(), gomock.Any()).Return(&model.StorePreference{}, nil)

	store, err := svc.AddByDomain(context.Background(), "user-1", &model.CreateStoreRequest{
		Domain: "example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, winner, store)
}

func TestStoreService_AddByDomain_Validation(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := mocks.NewMockStoreRepository(ctrl)
	svc := newTestStoreService(t, repo)

	t.Run("missing user", func(t *testing.T) {
		_, err := svc.AddByDomain(context.Background(), "", &model.CreateStoreRequest{Domain: "example.com"})
		require.Error(t, err)
		assert.True(t, apperrors.IsValidation(err))
	})

	t.Run("bad domain", func(t *testing.T) {
		_, err := svc.AddByDomain(context.Background(), "user-1", &model.CreateStoreRequest{Domain: "not a domain"})
		require.Error(t, err)
		assert.True(t, apperrors.IsValidation(err))
	})
}

func TestStoreService_SetPreference(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := mocks.NewMockStoreRepository(ctrl)
	svc := newTestStoreService(t, repo)

	t.Run("success", func(t *testing.T) {
		enabled := false
		req := &model.UpdateStorePreferenceRequest{Enabled: &enabled}
		pref := &model.StorePreference{StoreID: "store-1", UserID: "user-1", Enabled: false}

		repo.EXPECT().SetPreference(gomock.Any(), core.SetStorePreferenceParams{
			UserID:  "user-1",
			StoreID: "store-1",
			Req:     req,
		}).Return(pref, nil)

		got, err := svc.SetPreference(context.Background(), "user-1", "store-1", req)
		require.NoError(t, err)
		assert.Equal(t, pref, got)
	})

	t.Run("no fields", func(t *testing.T) {
		_, err := svc.SetPreference(context.Background(), "user-1", "store-1", &model.UpdateStorePreferenceRequest{})
		require.Error(t, err)
		assert.True(t, apperrors.IsValidation(err))
	})

	t.Run("unknown store", func(t *testing.T) {
		enabled := true
		repo.EXPECT().SetPreference(gomock.Any(), gomock.Any()).Return(nil, data.ErrStoreNotFound)

		_, err := svc.SetPreference(context.Background(), "user-1", "nope",
			&model.UpdateStorePreferenceRequest{Enabled: &enabled})
		require.Error(t, err)
		assert.True(t, apperrors.IsNotFound(err))
	})
}

func TestStoreService_Delete(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := mocks.NewMockStoreRepository(ctrl)
	svc := newTestStoreService(t, repo)

	t.Run("default store forbidden", func(t *testing.T) {
		repo.EXPECT().GetByID(gomock.Any(), "store-1").Return(&model.Store{
			ID:        "store-1",
			IsDefault: true,
		}, nil)

		err := svc.Delete(context.Background(), "store-1")
		require.Error(t, err)
		assert.True(t, apperrors.IsForbidden(err))
	})

	t.Run("custom store deletes", func(t *testing.T) {
		repo.EXPECT().GetByID(gomock.Any(), "store-2").Return(&model.Store{ID: "store-2"}, nil)
		repo.EXPECT().Delete(gomock.Any(), "store-2").Return(true, nil)

		require.NoError(t, svc.Delete(context.Background(), "store-2"))
	})

	t.Run("missing store", func(t *testing.T) {
		repo.EXPECT().GetByID(gomock.Any(), "nope").Return(nil, data.ErrStoreNotFound)

		err := svc.Delete(context.Background(), "nope")
		require.Error(t, err)
		assert.True(t, apperrors.IsNotFound(err))
	})
}

func TestStoreService_ResolveForUser(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := mocks.NewMockStoreRepository(ctrl)
	svc := newTestStoreService(t, repo)

	resolved := []*model.ResolvedStore{
		{Store: model.Store{ID: "store-1", Domain: "fav.example"}, Favorite: true, EffectivePriority: 10},
		{Store: model.Store{ID: "store-2", Domain: "other.example"}, EffectivePriority: 50},
	}
	repo.EXPECT().ResolveForUser(gomock.Any(), "user-1").Return(resolved, nil)

	got, err := svc.ResolveForUser(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, resolved, got)
}
