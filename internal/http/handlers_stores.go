package httpx

import (
	"errors"
	"net/http"

	"github.com/danavision/discovery-go/internal/domain/model"
	apperrors "github.com/danavision/discovery-go/internal/errors"
	"github.com/danavision/discovery-go/internal/service"
)

// StoreHandlers provides HTTP handlers for the store rotation: the ordered,
// per-user set of retail sites the discovery engine queries.
type StoreHandlers struct {
	Svc *service.StoreService
}

// List handles HTTP requests for the caller's resolved store rotation.
// Stores come back merged with the caller's preferences and ordered by
// effective priority.
func (h *StoreHandlers) List(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}

	stores, err := h.Svc.ResolveForUser(r.Context(), owner)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"stores": stores})
}

// Add handles HTTP requests to add a store to the caller's rotation by
// domain. Adding a domain that already exists enables and favorites the
// existing store instead of creating a duplicate.
func (h *StoreHandlers) Add(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}

	var req model.CreateStoreRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	store, err := h.Svc.AddByDomain(r.Context(), owner, &req)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, store)
}

// SetPreference handles HTTP requests to update the caller's preference for
// one store: enabled, favorite, and priority override.
func (h *StoreHandlers) SetPreference(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}
	id, ok := requireStoreID(w, r)
	if !ok {
		return
	}

	var req model.UpdateStorePreferenceRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	pref, err := h.Svc.SetPreference(r.Context(), owner, id, &req)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, pref)
}

// Delete handles HTTP requests to remove a store. Default rotation stores
// cannot be deleted, only disabled through a preference.
func (h *StoreHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireOwner(w, r); !ok {
		return
	}
	id, ok := requireStoreID(w, r)
	if !ok {
		return
	}

	if err := h.Svc.Delete(r.Context(), id); err != nil {
		WriteServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func requireStoreID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.PathValue("id")
	if id == "" {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: string(apperrors.ErrCodeValidation),
			Err:     errors.New("store id is required"),
		})
		return "", false
	}
	return id, true
}
