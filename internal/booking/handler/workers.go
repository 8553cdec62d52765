package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/example/fieldserve/internal/dispatch/domain"
)

// WorkerRegistry is the directory write surface used by worker onboarding.
type WorkerRegistry interface {
	Upsert(w domain.Worker)
	Get(id uuid.UUID) (domain.Worker, bool)
}

// WithWorkerRegistry enables the worker onboarding endpoints.
func (h *HTTP) WithWorkerRegistry(registry WorkerRegistry) *HTTP {
	h.workers = registry
	return h
}

type upsertWorkerRequest struct {
	ID        *uuid.UUID      `json:"id"`
	Name      string          `json:"name"`
	Phone     string          `json:"phone"`
	Category  string          `json:"category"`
	Location  domain.GeoPoint `json:"location"`
	Rating    float64         `json:"rating"`
	Available bool            `json:"available"`
}

func (h *HTTP) upsertWorker(w http.ResponseWriter, r *http.Request) {
	if h.workers == nil {
		http.Error(w, "worker registry disabled", http.StatusNotImplemented)
		return
	}
	var payload upsertWorkerRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if payload.Category == "" || !payload.Location.Valid() {
		http.Error(w, "category and valid location are required", http.StatusBadRequest)
		return
	}
	id := uuid.New()
	if payload.ID != nil {
		id = *payload.ID
	}
	worker := domain.Worker{
		ID:        id,
		Name:      payload.Name,
		Phone:     payload.Phone,
		Category:  payload.Category,
		Location:  payload.Location,
		Rating:    payload.Rating,
		Available: payload.Available,
	}
	h.workers.Upsert(worker)
	writeJSON(w, http.StatusOK, worker)
}

func (h *HTTP) getWorker(w http.ResponseWriter, r *http.Request) {
	if h.workers == nil {
		http.Error(w, "worker registry disabled", http.StatusNotImplemented)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	worker, ok := h.workers.Get(id)
	if !ok {
		http.Error(w, "worker not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, worker)
}
