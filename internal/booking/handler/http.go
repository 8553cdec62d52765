package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	bookingdomain "github.com/example/fieldserve/internal/booking/domain"
	"github.com/example/fieldserve/internal/booking/service"
	"github.com/example/fieldserve/internal/dispatch/domain"
	"github.com/example/fieldserve/internal/tracking"
)

// HTTP exposes booking and tracking endpoints.
type HTTP struct {
	svc        *service.Service
	tracker    *tracking.Tracker
	workers    WorkerRegistry
	workerAuth func(http.Handler) http.Handler
	logger     *zap.Logger
}

// NewHTTP constructs a handler. workerAuth guards worker-originated
// endpoints and may be nil in local setups.
func NewHTTP(svc *service.Service, tracker *tracking.Tracker, workerAuth func(http.Handler) http.Handler, logger *zap.Logger) *HTTP {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTP{svc: svc, tracker: tracker, workerAuth: workerAuth, logger: logger}
}

// Router builds the chi router with all endpoints and middlewares.
func (h *HTTP) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Post("/v1/bookings", h.createBooking)
	r.Get("/v1/bookings/{id}", h.getBooking)
	r.Post("/v1/bookings/{id}/complete", h.completeBooking)
	r.Post("/v1/bookings/{id}/cancel", h.cancelBooking)
	r.Get("/v1/sessions/{id}/snapshot", h.getSnapshot)
	r.Get("/v1/sessions/{id}/stream", h.streamSession)
	r.Group(func(r chi.Router) {
		if h.workerAuth != nil {
			r.Use(h.workerAuth)
		}
		r.Post("/v1/sessions/{id}/location", h.reportLocation)
		r.Post("/v1/workers", h.upsertWorker)
	})
	r.Get("/v1/workers/{id}", h.getWorker)
	return r
}

type createBookingRequest struct {
	CustomerName string           `json:"customer_name"`
	Phone        string           `json:"phone"`
	Email        string           `json:"email"`
	Address      string           `json:"address"`
	Category     string           `json:"category"`
	Description  string           `json:"description"`
	Urgent       bool             `json:"urgent"`
	Location     *domain.GeoPoint `json:"location"`
}

func (h *HTTP) createBooking(w http.ResponseWriter, r *http.Request) {
	var payload createBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if payload.Category == "" || payload.Phone == "" {
		http.Error(w, "category and phone are required", http.StatusBadRequest)
		return
	}
	if payload.Location != nil && !payload.Location.Valid() {
		http.Error(w, "invalid coordinates", http.StatusBadRequest)
		return
	}

	resp, err := h.svc.CreateBooking(r.Context(), service.CreateBookingRequest{
		CustomerName: payload.CustomerName,
		Phone:        payload.Phone,
		Email:        payload.Email,
		Address:      payload.Address,
		Category:     payload.Category,
		Description:  payload.Description,
		Urgent:       payload.Urgent,
		Location:     payload.Location,
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *HTTP) getBooking(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	booking, err := h.svc.GetBooking(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (h *HTTP) completeBooking(w http.ResponseWriter, r *http.Request) {
	h.finishBooking(w, r, h.svc.CompleteBooking)
}

func (h *HTTP) cancelBooking(w http.ResponseWriter, r *http.Request) {
	h.finishBooking(w, r, h.svc.CancelBooking)
}

func (h *HTTP) finishBooking(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id uuid.UUID) (bookingdomain.Booking, error)) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	booking, err := fn(r.Context(), id)
	switch {
	case errors.Is(err, bookingdomain.ErrBookingNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrSessionTerminal):
		http.Error(w, err.Error(), http.StatusConflict)
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	default:
		writeJSON(w, http.StatusOK, booking)
	}
}

type locationReport struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Timestamp time.Time `json:"timestamp"`
}

func (h *HTTP) reportLocation(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	var payload locationReport
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if payload.Timestamp.IsZero() {
		payload.Timestamp = time.Now().UTC()
	}

	err = h.tracker.ReportLocation(r.Context(), id, payload.Latitude, payload.Longitude, payload.Timestamp)
	switch {
	case errors.Is(err, domain.ErrInvalidCoordinate):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrSessionNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrSessionTerminal):
		http.Error(w, err.Error(), http.StatusConflict)
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	default:
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func (h *HTTP) getSnapshot(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	snap, err := h.tracker.Snapshot(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
