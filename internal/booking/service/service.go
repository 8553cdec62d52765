package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/fieldserve/internal/booking/domain"
	"github.com/example/fieldserve/internal/dispatch"
	dispatchdomain "github.com/example/fieldserve/internal/dispatch/domain"
	"github.com/example/fieldserve/internal/tracking"
)

// WorkerLookup resolves a claimed worker's full snapshot after dispatch.
type WorkerLookup interface {
	Get(id uuid.UUID) (dispatchdomain.Worker, bool)
}

// Service coordinates booking intake: persist the booking, dispatch the
// nearest worker, start the tracking session and fire notifications.
type Service struct {
	repo       domain.Repository
	dispatcher *dispatch.Dispatcher
	tracker    *tracking.Tracker
	workers    WorkerLookup
	notifier   dispatchdomain.Notifier
	clock      dispatchdomain.Clock
	logger     *zap.Logger
	defaultLoc dispatchdomain.GeoPoint
}

// New constructs a Service with the required collaborators.
func New(repo domain.Repository, dispatcher *dispatch.Dispatcher, tracker *tracking.Tracker, workers WorkerLookup, notifier dispatchdomain.Notifier, clock dispatchdomain.Clock, logger *zap.Logger, defaultLoc dispatchdomain.GeoPoint) *Service {
	if clock == nil {
		clock = dispatchdomain.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:       repo,
		dispatcher: dispatcher,
		tracker:    tracker,
		workers:    workers,
		notifier:   notifier,
		clock:      clock,
		logger:     logger,
		defaultLoc: defaultLoc,
	}
}

// CreateBookingRequest is the intake payload.
type CreateBookingRequest struct {
	CustomerName string
	Phone        string
	Email        string
	Address      string
	Category     string
	Description  string
	Urgent       bool
	Location     *dispatchdomain.GeoPoint
}

// WorkerSummary is the customer-facing view of the assigned worker.
type WorkerSummary struct {
	ID     uuid.UUID `json:"id"`
	Name   string    `json:"name"`
	Phone  string    `json:"phone"`
	Rating float64   `json:"rating"`
}

// CreateBookingResponse reports the booking id, its status and the assigned
// worker when dispatch succeeded.
type CreateBookingResponse struct {
	BookingID uuid.UUID            `json:"booking_id"`
	Status    domain.BookingStatus `json:"status"`
	Worker    *WorkerSummary       `json:"worker,omitempty"`
}

// CreateBooking stores the booking and attempts dispatch. A dispatch that
// finds no candidate is a valid business outcome: the booking stays
// confirmed and the caller may retry with a new request later.
func (s *Service) CreateBooking(ctx context.Context, req CreateBookingRequest) (CreateBookingResponse, error) {
	booking := domain.Booking{
		ID:           uuid.New(),
		CustomerName: req.CustomerName,
		Phone:        req.Phone,
		Email:        req.Email,
		Address:      req.Address,
		Category:     req.Category,
		Description:  req.Description,
		Urgent:       req.Urgent,
		Location:     req.Location,
		Status:       domain.StatusConfirmed,
		CreatedAt:    s.clock.Now(),
		Version:      1,
	}

	created, err := s.repo.Create(ctx, booking)
	if err != nil {
		return CreateBookingResponse{}, fmt.Errorf("create booking: %w", err)
	}

	result, err := s.dispatcher.Assign(ctx, dispatchdomain.DispatchRequest{
		ID:       created.ID,
		Category: created.Category,
		Location: created.Location,
		Urgent:   created.Urgent,
	})
	if errors.Is(err, dispatchdomain.ErrNoCandidate) {
		s.logger.Info("no worker available", zap.String("booking_id", created.ID.String()), zap.String("category", created.Category))
		return CreateBookingResponse{BookingID: created.ID, Status: created.Status}, nil
	}
	if err != nil {
		return CreateBookingResponse{}, fmt.Errorf("dispatch booking: %w", err)
	}

	worker, ok := s.workers.Get(result.WorkerID)
	if !ok {
		return CreateBookingResponse{}, fmt.Errorf("claimed worker %s missing from directory", result.WorkerID)
	}

	created.WorkerID = &result.WorkerID
	created.Status = domain.StatusWorkerAssigned
	if created, err = s.repo.Update(ctx, created); err != nil {
		return CreateBookingResponse{}, fmt.Errorf("assign worker: %w", err)
	}

	requester := s.defaultLoc
	if created.Location != nil {
		requester = *created.Location
	}
	if _, err := s.tracker.Start(ctx, result, worker.Location, requester); err != nil {
		return CreateBookingResponse{}, fmt.Errorf("start tracking: %w", err)
	}

	s.notify(ctx, created.Phone, fmt.Sprintf("Booking confirmed! %s is on the way. Track it at /v1/sessions/%s/stream", worker.Name, created.ID))
	if created.Urgent {
		s.notify(ctx, worker.Phone, fmt.Sprintf("URGENT booking %s: %s at %s, customer %s", created.ID, created.Category, created.Address, created.Phone))
	}

	return CreateBookingResponse{
		BookingID: created.ID,
		Status:    created.Status,
		Worker:    &WorkerSummary{ID: worker.ID, Name: worker.Name, Phone: worker.Phone, Rating: worker.Rating},
	}, nil
}

// GetBooking retrieves a booking by identifier.
func (s *Service) GetBooking(ctx context.Context, id uuid.UUID) (domain.Booking, error) {
	return s.repo.GetByID(ctx, id)
}

// CompleteBooking marks the job finished and closes the tracking session.
func (s *Service) CompleteBooking(ctx context.Context, id uuid.UUID) (domain.Booking, error) {
	booking, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return domain.Booking{}, err
	}
	if _, err := s.tracker.Complete(ctx, id); err != nil && !errors.Is(err, dispatchdomain.ErrSessionNotFound) {
		return domain.Booking{}, err
	}

	now := s.clock.Now()
	booking.Status = domain.StatusCompleted
	booking.CompletedAt = &now
	updated, err := s.repo.Update(ctx, booking)
	if err != nil {
		return domain.Booking{}, err
	}
	s.notify(ctx, updated.Phone, fmt.Sprintf("Your booking %s is complete. Thanks for choosing us!", updated.ID))
	return updated, nil
}

// CancelBooking cancels the booking and its tracking session.
func (s *Service) CancelBooking(ctx context.Context, id uuid.UUID) (domain.Booking, error) {
	booking, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return domain.Booking{}, err
	}
	if _, err := s.tracker.Cancel(ctx, id); err != nil && !errors.Is(err, dispatchdomain.ErrSessionNotFound) {
		return domain.Booking{}, err
	}

	booking.Status = domain.StatusCancelled
	updated, err := s.repo.Update(ctx, booking)
	if err != nil {
		return domain.Booking{}, err
	}
	s.notify(ctx, updated.Phone, fmt.Sprintf("Your booking %s was cancelled.", updated.ID))
	return updated, nil
}

func (s *Service) notify(ctx context.Context, target, message string) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, target, message)
}
