package appointment

import (
	"context"
	"errors"
	"fmt"

	"github.com/wellnest-app/wellnest/services/appointment-service/internal/model"
)

var (
	ErrNotFound          = errors.New("appointment not found")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Filter narrows appointment listings. Zero values match everything.
type Filter struct {
	UserID       string
	SpecialistID string
	Status       model.Status
}

// Store is the persistence port. Satisfied by storage.AppointmentRepository
// and by in-memory fakes in tests. Implementations return ErrNotFound when no
// record matches an id.
type Store interface {
	List(ctx context.Context, f Filter) ([]model.Appointment, error)
	Get(ctx context.Context, id string) (model.Appointment, error)
	GetDetail(ctx context.Context, id string) (model.Detail, error)
	Create(ctx context.Context, appt *model.Appointment) (string, error)
	Update(ctx context.Context, id string, patch model.Patch) (model.Appointment, error)
	Delete(ctx context.Context, id string) error
}

type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

func (s *Service) GetAll(ctx context.Context, f Filter) ([]model.Appointment, error) {
	return s.store.List(ctx, f)
}

func (s *Service) GetByID(ctx context.Context, id string) (model.Appointment, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) GetDetail(ctx context.Context, id string) (model.Detail, error) {
	return s.store.GetDetail(ctx, id)
}

func (s *Service) Create(ctx context.Context, appt *model.Appointment) (string, error) {
	// Bookings always start pending; the status belongs to the lifecycle,
	// not to the booking request.
	appt.Status = model.StatusPending
	return s.store.Create(ctx, appt)
}

// Update applies an allow-listed patch after checking the lifecycle guards:
// the status may only move along a legal transition, and the scheduled date is
// frozen once the appointment has left pending. Everything else is delegation;
// concurrent updates are last-write-wins.
func (s *Service) Update(ctx context.Context, id string, patch model.Patch) (model.Appointment, error) {
	current, err := s.store.Get(ctx, id)
	if err != nil {
		return model.Appointment{}, err
	}

	if patch.Status != nil && !model.CanTransition(current.Status, *patch.Status) {
		return model.Appointment{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, *patch.Status)
	}
	if patch.AppointmentDate != nil && current.Status != model.StatusPending {
		return model.Appointment{}, fmt.Errorf("%w: date is frozen once status leaves pending", ErrInvalidTransition)
	}

	return s.store.Update(ctx, id, patch)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	return s.store.Delete(ctx, id)
}
