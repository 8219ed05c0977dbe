package service

import (
	"context"

	"bistro/internal/model"

	"github.com/google/uuid"
)

// ReservationService defines table reservation operations.
type ReservationService interface {
	// CheckAvailability reports how many tables of the size a party needs are
	// still free at one seating time.
	CheckAvailability(ctx context.Context, date, hhmm string, guests int) (*model.Availability, error)

	// DayAvailability reports availability for every seating time of a date.
	DayAvailability(ctx context.Context, date string, guests int) (*model.DayAvailability, error)

	// Create books a table. actor may be nil for an anonymous booking.
	Create(ctx context.Context, req *model.ReservationRequest, actor *model.Account) (*model.ReservationResult, error)

	// UpdateStatus moves a reservation to a new status on behalf of an admin.
	UpdateStatus(ctx context.Context, id uuid.UUID, req *model.StatusUpdateRequest, actor *model.Account) (*model.Reservation, error)

	// Cancel lets the owning account cancel its own reservation.
	Cancel(ctx context.Context, id uuid.UUID, actor *model.Account) (*model.Reservation, error)

	// Delete removes a reservation regardless of status.
	Delete(ctx context.Context, id uuid.UUID) error

	// List returns a filtered page of reservations.
	List(ctx context.Context, filter model.ReservationFilter) (*model.ReservationPage, error)

	// ListMine returns the actor's most recent reservations.
	ListMine(ctx context.Context, actor *model.Account) ([]model.Reservation, error)
}

// OrderService defines operations for order management.
type OrderService interface {
	// CreateOrder validates and stores an order exactly once per client
	// reference. A resubmission resolves to the stored order.
	CreateOrder(ctx context.Context, req *model.OrderRequest) (*model.OrderResult, error)

	// GetByID retrieves an order visible to actor.
	GetByID(ctx context.Context, id uuid.UUID, actor *model.Account) (*model.Order, error)

	// List returns a filtered page of orders.
	List(ctx context.Context, filter model.OrderFilter) (*model.OrderPage, error)

	// ListMine returns the actor's orders, newest first.
	ListMine(ctx context.Context, actor *model.Account, page, limit int) (*model.OrderPage, error)

	// Delete removes an order.
	Delete(ctx context.Context, id uuid.UUID) error
}
