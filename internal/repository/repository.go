package repository

import (
	"context"
	"time"

	"bistro/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ReservationRepository defines the interface for reservation data access.
// Methods taking a pgx.Tx run on the pool when tx is nil.
type ReservationRepository interface {
	// BeginTx starts a new database transaction.
	BeginTx(ctx context.Context) (pgx.Tx, error)

	// LockKey takes a transaction-scoped advisory lock on key. It blocks until
	// concurrent holders of the same key commit or roll back.
	LockKey(ctx context.Context, tx pgx.Tx, key string) error

	// CountActiveInSlot counts pending and confirmed reservations holding the
	// slot key.
	CountActiveInSlot(ctx context.Context, tx pgx.Tx, slotKey string) (int, error)

	// CountActiveByTime counts active reservations of one table size on a
	// date, keyed by seating time.
	CountActiveByTime(ctx context.Context, date time.Time, size model.TableSize) (map[string]int, error)

	// HasActiveOnDate reports whether the account holds a pending or confirmed
	// reservation on date.
	HasActiveOnDate(ctx context.Context, tx pgx.Tx, accountID string, date time.Time) (bool, error)

	// Create inserts a reservation. It returns false without error when the
	// confirmation code is already taken.
	Create(ctx context.Context, tx pgx.Tx, res *model.Reservation) (bool, error)

	// AppendHistory appends a status history entry.
	AppendHistory(ctx context.Context, tx pgx.Tx, entry *model.StatusHistoryEntry) error

	// GetByID retrieves a reservation with its history. Returns nil when absent.
	GetByID(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*model.Reservation, error)

	// GetByIDForUpdate is GetByID holding a row lock until tx ends.
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*model.Reservation, error)

	// UpdateStatus sets the reservation status.
	UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status model.ReservationStatus, at time.Time) error

	// Delete removes a reservation and its history. Returns false when absent.
	Delete(ctx context.Context, id uuid.UUID) (bool, error)

	// List returns a filtered page ordered by date and time ascending, and the
	// total number of matches.
	List(ctx context.Context, filter model.ReservationFilter) ([]model.Reservation, int, error)

	// ListByAccount returns the account's most recent reservations.
	ListByAccount(ctx context.Context, accountID string, limit int) ([]model.Reservation, error)
}

// OrderRepository defines the interface for order data access operations.
// Methods taking a pgx.Tx run on the pool when tx is nil.
type OrderRepository interface {
	// BeginTx starts a new database transaction.
	BeginTx(ctx context.Context) (pgx.Tx, error)

	// LockKey takes a transaction-scoped advisory lock on key.
	LockKey(ctx context.Context, tx pgx.Tx, key string) error

	// FindByClientReference retrieves the order created for a client reference.
	// Returns nil when absent.
	FindByClientReference(ctx context.Context, tx pgx.Tx, clientReferenceID string) (*model.Order, error)

	// FindSimilar retrieves the newest order by email created at or after
	// since that contains an item with one of the given names.
	FindSimilar(ctx context.Context, tx pgx.Tx, email string, itemNames []string, since time.Time) (*model.Order, error)

	// CreateOrder inserts a new order. It returns false without error when the
	// order number is already taken. A clashing client reference surfaces as a
	// unique violation on ConstraintOrderClientReference.
	CreateOrder(ctx context.Context, tx pgx.Tx, order *model.Order) (bool, error)

	// CreateOrderItems inserts the order's line items.
	CreateOrderItems(ctx context.Context, tx pgx.Tx, order *model.Order) error

	// GetByID retrieves an order by its ID along with its items. Returns nil
	// when absent.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error)

	// List returns a filtered page of orders and the total number of matches.
	List(ctx context.Context, filter model.OrderFilter) ([]model.Order, int, error)

	// Delete removes an order and its items. Returns false when absent.
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
}

// querier is the subset of pgxpool.Pool and pgx.Tx the repositories use.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}
