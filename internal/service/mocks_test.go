package service

import (
	"context"
	"sync"
	"time"

	"bistro/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/mock"
)

// MockReservationRepository is a mock implementation of ReservationRepository.
type MockReservationRepository struct {
	mock.Mock
}

func (m *MockReservationRepository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	args := m.Called(ctx)
	if tx, ok := args.Get(0).(pgx.Tx); ok {
		return tx, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockReservationRepository) LockKey(ctx context.Context, tx pgx.Tx, key string) error {
	return m.Called(ctx, tx, key).Error(0)
}

func (m *MockReservationRepository) CountActiveInSlot(ctx context.Context, tx pgx.Tx, slotKey string) (int, error) {
	args := m.Called(ctx, tx, slotKey)
	return args.Int(0), args.Error(1)
}

func (m *MockReservationRepository) CountActiveByTime(ctx context.Context, date time.Time, size model.TableSize) (map[string]int, error) {
	args := m.Called(ctx, date, size)
	counts, _ := args.Get(0).(map[string]int)
	return counts, args.Error(1)
}

func (m *MockReservationRepository) HasActiveOnDate(ctx context.Context, tx pgx.Tx, accountID string, date time.Time) (bool, error) {
	args := m.Called(ctx, tx, accountID, date)
	return args.Bool(0), args.Error(1)
}

func (m *MockReservationRepository) Create(ctx context.Context, tx pgx.Tx, res *model.Reservation) (bool, error) {
	args := m.Called(ctx, tx, res)
	return args.Bool(0), args.Error(1)
}

func (m *MockReservationRepository) AppendHistory(ctx context.Context, tx pgx.Tx, entry *model.StatusHistoryEntry) error {
	return m.Called(ctx, tx, entry).Error(0)
}

func (m *MockReservationRepository) GetByID(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*model.Reservation, error) {
	args := m.Called(ctx, tx, id)
	res, _ := args.Get(0).(*model.Reservation)
	return res, args.Error(1)
}

func (m *MockReservationRepository) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*model.Reservation, error) {
	args := m.Called(ctx, tx, id)
	res, _ := args.Get(0).(*model.Reservation)
	return res, args.Error(1)
}

func (m *MockReservationRepository) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status model.ReservationStatus, at time.Time) error {
	return m.Called(ctx, tx, id, status, at).Error(0)
}

func (m *MockReservationRepository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockReservationRepository) List(ctx context.Context, filter model.ReservationFilter) ([]model.Reservation, int, error) {
	args := m.Called(ctx, filter)
	list, _ := args.Get(0).([]model.Reservation)
	return list, args.Int(1), args.Error(2)
}

func (m *MockReservationRepository) ListByAccount(ctx context.Context, accountID string, limit int) ([]model.Reservation, error) {
	args := m.Called(ctx, accountID, limit)
	list, _ := args.Get(0).([]model.Reservation)
	return list, args.Error(1)
}

// MockOrderRepository is a mock implementation of OrderRepository.
type MockOrderRepository struct {
	mock.Mock
}

func (m *MockOrderRepository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	args := m.Called(ctx)
	if tx, ok := args.Get(0).(pgx.Tx); ok {
		return tx, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockOrderRepository) LockKey(ctx context.Context, tx pgx.Tx, key string) error {
	return m.Called(ctx, tx, key).Error(0)
}

func (m *MockOrderRepository) FindByClientReference(ctx context.Context, tx pgx.Tx, clientReferenceID string) (*model.Order, error) {
	args := m.Called(ctx, tx, clientReferenceID)
	order, _ := args.Get(0).(*model.Order)
	return order, args.Error(1)
}

func (m *MockOrderRepository) FindSimilar(ctx context.Context, tx pgx.Tx, email string, itemNames []string, since time.Time) (*model.Order, error) {
	args := m.Called(ctx, tx, email, itemNames, since)
	order, _ := args.Get(0).(*model.Order)
	return order, args.Error(1)
}

func (m *MockOrderRepository) CreateOrder(ctx context.Context, tx pgx.Tx, order *model.Order) (bool, error) {
	args := m.Called(ctx, tx, order)
	return args.Bool(0), args.Error(1)
}

func (m *MockOrderRepository) CreateOrderItems(ctx context.Context, tx pgx.Tx, order *model.Order) error {
	return m.Called(ctx, tx, order).Error(0)
}

func (m *MockOrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	args := m.Called(ctx, id)
	order, _ := args.Get(0).(*model.Order)
	return order, args.Error(1)
}

func (m *MockOrderRepository) List(ctx context.Context, filter model.OrderFilter) ([]model.Order, int, error) {
	args := m.Called(ctx, filter)
	orders, _ := args.Get(0).([]model.Order)
	return orders, args.Int(1), args.Error(2)
}

func (m *MockOrderRepository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

// MockTx is a minimal mock implementation of pgx.Tx for testing.
type MockTx struct {
	mock.Mock
	committed  bool
	rolledBack bool
}

func (m *MockTx) Commit(ctx context.Context) error {
	args := m.Called(ctx)
	m.committed = true
	return args.Error(0)
}

func (m *MockTx) Rollback(ctx context.Context) error {
	args := m.Called(ctx)
	m.rolledBack = true
	return args.Error(0)
}

// Implement other pgx.Tx methods (not used in tests)
func (m *MockTx) Begin(ctx context.Context) (pgx.Tx, error) { return nil, nil }
func (m *MockTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (m *MockTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (m *MockTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (m *MockTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (m *MockTx) Exec(ctx context.Context, sql string, arguments ...any) (commandTag pgconn.CommandTag, err error) {
	return
}
func (m *MockTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (m *MockTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row { return nil }
func (m *MockTx) Conn() *pgx.Conn                                               { return nil }

// recordingNotifier captures delivered events.
type recordingNotifier struct {
	mu     sync.Mutex
	events []model.Event
	err    error
}

func (n *recordingNotifier) Notify(_ context.Context, accountID string, event model.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return n.err
}

func (n *recordingNotifier) Events() []model.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]model.Event(nil), n.events...)
}
