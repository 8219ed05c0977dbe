package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"bistro/internal/lock"
	"bistro/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testGateConfig = GateConfig{
	LockTimeout:   time.Second,
	SimilarWindow: 30 * time.Second,
	RetryAfter:    5 * time.Second,
}

func newTestOrderService(repo *MockOrderRepository, locks *lock.Registry) *orderService {
	if locks == nil {
		locks = lock.NewRegistry(time.Minute, time.Hour, zerolog.Nop())
	}
	svc := NewOrderService(repo, locks, nil, testGateConfig, zerolog.Nop()).(*orderService)
	svc.gate.now = func() time.Time { return fixedNow }
	n := 0
	svc.gate.newNumber = func(now time.Time) string {
		n++
		return fmt.Sprintf("ORD-%s-%06d", now.Format("20060102"), n)
	}
	return svc
}

func existingOrder(ref string) *model.Order {
	return &model.Order{
		ID:                uuid.New(),
		OrderNumber:       "ORD-20300610-EXISTS",
		ClientReferenceID: ref,
		UserEmail:         "diner@example.com",
	}
}

func TestOrderService_CreateOrder_Success(t *testing.T) {
	ctx := context.Background()
	repo := new(MockOrderRepository)
	mockTx := new(MockTx)
	svc := newTestOrderService(repo, nil)

	repo.On("BeginTx", ctx).Return(mockTx, nil)
	repo.On("LockKey", ctx, mockTx, "order:diner@example.com").Return(nil)
	repo.On("FindByClientReference", ctx, mockTx, "ref-123").Return(nil, nil)
	repo.On("FindSimilar", ctx, mockTx, "diner@example.com", []string{"Margherita", "Tiramisu"}, fixedNow.Add(-30*time.Second)).
		Return(nil, nil)
	// The first order number is taken.
	repo.On("CreateOrder", ctx, mockTx, mock.AnythingOfType("*model.Order")).Return(false, nil).Once()
	repo.On("CreateOrder", ctx, mockTx, mock.AnythingOfType("*model.Order")).Return(true, nil).Once()
	repo.On("CreateOrderItems", ctx, mockTx, mock.AnythingOfType("*model.Order")).Return(nil)
	mockTx.On("Commit", ctx).Return(nil)

	result, err := svc.CreateOrder(ctx, validOrderRequest())
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.False(t, result.Duplicate)
	assert.Empty(t, result.DuplicateType)
	order := result.Order
	assert.NotEqual(t, uuid.Nil, order.ID)
	assert.Equal(t, "ORD-20300610-000002", order.OrderNumber)
	assert.Equal(t, fixedNow, order.CreatedAt)
	for _, item := range order.Items {
		assert.Equal(t, order.ID, item.OrderID)
		assert.NotEqual(t, uuid.Nil, item.ID)
	}

	assert.True(t, mockTx.committed)
	assert.False(t, mockTx.rolledBack)
	repo.AssertExpectations(t)
	mockTx.AssertExpectations(t)
}

func TestOrderService_CreateOrder_ExactDuplicate(t *testing.T) {
	ctx := context.Background()
	repo := new(MockOrderRepository)
	mockTx := new(MockTx)
	svc := newTestOrderService(repo, nil)

	existing := existingOrder("ref-123")
	repo.On("BeginTx", ctx).Return(mockTx, nil)
	repo.On("LockKey", ctx, mockTx, mock.Anything).Return(nil)
	repo.On("FindByClientReference", ctx, mockTx, "ref-123").Return(existing, nil)
	mockTx.On("Rollback", ctx).Return(nil)

	result, err := svc.CreateOrder(ctx, validOrderRequest())
	require.NoError(t, err, "a duplicate is a success")
	assert.True(t, result.Duplicate)
	assert.Equal(t, model.DuplicateExact, result.DuplicateType)
	assert.Same(t, existing, result.Order)

	assert.True(t, mockTx.rolledBack)
	assert.False(t, mockTx.committed)
	repo.AssertNotCalled(t, "FindSimilar", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	repo.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything, mock.Anything)
}

func TestOrderService_CreateOrder_SimilarOrder(t *testing.T) {
	ctx := context.Background()
	repo := new(MockOrderRepository)
	mockTx := new(MockTx)
	svc := newTestOrderService(repo, nil)

	similar := existingOrder("ref-older")
	repo.On("BeginTx", ctx).Return(mockTx, nil)
	repo.On("LockKey", ctx, mockTx, mock.Anything).Return(nil)
	repo.On("FindByClientReference", ctx, mockTx, "ref-123").Return(nil, nil)
	repo.On("FindSimilar", ctx, mockTx, mock.Anything, mock.Anything, mock.Anything).Return(similar, nil)
	mockTx.On("Rollback", ctx).Return(nil)

	result, err := svc.CreateOrder(ctx, validOrderRequest())
	require.NoError(t, err)
	assert.True(t, result.Duplicate)
	assert.Equal(t, model.DuplicateSimilar, result.DuplicateType)
	assert.Equal(t, similar.ID, result.Order.ID)
	assert.True(t, mockTx.rolledBack)
}

func TestOrderService_CreateOrder_UniqueViolationResolvesToDuplicate(t *testing.T) {
	ctx := context.Background()
	repo := new(MockOrderRepository)
	mockTx := new(MockTx)
	svc := newTestOrderService(repo, nil)

	violation := &pgconn.PgError{Code: "23505", ConstraintName: "orders_client_reference_id_key"}
	winner := existingOrder("ref-123")

	repo.On("BeginTx", ctx).Return(mockTx, nil)
	repo.On("LockKey", ctx, mockTx, mock.Anything).Return(nil)
	repo.On("FindByClientReference", ctx, mockTx, "ref-123").Return(nil, nil)
	repo.On("FindSimilar", ctx, mockTx, mock.Anything, mock.Anything, mock.Anything).Return(nil, nil)
	repo.On("CreateOrder", ctx, mockTx, mock.Anything).Return(false, fmt.Errorf("failed to create order: %w", violation))
	mockTx.On("Rollback", ctx).Return(nil)
	repo.On("FindByClientReference", ctx, nil, "ref-123").Return(winner, nil)

	result, err := svc.CreateOrder(ctx, validOrderRequest())
	require.NoError(t, err)
	assert.True(t, result.Duplicate)
	assert.Equal(t, model.DuplicateExact, result.DuplicateType)
	assert.Equal(t, winner.ID, result.Order.ID)
	assert.True(t, mockTx.rolledBack)
}

func TestOrderService_CreateOrder_OrderNumberExhausted(t *testing.T) {
	ctx := context.Background()
	repo := new(MockOrderRepository)
	mockTx := new(MockTx)
	svc := newTestOrderService(repo, nil)

	repo.On("BeginTx", ctx).Return(mockTx, nil)
	repo.On("LockKey", ctx, mockTx, mock.Anything).Return(nil)
	repo.On("FindByClientReference", ctx, mockTx, mock.Anything).Return(nil, nil)
	repo.On("FindSimilar", ctx, mockTx, mock.Anything, mock.Anything, mock.Anything).Return(nil, nil)
	repo.On("CreateOrder", ctx, mockTx, mock.Anything).Return(false, nil)
	mockTx.On("Rollback", ctx).Return(nil)

	_, err := svc.CreateOrder(ctx, validOrderRequest())
	de, ok := model.AsDomainError(err)
	require.True(t, ok)
	assert.Equal(t, model.ErrCodeCodeGenerationExhausted, de.Code)
	repo.AssertNumberOfCalls(t, "CreateOrder", maxCodeAttempts)
	repo.AssertNotCalled(t, "CreateOrderItems", mock.Anything, mock.Anything, mock.Anything)
}

func TestOrderService_CreateOrder_ItemInsertFails(t *testing.T) {
	ctx := context.Background()
	repo := new(MockOrderRepository)
	mockTx := new(MockTx)
	svc := newTestOrderService(repo, nil)

	repo.On("BeginTx", ctx).Return(mockTx, nil)
	repo.On("LockKey", ctx, mockTx, mock.Anything).Return(nil)
	repo.On("FindByClientReference", ctx, mockTx, mock.Anything).Return(nil, nil)
	repo.On("FindSimilar", ctx, mockTx, mock.Anything, mock.Anything, mock.Anything).Return(nil, nil)
	repo.On("CreateOrder", ctx, mockTx, mock.Anything).Return(true, nil)
	repo.On("CreateOrderItems", ctx, mockTx, mock.Anything).Return(errors.New("disk full"))
	mockTx.On("Rollback", ctx).Return(nil)

	_, err := svc.CreateOrder(ctx, validOrderRequest())
	assert.ErrorContains(t, err, "failed to create order items")
	assert.True(t, mockTx.rolledBack)
	assert.False(t, mockTx.committed)
}

func TestOrderService_CreateOrder_ValidationBeforeStorage(t *testing.T) {
	repo := new(MockOrderRepository)
	svc := newTestOrderService(repo, nil)

	req := validOrderRequest()
	req.TotalAmount = dec("99.00")

	_, err := svc.CreateOrder(context.Background(), req)
	assert.True(t, model.IsKind(err, model.KindValidation))
	repo.AssertNotCalled(t, "BeginTx", mock.Anything)
}

func TestOrderService_CreateOrder_LockTimeoutIsBusy(t *testing.T) {
	repo := new(MockOrderRepository)
	locks := lock.NewRegistry(time.Minute, time.Hour, zerolog.Nop())
	svc := newTestOrderService(repo, locks)
	svc.gate.cfg.LockTimeout = 20 * time.Millisecond

	release, ok := locks.TryAcquire(gateKey("diner@example.com", "ref-123"))
	require.True(t, ok)
	defer release()

	result, err := svc.CreateOrder(context.Background(), validOrderRequest())
	assert.Nil(t, result)

	de, ok := model.AsDomainError(err)
	require.True(t, ok)
	assert.Equal(t, model.KindBusy, de.Kind)
	assert.Equal(t, model.ErrCodeLockTimeout, de.Code)
	assert.Equal(t, 5*time.Second, de.RetryAfter)
	repo.AssertNotCalled(t, "BeginTx", mock.Anything)
	assert.Equal(t, 1, locks.Len(), "only the holder's entry remains")
}

func TestOrderService_CreateOrder_ReleasesLock(t *testing.T) {
	ctx := context.Background()
	repo := new(MockOrderRepository)
	locks := lock.NewRegistry(time.Minute, time.Hour, zerolog.Nop())
	svc := newTestOrderService(repo, locks)

	repo.On("BeginTx", ctx).Return(nil, errors.New("connection refused"))

	_, err := svc.CreateOrder(ctx, validOrderRequest())
	require.Error(t, err)
	assert.Equal(t, 0, locks.Len())
}

func TestOrderService_GetByID(t *testing.T) {
	ctx := context.Background()
	repo := new(MockOrderRepository)
	svc := newTestOrderService(repo, nil)

	order := existingOrder("ref-1")
	missing := uuid.New()
	repo.On("GetByID", ctx, order.ID).Return(order, nil)
	repo.On("GetByID", ctx, missing).Return(nil, nil)

	tests := []struct {
		name    string
		id      uuid.UUID
		actor   *model.Account
		wantErr error
	}{
		{"purchaser", order.ID, &model.Account{ID: "1", Email: "Diner@example.com", Role: model.RoleUser}, nil},
		{"admin", order.ID, &model.Account{ID: "2", Email: "boss@example.com", Role: model.RoleAdmin}, nil},
		{"stranger", order.ID, &model.Account{ID: "3", Email: "other@example.com", Role: model.RoleUser}, model.ErrForbidden},
		{"anonymous", order.ID, nil, model.ErrForbidden},
		{"missing", missing, &model.Account{ID: "2", Role: model.RoleAdmin}, model.ErrOrderNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.GetByID(ctx, tt.id, tt.actor)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, order.ID, got.ID)
		})
	}
}

func TestOrderService_ListAndListMine(t *testing.T) {
	ctx := context.Background()
	repo := new(MockOrderRepository)
	svc := newTestOrderService(repo, nil)

	start := fixedNow.Add(-24 * time.Hour)
	repo.On("List", ctx, model.OrderFilter{UserEmail: "diner", StartDate: &start, Page: 2, Limit: 50}).
		Return([]model.Order{*existingOrder("a")}, 51, nil)
	repo.On("List", ctx, model.OrderFilter{UserEmail: "diner@example.com", ExactEmail: true, Page: 1, Limit: 20}).
		Return([]model.Order{}, 0, nil)

	page, err := svc.List(ctx, model.OrderFilter{UserEmail: "diner", StartDate: &start, Page: 2})
	require.NoError(t, err)
	assert.Len(t, page.Orders, 1)
	assert.Equal(t, model.Pagination{Current: 2, Pages: 2, Total: 51, Limit: 50}, page.Pagination)

	mine, err := svc.ListMine(ctx, &model.Account{ID: "1", Email: "Diner@Example.com"}, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, mine.Orders)

	_, err = svc.ListMine(ctx, nil, 1, 20)
	assert.ErrorIs(t, err, model.ErrUnauthorised)
}

func TestOrderService_Delete(t *testing.T) {
	ctx := context.Background()
	repo := new(MockOrderRepository)
	svc := newTestOrderService(repo, nil)

	found, missing := uuid.New(), uuid.New()
	repo.On("Delete", ctx, found).Return(true, nil)
	repo.On("Delete", ctx, missing).Return(false, nil)

	assert.NoError(t, svc.Delete(ctx, found))
	assert.ErrorIs(t, svc.Delete(ctx, missing), model.ErrOrderNotFound)
}
