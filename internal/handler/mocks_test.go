package handler

import (
	"context"

	"bistro/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// MockReservationService is a mock implementation of ReservationService.
type MockReservationService struct {
	mock.Mock
}

func (m *MockReservationService) CheckAvailability(ctx context.Context, date, hhmm string, guests int) (*model.Availability, error) {
	args := m.Called(ctx, date, hhmm, guests)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Availability), args.Error(1)
}

func (m *MockReservationService) DayAvailability(ctx context.Context, date string, guests int) (*model.DayAvailability, error) {
	args := m.Called(ctx, date, guests)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.DayAvailability), args.Error(1)
}

func (m *MockReservationService) Create(ctx context.Context, req *model.ReservationRequest, actor *model.Account) (*model.ReservationResult, error) {
	args := m.Called(ctx, req, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ReservationResult), args.Error(1)
}

func (m *MockReservationService) UpdateStatus(ctx context.Context, id uuid.UUID, req *model.StatusUpdateRequest, actor *model.Account) (*model.Reservation, error) {
	args := m.Called(ctx, id, req, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Reservation), args.Error(1)
}

func (m *MockReservationService) Cancel(ctx context.Context, id uuid.UUID, actor *model.Account) (*model.Reservation, error) {
	args := m.Called(ctx, id, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Reservation), args.Error(1)
}

func (m *MockReservationService) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockReservationService) List(ctx context.Context, filter model.ReservationFilter) (*model.ReservationPage, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ReservationPage), args.Error(1)
}

func (m *MockReservationService) ListMine(ctx context.Context, actor *model.Account) ([]model.Reservation, error) {
	args := m.Called(ctx, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Reservation), args.Error(1)
}

// MockOrderService is a mock implementation of OrderService.
type MockOrderService struct {
	mock.Mock
}

func (m *MockOrderService) CreateOrder(ctx context.Context, req *model.OrderRequest) (*model.OrderResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.OrderResult), args.Error(1)
}

func (m *MockOrderService) GetByID(ctx context.Context, id uuid.UUID, actor *model.Account) (*model.Order, error) {
	args := m.Called(ctx, id, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Order), args.Error(1)
}

func (m *MockOrderService) List(ctx context.Context, filter model.OrderFilter) (*model.OrderPage, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.OrderPage), args.Error(1)
}

func (m *MockOrderService) ListMine(ctx context.Context, actor *model.Account, page, limit int) (*model.OrderPage, error) {
	args := m.Called(ctx, actor, page, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.OrderPage), args.Error(1)
}

func (m *MockOrderService) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}
