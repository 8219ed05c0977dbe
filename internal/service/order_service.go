package service

import (
	"context"
	"strings"
	"time"

	"bistro/internal/lock"
	"bistro/internal/menu"
	"bistro/internal/model"
	"bistro/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// orderService implements OrderService.
type orderService struct {
	orderRepo repository.OrderRepository
	gate      *dedupGate
	catalog   menu.Catalog
	logger    zerolog.Logger
}

// NewOrderService creates a new order service. catalog may be nil, in which
// case item names are not checked against a menu.
func NewOrderService(
	orderRepo repository.OrderRepository,
	locks *lock.Registry,
	catalog menu.Catalog,
	cfg GateConfig,
	logger zerolog.Logger,
) OrderService {
	logger = logger.With().Str("service", "order").Logger()
	return &orderService{
		orderRepo: orderRepo,
		gate: &dedupGate{
			repo:      orderRepo,
			locks:     locks,
			cfg:       cfg,
			logger:    logger,
			now:       time.Now,
			newNumber: newOrderNumber,
		},
		catalog: catalog,
		logger:  logger,
	}
}

// CreateOrder validates the request and admits it through the dedup gate.
func (s *orderService) CreateOrder(ctx context.Context, req *model.OrderRequest) (*model.OrderResult, error) {
	order, err := buildOrder(req, s.catalog)
	if err != nil {
		s.logger.Warn().Err(err).Msg("order rejected")
		return nil, err
	}

	result, err := s.gate.admit(ctx, order)
	if err != nil {
		return nil, err
	}

	if !result.Duplicate {
		s.logger.Info().
			Str("order_id", result.Order.ID.String()).
			Str("order_number", result.Order.OrderNumber).
			Int("item_count", len(result.Order.Items)).
			Msg("order created successfully")
	}
	return result, nil
}

// GetByID retrieves an order for its purchaser or an admin.
func (s *orderService) GetByID(ctx context.Context, id uuid.UUID, actor *model.Account) (*model.Order, error) {
	order, err := s.orderRepo.GetByID(ctx, id)
	if err != nil {
		s.logger.Error().Err(err).Str("order_id", id.String()).Msg("failed to get order")
		return nil, err
	}
	if order == nil {
		return nil, model.ErrOrderNotFound
	}
	if !actor.IsAdmin() && (actor == nil || !strings.EqualFold(order.UserEmail, actor.Email)) {
		return nil, model.ErrForbidden
	}
	return order, nil
}

// List returns a page of orders.
func (s *orderService) List(ctx context.Context, filter model.OrderFilter) (*model.OrderPage, error) {
	filter.Page, filter.Limit = normalisePage(filter.Page, filter.Limit, defaultPageLimit)

	orders, total, err := s.orderRepo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &model.OrderPage{
		Orders:     orders,
		Pagination: model.NewPagination(filter.Page, filter.Limit, total),
	}, nil
}

// ListMine returns the actor's own orders.
func (s *orderService) ListMine(ctx context.Context, actor *model.Account, page, limit int) (*model.OrderPage, error) {
	if actor == nil {
		return nil, model.ErrUnauthorised
	}
	page, limit = normalisePage(page, limit, mineLimit)
	return s.List(ctx, model.OrderFilter{
		UserEmail:  strings.ToLower(actor.Email),
		ExactEmail: true,
		Page:       page,
		Limit:      limit,
	})
}

// Delete removes an order.
func (s *orderService) Delete(ctx context.Context, id uuid.UUID) error {
	deleted, err := s.orderRepo.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return model.ErrOrderNotFound
	}
	s.logger.Info().Str("order_id", id.String()).Msg("order deleted")
	return nil
}
