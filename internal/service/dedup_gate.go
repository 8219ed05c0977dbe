package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bistro/internal/lock"
	"bistro/internal/model"
	"bistro/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// GateConfig tunes order admission.
type GateConfig struct {
	// LockTimeout bounds the wait for a same-key request in flight.
	LockTimeout time.Duration
	// SimilarWindow is how far back a same-purchaser order sharing an item
	// name counts as a near duplicate.
	SimilarWindow time.Duration
	// RetryAfter is the delay suggested to callers that timed out.
	RetryAfter time.Duration
}

// dedupGate admits at most one stored order per client reference. The
// process-local lock only shortens the race; the unique constraint on
// client_reference_id decides it.
type dedupGate struct {
	repo      repository.OrderRepository
	locks     *lock.Registry
	cfg       GateConfig
	logger    zerolog.Logger
	now       func() time.Time
	newNumber func(time.Time) string
}

func gateKey(email, clientReferenceID string) string {
	return email + "_" + clientReferenceID
}

// admit stores order unless it duplicates an existing one, in which case the
// existing order is returned as a successful duplicate result.
func (g *dedupGate) admit(ctx context.Context, order *model.Order) (*model.OrderResult, error) {
	key := gateKey(order.UserEmail, order.ClientReferenceID)

	release, err := g.locks.Acquire(ctx, key, g.cfg.LockTimeout)
	if err != nil {
		if errors.Is(err, lock.ErrLockTimeout) {
			g.logger.Warn().
				Str("client_reference_id", order.ClientReferenceID).
				Msg("order lock wait timed out")
			return nil, model.NewBusyError("Server busy, please try again later", g.cfg.RetryAfter)
		}
		return nil, fmt.Errorf("failed to acquire order lock: %w", err)
	}
	defer release()

	result, err := g.insert(ctx, order)
	if err != nil && repository.IsUniqueViolation(err, repository.ConstraintOrderClientReference) {
		// Another process won the race after our existence check.
		existing, findErr := g.repo.FindByClientReference(ctx, nil, order.ClientReferenceID)
		if findErr != nil {
			return nil, findErr
		}
		if existing != nil {
			g.logger.Info().
				Str("order_id", existing.ID.String()).
				Str("client_reference_id", order.ClientReferenceID).
				Msg("concurrent duplicate order resolved")
			return &model.OrderResult{Order: existing, Duplicate: true, DuplicateType: model.DuplicateExact}, nil
		}
	}
	return result, err
}

// insert runs the existence checks and the insert in one transaction. The
// purchaser's advisory lock makes the near-duplicate check atomic with the
// insert across processes.
func (g *dedupGate) insert(ctx context.Context, order *model.Order) (result *model.OrderResult, err error) {
	tx, err := g.repo.BeginTx(ctx)
	if err != nil {
		g.logger.Error().Err(err).Msg("failed to begin transaction")
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				g.logger.Error().Err(rbErr).Msg("failed to rollback transaction")
			}
		}
	}()

	if err = g.repo.LockKey(ctx, tx, "order:"+order.UserEmail); err != nil {
		return nil, fmt.Errorf("failed to lock purchaser: %w", err)
	}

	existing, err := g.repo.FindByClientReference(ctx, tx, order.ClientReferenceID)
	if err != nil {
		return nil, err
	}
	dupType := model.DuplicateExact
	if existing == nil {
		now := g.now()
		existing, err = g.repo.FindSimilar(ctx, tx, order.UserEmail, order.ItemNames(), now.Add(-g.cfg.SimilarWindow))
		if err != nil {
			return nil, err
		}
		dupType = model.DuplicateSimilar
	}
	if existing != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			g.logger.Error().Err(rbErr).Msg("failed to rollback transaction")
		}
		g.logger.Info().
			Str("order_id", existing.ID.String()).
			Str("duplicate_type", string(dupType)).
			Msg("duplicate order detected")
		return &model.OrderResult{Order: existing, Duplicate: true, DuplicateType: dupType}, nil
	}

	if !model.TotalMatches(model.ComputeTotal(order.Items), order.TotalAmount) {
		err = model.NewValidationError("Total amount mismatch", map[string]any{
			"calculated": model.ComputeTotal(order.Items),
			"provided":   order.TotalAmount,
		})
		return nil, err
	}

	now := g.now()
	order.ID = uuid.New()
	order.CreatedAt = now
	order.UpdatedAt = now
	for i := range order.Items {
		order.Items[i].ID = uuid.New()
		order.Items[i].OrderID = order.ID
	}

	inserted := false
	for attempt := 0; attempt < maxCodeAttempts && !inserted; attempt++ {
		order.OrderNumber = g.newNumber(now)
		inserted, err = g.repo.CreateOrder(ctx, tx, order)
		if err != nil {
			return nil, err
		}
	}
	if !inserted {
		g.logger.Error().Str("client_reference_id", order.ClientReferenceID).Msg("order number generation exhausted")
		err = model.NewConflictError(model.ErrCodeCodeGenerationExhausted,
			"Could not generate a unique order number, please try again", nil)
		return nil, err
	}

	if err = g.repo.CreateOrderItems(ctx, tx, order); err != nil {
		g.logger.Error().
			Err(err).
			Str("order_id", order.ID.String()).
			Int("item_count", len(order.Items)).
			Msg("failed to create order items")
		return nil, fmt.Errorf("failed to create order items: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		g.logger.Error().Err(err).Str("order_id", order.ID.String()).Msg("failed to commit transaction")
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	return &model.OrderResult{Order: order}, nil
}
