package service

import (
	"context"
	"fmt"
	"time"

	"bistro/internal/model"
	"bistro/internal/repository"

	"github.com/jackc/pgx/v5"
)

// slotLedger derives table availability from the reservations holding a
// slot. There is no separate counter; the reservation rows are the ledger.
type slotLedger struct {
	repo repository.ReservationRepository
}

// check counts active reservations for the slot. With a non-nil tx the count
// reflects that transaction's view, including its own inserts.
func (l *slotLedger) check(ctx context.Context, tx pgx.Tx, date time.Time, hhmm string, guests int) (model.Availability, error) {
	size := model.TableSizeFor(guests)
	active, err := l.repo.CountActiveInSlot(ctx, tx, model.SlotKey(date, hhmm, size))
	if err != nil {
		return model.Availability{}, fmt.Errorf("failed to count slot reservations: %w", err)
	}
	return model.NewAvailability(size, active), nil
}

// day reports every seating time of date for the party size.
func (l *slotLedger) day(ctx context.Context, date time.Time, guests int) ([]model.SlotAvailability, error) {
	size := model.TableSizeFor(guests)
	byTime, err := l.repo.CountActiveByTime(ctx, date, size)
	if err != nil {
		return nil, fmt.Errorf("failed to count day reservations: %w", err)
	}

	times := model.SeatingTimes()
	slots := make([]model.SlotAvailability, len(times))
	for i, hhmm := range times {
		slots[i] = model.SlotAvailability{
			Time:         hhmm,
			Availability: model.NewAvailability(size, byTime[hhmm]),
		}
	}
	return slots, nil
}
