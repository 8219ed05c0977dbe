package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"bistro/internal/model"
	"bistro/internal/notify"
	"bistro/internal/repository"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

const systemActor = "system"

// reservationService implements ReservationService.
type reservationService struct {
	repo     repository.ReservationRepository
	ledger   *slotLedger
	notifier notify.Notifier
	loc      *time.Location
	logger   zerolog.Logger

	now     func() time.Time
	newCode func(date time.Time, hhmm string) string
}

// NewReservationService creates a new reservation service. loc is the
// restaurant's time zone; dates and seating times are read in it.
func NewReservationService(
	repo repository.ReservationRepository,
	notifier notify.Notifier,
	loc *time.Location,
	logger zerolog.Logger,
) ReservationService {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if loc == nil {
		loc = time.UTC
	}
	return &reservationService{
		repo:     repo,
		ledger:   &slotLedger{repo: repo},
		notifier: notifier,
		loc:      loc,
		logger:   logger.With().Str("service", "reservation").Logger(),
		now:      time.Now,
		newCode:  newConfirmationCode,
	}
}

// CheckAvailability reports the free tables for one seating time.
func (s *reservationService) CheckAvailability(ctx context.Context, date, hhmm string, guests int) (*model.Availability, error) {
	fields := map[string]any{}
	d, err := parseDate(date)
	if err != nil {
		fields["date"] = err.Error()
	}
	seating, err := validateSeatingTime(hhmm)
	if err != nil {
		fields["time"] = err.Error()
	}
	if err := validateGuests(guests); err != nil {
		fields["guests"] = err.Error()
	}
	if len(fields) > 0 {
		return nil, model.NewValidationError("Invalid availability query", fields)
	}

	avail, err := s.ledger.check(ctx, nil, d, seating, guests)
	if err != nil {
		s.logger.Error().Err(err).Str("date", date).Str("time", seating).Msg("failed to check availability")
		return nil, err
	}
	return &avail, nil
}

// DayAvailability reports every seating time of a date.
func (s *reservationService) DayAvailability(ctx context.Context, date string, guests int) (*model.DayAvailability, error) {
	fields := map[string]any{}
	d, err := parseDate(date)
	if err != nil {
		fields["date"] = err.Error()
	}
	if err := validateGuests(guests); err != nil {
		fields["guests"] = err.Error()
	}
	if len(fields) > 0 {
		return nil, model.NewValidationError("Invalid availability query", fields)
	}

	slots, err := s.ledger.day(ctx, d, guests)
	if err != nil {
		s.logger.Error().Err(err).Str("date", date).Msg("failed to load day availability")
		return nil, err
	}
	return &model.DayAvailability{
		Date:              d.Format(model.DateLayout),
		Guests:            guests,
		RequiredTableSize: model.TableSizeFor(guests),
		Slots:             slots,
	}, nil
}

// Create books a table. Capacity and the one-per-day rule are re-checked
// under advisory locks on the slot and the account's day, so concurrent
// bookings for the same slot serialise and the count is never stale.
func (s *reservationService) Create(ctx context.Context, req *model.ReservationRequest, actor *model.Account) (result *model.ReservationResult, err error) {
	now := s.now()
	in, err := validateReservation(req, now, s.loc)
	if err != nil {
		return nil, err
	}

	size := model.TableSizeFor(in.Guests)
	slotKey := model.SlotKey(in.Date, in.Time, size)

	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to begin transaction")
		return nil, fmt.Errorf("failed to create reservation: %w", err)
	}

	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				s.logger.Error().Err(rbErr).Msg("failed to rollback transaction")
			}
		}
	}()

	if err = s.repo.LockKey(ctx, tx, "slot:"+slotKey); err != nil {
		return nil, fmt.Errorf("failed to lock slot: %w", err)
	}
	if actor != nil {
		if err = s.repo.LockKey(ctx, tx, accountDayKey(actor.ID, in.Date)); err != nil {
			return nil, fmt.Errorf("failed to lock account day: %w", err)
		}
	}

	avail, err := s.ledger.check(ctx, tx, in.Date, in.Time, in.Guests)
	if err != nil {
		return nil, err
	}
	if !avail.Available {
		s.logger.Info().
			Str("slot_key", slotKey).
			Int("total_slots", avail.TotalSlots).
			Msg("slot fully booked")
		err = model.NewConflictError(model.ErrCodeNoAvailability,
			fmt.Sprintf("No %s tables available for %s at %s", size, in.Date.Format(model.DateLayout), in.Time),
			map[string]any{
				"availableSlots":    avail.AvailableSlots,
				"totalSlots":        avail.TotalSlots,
				"requiredTableSize": avail.RequiredTableSize,
			})
		return nil, err
	}

	if actor != nil {
		var exists bool
		exists, err = s.repo.HasActiveOnDate(ctx, tx, actor.ID, in.Date)
		if err != nil {
			return nil, err
		}
		if exists {
			err = model.ErrDuplicateReservation
			return nil, err
		}
	}

	res := &model.Reservation{
		ID:        uuid.New(),
		Name:      in.Name,
		Email:     in.Email,
		Phone:     in.Phone,
		Guests:    in.Guests,
		Date:      in.Date,
		Time:      in.Time,
		TableSize: size,
		SlotKey:   slotKey,
		Status:    model.StatusPending,
		Message:   in.Message,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if actor != nil {
		id := actor.ID
		res.AccountID = &id
	}

	inserted := false
	for attempt := 0; attempt < maxCodeAttempts && !inserted; attempt++ {
		res.ConfirmationCode = s.newCode(in.Date, in.Time)
		inserted, err = s.repo.Create(ctx, tx, res)
		if err != nil {
			return nil, err
		}
	}
	if !inserted {
		s.logger.Error().Str("slot_key", slotKey).Msg("confirmation code generation exhausted")
		err = model.NewConflictError(model.ErrCodeCodeGenerationExhausted,
			"Could not generate a unique confirmation code, please try again", nil)
		return nil, err
	}

	entry := model.StatusHistoryEntry{
		ID:            uuid.New(),
		ReservationID: res.ID,
		Status:        model.StatusPending,
		Actor:         actorID(actor),
		Note:          "Reservation created",
		ChangedAt:     now,
	}
	if err = s.repo.AppendHistory(ctx, tx, &entry); err != nil {
		return nil, err
	}
	res.StatusHistory = []model.StatusHistoryEntry{entry}

	if err = tx.Commit(ctx); err != nil {
		s.logger.Error().Err(err).Str("reservation_id", res.ID.String()).Msg("failed to commit transaction")
		return nil, fmt.Errorf("failed to create reservation: %w", err)
	}

	s.logger.Info().
		Str("reservation_id", res.ID.String()).
		Str("confirmation_code", res.ConfirmationCode).
		Str("slot_key", slotKey).
		Msg("reservation created")

	if res.AccountID != nil {
		s.notify(ctx, res, model.Event{
			Type:         model.EventReservationCreated,
			Title:        "Reservation Submitted",
			HumanMessage: "Thanks for the reservation, your reservation is pending approval",
			Priority:     model.PriorityMedium,
		})
	}

	return &model.ReservationResult{
		Reservation:      res,
		ConfirmationCode: res.ConfirmationCode,
		TableInfo: model.TableInfo{
			TableSize:      size,
			AvailableSlots: avail.AvailableSlots - 1,
			TotalSlots:     avail.TotalSlots,
		},
	}, nil
}

// UpdateStatus applies an admin status change.
func (s *reservationService) UpdateStatus(ctx context.Context, id uuid.UUID, req *model.StatusUpdateRequest, actor *model.Account) (*model.Reservation, error) {
	if req == nil {
		return nil, model.NewValidationError("Status is required", map[string]any{"status": "Status is required"})
	}
	status, ok := model.ParseReservationStatus(strings.TrimSpace(req.Status))
	if !ok {
		return nil, model.NewValidationError("Invalid status", map[string]any{
			"status": "Status must be one of: pending, confirmed, cancelled, completed",
		})
	}

	return s.transition(ctx, id, status, actor, strings.TrimSpace(req.Note), nil)
}

// Cancel lets an owner cancel a reservation more than two hours ahead.
func (s *reservationService) Cancel(ctx context.Context, id uuid.UUID, actor *model.Account) (*model.Reservation, error) {
	if actor == nil {
		return nil, model.ErrUnauthorised
	}
	guard := func(res *model.Reservation) error {
		if !res.OwnedBy(actor) {
			return model.ErrForbidden
		}
		if !res.CanBeCancelled(s.now(), s.loc) {
			return model.ErrNotCancellable
		}
		return nil
	}
	return s.transition(ctx, id, model.StatusCancelled, actor, "Cancelled by guest", guard)
}

// transition locks the reservation row, runs guard, and records the status
// change. A change to the current status is a no-op.
func (s *reservationService) transition(
	ctx context.Context,
	id uuid.UUID,
	status model.ReservationStatus,
	actor *model.Account,
	note string,
	guard func(*model.Reservation) error,
) (res *model.Reservation, err error) {
	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to begin transaction")
		return nil, fmt.Errorf("failed to update reservation: %w", err)
	}

	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				s.logger.Error().Err(rbErr).Msg("failed to rollback transaction")
			}
		}
	}()

	res, err = s.repo.GetByIDForUpdate(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if res == nil {
		err = model.ErrReservationNotFound
		return nil, err
	}
	if guard != nil {
		if err = guard(res); err != nil {
			return nil, err
		}
	}

	old := res.Status
	if old == status {
		s.abort(ctx, tx)
		return res, nil
	}

	now := s.now()
	if err = s.repo.UpdateStatus(ctx, tx, id, status, now); err != nil {
		return nil, err
	}

	if note == "" {
		note = "Status updated to " + string(status)
	}
	entry := model.StatusHistoryEntry{
		ID:            uuid.New(),
		ReservationID: id,
		OldStatus:     &old,
		Status:        status,
		Actor:         actorID(actor),
		Note:          note,
		ChangedAt:     now,
	}
	if err = s.repo.AppendHistory(ctx, tx, &entry); err != nil {
		return nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		s.logger.Error().Err(err).Str("reservation_id", id.String()).Msg("failed to commit transaction")
		return nil, fmt.Errorf("failed to update reservation: %w", err)
	}

	res.Status = status
	res.UpdatedAt = now
	res.StatusHistory = append(res.StatusHistory, entry)

	s.logger.Info().
		Str("reservation_id", id.String()).
		Str("old_status", string(old)).
		Str("new_status", string(status)).
		Str("actor", entry.Actor).
		Msg("reservation status updated")

	if res.AccountID != nil && status != model.StatusPending {
		s.notify(ctx, res, statusEvent(res, old))
	}
	return res, nil
}

// Delete hard-deletes a reservation.
func (s *reservationService) Delete(ctx context.Context, id uuid.UUID) error {
	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return model.ErrReservationNotFound
	}
	s.logger.Info().Str("reservation_id", id.String()).Msg("reservation deleted")
	return nil
}

// List returns a page of reservations ordered by date and time.
func (s *reservationService) List(ctx context.Context, filter model.ReservationFilter) (*model.ReservationPage, error) {
	filter.Page, filter.Limit = normalisePage(filter.Page, filter.Limit, defaultPageLimit)

	list, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &model.ReservationPage{
		Reservations: list,
		Pagination:   model.NewPagination(filter.Page, filter.Limit, total),
	}, nil
}

// ListMine returns the actor's latest reservations.
func (s *reservationService) ListMine(ctx context.Context, actor *model.Account) ([]model.Reservation, error) {
	if actor == nil {
		return nil, model.ErrUnauthorised
	}
	return s.repo.ListByAccount(ctx, actor.ID, mineLimit)
}

// abort rolls back a transaction that found nothing to write.
func (s *reservationService) abort(ctx context.Context, tx pgx.Tx) {
	if err := tx.Rollback(ctx); err != nil {
		s.logger.Error().Err(err).Msg("failed to rollback transaction")
	}
}

// notify sends an event for res after commit. Failures are logged only.
func (s *reservationService) notify(ctx context.Context, res *model.Reservation, event model.Event) {
	event.RecipientAccountID = *res.AccountID
	event.ReservationID = res.ID
	event.ConfirmationCode = res.ConfirmationCode
	event.NewStatus = res.Status
	event.CreatedAt = s.now()

	if err := s.notifier.Notify(ctx, *res.AccountID, event); err != nil {
		s.logger.Warn().
			Err(err).
			Str("reservation_id", res.ID.String()).
			Str("event", string(event.Type)).
			Msg("failed to deliver notification")
	}
}

func statusEvent(res *model.Reservation, old model.ReservationStatus) model.Event {
	when := res.Date.Format("Mon Jan 02 2006")
	var message string
	switch res.Status {
	case model.StatusConfirmed:
		message = fmt.Sprintf("Great news! Your reservation for %d guests on %s at %s has been confirmed.", res.Guests, when, res.Time)
	case model.StatusCancelled:
		message = fmt.Sprintf("Your reservation for %d guests on %s at %s has been cancelled.", res.Guests, when, res.Time)
	case model.StatusCompleted:
		message = fmt.Sprintf("Thank you! Your reservation for %d guests has been marked as completed.", res.Guests)
	}

	priority := model.PriorityMedium
	if res.Status == model.StatusCancelled {
		priority = model.PriorityHigh
	}

	status := string(res.Status)
	return model.Event{
		Type:         model.EventReservationStatusUpdated,
		OldStatus:    &old,
		Title:        "Reservation " + strings.ToUpper(status[:1]) + status[1:],
		HumanMessage: message,
		Priority:     priority,
	}
}

func accountDayKey(accountID string, date time.Time) string {
	return "account:" + accountID + "|" + date.Format(model.DateLayout)
}

func actorID(actor *model.Account) string {
	if actor == nil {
		return systemActor
	}
	return actor.ID
}
