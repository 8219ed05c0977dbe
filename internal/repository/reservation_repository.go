package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bistro/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

const reservationColumns = `
	id, confirmation_code, account_id, name, email, phone, guests,
	reservation_date, reservation_time, table_size, slot_key, status,
	message, created_at, updated_at`

// reservationRepository implements ReservationRepository using PostgreSQL.
type reservationRepository struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewReservationRepository creates a new PostgreSQL-backed reservation repository.
func NewReservationRepository(pool *pgxpool.Pool, logger zerolog.Logger) ReservationRepository {
	return &reservationRepository{
		pool:   pool,
		logger: logger.With().Str("repository", "reservation").Logger(),
	}
}

func (r *reservationRepository) q(tx pgx.Tx) querier {
	if tx != nil {
		return tx
	}
	return r.pool
}

// BeginTx starts a new database transaction.
func (r *reservationRepository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to begin transaction")
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return tx, nil
}

// LockKey takes a transaction-scoped advisory lock on key.
func (r *reservationRepository) LockKey(ctx context.Context, tx pgx.Tx, key string) error {
	return lockKey(ctx, tx, key, r.logger)
}

func lockKey(ctx context.Context, tx pgx.Tx, key string, logger zerolog.Logger) error {
	if tx == nil {
		return fmt.Errorf("advisory lock on %q requires a transaction", key)
	}
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key); err != nil {
		logger.Error().Err(err).Str("key", key).Msg("failed to acquire advisory lock")
		return fmt.Errorf("failed to acquire advisory lock: %w", err)
	}
	return nil
}

// CountActiveInSlot counts pending and confirmed reservations holding the slot key.
func (r *reservationRepository) CountActiveInSlot(ctx context.Context, tx pgx.Tx, slotKey string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM reservations
		WHERE slot_key = $1 AND status IN ('pending', 'confirmed')
	`

	var count int
	if err := r.q(tx).QueryRow(ctx, query, slotKey).Scan(&count); err != nil {
		r.logger.Error().Err(err).Str("slot_key", slotKey).Msg("failed to count slot reservations")
		return 0, fmt.Errorf("failed to count slot reservations: %w", err)
	}
	return count, nil
}

// CountActiveByTime counts active reservations of one table size on a date.
func (r *reservationRepository) CountActiveByTime(ctx context.Context, date time.Time, size model.TableSize) (map[string]int, error) {
	query := `
		SELECT reservation_time, COUNT(*)
		FROM reservations
		WHERE reservation_date = $1 AND table_size = $2 AND status IN ('pending', 'confirmed')
		GROUP BY reservation_time
	`

	rows, err := r.pool.Query(ctx, query, date, string(size))
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to count reservations by time")
		return nil, fmt.Errorf("failed to count reservations by time: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var hhmm string
		var n int
		if err := rows.Scan(&hhmm, &n); err != nil {
			return nil, fmt.Errorf("failed to scan reservation count: %w", err)
		}
		counts[hhmm] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reservation counts: %w", err)
	}
	return counts, nil
}

// HasActiveOnDate reports whether the account holds an active reservation on date.
func (r *reservationRepository) HasActiveOnDate(ctx context.Context, tx pgx.Tx, accountID string, date time.Time) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM reservations
			WHERE account_id = $1 AND reservation_date = $2 AND status IN ('pending', 'confirmed')
		)
	`

	var exists bool
	if err := r.q(tx).QueryRow(ctx, query, accountID, date).Scan(&exists); err != nil {
		r.logger.Error().Err(err).Str("account_id", accountID).Msg("failed to check account reservations")
		return false, fmt.Errorf("failed to check account reservations: %w", err)
	}
	return exists, nil
}

// Create inserts a reservation unless its confirmation code is taken.
func (r *reservationRepository) Create(ctx context.Context, tx pgx.Tx, res *model.Reservation) (bool, error) {
	query := `
		INSERT INTO reservations (` + reservationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (confirmation_code) DO NOTHING
	`

	tag, err := r.q(tx).Exec(ctx, query,
		res.ID, res.ConfirmationCode, res.AccountID, res.Name, res.Email, res.Phone, res.Guests,
		res.Date, res.Time, string(res.TableSize), res.SlotKey, string(res.Status),
		res.Message, res.CreatedAt, res.UpdatedAt,
	)
	if err != nil {
		r.logger.Error().
			Err(err).
			Str("reservation_id", res.ID.String()).
			Msg("failed to create reservation")
		return false, fmt.Errorf("failed to create reservation: %w", err)
	}

	if tag.RowsAffected() == 0 {
		r.logger.Debug().
			Str("confirmation_code", res.ConfirmationCode).
			Msg("confirmation code already taken")
		return false, nil
	}

	r.logger.Debug().
		Str("reservation_id", res.ID.String()).
		Str("slot_key", res.SlotKey).
		Msg("reservation created successfully")

	return true, nil
}

// AppendHistory appends a status history entry.
func (r *reservationRepository) AppendHistory(ctx context.Context, tx pgx.Tx, entry *model.StatusHistoryEntry) error {
	query := `
		INSERT INTO reservation_status_history (id, reservation_id, old_status, status, actor, note, changed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	var old *string
	if entry.OldStatus != nil {
		s := string(*entry.OldStatus)
		old = &s
	}

	_, err := r.q(tx).Exec(ctx, query,
		entry.ID, entry.ReservationID, old, string(entry.Status), entry.Actor, entry.Note, entry.ChangedAt,
	)
	if err != nil {
		r.logger.Error().
			Err(err).
			Str("reservation_id", entry.ReservationID.String()).
			Msg("failed to append status history")
		return fmt.Errorf("failed to append status history: %w", err)
	}
	return nil
}

// GetByID retrieves a reservation with its history.
func (r *reservationRepository) GetByID(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*model.Reservation, error) {
	return r.getByID(ctx, r.q(tx), id, "")
}

// GetByIDForUpdate retrieves a reservation and locks its row until tx ends.
func (r *reservationRepository) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*model.Reservation, error) {
	if tx == nil {
		return nil, errors.New("row lock requires a transaction")
	}
	return r.getByID(ctx, tx, id, " FOR UPDATE")
}

func (r *reservationRepository) getByID(ctx context.Context, q querier, id uuid.UUID, suffix string) (*model.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = $1` + suffix

	res, err := scanReservation(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.Debug().Str("reservation_id", id.String()).Msg("reservation not found")
			return nil, nil
		}
		r.logger.Error().Err(err).Str("reservation_id", id.String()).Msg("failed to query reservation")
		return nil, fmt.Errorf("failed to query reservation: %w", err)
	}

	history, err := r.loadHistory(ctx, q, []uuid.UUID{id})
	if err != nil {
		return nil, err
	}
	res.StatusHistory = history[id]

	return res, nil
}

// UpdateStatus sets the reservation status.
func (r *reservationRepository) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status model.ReservationStatus, at time.Time) error {
	query := `UPDATE reservations SET status = $2, updated_at = $3 WHERE id = $1`

	tag, err := r.q(tx).Exec(ctx, query, id, string(status), at)
	if err != nil {
		r.logger.Error().Err(err).Str("reservation_id", id.String()).Msg("failed to update reservation status")
		return fmt.Errorf("failed to update reservation status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("reservation %s vanished during status update", id)
	}
	return nil
}

// Delete removes a reservation and, by cascade, its history.
func (r *reservationRepository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM reservations WHERE id = $1`, id)
	if err != nil {
		r.logger.Error().Err(err).Str("reservation_id", id.String()).Msg("failed to delete reservation")
		return false, fmt.Errorf("failed to delete reservation: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// List returns a filtered page ordered by date and time ascending.
func (r *reservationRepository) List(ctx context.Context, filter model.ReservationFilter) ([]model.Reservation, int, error) {
	var conds []string
	var args []any

	if filter.Date != nil {
		args = append(args, *filter.Date)
		conds = append(conds, fmt.Sprintf("reservation_date = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM reservations`+where, args...).Scan(&total); err != nil {
		r.logger.Error().Err(err).Msg("failed to count reservations")
		return nil, 0, fmt.Errorf("failed to count reservations: %w", err)
	}

	offset := (filter.Page - 1) * filter.Limit
	args = append(args, filter.Limit, offset)
	query := fmt.Sprintf(`SELECT %s FROM reservations%s
		ORDER BY reservation_date ASC, reservation_time ASC, created_at ASC
		LIMIT $%d OFFSET $%d`, reservationColumns, where, len(args)-1, len(args))

	list, err := r.queryReservations(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

// ListByAccount returns the account's most recent reservations.
func (r *reservationRepository) ListByAccount(ctx context.Context, accountID string, limit int) ([]model.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations
		WHERE account_id = $1
		ORDER BY reservation_date DESC, reservation_time DESC
		LIMIT $2`

	return r.queryReservations(ctx, query, accountID, limit)
}

func (r *reservationRepository) queryReservations(ctx context.Context, query string, args ...any) ([]model.Reservation, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to query reservations")
		return nil, fmt.Errorf("failed to query reservations: %w", err)
	}
	defer rows.Close()

	list := make([]model.Reservation, 0)
	ids := make([]uuid.UUID, 0)
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			r.logger.Error().Err(err).Msg("failed to scan reservation row")
			return nil, fmt.Errorf("failed to scan reservation: %w", err)
		}
		list = append(list, *res)
		ids = append(ids, res.ID)
	}
	if err := rows.Err(); err != nil {
		r.logger.Error().Err(err).Msg("error iterating reservation rows")
		return nil, fmt.Errorf("error iterating reservations: %w", err)
	}

	history, err := r.loadHistory(ctx, r.pool, ids)
	if err != nil {
		return nil, err
	}
	for i := range list {
		list[i].StatusHistory = history[list[i].ID]
	}
	return list, nil
}

func (r *reservationRepository) loadHistory(ctx context.Context, q querier, ids []uuid.UUID) (map[uuid.UUID][]model.StatusHistoryEntry, error) {
	out := make(map[uuid.UUID][]model.StatusHistoryEntry, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	strIDs := make([]string, len(ids))
	for i, id := range ids {
		strIDs[i] = id.String()
		out[id] = []model.StatusHistoryEntry{}
	}

	query := `
		SELECT id, reservation_id, old_status, status, actor, note, changed_at
		FROM reservation_status_history
		WHERE reservation_id = ANY($1::uuid[])
		ORDER BY changed_at ASC, id ASC
	`

	rows, err := q.Query(ctx, query, strIDs)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to query status history")
		return nil, fmt.Errorf("failed to query status history: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e model.StatusHistoryEntry
		var old *string
		var status string
		if err := rows.Scan(&e.ID, &e.ReservationID, &old, &status, &e.Actor, &e.Note, &e.ChangedAt); err != nil {
			return nil, fmt.Errorf("failed to scan status history: %w", err)
		}
		e.Status = model.ReservationStatus(status)
		if old != nil {
			s := model.ReservationStatus(*old)
			e.OldStatus = &s
		}
		out[e.ReservationID] = append(out[e.ReservationID], e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating status history: %w", err)
	}
	return out, nil
}

func scanReservation(row pgx.Row) (*model.Reservation, error) {
	var res model.Reservation
	var tableSize, status string
	err := row.Scan(
		&res.ID,
		&res.ConfirmationCode,
		&res.AccountID,
		&res.Name,
		&res.Email,
		&res.Phone,
		&res.Guests,
		&res.Date,
		&res.Time,
		&tableSize,
		&res.SlotKey,
		&status,
		&res.Message,
		&res.CreatedAt,
		&res.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	res.TableSize = model.TableSize(tableSize)
	res.Status = model.ReservationStatus(status)
	return &res, nil
}
