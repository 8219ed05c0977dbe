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

const orderColumns = `
	id, order_number, client_reference_id, request_id, user_email, total_amount,
	address, payment_status, notes, created_at, updated_at`

// orderRepository implements the OrderRepository interface using PostgreSQL.
type orderRepository struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewOrderRepository creates a new PostgreSQL-backed order repository.
func NewOrderRepository(pool *pgxpool.Pool, logger zerolog.Logger) OrderRepository {
	return &orderRepository{
		pool:   pool,
		logger: logger.With().Str("repository", "order").Logger(),
	}
}

func (r *orderRepository) q(tx pgx.Tx) querier {
	if tx != nil {
		return tx
	}
	return r.pool
}

// BeginTx starts a new database transaction.
func (r *orderRepository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to begin transaction")
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return tx, nil
}

// LockKey takes a transaction-scoped advisory lock on key.
func (r *orderRepository) LockKey(ctx context.Context, tx pgx.Tx, key string) error {
	return lockKey(ctx, tx, key, r.logger)
}

// FindByClientReference retrieves the order created for a client reference.
func (r *orderRepository) FindByClientReference(ctx context.Context, tx pgx.Tx, clientReferenceID string) (*model.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE client_reference_id = $1`
	return r.findOne(ctx, r.q(tx), query, clientReferenceID)
}

// FindSimilar retrieves the newest recent order by email sharing an item name.
func (r *orderRepository) FindSimilar(ctx context.Context, tx pgx.Tx, email string, itemNames []string, since time.Time) (*model.Order, error) {
	if len(itemNames) == 0 {
		return nil, nil
	}

	query := `SELECT ` + orderColumns + ` FROM orders o
		WHERE o.user_email = $1
		  AND o.created_at >= $2
		  AND EXISTS (
			SELECT 1 FROM order_items i
			WHERE i.order_id = o.id AND i.name = ANY($3)
		  )
		ORDER BY o.created_at DESC
		LIMIT 1`

	return r.findOne(ctx, r.q(tx), query, email, since, itemNames)
}

func (r *orderRepository) findOne(ctx context.Context, q querier, query string, args ...any) (*model.Order, error) {
	order, err := scanOrder(q.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error().Err(err).Msg("failed to query order")
		return nil, fmt.Errorf("failed to query order: %w", err)
	}

	items, err := r.loadItems(ctx, q, []uuid.UUID{order.ID})
	if err != nil {
		return nil, err
	}
	order.Items = items[order.ID]
	return order, nil
}

// CreateOrder inserts a new order unless its order number is taken.
func (r *orderRepository) CreateOrder(ctx context.Context, tx pgx.Tx, order *model.Order) (bool, error) {
	query := `
		INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (order_number) DO NOTHING
	`

	tag, err := r.q(tx).Exec(ctx, query,
		order.ID, order.OrderNumber, order.ClientReferenceID, order.RequestID, order.UserEmail,
		order.TotalAmount, order.Address, string(order.PaymentStatus), order.Notes,
		order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err, ConstraintOrderClientReference) {
			r.logger.Info().
				Str("client_reference_id", order.ClientReferenceID).
				Msg("client reference already used")
		} else {
			r.logger.Error().
				Err(err).
				Str("order_id", order.ID.String()).
				Msg("failed to create order")
		}
		return false, fmt.Errorf("failed to create order: %w", err)
	}

	if tag.RowsAffected() == 0 {
		r.logger.Debug().Str("order_number", order.OrderNumber).Msg("order number already taken")
		return false, nil
	}

	r.logger.Debug().
		Str("order_id", order.ID.String()).
		Str("order_number", order.OrderNumber).
		Msg("order created successfully")

	return true, nil
}

// CreateOrderItems inserts the order's line items within the provided transaction.
func (r *orderRepository) CreateOrderItems(ctx context.Context, tx pgx.Tx, order *model.Order) error {
	if len(order.Items) == 0 {
		return nil
	}

	query := `
		INSERT INTO order_items (id, order_id, position, name, quantity, price)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	batch := &pgx.Batch{}
	for i, item := range order.Items {
		batch.Queue(query, item.ID, order.ID, i, item.Name, item.Quantity, item.Price)
	}

	var results pgx.BatchResults
	if tx != nil {
		results = tx.SendBatch(ctx, batch)
	} else {
		results = r.pool.SendBatch(ctx, batch)
	}
	defer results.Close()

	for i := range order.Items {
		if _, err := results.Exec(); err != nil {
			r.logger.Error().
				Err(err).
				Str("order_id", order.ID.String()).
				Str("item", order.Items[i].Name).
				Msg("failed to create order item")
			return fmt.Errorf("failed to create order item: %w", err)
		}
	}

	r.logger.Debug().
		Int("count", len(order.Items)).
		Msg("order items created successfully")

	return nil
}

// GetByID retrieves an order by its ID along with its items.
func (r *orderRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	order, err := r.findOne(ctx, r.pool, query, id)
	if err == nil && order == nil {
		r.logger.Debug().Str("order_id", id.String()).Msg("order not found")
	}
	return order, err
}

// List returns a filtered page of orders and the total number of matches.
func (r *orderRepository) List(ctx context.Context, filter model.OrderFilter) ([]model.Order, int, error) {
	var conds []string
	var args []any

	if filter.UserEmail != "" {
		if filter.ExactEmail {
			args = append(args, filter.UserEmail)
			conds = append(conds, fmt.Sprintf("user_email = $%d", len(args)))
		} else {
			args = append(args, "%"+escapeLike(filter.UserEmail)+"%")
			conds = append(conds, fmt.Sprintf("user_email ILIKE $%d", len(args)))
		}
	}
	if filter.StartDate != nil {
		args = append(args, *filter.StartDate)
		conds = append(conds, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.EndDate != nil {
		args = append(args, *filter.EndDate)
		conds = append(conds, fmt.Sprintf("created_at <= $%d", len(args)))
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM orders`+where, args...).Scan(&total); err != nil {
		r.logger.Error().Err(err).Msg("failed to count orders")
		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}

	direction := "DESC"
	if filter.Ascending {
		direction = "ASC"
	}

	args = append(args, filter.Limit, (filter.Page-1)*filter.Limit)
	query := fmt.Sprintf(`SELECT %s FROM orders%s ORDER BY created_at %s, id %s LIMIT $%d OFFSET $%d`,
		orderColumns, where, direction, direction, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to query orders")
		return nil, 0, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	orders := make([]model.Order, 0)
	ids := make([]uuid.UUID, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			r.logger.Error().Err(err).Msg("failed to scan order row")
			return nil, 0, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, *order)
		ids = append(ids, order.ID)
	}
	if err := rows.Err(); err != nil {
		r.logger.Error().Err(err).Msg("error iterating order rows")
		return nil, 0, fmt.Errorf("error iterating orders: %w", err)
	}

	items, err := r.loadItems(ctx, r.pool, ids)
	if err != nil {
		return nil, 0, err
	}
	for i := range orders {
		orders[i].Items = items[orders[i].ID]
	}

	return orders, total, nil
}

// Delete removes an order and, by cascade, its items.
func (r *orderRepository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		r.logger.Error().Err(err).Str("order_id", id.String()).Msg("failed to delete order")
		return false, fmt.Errorf("failed to delete order: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *orderRepository) loadItems(ctx context.Context, q querier, ids []uuid.UUID) (map[uuid.UUID][]model.OrderItem, error) {
	out := make(map[uuid.UUID][]model.OrderItem, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	strIDs := make([]string, len(ids))
	for i, id := range ids {
		strIDs[i] = id.String()
	}

	query := `
		SELECT id, order_id, name, quantity, price
		FROM order_items
		WHERE order_id = ANY($1::uuid[])
		ORDER BY order_id, position
	`

	rows, err := q.Query(ctx, query, strIDs)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to query order items")
		return nil, fmt.Errorf("failed to query order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item model.OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.Name, &item.Quantity, &item.Price); err != nil {
			r.logger.Error().Err(err).Msg("failed to scan order item row")
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		out[item.OrderID] = append(out[item.OrderID], item)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error().Err(err).Msg("error iterating order item rows")
		return nil, fmt.Errorf("error iterating order items: %w", err)
	}

	return out, nil
}

func scanOrder(row pgx.Row) (*model.Order, error) {
	var order model.Order
	var paymentStatus string
	err := row.Scan(
		&order.ID,
		&order.OrderNumber,
		&order.ClientReferenceID,
		&order.RequestID,
		&order.UserEmail,
		&order.TotalAmount,
		&order.Address,
		&paymentStatus,
		&order.Notes,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	order.PaymentStatus = model.PaymentStatus(paymentStatus)
	return &order, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
