package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

// Constraint names declared in the schema.
const (
	ConstraintOrderClientReference = "orders_client_reference_id_key"
	ConstraintOrderNumber          = "orders_order_number_key"
	ConstraintConfirmationCode     = "reservations_confirmation_code_key"
)

// IsUniqueViolation reports whether err is a unique violation of the named
// constraint. An empty constraint matches any unique violation.
func IsUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}
