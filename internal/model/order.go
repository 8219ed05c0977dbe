package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentStatus is the settlement state of an order.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

// DuplicateType says how a resubmitted order matched an existing one.
type DuplicateType string

const (
	DuplicateExact   DuplicateType = "exact_duplicate"
	DuplicateSimilar DuplicateType = "similar_order"
)

// Order limits
const (
	MinAddressLength = 10
	MaxAddressLength = 500
	MaxItemNameLen   = 100
	MaxNotesLength   = 500
)

// TotalTolerance is the largest accepted gap between a submitted total and
// the sum of its line items.
var TotalTolerance = decimal.New(1, -2)

// Order represents a customer order.
type Order struct {
	ID                uuid.UUID       `json:"id" db:"id"`
	OrderNumber       string          `json:"orderNumber" db:"order_number"`
	ClientReferenceID string          `json:"clientReferenceId" db:"client_reference_id"`
	RequestID         string          `json:"requestId" db:"request_id"`
	UserEmail         string          `json:"userEmail" db:"user_email"`
	Items             []OrderItem     `json:"items"`
	TotalAmount       decimal.Decimal `json:"totalAmount" db:"total_amount"`
	Address           string          `json:"address" db:"address"`
	PaymentStatus     PaymentStatus   `json:"paymentStatus" db:"payment_status"`
	Notes             string          `json:"notes,omitempty" db:"notes"`
	CreatedAt         time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt         time.Time       `json:"updatedAt" db:"updated_at"`
}

// OrderItem represents a line item in an order.
type OrderItem struct {
	ID       uuid.UUID       `json:"-" db:"id"`
	OrderID  uuid.UUID       `json:"-" db:"order_id"`
	Name     string          `json:"name" db:"name"`
	Quantity int             `json:"quantity" db:"quantity"`
	Price    decimal.Decimal `json:"price" db:"price"`
}

// OrderRequest represents the request payload for creating an order.
type OrderRequest struct {
	Items             []OrderItemRequest `json:"items"`
	TotalAmount       *decimal.Decimal   `json:"totalAmount"`
	Address           string             `json:"address"`
	UserEmail         string             `json:"userEmail"`
	ClientReferenceID string             `json:"clientReferenceId"`
	RequestID         string             `json:"requestId"`
	Notes             string             `json:"notes,omitempty"`
}

// OrderItemRequest represents a single item in an order request. Quantity is
// decoded as a number so fractional input can be reported rather than
// rejected by the decoder.
type OrderItemRequest struct {
	Name     string           `json:"name"`
	Quantity float64          `json:"quantity"`
	Price    *decimal.Decimal `json:"price"`
}

// ComputeTotal sums price*quantity over items.
func ComputeTotal(items []OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return total
}

// TotalMatches reports whether provided is within one cent of calculated.
func TotalMatches(calculated, provided decimal.Decimal) bool {
	return calculated.Sub(provided).Abs().LessThanOrEqual(TotalTolerance)
}

// ItemNames returns the names of the order's items.
func (o *Order) ItemNames() []string {
	names := make([]string, 0, len(o.Items))
	for _, it := range o.Items {
		names = append(names, it.Name)
	}
	return names
}

// OrderResult is the outcome of an order submission. A resolved duplicate is
// a success carrying the previously stored order.
type OrderResult struct {
	Order         *Order        `json:"order"`
	Duplicate     bool          `json:"duplicate"`
	DuplicateType DuplicateType `json:"duplicateType,omitempty"`
}

// OrderFilter narrows order listings.
type OrderFilter struct {
	UserEmail  string
	ExactEmail bool
	StartDate  *time.Time
	EndDate    *time.Time
	Page       int
	Limit      int
	Ascending  bool
}

// OrderPage is one page of an order listing.
type OrderPage struct {
	Orders     []Order    `json:"orders"`
	Pagination Pagination `json:"pagination"`
}
