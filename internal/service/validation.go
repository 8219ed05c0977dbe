package service

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"bistro/internal/menu"
	"bistro/internal/model"

	"github.com/shopspring/decimal"
)

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern = regexp.MustCompile(`^[+]?[\d\s\-()]{10,15}$`)
)

// Reservation field limits
const (
	minNameLength    = 2
	maxNameLength    = 50
	maxMessageLength = 500
)

// reservationInput is a validated, normalised reservation request.
type reservationInput struct {
	Name    string
	Email   string
	Phone   string
	Guests  int
	Date    time.Time
	Time    string
	Message string
}

// calendarDay returns the date t falls on in loc, as midnight UTC.
func calendarDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func parseDate(s string) (time.Time, error) {
	d, err := time.Parse(model.DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("date must be in YYYY-MM-DD format")
	}
	return d, nil
}

// validateSeatingTime checks HH:MM against the opening hours and the
// half-hour grid, returning the canonical zero-padded form.
func validateSeatingTime(hhmm string) (string, error) {
	minutes, err := model.ParseClock(strings.TrimSpace(hhmm))
	if err != nil {
		return "", err
	}
	if minutes < model.OpeningMinute || minutes > model.LastSeatingMinute {
		return "", fmt.Errorf("time must be between %s and %s",
			model.FormatClock(model.OpeningMinute), model.FormatClock(model.LastSeatingMinute))
	}
	if minutes%model.SlotMinutes != 0 {
		return "", fmt.Errorf("time must be on a %d-minute boundary", model.SlotMinutes)
	}
	return model.FormatClock(minutes), nil
}

func validateGuests(guests int) error {
	if guests < model.MinGuests || guests > model.MaxGuests {
		return fmt.Errorf("guests must be between %d and %d", model.MinGuests, model.MaxGuests)
	}
	return nil
}

// validateReservation checks every field before any storage is touched and
// reports all failures at once.
func validateReservation(req *model.ReservationRequest, now time.Time, loc *time.Location) (*reservationInput, error) {
	if req == nil {
		return nil, model.NewValidationError("Reservation request is required", nil)
	}

	fields := map[string]any{}
	in := &reservationInput{
		Name:    strings.TrimSpace(req.Name),
		Email:   strings.ToLower(strings.TrimSpace(req.Email)),
		Phone:   strings.TrimSpace(req.Phone),
		Guests:  req.Guests,
		Message: strings.TrimSpace(req.Message),
	}

	switch n := utf8.RuneCountInString(in.Name); {
	case n == 0:
		fields["name"] = "Name is required"
	case n < minNameLength || n > maxNameLength:
		fields["name"] = fmt.Sprintf("Name must be between %d and %d characters", minNameLength, maxNameLength)
	}

	if in.Email == "" {
		fields["email"] = "Email is required"
	} else if !emailPattern.MatchString(in.Email) {
		fields["email"] = "Please provide a valid email"
	}

	if in.Phone == "" {
		fields["phone"] = "Phone is required"
	} else if !phonePattern.MatchString(strings.Join(strings.Fields(in.Phone), "")) {
		fields["phone"] = "Please provide a valid phone number"
	}

	if err := validateGuests(in.Guests); err != nil {
		fields["guests"] = err.Error()
	}

	if strings.TrimSpace(req.Date) == "" {
		fields["date"] = "Date is required"
	} else if date, err := parseDate(req.Date); err != nil {
		fields["date"] = err.Error()
	} else {
		today := calendarDay(now, loc)
		switch {
		case date.Before(today):
			fields["date"] = "Reservation date cannot be in the past"
		case date.After(today.AddDate(0, model.MaxAdvanceMonths, 0)):
			fields["date"] = fmt.Sprintf("Reservations can only be made up to %d months in advance", model.MaxAdvanceMonths)
		default:
			in.Date = date
		}
	}

	if strings.TrimSpace(req.Time) == "" {
		fields["time"] = "Time is required"
	} else if hhmm, err := validateSeatingTime(req.Time); err != nil {
		fields["time"] = err.Error()
	} else {
		in.Time = hhmm
	}

	if utf8.RuneCountInString(in.Message) > maxMessageLength {
		fields["message"] = fmt.Sprintf("Message cannot exceed %d characters", maxMessageLength)
	}

	if len(fields) > 0 {
		return nil, model.NewValidationError("Validation failed", fields)
	}
	return in, nil
}

// buildOrder validates an order request and returns the normalised order
// without identifiers. Money is rounded to cents before it is checked, so the
// stored prices and total are the ones that were validated.
func buildOrder(req *model.OrderRequest, catalog menu.Catalog) (*model.Order, error) {
	if req == nil {
		return nil, model.NewValidationError("Order request is required", nil)
	}

	fields := map[string]any{}

	if len(req.Items) == 0 {
		fields["items"] = "Items must be a non-empty array"
	}
	var total decimal.Decimal
	if req.TotalAmount != nil {
		total = req.TotalAmount.Round(2)
	}
	if !total.IsPositive() {
		fields["totalAmount"] = "Total amount must be positive"
	}

	address := strings.TrimSpace(req.Address)
	switch n := utf8.RuneCountInString(address); {
	case n < model.MinAddressLength:
		fields["address"] = fmt.Sprintf("Address must be at least %d characters", model.MinAddressLength)
	case n > model.MaxAddressLength:
		fields["address"] = fmt.Sprintf("Address cannot exceed %d characters", model.MaxAddressLength)
	}

	email := strings.ToLower(strings.TrimSpace(req.UserEmail))
	if !emailPattern.MatchString(email) {
		fields["userEmail"] = "Valid email is required"
	}

	ref := strings.TrimSpace(req.ClientReferenceID)
	if ref == "" {
		fields["clientReferenceId"] = "Client reference ID is required"
	}
	requestID := strings.TrimSpace(req.RequestID)
	if requestID == "" {
		fields["requestId"] = "Request ID is required"
	}

	notes := strings.TrimSpace(req.Notes)
	if utf8.RuneCountInString(notes) > model.MaxNotesLength {
		fields["notes"] = fmt.Sprintf("Notes cannot exceed %d characters", model.MaxNotesLength)
	}

	if len(fields) > 0 {
		return nil, model.NewValidationError("All fields are required and must be valid", fields)
	}

	calculated := decimal.Zero
	prices := make([]decimal.Decimal, len(req.Items))
	for i, item := range req.Items {
		name := strings.TrimSpace(item.Name)
		switch {
		case name == "":
			fields[model.FieldError("items", i, "name")] = "Item name is required"
		case utf8.RuneCountInString(name) > model.MaxItemNameLen:
			fields[model.FieldError("items", i, "name")] = fmt.Sprintf("Item name cannot exceed %d characters", model.MaxItemNameLen)
		case catalog != nil && !catalog.Contains(name):
			fields[model.FieldError("items", i, "name")] = "Item is not on the menu"
		}
		if item.Quantity < 1 || item.Quantity != math.Trunc(item.Quantity) || item.Quantity > math.MaxInt32 {
			fields[model.FieldError("items", i, "quantity")] = "Quantity must be a positive integer"
		}
		if item.Price != nil {
			prices[i] = item.Price.Round(2)
		}
		if !prices[i].IsPositive() {
			fields[model.FieldError("items", i, "price")] = "Price must be at least 0.01"
			continue
		}
		calculated = calculated.Add(prices[i].Mul(decimal.NewFromFloat(item.Quantity)))
	}
	if len(fields) > 0 {
		return nil, model.NewValidationError("Invalid item data", fields)
	}

	if !model.TotalMatches(calculated, total) {
		return nil, model.NewValidationError("Total amount mismatch", map[string]any{
			"calculated": calculated,
			"provided":   total,
			"difference": calculated.Sub(total).Abs(),
		})
	}

	order := &model.Order{
		ClientReferenceID: ref,
		RequestID:         requestID,
		UserEmail:         email,
		Items:             make([]model.OrderItem, len(req.Items)),
		TotalAmount:       total,
		Address:           address,
		PaymentStatus:     model.PaymentPending,
		Notes:             notes,
	}
	for i, item := range req.Items {
		order.Items[i] = model.OrderItem{
			Name:     strings.TrimSpace(item.Name),
			Quantity: int(math.Floor(item.Quantity)),
			Price:    prices[i],
		}
	}
	return order, nil
}

// normalisePage applies listing defaults and caps.
func normalisePage(page, limit, defaultLimit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	return page, limit
}

// Listing limits
const (
	defaultPageLimit = 50
	maxPageLimit     = 100
	mineLimit        = 20
)
