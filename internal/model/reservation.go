package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ReservationStatus is the lifecycle state of a reservation.
type ReservationStatus string

const (
	StatusPending   ReservationStatus = "pending"
	StatusConfirmed ReservationStatus = "confirmed"
	StatusCancelled ReservationStatus = "cancelled"
	StatusCompleted ReservationStatus = "completed"
)

// ReservationStatuses lists every allowed status.
var ReservationStatuses = []ReservationStatus{StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted}

// ParseReservationStatus validates s against the closed status set.
func ParseReservationStatus(s string) (ReservationStatus, bool) {
	for _, st := range ReservationStatuses {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

// Active reports whether the status holds table capacity.
func (s ReservationStatus) Active() bool {
	return s == StatusPending || s == StatusConfirmed
}

// TableSize is the table category a party needs.
type TableSize string

const (
	TableSmall  TableSize = "small"
	TableMedium TableSize = "medium"
	TableLarge  TableSize = "large"
	TableVIP    TableSize = "vip"
)

// TableSizeFor derives the table category from the party size.
func TableSizeFor(guests int) TableSize {
	switch {
	case guests <= 2:
		return TableSmall
	case guests <= 4:
		return TableMedium
	case guests <= 8:
		return TableLarge
	default:
		return TableVIP
	}
}

// Capacity is the number of tables of this category the restaurant has.
// It is fixed and never read from requests or configuration.
func (t TableSize) Capacity() int {
	switch t {
	case TableSmall:
		return 5
	case TableMedium:
		return 4
	case TableLarge:
		return 3
	case TableVIP:
		return 2
	default:
		return 0
	}
}

// Reservation limits
const (
	MinGuests         = 1
	MaxGuests         = 20
	MaxAdvanceMonths  = 3
	SlotMinutes       = 30
	OpeningMinute     = 10 * 60
	LastSeatingMinute = 21*60 + 30
	CancelCutoff      = 2 * time.Hour
	DateLayout        = "2006-01-02"
)

// SlotKey is the unit of capacity accounting.
func SlotKey(date time.Time, hhmm string, size TableSize) string {
	return date.Format(DateLayout) + "|" + hhmm + "|" + string(size)
}

// ParseClock parses a 24h HH:MM string into minutes after midnight.
func ParseClock(hhmm string) (int, error) {
	parts := strings.Split(hhmm, ":")
	if len(parts) != 2 || len(parts[0]) < 1 || len(parts[0]) > 2 || len(parts[1]) != 2 {
		return 0, fmt.Errorf("time must be in HH:MM format")
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("time must be in HH:MM format")
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("time must be in HH:MM format")
	}
	return h*60 + m, nil
}

// FormatClock renders minutes after midnight as zero-padded HH:MM.
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// SeatingTimes returns every bookable time of day, 10:00 through 21:30.
func SeatingTimes() []string {
	times := make([]string, 0, (LastSeatingMinute-OpeningMinute)/SlotMinutes+1)
	for m := OpeningMinute; m <= LastSeatingMinute; m += SlotMinutes {
		times = append(times, FormatClock(m))
	}
	return times
}

// StatusHistoryEntry is one append-only record of a status change.
type StatusHistoryEntry struct {
	ID            uuid.UUID          `json:"id"`
	ReservationID uuid.UUID          `json:"-"`
	OldStatus     *ReservationStatus `json:"oldStatus,omitempty"`
	Status        ReservationStatus  `json:"status"`
	Actor         string             `json:"updatedBy"`
	Note          string             `json:"notes,omitempty"`
	ChangedAt     time.Time          `json:"timestamp"`
}

// Reservation is a table booking for one party.
type Reservation struct {
	ID               uuid.UUID            `json:"id"`
	ConfirmationCode string               `json:"confirmationCode"`
	AccountID        *string              `json:"accountId,omitempty"`
	Name             string               `json:"name"`
	Email            string               `json:"email"`
	Phone            string               `json:"phone"`
	Guests           int                  `json:"guests"`
	Date             time.Time            `json:"-"`
	Time             string               `json:"time"`
	TableSize        TableSize            `json:"tableSize"`
	SlotKey          string               `json:"slotKey"`
	Status           ReservationStatus    `json:"status"`
	Message          string               `json:"message"`
	StatusHistory    []StatusHistoryEntry `json:"statusHistory"`
	CreatedAt        time.Time            `json:"createdAt"`
	UpdatedAt        time.Time            `json:"updatedAt"`
}

// MarshalJSON renders the reservation date as a plain calendar date.
func (r Reservation) MarshalJSON() ([]byte, error) {
	type alias Reservation
	return json.Marshal(struct {
		alias
		Date string `json:"date"`
	}{
		alias: alias(r),
		Date:  r.Date.Format(DateLayout),
	})
}

// StartsAt returns the reservation's seating time in loc.
func (r *Reservation) StartsAt(loc *time.Location) time.Time {
	minutes, err := ParseClock(r.Time)
	if err != nil {
		minutes = 0
	}
	y, mo, d := r.Date.Date()
	return time.Date(y, mo, d, minutes/60, minutes%60, 0, 0, loc)
}

// CanBeCancelled reports whether the owner may still cancel the reservation
// themselves at instant now.
func (r *Reservation) CanBeCancelled(now time.Time, loc *time.Location) bool {
	if !r.Status.Active() {
		return false
	}
	return now.Before(r.StartsAt(loc).Add(-CancelCutoff))
}

// OwnedBy reports whether the reservation is linked to the account.
func (r *Reservation) OwnedBy(account *Account) bool {
	return account != nil && r.AccountID != nil && *r.AccountID == account.ID
}

// ReservationRequest is the payload for creating a reservation.
type ReservationRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Guests  int    `json:"guests"`
	Date    string `json:"date"`
	Time    string `json:"time"`
	Message string `json:"message,omitempty"`
}

// StatusUpdateRequest is the payload for an admin status change.
type StatusUpdateRequest struct {
	Status string `json:"status"`
	Note   string `json:"note,omitempty"`
}

// TableInfo summarises the slot a new reservation took.
type TableInfo struct {
	TableSize      TableSize `json:"tableSize"`
	AvailableSlots int       `json:"availableSlots"`
	TotalSlots     int       `json:"totalSlots"`
}

// ReservationResult is returned after a successful booking.
type ReservationResult struct {
	Reservation      *Reservation `json:"reservation"`
	ConfirmationCode string       `json:"confirmationCode"`
	TableInfo        TableInfo    `json:"tableInfo"`
}

// ReservationFilter narrows admin reservation listings.
type ReservationFilter struct {
	Date   *time.Time
	Status ReservationStatus
	Page   int
	Limit  int
}

// ReservationPage is one page of a reservation listing.
type ReservationPage struct {
	Reservations []Reservation `json:"reservations"`
	Pagination   Pagination    `json:"pagination"`
}

// Pagination describes the position of a page within a listing.
type Pagination struct {
	Current int `json:"current"`
	Pages   int `json:"pages"`
	Total   int `json:"total"`
	Limit   int `json:"limit"`
}

// NewPagination computes page metadata for a listing of total rows.
func NewPagination(page, limit, total int) Pagination {
	pages := 0
	if limit > 0 {
		pages = (total + limit - 1) / limit
	}
	return Pagination{Current: page, Pages: pages, Total: total, Limit: limit}
}
