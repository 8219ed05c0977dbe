package model

import (
	"time"

	"github.com/google/uuid"
)

// EventType names a lifecycle event delivered to the notification channel.
type EventType string

const (
	EventReservationCreated       EventType = "reservation_created"
	EventReservationStatusUpdated EventType = "reservation_status_updated"
)

// Notification priorities
const (
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// Event is a reservation lifecycle notification addressed to one account.
type Event struct {
	Type               EventType          `json:"type"`
	RecipientAccountID string             `json:"recipientAccountId"`
	ReservationID      uuid.UUID          `json:"reservationId"`
	ConfirmationCode   string             `json:"confirmationCode"`
	NewStatus          ReservationStatus  `json:"newStatus"`
	OldStatus          *ReservationStatus `json:"oldStatus,omitempty"`
	Title              string             `json:"title"`
	HumanMessage       string             `json:"humanMessage"`
	Priority           string             `json:"priority"`
	CreatedAt          time.Time          `json:"createdAt"`
}
