package model

// Availability is the slot ledger's answer for one (date, time, party size).
type Availability struct {
	Available         bool      `json:"available"`
	AvailableSlots    int       `json:"availableSlots"`
	TotalSlots        int       `json:"totalSlots"`
	RequiredTableSize TableSize `json:"requiredTableSize"`
}

// NewAvailability derives availability from the number of active
// reservations already holding the slot.
func NewAvailability(size TableSize, active int) Availability {
	total := size.Capacity()
	free := total - active
	if free < 0 {
		free = 0
	}
	return Availability{
		Available:         free > 0,
		AvailableSlots:    free,
		TotalSlots:        total,
		RequiredTableSize: size,
	}
}

// SlotAvailability is the availability of one seating time on a day.
type SlotAvailability struct {
	Time string `json:"time"`
	Availability
}

// DayAvailability lists every seating time of a date for one party size.
type DayAvailability struct {
	Date              string             `json:"date"`
	Guests            int                `json:"guests"`
	RequiredTableSize TableSize          `json:"requiredTableSize"`
	Slots             []SlotAvailability `json:"slots"`
}
