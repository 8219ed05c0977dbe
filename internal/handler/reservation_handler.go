package handler

import (
	"net/http"

	"bistro/internal/middleware"
	"bistro/internal/model"
	"bistro/internal/service"

	"github.com/rs/zerolog"
)

// ReservationHandler handles reservation-related HTTP requests.
type ReservationHandler struct {
	service service.ReservationService
	logger  zerolog.Logger
}

// NewReservationHandler creates a new reservation handler.
func NewReservationHandler(service service.ReservationService, logger zerolog.Logger) *ReservationHandler {
	return &ReservationHandler{
		service: service,
		logger:  logger.With().Str("handler", "reservation").Logger(),
	}
}

// CheckAvailability handles GET /api/reservations/availability requests.
func (h *ReservationHandler) CheckAvailability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	missing := map[string]any{}
	for _, name := range []string{"date", "time", "guests"} {
		if q.Get(name) == "" {
			missing[name] = name + " is required"
		}
	}
	if len(missing) > 0 {
		writeDomainError(w, r, model.NewValidationError("Date, time, and guests are required", missing), h.logger)
		return
	}

	guests, err := queryInt(r, "guests", 0)
	if err != nil {
		writeDomainError(w, r, model.NewValidationError("Invalid availability query",
			map[string]any{"guests": "Guests must be a whole number"}), h.logger)
		return
	}

	avail, err := h.service.CheckAvailability(r.Context(), q.Get("date"), q.Get("time"), guests)
	if err != nil {
		writeDomainError(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, avail)
}

// DayAvailability handles GET /api/reservations/availability/day requests.
func (h *ReservationHandler) DayAvailability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("date") == "" || q.Get("guests") == "" {
		writeDomainError(w, r, model.NewValidationError("Date and guests are required", nil), h.logger)
		return
	}

	guests, err := queryInt(r, "guests", 0)
	if err != nil {
		writeDomainError(w, r, model.NewValidationError("Invalid availability query",
			map[string]any{"guests": "Guests must be a whole number"}), h.logger)
		return
	}

	day, err := h.service.DayAvailability(r.Context(), q.Get("date"), guests)
	if err != nil {
		writeDomainError(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, day)
}

// Create handles POST /api/reservations requests.
func (h *ReservationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req model.ReservationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidJSON, "Invalid request body", h.logger)
		return
	}

	result, err := h.service.Create(r.Context(), &req, middleware.AccountFromContext(r.Context()))
	if err != nil {
		writeDomainError(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

// ListMine handles GET /api/reservations/mine requests.
func (h *ReservationHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListMine(r.Context(), middleware.AccountFromContext(r.Context()))
	if err != nil {
		writeDomainError(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"reservations": list})
}

// List handles GET /api/reservations requests.
func (h *ReservationHandler) List(w http.ResponseWriter, r *http.Request) {
	fields := map[string]any{}
	var filter model.ReservationFilter

	date, err := queryDate(r, "date")
	if err != nil {
		fields["date"] = "Date must be in YYYY-MM-DD format"
	}
	filter.Date = date

	if raw := r.URL.Query().Get("status"); raw != "" {
		status, ok := model.ParseReservationStatus(raw)
		if !ok {
			fields["status"] = "Invalid status"
		}
		filter.Status = status
	}

	if filter.Page, err = queryInt(r, "page", 1); err != nil {
		fields["page"] = "Page must be a whole number"
	}
	if filter.Limit, err = queryInt(r, "limit", 0); err != nil {
		fields["limit"] = "Limit must be a whole number"
	}

	if len(fields) > 0 {
		writeDomainError(w, r, model.NewValidationError("Invalid query parameters", fields), h.logger)
		return
	}

	page, err := h.service.List(r.Context(), filter)
	if err != nil {
		writeDomainError(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, page)
}

// UpdateStatus handles PUT /api/reservations/{id}/status requests.
func (h *ReservationHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeDomainError(w, r, model.ErrReservationNotFound, h.logger)
		return
	}

	var req model.StatusUpdateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidJSON, "Invalid request body", h.logger)
		return
	}

	res, err := h.service.UpdateStatus(r.Context(), id, &req, middleware.AccountFromContext(r.Context()))
	if err != nil {
		writeDomainError(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":     "Reservation status updated successfully",
		"reservation": res,
	})
}

// Cancel handles POST /api/reservations/{id}/cancel requests.
func (h *ReservationHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeDomainError(w, r, model.ErrReservationNotFound, h.logger)
		return
	}

	res, err := h.service.Cancel(r.Context(), id, middleware.AccountFromContext(r.Context()))
	if err != nil {
		writeDomainError(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":     "Reservation cancelled successfully",
		"reservation": res,
	})
}

// Delete handles DELETE /api/reservations/{id} requests.
func (h *ReservationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeDomainError(w, r, model.ErrReservationNotFound, h.logger)
		return
	}

	if err := h.service.Delete(r.Context(), id); err != nil {
		writeDomainError(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"message": "Reservation deleted successfully"})
}
