package handler

import (
	"net/http"
	"strings"

	"bistro/internal/middleware"
	"bistro/internal/model"
	"bistro/internal/service"

	"github.com/rs/zerolog"
)

// OrderHandler handles order-related HTTP requests.
type OrderHandler struct {
	service service.OrderService
	logger  zerolog.Logger
}

// NewOrderHandler creates a new order handler.
func NewOrderHandler(service service.OrderService, logger zerolog.Logger) *OrderHandler {
	return &OrderHandler{
		service: service,
		logger:  logger.With().Str("handler", "order").Logger(),
	}
}

// Create handles POST /api/orders requests. A resubmitted order answers 200
// with the stored order; its duplicate type is in the body and in the
// X-Duplicate-Order header.
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req model.OrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidJSON, "Invalid request body", h.logger)
		return
	}

	if strings.TrimSpace(req.UserEmail) == "" {
		if account := middleware.AccountFromContext(r.Context()); account != nil {
			req.UserEmail = account.Email
		}
	}

	result, err := h.service.CreateOrder(r.Context(), &req)
	if err != nil {
		writeDomainError(w, r, err, h.logger)
		return
	}

	if result.Duplicate {
		w.Header().Set(middleware.DuplicateOrderHeader, string(result.DuplicateType))
		writeJSON(w, http.StatusOK, result)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// GetByID handles GET /api/orders/{id} requests.
func (h *OrderHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	orderID, err := pathID(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeValidation, "Invalid order ID format", h.logger)
		return
	}

	order, err := h.service.GetByID(r.Context(), orderID, middleware.AccountFromContext(r.Context()))
	if err != nil {
		writeDomainError(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"order": order})
}

// List handles GET /api/orders requests.
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	fields := map[string]any{}
	filter := model.OrderFilter{UserEmail: strings.TrimSpace(q.Get("userEmail"))}

	var err error
	if filter.StartDate, err = queryDate(r, "startDate"); err != nil {
		fields["startDate"] = "Start date must be in YYYY-MM-DD format"
	}
	if filter.EndDate, err = queryDate(r, "endDate"); err != nil {
		fields["endDate"] = "End date must be in YYYY-MM-DD format"
	}
	if filter.EndDate != nil {
		// Inclusive of the whole end day.
		end := filter.EndDate.AddDate(0, 0, 1).Add(-1)
		filter.EndDate = &end
	}

	switch strings.ToLower(q.Get("sortOrder")) {
	case "", "desc":
	case "asc":
		filter.Ascending = true
	default:
		fields["sortOrder"] = "Sort order must be asc or desc"
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

// ListMine handles GET /api/orders/mine requests.
func (h *OrderHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	pageNum, err := queryInt(r, "page", 1)
	if err != nil {
		writeDomainError(w, r, model.NewValidationError("Invalid query parameters",
			map[string]any{"page": "Page must be a whole number"}), h.logger)
		return
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeDomainError(w, r, model.NewValidationError("Invalid query parameters",
			map[string]any{"limit": "Limit must be a whole number"}), h.logger)
		return
	}

	page, err := h.service.ListMine(r.Context(), middleware.AccountFromContext(r.Context()), pageNum, limit)
	if err != nil {
		writeDomainError(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, page)
}

// Delete handles DELETE /api/orders/{id} requests.
func (h *OrderHandler) Delete(w http.ResponseWriter, r *http.Request) {
	orderID, err := pathID(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeValidation, "Invalid order ID format", h.logger)
		return
	}

	if err := h.service.Delete(r.Context(), orderID); err != nil {
		writeDomainError(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"message": "Order deleted successfully"})
}
