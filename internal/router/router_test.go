package router

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"bistro/internal/handler"
	"bistro/internal/middleware"
	"bistro/internal/model"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

type tokenTable map[string]*model.Account

func (t tokenTable) Parse(raw string) (*model.Account, error) {
	if a, ok := t[raw]; ok {
		return a, nil
	}
	return nil, errors.New("invalid token")
}

// newTestRouter wires handlers without services: every request exercised
// here is answered before a service would be called.
func newTestRouter() http.Handler {
	logger := zerolog.Nop()
	return New(Handlers{
		Reservations: handler.NewReservationHandler(nil, logger),
		Orders:       handler.NewOrderHandler(nil, logger),
		Health:       handler.NewHealthHandler(nil, logger),
	}, Options{
		Tokens: tokenTable{
			"user":  {ID: "acc-1", Email: "diner@example.com", Role: model.RoleUser},
			"admin": {ID: "acc-2", Email: "staff@example.com", Role: model.RoleAdmin},
		},
	}, logger)
}

func TestRouter_AccessControl(t *testing.T) {
	id := uuid.New().String()

	tests := []struct {
		name           string
		method         string
		path           string
		token          string
		expectedStatus int
	}{
		{"health is public", http.MethodGet, "/health", "", http.StatusOK},
		{"availability is public", http.MethodGet, "/api/reservations/availability", "", http.StatusBadRequest},
		{"day availability is public", http.MethodGet, "/api/reservations/availability/day", "", http.StatusBadRequest},

		{"create reservation needs account", http.MethodPost, "/api/reservations", "", http.StatusUnauthorized},
		{"my reservations need account", http.MethodGet, "/api/reservations/mine", "", http.StatusUnauthorized},
		{"cancel needs account", http.MethodPost, "/api/reservations/" + id + "/cancel", "", http.StatusUnauthorized},
		{"list reservations needs admin", http.MethodGet, "/api/reservations", "user", http.StatusForbidden},
		{"status update needs admin", http.MethodPut, "/api/reservations/" + id + "/status", "user", http.StatusForbidden},
		{"delete reservation needs admin", http.MethodDelete, "/api/reservations/" + id, "user", http.StatusForbidden},

		{"create order needs account", http.MethodPost, "/api/orders", "", http.StatusUnauthorized},
		{"my orders need account", http.MethodGet, "/api/orders/mine", "", http.StatusUnauthorized},
		{"get order needs account", http.MethodGet, "/api/orders/" + id, "", http.StatusUnauthorized},
		{"list orders needs admin", http.MethodGet, "/api/orders", "user", http.StatusForbidden},
		{"delete order needs admin", http.MethodDelete, "/api/orders/" + id, "user", http.StatusForbidden},

		{"invalid token rejected", http.MethodGet, "/health", "forged", http.StatusUnauthorized},
		{"admin malformed body", http.MethodPut, "/api/reservations/" + id + "/status", "admin", http.StatusBadRequest},
		{"account bad order id", http.MethodGet, "/api/orders/not-a-uuid", "user", http.StatusBadRequest},

		{"unknown path", http.MethodGet, "/api/unknown", "", http.StatusNotFound},
		{"wrong method", http.MethodPatch, "/api/orders", "", http.StatusMethodNotAllowed},
		{"preflight", http.MethodOptions, "/api/orders", "", http.StatusNoContent},
	}

	router := newTestRouter()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))
		})
	}
}
