package router

import (
	"net/http"

	"bistro/internal/config"
	"bistro/internal/handler"
	"bistro/internal/middleware"

	"github.com/rs/zerolog"
)

// Handlers groups the HTTP handlers the router dispatches to.
type Handlers struct {
	Reservations *handler.ReservationHandler
	Orders       *handler.OrderHandler
	Health       *handler.HealthHandler
}

// Options carries the cross-cutting dependencies of the router.
type Options struct {
	Tokens     middleware.TokenParser
	Limiter    *middleware.RateLimiter
	RateLimits config.RateLimitConfig
	CORSOrigin string
}

type chain []func(http.Handler) http.Handler

func (c chain) then(h http.HandlerFunc) http.Handler {
	var out http.Handler = h
	for i := len(c) - 1; i >= 0; i-- {
		out = c[i](out)
	}
	return out
}

// New creates a new HTTP router with all routes and middleware configured.
func New(h Handlers, opts Options, logger zerolog.Logger) http.Handler {
	mux := http.NewServeMux()

	limiter := opts.Limiter
	if limiter == nil {
		limiter = middleware.NewRateLimiter(nil, config.RateLimitConfig{}, logger)
	}
	availabilityLimit := limiter.Limit("availability", opts.RateLimits.Availability, middleware.ByIP)
	reservationLimit := limiter.Limit("reservations", opts.RateLimits.Reservations, middleware.ByAccount)
	orderLimit := limiter.Limit("orders", opts.RateLimits.Orders, middleware.ByAccount)

	account := chain{middleware.RequireAccount}
	admin := chain{middleware.RequireAdmin}

	// Health check endpoint (no authentication required)
	mux.HandleFunc("GET /health", h.Health.Health)

	// Reservations
	mux.Handle("GET /api/reservations/availability",
		chain{availabilityLimit}.then(h.Reservations.CheckAvailability))
	mux.Handle("GET /api/reservations/availability/day",
		chain{availabilityLimit}.then(h.Reservations.DayAvailability))
	mux.Handle("POST /api/reservations",
		chain{middleware.RequireAccount, reservationLimit}.then(h.Reservations.Create))
	mux.Handle("GET /api/reservations/mine", account.then(h.Reservations.ListMine))
	mux.Handle("GET /api/reservations", admin.then(h.Reservations.List))
	mux.Handle("PUT /api/reservations/{id}/status", admin.then(h.Reservations.UpdateStatus))
	mux.Handle("POST /api/reservations/{id}/cancel", account.then(h.Reservations.Cancel))
	mux.Handle("DELETE /api/reservations/{id}", admin.then(h.Reservations.Delete))

	// Orders
	mux.Handle("POST /api/orders",
		chain{middleware.RequireAccount, orderLimit}.then(h.Orders.Create))
	mux.Handle("GET /api/orders/mine", account.then(h.Orders.ListMine))
	mux.Handle("GET /api/orders/{id}", account.then(h.Orders.GetByID))
	mux.Handle("GET /api/orders", admin.then(h.Orders.List))
	mux.Handle("DELETE /api/orders/{id}", admin.then(h.Orders.Delete))

	// Apply middleware in order: RequestID -> Recovery -> Logging -> CORS -> Authenticate
	var handler http.Handler = mux
	handler = middleware.Authenticate(opts.Tokens, logger)(handler)
	handler = middleware.CORS(opts.CORSOrigin)(handler)
	handler = middleware.Logging(logger)(handler)
	handler = middleware.Recovery(logger)(handler)
	handler = middleware.RequestID(handler)

	return handler
}
