/**
 * @description
 * This file sets up the HTTP router for the admin-service. It defines the console API
 * endpoints, associates them with their handlers, and applies the middleware stack:
 * request logging, panic recovery, timeouts, CORS and the session gate.
 *
 * @dependencies
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 * - github.com/go-chi/cors: CORS handling for the browser console.
 * - github.com/prometheus/client_golang: Exposes /metrics.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// AdminRoutes creates and returns the router for the admin console API.
func AdminRoutes(h *AdminHandlers, registry *prometheus.Registry, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"https://*", "http://*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})
	if registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	r.Post("/session/login", h.LoginHandler)

	// Everything else needs the open session's bearer token.
	r.Group(func(r chi.Router) {
		r.Use(SessionAuthMiddleware(h.sessions))

		r.Get("/session", h.SessionStatusHandler)
		r.Post("/session/logout", h.LogoutHandler)
		r.Put("/session/navigation", h.NavigationHandler)

		r.Get("/dashboard", h.DashboardHandler)
		r.Get("/users", h.ListUsersHandler)
		r.Get("/users/{id}/transactions", h.UserHistoryHandler)
		r.Post("/users/{id}/adjustments", h.AdjustUserBalanceHandler)
		r.Get("/agents", h.ListAgentsHandler)
		r.Post("/agents/{id}/bonus", h.AgentBonusHandler)
		r.Get("/transactions", h.ListTransactionsHandler)
		r.Get("/deposit-methods", h.ListDepositMethodsHandler)
		r.Get("/settings", h.SettingsHandler)
		r.Get("/reports/monthly", h.MonthlyReportHandler)

		r.Post("/withdrawals/{id}/{action}", h.WithdrawDecisionHandler)
		r.Post("/deposits/{id}/{action}", h.DepositDecisionHandler)
	})

	return r
}
