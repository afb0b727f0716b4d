package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

type RouterConfig struct {
	Handlers *Handlers
	PgPool   *pgxpool.Pool
	Redis    *redis.Client
	Env      string
	Version  string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	h := cfg.Handlers

	r.Route("/appointments", func(r chi.Router) {
		r.Post("/", h.CreateAppointment)
		r.Get("/", h.ListAppointments)
		r.Get("/{id}", h.GetAppointment)
		r.Post("/{id}/confirm", h.ConfirmAppointment)
		r.Post("/{id}/cancel", h.CancelAppointment)
		r.Post("/{id}/complete", h.CompleteAppointment)
		r.Post("/{id}/reschedule", h.RescheduleAppointment)
	})

	r.Route("/care-providers/{id}/availability", func(r chi.Router) {
		r.Get("/", h.GetAvailability)
		r.Get("/windows", h.ListAvailabilityWindows)
		r.Post("/windows", h.CreateAvailabilityWindow)
		r.Delete("/windows/{windowID}", h.DeleteAvailabilityWindow)
	})

	return r
}
