package http

import (
	"github.com/go-chi/chi/v5"

	"github.com/echo-agent/echochamber/internal/adapter/otel"
	"github.com/echo-agent/echochamber/internal/adapter/ws"
	"github.com/echo-agent/echochamber/internal/middleware"
)

// NewRouter builds the admin router with the standard middleware stack.
func NewRouter(h *Handlers, hub *ws.Hub, serviceName string, devMode bool) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(Logger)
	r.Use(SecurityHeaders)
	r.Use(otel.HTTPMiddleware(serviceName))

	r.Get("/health", h.Health)
	r.Get("/ws", hub.HandleWS)

	r.Route("/api/v1/instances/{id}", func(r chi.Router) {
		r.Get("/", h.GetInstance)
		r.Post("/wake", h.WakeInstance)
		r.Post("/sleep", h.SleepInstance)
		r.With(DevModeOnly(devMode)).Post("/run", h.RunInstance)
		r.Post("/reset", h.ResetInstance)
		r.Delete("/tasks", h.DeleteTask)
		r.Get("/usage", h.GetUsage)
		r.Get("/events", h.ListEvents)
	})

	return r
}
