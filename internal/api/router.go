package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func Router(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Get("/v1/health", h.Health)

	r.Get("/v1/scheduler/status", h.SchedulerStatus)
	r.Post("/v1/scheduler/start", h.SchedulerStart)
	r.Post("/v1/scheduler/stop", h.SchedulerStop)

	r.Post("/v1/messages", h.CreateMessage)
	r.Get("/v1/messages", h.ListMessages)
	r.Get("/v1/messages/{id}", h.GetMessage)
	r.Patch("/v1/messages/{id}", h.EditMessage)
	r.Post("/v1/messages/{id}/cancel", h.CancelMessage)
	r.Get("/v1/messages/{id}/logs", h.MessageLogs)

	r.Get("/v1/preferences/{owner}", h.GetPreferences)
	r.Patch("/v1/preferences/{owner}", h.UpdatePreferences)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("schedbot"))
	})

	return r
}
