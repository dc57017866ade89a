package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"studytrack/internal/handlers"
	"studytrack/internal/middleware"
)

func New(
	jwtAuth *middleware.JWTAuth,
	limiter *middleware.CommandLimiter,
	studySessionHandler *handlers.StudySessionHandler,
	wsHandler http.HandlerFunc,
) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {

		// ──── Study Session Routes ────
		r.Route("/study-sessions", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Get("/active", studySessionHandler.Active)

			r.Group(func(r chi.Router) {
				r.Use(limiter.Middleware)
				r.Post("/start", studySessionHandler.Start)
				r.Post("/pause", studySessionHandler.Pause)
				r.Post("/resume", studySessionHandler.Resume)
				r.Post("/stop", studySessionHandler.Stop)
			})
		})

		// ──── Milestone Routes ────
		r.Route("/milestones", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Put("/{id}/progress", studySessionHandler.SetMilestoneProgress)
		})

		// ──── WebSocket ────
		r.Get("/ws", wsHandler)
	})

	return r
}
