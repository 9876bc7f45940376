package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(recoveryMiddleware)
	r.Use(loggingMiddleware)
	r.Use(securityHeadersMiddleware)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)

	r.Route("/api", func(r chi.Router) {
		r.Use(actorMiddleware)

		r.Get("/sessions", s.handleListSessions)
		r.Post("/sessions", s.handleStartSession)
		r.Get("/sessions/{id}", s.handleGetSession)
		r.Post("/sessions/{id}/turns", s.handleAdvanceSession)
		r.Post("/sessions/{id}/end", s.handleEndSession)
		r.Post("/sessions/{id}/analysis", s.handleAnalyzeSession)

		r.Post("/contents", s.handleAddContent)
		r.Get("/contents/{ref}/overview", s.handleContentOverview)

		r.Post("/cards", s.handleCreateCard)
		r.Put("/cards/{id}", s.handleUpdateCard)
		r.Get("/items/due", s.handleDueItems)
		r.Post("/items/{id}/reviews", s.handleRecordReview)
		r.Get("/items/{id}/reviews", s.handleReviewHistory)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		handleError(w, r, notFoundRoute(r))
	})
	return r
}
