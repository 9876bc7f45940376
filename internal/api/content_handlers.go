package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/vytor/lingoflash/internal/models"
)

func (s *Server) handleAddContent(w http.ResponseWriter, r *http.Request) {
	var content models.Content
	if err := decodeJSON(w, r, &content); err != nil {
		handleError(w, r, err)
		return
	}

	stored, err := s.ContentService.AddContent(r.Context(), content)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, stored)
}

func (s *Server) handleContentOverview(w http.ResponseWriter, r *http.Request) {
	overview, err := s.ContentService.Overview(r.Context(), actorFromContext(r.Context()), chi.URLParam(r, "ref"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, overview)
}
