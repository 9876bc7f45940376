package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/vytor/lingoflash/internal/models"
)

type startSessionRequest struct {
	ContentRef string `json:"content_ref"`
	Level      string `json:"level"`
}

type advanceSessionRequest struct {
	Text string `json:"text"`
}

type advanceSessionResponse struct {
	Session   *models.Session `json:"session"`
	Reply     models.Turn     `json:"reply"`
	ShouldEnd bool            `json:"should_end"`
}

type correctionsResponse struct {
	SessionID   string              `json:"session_id"`
	Corrections []models.Correction `json:"corrections"`
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleError(w, r, err)
		return
	}

	session, err := s.SessionService.StartSession(r.Context(), actorFromContext(r.Context()), req.ContentRef, req.Level)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, session)
}

func (s *Server) handleAdvanceSession(w http.ResponseWriter, r *http.Request) {
	var req advanceSessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleError(w, r, err)
		return
	}

	result, err := s.SessionService.AdvanceSession(r.Context(), actorFromContext(r.Context()), chi.URLParam(r, "id"), req.Text)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, advanceSessionResponse{
		Session:   result.Session,
		Reply:     result.Reply,
		ShouldEnd: result.ShouldEnd,
	})
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.SessionService.EndSession(r.Context(), actorFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, session)
}

func (s *Server) handleAnalyzeSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	corrections, err := s.SessionService.AnalyzeSession(r.Context(), actorFromContext(r.Context()), id)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, correctionsResponse{SessionID: id, Corrections: corrections})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.SessionService.GetSession(r.Context(), actorFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, session)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r)
	if err != nil {
		handleError(w, r, err)
		return
	}
	sessions, err := s.SessionService.ListSessions(r.Context(), actorFromContext(r.Context()), limit)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"sessions": sessions})
}
