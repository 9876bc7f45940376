package api

import (
	"net/http"

	"github.com/vytor/lingoflash/internal/errors"
	"github.com/vytor/lingoflash/internal/logger"
	"github.com/vytor/lingoflash/internal/models"
)

type reviewRequest struct {
	Rating      *models.Rating `json:"rating"`
	TimeSeconds float64        `json:"time_seconds"`
}

func (s *Server) handleCreateCard(w http.ResponseWriter, r *http.Request) {
	var card models.Card
	if err := decodeJSON(w, r, &card); err != nil {
		handleError(w, r, err)
		return
	}

	created, err := s.SchedulingService.CreateCard(r.Context(), actorFromContext(r.Context()), card)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, created)
}

func (s *Server) handleUpdateCard(w http.ResponseWriter, r *http.Request) {
	id, err := int64Param(r, "id")
	if err != nil {
		handleError(w, r, err)
		return
	}
	var card models.Card
	if err := decodeJSON(w, r, &card); err != nil {
		handleError(w, r, err)
		return
	}
	card.ID = id

	updated, err := s.SchedulingService.UpdateCard(r.Context(), actorFromContext(r.Context()), card)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, updated)
}

func (s *Server) handleRecordReview(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	id, err := int64Param(r, "id")
	if err != nil {
		handleError(w, r, err)
		return
	}
	var req reviewRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleError(w, r, err)
		return
	}
	if req.Rating == nil {
		handleError(w, r, errors.NewValidationError("rating", "is required"))
		return
	}
	log.Debug("recording review: item=%d, rating=%s", id, *req.Rating)

	outcome, err := s.SchedulingService.RecordReview(r.Context(), actorFromContext(r.Context()), id, *req.Rating, req.TimeSeconds)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, outcome)
}

func (s *Server) handleDueItems(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r)
	if err != nil {
		handleError(w, r, err)
		return
	}
	items, err := s.SchedulingService.ListDueItems(r.Context(), actorFromContext(r.Context()), limit)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) handleReviewHistory(w http.ResponseWriter, r *http.Request) {
	id, err := int64Param(r, "id")
	if err != nil {
		handleError(w, r, err)
		return
	}
	history, err := s.SchedulingService.ReviewHistory(r.Context(), actorFromContext(r.Context()), id)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"reviews": history})
}
