package services

import (
	"context"

	"github.com/vytor/lingoflash/internal/analysis"
	"github.com/vytor/lingoflash/internal/dialog"
	"github.com/vytor/lingoflash/internal/errors"
	"github.com/vytor/lingoflash/internal/logger"
	"github.com/vytor/lingoflash/internal/models"
	"github.com/vytor/lingoflash/internal/repository"
)

// AnalysisService reviews finished sessions and stores their corrections
type AnalysisService interface {
	AnalyzeSession(ctx context.Context, sessionID string) ([]models.Correction, error)
}

type analysisService struct {
	engine      *dialog.Engine
	analyzer    *analysis.Analyzer
	sessionRepo repository.SessionRepository
}

// NewAnalysisService creates a new AnalysisService
func NewAnalysisService(engine *dialog.Engine, analyzer *analysis.Analyzer, sessionRepo repository.SessionRepository) AnalysisService {
	return &analysisService{
		engine:      engine,
		analyzer:    analyzer,
		sessionRepo: sessionRepo,
	}
}

// AnalyzeSession runs the analyzer and replaces any stored corrections. Once
// stored, the session is evicted from the engine since it can no longer change.
func (s *analysisService) AnalyzeSession(ctx context.Context, sessionID string) ([]models.Correction, error) {
	log := logger.FromContext(ctx).WithPrefix("analysis_service")
	log.Debug("analyzing session: id=%s", sessionID)

	session, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.Ended() {
		return nil, errors.NewSessionNotEndedError(sessionID)
	}

	corrections, err := s.analyzer.Analyze(ctx, session)
	if err != nil {
		return nil, err
	}

	if err := s.sessionRepo.ReplaceCorrections(ctx, sessionID, corrections); err != nil {
		log.Error("failed to store corrections: %v", err)
		return nil, errors.NewInternalError(err)
	}
	s.engine.Forget(sessionID)

	log.Info("session analyzed: id=%s, corrections=%d", sessionID, len(corrections))
	return corrections, nil
}

func (s *analysisService) load(ctx context.Context, sessionID string) (*models.Session, error) {
	if s.engine.Loaded(sessionID) {
		return s.engine.Get(sessionID)
	}
	session, err := s.sessionRepo.Get(ctx, sessionID)
	if err != nil {
		logger.FromContext(ctx).Error("failed to load session %s: %v", sessionID, err)
		return nil, errors.NewInternalError(err)
	}
	if session == nil {
		return nil, errors.NewNotFoundError("session", sessionID)
	}
	return session, nil
}
