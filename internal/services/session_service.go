package services

import (
	"context"
	stderrors "errors"

	"github.com/vytor/lingoflash/internal/analysis"
	"github.com/vytor/lingoflash/internal/dialog"
	"github.com/vytor/lingoflash/internal/errors"
	"github.com/vytor/lingoflash/internal/jobs"
	"github.com/vytor/lingoflash/internal/logger"
	"github.com/vytor/lingoflash/internal/models"
	"github.com/vytor/lingoflash/internal/repository"
)

const defaultSessionListLimit = 20

// SessionService runs dialog sessions on behalf of an actor. It owns the
// persistence boundary: sessions are restored into the engine on demand and
// saved after every change.
type SessionService interface {
	StartSession(ctx context.Context, actorKey, contentRef, level string) (*models.Session, error)
	AdvanceSession(ctx context.Context, actorKey, sessionID, text string) (*dialog.AdvanceResult, error)
	EndSession(ctx context.Context, actorKey, sessionID string) (*models.Session, error)
	AnalyzeSession(ctx context.Context, actorKey, sessionID string) ([]models.Correction, error)
	GetSession(ctx context.Context, actorKey, sessionID string) (*models.Session, error)
	ListSessions(ctx context.Context, actorKey string, limit int) ([]models.Session, error)
}

type sessionService struct {
	engine      *dialog.Engine
	sessionRepo repository.SessionRepository
	analysis    AnalysisService
	queue       jobs.JobQueue
	limiter     RateLimiter
}

// NewSessionService creates a new SessionService. queue may be nil, in which
// case sessions are only analyzed on request.
func NewSessionService(
	engine *dialog.Engine,
	sessionRepo repository.SessionRepository,
	analysis AnalysisService,
	queue jobs.JobQueue,
	limiter RateLimiter,
) SessionService {
	return &sessionService{
		engine:      engine,
		sessionRepo: sessionRepo,
		analysis:    analysis,
		queue:       queue,
		limiter:     limiter,
	}
}

func (s *sessionService) StartSession(ctx context.Context, actorKey, contentRef, level string) (*models.Session, error) {
	log := logger.FromContext(ctx).WithPrefix("session_service")
	log.Debug("starting session: actor=%s, content=%s, level=%s", actorKey, contentRef, level)

	if err := s.allow(ctx, actorKey); err != nil {
		return nil, err
	}

	session, err := s.engine.Start(ctx, dialog.StartRequest{ActorKey: actorKey, ContentRef: contentRef, Level: level})
	if err != nil {
		return nil, err
	}
	if err := s.sessionRepo.Save(ctx, *session); err != nil {
		log.Error("failed to save session %s: %v", session.ID, err)
		s.engine.Forget(session.ID)
		return nil, errors.NewInternalError(err)
	}
	if session.Ended() {
		s.enqueueAnalysis(ctx, session.ID)
	}
	return session, nil
}

func (s *sessionService) AdvanceSession(ctx context.Context, actorKey, sessionID, text string) (*dialog.AdvanceResult, error) {
	log := logger.FromContext(ctx).WithPrefix("session_service")
	log.Debug("advancing session: id=%s", sessionID)

	session, err := s.live(ctx, actorKey, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Ended() {
		return nil, errors.NewSessionEndedError(sessionID)
	}
	if err := s.allow(ctx, actorKey); err != nil {
		return nil, err
	}

	result, err := s.engine.Advance(ctx, sessionID, text)
	if err != nil {
		return nil, err
	}
	if err := s.sessionRepo.Save(ctx, *result.Session); err != nil {
		log.Error("failed to save session %s: %v", sessionID, err)
		return nil, errors.NewInternalError(err)
	}
	if result.ShouldEnd {
		s.enqueueAnalysis(ctx, sessionID)
	}
	return result, nil
}

// EndSession is idempotent. Analysis is queued only on the transition.
func (s *sessionService) EndSession(ctx context.Context, actorKey, sessionID string) (*models.Session, error) {
	log := logger.FromContext(ctx).WithPrefix("session_service")
	log.Debug("ending session: id=%s", sessionID)

	session, err := s.live(ctx, actorKey, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Ended() {
		return session, nil
	}

	ended, err := s.engine.End(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.sessionRepo.Save(ctx, *ended); err != nil {
		log.Error("failed to save session %s: %v", sessionID, err)
		return nil, errors.NewInternalError(err)
	}
	s.enqueueAnalysis(ctx, sessionID)
	return ended, nil
}

func (s *sessionService) AnalyzeSession(ctx context.Context, actorKey, sessionID string) ([]models.Correction, error) {
	session, err := s.stored(ctx, actorKey, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.Ended() {
		return nil, errors.NewSessionNotEndedError(sessionID)
	}
	if err := s.allow(ctx, actorKey); err != nil {
		return nil, err
	}
	return s.analysis.AnalyzeSession(ctx, sessionID)
}

// GetSession returns the session with stored corrections attached to their turns.
func (s *sessionService) GetSession(ctx context.Context, actorKey, sessionID string) (*models.Session, error) {
	log := logger.FromContext(ctx).WithPrefix("session_service")

	session, err := s.stored(ctx, actorKey, sessionID)
	if err != nil {
		return nil, err
	}
	corrections, err := s.sessionRepo.Corrections(ctx, sessionID)
	if err != nil {
		log.Error("failed to load corrections for %s: %v", sessionID, err)
		return nil, errors.NewInternalError(err)
	}
	return analysis.Annotate(session, corrections), nil
}

func (s *sessionService) ListSessions(ctx context.Context, actorKey string, limit int) ([]models.Session, error) {
	if limit <= 0 {
		limit = defaultSessionListLimit
	}
	sessions, err := s.sessionRepo.ListByActor(ctx, actorKey, limit)
	if err != nil {
		logger.FromContext(ctx).Error("failed to list sessions: %v", err)
		return nil, errors.NewInternalError(err)
	}
	if sessions == nil {
		sessions = []models.Session{}
	}
	return sessions, nil
}

// stored returns the freshest copy of a session without loading it into the engine.
func (s *sessionService) stored(ctx context.Context, actorKey, sessionID string) (*models.Session, error) {
	var session *models.Session
	if s.engine.Loaded(sessionID) {
		var err error
		if session, err = s.engine.Get(sessionID); err != nil && !stderrors.Is(err, errors.ErrNotFound) {
			return nil, err
		}
	}
	if session == nil {
		var err error
		if session, err = s.sessionRepo.Get(ctx, sessionID); err != nil {
			logger.FromContext(ctx).Error("failed to load session %s: %v", sessionID, err)
			return nil, errors.NewInternalError(err)
		}
	}
	// Sessions of other actors are reported as missing.
	if session == nil || session.ActorKey != actorKey {
		return nil, errors.NewNotFoundError("session", sessionID)
	}
	return session, nil
}

// live is like stored but makes an active session live in the engine.
// Ended sessions stay out of the engine.
func (s *sessionService) live(ctx context.Context, actorKey, sessionID string) (*models.Session, error) {
	session, err := s.stored(ctx, actorKey, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.Ended() && !s.engine.Loaded(sessionID) {
		logger.FromContext(ctx).Debug("restoring session %s into the engine", sessionID)
		s.engine.Restore(session)
	}
	return session, nil
}

func (s *sessionService) allow(ctx context.Context, actorKey string) error {
	if s.limiter == nil || s.limiter.Allow(actorKey) {
		return nil
	}
	logger.FromContext(ctx).WithPrefix("session_service").Info("rate limit reached: actor=%s", actorKey)
	return errors.NewRateLimitExceededError(actorKey)
}

func (s *sessionService) enqueueAnalysis(ctx context.Context, sessionID string) {
	if s.queue == nil {
		return
	}
	if err := s.queue.EnqueueAnalysis(sessionID); err != nil {
		logger.FromContext(ctx).WithPrefix("session_service").Warn("failed to queue analysis for %s: %v", sessionID, err)
	}
}
