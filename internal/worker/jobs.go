package worker

import (
	"context"

	"github.com/vytor/lingoflash/internal/logger"
	"github.com/vytor/lingoflash/internal/models"
)

// SessionAnalyzer analyzes a finished session and stores the result.
// Declared here so worker does not import services.
type SessionAnalyzer interface {
	AnalyzeSession(ctx context.Context, sessionID string) ([]models.Correction, error)
}

type AnalyzeSessionJob struct {
	Analyzer  SessionAnalyzer
	SessionID string
}

func (j *AnalyzeSessionJob) Name() string { return "analyze_session" }

func (j *AnalyzeSessionJob) Run(ctx context.Context) error {
	corrections, err := j.Analyzer.AnalyzeSession(ctx, j.SessionID)
	if err != nil {
		return err
	}
	logger.FromContext(ctx).Debug("session %s has %d corrections", j.SessionID, len(corrections))
	return nil
}

// Sweeper drops expired state and reports how much it removed.
type Sweeper interface {
	Sweep() int
}

// SweepJob runs each sweeper once.
type SweepJob struct {
	Sweepers map[string]Sweeper
}

func (j *SweepJob) Name() string { return "sweep" }

func (j *SweepJob) Run(ctx context.Context) error {
	log := logger.FromContext(ctx)
	for name, s := range j.Sweepers {
		if n := s.Sweep(); n > 0 {
			log.Debug("swept %d expired entries from %s", n, name)
		}
	}
	return nil
}
