package services

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vytor/lingoflash/internal/analysis"
	"github.com/vytor/lingoflash/internal/dialog"
	"github.com/vytor/lingoflash/internal/errors"
	"github.com/vytor/lingoflash/internal/models"
	"github.com/vytor/lingoflash/internal/repository"
	"github.com/vytor/lingoflash/internal/repository/sqlite"
	"github.com/vytor/lingoflash/internal/testutil"
)

// slowSaveRepo holds the first save of an active session with the given
// exchange count until release is closed.
type slowSaveRepo struct {
	repository.SessionRepository
	turnCount int
	once      sync.Once
	reached   chan struct{}
	release   chan struct{}
}

func (r *slowSaveRepo) Save(ctx context.Context, session models.Session) error {
	if session.Status == models.SessionActive && session.TurnCount == r.turnCount {
		held := false
		r.once.Do(func() { held = true })
		if held {
			close(r.reached)
			<-r.release
		}
	}
	return r.SessionRepository.Save(ctx, session)
}

func TestEndWhileAdvanceIsSavingKeepsSessionEnded(t *testing.T) {
	sqlDB := testutil.NewTestDB(t)
	defer testutil.MustClose(t, sqlDB)

	repo := &slowSaveRepo{
		SessionRepository: sqlite.NewSessionRepository(sqlDB),
		turnCount:         2,
		reached:           make(chan struct{}),
		release:           make(chan struct{}),
	}
	completer := &fakeCompleter{analysisOutput: `{"corrections": []}`}
	engine := dialog.NewEngine(completer, testContents, dialog.Config{MaxTurns: 10})
	service := NewSessionService(engine, repo, NewAnalysisService(engine, analysis.NewAnalyzer(completer), repo), nil, nil)
	ctx := context.Background()

	session, err := service.StartSession(ctx, "actor-1", "x", "B1")
	require.NoError(t, err)

	advanced := make(chan error, 1)
	go func() {
		_, err := service.AdvanceSession(ctx, "actor-1", session.ID, "Me gusta leer")
		advanced <- err
	}()
	<-repo.reached

	ended, err := service.EndSession(ctx, "actor-1", session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionEnded, ended.Status)
	_, err = service.AnalyzeSession(ctx, "actor-1", session.ID)
	require.NoError(t, err)
	assert.False(t, engine.Loaded(session.ID))

	close(repo.release)
	require.NoError(t, <-advanced)

	stored, err := repo.Get(ctx, session.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, models.SessionEnded, stored.Status)
	assert.Equal(t, 2, stored.TurnCount)
	assert.Len(t, stored.Turns, 3)

	_, err = service.AdvanceSession(ctx, "actor-1", session.ID, "¿Y tú?")
	assert.ErrorIs(t, err, errors.ErrSessionEnded)
	assert.False(t, engine.Loaded(session.ID))
}
