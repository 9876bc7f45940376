package services

import (
	"context"
	stderrors "errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vytor/lingoflash/internal/cache"
	"github.com/vytor/lingoflash/internal/completion"
	"github.com/vytor/lingoflash/internal/errors"
	"github.com/vytor/lingoflash/internal/models"
	"github.com/vytor/lingoflash/internal/ratelimit"
	"github.com/vytor/lingoflash/internal/testutil"
	"github.com/vytor/lingoflash/internal/testutil/mocks"
)

func newContentService(repo *mocks.MockContentRepository, calls *atomic.Int32, limiter RateLimiter, now *time.Time) ContentService {
	completer := completion.ProviderFunc(func(_ context.Context, req completion.Request) (string, error) {
		calls.Add(1)
		return "  Un lector lee todos los días.  ", nil
	})
	clock := func() time.Time { return *now }
	return NewContentService(repo, completer, cache.New(time.Hour, cache.WithClock(clock)), 0, limiter, WithClock(clock))
}

func sampleContent(ref string) *models.Content {
	return &models.Content{Ref: ref, Title: "El lector", Language: "es", Body: "Había una vez un lector.", CreatedAt: day0}
}

func TestContentService_AddContent(t *testing.T) {
	repo := new(mocks.MockContentRepository)
	now := day0
	var calls atomic.Int32
	svc := newContentService(repo, &calls, nil, &now)

	repo.On("Upsert", mock.Anything, mock.MatchedBy(func(c models.Content) bool {
		return c.Ref == "x" && c.CreatedAt.Equal(day0)
	})).Return(nil).Once()

	got, err := svc.AddContent(context.Background(), models.Content{Ref: " x ", Title: "T", Language: "es", Body: "B"})
	require.NoError(t, err)
	assert.Equal(t, "x", got.Ref)
	repo.AssertExpectations(t)
}

func TestContentService_AddContentValidation(t *testing.T) {
	repo := new(mocks.MockContentRepository)
	now := day0
	var calls atomic.Int32
	svc := newContentService(repo, &calls, nil, &now)

	tests := []struct {
		name    string
		content models.Content
	}{
		{"missing ref", models.Content{Title: "T", Language: "es", Body: "B"}},
		{"missing body", models.Content{Ref: "x", Title: "T", Language: "es"}},
		{"bad language", models.Content{Ref: "x", Title: "T", Language: "not a tag!", Body: "B"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.AddContent(context.Background(), tt.content)
			assert.True(t, stderrors.Is(err, errors.ErrValidation))
		})
	}
	repo.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
}

func TestContentService_GetContentMissing(t *testing.T) {
	repo := new(mocks.MockContentRepository)
	now := day0
	var calls atomic.Int32
	svc := newContentService(repo, &calls, nil, &now)
	repo.On("Get", mock.Anything, "nope").Return(nil, nil)

	_, err := svc.GetContent(context.Background(), "nope")
	assert.True(t, stderrors.Is(err, errors.ErrContentNotFound))
}

func TestContentService_OverviewIsCachedByFingerprint(t *testing.T) {
	repo := new(mocks.MockContentRepository)
	now := day0
	var calls atomic.Int32
	svc := newContentService(repo, &calls, nil, &now)
	repo.On("Get", mock.Anything, "a").Return(sampleContent("a"), nil)
	repo.On("Get", mock.Anything, "b").Return(sampleContent("b"), nil)

	first, err := svc.Overview(context.Background(), "actor-1", "a")
	require.NoError(t, err)
	assert.Equal(t, "Un lector lee todos los días.", first.Summary)
	assert.Equal(t, "a", first.Ref)
	assert.True(t, day0.Equal(first.GeneratedAt))

	// Same text under another ref shares the entry.
	second, err := svc.Overview(context.Background(), "actor-2", "b")
	require.NoError(t, err)
	assert.Equal(t, "b", second.Ref)
	assert.Equal(t, first.Fingerprint, second.Fingerprint)
	assert.Equal(t, int32(1), calls.Load())

	now = day0.Add(25 * time.Hour)
	_, err = svc.Overview(context.Background(), "actor-1", "a")
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestContentService_OverviewRateLimitOnlyOnMiss(t *testing.T) {
	repo := new(mocks.MockContentRepository)
	now := day0
	var calls atomic.Int32
	limiter := ratelimit.New(1, time.Minute, ratelimit.WithClock(testutil.FixedClock(day0)))
	svc := newContentService(repo, &calls, limiter, &now)

	other := sampleContent("other")
	other.Body = "Otro texto distinto."
	repo.On("Get", mock.Anything, "a").Return(sampleContent("a"), nil)
	repo.On("Get", mock.Anything, "other").Return(other, nil)

	_, err := svc.Overview(context.Background(), "actor-1", "a")
	require.NoError(t, err)
	_, err = svc.Overview(context.Background(), "actor-1", "a")
	require.NoError(t, err, "cache hits do not count against the limit")

	_, err = svc.Overview(context.Background(), "actor-1", "other")
	assert.True(t, stderrors.Is(err, errors.ErrRateLimitExceeded))
	assert.Equal(t, int32(1), calls.Load())
}

func TestContentService_OverviewSharedMissKeepsActorsApart(t *testing.T) {
	repo := new(mocks.MockContentRepository)
	shared := sampleContent("a")
	other := sampleContent("other")
	other.Body = "Otro texto distinto."
	repo.On("Get", mock.Anything, "a").Return(shared, nil)
	repo.On("Get", mock.Anything, "other").Return(other, nil)

	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	var producerCancelled atomic.Bool
	completer := completion.ProviderFunc(func(ctx context.Context, req completion.Request) (string, error) {
		calls.Add(1)
		if len(req.Messages) > 0 && req.Messages[0].Content == shared.Body {
			close(started)
			<-release
			producerCancelled.Store(ctx.Err() != nil)
		}
		return "Un resumen.", nil
	})
	limiter := ratelimit.New(1, time.Minute, ratelimit.WithClock(testutil.FixedClock(day0)))
	svc := NewContentService(repo, completer, cache.New(time.Hour), 0, limiter, WithClock(testutil.FixedClock(day0)))

	// actor-a spends its only call on another text.
	_, err := svc.Overview(context.Background(), "actor-a", "other")
	require.NoError(t, err)

	// actor-b starts the shared computation and then gives up on it.
	ctxB, cancelB := context.WithCancel(context.Background())
	resultB := make(chan error, 1)
	go func() {
		_, err := svc.Overview(ctxB, "actor-b", "a")
		resultB <- err
	}()
	<-started

	resultC := make(chan error, 1)
	go func() {
		overview, err := svc.Overview(context.Background(), "actor-c", "a")
		if err == nil && overview.Summary != "Un resumen." {
			err = stderrors.New("unexpected summary " + overview.Summary)
		}
		resultC <- err
	}()

	// Over its limit, actor-a is refused without touching the others.
	_, err = svc.Overview(context.Background(), "actor-a", "a")
	assert.True(t, stderrors.Is(err, errors.ErrRateLimitExceeded))

	time.Sleep(50 * time.Millisecond)
	cancelB()
	assert.ErrorIs(t, <-resultB, context.Canceled)

	close(release)
	assert.NoError(t, <-resultC)
	assert.False(t, producerCancelled.Load())
	assert.Equal(t, int32(2), calls.Load())
}
