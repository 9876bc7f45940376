package completion_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vytor/lingoflash/internal/completion"
	apperrors "github.com/vytor/lingoflash/internal/errors"
)

// scriptedProvider returns the scripted results in order, then repeats the last one.
type scriptedProvider struct {
	mu      sync.Mutex
	results []result
	calls   int
	reqs    []completion.Request
	delay   time.Duration
}

type result struct {
	out string
	err error
}

func (p *scriptedProvider) Complete(ctx context.Context, req completion.Request) (string, error) {
	p.mu.Lock()
	idx := p.calls
	if idx >= len(p.results) {
		idx = len(p.results) - 1
	}
	r := p.results[idx]
	p.calls++
	p.reqs = append(p.reqs, req)
	p.mu.Unlock()

	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return r.out, r.err
}

type recordedSleeps struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *recordedSleeps) sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return nil
}

func newGateway(p completion.Provider, sleeps *recordedSleeps, cfg completion.Config) *completion.Gateway {
	return completion.NewGateway(p, cfg,
		completion.WithSleep(sleeps.sleep),
		completion.WithJitter(func(time.Duration) time.Duration { return 0 }),
	)
}

func TestComplete_ReturnsTextVerbatim(t *testing.T) {
	p := &scriptedProvider{results: []result{{out: "  ¡Hola! ¿Qué tal?  "}}}
	g := newGateway(p, &recordedSleeps{}, completion.Config{})

	out, err := g.Complete(context.Background(), completion.Request{Instructions: "x"})
	require.NoError(t, err)
	assert.Equal(t, "  ¡Hola! ¿Qué tal?  ", out)
	assert.Equal(t, 1, p.calls)
}

func TestComplete_RetriesTransientWithExponentialBackoff(t *testing.T) {
	transient := errors.New("503 service unavailable")
	p := &scriptedProvider{results: []result{{err: transient}, {err: transient}, {out: "ok"}}}
	sleeps := &recordedSleeps{}
	g := newGateway(p, sleeps, completion.Config{BaseBackoff: 500 * time.Millisecond})

	out, err := g.Complete(context.Background(), completion.Request{})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 3, p.calls)
	assert.Equal(t, []time.Duration{500 * time.Millisecond, time.Second}, sleeps.delays)
}

func TestComplete_ExhaustionIsUpstreamUnavailable(t *testing.T) {
	cause := errors.New("connection refused")
	p := &scriptedProvider{results: []result{{err: cause}}}
	g := newGateway(p, &recordedSleeps{}, completion.Config{})

	_, err := g.Complete(context.Background(), completion.Request{})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrUpstreamUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, completion.DefaultMaxAttempts, p.calls)
}

func TestComplete_EmptyOutputIsRetried(t *testing.T) {
	p := &scriptedProvider{results: []result{{out: "   "}, {out: "bonjour"}}}
	g := newGateway(p, &recordedSleeps{}, completion.Config{})

	out, err := g.Complete(context.Background(), completion.Request{})
	require.NoError(t, err)
	assert.Equal(t, "bonjour", out)
	assert.Equal(t, 2, p.calls)
}

func TestComplete_PermanentErrorIsNotRetried(t *testing.T) {
	p := &scriptedProvider{results: []result{{err: completion.Permanent(errors.New("400 bad request"))}}}
	g := newGateway(p, &recordedSleeps{}, completion.Config{})

	_, err := g.Complete(context.Background(), completion.Request{})
	assert.ErrorIs(t, err, apperrors.ErrUpstreamUnavailable)
	assert.Equal(t, 1, p.calls)
}

func TestComplete_TimeoutIsHard(t *testing.T) {
	p := &scriptedProvider{results: []result{{out: "too late"}}, delay: time.Second}
	g := newGateway(p, &recordedSleeps{}, completion.Config{Timeout: 20 * time.Millisecond, MaxAttempts: 2})

	start := time.Now()
	_, err := g.Complete(context.Background(), completion.Request{})
	assert.ErrorIs(t, err, apperrors.ErrUpstreamUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, 2, p.calls)
}

func TestComplete_ParentCancellationStopsRetries(t *testing.T) {
	p := &scriptedProvider{results: []result{{err: errors.New("flaky")}}}
	ctx, cancel := context.WithCancel(context.Background())
	g := completion.NewGateway(p, completion.Config{}, completion.WithSleep(func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}))

	_, err := g.Complete(ctx, completion.Request{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, p.calls)
}

func TestComplete_TrimsContextToMaxTurns(t *testing.T) {
	p := &scriptedProvider{results: []result{{out: "ok"}}}
	g := newGateway(p, &recordedSleeps{}, completion.Config{})

	msgs := []completion.Message{
		{Role: completion.RoleAssistant, Content: "1"},
		{Role: completion.RoleUser, Content: "2"},
		{Role: completion.RoleAssistant, Content: "3"},
		{Role: completion.RoleUser, Content: "4"},
	}
	_, err := g.Complete(context.Background(), completion.Request{Messages: msgs, MaxContextTurns: 2})
	require.NoError(t, err)
	require.Len(t, p.reqs, 1)
	assert.Equal(t, msgs[2:], p.reqs[0].Messages)
}

func TestProviderFunc(t *testing.T) {
	var f completion.Provider = completion.ProviderFunc(func(ctx context.Context, req completion.Request) (string, error) {
		return req.LanguageHint, nil
	})
	out, err := f.Complete(context.Background(), completion.Request{LanguageHint: "es"})
	require.NoError(t, err)
	assert.Equal(t, "es", out)
}
