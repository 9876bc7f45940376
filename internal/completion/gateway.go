package completion

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	apperrors "github.com/vytor/lingoflash/internal/errors"
	"github.com/vytor/lingoflash/internal/logger"
)

const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxAttempts = 3
	DefaultBaseBackoff = 500 * time.Millisecond
)

// Role of a message in the prompt history.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one prior utterance handed to the provider.
type Message struct {
	Role    Role
	Content string
}

// Request is everything the completion service gets for one call.
type Request struct {
	Instructions    string
	Messages        []Message
	MaxContextTurns int            // 0 keeps every message
	LanguageHint    string         // BCP-47 tag of the expected reply language
	Schema          map[string]any // optional JSON schema for structured output
	SchemaName      string
	MaxOutputTokens int
}

// Provider talks to the actual completion service.
type Provider interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, req Request) (string, error)

func (f ProviderFunc) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// Completer is what consumers depend on.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// permanentError marks failures that retrying cannot fix.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so the gateway gives up without further attempts.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was wrapped with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

var errEmptyOutput = errors.New("completion returned no text")

// Config tunes the retry policy.
type Config struct {
	Timeout     time.Duration
	MaxAttempts int
	BaseBackoff time.Duration
}

// Gateway wraps a Provider with a hard per-attempt timeout and bounded retries.
type Gateway struct {
	provider    Provider
	timeout     time.Duration
	maxAttempts int
	baseBackoff time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
	jitter      func(d time.Duration) time.Duration
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithSleep replaces the backoff wait, mainly for tests.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(g *Gateway) {
		g.sleep = sleep
	}
}

// WithJitter replaces the jitter function.
func WithJitter(jitter func(d time.Duration) time.Duration) Option {
	return func(g *Gateway) {
		g.jitter = jitter
	}
}

// NewGateway creates a Gateway. Zero config values take the defaults.
func NewGateway(provider Provider, cfg Config, opts ...Option) *Gateway {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = DefaultBaseBackoff
	}
	g := &Gateway{
		provider:    provider,
		timeout:     cfg.Timeout,
		maxAttempts: cfg.MaxAttempts,
		baseBackoff: cfg.BaseBackoff,
		sleep:       sleepContext,
		jitter:      halfJitter,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Complete returns the provider's text verbatim, or an UPSTREAM_UNAVAILABLE
// error once every attempt has failed. A cancelled parent context is returned as is.
func (g *Gateway) Complete(ctx context.Context, req Request) (string, error) {
	log := logger.FromContext(ctx).WithPrefix("completion")
	req.Messages = trimContext(req.Messages, req.MaxContextTurns)

	var lastErr error
	attempts := 0
	for attempt := 0; attempt < g.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := g.backoff(attempt)
			log.Debug("retrying in %v (attempt %d/%d): %v", delay, attempt+1, g.maxAttempts, lastErr)
			if err := g.sleep(ctx, delay); err != nil {
				return "", err
			}
		}

		attempts++
		start := time.Now()
		out, err := g.attempt(ctx, req)
		if err == nil {
			log.Debug("completion succeeded in %v after %d attempt(s)", time.Since(start), attempts)
			return out, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		lastErr = err
		if IsPermanent(err) {
			log.Warn("completion failed permanently: %v", err)
			break
		}
	}

	appErr := apperrors.NewUpstreamUnavailableError(attempts, lastErr)
	log.WithError(lastErr).Error("completion service unavailable after %d attempt(s)", attempts)
	return "", appErr
}

func (g *Gateway) attempt(ctx context.Context, req Request) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	type result struct {
		out string
		err error
	}
	// The provider may ignore ctx; the timeout is enforced here regardless.
	done := make(chan result, 1)
	go func() {
		out, err := g.provider.Complete(attemptCtx, req)
		done <- result{out: out, err: err}
	}()

	select {
	case <-attemptCtx.Done():
		return "", fmt.Errorf("completion attempt: %w", attemptCtx.Err())
	case r := <-done:
		if r.err != nil {
			return "", r.err
		}
		if strings.TrimSpace(r.out) == "" {
			return "", errEmptyOutput
		}
		return r.out, nil
	}
}

func (g *Gateway) backoff(attempt int) time.Duration {
	d := g.baseBackoff << (attempt - 1)
	return d + g.jitter(d)
}

func halfJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(d)/2 + 1))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// trimContext keeps the last n messages. n <= 0 keeps all.
func trimContext(msgs []Message, n int) []Message {
	if n <= 0 || len(msgs) <= n {
		return msgs
	}
	return msgs[len(msgs)-n:]
}
