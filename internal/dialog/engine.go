// Package dialog runs guided tutor conversations: turn sequencing, the turn
// limit, and the language-conformance check on every assistant reply.
package dialog

import (
	"context"
	stderrors "errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vytor/lingoflash/internal/completion"
	"github.com/vytor/lingoflash/internal/errors"
	"github.com/vytor/lingoflash/internal/logger"
	"github.com/vytor/lingoflash/internal/models"
)

const (
	DefaultMaxTurns          = 10
	DefaultLanguageThreshold = 0.5
	DefaultMaxContextTurns   = 20
	DefaultMaxOutputTokens   = 400
)

// ContentResolver looks up the text a session is about.
type ContentResolver interface {
	GetContent(ctx context.Context, ref string) (*models.Content, error)
}

// Config tunes the engine. Zero values take the defaults.
type Config struct {
	MaxTurns          int
	LanguageThreshold float64
	MaxContextTurns   int
	MaxOutputTokens   int
}

// StartRequest opens a session.
type StartRequest struct {
	ActorKey   string
	ContentRef string
	Level      string
}

// AdvanceResult is what one exchange produced. ShouldEnd is set when this
// exchange used up the session's last turn and the session is now ended.
type AdvanceResult struct {
	Session   *models.Session
	Reply     models.Turn
	ShouldEnd bool
}

// Engine owns the live sessions. Each session has two locks: advance
// serializes whole exchanges and is held across the completion call, while
// mu only guards the session value and is never held across I/O.
type Engine struct {
	completer completion.Completer
	contents  ContentResolver
	cfg       Config
	now       func() time.Time
	newID     func() string

	mu       sync.Mutex
	sessions map[string]*entry
}

type entry struct {
	advance sync.Mutex

	mu      sync.Mutex
	session *models.Session
	content *models.Content
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithIDGenerator sets how session IDs are minted.
func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) {
		e.newID = newID
	}
}

// NewEngine creates an Engine.
func NewEngine(completer completion.Completer, contents ContentResolver, cfg Config, opts ...Option) *Engine {
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = DefaultMaxTurns
	}
	if cfg.LanguageThreshold <= 0 || cfg.LanguageThreshold > 1 {
		cfg.LanguageThreshold = DefaultLanguageThreshold
	}
	if cfg.MaxContextTurns <= 0 {
		cfg.MaxContextTurns = DefaultMaxContextTurns
	}
	if cfg.MaxOutputTokens <= 0 {
		cfg.MaxOutputTokens = DefaultMaxOutputTokens
	}
	e := &Engine{
		completer: completer,
		contents:  contents,
		cfg:       cfg,
		now:       time.Now,
		newID:     uuid.NewString,
		sessions:  make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start opens a session and asks for the opening utterance, which becomes turn 1.
func (e *Engine) Start(ctx context.Context, req StartRequest) (*models.Session, error) {
	log := logger.FromContext(ctx).WithPrefix("dialog")

	if strings.TrimSpace(req.ActorKey) == "" {
		return nil, errors.NewValidationError("actor", "must not be empty")
	}
	if strings.TrimSpace(req.ContentRef) == "" {
		return nil, errors.NewValidationError("content_ref", "must not be empty")
	}
	if strings.TrimSpace(req.Level) == "" {
		return nil, errors.NewValidationError("level", "must not be empty")
	}

	content, err := e.resolve(ctx, req.ContentRef)
	if err != nil {
		return nil, err
	}

	now := e.now()
	s := &models.Session{
		ID:         e.newID(),
		ActorKey:   req.ActorKey,
		ContentRef: req.ContentRef,
		Level:      strings.ToUpper(strings.TrimSpace(req.Level)),
		Language:   content.Language,
		Status:     models.SessionCreated,
		MaxTurns:   e.cfg.MaxTurns,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	log.Debug("starting session: id=%s, content=%s, level=%s, language=%s", s.ID, s.ContentRef, s.Level, s.Language)

	opening, err := e.reply(ctx, s, content, []completion.Message{{Role: completion.RoleUser, Content: openingCue}})
	if err != nil {
		return nil, err
	}

	s.Turns = append(s.Turns, models.Turn{
		Seq:       1,
		Speaker:   models.SpeakerAssistant,
		Text:      opening,
		CreatedAt: e.now(),
	})
	s.TurnCount = 1
	s.Status = models.SessionActive
	s.UpdatedAt = e.now()
	if s.TurnCount >= s.MaxTurns {
		e.markEnded(s)
	}

	e.mu.Lock()
	e.sessions[s.ID] = &entry{session: s, content: content}
	e.mu.Unlock()

	log.Info("session started: id=%s, actor=%s", s.ID, s.ActorKey)
	return s.Clone(), nil
}

// Advance appends the actor's text and the assistant's reply as one exchange.
// Nothing is appended unless the reply passes the language check.
func (e *Engine) Advance(ctx context.Context, sessionID, actorText string) (*AdvanceResult, error) {
	log := logger.FromContext(ctx).WithPrefix("dialog")

	if strings.TrimSpace(actorText) == "" {
		return nil, errors.NewValidationError("text", "must not be empty")
	}
	ent, err := e.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	ent.advance.Lock()
	defer ent.advance.Unlock()

	ent.mu.Lock()
	if err := checkAdvance(ent.session); err != nil {
		ent.mu.Unlock()
		return nil, err
	}
	snapshot := ent.session.Clone()
	content := ent.content
	ent.mu.Unlock()

	if content == nil {
		content, err = e.resolve(ctx, snapshot.ContentRef)
		if err != nil {
			return nil, err
		}
	}

	msgs := history(snapshot.Turns)
	msgs = append(msgs, completion.Message{Role: completion.RoleUser, Content: actorText})
	reply, err := e.reply(ctx, snapshot, content, msgs)
	if err != nil {
		return nil, err
	}

	ent.mu.Lock()
	defer ent.mu.Unlock()
	s := ent.session
	ent.content = content
	// End may have run while the completion was in flight.
	if err := checkAdvance(s); err != nil {
		log.Debug("discarding reply for session %s: %v", s.ID, err)
		return nil, err
	}

	now := e.now()
	actorTurn := models.Turn{Seq: s.NextSeq(), Speaker: models.SpeakerActor, Text: actorText, CreatedAt: now}
	s.Turns = append(s.Turns, actorTurn)
	assistantTurn := models.Turn{Seq: s.NextSeq(), Speaker: models.SpeakerAssistant, Text: reply, CreatedAt: now}
	s.Turns = append(s.Turns, assistantTurn)
	s.TurnCount++
	s.UpdatedAt = now

	result := &AdvanceResult{Reply: assistantTurn}
	if s.TurnCount >= s.MaxTurns {
		e.markEnded(s)
		result.ShouldEnd = true
		log.Info("session reached turn limit: id=%s, turns=%d", s.ID, s.TurnCount)
	}
	result.Session = s.Clone()
	log.Debug("session advanced: id=%s, turn_count=%d", s.ID, s.TurnCount)
	return result, nil
}

// End closes a session. Ending an ended session is a no-op.
func (e *Engine) End(ctx context.Context, sessionID string) (*models.Session, error) {
	ent, err := e.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	ent.mu.Lock()
	defer ent.mu.Unlock()
	if !ent.session.Ended() {
		e.markEnded(ent.session)
		logger.FromContext(ctx).WithPrefix("dialog").Info("session ended: id=%s, turn_count=%d", sessionID, ent.session.TurnCount)
	}
	return ent.session.Clone(), nil
}

// Get returns a copy of a live session.
func (e *Engine) Get(sessionID string) (*models.Session, error) {
	ent, err := e.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	ent.mu.Lock()
	defer ent.mu.Unlock()
	return ent.session.Clone(), nil
}

// Loaded reports whether the session is live in the engine.
func (e *Engine) Loaded(sessionID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.sessions[sessionID]
	return ok
}

// Restore makes a persisted session live again. A session that is already
// live is kept as is, since the engine's copy is never older than storage.
func (e *Engine) Restore(s *models.Session) {
	if s == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.sessions[s.ID]; ok {
		return
	}
	c := s.Clone()
	if c.MaxTurns <= 0 {
		c.MaxTurns = e.cfg.MaxTurns
	}
	e.sessions[c.ID] = &entry{session: c}
}

// Forget drops a session from memory.
func (e *Engine) Forget(sessionID string) {
	e.mu.Lock()
	delete(e.sessions, sessionID)
	e.mu.Unlock()
}

func (e *Engine) lookup(sessionID string) (*entry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, ok := e.sessions[sessionID]
	if !ok {
		return nil, errors.NewNotFoundError("session", sessionID)
	}
	return ent, nil
}

func (e *Engine) resolve(ctx context.Context, ref string) (*models.Content, error) {
	content, err := e.contents.GetContent(ctx, ref)
	if err != nil {
		if stderrors.Is(err, errors.ErrNotFound) || stderrors.Is(err, errors.ErrContentNotFound) {
			return nil, errors.NewContentNotFoundError(ref)
		}
		return nil, err
	}
	if content == nil {
		return nil, errors.NewContentNotFoundError(ref)
	}
	return content, nil
}

func (e *Engine) markEnded(s *models.Session) {
	now := e.now()
	s.Status = models.SessionEnded
	s.EndedAt = &now
	s.UpdatedAt = now
}

func checkAdvance(s *models.Session) error {
	if s.Ended() {
		return errors.NewSessionEndedError(s.ID)
	}
	if s.TurnCount+1 > s.MaxTurns {
		return errors.NewTurnLimitExceededError(s.ID, s.MaxTurns)
	}
	return nil
}

// reply asks for the next assistant utterance and enforces the target
// language, retrying once with a corrective instruction.
func (e *Engine) reply(ctx context.Context, s *models.Session, content *models.Content, msgs []completion.Message) (string, error) {
	log := logger.FromContext(ctx).WithPrefix("dialog")

	req := completion.Request{
		Instructions:    tutorInstructions(s, content),
		Messages:        msgs,
		MaxContextTurns: e.cfg.MaxContextTurns,
		LanguageHint:    s.Language,
		MaxOutputTokens: e.cfg.MaxOutputTokens,
	}
	if !supportedLanguage(s.Language) {
		log.Debug("no lexicon for language %q, skipping conformance check", s.Language)
		return e.completer.Complete(ctx, req)
	}

	var share float64
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			req.Instructions += correctiveInstruction(s.Language)
		}
		out, err := e.completer.Complete(ctx, req)
		if err != nil {
			return "", err
		}
		share = ForeignShare(out, s.Language)
		if share <= e.cfg.LanguageThreshold {
			return out, nil
		}
		log.Info("reply failed language check: session=%s, language=%s, foreign_share=%.2f, attempt=%d", s.ID, s.Language, share, attempt+1)
	}
	return "", errors.NewLanguageConformanceError(s.Language, share)
}
