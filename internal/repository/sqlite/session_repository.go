package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vytor/lingoflash/internal/logger"
	"github.com/vytor/lingoflash/internal/models"
	"github.com/vytor/lingoflash/internal/repository"
)

type sessionRepository struct {
	db *sql.DB
}

// NewSessionRepository creates a new SessionRepository implementation
func NewSessionRepository(db *sql.DB) repository.SessionRepository {
	return &sessionRepository{db: db}
}

var sessionColumns = []string{
	"id", "actor_key", "content_ref", "level", "language", "status",
	"turn_count", "max_turns", "turns", "created_at", "updated_at", "ended_at",
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.Session, error) {
	var s models.Session
	var turns string
	var createdAt, updatedAt int64
	var endedAt sql.NullInt64
	if err := row.Scan(&s.ID, &s.ActorKey, &s.ContentRef, &s.Level, &s.Language, &s.Status,
		&s.TurnCount, &s.MaxTurns, &turns, &createdAt, &updatedAt, &endedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(turns), &s.Turns); err != nil {
		return nil, fmt.Errorf("decode turns of session %s: %w", s.ID, err)
	}
	s.CreatedAt = fromMillis(createdAt)
	s.UpdatedAt = fromMillis(updatedAt)
	s.EndedAt = fromNullMillis(endedAt)
	return &s, nil
}

func (r *sessionRepository) Get(ctx context.Context, id string) (*models.Session, error) {
	log := logger.FromContext(ctx).WithPrefix("session_repo")
	log.Debug("fetching session: id=%s", id)

	query, args, err := sqlBuilder.Select(sessionColumns...).From("sessions").Where("id = ?", id).ToSql()
	if err != nil {
		log.Error("failed to build query: %v", err)
		return nil, err
	}
	s, err := scanSession(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		log.Debug("session not found: id=%s", id)
		return nil, nil
	}
	if err != nil {
		log.Error("failed to get session: %v", err)
		return nil, err
	}
	return s, nil
}

// Save upserts s. Stored sessions only move forward: an ended row is never
// rewritten and a snapshot with fewer exchanges than the stored one is ignored.
func (r *sessionRepository) Save(ctx context.Context, s models.Session) error {
	log := logger.FromContext(ctx).WithPrefix("session_repo")
	log.Debug("saving session: id=%s, status=%s, turn_count=%d", s.ID, s.Status, s.TurnCount)

	turns := s.Turns
	if turns == nil {
		turns = []models.Turn{}
	}
	encoded, err := json.Marshal(turns)
	if err != nil {
		return fmt.Errorf("encode turns: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO sessions (id, actor_key, content_ref, level, language, status, turn_count, max_turns, turns, created_at, updated_at, ended_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    status = excluded.status,
    turn_count = excluded.turn_count,
    max_turns = excluded.max_turns,
    turns = excluded.turns,
    updated_at = excluded.updated_at,
    ended_at = excluded.ended_at
WHERE sessions.status <> 'ended' AND excluded.turn_count >= sessions.turn_count
`, s.ID, s.ActorKey, s.ContentRef, s.Level, s.Language, s.Status, s.TurnCount, s.MaxTurns, string(encoded),
		toMillis(s.CreatedAt), toMillis(s.UpdatedAt), toNullMillis(s.EndedAt))
	if err != nil {
		log.Error("failed to save session: %v", err)
	}
	return err
}

func (r *sessionRepository) ListByActor(ctx context.Context, actorKey string, limit int) ([]models.Session, error) {
	log := logger.FromContext(ctx).WithPrefix("session_repo")
	log.Debug("listing sessions: actor=%s, limit=%d", actorKey, limit)

	if limit <= 0 {
		limit = 50
	}
	query, args, err := sqlBuilder.Select(sessionColumns...).
		From("sessions").
		Where("actor_key = ?", actorKey).
		OrderBy("created_at DESC", "id").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		log.Error("failed to build query: %v", err)
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to list sessions: %v", err)
		return nil, err
	}
	defer rows.Close()
	var sessions []models.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			log.Error("failed to scan session row: %v", err)
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	log.Debug("found %d sessions", len(sessions))
	return sessions, rows.Err()
}

func (r *sessionRepository) ReplaceCorrections(ctx context.Context, sessionID string, corrections []models.Correction) error {
	log := logger.FromContext(ctx).WithPrefix("session_repo")
	log.Debug("replacing corrections: session=%s, count=%d", sessionID, len(corrections))

	return tx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM session_corrections WHERE session_id = ?`, sessionID); err != nil {
			log.Error("failed to clear corrections: %v", err)
			return err
		}
		if len(corrections) == 0 {
			return nil
		}
		insert := sqlBuilder.Insert("session_corrections").
			Columns("session_id", "turn_number", "error_span", "correction", "explanation")
		for _, c := range corrections {
			insert = insert.Values(sessionID, c.TurnNumber, c.ErrorSpan, c.Correction, c.Explanation)
		}
		query, args, err := insert.ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			log.Error("failed to insert corrections: %v", err)
			return err
		}
		return nil
	})
}

func (r *sessionRepository) Corrections(ctx context.Context, sessionID string) ([]models.Correction, error) {
	log := logger.FromContext(ctx).WithPrefix("session_repo")

	rows, err := r.db.QueryContext(ctx, `
SELECT turn_number, error_span, correction, explanation
FROM session_corrections
WHERE session_id = ?
ORDER BY turn_number, id
`, sessionID)
	if err != nil {
		log.Error("failed to query corrections: %v", err)
		return nil, err
	}
	defer rows.Close()
	corrections := []models.Correction{}
	for rows.Next() {
		var c models.Correction
		if err := rows.Scan(&c.TurnNumber, &c.ErrorSpan, &c.Correction, &c.Explanation); err != nil {
			log.Error("failed to scan correction row: %v", err)
			return nil, err
		}
		corrections = append(corrections, c)
	}
	log.Debug("found %d corrections for session %s", len(corrections), sessionID)
	return corrections, rows.Err()
}
