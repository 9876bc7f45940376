package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/vytor/lingoflash/internal/logger"
	"github.com/vytor/lingoflash/internal/models"
	"github.com/vytor/lingoflash/internal/repository"
)

type contentRepository struct {
	db *sql.DB
}

// NewContentRepository creates a new ContentRepository implementation
func NewContentRepository(db *sql.DB) repository.ContentRepository {
	return &contentRepository{db: db}
}

func (r *contentRepository) Get(ctx context.Context, ref string) (*models.Content, error) {
	log := logger.FromContext(ctx).WithPrefix("content_repo")
	log.Debug("fetching content: ref=%s", ref)

	var c models.Content
	var createdAt int64
	err := r.db.QueryRowContext(ctx, `
SELECT ref, title, language, body, created_at
FROM contents
WHERE ref = ?
`, ref).Scan(&c.Ref, &c.Title, &c.Language, &c.Body, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		log.Debug("content not found: ref=%s", ref)
		return nil, nil
	}
	if err != nil {
		log.Error("failed to get content: %v", err)
		return nil, err
	}
	c.CreatedAt = fromMillis(createdAt)
	return &c, nil
}

func (r *contentRepository) Upsert(ctx context.Context, c models.Content) error {
	log := logger.FromContext(ctx).WithPrefix("content_repo")
	log.Debug("upserting content: ref=%s, language=%s", c.Ref, c.Language)

	_, err := r.db.ExecContext(ctx, `
INSERT INTO contents (ref, title, language, body, created_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(ref) DO UPDATE SET title = excluded.title, language = excluded.language, body = excluded.body
`, c.Ref, c.Title, c.Language, c.Body, toMillis(c.CreatedAt))
	if err != nil {
		log.Error("failed to upsert content: %v", err)
	}
	return err
}
