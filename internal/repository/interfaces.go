package repository

import (
	"context"
	"time"

	"github.com/vytor/lingoflash/internal/models"
)

// Get methods return (nil, nil) when the row does not exist.

// ContentRepository handles reading texts sessions are seeded with
type ContentRepository interface {
	Get(ctx context.Context, ref string) (*models.Content, error)
	Upsert(ctx context.Context, content models.Content) error
}

// SessionRepository persists dialog sessions and their analysis
type SessionRepository interface {
	Get(ctx context.Context, id string) (*models.Session, error)
	// Save must never reopen an ended session or replace a newer snapshot.
	Save(ctx context.Context, session models.Session) error
	ListByActor(ctx context.Context, actorKey string, limit int) ([]models.Session, error)
	ReplaceCorrections(ctx context.Context, sessionID string, corrections []models.Correction) error
	Corrections(ctx context.Context, sessionID string) ([]models.Correction, error)
}

// CardRepository handles cards together with the review items they expand into
type CardRepository interface {
	Get(ctx context.Context, id int64) (*models.Card, error)
	CreateWithItems(ctx context.Context, card models.Card, items []models.ReviewItem) (*models.Card, []models.ReviewItem, error)
	UpdateWithItems(ctx context.Context, card models.Card, keep, create, retire []models.ReviewItem) ([]models.ReviewItem, error)
}

// ReviewItemRepository handles review item scheduling state and review history
type ReviewItemRepository interface {
	Get(ctx context.Context, id int64) (*models.ReviewItem, error)
	ListByCard(ctx context.Context, cardID int64) ([]models.ReviewItem, error)
	ListDue(ctx context.Context, actorKey string, asOf time.Time, limit int) ([]models.ReviewItem, error)
	ApplyReview(ctx context.Context, item models.ReviewItem, record models.ReviewRecord) (*models.ReviewRecord, error)
	History(ctx context.Context, itemID int64) ([]models.ReviewRecord, error)
}
