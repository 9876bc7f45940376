package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/vytor/lingoflash/internal/logger"
	"github.com/vytor/lingoflash/internal/models"
	"github.com/vytor/lingoflash/internal/repository"
)

type cardRepository struct {
	db *sql.DB
}

// NewCardRepository creates a new CardRepository implementation
func NewCardRepository(db *sql.DB) repository.CardRepository {
	return &cardRepository{db: db}
}

func (r *cardRepository) Get(ctx context.Context, id int64) (*models.Card, error) {
	log := logger.FromContext(ctx).WithPrefix("card_repo")
	log.Debug("fetching card: id=%d", id)

	var c models.Card
	var createdAt, updatedAt int64
	err := r.db.QueryRowContext(ctx, `
SELECT id, actor_key, type, front, back, content, context, created_at, updated_at
FROM cards
WHERE id = ?
`, id).Scan(&c.ID, &c.ActorKey, &c.Type, &c.Front, &c.Back, &c.Content, &c.Context, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		log.Debug("card not found: id=%d", id)
		return nil, nil
	}
	if err != nil {
		log.Error("failed to get card: %v", err)
		return nil, err
	}
	c.CreatedAt = fromMillis(createdAt)
	c.UpdatedAt = fromMillis(updatedAt)
	return &c, nil
}

func (r *cardRepository) CreateWithItems(ctx context.Context, card models.Card, items []models.ReviewItem) (*models.Card, []models.ReviewItem, error) {
	log := logger.FromContext(ctx).WithPrefix("card_repo")
	log.Debug("creating card: actor=%s, type=%s, items=%d", card.ActorKey, card.Type, len(items))

	created := make([]models.ReviewItem, 0, len(items))
	err := tx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
INSERT INTO cards (actor_key, type, front, back, content, context, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`, card.ActorKey, card.Type, card.Front, card.Back, card.Content, card.Context, toMillis(card.CreatedAt), toMillis(card.UpdatedAt))
		if err != nil {
			log.Error("failed to insert card: %v", err)
			return err
		}
		card.ID, err = res.LastInsertId()
		if err != nil {
			return err
		}

		for _, item := range items {
			item.CardID = card.ID
			item.ActorKey = card.ActorKey
			item.CardCreatedAt = card.CreatedAt
			if item.CreatedAt.IsZero() {
				item.CreatedAt = card.CreatedAt
			}
			if item.ID, err = upsertItem(ctx, tx, item); err != nil {
				log.Error("failed to insert review item: card=%d, variant=%d: %v", card.ID, item.VariantIndex, err)
				return err
			}
			created = append(created, item)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	log.Debug("card created: id=%d", card.ID)
	return &card, created, nil
}

func (r *cardRepository) UpdateWithItems(ctx context.Context, card models.Card, keep, create, retire []models.ReviewItem) ([]models.ReviewItem, error) {
	log := logger.FromContext(ctx).WithPrefix("card_repo")
	log.Debug("updating card: id=%d, keep=%d, create=%d, retire=%d", card.ID, len(keep), len(create), len(retire))

	var active []models.ReviewItem
	err := tx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
UPDATE cards SET front = ?, back = ?, content = ?, context = ?, updated_at = ?
WHERE id = ?
`, card.Front, card.Back, card.Content, card.Context, toMillis(card.UpdatedAt), card.ID); err != nil {
			log.Error("failed to update card: %v", err)
			return err
		}

		for _, item := range keep {
			if _, err := tx.ExecContext(ctx, `
UPDATE review_items SET prompt = ?, answer = ?, hint = ?, context = ?
WHERE id = ?
`, item.Prompt, item.Answer, item.Hint, item.Context, item.ID); err != nil {
				log.Error("failed to refresh review item %d: %v", item.ID, err)
				return err
			}
			active = append(active, item)
		}

		for _, item := range create {
			item.CardID = card.ID
			item.ActorKey = card.ActorKey
			item.CardCreatedAt = card.CreatedAt
			if item.CreatedAt.IsZero() {
				item.CreatedAt = card.UpdatedAt
			}
			id, err := upsertItem(ctx, tx, item)
			if err != nil {
				log.Error("failed to create review item: variant=%d: %v", item.VariantIndex, err)
				return err
			}
			item.ID = id
			active = append(active, item)
		}

		retiredAt := toMillis(card.UpdatedAt)
		for _, item := range retire {
			if _, err := tx.ExecContext(ctx, `UPDATE review_items SET retired_at = ? WHERE id = ?`, retiredAt, item.ID); err != nil {
				log.Error("failed to retire review item %d: %v", item.ID, err)
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return active, nil
}

// upsertItem inserts an item, or revives a retired item with the same
// variant index, resetting its scheduling state.
func upsertItem(ctx context.Context, tx *sql.Tx, item models.ReviewItem) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx, `
INSERT INTO review_items (card_id, actor_key, variant_index, prompt, answer, hint, context,
    ease_factor, interval_days, due_at, repetitions, lapses, last_reviewed_at, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(card_id, variant_index) DO UPDATE SET
    prompt = excluded.prompt,
    answer = excluded.answer,
    hint = excluded.hint,
    context = excluded.context,
    ease_factor = excluded.ease_factor,
    interval_days = excluded.interval_days,
    due_at = excluded.due_at,
    repetitions = excluded.repetitions,
    lapses = excluded.lapses,
    last_reviewed_at = excluded.last_reviewed_at,
    retired_at = NULL
RETURNING id
`, item.CardID, item.ActorKey, item.VariantIndex, item.Prompt, item.Answer, item.Hint, item.Context,
		item.EaseFactor, item.IntervalDays, toMillis(item.DueAt), item.Repetitions, item.Lapses,
		toNullMillis(item.LastReviewedAt), toMillis(nonZero(item.CreatedAt, item.DueAt))).Scan(&id)
	return id, err
}

func nonZero(t, fallback time.Time) time.Time {
	if t.IsZero() {
		return fallback
	}
	return t
}
