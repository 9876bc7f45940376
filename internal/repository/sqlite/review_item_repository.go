package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/vytor/lingoflash/internal/logger"
	"github.com/vytor/lingoflash/internal/models"
	"github.com/vytor/lingoflash/internal/repository"
)

type reviewItemRepository struct {
	db *sql.DB
}

// NewReviewItemRepository creates a new ReviewItemRepository implementation
func NewReviewItemRepository(db *sql.DB) repository.ReviewItemRepository {
	return &reviewItemRepository{db: db}
}

func itemQuery() squirrel.SelectBuilder {
	return sqlBuilder.Select(
		"ri.id", "ri.card_id", "ri.actor_key", "ri.variant_index", "ri.prompt", "ri.answer",
		"ri.hint", "ri.context", "ri.ease_factor", "ri.interval_days", "ri.due_at",
		"ri.repetitions", "ri.lapses", "ri.last_reviewed_at", "c.created_at", "ri.created_at",
	).From("review_items ri").Join("cards c ON c.id = ri.card_id").Where("ri.retired_at IS NULL")
}

func scanItem(row rowScanner) (*models.ReviewItem, error) {
	var item models.ReviewItem
	var dueAt, cardCreatedAt, createdAt int64
	var lastReviewed sql.NullInt64
	if err := row.Scan(&item.ID, &item.CardID, &item.ActorKey, &item.VariantIndex, &item.Prompt, &item.Answer,
		&item.Hint, &item.Context, &item.EaseFactor, &item.IntervalDays, &dueAt,
		&item.Repetitions, &item.Lapses, &lastReviewed, &cardCreatedAt, &createdAt); err != nil {
		return nil, err
	}
	item.DueAt = fromMillis(dueAt)
	item.LastReviewedAt = fromNullMillis(lastReviewed)
	item.CardCreatedAt = fromMillis(cardCreatedAt)
	item.CreatedAt = fromMillis(createdAt)
	return &item, nil
}

func (r *reviewItemRepository) queryItems(ctx context.Context, q squirrel.SelectBuilder) ([]models.ReviewItem, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []models.ReviewItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

func (r *reviewItemRepository) Get(ctx context.Context, id int64) (*models.ReviewItem, error) {
	log := logger.FromContext(ctx).WithPrefix("review_item_repo")
	log.Debug("fetching review item: id=%d", id)

	query, args, err := itemQuery().Where(squirrel.Eq{"ri.id": id}).ToSql()
	if err != nil {
		log.Error("failed to build query: %v", err)
		return nil, err
	}
	item, err := scanItem(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		log.Debug("review item not found: id=%d", id)
		return nil, nil
	}
	if err != nil {
		log.Error("failed to get review item: %v", err)
		return nil, err
	}
	return item, nil
}

func (r *reviewItemRepository) ListByCard(ctx context.Context, cardID int64) ([]models.ReviewItem, error) {
	log := logger.FromContext(ctx).WithPrefix("review_item_repo")
	log.Debug("listing review items: card_id=%d", cardID)

	items, err := r.queryItems(ctx, itemQuery().Where(squirrel.Eq{"ri.card_id": cardID}).OrderBy("ri.variant_index"))
	if err != nil {
		log.Error("failed to list review items: %v", err)
		return nil, err
	}
	return items, nil
}

// ListDue orders the same way as flashcard.DueItems: due time, then card
// creation, then card id and variant.
func (r *reviewItemRepository) ListDue(ctx context.Context, actorKey string, asOf time.Time, limit int) ([]models.ReviewItem, error) {
	log := logger.FromContext(ctx).WithPrefix("review_item_repo")
	log.Debug("listing due items: actor=%s, as_of=%s, limit=%d", actorKey, asOf.Format(time.RFC3339), limit)

	q := itemQuery().
		Where(squirrel.Eq{"ri.actor_key": actorKey}).
		Where(squirrel.LtOrEq{"ri.due_at": toMillis(asOf)}).
		OrderBy("ri.due_at ASC", "c.created_at ASC", "ri.card_id ASC", "ri.variant_index ASC")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}

	items, err := r.queryItems(ctx, q)
	if err != nil {
		log.Error("failed to list due items: %v", err)
		return nil, err
	}
	log.Debug("found %d due items", len(items))
	return items, nil
}

func (r *reviewItemRepository) ApplyReview(ctx context.Context, item models.ReviewItem, record models.ReviewRecord) (*models.ReviewRecord, error) {
	log := logger.FromContext(ctx).WithPrefix("review_item_repo")
	log.Debug("applying review: item=%d, rating=%s, interval=%d, ease=%.2f", item.ID, record.Rating, item.IntervalDays, item.EaseFactor)

	err := tx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
UPDATE review_items
SET ease_factor = ?, interval_days = ?, due_at = ?, repetitions = ?, lapses = ?, last_reviewed_at = ?
WHERE id = ? AND retired_at IS NULL
`, item.EaseFactor, item.IntervalDays, toMillis(item.DueAt), item.Repetitions, item.Lapses, toNullMillis(item.LastReviewedAt), item.ID)
		if err != nil {
			log.Error("failed to update review item: %v", err)
			return err
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return sql.ErrNoRows
		}

		res, err = tx.ExecContext(ctx, `
INSERT INTO review_records (review_item_id, rating, reviewed_at, interval_days, ease_factor, time_seconds)
VALUES (?, ?, ?, ?, ?, ?)
`, item.ID, record.Rating.String(), toMillis(record.ReviewedAt), record.IntervalDays, record.EaseFactor, record.TimeSeconds)
		if err != nil {
			log.Error("failed to insert review record: %v", err)
			return err
		}
		record.ID, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return nil, err
	}
	record.ReviewItemID = item.ID
	return &record, nil
}

func (r *reviewItemRepository) History(ctx context.Context, itemID int64) ([]models.ReviewRecord, error) {
	log := logger.FromContext(ctx).WithPrefix("review_item_repo")
	log.Debug("fetching review history: item=%d", itemID)

	query, args, err := sqlBuilder.
		Select("id", "review_item_id", "rating", "reviewed_at", "interval_days", "ease_factor", "time_seconds").
		From("review_records").
		Where(squirrel.Eq{"review_item_id": itemID}).
		OrderBy("reviewed_at ASC", "id ASC").
		ToSql()
	if err != nil {
		log.Error("failed to build query: %v", err)
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to query review history: %v", err)
		return nil, err
	}
	defer rows.Close()
	records := []models.ReviewRecord{}
	for rows.Next() {
		var rec models.ReviewRecord
		var rating string
		var reviewedAt int64
		if err := rows.Scan(&rec.ID, &rec.ReviewItemID, &rating, &reviewedAt, &rec.IntervalDays, &rec.EaseFactor, &rec.TimeSeconds); err != nil {
			log.Error("failed to scan review record: %v", err)
			return nil, err
		}
		if rec.Rating, err = models.ParseRating(rating); err != nil {
			return nil, err
		}
		rec.ReviewedAt = fromMillis(reviewedAt)
		records = append(records, rec)
	}
	return records, rows.Err()
}
