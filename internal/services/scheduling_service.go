package services

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"slices"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/vytor/lingoflash/internal/errors"
	"github.com/vytor/lingoflash/internal/flashcard"
	"github.com/vytor/lingoflash/internal/keylock"
	"github.com/vytor/lingoflash/internal/logger"
	"github.com/vytor/lingoflash/internal/models"
	"github.com/vytor/lingoflash/internal/repository"
)

const defaultDueLimit = 50

// SchedulingService handles cards, their review items and reviews
type SchedulingService interface {
	CreateCard(ctx context.Context, actorKey string, card models.Card) (*models.CardWithItems, error)
	UpdateCard(ctx context.Context, actorKey string, card models.Card) (*models.CardWithItems, error)
	RecordReview(ctx context.Context, actorKey string, itemID int64, rating models.Rating, timeSeconds float64) (*models.ReviewOutcome, error)
	ListDueItems(ctx context.Context, actorKey string, limit int) ([]models.ReviewItem, error)
	ReviewHistory(ctx context.Context, actorKey string, itemID int64) ([]models.ReviewRecord, error)
}

type schedulingService struct {
	cardRepo  repository.CardRepository
	itemRepo  repository.ReviewItemRepository
	scheduler *flashcard.Scheduler
	locks     *keylock.Map
	validate  *validator.Validate
	now       func() time.Time
}

// NewSchedulingService creates a new SchedulingService
func NewSchedulingService(
	cardRepo repository.CardRepository,
	itemRepo repository.ReviewItemRepository,
	scheduler *flashcard.Scheduler,
	opts ...Option,
) SchedulingService {
	o := buildOptions(opts)
	return &schedulingService{
		cardRepo:  cardRepo,
		itemRepo:  itemRepo,
		scheduler: scheduler,
		locks:     keylock.New(),
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		now:       o.now,
	}
}

func (s *schedulingService) CreateCard(ctx context.Context, actorKey string, card models.Card) (*models.CardWithItems, error) {
	log := logger.FromContext(ctx).WithPrefix("scheduling_service")
	log.Debug("creating card: actor=%s, type=%s", actorKey, card.Type)

	if actorKey == "" {
		return nil, errors.NewValidationError("actor", "must not be empty")
	}
	if err := s.validate.Struct(card); err != nil {
		return nil, errors.NewValidationError("card", err.Error())
	}

	now := s.now()
	card.ID = 0
	card.ActorKey = actorKey
	card.CreatedAt = now
	card.UpdatedAt = now

	expanded, err := flashcard.Expand(card)
	if err != nil {
		return nil, err
	}
	items := make([]models.ReviewItem, len(expanded))
	for i, item := range expanded {
		items[i] = s.scheduler.NewItemState(item, now)
		items[i].CreatedAt = now
	}

	created, stored, err := s.cardRepo.CreateWithItems(ctx, card, items)
	if err != nil {
		log.Error("failed to create card: %v", err)
		return nil, errors.NewInternalError(err)
	}
	log.Info("card created: id=%d, items=%d", created.ID, len(stored))
	return &models.CardWithItems{Card: *created, Items: stored}, nil
}

// UpdateCard re-expands the card. Items whose variant survives keep their
// scheduling history; new variants start fresh and vanished ones are retired.
func (s *schedulingService) UpdateCard(ctx context.Context, actorKey string, card models.Card) (*models.CardWithItems, error) {
	log := logger.FromContext(ctx).WithPrefix("scheduling_service")
	log.Debug("updating card: id=%d", card.ID)

	unlock := s.locks.Lock(fmt.Sprintf("card:%d", card.ID))
	defer unlock()

	existing, err := s.cardRepo.Get(ctx, card.ID)
	if err != nil {
		log.Error("failed to get card: %v", err)
		return nil, errors.NewInternalError(err)
	}
	if existing == nil || existing.ActorKey != actorKey {
		return nil, errors.NewNotFoundError("card", card.ID)
	}
	if card.Type == "" {
		card.Type = existing.Type
	}
	if card.Type != existing.Type {
		return nil, errors.NewValidationError("type", "cannot be changed")
	}

	updated := *existing
	updated.Front = card.Front
	updated.Back = card.Back
	updated.Content = card.Content
	updated.Context = card.Context
	updated.UpdatedAt = s.now()

	current, err := s.itemRepo.ListByCard(ctx, card.ID)
	if err != nil {
		log.Error("failed to list review items: %v", err)
		return nil, errors.NewInternalError(err)
	}
	plan, err := flashcard.Reconcile(updated, current)
	if err != nil {
		return nil, err
	}
	create := make([]models.ReviewItem, len(plan.Create))
	for i, item := range plan.Create {
		create[i] = s.scheduler.NewItemState(item, updated.UpdatedAt)
	}

	active, err := s.cardRepo.UpdateWithItems(ctx, updated, plan.Keep, create, plan.Remove)
	if err != nil {
		log.Error("failed to update card: %v", err)
		return nil, errors.NewInternalError(err)
	}
	slices.SortFunc(active, func(a, b models.ReviewItem) int { return a.VariantIndex - b.VariantIndex })

	log.Info("card updated: id=%d, kept=%d, created=%d, retired=%d", card.ID, len(plan.Keep), len(create), len(plan.Remove))
	return &models.CardWithItems{Card: updated, Items: active}, nil
}

// RecordReview serializes reviews per item; different items proceed in parallel.
func (s *schedulingService) RecordReview(ctx context.Context, actorKey string, itemID int64, rating models.Rating, timeSeconds float64) (*models.ReviewOutcome, error) {
	log := logger.FromContext(ctx).WithPrefix("scheduling_service")
	log.Debug("recording review: item=%d, rating=%s", itemID, rating)

	if !rating.IsValid() {
		return nil, errors.NewValidationError("rating", "must be one of again, hard, good, easy")
	}
	if timeSeconds < 0 {
		return nil, errors.NewValidationError("time_seconds", "must not be negative")
	}

	unlock := s.locks.Lock(fmt.Sprintf("item:%d", itemID))
	defer unlock()

	item, err := s.ownedItem(ctx, actorKey, itemID)
	if err != nil {
		return nil, err
	}

	next, record, err := s.scheduler.Review(*item, rating, s.now())
	if err != nil {
		return nil, err
	}
	record.TimeSeconds = timeSeconds

	stored, err := s.itemRepo.ApplyReview(ctx, next, record)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.NewNotFoundError("review item", itemID)
		}
		log.Error("failed to apply review: %v", err)
		return nil, errors.NewInternalError(err)
	}

	log.Debug("review applied: item=%d, interval=%d, ease=%.2f", itemID, next.IntervalDays, next.EaseFactor)
	return &models.ReviewOutcome{Item: next, Record: *stored}, nil
}

func (s *schedulingService) ListDueItems(ctx context.Context, actorKey string, limit int) ([]models.ReviewItem, error) {
	if limit <= 0 {
		limit = defaultDueLimit
	}
	items, err := s.itemRepo.ListDue(ctx, actorKey, s.now(), limit)
	if err != nil {
		logger.FromContext(ctx).Error("failed to list due items: %v", err)
		return nil, errors.NewInternalError(err)
	}
	if items == nil {
		items = []models.ReviewItem{}
	}
	return items, nil
}

func (s *schedulingService) ReviewHistory(ctx context.Context, actorKey string, itemID int64) ([]models.ReviewRecord, error) {
	if _, err := s.ownedItem(ctx, actorKey, itemID); err != nil {
		return nil, err
	}
	history, err := s.itemRepo.History(ctx, itemID)
	if err != nil {
		logger.FromContext(ctx).Error("failed to load review history: %v", err)
		return nil, errors.NewInternalError(err)
	}
	return history, nil
}

func (s *schedulingService) ownedItem(ctx context.Context, actorKey string, itemID int64) (*models.ReviewItem, error) {
	item, err := s.itemRepo.Get(ctx, itemID)
	if err != nil {
		logger.FromContext(ctx).Error("failed to get review item: %v", err)
		return nil, errors.NewInternalError(err)
	}
	if item == nil || item.ActorKey != actorKey {
		return nil, errors.NewNotFoundError("review item", itemID)
	}
	return item, nil
}
