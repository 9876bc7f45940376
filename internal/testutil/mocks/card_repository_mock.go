package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/vytor/lingoflash/internal/models"
)

// MockCardRepository is a mock implementation of repository.CardRepository
type MockCardRepository struct {
	mock.Mock
}

func (m *MockCardRepository) Get(ctx context.Context, id int64) (*models.Card, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Card), args.Error(1)
}

func (m *MockCardRepository) CreateWithItems(ctx context.Context, card models.Card, items []models.ReviewItem) (*models.Card, []models.ReviewItem, error) {
	args := m.Called(ctx, card, items)
	var created *models.Card
	if args.Get(0) != nil {
		created = args.Get(0).(*models.Card)
	}
	var stored []models.ReviewItem
	if args.Get(1) != nil {
		stored = args.Get(1).([]models.ReviewItem)
	}
	return created, stored, args.Error(2)
}

func (m *MockCardRepository) UpdateWithItems(ctx context.Context, card models.Card, keep, create, retire []models.ReviewItem) ([]models.ReviewItem, error) {
	args := m.Called(ctx, card, keep, create, retire)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ReviewItem), args.Error(1)
}

// MockReviewItemRepository is a mock implementation of repository.ReviewItemRepository
type MockReviewItemRepository struct {
	mock.Mock
}

func (m *MockReviewItemRepository) Get(ctx context.Context, id int64) (*models.ReviewItem, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ReviewItem), args.Error(1)
}

func (m *MockReviewItemRepository) ListByCard(ctx context.Context, cardID int64) ([]models.ReviewItem, error) {
	args := m.Called(ctx, cardID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ReviewItem), args.Error(1)
}

func (m *MockReviewItemRepository) ListDue(ctx context.Context, actorKey string, asOf time.Time, limit int) ([]models.ReviewItem, error) {
	args := m.Called(ctx, actorKey, asOf, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ReviewItem), args.Error(1)
}

func (m *MockReviewItemRepository) ApplyReview(ctx context.Context, item models.ReviewItem, record models.ReviewRecord) (*models.ReviewRecord, error) {
	args := m.Called(ctx, item, record)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ReviewRecord), args.Error(1)
}

func (m *MockReviewItemRepository) History(ctx context.Context, itemID int64) ([]models.ReviewRecord, error) {
	args := m.Called(ctx, itemID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ReviewRecord), args.Error(1)
}
