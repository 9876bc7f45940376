package services

import (
	"context"
	"database/sql"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/vytor/lingoflash/internal/errors"
	"github.com/vytor/lingoflash/internal/flashcard"
	"github.com/vytor/lingoflash/internal/models"
	"github.com/vytor/lingoflash/internal/repository/sqlite"
	"github.com/vytor/lingoflash/internal/testutil"
	"github.com/vytor/lingoflash/internal/testutil/mocks"
)

var day0 = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

type SchedulingServiceSuite struct {
	suite.Suite
	ctx     context.Context
	db      *sql.DB
	now     time.Time
	service SchedulingService
}

func (s *SchedulingServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.db = testutil.NewTestDB(s.T())
	s.now = day0
	s.service = NewSchedulingService(
		sqlite.NewCardRepository(s.db),
		sqlite.NewReviewItemRepository(s.db),
		flashcard.NewScheduler(flashcard.Config{MaxIntervalDays: 60}),
		WithClock(func() time.Time { return s.now }),
	)
}

func (s *SchedulingServiceSuite) TearDownTest() {
	testutil.MustClose(s.T(), s.db)
}

func (s *SchedulingServiceSuite) TestCreateClozeCard() {
	created, err := s.service.CreateCard(s.ctx, "actor-1", models.Card{Type: models.CardCloze, Content: "A {{1::foo}} B {{2::bar}}."})
	s.Require().NoError(err)
	s.NotZero(created.Card.ID)
	s.Equal("actor-1", created.Card.ActorKey)
	s.Require().Len(created.Items, 2)
	for i, item := range created.Items {
		s.Equal(i, item.VariantIndex)
		s.Equal(flashcard.DefaultInitialEase, item.EaseFactor)
		s.True(day0.Equal(item.DueAt))
	}

	due, err := s.service.ListDueItems(s.ctx, "actor-1", 0)
	s.Require().NoError(err)
	s.Len(due, 2)
}

func (s *SchedulingServiceSuite) TestCreateRejectsBadCards() {
	_, err := s.service.CreateCard(s.ctx, "actor-1", models.Card{Type: models.CardCloze, Content: "no deletions here"})
	s.True(stderrors.Is(err, errors.ErrInvalidClozeSyntax))

	_, err = s.service.CreateCard(s.ctx, "actor-1", models.Card{Type: "mystery", Front: "a", Back: "b"})
	s.True(stderrors.Is(err, errors.ErrValidation))

	_, err = s.service.CreateCard(s.ctx, "", models.Card{Type: models.CardPlain, Front: "a", Back: "b"})
	s.True(stderrors.Is(err, errors.ErrValidation))

	var n int
	s.Require().NoError(s.db.QueryRow(`SELECT COUNT(*) FROM cards`).Scan(&n))
	s.Equal(0, n)
}

func (s *SchedulingServiceSuite) TestReviewFlow() {
	created, err := s.service.CreateCard(s.ctx, "actor-1", models.Card{Type: models.CardPlainReversed, Front: "perro", Back: "dog"})
	s.Require().NoError(err)
	s.Require().Len(created.Items, 2)
	item := created.Items[0]

	out, err := s.service.RecordReview(s.ctx, "actor-1", item.ID, models.Good, 3.5)
	s.Require().NoError(err)
	s.Equal(1, out.Item.IntervalDays)
	s.Equal(1, out.Item.Repetitions)
	s.True(day0.Add(24 * time.Hour).Equal(out.Item.DueAt))
	s.Equal(models.Good, out.Record.Rating)
	s.Equal(3.5, out.Record.TimeSeconds)
	s.NotZero(out.Record.ID)

	s.now = day0.Add(48 * time.Hour)
	out, err = s.service.RecordReview(s.ctx, "actor-1", item.ID, models.Again, 0)
	s.Require().NoError(err)
	s.Equal(1, out.Item.IntervalDays)
	s.Equal(0, out.Item.Repetitions)
	s.Equal(1, out.Item.Lapses)

	history, err := s.service.ReviewHistory(s.ctx, "actor-1", item.ID)
	s.Require().NoError(err)
	s.Require().Len(history, 2)
	s.Equal(models.Good, history[0].Rating)
	s.Equal(models.Again, history[1].Rating)

	// Only the untouched reverse item is due right now.
	due, err := s.service.ListDueItems(s.ctx, "actor-1", 10)
	s.Require().NoError(err)
	s.Require().Len(due, 1)
	s.Equal(created.Items[1].ID, due[0].ID)
}

func (s *SchedulingServiceSuite) TestOwnership() {
	created, err := s.service.CreateCard(s.ctx, "actor-1", models.Card{Type: models.CardPlain, Front: "gato", Back: "cat"})
	s.Require().NoError(err)
	itemID := created.Items[0].ID

	_, err = s.service.RecordReview(s.ctx, "actor-2", itemID, models.Easy, 0)
	s.True(stderrors.Is(err, errors.ErrNotFound))
	_, err = s.service.ReviewHistory(s.ctx, "actor-2", itemID)
	s.True(stderrors.Is(err, errors.ErrNotFound))
	_, err = s.service.UpdateCard(s.ctx, "actor-2", models.Card{ID: created.Card.ID, Front: "x", Back: "y"})
	s.True(stderrors.Is(err, errors.ErrNotFound))

	due, err := s.service.ListDueItems(s.ctx, "actor-2", 10)
	s.Require().NoError(err)
	s.NotNil(due)
	s.Empty(due)
}

func (s *SchedulingServiceSuite) TestInvalidReviewInput() {
	_, err := s.service.RecordReview(s.ctx, "actor-1", 1, models.Rating(9), 0)
	s.True(stderrors.Is(err, errors.ErrValidation))
	_, err = s.service.RecordReview(s.ctx, "actor-1", 1, models.Good, -1)
	s.True(stderrors.Is(err, errors.ErrValidation))
}

func (s *SchedulingServiceSuite) TestUpdateCardKeepsHistory() {
	created, err := s.service.CreateCard(s.ctx, "actor-1", models.Card{Type: models.CardCloze, Content: "{{c1::Hola}}, {{c2::mundo}}."})
	s.Require().NoError(err)
	first := created.Items[0]
	_, err = s.service.RecordReview(s.ctx, "actor-1", first.ID, models.Good, 0)
	s.Require().NoError(err)

	s.now = day0.Add(time.Hour)
	updated, err := s.service.UpdateCard(s.ctx, "actor-1", models.Card{ID: created.Card.ID, Content: "{{c1::Hola}}, {{c3::amigo}}."})
	s.Require().NoError(err)
	s.Equal(models.CardCloze, updated.Card.Type)
	s.Require().Len(updated.Items, 2)

	s.Equal(0, updated.Items[0].VariantIndex)
	s.Equal(first.ID, updated.Items[0].ID)
	s.Equal(1, updated.Items[0].Repetitions)

	s.Equal(2, updated.Items[1].VariantIndex)
	s.Equal(0, updated.Items[1].Repetitions)

	// The retired variant keeps its rows but can no longer be reviewed.
	_, err = s.service.RecordReview(s.ctx, "actor-1", created.Items[1].ID, models.Good, 0)
	s.True(stderrors.Is(err, errors.ErrNotFound))
}

func (s *SchedulingServiceSuite) TestUpdateCardCannotChangeType() {
	created, err := s.service.CreateCard(s.ctx, "actor-1", models.Card{Type: models.CardPlain, Front: "a", Back: "b"})
	s.Require().NoError(err)

	_, err = s.service.UpdateCard(s.ctx, "actor-1", models.Card{ID: created.Card.ID, Type: models.CardCloze, Content: "{{c1::a}}"})
	s.True(stderrors.Is(err, errors.ErrValidation))
}

func (s *SchedulingServiceSuite) TestConcurrentReviewsOfOneItemAreSerialized() {
	created, err := s.service.CreateCard(s.ctx, "actor-1", models.Card{Type: models.CardPlain, Front: "a", Back: "b"})
	s.Require().NoError(err)
	itemID := created.Items[0].ID

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.service.RecordReview(s.ctx, "actor-1", itemID, models.Good, 0)
			assert.NoError(s.T(), err)
		}()
	}
	wg.Wait()

	history, err := s.service.ReviewHistory(s.ctx, "actor-1", itemID)
	s.Require().NoError(err)
	s.Len(history, 8)

	var reps int
	s.Require().NoError(s.db.QueryRow(`SELECT repetitions FROM review_items WHERE id = ?`, itemID).Scan(&reps))
	s.Equal(8, reps)
}

func TestSchedulingServiceSuite(t *testing.T) {
	suite.Run(t, new(SchedulingServiceSuite))
}

func TestRecordReview_ItemRetiredMidReview(t *testing.T) {
	items := new(mocks.MockReviewItemRepository)
	svc := NewSchedulingService(new(mocks.MockCardRepository), items, flashcard.NewScheduler(flashcard.Config{}),
		WithClock(testutil.FixedClock(day0)))

	item := &models.ReviewItem{ID: 7, ActorKey: "actor-1", EaseFactor: 2.5, DueAt: day0}
	items.On("Get", mock.Anything, int64(7)).Return(item, nil)
	items.On("ApplyReview", mock.Anything, mock.Anything, mock.Anything).Return(nil, sql.ErrNoRows)

	_, err := svc.RecordReview(context.Background(), "actor-1", 7, models.Good, 0)
	assert.True(t, stderrors.Is(err, errors.ErrNotFound))
}

func TestRecordReview_StorageFailure(t *testing.T) {
	items := new(mocks.MockReviewItemRepository)
	svc := NewSchedulingService(new(mocks.MockCardRepository), items, flashcard.NewScheduler(flashcard.Config{}))

	items.On("Get", mock.Anything, int64(7)).Return(nil, stderrors.New("database is locked"))

	_, err := svc.RecordReview(context.Background(), "actor-1", 7, models.Good, 0)
	assert.True(t, stderrors.Is(err, errors.ErrInternal))
}

func TestCreateCard_StorageFailure(t *testing.T) {
	cards := new(mocks.MockCardRepository)
	svc := NewSchedulingService(cards, new(mocks.MockReviewItemRepository), flashcard.NewScheduler(flashcard.Config{}),
		WithClock(testutil.FixedClock(day0)))

	cards.On("CreateWithItems", mock.Anything, mock.Anything, mock.MatchedBy(func(items []models.ReviewItem) bool {
		return len(items) == 1 && items[0].EaseFactor == flashcard.DefaultInitialEase && items[0].DueAt.Equal(day0)
	})).Return(nil, nil, stderrors.New("constraint failed"))

	_, err := svc.CreateCard(context.Background(), "actor-1", models.Card{Type: models.CardPlain, Front: "a", Back: "b"})
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrInternal))
	cards.AssertExpectations(t)
}
