package flashcard

import (
	"cmp"
	"math"
	"slices"
	"time"

	"github.com/vytor/lingoflash/internal/errors"
	"github.com/vytor/lingoflash/internal/models"
)

const (
	MinEaseFactor          = 1.3
	DefaultInitialEase     = 2.5
	DefaultMaxIntervalDays = 180

	day = 24 * time.Hour
)

// Config tunes the scheduler. Zero values take the defaults.
type Config struct {
	MaxIntervalDays int
	InitialEase     float64
}

// Scheduler implements an SM-2 variant over four ratings.
type Scheduler struct {
	maxInterval int
	initialEase float64
}

func NewScheduler(cfg Config) *Scheduler {
	if cfg.MaxIntervalDays <= 0 {
		cfg.MaxIntervalDays = DefaultMaxIntervalDays
	}
	if cfg.InitialEase < MinEaseFactor {
		cfg.InitialEase = DefaultInitialEase
	}
	return &Scheduler{maxInterval: cfg.MaxIntervalDays, initialEase: cfg.InitialEase}
}

// NewItemState gives a freshly expanded item its initial scheduling state.
// New items are due immediately.
func (s *Scheduler) NewItemState(item models.ReviewItem, now time.Time) models.ReviewItem {
	item.EaseFactor = s.initialEase
	item.IntervalDays = 0
	item.Repetitions = 0
	item.Lapses = 0
	item.DueAt = now
	item.LastReviewedAt = nil
	return item
}

// Review applies rating to item and returns the updated item together with
// the record to append. quality: 0=Again, 1=Hard, 2=Good, 3=Easy
func (s *Scheduler) Review(item models.ReviewItem, rating models.Rating, now time.Time) (models.ReviewItem, models.ReviewRecord, error) {
	if !rating.IsValid() {
		return item, models.ReviewRecord{}, errors.NewValidationError("rating", "must be one of again, hard, good, easy")
	}

	q := float64(3 - rating.Quality())
	ef := item.EaseFactor
	if ef == 0 {
		ef = s.initialEase
	}
	ef = ef + 0.1 - q*(0.08+q*0.02)
	ef = math.Round(ef*100) / 100
	if ef < MinEaseFactor {
		ef = MinEaseFactor
	}

	prev := item.IntervalDays
	interval := 1
	if rating == models.Again {
		item.Repetitions = 0
		item.Lapses++
	} else {
		item.Repetitions++
		interval = int(math.Round(float64(prev) * ef))
		if interval < 1 {
			interval = 1
		}
		if rating >= models.Good && interval < prev {
			interval = prev
		}
		if interval > s.maxInterval {
			interval = s.maxInterval
		}
	}

	reviewedAt := now
	item.EaseFactor = ef
	item.IntervalDays = interval
	item.DueAt = now.Add(time.Duration(interval) * day)
	item.LastReviewedAt = &reviewedAt

	record := models.ReviewRecord{
		ReviewItemID: item.ID,
		Rating:       rating,
		ReviewedAt:   now,
		IntervalDays: interval,
		EaseFactor:   ef,
	}
	return item, record, nil
}

// DueItems returns the items due at asOf, oldest due first. Ties fall back to
// card creation order so the result is deterministic.
func DueItems(items []models.ReviewItem, asOf time.Time) []models.ReviewItem {
	due := make([]models.ReviewItem, 0, len(items))
	for _, item := range items {
		if !item.DueAt.After(asOf) {
			due = append(due, item)
		}
	}
	slices.SortStableFunc(due, compareDue)
	return due
}

func compareDue(a, b models.ReviewItem) int {
	if c := a.DueAt.Compare(b.DueAt); c != 0 {
		return c
	}
	if c := a.CardCreatedAt.Compare(b.CardCreatedAt); c != 0 {
		return c
	}
	if c := cmp.Compare(a.CardID, b.CardID); c != 0 {
		return c
	}
	return cmp.Compare(a.VariantIndex, b.VariantIndex)
}
