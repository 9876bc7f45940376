package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// CardType tags how a card expands into review items.
type CardType string

const (
	CardPlain            CardType = "plain"
	CardPlainReversed    CardType = "plain-reversed"
	CardPlainWithContext CardType = "plain-with-context"
	CardCloze            CardType = "cloze"
)

// Valid reports whether t is one of the known card types.
func (t CardType) Valid() bool {
	switch t {
	case CardPlain, CardPlainReversed, CardPlainWithContext, CardCloze:
		return true
	}
	return false
}

// Card is an authored template. Plain types use Front/Back; cloze cards
// carry their markup in Content.
type Card struct {
	ID        int64     `json:"id"`
	ActorKey  string    `json:"actor_key"`
	Type      CardType  `json:"type" validate:"required,oneof=plain plain-reversed plain-with-context cloze"`
	Front     string    `json:"front,omitempty"`
	Back      string    `json:"back,omitempty"`
	Content   string    `json:"content,omitempty"`
	Context   string    `json:"context,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ReviewItem is one independently schedulable unit derived from a Card.
// Identity is (CardID, VariantIndex).
type ReviewItem struct {
	ID             int64      `json:"id"`
	CardID         int64      `json:"card_id"`
	ActorKey       string     `json:"actor_key"`
	VariantIndex   int        `json:"variant_index"`
	Prompt         string     `json:"prompt"`
	Answer         string     `json:"answer"`
	Hint           string     `json:"hint,omitempty"`
	Context        string     `json:"context,omitempty"`
	EaseFactor     float64    `json:"ease_factor"`
	IntervalDays   int        `json:"interval_days"`
	DueAt          time.Time  `json:"due_at"`
	Repetitions    int        `json:"repetitions"`
	Lapses         int        `json:"lapses"`
	LastReviewedAt *time.Time `json:"last_reviewed_at,omitempty"`
	CardCreatedAt  time.Time  `json:"card_created_at"`
	CreatedAt      time.Time  `json:"created_at"`
}

// ReviewRecord is an append-only log entry for one review.
type ReviewRecord struct {
	ID           int64     `json:"id"`
	ReviewItemID int64     `json:"review_item_id"`
	Rating       Rating    `json:"rating"`
	ReviewedAt   time.Time `json:"reviewed_at"`
	IntervalDays int       `json:"interval_days"`
	EaseFactor   float64   `json:"ease_factor"`
	TimeSeconds  float64   `json:"time_seconds,omitempty"`
}

// Rating is the learner's self-assessed recall quality.
type Rating int

const (
	Again Rating = iota
	Hard
	Good
	Easy
)

var ratingNames = [...]string{Again: "again", Hard: "hard", Good: "good", Easy: "easy"}

// Quality maps the rating onto the 0..3 scale used by the scheduler.
func (r Rating) Quality() int { return int(r) }

// IsValid reports whether r is Again through Easy.
func (r Rating) IsValid() bool { return r >= Again && r <= Easy }

func (r Rating) String() string {
	if r.IsValid() {
		return ratingNames[r]
	}
	return fmt.Sprintf("Rating(%d)", int(r))
}

// ParseRating accepts the rating name in any case.
func ParseRating(s string) (Rating, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range ratingNames {
		if n == name {
			return Rating(i), nil
		}
	}
	return 0, fmt.Errorf("invalid rating %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (r Rating) MarshalText() ([]byte, error) {
	if !r.IsValid() {
		return nil, fmt.Errorf("invalid rating %d", int(r))
	}
	return []byte(ratingNames[r]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Rating) UnmarshalText(text []byte) error {
	v, err := ParseRating(string(text))
	if err != nil {
		return err
	}
	*r = v
	return nil
}

// MarshalJSON serializes the rating as its name.
func (r Rating) MarshalJSON() ([]byte, error) {
	text, err := r.MarshalText()
	if err != nil {
		return nil, err
	}
	return json.Marshal(string(text))
}

// UnmarshalJSON expects a JSON string.
func (r *Rating) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("invalid rating %s", data)
	}
	return r.UnmarshalText([]byte(s))
}

// CardWithItems is a card together with its active review items.
type CardWithItems struct {
	Card  Card         `json:"card"`
	Items []ReviewItem `json:"items"`
}

// ReviewOutcome is the item state after a review and the record it produced.
type ReviewOutcome struct {
	Item   ReviewItem   `json:"item"`
	Record ReviewRecord `json:"record"`
}
