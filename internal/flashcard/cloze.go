package flashcard

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/vytor/lingoflash/internal/errors"
	"github.com/vytor/lingoflash/internal/models"
)

const (
	clozeOpen        = "{{"
	clozeClose       = "}}"
	clozeSep         = "::"
	clozePlaceholder = "[...]"
)

// segment is either literal text (label == 0) or one deletion span.
type segment struct {
	label int
	text  string
	hint  string
}

// Expand turns a card into its review items, ordered by variant index.
// Only content fields are set; scheduling state is left to the Scheduler.
func Expand(card models.Card) ([]models.ReviewItem, error) {
	base := models.ReviewItem{
		CardID:        card.ID,
		ActorKey:      card.ActorKey,
		CardCreatedAt: card.CreatedAt,
	}

	switch card.Type {
	case models.CardPlain, models.CardPlainWithContext:
		if err := requireSides(card); err != nil {
			return nil, err
		}
		item := base
		item.Prompt = card.Front
		item.Answer = card.Back
		if card.Type == models.CardPlainWithContext {
			item.Context = card.Context
		}
		return []models.ReviewItem{item}, nil

	case models.CardPlainReversed:
		if err := requireSides(card); err != nil {
			return nil, err
		}
		forward, backward := base, base
		forward.VariantIndex, forward.Prompt, forward.Answer = 0, card.Front, card.Back
		backward.VariantIndex, backward.Prompt, backward.Answer = 1, card.Back, card.Front
		return []models.ReviewItem{forward, backward}, nil

	case models.CardCloze:
		return expandCloze(base, card)
	}
	return nil, errors.NewValidationError("type", fmt.Sprintf("unknown card type %q", card.Type))
}

func requireSides(card models.Card) error {
	if strings.TrimSpace(card.Front) == "" {
		return errors.NewValidationError("front", "must not be empty")
	}
	if strings.TrimSpace(card.Back) == "" {
		return errors.NewValidationError("back", "must not be empty")
	}
	return nil
}

func expandCloze(base models.ReviewItem, card models.Card) ([]models.ReviewItem, error) {
	segments, err := parseCloze(card.Content)
	if err != nil {
		return nil, err
	}

	seen := make(map[int]bool)
	var labels []int
	for _, s := range segments {
		if s.label > 0 && !seen[s.label] {
			seen[s.label] = true
			labels = append(labels, s.label)
		}
	}
	if len(labels) == 0 {
		return nil, errors.NewInvalidClozeSyntaxError("no labeled deletion found")
	}
	sort.Ints(labels)

	items := make([]models.ReviewItem, 0, len(labels))
	for _, label := range labels {
		var prompt strings.Builder
		var answers, hints []string
		for _, s := range segments {
			switch {
			case s.label == 0:
				prompt.WriteString(s.text)
			case s.label == label:
				if s.hint != "" {
					prompt.WriteString("[" + s.hint + "]")
					hints = append(hints, s.hint)
				} else {
					prompt.WriteString(clozePlaceholder)
				}
				answers = append(answers, s.text)
			default:
				prompt.WriteString(s.text)
			}
		}

		item := base
		item.VariantIndex = label - 1
		item.Prompt = prompt.String()
		item.Answer = strings.Join(answers, ", ")
		item.Hint = strings.Join(hints, ", ")
		item.Context = card.Context
		items = append(items, item)
	}
	return items, nil
}

// parseCloze splits markup into literal text and deletion spans. Spans look
// like {{c1::text}}, {{1::text}} or {{c1::text::hint}}.
func parseCloze(markup string) ([]segment, error) {
	var segments []segment
	rest := markup
	for {
		open := strings.Index(rest, clozeOpen)
		if open < 0 {
			if rest != "" {
				segments = append(segments, segment{text: rest})
			}
			return segments, nil
		}
		if open > 0 {
			segments = append(segments, segment{text: rest[:open]})
		}
		rest = rest[open+len(clozeOpen):]

		end := strings.Index(rest, clozeClose)
		if end < 0 {
			return nil, errors.NewInvalidClozeSyntaxError("unterminated deletion span")
		}
		span, err := parseSpan(rest[:end])
		if err != nil {
			return nil, err
		}
		segments = append(segments, span)
		rest = rest[end+len(clozeClose):]
	}
}

func parseSpan(body string) (segment, error) {
	if strings.Contains(body, clozeOpen) {
		return segment{}, errors.NewInvalidClozeSyntaxError("nested deletion span")
	}
	parts := strings.SplitN(body, clozeSep, 3)
	if len(parts) < 2 {
		return segment{}, errors.NewInvalidClozeSyntaxError(fmt.Sprintf("span %q has no label", body))
	}

	raw := strings.TrimSpace(parts[0])
	raw = strings.TrimPrefix(strings.TrimPrefix(raw, "c"), "C")
	label, err := strconv.Atoi(raw)
	if err != nil || label < 1 {
		return segment{}, errors.NewInvalidClozeSyntaxError(fmt.Sprintf("invalid label %q", parts[0]))
	}

	text := parts[1]
	if strings.TrimSpace(text) == "" {
		return segment{}, errors.NewInvalidClozeSyntaxError(fmt.Sprintf("label %d has an empty span", label))
	}
	s := segment{label: label, text: text}
	if len(parts) == 3 {
		s.hint = strings.TrimSpace(parts[2])
	}
	return s, nil
}

// Reconciliation is the outcome of re-expanding an edited card.
type Reconciliation struct {
	// Keep holds existing items whose variant survived, with refreshed content
	// and untouched scheduling state.
	Keep   []models.ReviewItem
	Create []models.ReviewItem
	Remove []models.ReviewItem
}

// Reconcile re-expands card and matches the result against the items that
// already exist for it, by variant index.
func Reconcile(card models.Card, existing []models.ReviewItem) (Reconciliation, error) {
	fresh, err := Expand(card)
	if err != nil {
		return Reconciliation{}, err
	}

	byVariant := make(map[int]models.ReviewItem, len(existing))
	for _, item := range existing {
		byVariant[item.VariantIndex] = item
	}

	var r Reconciliation
	for _, item := range fresh {
		old, ok := byVariant[item.VariantIndex]
		if !ok {
			r.Create = append(r.Create, item)
			continue
		}
		old.Prompt = item.Prompt
		old.Answer = item.Answer
		old.Hint = item.Hint
		old.Context = item.Context
		r.Keep = append(r.Keep, old)
		delete(byVariant, item.VariantIndex)
	}
	for _, item := range existing {
		if _, gone := byVariant[item.VariantIndex]; gone {
			r.Remove = append(r.Remove, item)
		}
	}
	return r, nil
}
