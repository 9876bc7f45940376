// Package analysis turns a finished session's transcript into a list of
// corrections for the learner.
package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/vytor/lingoflash/internal/completion"
	"github.com/vytor/lingoflash/internal/errors"
	"github.com/vytor/lingoflash/internal/logger"
	"github.com/vytor/lingoflash/internal/models"
)

const defaultMaxOutputTokens = 1500

// correctionList is the shape the model is asked to produce.
type correctionList struct {
	Corrections []models.Correction `json:"corrections" jsonschema:"description=One entry per mistake found in the learner turns"`
}

// rawList decodes entries one by one so a malformed entry cannot sink the rest.
type rawList struct {
	Corrections []json.RawMessage `json:"corrections"`
}

var correctionSchema = completion.GenerateSchema[correctionList]()

// Analyzer asks the completion service to review a transcript.
type Analyzer struct {
	completer completion.Completer
	validate  *validator.Validate
}

func NewAnalyzer(completer completion.Completer) *Analyzer {
	return &Analyzer{
		completer: completer,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Analyze returns the mistakes found in the learner's turns, ordered by turn.
// Entries that fail validation are dropped; an unreadable response yields an
// empty list rather than an error.
func (a *Analyzer) Analyze(ctx context.Context, s *models.Session) ([]models.Correction, error) {
	log := logger.FromContext(ctx).WithPrefix("analysis")

	if s == nil {
		return nil, errors.NewBadRequestError("session is required")
	}
	if !s.Ended() {
		return nil, errors.NewSessionNotEndedError(s.ID)
	}

	actorTurns := make(map[int]models.Turn)
	for _, t := range s.Turns {
		if t.Speaker == models.SpeakerActor {
			actorTurns[t.Seq] = t
		}
	}
	if len(actorTurns) == 0 {
		log.Debug("session %s has no learner turns, nothing to analyze", s.ID)
		return []models.Correction{}, nil
	}

	out, err := a.completer.Complete(ctx, completion.Request{
		Instructions:    instructions(s),
		Messages:        []completion.Message{{Role: completion.RoleUser, Content: transcript(s)}},
		LanguageHint:    s.Language,
		Schema:          correctionSchema,
		SchemaName:      "corrections",
		MaxOutputTokens: defaultMaxOutputTokens,
	})
	if err != nil {
		return nil, err
	}

	var raw rawList
	if err := completion.DecodeJSON(out, &raw); err != nil {
		log.Warn("analysis output for session %s is not a correction list: %v", s.ID, err)
		return []models.Correction{}, nil
	}

	corrections := make([]models.Correction, 0, len(raw.Corrections))
	seen := make(map[string]bool)
	for i, entry := range raw.Corrections {
		c, err := a.parseEntry(entry, actorTurns)
		if err != nil {
			log.Debug("dropping entry %d for session %s: %v", i, s.ID, err)
			continue
		}
		key := fmt.Sprintf("%d\x00%s", c.TurnNumber, strings.ToLower(c.ErrorSpan))
		if seen[key] {
			continue
		}
		seen[key] = true
		corrections = append(corrections, c)
	}
	sort.SliceStable(corrections, func(i, j int) bool {
		return corrections[i].TurnNumber < corrections[j].TurnNumber
	})

	log.Info("analyzed session %s: corrections=%d, dropped=%d", s.ID, len(corrections), len(raw.Corrections)-len(corrections))
	return corrections, nil
}

func (a *Analyzer) parseEntry(entry json.RawMessage, actorTurns map[int]models.Turn) (models.Correction, error) {
	var c models.Correction
	if err := json.Unmarshal(entry, &c); err != nil {
		return c, errors.NewSchemaValidationError("entry does not match the correction schema", err)
	}
	c.ErrorSpan = strings.TrimSpace(c.ErrorSpan)
	c.Correction = strings.TrimSpace(c.Correction)
	c.Explanation = strings.TrimSpace(c.Explanation)

	if err := a.validate.Struct(c); err != nil {
		return c, errors.NewSchemaValidationError("entry failed validation", err)
	}
	turn, ok := actorTurns[c.TurnNumber]
	if !ok {
		return c, errors.NewSchemaValidationError(fmt.Sprintf("turn %d is not a learner turn", c.TurnNumber), nil)
	}
	if !strings.Contains(strings.ToLower(turn.Text), strings.ToLower(c.ErrorSpan)) {
		return c, errors.NewSchemaValidationError(fmt.Sprintf("span %q not found in turn %d", c.ErrorSpan, c.TurnNumber), nil)
	}
	return c, nil
}

// Annotate returns a copy of the session with each correction attached to
// its turn. A turn keeps only the first correction that names it.
func Annotate(s *models.Session, corrections []models.Correction) *models.Session {
	out := s.Clone()
	index := make(map[int]int, len(out.Turns))
	for i, t := range out.Turns {
		index[t.Seq] = i
	}
	for _, c := range corrections {
		i, ok := index[c.TurnNumber]
		if !ok || out.Turns[i].Correction != nil {
			continue
		}
		corr := c
		out.Turns[i].Correction = &corr
	}
	return out
}

func instructions(s *models.Session) string {
	return fmt.Sprintf(`You review a language-learning conversation held in %s at CEFR level %s.
Find the grammar, vocabulary and spelling mistakes in the learner turns only. Ignore tutor turns.
For each mistake give the learner turn number, the erroneous text copied exactly from that turn,
the corrected form, and a short explanation.
Return {"corrections": []} when there are no mistakes.`, s.Language, s.Level)
}

func transcript(s *models.Session) string {
	var b strings.Builder
	for _, t := range s.Turns {
		who := "tutor"
		if t.Speaker == models.SpeakerActor {
			who = "learner"
		}
		fmt.Fprintf(&b, "Turn %d (%s): %s\n", t.Seq, who, t.Text)
	}
	return b.String()
}
