package dialog

import (
	"fmt"
	"strings"

	"github.com/vytor/lingoflash/internal/completion"
	"github.com/vytor/lingoflash/internal/models"
)

const maxContentExcerpt = 1500

const openingCue = "Start the conversation."

func tutorInstructions(s *models.Session, content *models.Content) string {
	lang := languageName(s.Language)
	var b strings.Builder
	fmt.Fprintf(&b, "You are a friendly %s conversation tutor for a learner at CEFR level %s.\n", lang, s.Level)
	fmt.Fprintf(&b, "Reply only in %s, using vocabulary and grammar suited to level %s.\n", lang, s.Level)
	b.WriteString("Keep each reply to two or three sentences and end with a question that keeps the learner talking.\n")
	b.WriteString("Do not correct the learner's mistakes during the conversation.\n")
	if content != nil {
		fmt.Fprintf(&b, "\nThe conversation is about the text %q:\n%s\n", content.Title, excerpt(content.Body))
	}
	fmt.Fprintf(&b, "\nThis is exchange %d of at most %d.", s.TurnCount+1, s.MaxTurns)
	if s.TurnCount+1 >= s.MaxTurns {
		b.WriteString(" It is the last one: wrap the conversation up warmly.")
	}
	return b.String()
}

func correctiveInstruction(language string) string {
	lang := languageName(language)
	return fmt.Sprintf("\n\nYour previous reply was not written in %s. Answer again, entirely in %s.", lang, lang)
}

func excerpt(body string) string {
	body = strings.TrimSpace(body)
	r := []rune(body)
	if len(r) <= maxContentExcerpt {
		return body
	}
	return string(r[:maxContentExcerpt]) + "…"
}

// history maps turns onto completion messages, learner turns as user input.
func history(turns []models.Turn) []completion.Message {
	msgs := make([]completion.Message, 0, len(turns)+1)
	for _, t := range turns {
		role := completion.RoleAssistant
		if t.Speaker == models.SpeakerActor {
			role = completion.RoleUser
		}
		msgs = append(msgs, completion.Message{Role: role, Content: t.Text})
	}
	return msgs
}
