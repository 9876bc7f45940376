package models

import "time"

// SessionStatus is the lifecycle state of a dialog session.
type SessionStatus string

const (
	SessionCreated SessionStatus = "created"
	SessionActive  SessionStatus = "active"
	SessionEnded   SessionStatus = "ended"
)

// Speaker identifies who produced a turn.
type Speaker string

const (
	SpeakerAssistant Speaker = "assistant"
	SpeakerActor     Speaker = "actor"
)

// Session is one guided conversation. It owns its turns by value.
// TurnCount counts exchanges: the opening plus one per actor reply.
type Session struct {
	ID         string        `json:"id"`
	ActorKey   string        `json:"actor_key"`
	ContentRef string        `json:"content_ref"`
	Level      string        `json:"level"`
	Language   string        `json:"language"`
	Turns      []Turn        `json:"turns"`
	Status     SessionStatus `json:"status"`
	TurnCount  int           `json:"turn_count"`
	MaxTurns   int           `json:"max_turns"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
	EndedAt    *time.Time    `json:"ended_at,omitempty"`
}

// Ended reports whether the session accepts no further turns.
func (s *Session) Ended() bool {
	return s.Status == SessionEnded
}

// Clone returns a deep copy safe to hand to callers outside the engine.
func (s *Session) Clone() *Session {
	c := *s
	c.Turns = make([]Turn, len(s.Turns))
	for i, t := range s.Turns {
		c.Turns[i] = t
		if t.Correction != nil {
			corr := *t.Correction
			c.Turns[i].Correction = &corr
		}
	}
	if s.EndedAt != nil {
		ended := *s.EndedAt
		c.EndedAt = &ended
	}
	return &c
}

// NextSeq is the sequence number the next appended turn will get.
func (s *Session) NextSeq() int {
	return len(s.Turns) + 1
}

// Turn is one utterance. Seq starts at 1 and has no gaps.
type Turn struct {
	Seq        int         `json:"seq"`
	Speaker    Speaker     `json:"speaker"`
	Text       string      `json:"text"`
	Correction *Correction `json:"correction,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
}

// Correction is one mistake found in an actor turn.
type Correction struct {
	TurnNumber  int    `json:"turn_number" jsonschema:"description=Sequence number of the learner turn containing the mistake" validate:"required,min=1"`
	ErrorSpan   string `json:"error_span" jsonschema:"description=Exact erroneous text copied from that turn" validate:"required"`
	Correction  string `json:"correction" jsonschema:"description=Corrected form of the erroneous text" validate:"required,nefield=ErrorSpan"`
	Explanation string `json:"explanation" jsonschema:"description=Short explanation in the learner's target language" validate:"required"`
}
