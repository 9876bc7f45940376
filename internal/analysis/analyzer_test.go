package analysis_test

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vytor/lingoflash/internal/analysis"
	"github.com/vytor/lingoflash/internal/completion"
	"github.com/vytor/lingoflash/internal/errors"
	"github.com/vytor/lingoflash/internal/models"
)

func endedSession() *models.Session {
	return &models.Session{
		ID:       "s1",
		Level:    "B1",
		Language: "es",
		Status:   models.SessionEnded,
		Turns: []models.Turn{
			{Seq: 1, Speaker: models.SpeakerAssistant, Text: "¿Qué te gusta hacer?"},
			{Seq: 2, Speaker: models.SpeakerActor, Text: "Me gusta leer libros"},
			{Seq: 3, Speaker: models.SpeakerAssistant, Text: "¿Qué libros lees?"},
			{Seq: 4, Speaker: models.SpeakerActor, Text: "Yo leo los novelas de misterio"},
			{Seq: 5, Speaker: models.SpeakerAssistant, Text: "¡Qué bien!"},
		},
	}
}

func reply(text string, err error) (completion.ProviderFunc, *completion.Request) {
	var seen completion.Request
	return func(_ context.Context, req completion.Request) (string, error) {
		seen = req
		return text, err
	}, &seen
}

func TestAnalyze_RequiresEndedSession(t *testing.T) {
	f, _ := reply(`{"corrections":[]}`, nil)
	s := endedSession()
	s.Status = models.SessionActive

	_, err := analysis.NewAnalyzer(f).Analyze(context.Background(), s)
	assert.True(t, stderrors.Is(err, errors.ErrSessionNotEnded))
}

func TestAnalyze_NoMistakes(t *testing.T) {
	f, req := reply(`{"corrections":[]}`, nil)

	got, err := analysis.NewAnalyzer(f).Analyze(context.Background(), endedSession())
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	assert.Contains(t, req.Messages[0].Content, "Turn 4 (learner): Yo leo los novelas de misterio")
	assert.Equal(t, "corrections", req.SchemaName)
	assert.NotNil(t, req.Schema)
}

func TestAnalyze_KeepsValidEntriesAndDropsTheRest(t *testing.T) {
	out := `Here you go:
{"corrections": [
  {"turn_number": 4, "error_span": "los novelas", "correction": "las novelas", "explanation": "Novela es femenino."},
  {"turn_number": 3, "error_span": "libros", "correction": "los libros", "explanation": "Turno del tutor."},
  {"turn_number": 2, "error_span": "comer", "correction": "leer", "explanation": "No aparece en el turno."},
  {"turn_number": "2", "error_span": "Me", "correction": "A mí me", "explanation": "Tipo incorrecto."},
  {"turn_number": 2, "error_span": "libros", "correction": "libros", "explanation": "Sin cambio."},
  {"turn_number": 2, "error_span": "Me gusta", "correction": "A mí me gusta", "explanation": ""},
  {"turn_number": 2, "error_span": "Me gusta leer", "correction": "Me gusta mucho leer", "explanation": "Más natural."},
  {"turn_number": 4, "error_span": "LOS NOVELAS", "correction": "las novelas", "explanation": "Duplicado."}
]}`
	f, _ := reply(out, nil)

	got, err := analysis.NewAnalyzer(f).Analyze(context.Background(), endedSession())
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, 2, got[0].TurnNumber)
	assert.Equal(t, "Me gusta leer", got[0].ErrorSpan)
	assert.Equal(t, 4, got[1].TurnNumber)
	assert.Equal(t, "las novelas", got[1].Correction)
}

func TestAnalyze_UndecodableOutputIsEmpty(t *testing.T) {
	f, _ := reply("I could not find anything wrong!", nil)

	got, err := analysis.NewAnalyzer(f).Analyze(context.Background(), endedSession())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestAnalyze_UpstreamFailurePropagates(t *testing.T) {
	f, _ := reply("", errors.NewUpstreamUnavailableError(3, stderrors.New("timeout")))

	_, err := analysis.NewAnalyzer(f).Analyze(context.Background(), endedSession())
	assert.True(t, stderrors.Is(err, errors.ErrUpstreamUnavailable))
}

func TestAnalyze_NoLearnerTurnsSkipsCompletion(t *testing.T) {
	called := false
	f := completion.ProviderFunc(func(context.Context, completion.Request) (string, error) {
		called = true
		return "", nil
	})
	s := &models.Session{ID: "s2", Status: models.SessionEnded, Turns: []models.Turn{{Seq: 1, Speaker: models.SpeakerAssistant, Text: "Hola"}}}

	got, err := analysis.NewAnalyzer(f).Analyze(context.Background(), s)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.False(t, called)
}

func TestAnnotate(t *testing.T) {
	s := endedSession()
	corrections := []models.Correction{
		{TurnNumber: 4, ErrorSpan: "los novelas", Correction: "las novelas", Explanation: "x"},
		{TurnNumber: 4, ErrorSpan: "leo", Correction: "leí", Explanation: "y"},
		{TurnNumber: 99, ErrorSpan: "a", Correction: "b", Explanation: "z"},
	}

	out := analysis.Annotate(s, corrections)
	require.NotNil(t, out.Turns[3].Correction)
	assert.Equal(t, "las novelas", out.Turns[3].Correction.Correction)
	assert.Nil(t, out.Turns[1].Correction)
	assert.Nil(t, s.Turns[3].Correction, "original session must not change")
}
