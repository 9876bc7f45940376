package dialog_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vytor/lingoflash/internal/dialog"
)

func TestForeignShare(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		target string
		check  func(t *testing.T, share float64)
	}{
		{
			name:   "spanish reply for spanish target",
			text:   "¡Hola! ¿Te gusta leer libros en casa?",
			target: "es",
			check:  func(t *testing.T, s float64) { assert.Zero(t, s) },
		},
		{
			name:   "english reply for spanish target",
			text:   "Hello, I like to read about the sea.",
			target: "es",
			check:  func(t *testing.T, s float64) { assert.Equal(t, 1.0, s) },
		},
		{
			name:   "region subtag is ignored",
			text:   "Mañana vamos a leer el libro.",
			target: "es-MX",
			check:  func(t *testing.T, s float64) { assert.Zero(t, s) },
		},
		{
			name:   "accents do not matter",
			text:   "Tú también puedes leer aquí.",
			target: "es",
			check:  func(t *testing.T, s float64) { assert.Zero(t, s) },
		},
		{
			name:   "german markers",
			text:   "Ich lese gerne Bücher über Straßen.",
			target: "fr",
			check:  func(t *testing.T, s float64) { assert.Greater(t, s, 0.5) },
		},
		{
			name:   "mixed reply",
			text:   "Muy bien, but the book is in the casa.",
			target: "es",
			check: func(t *testing.T, s float64) {
				assert.Greater(t, s, 0.0)
				assert.Less(t, s, 1.0)
			},
		},
		{
			name:   "no recognizable tokens",
			text:   "Zyxwv qwrt 12345",
			target: "es",
			check:  func(t *testing.T, s float64) { assert.Zero(t, s) },
		},
		{
			name:   "unsupported target",
			text:   "Hello there",
			target: "ja",
			check:  func(t *testing.T, s float64) { assert.Zero(t, s) },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, dialog.ForeignShare(tt.text, tt.target))
		})
	}
}
