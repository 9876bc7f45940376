package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vytor/lingoflash/internal/errors"
)

// runCommand executes the root command with fresh flag values so earlier
// runs do not leak into later ones.
func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cardsExpandCmd.Flags().VisitAll(func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	})

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.Execute()
	return out.String(), err
}

func decodeItems(t *testing.T, out string) []expandedItem {
	t.Helper()
	var items []expandedItem
	require.NoError(t, json.Unmarshal([]byte(out), &items))
	return items
}

func TestCardsExpand_ClozeJSON(t *testing.T) {
	out, err := runCommand(t, "cards", "expand", "--type", "cloze", "--content", "A {{1::foo}} B {{2::bar}}.", "--json")
	require.NoError(t, err)

	items := decodeItems(t, out)
	require.Len(t, items, 2)
	assert.Equal(t, 0, items[0].VariantIndex)
	assert.Equal(t, "A [...] B bar.", items[0].Prompt)
	assert.Equal(t, "foo", items[0].Answer)
	assert.Equal(t, 1, items[1].VariantIndex)
	assert.Equal(t, "A foo B [...].", items[1].Prompt)
	assert.Equal(t, "bar", items[1].Answer)
}

func TestCardsExpand_Table(t *testing.T) {
	out, err := runCommand(t, "cards", "expand", "--type", "plain", "--front", "casa", "--back", "house")
	require.NoError(t, err)

	assert.Contains(t, out, "VARIANT")
	assert.Contains(t, out, "casa")
	assert.Contains(t, out, "house")
}

func TestCardsExpand_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "card.yaml")
	require.NoError(t, os.WriteFile(path, []byte("type: plain-reversed\nfront: casa\nback: house\n"), 0o600))

	out, err := runCommand(t, "cards", "expand", "--file", path, "--json")
	require.NoError(t, err)

	items := decodeItems(t, out)
	require.Len(t, items, 2)
	assert.Equal(t, "house", items[1].Prompt)
	assert.Equal(t, "casa", items[1].Answer)
}

func TestCardsExpand_FlagsOverrideJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "card.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"type": "plain", "front": "perro", "back": "cat"}`), 0o600))

	out, err := runCommand(t, "cards", "expand", "--file", path, "--back", "dog", "--json")
	require.NoError(t, err)

	items := decodeItems(t, out)
	require.Len(t, items, 1)
	assert.Equal(t, "perro", items[0].Prompt)
	assert.Equal(t, "dog", items[0].Answer)
}

func TestCardsExpand_Errors(t *testing.T) {
	_, err := runCommand(t, "cards", "expand", "--front", "a", "--back", "b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--type")

	_, err = runCommand(t, "cards", "expand", "--type", "cloze", "--content", "A {{c1::foo B")
	assert.ErrorIs(t, err, errors.ErrInvalidClozeSyntax)

	_, err = runCommand(t, "cards", "expand", "--file", filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
