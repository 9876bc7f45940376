package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/cobra"
	"github.com/vytor/lingoflash/internal/flashcard"
	"github.com/vytor/lingoflash/internal/models"
)

var cardsCmd = &cobra.Command{
	Use:   "cards",
	Short: "Work with flashcards offline",
}

var cardsExpandCmd = &cobra.Command{
	Use:   "expand",
	Short: "Print the review items a card expands into",
	Long: `Print the review items a card expands into.

The card is read from --file (YAML or JSON) and individual flags override
the file's fields.

Examples:
  lingoflash cards expand --type cloze --content "El {{c1::gato}} duerme en la {{c2::cama::mueble}}."
  lingoflash cards expand --type plain-reversed --front casa --back house --json
  lingoflash cards expand --file card.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		card, err := cardFromFlags(cmd)
		if err != nil {
			return err
		}

		items, err := flashcard.Expand(card)
		if err != nil {
			return err
		}

		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			return writeItemsJSON(cmd.OutOrStdout(), items)
		}
		return writeItemsTable(cmd.OutOrStdout(), items)
	},
}

func init() {
	cardsExpandCmd.Flags().String("file", "", "YAML or JSON file holding the card")
	cardsExpandCmd.Flags().String("type", "", "card type (plain, plain-reversed, plain-with-context, cloze)")
	cardsExpandCmd.Flags().String("front", "", "front side")
	cardsExpandCmd.Flags().String("back", "", "back side")
	cardsExpandCmd.Flags().String("content", "", "cloze markup")
	cardsExpandCmd.Flags().String("context", "", "context shown with the prompt")
	cardsExpandCmd.Flags().Bool("json", false, "print items as JSON")

	cardsCmd.AddCommand(cardsExpandCmd)
}

func cardFromFlags(cmd *cobra.Command) (models.Card, error) {
	var card models.Card

	if path, _ := cmd.Flags().GetString("file"); path != "" {
		// YAML is a superset of JSON, so one parser reads both.
		k := koanf.New(".")
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return card, fmt.Errorf("reading card file: %w", err)
		}
		if err := k.UnmarshalWithConf("", &card, koanf.UnmarshalConf{Tag: "json"}); err != nil {
			return card, fmt.Errorf("decoding card file: %w", err)
		}
	}

	flags := cmd.Flags()
	if flags.Changed("type") {
		t, _ := flags.GetString("type")
		card.Type = models.CardType(t)
	}
	for name, dst := range map[string]*string{
		"front":   &card.Front,
		"back":    &card.Back,
		"content": &card.Content,
		"context": &card.Context,
	} {
		if flags.Changed(name) {
			*dst, _ = flags.GetString(name)
		}
	}

	if card.Type == "" {
		return card, fmt.Errorf("--type or a file with a type is required")
	}
	return card, nil
}

type expandedItem struct {
	VariantIndex int    `json:"variant_index"`
	Prompt       string `json:"prompt"`
	Answer       string `json:"answer"`
	Hint         string `json:"hint,omitempty"`
	Context      string `json:"context,omitempty"`
}

func writeItemsJSON(w io.Writer, items []models.ReviewItem) error {
	out := make([]expandedItem, 0, len(items))
	for _, item := range items {
		out = append(out, expandedItem{
			VariantIndex: item.VariantIndex,
			Prompt:       item.Prompt,
			Answer:       item.Answer,
			Hint:         item.Hint,
			Context:      item.Context,
		})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(out)
}

func writeItemsTable(w io.Writer, items []models.ReviewItem) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VARIANT\tPROMPT\tANSWER\tHINT")
	for _, item := range items {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", item.VariantIndex, item.Prompt, item.Answer, item.Hint)
	}
	return tw.Flush()
}
