package dialog

import (
	"strings"
	"unicode"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// The conformance check is a lexical heuristic: it counts tokens that belong
// to a known function-word list or carry a language-specific letter. Short or
// mixed replies can be misjudged.

var lexicons = map[string]map[string]struct{}{
	"es": wordSet(`el la los las un una unos unas a de del al y o que en es son esta estas este estos
		eso por para con sin no si muy mas pero como cuando donde porque yo tu usted ustedes nosotros
		ellos ellas ella mi mis su sus nuestro me te se le les nos lo hay ser estar tiene tienes tengo
		hace gusta gustan leer bien hola gracias tambien ahora aqui alli puedes puedo quieres quiero
		que cual cuales quien algo nada todo todos mucho poco otro otra libro libros dia casa
		hoy manana siempre nunca vez ya fue era han he has ha sobre entre hasta desde`),
	"fr": wordSet(`le la les un une des du de et ou que qui est sont dans pour avec sans ne pas
		plus mais comme quand ou parce je tu il elle nous vous ils elles mon ma mes ton ta tes son sa
		ses notre votre leur ce cette ces cet au aux y en a ai as avons avez ont etre avoir fait
		tres bien bonjour merci aussi ici oui non lire livre aime aimes quoi tout tous`),
	"de": wordSet(`der die das den dem des ein eine einen einem einer und oder ist sind nicht
		mit fur auf aus bei nach von zu im in ich du er sie es wir ihr mein dein sein unser euer
		auch aber wie wenn weil dass hier jetzt sehr gut hallo danke ja nein haben hat habe
		lesen buch gern gerne kein keine was wer wo`),
	"it": wordSet(`il lo la gli le un uno una di del della dei delle e che non per con sono
		sei siamo siete io tu lui lei noi voi loro mio mia tuo tua suo sua nel nella anche ma
		come quando perche molto bene ciao grazie qui adesso leggere libro piace cosa chi dove`),
	"pt": wordSet(`o a os as um uma uns umas de do da dos das e ou que em no na nos nas por
		para com sem nao sim muito mais mas como quando onde porque eu tu voce ele ela nos eles
		elas meu minha seu sua gosta gosto ler livro bem ola obrigado obrigada tambem aqui agora`),
	"la": wordSet(`et est sunt non in ad cum de ex ab sed quod qui quae quid ego tu nos vos
		esse sum es erat fuit hic haec hoc ille illa atque neque enim ergo iam nunc semper
		liber legere amo amat bene salve gratias`),
	"en": wordSet(`the a an and or of to in is are was were be been not with for on at by from
		this that these those it its i you he she we they my your his her our their me him us
		them do does did have has had but if because when where what who how very well hello
		thanks yes no read book like likes about also here now there`),
}

// marker letters that only appear in one of the supported languages.
var markers = map[rune]string{
	'ñ': "es",
	'ß': "de", 'ä': "de", 'ö': "de", 'ü': "de",
	'œ': "fr", 'è': "fr", 'ê': "fr", 'ë': "fr", 'î': "fr", 'û': "fr", 'ù': "fr",
	'ã': "pt", 'õ': "pt",
	'ì': "it", 'ò': "it",
}

func wordSet(words string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(words) {
		set[w] = struct{}{}
	}
	return set
}

// baseLanguage reduces a BCP-47 tag to the lexicon key, e.g. "es-MX" -> "es".
func baseLanguage(tag string) string {
	t, err := language.Parse(tag)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(tag))
	}
	base, _ := t.Base()
	return base.String()
}

// languageName is the English display name for a tag, falling back to the tag itself.
func languageName(tag string) string {
	t, err := language.Parse(tag)
	if err != nil {
		return tag
	}
	if name := display.English.Tags().Name(t); name != "" {
		return name
	}
	return tag
}

func supportedLanguage(tag string) bool {
	_, ok := lexicons[baseLanguage(tag)]
	return ok
}

// foldAccents builds a fresh transformer per call; chains are not safe for concurrent use.
func foldAccents() transform.Transformer {
	return transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
}

// ForeignShare returns the fraction of classified tokens in text that belong
// to a language other than target. Tokens no lexicon recognizes are ignored;
// a text with no classified tokens, or an unsupported target, scores 0.
func ForeignShare(text, target string) float64 {
	base := baseLanguage(target)
	targetWords, ok := lexicons[base]
	if !ok {
		return 0
	}

	fold := foldAccents()
	var native, foreign int
	for _, raw := range tokenize(text) {
		folded, _, err := transform.String(fold, raw)
		if err != nil {
			folded = raw
		}
		if _, ok := targetWords[folded]; ok {
			native++
			continue
		}
		if lang := classify(raw, folded); lang != "" {
			if lang == base {
				native++
			} else {
				foreign++
			}
		}
	}
	if native+foreign == 0 {
		return 0
	}
	return float64(foreign) / float64(native+foreign)
}

// classify returns the language a token marks, or "" when it is unknown.
func classify(raw, folded string) string {
	for _, r := range raw {
		if lang, ok := markers[r]; ok {
			return lang
		}
	}
	for lang, words := range lexicons {
		if _, ok := words[folded]; ok {
			return lang
		}
	}
	return ""
}
