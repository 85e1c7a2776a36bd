package merge

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stripMarks removes combining marks so accented and bare forms of the same
// word compare equal ("привіт" from different decoder passes, "café"/"cafe").
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// normalizeToken folds a token to its comparison form: lowercase, combining
// marks stripped, leading/trailing punctuation removed. Returns "" for
// tokens that are pure punctuation.
func normalizeToken(token string) string {
	folded, _, err := transform.String(stripMarks, strings.ToLower(token))
	if err != nil {
		// Transform only fails on invalid UTF-8; fall back to the lowercased
		// original so a stray byte never breaks the anchor search.
		folded = strings.ToLower(token)
	}

	return strings.TrimFunc(folded, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSymbol(r)
	})
}

// tokenize splits text on whitespace and returns the original tokens
// alongside their normalized comparison forms. Tokens that normalize to
// nothing keep their place so the original text can always be reassembled.
func tokenize(text string) ([]string, []string) {
	raw := strings.Fields(text)
	normalized := make([]string, len(raw))
	for i, tok := range raw {
		normalized[i] = normalizeToken(tok)
	}
	return raw, normalized
}

// hasContent reports whether any normalized token is non-empty.
func hasContent(normalized []string) bool {
	for _, tok := range normalized {
		if tok != "" {
			return true
		}
	}
	return false
}
