package slug

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var slugRegexp = regexp.MustCompile(`[^a-z0-9]+`)

// Letters that do not decompose into a base letter plus combining mark.
var foldReplacer = strings.NewReplacer(
	"ı", "i",
	"ł", "l",
	"ø", "o",
	"đ", "d",
	"ß", "ss",
	"æ", "ae",
	"œ", "oe",
)

// Generate creates a URL-friendly slug from the given name. Accented
// letters are folded to their ASCII base letter.
//
// Examples:
//   - "Pokémon Scarlet" → "pokemon-scarlet"
//   - "Çocuk Ürünleri" → "cocuk-urunleri"
//   - "Hello   World!" → "hello-world"
func Generate(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = Fold(s)
	s = slugRegexp.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// Fold strips combining marks after canonical decomposition, so "é"
// becomes "e". Input that fails to transform is returned unchanged.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return foldReplacer.Replace(out)
}
