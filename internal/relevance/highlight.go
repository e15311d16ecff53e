package relevance

import (
	"html"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/sedirimou/Gameva-sub003/pkg/slug"
)

const (
	markOpen  = "<mark>"
	markClose = "</mark>"
)

// folded is text folded rune by rune, remembering where each folded rune
// came from in the original string.
type folded struct {
	runes []rune
	start []int
	end   []int
}

func foldText(text string) folded {
	var f folded
	for i, r := range text {
		_, size := utf8.DecodeRuneInString(text[i:])
		for _, fr := range slug.Fold(string(unicode.ToLower(r))) {
			f.runes = append(f.runes, fr)
			f.start = append(f.start, i)
			f.end = append(f.end, i+size)
		}
	}
	return f
}

// Highlight wraps every occurrence of a term in text with <mark> tags.
// Matching ignores case and accents, and the rest of text is HTML-escaped.
// It returns "" when no term occurs.
func Highlight(text string, terms []string) string {
	if text == "" || len(terms) == 0 {
		return ""
	}
	f := foldText(text)

	// marked[i] is true when original byte i falls inside a match.
	marked := make([]bool, len(text))
	found := false
	for _, term := range terms {
		tr := []rune(term)
		if len(tr) == 0 {
			continue
		}
		for i := 0; i+len(tr) <= len(f.runes); i++ {
			if !runesEqual(f.runes[i:i+len(tr)], tr) {
				continue
			}
			found = true
			for b := f.start[i]; b < f.end[i+len(tr)-1]; b++ {
				marked[b] = true
			}
		}
	}
	if !found {
		return ""
	}

	var sb strings.Builder
	inMark := false
	segStart := 0
	flush := func(to int) {
		sb.WriteString(html.EscapeString(text[segStart:to]))
		segStart = to
	}
	for i := 0; i < len(text); i++ {
		if marked[i] == inMark {
			continue
		}
		flush(i)
		if marked[i] {
			sb.WriteString(markOpen)
		} else {
			sb.WriteString(markClose)
		}
		inMark = marked[i]
	}
	flush(len(text))
	if inMark {
		sb.WriteString(markClose)
	}
	return sb.String()
}

func runesEqual(a, b []rune) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Highlights returns highlighted name and description snippets for the
// query terms, omitting fields without a match.
func Highlights(name, description string, q Query) map[string]string {
	if q.MatchAll() {
		return nil
	}
	out := map[string]string{}
	if h := Highlight(name, q.Terms); h != "" {
		out["name"] = h
	}
	if h := Highlight(description, q.Terms); h != "" {
		out["description"] = h
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
