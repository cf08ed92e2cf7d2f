package scoring

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Pattern is one phrase of a rule table. Short or ambiguous phrases match on word boundaries only.
type Pattern struct {
	Text         string
	WordBoundary bool
}

// Sub matches phrase anywhere in the text.
func Sub(phrase string) Pattern { return Pattern{Text: phrase} }

// Word matches phrase only between word boundaries.
func Word(phrase string) Pattern { return Pattern{Text: phrase, WordBoundary: true} }

type matcher struct {
	phrase string
	re     *regexp.Regexp
}

func (m matcher) match(folded string) bool {
	if m.re != nil {
		return m.re.MatchString(folded)
	}
	return strings.Contains(folded, m.phrase)
}

type phraseSet []matcher

func compile(patterns []Pattern) phraseSet {
	set := make(phraseSet, 0, len(patterns))
	for _, p := range patterns {
		phrase := fold(p.Text)
		m := matcher{phrase: phrase}
		if p.WordBoundary {
			m.re = regexp.MustCompile(`\b` + regexp.QuoteMeta(phrase) + `\b`)
		}
		set = append(set, m)
	}
	return set
}

// first returns the first phrase found in text.
func (s phraseSet) first(folded string) (string, bool) {
	for _, m := range s {
		if m.match(folded) {
			return m.phrase, true
		}
	}
	return "", false
}

// all returns every phrase found in text.
func (s phraseSet) all(folded string) []string {
	var hits []string
	for _, m := range s {
		if m.match(folded) {
			hits = append(hits, m.phrase)
		}
	}
	return hits
}

// fold lower-cases text and strips diacritics so "Café" and "cafe" match the same phrase.
func fold(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

func join(parts ...string) string {
	nonEmpty := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, " \n ")
}
