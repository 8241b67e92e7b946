package query

import (
	"strings"
	"unicode"
)

const maxTerms = 32

var stopwords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`
		a about above after all also am an and any are as at be been before
		being between both but by can could did do does doing done during each
		few for from had has have having he her here hers him his how i if in
		into is it its itself just me more most my no nor not now of off on
		once only or other our ours out over own same she should so some such
		than that the their theirs them then there these they this those
		through to too under until up very was we were what when where which
		while who whom why will with would you your yours
		tell show explain describe list give find know please
		relate related relationship relationships connected connection between`) {
		stopwords[w] = struct{}{}
	}
}

func isStopword(w string) bool {
	_, ok := stopwords[w]
	return ok
}

// tokenize lowercases s and splits it on everything that is not a letter or
// digit. Inner hyphens and dots are kept so "gpt-4" and "node.js" survive.
func tokenize(s string) []string {
	var tokens []string
	var cur strings.Builder
	runes := []rune(strings.ToLower(s))
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}
	for i, r := range runes {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			cur.WriteRune(r)
		case (r == '-' || r == '.') && cur.Len() > 0 && i+1 < len(runes) &&
			(unicode.IsLetter(runes[i+1]) || unicode.IsDigit(runes[i+1])):
			cur.WriteRune(r)
		default:
			flush()
		}
	}
	flush()
	return tokens
}

// KeyTerms returns the content words of a question in order of first
// appearance.
func KeyTerms(question string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, tok := range tokenize(question) {
		if isStopword(tok) {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}

// matchTerms returns the phrases used to look entities up by name: every
// run of up to three consecutive tokens that neither starts nor ends with a
// stopword, longest first, followed by the single key terms.
func matchTerms(question string) []string {
	tokens := tokenize(question)
	seen := map[string]struct{}{}
	var out []string
	add := func(term string) {
		if _, dup := seen[term]; dup || len(out) >= maxTerms {
			return
		}
		seen[term] = struct{}{}
		out = append(out, term)
	}
	for n := 3; n >= 2; n-- {
		for i := 0; i+n <= len(tokens); i++ {
			if isStopword(tokens[i]) || isStopword(tokens[i+n-1]) {
				continue
			}
			add(strings.Join(tokens[i:i+n], " "))
		}
	}
	for _, t := range KeyTerms(question) {
		add(t)
	}
	return out
}
