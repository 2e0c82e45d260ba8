package service

import (
	"regexp"
	"strings"
)

const (
	openQuote  = "``"
	closeQuote = "''"
	openParen  = "("
	closeParen = ")"
)

var (
	// Tokens never preceded by a space. The empty string stands for the end of input.
	noSpaceBefore = toSet("", "...", "!", "?", ".", ",", "'", ")", "''", `"`, ";", ":")

	// Tokens never followed by a space
	noSpaceAfter = toSet(openParen, openQuote)

	// Punctuation that is emitted once when doubled
	collapsible = toSet("!", ".", "?", ";")

	// Sentence-final punctuation that can border dialogue
	sentenceEnd = toSet("!", "?", ".")

	contraction = regexp.MustCompile(`'\w+`)
)

func toSet(values ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

func in(set map[string]struct{}, value string) bool {
	_, ok := set[value]
	return ok
}

// Detokenize renders surface tokens as prose. Quoted dialogue that ends a
// sentence is placed in its own paragraph.
func Detokenize(tokens []string) string {
	var b strings.Builder

	for i, token := range tokens {
		prev, next := "", ""
		if i > 0 {
			prev = tokens[i-1]
		}
		if i+1 < len(tokens) {
			next = tokens[i+1]
		}

		// skip doubled punctuation
		if token == next && in(collapsible, token) {
			continue
		}

		b.WriteString(token)
		b.WriteString(separator(prev, token, next))
	}

	return b.String()
}

// separator returns the whitespace emitted after token
func separator(prev, token, next string) string {
	switch {
	case in(noSpaceBefore, next) || in(noSpaceAfter, token):
		return ""
	case contraction.MatchString(next):
		return ""
	case in(sentenceEnd, token) && prev == closeQuote,
		in(sentenceEnd, token) && next == openQuote,
		token == closeQuote && in(sentenceEnd, prev):
		return "\n\n"
	default:
		return " "
	}
}
