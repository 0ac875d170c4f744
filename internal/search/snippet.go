package search

import "strings"

const ellipsis = "…"

// Snippet renders the tokens around the last occurrence of first. The
// window holds the hit and window-1 tokens on each side; every token whose
// lemma is in query is wrapped in <b>. lemmas[i] is the lemma of tokens[i],
// empty when the token has none. Without an occurrence the window starts at
// the first token.
func Snippet(tokens, lemmas []string, first string, query map[string]bool, window int) string {
	if len(tokens) == 0 {
		return ""
	}
	if window < 1 {
		window = 1
	}

	pos := 0
	for i := len(lemmas) - 1; i >= 0; i-- {
		if lemmas[i] == first {
			pos = i
			break
		}
	}

	start := pos - (window - 1)
	if start < 0 {
		start = 0
	}
	end := pos + window
	if end > len(tokens) {
		end = len(tokens)
	}

	var b strings.Builder
	if start > 0 {
		b.WriteString(ellipsis)
	}
	for i := start; i < end; i++ {
		if i > start {
			b.WriteByte(' ')
		}
		if lemmas[i] != "" && query[lemmas[i]] {
			b.WriteString("<b>" + tokens[i] + "</b>")
		} else {
			b.WriteString(tokens[i])
		}
	}
	if end < len(tokens) {
		b.WriteString(ellipsis)
	}
	return b.String()
}
