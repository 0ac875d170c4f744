// Package textprocessor is the lexical normalizer: it turns page and query
// text into lemmas using the tokenizer and a morphological analyzer.
package textprocessor

import (
	"github.com/deidaraiorek/sitesearch/internal/morph"
	"github.com/deidaraiorek/sitesearch/internal/tokenizer"
)

// Kind classifies how a token was resolved.
type Kind int

const (
	// KindLemma is a normal form produced by the analyzer.
	KindLemma Kind = iota
	// KindLiteral is an ASCII word or number kept as-is.
	KindLiteral
	// KindFunctional is a conjunction, preposition or interjection.
	KindFunctional
	// KindUnsupported is a token the analyzer could not parse.
	KindUnsupported
)

// Lemma is the result of resolving one token.
type Lemma struct {
	Form string
	Kind Kind
}

// OK reports whether the token contributes a lemma.
func (l Lemma) OK() bool {
	return l.Kind == KindLemma || l.Kind == KindLiteral
}

// DefaultFunctionalTags are the grammatical classes that never become lemmas.
var DefaultFunctionalTags = []string{morph.TagConjunction, morph.TagPreposition, morph.TagInterjection}

type TextProcessor struct {
	tokenizer  *tokenizer.Tokenizer
	analyzer   morph.Analyzer
	functional []string
}

// NewTextProcessor creates a normalizer over analyzer.
func NewTextProcessor(analyzer morph.Analyzer) *TextProcessor {
	return &TextProcessor{
		tokenizer:  tokenizer.NewTokenizer(),
		analyzer:   analyzer,
		functional: DefaultFunctionalTags,
	}
}

// Tokens returns the lower-case tokens of text, markup removed.
func (tp *TextProcessor) Tokens(text string) []string {
	return tp.tokenizer.Tokenize(text)
}

// LemmaOf resolves a single lower-case token.
func (tp *TextProcessor) LemmaOf(token string) Lemma {
	if tokenizer.IsLatin(token) || tokenizer.IsNumeric(token) {
		return Lemma{Form: token, Kind: KindLiteral}
	}

	a, err := tp.analyzer.Analyze(token)
	if err != nil {
		return Lemma{Kind: KindUnsupported}
	}
	for _, tag := range tp.functional {
		if a.HasTag(tag) {
			return Lemma{Kind: KindFunctional}
		}
	}
	if a.NormalForm == "" {
		return Lemma{Kind: KindUnsupported}
	}
	return Lemma{Form: a.NormalForm, Kind: KindLemma}
}

// Normalize returns the lemmas of text in order, duplicates kept.
func (tp *TextProcessor) Normalize(text string) []string {
	tokens := tp.Tokens(text)

	lemmas := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if l := tp.LemmaOf(token); l.OK() {
			lemmas = append(lemmas, l.Form)
		}
	}
	return lemmas
}

// CountLemmas maps every lemma of text to its number of occurrences.
func (tp *TextProcessor) CountLemmas(text string) map[string]int {
	freq := make(map[string]int)
	for _, lemma := range tp.Normalize(text) {
		freq[lemma]++
	}
	return freq
}
