// Package morph is the morphological analyzer contract used by the lexical
// normalizer, plus a snowball-backed implementation for Russian text.
package morph

import (
	"errors"
	"strings"
	"unicode"

	"github.com/kljensen/snowball"
)

// Grammatical tags reported by analyzers.
const (
	TagConjunction  = "CONJ"
	TagPreposition  = "PREP"
	TagInterjection = "INTJ"
	TagParticle     = "PART"
	TagOther        = "X"
)

// ErrUnsupported is returned for tokens the analyzer cannot parse.
var ErrUnsupported = errors.New("morph: token outside analyzer alphabet")

// Analysis is the primary parse of one token.
type Analysis struct {
	NormalForm string
	Tags       []string
}

// HasTag reports whether tag is among the analysis tags.
func (a Analysis) HasTag(tag string) bool {
	for _, t := range a.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Analyzer maps a lower-case token to its dictionary form.
type Analyzer interface {
	Analyze(token string) (Analysis, error)
}

// Snowball analyzes Cyrillic tokens: the normal form is the snowball russian
// stem and function words are tagged from a closed word list.
type Snowball struct {
	language string
	tags     map[string]string
}

// NewSnowball creates the Russian analyzer.
func NewSnowball() *Snowball {
	return &Snowball{
		language: "russian",
		tags:     functionalWords(),
	}
}

// Analyze implements Analyzer.
func (s *Snowball) Analyze(token string) (Analysis, error) {
	if token == "" {
		return Analysis{}, ErrUnsupported
	}
	for _, r := range token {
		if !IsCyrillic(r) {
			return Analysis{}, ErrUnsupported
		}
	}

	word := strings.ReplaceAll(token, "ё", "е")
	tag, ok := s.tags[word]
	if !ok {
		tag = TagOther
	}

	stem, err := snowball.Stem(word, s.language, true)
	if err != nil || stem == "" {
		stem = word
	}

	return Analysis{NormalForm: stem, Tags: []string{tag}}, nil
}

// IsCyrillic reports whether r is a lower- or upper-case Russian letter.
func IsCyrillic(r rune) bool {
	return unicode.Is(unicode.Cyrillic, r) && unicode.IsLetter(r)
}

func functionalWords() map[string]string {
	groups := map[string][]string{
		TagConjunction: {
			"и", "а", "но", "или", "либо", "да", "зато", "однако", "что", "чтобы",
			"если", "когда", "хотя", "потому", "поэтому", "также", "тоже", "как",
			"будто", "словно", "ни", "пока", "едва", "раз", "тогда", "причем",
		},
		TagPreposition: {
			"в", "во", "на", "с", "со", "к", "ко", "по", "о", "об", "обо", "от",
			"ото", "до", "из", "изо", "у", "за", "над", "надо", "под", "подо",
			"про", "для", "без", "безо", "через", "при", "перед", "пред", "между",
			"около", "возле", "после", "среди", "сквозь", "вокруг", "кроме",
			"ради", "вместо", "вдоль", "против", "мимо",
		},
		TagInterjection: {
			"ах", "ох", "ой", "эх", "ух", "увы", "ура", "эй", "ну", "ого", "ага",
			"браво", "алло", "батюшки", "тсс", "фу", "ай",
		},
		TagParticle: {
			"не", "же", "ли", "бы", "вот", "лишь", "даже", "уже", "ведь",
		},
	}

	tags := make(map[string]string)
	for tag, words := range groups {
		for _, w := range words {
			tags[w] = tag
		}
	}
	return tags
}
