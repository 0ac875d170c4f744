// Package tokenizer splits page and query text into normalized tokens.
package tokenizer

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/deidaraiorek/sitesearch/internal/morph"
)

// Tokenizer turns raw page or query text into lower-case tokens made of
// Cyrillic letters, ASCII letters and digits.
type Tokenizer struct {
	skipElements map[string]bool
}

func NewTokenizer() *Tokenizer {
	return &Tokenizer{
		skipElements: map[string]bool{
			"script":   true,
			"style":    true,
			"noscript": true,
			"template": true,
		},
	}
}

// Tokenize strips markup and splits the remaining text into tokens.
// Order and duplicates are preserved.
func (t *Tokenizer) Tokenize(text string) []string {
	if strings.ContainsRune(text, '<') {
		text = t.StripMarkup(text)
	}
	return strings.Fields(t.normalize(text))
}

// StripMarkup returns the visible text of an HTML fragment. Text of script
// and style elements is dropped; element boundaries become spaces.
func (t *Tokenizer) StripMarkup(text string) string {
	z := html.NewTokenizer(strings.NewReader(text))
	var sb strings.Builder
	skipDepth := 0

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			// io.EOF or a malformed tail; either way keep what was collected
			return sb.String()
		case html.StartTagToken:
			name, _ := z.TagName()
			if t.skipElements[string(name)] {
				skipDepth++
			}
			sb.WriteByte(' ')
		case html.EndTagToken:
			name, _ := z.TagName()
			if t.skipElements[string(name)] && skipDepth > 0 {
				skipDepth--
			}
			sb.WriteByte(' ')
		case html.SelfClosingTagToken:
			sb.WriteByte(' ')
		case html.TextToken:
			if skipDepth == 0 {
				sb.Write(z.Text())
			}
		}
	}
}

func (t *Tokenizer) normalize(text string) string {
	text = strings.ToLower(text)
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case morph.IsCyrillic(r):
			return r
		default:
			return ' '
		}
	}, text)
}

// IsLatin reports whether token consists only of ASCII letters.
func IsLatin(token string) bool {
	if token == "" {
		return false
	}
	for i := 0; i < len(token); i++ {
		c := token[i]
		if (c < 'a' || c > 'z') && (c < 'A' || c > 'Z') {
			return false
		}
	}
	return true
}

// IsNumeric reports whether token consists only of ASCII digits.
func IsNumeric(token string) bool {
	if token == "" {
		return false
	}
	for i := 0; i < len(token); i++ {
		if token[i] < '0' || token[i] > '9' {
			return false
		}
	}
	return true
}
