package search_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/deidaraiorek/sitesearch/internal/search"
)

func TestSnippet(t *testing.T) {
	tokens := strings.Fields("the quick brown fox jumps over the lazy dog")
	lemmas := append([]string(nil), tokens...)

	tests := []struct {
		name   string
		first  string
		query  []string
		window int
		want   string
	}{
		{
			name:   "window of two around the hit",
			first:  "fox",
			query:  []string{"fox"},
			window: 2,
			want:   "…brown <b>fox</b> jumps…",
		},
		{
			name:   "last occurrence wins",
			first:  "the",
			query:  []string{"the"},
			window: 2,
			want:   "…over <b>the</b> lazy…",
		},
		{
			name:   "clipped at the start",
			first:  "quick",
			query:  []string{"quick", "the"},
			window: 3,
			want:   "<b>the</b> <b>quick</b> brown fox…",
		},
		{
			name:   "clipped at the end",
			first:  "dog",
			query:  []string{"dog"},
			window: 5,
			want:   "…jumps over the lazy <b>dog</b>",
		},
		{
			name:   "missing lemma starts at the beginning",
			first:  "cat",
			query:  []string{"cat"},
			window: 2,
			want:   "the quick…",
		},
		{
			name:   "whole text",
			first:  "fox",
			query:  []string{"fox", "dog"},
			window: 20,
			want:   "the quick brown <b>fox</b> jumps over the lazy <b>dog</b>",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query := make(map[string]bool)
			for _, q := range tt.query {
				query[q] = true
			}
			assert.Equal(t, tt.want, search.Snippet(tokens, lemmas, tt.first, query, tt.window))
		})
	}

	assert.Empty(t, search.Snippet(nil, nil, "fox", nil, 5))
}
