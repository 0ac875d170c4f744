package parser_test

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deidaraiorek/sitesearch/internal/parser"
)

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestParse_SameSiteLinks(t *testing.T) {
	site := mustURL(t, "https://example.com")
	page := mustURL(t, "https://example.com/docs/")

	body := `<html><head><title> Docs </title></head><body>
		<a href="/about">About</a>
		<a href="intro">Intro</a>
		<a href="/about/#team">Team</a>
		<a href="https://www.example.com/contact?x=1">Contact</a>
		<a href="https://other.org/page">External</a>
		<a href="/logo.png">Logo</a>
		<a href="mailto:me@example.com">Mail</a>
		<a href="#top">Top</a>
		<script>document.write("<a href='/generated'>x</a>")</script>
		<p>Some text</p>
	</body></html>`

	doc, err := parser.New().Parse(body, page, site)
	require.NoError(t, err)

	assert.Equal(t, "Docs", doc.Title)

	var paths []string
	for _, l := range doc.Links {
		paths = append(paths, l.Path)
	}
	assert.Equal(t, []string{"/about", "/docs/intro", "/contact"}, paths)
	assert.Equal(t, "https://example.com/about", doc.Links[0].URL)
	assert.Equal(t, "https://www.example.com/contact", doc.Links[2].URL)
	assert.Greater(t, doc.TextLength, 0)
}

func TestParse_BaseHref(t *testing.T) {
	site := mustURL(t, "http://example.com")
	page := mustURL(t, "http://example.com/a/b")

	body := `<html><head><base href="/root/"></head><body><a href="child">c</a></body></html>`
	doc, err := parser.New().Parse(body, page, site)
	require.NoError(t, err)
	require.Len(t, doc.Links, 1)
	assert.Equal(t, "/root/child", doc.Links[0].Path)
}

func TestTitle(t *testing.T) {
	tests := []struct {
		content string
		want    string
	}{
		{"<html><title>Главная</title></html>", "Главная"},
		{"<title></title>", ""},
		{"<title>unterminated", ""},
		{"no markup at all", ""},
		{"<title>first</title><title>second</title>", "first"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, parser.Title(tt.content), tt.content)
	}
}

func TestPathOf(t *testing.T) {
	tests := map[string]string{
		"https://example.com":          "/",
		"https://example.com/":         "/",
		"https://example.com/a/":       "/a",
		"https://example.com/a/b":      "/a/b",
		"https://example.com/a%20b/":   "/a%20b",
		"https://example.com/?q=1#top": "/",
	}

	for raw, want := range tests {
		assert.Equal(t, want, parser.PathOf(mustURL(t, raw)), raw)
	}
}

func TestParseURL(t *testing.T) {
	u, err := parser.ParseURL("  HTTPS://Example.COM/Path/?q=1#frag ")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/Path", u.String())

	for _, raw := range []string{"", "example.com/page", "ftp://example.com/file", "/relative"} {
		_, err := parser.ParseURL(raw)
		assert.Error(t, err, raw)
	}
}

func TestSameSite(t *testing.T) {
	site := mustURL(t, "https://example.com")

	assert.True(t, parser.SameSite(mustURL(t, "https://www.example.com/x"), site))
	assert.True(t, parser.SameSite(mustURL(t, "http://EXAMPLE.com/"), site))
	assert.False(t, parser.SameSite(mustURL(t, "https://sub.example.com/"), site))
	assert.False(t, parser.SameSite(mustURL(t, "https://example.com:8443/"), site))
}
