// Package parser extracts titles and same-site links from fetched HTML and
// normalizes page URLs into the paths that identify pages within a site.
package parser

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/deidaraiorek/sitesearch/internal/config"
)

type Document struct {
	Title string
	Links []Link
	// TextLength is the length of the visible body text, used to detect
	// pages rendered by scripts.
	TextLength int
}

// Link is a same-site link in normalized form.
type Link struct {
	URL  string
	Path string
}

type Parser struct{}

func New() *Parser {
	return &Parser{}
}

// Parse reads an HTML page fetched from pageURL and returns the links that
// stay on site. Duplicate links are reported once.
func (p *Parser) Parse(body string, pageURL, site *url.URL) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", pageURL, err)
	}

	text := doc.Find("body").Clone()
	text.Find("script, style, noscript").Remove()

	return &Document{
		Title:      strings.TrimSpace(doc.Find("title").First().Text()),
		Links:      p.extractLinks(doc, pageURL, site),
		TextLength: len(strings.Join(strings.Fields(text.Text()), " ")),
	}, nil
}

func (p *Parser) extractLinks(doc *goquery.Document, pageURL, site *url.URL) []Link {
	var links []Link
	seen := make(map[string]bool)

	base := pageURL
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if u, err := pageURL.Parse(strings.TrimSpace(href)); err == nil {
			base = u
		}
	}

	doc.Find("a[href]").Each(func(i int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") {
			return
		}

		ref, err := base.Parse(href)
		if err != nil || !isCrawlable(ref) || !SameSite(ref, site) {
			return
		}

		u := Normalize(ref)
		path := PathOf(u)
		if seen[path] {
			return
		}
		seen[path] = true
		links = append(links, Link{URL: u.String(), Path: path})
	})

	return links
}

// Title returns the text between the first <title> and </title> markers of
// raw content, or "" when either is missing.
func Title(content string) string {
	start := strings.Index(content, "<title>")
	if start < 0 {
		return ""
	}
	start += len("<title>")
	end := strings.Index(content[start:], "</title>")
	if end < 0 {
		return ""
	}
	return content[start : start+end]
}

// Normalize returns a copy of u without fragment and query, with a lower-case
// scheme and host and a path normalized by PathOf.
func Normalize(u *url.URL) *url.URL {
	n := *u
	n.Scheme = strings.ToLower(n.Scheme)
	n.Host = strings.ToLower(n.Host)
	n.Fragment = ""
	n.RawFragment = ""
	n.RawQuery = ""
	n.ForceQuery = false
	n.User = nil

	n.RawPath = ""
	if len(n.Path) > 1 {
		n.Path = strings.TrimRight(n.Path, "/")
	}
	if n.Path == "" {
		n.Path = "/"
	}
	return &n
}

// PathOf returns the path identifying u within its site: always rooted,
// without a trailing slash except for the root itself.
func PathOf(u *url.URL) string {
	path := u.EscapedPath()
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}
	if path == "" {
		path = "/"
	}
	return path
}

// ParseURL parses an absolute http(s) URL and normalizes it.
func ParseURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("not an absolute http(s) URL: %q", raw)
	}
	return Normalize(u), nil
}

// SameSite reports whether u is on the site's host. A leading "www." is
// ignored on both sides.
func SameSite(u, site *url.URL) bool {
	return config.HostKey(u.Host) == config.HostKey(site.Host)
}

var skipExtensions = []string{
	".pdf", ".jpg", ".jpeg", ".png", ".gif", ".svg", ".webp", ".ico",
	".css", ".js", ".json", ".xml", ".zip", ".tar", ".gz",
	".exe", ".dmg", ".iso",
	".mp4", ".avi", ".mov",
	".mp3", ".wav",
}

func isCrawlable(u *url.URL) bool {
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}

	path := strings.ToLower(u.Path)
	for _, ext := range skipExtensions {
		if strings.HasSuffix(path, ext) {
			return false
		}
	}
	return true
}
