// Package extract turns raw fetched bodies into the structured payload the
// engine caches. The engine treats the payload as opaque; this package only
// supplies the default HTML implementation.
package extract

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Document is the default structured payload for HTML content.
type Document struct {
	URL         string   `json:"url"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Text        string   `json:"text,omitempty"`
	Links       []string `json:"links,omitempty"`
}

// Extractor produces the payload to cache from a raw body. Implementations
// must be safe for concurrent use.
type Extractor interface {
	Extract(pageURL string, contentType string, body []byte) (any, error)
}

// HTML parses HTML bodies with goquery. Non-HTML content is passed through
// as a Document with the raw body as text.
type HTML struct {
	// MaxLinks bounds extracted link counts; 0 means 256.
	MaxLinks int
}

// NewHTML creates the default extractor.
func NewHTML() *HTML {
	return &HTML{}
}

// Extract implements Extractor.
func (e *HTML) Extract(pageURL string, contentType string, body []byte) (any, error) {
	if contentType != "" && !strings.Contains(contentType, "html") {
		return &Document{URL: pageURL, Text: string(body)}, nil
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	base, _ := url.Parse(pageURL)
	maxLinks := e.MaxLinks
	if maxLinks <= 0 {
		maxLinks = 256
	}

	out := &Document{
		URL:   pageURL,
		Title: strings.TrimSpace(doc.Find("title").First().Text()),
	}
	if desc, ok := doc.Find(`meta[name="description"]`).Attr("content"); ok {
		out.Description = strings.TrimSpace(desc)
	}

	doc.Find("script, style, noscript").Remove()
	out.Text = normalizeWhitespace(doc.Find("body").Text())

	seen := make(map[string]struct{})
	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, ok := s.Attr("href")
		if !ok {
			return true
		}
		link := resolveLink(base, href)
		if link == "" {
			return true
		}
		if _, dup := seen[link]; dup {
			return true
		}
		seen[link] = struct{}{}
		out.Links = append(out.Links, link)
		return len(out.Links) < maxLinks
	})

	return out, nil
}

// resolveLink absolutizes href against base and drops fragments and
// non-HTTP schemes.
func resolveLink(base *url.URL, href string) string {
	u, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	u.Fragment = ""
	return u.String()
}

func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
