// Package extract parses fetched HTML into title, text content, and links.
package extract

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"

	"github.com/agentx-ai/steercrawl/internal/crawl"
)

// HTMLExtractor implements crawl.Extractor with goquery for structure and an
// HTML-to-markdown conversion for the stored text content.
type HTMLExtractor struct {
	converter *md.Converter
}

// New builds an HTMLExtractor.
func New() *HTMLExtractor {
	return &HTMLExtractor{
		converter: md.NewConverter("", true, nil),
	}
}

// Extract implements crawl.Extractor. Links are resolved to absolute URLs
// against baseURL; only http(s) targets are kept.
func (e *HTMLExtractor) Extract(baseURL string, body []byte) (crawl.Page, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return crawl.Page{}, fmt.Errorf("parse base url: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return crawl.Page{}, fmt.Errorf("parse html: %w", err)
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		title = baseURL
	}

	doc.Find("script,style,noscript").Remove()

	var links []crawl.Link
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref)
		if abs.Scheme != "http" && abs.Scheme != "https" {
			return
		}
		links = append(links, crawl.Link{
			URL:  abs.String(),
			Text: strings.TrimSpace(sel.Text()),
		})
	})

	html, err := doc.Find("body").Html()
	if err != nil || strings.TrimSpace(html) == "" {
		html = string(body)
	}
	content, err := e.converter.ConvertString(html)
	if err != nil {
		// Fall back to the document's plain text; a conversion failure must
		// not lose the page.
		content = strings.TrimSpace(doc.Text())
	}

	return crawl.Page{
		URL:     baseURL,
		Title:   title,
		Content: strings.TrimSpace(content),
		Links:   links,
	}, nil
}
