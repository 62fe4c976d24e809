package warc

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/RadhiFadlillah/whatlanggo"
	readability "github.com/go-shiori/go-readability"

	"github.com/cocosjn/warcvec/internal/domain"
)

// PageFromHTML runs the full per-record extraction chain: main-text
// extraction, French language check, <h1> lookup. It returns false when the
// record should be skipped (no text, wrong language, or extraction failure);
// skips are the normal case on a mixed crawl.
func PageFromHTML(uri, html string) (domain.PageRecord, bool) {
	pageURL, err := url.Parse(uri)
	if err != nil {
		pageURL = &url.URL{}
	}

	article, err := readability.FromReader(strings.NewReader(html), pageURL)
	if err != nil {
		return domain.PageRecord{}, false
	}

	text := strings.TrimSpace(article.TextContent)
	if text == "" {
		return domain.PageRecord{}, false
	}

	if whatlanggo.Detect(text).Lang != whatlanggo.Fra {
		return domain.PageRecord{}, false
	}

	return domain.PageRecord{
		URL:  uri,
		H1:   firstH1(html),
		Text: text,
	}, true
}

// firstH1 returns the text of the first <h1> in the document, or "" when the
// document has none or cannot be parsed.
func firstH1(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("h1").First().Text())
}
