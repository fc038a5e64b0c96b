package pipeline

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// minContentLength is the point below which extracted content gets a
// too-short warning. Listings shorter than this are usually teaser cards,
// not full descriptions.
const minContentLength = 150

var whitespaceRe = regexp.MustCompile(`\s+`)

// chromeSelectors are page furniture stripped from the fallback body text.
var chromeSelectors = []string{
	"script", "style", "noscript", "iframe",
	"nav", "header", "footer", "aside",
	".cookie-banner", ".ads", ".advertisement", ".social-share", ".breadcrumbs",
}

// extractContent isolates the substantive region of a page. Each configured
// selector is tried in order; the first that yields enough text wins. When
// none match, the body is used with chrome and profile-configured elements
// removed.
func extractContent(html string, selectors, removeSelectors []string) (string, []string, error) {
	if strings.TrimSpace(html) == "" {
		return "", nil, fmt.Errorf("empty document")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", nil, fmt.Errorf("parse html: %w", err)
	}

	var warnings []string
	for _, sel := range selectors {
		text := collapseWhitespace(doc.Find(sel).First().Text())
		if len(text) >= minContentLength {
			return text, warnings, nil
		}
	}

	for _, sel := range append(append([]string{}, chromeSelectors...), removeSelectors...) {
		doc.Find(sel).Remove()
	}
	text := collapseWhitespace(doc.Find("body").Text())
	if text == "" {
		text = collapseWhitespace(doc.Text())
	}
	if text == "" {
		return "", warnings, fmt.Errorf("no textual content found")
	}
	if len(text) < minContentLength {
		warnings = append(warnings, fmt.Sprintf("extracted content is very short (%d chars)", len(text)))
	}
	return text, warnings, nil
}

func collapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}
