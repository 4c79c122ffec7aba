package parse

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// dateLayouts are tried in order; the first successful parse wins.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05.000Z",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 Jan 2006",
	"2006-01-02",
	"01/02/2006",
}

func (p *Parser) extractDate(doc *goquery.Document) *time.Time {
	for _, sel := range p.schema.Dates {
		node := doc.Find(sel).First()
		if node.Length() == 0 {
			continue
		}
		if attr, ok := node.Attr("datetime"); ok {
			if t := parseDate(attr); t != nil {
				return t
			}
		}
		if t := parseDate(strings.TrimSpace(node.Text())); t != nil {
			return t
		}
	}
	return nil
}

func parseDate(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			utc := t.UTC()
			return &utc
		}
	}
	return nil
}

func (p *Parser) extractTags(doc *goquery.Document) []string {
	seen := map[string]struct{}{}
	var tags []string
	for _, sel := range p.schema.Tags {
		doc.Find(sel).Each(func(_ int, el *goquery.Selection) {
			tag := strings.TrimSpace(el.Text())
			if tag == "" {
				return
			}
			if _, dup := seen[tag]; dup {
				return
			}
			seen[tag] = struct{}{}
			tags = append(tags, tag)
		})
		if len(tags) > 0 {
			break
		}
	}
	sort.Strings(tags)
	return tags
}

// countWords strips markup from the body selection and counts whitespace
// separated tokens. Deterministic for identical input.
func (p *Parser) countWords(body *goquery.Selection) int {
	inner, err := body.Html()
	if err != nil {
		return len(strings.Fields(body.Text()))
	}
	text := p.stripper.Sanitize(inner)
	return len(strings.Fields(text))
}

func (p *Parser) matchesAny(doc *goquery.Document, selectors []string) bool {
	for _, sel := range selectors {
		if doc.Find(sel).Length() > 0 {
			return true
		}
	}
	return false
}

// firstMatching returns the matches of the first selector candidate that
// yields any elements.
func (p *Parser) firstMatching(doc *goquery.Document, selectors []string) *goquery.Selection {
	for _, sel := range selectors {
		if found := doc.Find(sel); found.Length() > 0 {
			return found
		}
	}
	return doc.Find("__none__")
}

func (p *Parser) firstMetaOrText(doc *goquery.Document, selectors []string) string {
	for _, sel := range selectors {
		node := doc.Find(sel).First()
		if node.Length() == 0 {
			continue
		}
		if strings.HasPrefix(sel, "meta") {
			if content, ok := node.Attr("content"); ok && strings.TrimSpace(content) != "" {
				return strings.TrimSpace(content)
			}
			continue
		}
		if text := strings.TrimSpace(node.Text()); text != "" {
			return text
		}
	}
	return ""
}

func firstText(root *goquery.Selection, selectors []string) string {
	for _, sel := range selectors {
		if text := strings.TrimSpace(root.Find(sel).First().Text()); text != "" {
			return text
		}
	}
	return ""
}

func estimateSubscribers(doc *goquery.Document) int {
	match := subscriberExpr.FindStringSubmatch(doc.Text())
	if match == nil {
		return 0
	}
	n, err := strconv.Atoi(strings.ReplaceAll(match[1], ",", ""))
	if err != nil {
		return 0
	}
	return n
}

func slugFromPath(path string) string {
	path = strings.Trim(path, "/")
	if path == "" {
		return ""
	}
	segments := strings.Split(path, "/")
	return segments[len(segments)-1]
}
