package parse

import (
	"bytes"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"

	"stacklytics/internal/newsletter"
)

var subscriberExpr = regexp.MustCompile(`([\d][\d,]*)\s*(?:\+\s*)?subscriber`)

// Parser implements newsletter.Parser against an extraction Schema.
type Parser struct {
	schema   Schema
	stripper *bluemonday.Policy
}

// New builds a Parser. A zero-value schema falls back to DefaultSchema.
func New(schema Schema) *Parser {
	if len(schema.PostItems) == 0 {
		schema = DefaultSchema()
	}
	return &Parser{
		schema:   schema,
		stripper: bluemonday.StrictPolicy(),
	}
}

// Listing extracts post stubs from an archive listing page. A page matching
// none of the listing container selectors is a shape mismatch and returns
// ParseError; a matching page with zero entries is a valid empty listing.
func (p *Parser) Listing(baseURL string, html []byte) ([]newsletter.PostStub, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, &newsletter.ParseError{Reason: "listing document unreadable: " + err.Error()}
	}
	if !p.matchesAny(doc, p.schema.ListingContainers) {
		return nil, &newsletter.ParseError{Reason: "document does not match listing shape"}
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, &newsletter.ParseError{Reason: "invalid base url: " + err.Error()}
	}

	items := p.firstMatching(doc, p.schema.PostItems)
	stubs := make([]newsletter.PostStub, 0, items.Length())
	items.Each(func(_ int, el *goquery.Selection) {
		stub, ok := p.extractStub(el, base)
		if ok {
			stubs = append(stubs, stub)
		}
	})
	return stubs, nil
}

func (p *Parser) extractStub(el *goquery.Selection, base *url.URL) (newsletter.PostStub, bool) {
	link := el
	if !el.Is("a") {
		link = el.Find(p.schema.PostLink).First()
	}
	href, ok := link.Attr("href")
	if !ok || href == "" {
		return newsletter.PostStub{}, false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return newsletter.PostStub{}, false
	}
	abs := base.ResolveReference(ref)
	abs.Fragment = ""
	abs.RawQuery = ""

	id := slugFromPath(abs.Path)
	if id == "" {
		return newsletter.PostStub{}, false
	}

	title := firstText(el, p.schema.Titles)
	if title == "" {
		title = strings.TrimSpace(link.Text())
	}

	return newsletter.PostStub{
		ID:    id,
		Title: title,
		URL:   abs.String(),
	}, true
}

// Post extracts the full detail record from an individual post page. A
// single malformed field never voids the record; only a document matching
// neither a title nor a body shape is rejected.
func (p *Parser) Post(html []byte) (newsletter.PostDetail, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return newsletter.PostDetail{}, &newsletter.ParseError{Reason: "post document unreadable: " + err.Error()}
	}

	title := firstText(doc.Selection, p.schema.Titles)
	body := p.firstMatching(doc, p.schema.Bodies)
	if title == "" && body.Length() == 0 {
		return newsletter.PostDetail{}, &newsletter.ParseError{Reason: "document does not match post shape"}
	}

	detail := newsletter.PostDetail{
		Title:       title,
		PublishedAt: p.extractDate(doc),
		Tags:        p.extractTags(doc),
		IsPremium:   p.matchesAny(doc, p.schema.PremiumMarkers),
	}
	if body.Length() > 0 {
		detail.WordCount = p.countWords(body)
	}
	return detail, nil
}

// Publication extracts descriptive metadata from a publication root page.
func (p *Parser) Publication(html []byte) (newsletter.PublicationInfo, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return newsletter.PublicationInfo{}, &newsletter.ParseError{Reason: "publication document unreadable: " + err.Error()}
	}

	name := firstText(doc.Selection, p.schema.PublicationTitles)
	if name == "" {
		return newsletter.PublicationInfo{}, &newsletter.ParseError{Reason: "document does not match publication shape"}
	}

	return newsletter.PublicationInfo{
		DisplayName:     name,
		Description:     p.firstMetaOrText(doc, p.schema.DescriptionMetas),
		Author:          p.firstMetaOrText(doc, p.schema.Authors),
		SubscriberCount: estimateSubscribers(doc),
	}, nil
}
