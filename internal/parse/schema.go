// Package parse extracts structured post and publication records from raw
// newsletter HTML using goquery.
package parse

// SchemaVersion tracks the extraction schema revision. Bump when selector
// sets change so stored data can be traced back to the rules that produced
// it.
const SchemaVersion = 2

// Schema is the versioned extraction schema: for each field an ordered list
// of selector candidates, tried first-match-wins. Missing optional fields
// fall back to zero values instead of failing the parse.
type Schema struct {
	// ListingContainers identify a document as an archive listing. A page
	// matching none of these is a shape mismatch, not an empty listing.
	ListingContainers []string
	// PostItems locate post entries inside a listing.
	PostItems []string
	// PostLink finds the anchor to the individual post page.
	PostLink string

	// Post page fields.
	Titles         []string
	Dates          []string
	Bodies         []string
	Tags           []string
	PremiumMarkers []string

	// Publication root page fields.
	PublicationTitles []string
	DescriptionMetas  []string
	Authors           []string
}

// DefaultSchema returns the selector set for Substack-style archive markup,
// ordered from most specific to generic fallback.
func DefaultSchema() Schema {
	return Schema{
		ListingContainers: []string{
			".portable-archive-list",
			".archive-page",
			"[data-testid=\"archive-list\"]",
			"main",
		},
		PostItems: []string{
			"article.post",
			"div.post",
			"[data-testid=\"post-preview\"]",
			".post-preview",
			".post-item",
			"a[href*=\"/p/\"]",
		},
		PostLink: "a[href*=\"/p/\"]",
		Titles: []string{
			"h1.post-title",
			"h1",
			"h2",
			"h3",
		},
		Dates: []string{
			"time",
			".post-date",
			"span.date",
		},
		Bodies: []string{
			".available-content",
			"div.post-content",
			"[data-testid=\"post-content\"]",
			".post-body",
			"article .body",
		},
		Tags: []string{
			".post-tag",
			"a.tag",
			"span.tag",
		},
		PremiumMarkers: []string{
			".paywall",
			"[data-testid=\"paywall\"]",
			".subscriber-only-banner",
			".paid-content-teaser",
			".locked-content",
		},
		PublicationTitles: []string{
			"h1.publication-title",
			"h1.navbar-title",
			"h1",
			"title",
		},
		DescriptionMetas: []string{
			"meta[name=\"description\"]",
			"meta[property=\"og:description\"]",
		},
		Authors: []string{
			".author-name",
			"span.author",
			"meta[name=\"author\"]",
		},
	}
}
