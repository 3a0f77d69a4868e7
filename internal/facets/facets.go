// Package facets derives structured attributes (site, category, region,
// locality) from directory seed URLs and builds seed URLs from site
// patterns. Everything here is a pure string transform.
package facets

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/TungDuong1712/lawyer-crawling-system/internal/crawler"
)

// Path layout tokens. A layout names the meaning of each URL path segment;
// SegmentSkip marks a literal segment with no facet value (e.g. the
// "attorneys" prefix on avvo listing URLs).
const (
	SegmentCategory = "category"
	SegmentRegion   = "region"
	SegmentLocality = "locality"
	SegmentSkip     = "-"
)

// DefaultLayout matches /{category}/{region}/{locality}/ listing paths.
var DefaultLayout = []string{SegmentCategory, SegmentRegion, SegmentLocality}

// builtinLayouts covers the directory sites the original selector sets
// target. Config-supplied layouts take precedence.
var builtinLayouts = map[string][]string{
	"lawinfo":      {SegmentCategory, SegmentRegion, SegmentLocality},
	"superlawyers": {SegmentCategory, SegmentRegion, SegmentLocality},
	"avvo":         {SegmentSkip, SegmentRegion, SegmentLocality, SegmentCategory},
}

// Extractor parses seed URLs into facets.
type Extractor struct {
	layouts map[string][]string
}

// NewExtractor builds an Extractor. Layouts override or extend the
// built-in per-site path layouts; keys are site identifiers.
func NewExtractor(layouts map[string][]string) *Extractor {
	merged := make(map[string][]string, len(builtinLayouts)+len(layouts))
	for site, layout := range builtinLayouts {
		merged[site] = layout
	}
	for site, layout := range layouts {
		merged[site] = layout
	}
	return &Extractor{layouts: merged}
}

// Parse extracts facets from a seed URL. The site comes from the host;
// path segments are mapped through the site's layout and humanized, so
// "personal-injury" becomes "Personal Injury".
func (e *Extractor) Parse(rawURL string) (crawler.Facets, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return crawler.Facets{}, fmt.Errorf("parse seed url: %w", err)
	}
	if u.Host == "" {
		return crawler.Facets{}, fmt.Errorf("seed url %q has no host", rawURL)
	}

	site := SiteFromHost(u.Host)
	layout, ok := e.layouts[site]
	if !ok {
		layout = DefaultLayout
	}

	f := crawler.Facets{Site: site}
	segments := splitPath(u.Path)
	for i, role := range layout {
		if i >= len(segments) {
			break
		}
		switch role {
		case SegmentCategory:
			f.Category = Humanize(segments[i])
		case SegmentRegion:
			f.Region = Humanize(segments[i])
		case SegmentLocality:
			f.Locality = Humanize(segments[i])
		}
	}
	return f, nil
}

// SiteFromHost reduces a hostname to the site identifier: the registered
// label, so www.lawinfo.com and attorneys.superlawyers.com yield "lawinfo"
// and "superlawyers".
func SiteFromHost(host string) string {
	host = strings.ToLower(host)
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	labels := strings.Split(host, ".")
	if len(labels) < 2 {
		return host
	}
	return labels[len(labels)-2]
}

// Humanize converts a slugged path segment to display form:
// "personal-injury" -> "Personal Injury".
func Humanize(segment string) string {
	words := strings.Split(strings.TrimSpace(segment), "-")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// Slugify is the inverse of Humanize: "Personal Injury" -> "personal-injury".
func Slugify(value string) string {
	return strings.ToLower(strings.Join(strings.Fields(value), "-"))
}

// BuildSeedURL renders a site's URL pattern. Patterns use the
// {base_url}/{category}/{region}/{locality} placeholders; values are
// slugged before substitution.
func BuildSeedURL(baseURL, pattern, category, region, locality string) string {
	r := strings.NewReplacer(
		"{base_url}", strings.TrimRight(baseURL, "/"),
		"{category}", Slugify(category),
		"{region}", Slugify(region),
		"{locality}", Slugify(locality),
	)
	return r.Replace(pattern)
}

func splitPath(p string) []string {
	var out []string
	for _, s := range strings.Split(p, "/") {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
