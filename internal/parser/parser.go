// Package parser evaluates per-site selector sets against raw markup. It
// is a pure function of (markup, selectors): no network, no persistence.
package parser

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/TungDuong1712/lawyer-crawling-system/internal/crawler"
)

// Selector set field names understood by the parser.
const (
	FieldContainer   = "container"
	FieldName        = "name"
	FieldPhone       = "phone"
	FieldAddress     = "address"
	FieldCategories  = "categories"
	FieldWebsite     = "website"
	FieldEmail       = "email"
	FieldDescription = "description"
	FieldDetailURL   = "detail_url"
	FieldAttorneys   = "attorneys"
	FieldLocations   = "office_locations"
	FieldServices    = "services"
	FieldExperience  = "experience"
)

// defaultContainerCap bounds how many listing entries one page yields.
const defaultContainerCap = 20

// Listing pages with no site-specific container still get a best-effort
// pass over common directory markup shapes.
var genericContainerPatterns = []string{
	`div[class*="attorney"]`,
	`div[class*="lawyer"]`,
	`div[class*="firm"]`,
	`div[class*="profile"]`,
	`div[class*="card"]`,
}

var (
	phoneRe   = regexp.MustCompile(`\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}`)
	emailRe   = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	addressRe = regexp.MustCompile(`\d+\s+[A-Za-z\s]+(?:St|Street|Ave|Avenue|Rd|Road|Blvd|Boulevard)`)
)

// Goquery implements crawler.Parser using CSS selector evaluation.
type Goquery struct {
	containerCap int
}

// New builds a parser with the default per-page container cap.
func New() *Goquery {
	return &Goquery{containerCap: defaultContainerCap}
}

// ParseList extracts summary records and follow-up links from a listing
// page. Zero matching containers is a valid empty result, not a failure —
// that distinguishes "page has no listings" from a fetch/parse error.
func (p *Goquery) ParseList(markup []byte, selectors crawler.SelectorSet, baseURL string) ([]crawler.SummaryRecord, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(markup))
	if err != nil {
		return nil, &crawler.ParseError{URL: baseURL, Err: fmt.Errorf("build document: %w", err)}
	}
	base, _ := url.Parse(baseURL)

	containers := p.findContainers(doc, selectors)
	records := make([]crawler.SummaryRecord, 0, len(containers))
	for _, c := range containers {
		rec, ok := p.extractSummary(c, selectors, base)
		if !ok {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// ParseDetail extracts second-pass fields from a record's own page. A
// detail page always expects at least one field; an entirely unmatched
// selector set is a failure.
func (p *Goquery) ParseDetail(markup []byte, selectors crawler.SelectorSet) (crawler.DetailFields, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(markup))
	if err != nil {
		return crawler.DetailFields{}, &crawler.ParseError{Err: fmt.Errorf("build document: %w", err)}
	}

	d := crawler.DetailFields{
		Biography:       chainText(doc.Selection, selectors[FieldDescription]),
		Attorneys:       joinMatches(doc.Selection, selectors[FieldAttorneys], 5, ", "),
		OfficeLocations: joinMatches(doc.Selection, selectors[FieldLocations], 10, " | "),
		Services:        joinMatches(doc.Selection, selectors[FieldServices], 0, " | "),
		Experience:      chainText(doc.Selection, selectors[FieldExperience]),
	}
	if d.Empty() {
		return crawler.DetailFields{}, &crawler.ParseError{}
	}
	return d, nil
}

func (p *Goquery) findContainers(doc *goquery.Document, selectors crawler.SelectorSet) []*goquery.Selection {
	var nodes []*goquery.Selection
	collect := func(sel string) {
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			nodes = append(nodes, s)
		})
	}

	if container := selectors[FieldContainer]; container != "" {
		collect(container)
	}
	if len(nodes) == 0 {
		for _, pattern := range genericContainerPatterns {
			collect(pattern)
			if len(nodes) > 0 {
				break
			}
		}
	}
	if len(nodes) > p.containerCap {
		nodes = nodes[:p.containerCap]
	}
	return nodes
}

func (p *Goquery) extractSummary(c *goquery.Selection, selectors crawler.SelectorSet, base *url.URL) (crawler.SummaryRecord, bool) {
	name := chainText(c, selectors[FieldName])
	if name == "" {
		return crawler.SummaryRecord{}, false
	}

	text := c.Text()
	rec := crawler.SummaryRecord{
		Name:        name,
		Phone:       extractPhone(c, selectors[FieldPhone], text),
		Address:     extractAddress(c, selectors[FieldAddress], text),
		Categories:  chainText(c, selectors[FieldCategories]),
		Website:     extractWebsite(c, selectors[FieldWebsite], base),
		Email:       extractEmail(c, selectors[FieldEmail], text),
		Description: chainText(c, selectors[FieldDescription]),
		DetailURL:   extractDetailURL(c, selectors[FieldDetailURL], base),
	}
	return rec, true
}

// chainText tries each selector in a comma-separated fallback chain and
// returns the first non-empty trimmed text.
func chainText(s *goquery.Selection, chain string) string {
	for _, sel := range splitChain(chain) {
		if el := s.Find(sel).First(); el.Length() > 0 {
			if text := strings.TrimSpace(el.Text()); text != "" {
				return text
			}
		}
	}
	return ""
}

// joinMatches collects trimmed texts of every match of the first selector
// in the chain that matches anything, up to limit (0 = unbounded).
func joinMatches(s *goquery.Selection, chain string, limit int, sep string) string {
	for _, sel := range splitChain(chain) {
		var parts []string
		s.Find(sel).Each(func(_ int, el *goquery.Selection) {
			if limit > 0 && len(parts) >= limit {
				return
			}
			if text := strings.TrimSpace(el.Text()); text != "" {
				parts = append(parts, text)
			}
		})
		if len(parts) > 0 {
			return strings.Join(parts, sep)
		}
	}
	return ""
}

func extractPhone(c *goquery.Selection, chain, fallbackText string) string {
	if href, ok := c.Find(`a[href^="tel:"]`).First().Attr("href"); ok {
		if phone := strings.TrimSpace(strings.TrimPrefix(href, "tel:")); phone != "" {
			return phone
		}
	}
	if text := chainText(c, chain); text != "" {
		if m := phoneRe.FindString(text); m != "" {
			return m
		}
		return text
	}
	return phoneRe.FindString(fallbackText)
}

func extractAddress(c *goquery.Selection, chain, fallbackText string) string {
	// Locality + region microformat spans come first on the supported
	// sites; the configured chain and a regex scan are the fallbacks.
	var parts []string
	for _, sel := range []string{".locality", ".region"} {
		if text := strings.TrimSpace(c.Find(sel).First().Text()); text != "" {
			parts = append(parts, text)
		}
	}
	if len(parts) > 0 {
		return strings.Join(parts, ", ")
	}
	if text := chainText(c, chain); text != "" {
		return text
	}
	return addressRe.FindString(fallbackText)
}

func extractEmail(c *goquery.Selection, chain, fallbackText string) string {
	if href, ok := c.Find(`a[href^="mailto:"]`).First().Attr("href"); ok {
		if email := strings.TrimSpace(strings.TrimPrefix(href, "mailto:")); email != "" {
			return email
		}
	}
	if text := chainText(c, chain); text != "" {
		return text
	}
	return emailRe.FindString(fallbackText)
}

// extractWebsite returns the first external link: an absolute http(s) URL
// whose host is not the directory site itself.
func extractWebsite(c *goquery.Selection, chain string, base *url.URL) string {
	candidates := splitChain(chain)
	candidates = append(candidates, `a[href^="http"]`)
	for _, sel := range candidates {
		var found string
		c.Find(sel).EachWithBreak(func(_ int, el *goquery.Selection) bool {
			href, ok := el.Attr("href")
			if !ok {
				href = strings.TrimSpace(el.Text())
			}
			if isExternalLink(href, base) {
				found = href
				return false
			}
			return true
		})
		if found != "" {
			return found
		}
	}
	return ""
}

func extractDetailURL(c *goquery.Selection, chain string, base *url.URL) string {
	for _, sel := range splitChain(chain) {
		href, ok := c.Find(sel).First().Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			continue
		}
		return resolveURL(href, base)
	}
	return ""
}

func isExternalLink(href string, base *url.URL) bool {
	u, err := url.Parse(strings.TrimSpace(href))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return false
	}
	if base == nil || base.Host == "" {
		return true
	}
	return !strings.EqualFold(strings.TrimPrefix(u.Host, "www."), strings.TrimPrefix(base.Host, "www."))
}

func resolveURL(href string, base *url.URL) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	if base != nil {
		ref = base.ResolveReference(ref)
	}
	if ref.Scheme != "http" && ref.Scheme != "https" {
		return ""
	}
	return ref.String()
}

func splitChain(chain string) []string {
	var out []string
	for _, s := range strings.Split(chain, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
