package parser

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/TungDuong1712/lawyer-crawling-system/internal/crawler"
)

var listSelectors = crawler.SelectorSet{
	FieldContainer:   ".card.firm",
	FieldName:        ".listing-details-header a, .firm-basics h2 a",
	FieldPhone:       ".directory_phone",
	FieldAddress:     ".listing-details-tagline",
	FieldCategories:  ".jobTitle",
	FieldWebsite:     ".directory_website",
	FieldEmail:       ".directory_contact",
	FieldDescription: ".listing-desc-detail",
	FieldDetailURL:   `a[href*="/lawfirm/"]`,
}

var detailSelectors = crawler.SelectorSet{
	FieldDescription: ".listing-desc-detail, .tab-pane p",
	FieldAttorneys:   ".lc-attorney-record h2",
	FieldLocations:   ".location-container",
	FieldServices:    ".listing-services .listing-service",
	FieldExperience:  ".number-badge .fw-bold",
}

const listingPage = `<html><body>
<div class="card firm serp-container">
  <div class="listing-details-header"><a href="/lawfirm/smith-jones/chandler/">Smith &amp; Jones LLP</a></div>
  <span class="locality">Chandler</span><span class="region">AZ</span>
  <div class="directory_phone">Call 877-705-0193 now</div>
  <span class="jobTitle">Personal Injury</span>
  <a class="directory_website" href="https://smithjones.example.com">Website</a>
  <div class="listing-desc-detail">Serving Chandler since 1990.</div>
</div>
<div class="card firm serp-container">
  <div class="listing-details-header"><a href="/lawfirm/acme-law/chandler/">Acme Law</a></div>
  <a href="tel:480-555-0100">Call</a>
  <a href="mailto:info@acmelaw.example.com">Email us</a>
</div>
<div class="card firm serp-container">
  <div class="listing-details-header"><a href=""></a></div>
</div>
</body></html>`

func TestParseList_ExtractsSummaryRecords(t *testing.T) {
	t.Parallel()

	p := New()
	records, err := p.ParseList([]byte(listingPage), listSelectors, "https://www.lawinfo.com/personal-injury/arizona/chandler/")
	require.NoError(t, err)
	require.Len(t, records, 2, "the nameless container is skipped")

	first := records[0]
	require.Equal(t, "Smith & Jones LLP", first.Name)
	require.Equal(t, "877-705-0193", first.Phone)
	require.Equal(t, "Chandler, AZ", first.Address)
	require.Equal(t, "Personal Injury", first.Categories)
	require.Equal(t, "https://smithjones.example.com", first.Website)
	require.Equal(t, "Serving Chandler since 1990.", first.Description)
	require.Equal(t, "https://www.lawinfo.com/lawfirm/smith-jones/chandler/", first.DetailURL)

	second := records[1]
	require.Equal(t, "480-555-0100", second.Phone, "tel: href wins")
	require.Equal(t, "info@acmelaw.example.com", second.Email, "mailto: href wins")
}

func TestParseList_ZeroContainersIsEmptySuccess(t *testing.T) {
	t.Parallel()

	p := New()
	records, err := p.ParseList([]byte(`<html><body><p>No results for this search.</p></body></html>`),
		listSelectors, "https://www.lawinfo.com/x/")
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestParseList_GenericContainerFallback(t *testing.T) {
	t.Parallel()

	page := `<html><body>
	<div class="attorney-block">
	  <div class="listing-details-header"><a href="/p/1">Jane Roe</a></div>
	</div>
	</body></html>`

	p := New()
	records, err := p.ParseList([]byte(page), crawler.SelectorSet{
		FieldContainer: ".does-not-exist",
		FieldName:      ".listing-details-header a",
	}, "https://example.com/")
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "Jane Roe", records[0].Name)
}

func TestParseList_ContainerCap(t *testing.T) {
	t.Parallel()

	page := "<html><body>"
	for i := 0; i < 30; i++ {
		page += `<div class="card firm"><div class="listing-details-header"><a href="/x">Firm</a></div></div>`
	}
	page += "</body></html>"

	p := New()
	records, err := p.ParseList([]byte(page), listSelectors, "https://example.com/")
	require.NoError(t, err)
	require.Len(t, records, 20)
}

func TestParseList_WebsiteExcludesDirectoryLinks(t *testing.T) {
	t.Parallel()

	page := `<html><body><div class="card firm">
	  <div class="listing-details-header"><a href="/lawfirm/a/">A Firm</a></div>
	  <a href="https://www.lawinfo.com/lawfirm/a/">Profile</a>
	  <a href="https://afirm.example.org">Site</a>
	</div></body></html>`

	p := New()
	records, err := p.ParseList([]byte(page), listSelectors, "https://www.lawinfo.com/personal-injury/arizona/chandler/")
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "https://afirm.example.org", records[0].Website)
}

func TestParseDetail_ExtractsFields(t *testing.T) {
	t.Parallel()

	page := `<html><body><div class="card firm profile">
	  <div class="listing-desc-detail">A full-service firm with decades of trial experience.</div>
	  <div class="lc-attorney-record"><h2>John Smith</h2></div>
	  <div class="lc-attorney-record"><h2>Mary Jones</h2></div>
	  <div class="location-container">100 Main St, Chandler AZ</div>
	  <div class="listing-services"><span class="listing-service">Free Consultation</span><span class="listing-service">Se Habla Español</span></div>
	  <div class="number-badge"><span class="fw-bold">25</span></div>
	</div></body></html>`

	p := New()
	d, err := p.ParseDetail([]byte(page), detailSelectors)
	require.NoError(t, err)
	require.Equal(t, "A full-service firm with decades of trial experience.", d.Biography)
	require.Equal(t, "John Smith, Mary Jones", d.Attorneys)
	require.Equal(t, "100 Main St, Chandler AZ", d.OfficeLocations)
	require.Equal(t, "Free Consultation | Se Habla Español", d.Services)
	require.Equal(t, "25", d.Experience)
}

func TestParseDetail_AttorneyLimit(t *testing.T) {
	t.Parallel()

	page := "<html><body>"
	for i := 0; i < 8; i++ {
		page += `<div class="lc-attorney-record"><h2>Attorney</h2></div>`
	}
	page += "</body></html>"

	p := New()
	d, err := p.ParseDetail([]byte(page), detailSelectors)
	require.NoError(t, err)
	require.Equal(t, "Attorney, Attorney, Attorney, Attorney, Attorney", d.Attorneys)
}

func TestParseDetail_NoFieldsIsError(t *testing.T) {
	t.Parallel()

	p := New()
	_, err := p.ParseDetail([]byte(`<html><body><p>nothing here</p></body></html>`), detailSelectors)
	require.Error(t, err)

	var pe *crawler.ParseError
	require.ErrorAs(t, err, &pe)
	require.False(t, crawler.Retryable(err))
}
