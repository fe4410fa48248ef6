package scrapecounts

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "lca-assistant/internal/common/errors"
	apphttp "lca-assistant/internal/common/http"
	"lca-assistant/internal/common/logger"
	"lca-assistant/internal/models"
)

// ==========================
// Test Helper Functions
// ==========================

const leaderboardPage = `<html><body>
<h2>Top H-1B Visa Sponsors</h2>
<table>
  <thead><tr><th>Rank</th><th>Employer</th><th>Number of LCAs</th><th>Average Salary</th></tr></thead>
  <tbody>
    <tr><td>1</td><td>Infosys Limited</td><td>12,345</td><td>$95,000</td></tr>
    <tr><td>2</td><td>Tata Consultancy Services</td><td>9,876</td><td>$91,000</td></tr>
    <tr><td>3</td><td>Redacted</td><td>N/A</td><td>-</td></tr>
  </tbody>
</table>
<table><tr><th>Links</th></tr><tr><td>About</td></tr></table>
</body></html>`

const employerPage = `<html><body>
<h1>Google LLC</h1>
<table>
  <tr><th>Fiscal Year</th><th>Petitions Filed</th></tr>
  <tr><td>FY 2024</td><td>9,120</td></tr>
  <tr><td>FY 2023</td><td>8,455</td></tr>
</table>
</body></html>`

const schoolPage = `<html><body>
<table>
  <tr><td>Year</td><td>H-1B Count</td></tr>
  <tr><td>2024</td><td>1,204</td></tr>
  <tr><td>2023</td><td>1,101</td></tr>
</table>
</body></html>`

const linesPage = `<html><body><ul>
<li>Amazon.com Services LLC – 10,500 petitions</li>
<li>Microsoft Corporation - 7,250 petitions</li>
</ul></body></html>`

type pageServer struct {
	mu    sync.Mutex
	hits  map[string]int
	pages map[string]string
}

func newPageServer(t *testing.T) (*httptest.Server, *pageServer) {
	ps := &pageServer{
		hits: map[string]int{},
		pages: map[string]string{
			"/reports/h1b/":                leaderboardPage,
			"/employer/google/":            employerPage,
			"/school/university-michigan/": schoolPage,
			"/employer/quiet-co/":          `<html><body><p>No data yet.</p></body></html>`,
			"/lines/":                      linesPage,
		},
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ps.mu.Lock()
		ps.hits[r.URL.Path]++
		body, ok := ps.pages[r.URL.Path]
		ps.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(server.Close)
	return server, ps
}

func createTestConfig(baseURL string) *Config {
	return &Config{
		BaseURL:          baseURL,
		TopEmployersPath: "/reports/h1b/",
		Timeout:          2 * time.Second,
	}
}

func newTestHandler(t *testing.T, cfg *Config) *Handler {
	return NewHandler(cfg, apphttp.NewClient(time.Second, "test-agent"), logger.NewTestLogger(t))
}

// ==========================
// Slug Tests
// ==========================

func TestNormalizeSlug(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"University of Michigan", "university-michigan"},
		{"university-michigan", "university-michigan"},
		{"  The Ohio State University ", "ohio-state-university"},
		{"Ernst & Young U.S. LLP", "ernst-young-u-s-llp"},
		{"Université de Montréal", "universite-de-montreal"},
		{"Texas A&M University", "texas-a-m-university"},
		{"The", "the"},
		{"", ""},
		{"!!!", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeSlug(tt.in))
		})
	}
}

func TestNormalizeSlug_Idempotent(t *testing.T) {
	inputs := []string{
		"University of Michigan", "Google LLC", "The Ohio State University",
		"Université de Montréal", "AT&T Services, Inc.", "of the and", "ＦＵＬＬ ｗｉｄｔｈ",
		"Georgia Institute of Technology", "  --weird__spacing-- ", "Jürgen Müller GmbH",
	}
	for _, in := range inputs {
		once := NormalizeSlug(in)
		assert.Equal(t, once, NormalizeSlug(once), "input %q", in)
	}
}

func TestEntityURLs(t *testing.T) {
	h := newTestHandler(t, createTestConfig("https://www.myvisajobs.com/"))

	assert.Equal(t, "https://www.myvisajobs.com/school/university-michigan/", h.SchoolURL("University of Michigan"))
	assert.Equal(t, "https://www.myvisajobs.com/employer/google-llc/", h.EmployerURL("Google LLC"))
	assert.Equal(t, "https://www.myvisajobs.com/reports/h1b/", h.TopEmployersURL())
}

// ==========================
// Scrape Tests
// ==========================

func TestFetchTopEmployers(t *testing.T) {
	server, ps := newPageServer(t)
	h := newTestHandler(t, createTestConfig(server.URL))

	records, err := h.FetchTopEmployers(context.Background(), 0)

	require.NoError(t, err)
	require.Len(t, records, 2, "unparseable count is skipped")
	assert.Equal(t, "Infosys Limited", records[0].Name)
	assert.Equal(t, 12345, records[0].Count)
	assert.Equal(t, models.EntityEmployer, records[0].Kind)
	assert.Equal(t, server.URL+"/reports/h1b/", records[0].SourceURL)
	assert.Equal(t, 9876, records[1].Count)
	assert.Equal(t, 1, ps.hits["/reports/h1b/"])
}

func TestFetchEmployerCounts_FiltersYear(t *testing.T) {
	server, _ := newPageServer(t)
	h := newTestHandler(t, createTestConfig(server.URL))

	all, err := h.FetchEmployerCounts(context.Background(), "Google", 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Google", all[0].Name)
	assert.Equal(t, 2024, all[0].FiscalYear)

	fy2023, err := h.FetchEmployerCounts(context.Background(), "Google", 2023)
	require.NoError(t, err)
	require.Len(t, fy2023, 1)
	assert.Equal(t, 8455, fy2023[0].Count)

	none, err := h.FetchEmployerCounts(context.Background(), "Google", 2019)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestFetchSchoolCounts_HeaderWithoutTH(t *testing.T) {
	server, ps := newPageServer(t)
	h := newTestHandler(t, createTestConfig(server.URL))

	records, err := h.FetchSchoolCounts(context.Background(), "University of Michigan", 2024)

	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, models.EntitySchool, records[0].Kind)
	assert.Equal(t, 1204, records[0].Count)
	assert.Equal(t, server.URL+"/school/university-michigan/", records[0].SourceURL)
	assert.Equal(t, 1, ps.hits["/school/university-michigan/"])
}

func TestFetch_PageWithoutTableIsEmpty(t *testing.T) {
	server, _ := newPageServer(t)
	h := newTestHandler(t, createTestConfig(server.URL))

	records, err := h.FetchEmployerCounts(context.Background(), "Quiet Co", 0)

	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)
}

func TestFetch_PetitionLineFallback(t *testing.T) {
	server, _ := newPageServer(t)
	cfg := createTestConfig(server.URL)
	cfg.TopEmployersPath = "lines"
	h := newTestHandler(t, cfg)

	records, err := h.FetchTopEmployers(context.Background(), 0)

	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Amazon.com Services LLC", records[0].Name)
	assert.Equal(t, 10500, records[0].Count)
	assert.Equal(t, "Microsoft Corporation", records[1].Name)
}

func TestFetch_HTTPErrorCarriesURL(t *testing.T) {
	server, ps := newPageServer(t)
	h := newTestHandler(t, createTestConfig(server.URL))

	_, err := h.FetchEmployerCounts(context.Background(), "Broken Inc", 0)

	require.Error(t, err)
	stdErr, ok := apperrors.AsStandard(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeScrape, stdErr.Code)
	assert.Equal(t, server.URL+"/employer/broken-inc/", stdErr.MetadataString("url"))
	assert.Equal(t, 1, ps.hits["/employer/broken-inc/"], "single attempt, no retry")
}

func TestFetch_UnreachableCarriesURL(t *testing.T) {
	server, _ := newPageServer(t)
	base := server.URL
	server.Close()
	h := newTestHandler(t, createTestConfig(base))

	_, err := h.FetchSchoolCounts(context.Background(), "University of Michigan", 0)

	stdErr, ok := apperrors.AsStandard(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeScrape, stdErr.Code)
	assert.Equal(t, base+"/school/university-michigan/", stdErr.MetadataString("url"))
}

func TestFetch_BlankEntityRejected(t *testing.T) {
	h := newTestHandler(t, createTestConfig("http://127.0.0.1:1"))

	_, err := h.FetchSchoolCounts(context.Background(), "  ", 0)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeValidation))
}

// ==========================
// Parser Tests
// ==========================

type staticFetcher struct{ html string }

func (f staticFetcher) FetchDocument(ctx context.Context, url string) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(f.html))
}

func TestParseTables_RowHeaderCells(t *testing.T) {
	html := `<table>
	<tr><th>Sponsor</th><th>Year</th><th>Petitions</th></tr>
	<tr><th>Cognizant</th><td>2024</td><td>4,001</td></tr>
	</table>`
	h := NewHandler(createTestConfig("https://example.test"), staticFetcher{html: html}, logger.NewNoOpLogger())

	records, err := h.FetchTopEmployers(context.Background(), 2024)

	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Cognizant", records[0].Name)
	assert.Equal(t, 4001, records[0].Count)
	assert.Equal(t, 2024, records[0].FiscalYear)
}

func TestParseCount(t *testing.T) {
	n, ok := parseCount(" 12,345 ")
	assert.True(t, ok)
	assert.Equal(t, 12345, n)

	for _, bad := range []string{"", "N/A", "-", "12k"} {
		_, ok := parseCount(bad)
		assert.False(t, ok, bad)
	}
}
