package scrapecounts

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	apperrors "lca-assistant/internal/common/errors"
	"lca-assistant/internal/common/logger"
	"lca-assistant/internal/common/metrics"
	"lca-assistant/internal/models"
)

const (
	TaskType = "scrape-counts"
)

var (
	// "Company Name – 12,345 petitions" lines on report pages without a table.
	petitionLinePattern = regexp.MustCompile(`(?i)([A-Za-z0-9&.,'()\-\s]{3,})\s[–-]\s([\d,]{3,})\s+petitions`)
	yearPattern         = regexp.MustCompile(`(?:19|20)\d{2}`)
)

// Handler scrapes petition counts from the public H-1B report site. Each call
// makes exactly one request and nothing is cached.
type Handler struct {
	config  *Config
	fetcher Fetcher
	logger  logger.Logger
}

func NewHandler(config *Config, fetcher Fetcher, log logger.Logger) *Handler {
	return &Handler{
		config:  config,
		fetcher: fetcher,
		logger:  log.With(map[string]interface{}{"component": TaskType}),
	}
}

func (h *Handler) TopEmployersURL() string {
	return strings.TrimRight(h.config.BaseURL, "/") + "/" + strings.Trim(h.config.TopEmployersPath, "/") + "/"
}

func (h *Handler) EmployerURL(employer string) string {
	return h.entityURL(models.EntityEmployer, employer)
}

func (h *Handler) SchoolURL(school string) string {
	return h.entityURL(models.EntitySchool, school)
}

func (h *Handler) entityURL(kind models.EntityKind, name string) string {
	return strings.TrimRight(h.config.BaseURL, "/") + "/" + string(kind) + "/" + NormalizeSlug(name) + "/"
}

// FetchTopEmployers returns every row of the sponsor leaderboard, optionally
// narrowed to fiscalYear (0 means any).
func (h *Handler) FetchTopEmployers(ctx context.Context, fiscalYear int) ([]models.CountRecord, error) {
	return h.scrape(ctx, TargetTopEmployers, models.EntityEmployer, "", h.TopEmployersURL(), fiscalYear)
}

// FetchEmployerCounts returns the per-year petition counts of one employer.
func (h *Handler) FetchEmployerCounts(ctx context.Context, employer string, fiscalYear int) ([]models.CountRecord, error) {
	if NormalizeSlug(employer) == "" {
		return nil, apperrors.NewValidationError("employer", "employer name is required")
	}
	return h.scrape(ctx, TargetEmployer, models.EntityEmployer, employer, h.EmployerURL(employer), fiscalYear)
}

// FetchSchoolCounts returns the per-year petition counts of one school.
func (h *Handler) FetchSchoolCounts(ctx context.Context, school string, fiscalYear int) ([]models.CountRecord, error) {
	if NormalizeSlug(school) == "" {
		return nil, apperrors.NewValidationError("school", "school name is required")
	}
	return h.scrape(ctx, TargetSchool, models.EntitySchool, school, h.SchoolURL(school), fiscalYear)
}

func (h *Handler) scrape(ctx context.Context, target Target, kind models.EntityKind, entity, url string, fiscalYear int) ([]models.CountRecord, error) {
	if h.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.config.Timeout)
		defer cancel()
	}

	start := time.Now()
	doc, err := h.fetcher.FetchDocument(ctx, url)
	metrics.ScrapeDuration.WithLabelValues(string(target)).Observe(time.Since(start).Seconds())
	if err != nil {
		h.logger.Warn("page fetch failed", map[string]interface{}{
			"target": string(target),
			"url":    url,
			"error":  err,
		})
		if apperrors.IsCode(err, apperrors.ErrCodeScrape) {
			return nil, err
		}
		return nil, apperrors.NewScrapeError(url, err)
	}

	records := parseTables(doc, kind, entity, url)
	if len(records) == 0 {
		records = parsePetitionLines(doc, kind, url)
	}
	records = filterYear(records, fiscalYear)

	h.logger.Debug("page scraped", map[string]interface{}{
		"target":      string(target),
		"url":         url,
		"recordCount": len(records),
	})
	return records, nil
}

// parseTables reads every table whose header names a count column.
func parseTables(doc *goquery.Document, kind models.EntityKind, entity, url string) []models.CountRecord {
	records := make([]models.CountRecord, 0)
	doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		layout, headerRow := detectLayout(table)
		if layout.count < 0 {
			return
		}
		if layout.name < 0 && entity == "" {
			return
		}

		table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
			if headerRow != nil && tr.IsSelection(headerRow) {
				return
			}
			if tr.Find("td").Length() == 0 {
				return
			}
			cells := tr.Find("th, td")

			count, ok := parseCount(cellText(cells, layout.count))
			if !ok {
				return
			}

			name := entity
			if layout.name >= 0 {
				name = cellText(cells, layout.name)
			}
			if name == "" {
				return
			}

			records = append(records, models.CountRecord{
				Kind:       kind,
				Name:       name,
				FiscalYear: parseYear(cellText(cells, layout.year)),
				Count:      count,
				SourceURL:  url,
			})
		})
	})
	return records
}

// detectLayout matches header cells by keyword. The header row is the first
// row with <th> cells, or the first row at all.
func detectLayout(table *goquery.Selection) (columnLayout, *goquery.Selection) {
	layout := columnLayout{name: -1, year: -1, count: -1}

	header := table.Find("tr").FilterFunction(func(_ int, tr *goquery.Selection) bool {
		return tr.Find("th").Length() > 0
	}).First()
	var cells *goquery.Selection
	if header.Length() > 0 {
		cells = header.Find("th, td")
	} else {
		header = table.Find("tr").First()
		cells = header.Find("td")
	}

	cells.Each(func(i int, cell *goquery.Selection) {
		label := strings.ToLower(strings.TrimSpace(cell.Text()))
		switch {
		case layout.year < 0 && (strings.Contains(label, "year") || label == "fy"):
			layout.year = i
		case layout.count < 0 && containsAny(label, "count", "petition", "lca", "filings", "number of", "applications"):
			layout.count = i
		case layout.name < 0 && containsAny(label, "employer", "school", "university", "sponsor", "company", "name"):
			layout.name = i
		}
	})

	if header.Length() == 0 {
		return layout, nil
	}
	return layout, header
}

func parsePetitionLines(doc *goquery.Document, kind models.EntityKind, url string) []models.CountRecord {
	records := make([]models.CountRecord, 0)
	for _, m := range petitionLinePattern.FindAllStringSubmatch(doc.Text(), -1) {
		count, ok := parseCount(m[2])
		if !ok {
			continue
		}
		name := strings.TrimSpace(m[1])
		if idx := strings.LastIndexAny(name, "\n\r\t"); idx >= 0 {
			name = strings.TrimSpace(name[idx+1:])
		}
		if name == "" {
			continue
		}
		records = append(records, models.CountRecord{
			Kind:      kind,
			Name:      name,
			Count:     count,
			SourceURL: url,
		})
	}
	return records
}

// filterYear keeps records for fiscalYear. When no record carries a year the
// page cannot be filtered and is returned whole.
func filterYear(records []models.CountRecord, fiscalYear int) []models.CountRecord {
	if fiscalYear <= 0 {
		return records
	}
	dated := false
	for _, r := range records {
		if r.FiscalYear != 0 {
			dated = true
			break
		}
	}
	if !dated {
		return records
	}

	filtered := make([]models.CountRecord, 0, len(records))
	for _, r := range records {
		if r.FiscalYear == fiscalYear {
			filtered = append(filtered, r)
		}
	}
	return filtered
}

func cellText(cells *goquery.Selection, index int) string {
	if index < 0 || index >= cells.Length() {
		return ""
	}
	return strings.Join(strings.Fields(cells.Eq(index).Text()), " ")
}

func parseCount(s string) (int, bool) {
	s = strings.NewReplacer(",", "", " ", "", "\u00a0", "").Replace(strings.TrimSpace(s))
	if s == "" {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func parseYear(s string) int {
	m := yearPattern.FindString(s)
	if m == "" {
		return 0
	}
	year, _ := strconv.Atoi(m)
	return year
}

func containsAny(s string, keywords ...string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
