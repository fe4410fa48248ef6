package disclosurelinks

import (
	"context"
	"errors"
	"io"
	"net/url"
	"path"
	"regexp"
	"sort"
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
	TaskType = "disclosure-links"
)

var (
	ErrNoDisclosureFiles = errors.New("NO_DISCLOSURE_FILES")

	disclosureFilePattern = regexp.MustCompile(`(?i)^LCA_Disclosure_Data_FY(\d{4})_Q(\d)\.xlsx$`)
)

// Handler lists the quarterly LCA disclosure workbooks linked from the DOL
// performance page.
type Handler struct {
	config     *Config
	fetcher    Fetcher
	downloader Downloader
	logger     logger.Logger
}

func NewHandler(config *Config, fetcher Fetcher, downloader Downloader, log logger.Logger) *Handler {
	return &Handler{
		config:     config,
		fetcher:    fetcher,
		downloader: downloader,
		logger:     log.With(map[string]interface{}{"component": TaskType}),
	}
}

// ListFiles returns every disclosure workbook on the page, newest first.
func (h *Handler) ListFiles(ctx context.Context) ([]models.DisclosureFile, error) {
	if h.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.config.Timeout)
		defer cancel()
	}

	start := time.Now()
	doc, err := h.fetcher.FetchDocument(ctx, h.config.PageURL)
	metrics.ScrapeDuration.WithLabelValues(TaskType).Observe(time.Since(start).Seconds())
	if err != nil {
		h.logger.Warn("disclosure page fetch failed", map[string]interface{}{
			"url":   h.config.PageURL,
			"error": err,
		})
		if apperrors.IsCode(err, apperrors.ErrCodeScrape) {
			return nil, err
		}
		return nil, apperrors.NewScrapeError(h.config.PageURL, err)
	}

	files := h.extractFiles(doc)
	h.logger.Debug("disclosure files listed", map[string]interface{}{
		"fileCount": len(files),
	})
	return files, nil
}

func (h *Handler) extractFiles(doc *goquery.Document) []models.DisclosureFile {
	seen := make(map[string]struct{})
	files := make([]models.DisclosureFile, 0)

	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href := strings.TrimSpace(a.AttrOr("href", ""))
		name := fileName(href)
		m := disclosureFilePattern.FindStringSubmatch(name)
		if m == nil {
			return
		}

		link := h.absolute(href)
		if _, dup := seen[link]; dup {
			return
		}
		seen[link] = struct{}{}

		year, _ := strconv.Atoi(m[1])
		quarter, _ := strconv.Atoi(m[2])
		files = append(files, models.DisclosureFile{
			FiscalYear: year,
			Quarter:    quarter,
			FileName:   name,
			URL:        link,
		})
	})

	sort.SliceStable(files, func(i, j int) bool {
		return files[i].After(files[j])
	})
	return files
}

// absolute resolves href against the page it was found on.
func (h *Handler) absolute(href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	base, err := url.Parse(h.config.PageURL)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

// fileName is the last path element of href, ignoring any query string.
func fileName(href string) string {
	if u, err := url.Parse(href); err == nil && u.Path != "" {
		href = u.Path
	}
	return path.Base(href)
}

// Select narrows files to sel, keeping their order.
func Select(files []models.DisclosureFile, sel Selection) []models.DisclosureFile {
	selected := make([]models.DisclosureFile, 0, len(files))
	for _, f := range files {
		if sel.FiscalYear > 0 && f.FiscalYear != sel.FiscalYear {
			continue
		}
		if sel.Quarter > 0 && f.Quarter != sel.Quarter {
			continue
		}
		selected = append(selected, f)
	}
	return selected
}

// Latest returns the newest workbook matching sel.
func (h *Handler) Latest(ctx context.Context, sel Selection) (*models.DisclosureFile, error) {
	if sel.Quarter < 0 || sel.Quarter > 4 {
		return nil, apperrors.NewValidationError("quarter", "quarter must be between 1 and 4")
	}

	files, err := h.ListFiles(ctx)
	if err != nil {
		return nil, err
	}

	selected := Select(files, sel)
	if len(selected) == 0 {
		return nil, ErrNoDisclosureFiles
	}

	latest := selected[0]
	for _, f := range selected[1:] {
		if f.After(latest) {
			latest = f
		}
	}
	return &latest, nil
}

// Download streams file into w.
func (h *Handler) Download(ctx context.Context, file models.DisclosureFile, w io.Writer) (int64, error) {
	if h.downloader == nil {
		return 0, apperrors.NewConfigurationError("no downloader configured")
	}

	start := time.Now()
	n, err := h.downloader.Download(ctx, file.URL, w)
	if err != nil {
		h.logger.Error("disclosure download failed", map[string]interface{}{
			"url":   file.URL,
			"bytes": n,
			"error": err,
		})
		if apperrors.IsCode(err, apperrors.ErrCodeScrape) {
			return n, err
		}
		return n, apperrors.NewScrapeError(file.URL, err)
	}

	h.logger.Info("disclosure file downloaded", map[string]interface{}{
		"file":     file.FileName,
		"bytes":    n,
		"duration": time.Since(start).String(),
	})
	return n, nil
}
