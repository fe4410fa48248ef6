// internal/workers/web-sources/scrape-counts/models.go
package scrapecounts

import (
	"context"

	"github.com/PuerkitoBio/goquery"
)

// Fetcher retrieves and parses one page. Failures are SCRAPE_ERRORs
// carrying the attempted URL.
type Fetcher interface {
	FetchDocument(ctx context.Context, url string) (*goquery.Document, error)
}

type Target string

const (
	TargetTopEmployers Target = "top_employers"
	TargetEmployer     Target = "employer"
	TargetSchool       Target = "school"
)

// columnLayout is the position of the interesting cells in a report table.
// A negative index means the column is absent.
type columnLayout struct {
	name  int
	year  int
	count int
}
