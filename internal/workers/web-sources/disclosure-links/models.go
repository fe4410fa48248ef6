// internal/workers/web-sources/disclosure-links/models.go
package disclosurelinks

import (
	"context"
	"io"

	"github.com/PuerkitoBio/goquery"
)

type Fetcher interface {
	FetchDocument(ctx context.Context, url string) (*goquery.Document, error)
}

// Downloader streams a remote file into w.
type Downloader interface {
	Download(ctx context.Context, url string, w io.Writer) (int64, error)
}

// Selection narrows the published files. Zero fields match everything.
type Selection struct {
	FiscalYear int
	Quarter    int
}
