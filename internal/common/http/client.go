// Package http is the outbound client used by the web source scrapers.
package http

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"

	apperrors "lca-assistant/internal/common/errors"
)

const DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

type Client struct {
	httpClient *http.Client
	userAgent  string
}

func NewClient(timeout time.Duration, userAgent string) *Client {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		userAgent: userAgent,
	}
}

func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.httpClient.Do(req)
}

func (c *Client) DoWithContext(ctx context.Context, req *http.Request) (*http.Response, error) {
	req = req.WithContext(ctx)
	return c.httpClient.Do(req)
}

// FetchDocument performs a single GET and parses the body as HTML. Any
// network, status or parse failure is returned as a SCRAPE_ERROR carrying url.
func (c *Client) FetchDocument(ctx context.Context, url string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, apperrors.NewScrapeError(url, err)
	}
	c.setBrowserHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.NewScrapeError(url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, apperrors.NewScrapeError(url, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	body, err := readBody(resp)
	if err != nil {
		return nil, apperrors.NewScrapeError(url, err)
	}
	defer body.Close()

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, apperrors.NewScrapeError(url, fmt.Errorf("parse html: %w", err))
	}
	return doc, nil
}

// Download streams the body of url into w and returns the bytes written.
func (c *Client) Download(ctx context.Context, url string, w io.Writer) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, apperrors.NewScrapeError(url, err)
	}
	c.setBrowserHeaders(req)
	req.Header.Del("Accept-Encoding")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, apperrors.NewScrapeError(url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, apperrors.NewScrapeError(url, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, apperrors.NewScrapeError(url, fmt.Errorf("copy body: %w", err))
	}
	return n, nil
}

func (c *Client) setBrowserHeaders(req *http.Request) {
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Accept-Encoding", "gzip")
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
}

// readBody unwraps gzip by hand since Accept-Encoding is set explicitly.
func readBody(resp *http.Response) (io.ReadCloser, error) {
	if resp.Header.Get("Content-Encoding") == "gzip" {
		reader, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		return reader, nil
	}
	return io.NopCloser(resp.Body), nil
}
