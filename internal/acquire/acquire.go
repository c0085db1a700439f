// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package acquire holds the single-record connectors: DOI lookup through
// CrossRef and full-text document download.
package acquire

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/pdiddy/litfilter/internal/httputil"
	"github.com/pdiddy/litfilter/internal/ratelimit"
)

// DefaultMaxDocumentBytes bounds a single document download.
const DefaultMaxDocumentBytes int64 = 100 << 20

// Downloader fetches full-text documents.
type Downloader struct {
	Client    *http.Client
	Gate      *ratelimit.Gate
	UserAgent string

	// MaxBytes bounds the response body (DefaultMaxDocumentBytes when zero).
	MaxBytes int64
}

// Fetch downloads the document at rawURL. Only HTTP 200 counts as success;
// the client follows redirects. A body larger than MaxBytes is rejected
// as ErrServer.
func (d *Downloader) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if rawURL == "" {
		return nil, fmt.Errorf("no document URL: %w", httputil.ErrNotFound)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request for %s: %w", rawURL, httputil.ErrNotFound)
	}
	req.Header.Set("User-Agent", d.UserAgent)
	req.Header.Set("Accept", "application/pdf")

	resp, err := httputil.Do(ctx, d.Client, req, d.Gate)
	if err != nil {
		return nil, err
	}
	if err := httputil.CheckStatus("document host", resp); err != nil {
		return nil, fmt.Errorf("%s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	limit := d.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxDocumentBytes
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", rawURL, err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%s: document exceeds %d bytes: %w", rawURL, limit, httputil.ErrServer)
	}
	return data, nil
}
