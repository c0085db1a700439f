// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package acquire

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/pdiddy/litfilter/internal/httputil"
	"github.com/pdiddy/litfilter/internal/ratelimit"
	"github.com/pdiddy/litfilter/pkg/types"
)

// CrossRef resolves DOIs through the CrossRef works API.
type CrossRef struct {
	Client    *http.Client
	Gate      *ratelimit.Gate
	UserAgent string

	// Mailto, when set, is appended to the User-Agent so requests are routed
	// to CrossRef's polite pool.
	Mailto string
}

// Lookup resolves one DOI. An unknown DOI yields an error wrapping
// httputil.ErrNotFound; any other non-200 status wraps httputil.ErrServer.
// HTTP 429 is retried through the gate until its maximum wait elapses.
func (c *CrossRef) Lookup(ctx context.Context, doi string) (types.Work, error) {
	doi = NormalizeDOI(doi)
	if doi == "" {
		return types.Work{}, fmt.Errorf("empty DOI: %w", httputil.ErrNotFound)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, crossrefAPIBase+escapeDOI(doi), nil)
	if err != nil {
		return types.Work{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent())
	req.Header.Set("Accept", "application/json")

	resp, err := httputil.Do(ctx, c.Client, req, c.Gate)
	if err != nil {
		return types.Work{}, err
	}
	if err := httputil.CheckStatus("CrossRef API", resp); err != nil {
		return types.Work{}, fmt.Errorf("DOI %s: %w", doi, err)
	}
	defer resp.Body.Close()

	var cr crossrefResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return types.Work{}, httputil.Malformed("CrossRef API", err)
	}
	return cr.Message.work(), nil
}

func (c *CrossRef) userAgent() string {
	if c.Mailto == "" {
		return c.UserAgent
	}
	return fmt.Sprintf("%s (mailto:%s)", c.UserAgent, c.Mailto)
}

// CrossRef API JSON structures.
type crossrefResponse struct {
	Message crossrefWork `json:"message"`
}

type crossrefWork struct {
	Title          []string     `json:"title"`
	Publisher      string       `json:"publisher"`
	ContainerTitle []string     `json:"container-title"`
	URL            string       `json:"URL"`
	PublishedPrint crossrefDate `json:"published-print"`
	Issued         crossrefDate `json:"issued"`
}

type crossrefDate struct {
	DateParts [][]*int `json:"date-parts"`
}

// year returns the first date part, or 0 when absent. CrossRef encodes an
// unknown date as [[null]].
func (d crossrefDate) year() int {
	if len(d.DateParts) == 0 || len(d.DateParts[0]) == 0 || d.DateParts[0][0] == nil {
		return 0
	}
	return *d.DateParts[0][0]
}

func (w crossrefWork) work() types.Work {
	out := types.Work{
		Publisher: strings.TrimSpace(w.Publisher),
		URL:       w.URL,
	}
	if len(w.Title) > 0 {
		out.Title = types.CleanText(w.Title[0])
	}
	if len(w.ContainerTitle) > 0 {
		out.ContainerTitle = types.CleanText(w.ContainerTitle[0])
	}
	out.PublishedYear = w.PublishedPrint.year()
	if out.PublishedYear == 0 {
		out.PublishedYear = w.Issued.year()
	}
	return out
}
