// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/gofeed/atom"
	ext "github.com/mmcdole/gofeed/extensions"

	"github.com/pdiddy/litfilter/internal/httputil"
	"github.com/pdiddy/litfilter/internal/ratelimit"
	"github.com/pdiddy/litfilter/pkg/types"
)

// arxivAPIBase is the arXiv search endpoint. Declared as a var so tests
// can substitute an httptest server.
var arxivAPIBase = "https://export.arxiv.org/api/query"

// Arxiv queries the arXiv API.
type Arxiv struct {
	Client    *http.Client
	Gate      *ratelimit.Gate
	UserAgent string
	PageSize  int
}

// Name returns the source identifier.
func (a *Arxiv) Name() string { return SourceArxiv }

// Page fetches one page of results starting at offset start. Results are
// sorted by submission date ascending so offsets stay stable while the
// corpus grows.
func (a *Arxiv) Page(ctx context.Context, query string, start int) (Page, error) {
	size := a.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}
	page := Page{Start: start, Size: size, Total: -1}

	params := url.Values{}
	params.Set("search_query", query)
	params.Set("start", strconv.Itoa(start))
	params.Set("max_results", strconv.Itoa(size))
	params.Set("sortBy", "submittedDate")
	params.Set("sortOrder", "ascending")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, arxivAPIBase+"?"+params.Encode(), nil)
	if err != nil {
		return page, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", a.UserAgent)
	req.Header.Set("Accept", "application/atom+xml")

	resp, err := httputil.Do(ctx, a.Client, req, a.Gate)
	if err != nil {
		return page, err
	}
	if err := httputil.CheckStatus("arXiv API", resp); err != nil {
		return page, err
	}
	defer resp.Body.Close()

	var parser atom.Parser
	feed, err := parser.Parse(resp.Body)
	if err != nil {
		return page, httputil.Malformed("arXiv API", err)
	}

	if v := extValue(feed.Extensions, "opensearch", "totalResults"); v != "" {
		if n, convErr := strconv.Atoi(v); convErr == nil {
			page.Total = n
		}
	}

	page.Entries = len(feed.Entries)
	for _, entry := range feed.Entries {
		if isArxivError(entry) {
			page.Entries--
			continue
		}
		page.Records = append(page.Records, arxivRecord(entry))
	}
	return page, nil
}

// arxivRecord normalizes one feed entry.
func arxivRecord(e *atom.Entry) types.Record {
	rec := types.Record{
		Title:      types.CleanText(e.Title),
		Abstract:   types.CleanText(e.Summary),
		Link:       strings.TrimSpace(e.ID),
		Source:     SourceArxiv,
		DOI:        strings.TrimSpace(extValue(e.Extensions, "arxiv", "doi")),
		JournalRef: types.CleanText(extValue(e.Extensions, "arxiv", "journal_ref")),
		Comment:    types.CleanText(extValue(e.Extensions, "arxiv", "comment")),
	}

	for _, a := range e.Authors {
		if name := strings.TrimSpace(a.Name); name != "" {
			rec.Authors = append(rec.Authors, name)
		}
	}

	switch {
	case e.PublishedParsed != nil:
		rec.Published = e.PublishedParsed.UTC()
	case e.Published != "":
		if t, err := time.Parse(time.RFC3339, strings.TrimSpace(e.Published)); err == nil {
			rec.Published = t.UTC()
		}
	}

	// Primary category first, then the rest in feed order.
	seen := make(map[string]bool)
	if primary := extAttr(e.Extensions, "arxiv", "primary_category", "term"); primary != "" {
		rec.Categories = append(rec.Categories, primary)
		seen[primary] = true
	}
	for _, c := range e.Categories {
		if c.Term != "" && !seen[c.Term] {
			rec.Categories = append(rec.Categories, c.Term)
			seen[c.Term] = true
		}
	}

	for _, l := range e.Links {
		switch {
		case l.Title == "pdf" || l.Type == "application/pdf":
			rec.PDFURL = l.Href
		case rec.Link == "" && (l.Rel == "alternate" || l.Rel == ""):
			rec.Link = l.Href
		}
	}
	return rec
}

// isArxivError reports whether e is the placeholder entry arXiv returns for
// an invalid query.
func isArxivError(e *atom.Entry) bool {
	return strings.Contains(e.ID, "/api/errors") || strings.EqualFold(strings.TrimSpace(e.Title), "error")
}

// extValue returns the text of the first prefix:name extension element.
func extValue(exts ext.Extensions, prefix, name string) string {
	if vals := exts[prefix][name]; len(vals) > 0 {
		return vals[0].Value
	}
	return ""
}

// extAttr returns an attribute of the first prefix:name extension element.
func extAttr(exts ext.Extensions, prefix, name, attr string) string {
	if vals := exts[prefix][name]; len(vals) > 0 && vals[0].Attrs != nil {
		return vals[0].Attrs[attr]
	}
	return ""
}

// AbsToPDF rewrites an arXiv abstract URL to its PDF URL
// ("https://arxiv.org/abs/2301.07041v1" becomes "https://arxiv.org/pdf/2301.07041v1").
// Other URLs are returned unchanged with ok false.
func AbsToPDF(link string) (string, bool) {
	u, err := url.Parse(link)
	if err != nil || !strings.HasSuffix(u.Host, "arxiv.org") || !strings.HasPrefix(u.Path, "/abs/") {
		return link, false
	}
	u.Scheme = "https"
	u.Path = "/pdf/" + strings.TrimPrefix(u.Path, "/abs/")
	return u.String(), true
}
