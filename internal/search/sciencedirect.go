// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pdiddy/litfilter/internal/httputil"
	"github.com/pdiddy/litfilter/internal/ratelimit"
	"github.com/pdiddy/litfilter/pkg/types"
)

// sciencedirectAPIBase is the Elsevier ScienceDirect search endpoint.
var sciencedirectAPIBase = "https://api.elsevier.com/content/search/sciencedirect"

// sciencedirectMaxCount is the largest page the search API serves.
const sciencedirectMaxCount = 100

// ScienceDirect queries the Elsevier ScienceDirect search API. Elsevier
// reports quota in X-RateLimit-Remaining / X-RateLimit-Reset, so its gate
// should be quota-aware.
type ScienceDirect struct {
	Client    *http.Client
	Gate      *ratelimit.Gate
	UserAgent string
	APIKey    string
	PageSize  int

	// FromYear and ToYear restrict results by publication year (0 = open).
	FromYear int
	ToYear   int

	now func() time.Time
}

// Name returns the source identifier.
func (s *ScienceDirect) Name() string { return SourceScienceDirect }

// Page fetches one page starting at offset start.
func (s *ScienceDirect) Page(ctx context.Context, query string, start int) (Page, error) {
	size := s.PageSize
	if size <= 0 || size > sciencedirectMaxCount {
		size = sciencedirectMaxCount
	}
	page := Page{Start: start, Size: size, Total: -1}

	params := url.Values{}
	params.Set("query", query)
	params.Set("start", strconv.Itoa(start))
	params.Set("count", strconv.Itoa(size))
	if d := s.dateRange(); d != "" {
		params.Set("date", d)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sciencedirectAPIBase+"?"+params.Encode(), nil)
	if err != nil {
		return page, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", s.UserAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-ELS-APIKey", s.APIKey)

	resp, err := httputil.Do(ctx, s.Client, req, s.Gate)
	if err != nil {
		return page, err
	}
	if err := httputil.CheckStatus("ScienceDirect API", resp); err != nil {
		return page, err
	}
	defer resp.Body.Close()

	var sr sdResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return page, httputil.Malformed("ScienceDirect API", err)
	}

	if n, convErr := strconv.Atoi(strings.TrimSpace(sr.Results.TotalResults)); convErr == nil {
		page.Total = n
	}
	for _, e := range sr.Results.Entries {
		// An empty result set is reported as a single entry carrying an error.
		if e.Error != "" {
			continue
		}
		page.Entries++
		page.Records = append(page.Records, e.record())
	}
	return page, nil
}

// dateRange renders the year filter ("2020-2024"). A lone FromYear runs to
// the current year; a lone ToYear is a single year.
func (s *ScienceDirect) dateRange() string {
	from, to := s.FromYear, s.ToYear
	switch {
	case from > 0 && to > 0:
		return fmt.Sprintf("%d-%d", from, to)
	case from > 0:
		now := time.Now
		if s.now != nil {
			now = s.now
		}
		return fmt.Sprintf("%d-%d", from, now().Year())
	case to > 0:
		return strconv.Itoa(to)
	}
	return ""
}

// ScienceDirect search JSON structures.
type sdResponse struct {
	Results struct {
		TotalResults string    `json:"opensearch:totalResults"`
		Entries      []sdEntry `json:"entry"`
	} `json:"search-results"`
}

type sdEntry struct {
	Error           string          `json:"error"`
	Title           string          `json:"dc:title"`
	DOI             string          `json:"prism:doi"`
	CoverDate       string          `json:"prism:coverDate"`
	PublicationName string          `json:"prism:publicationName"`
	URL             string          `json:"prism:url"`
	Creator         string          `json:"dc:creator"`
	Authors         json.RawMessage `json:"authors"`
	Links           []struct {
		Ref  string `json:"@ref"`
		Href string `json:"@href"`
	} `json:"link"`
}

func (e sdEntry) record() types.Record {
	rec := types.Record{
		Title:      types.CleanText(e.Title),
		DOI:        strings.TrimSpace(e.DOI),
		JournalRef: types.CleanText(e.PublicationName),
		Source:     SourceScienceDirect,
		Authors:    parseSDAuthors(e.Authors),
	}
	if len(rec.Authors) == 0 && e.Creator != "" {
		rec.Authors = []string{strings.TrimSpace(e.Creator)}
	}

	if t, err := time.Parse("2006-01-02", strings.TrimSpace(e.CoverDate)); err == nil {
		rec.Published = t
	} else if len(e.CoverDate) >= 4 {
		if y, convErr := strconv.Atoi(e.CoverDate[:4]); convErr == nil {
			rec.Published = yearStart(y)
		}
	}

	for _, l := range e.Links {
		switch l.Ref {
		case "scidir":
			if rec.Link == "" {
				rec.Link = l.Href
			}
		case "self":
			rec.ArticleURL = l.Href
		}
	}
	if rec.ArticleURL == "" && strings.Contains(e.URL, "/content/article/") {
		rec.ArticleURL = e.URL
	}
	if rec.Link == "" && len(e.Links) > 0 {
		rec.Link = e.Links[0].Href
	}
	if rec.Link == "" {
		rec.Link = e.URL
	}
	return rec
}

// parseSDAuthors handles the shapes Elsevier uses for the authors field:
// {"author": "Name"}, {"author": [{"$": "Name"}, ...]}, or a bare list.
func parseSDAuthors(raw json.RawMessage) []string {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var wrapped struct {
		Author json.RawMessage `json:"author"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && len(wrapped.Author) > 0 {
		raw = wrapped.Author
	}

	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		if single = strings.TrimSpace(single); single != "" {
			return []string{single}
		}
		return nil
	}

	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil
	}
	var names []string
	for _, item := range list {
		var name string
		if err := json.Unmarshal(item, &name); err != nil {
			var obj struct {
				Value string `json:"$"`
			}
			if err := json.Unmarshal(item, &obj); err != nil {
				continue
			}
			name = obj.Value
		}
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return names
}
