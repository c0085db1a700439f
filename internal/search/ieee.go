// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/pdiddy/litfilter/internal/httputil"
	"github.com/pdiddy/litfilter/internal/ratelimit"
	"github.com/pdiddy/litfilter/pkg/types"
)

// ieeeAPIBase is the IEEE Xplore metadata search endpoint.
var ieeeAPIBase = "https://ieeexploreapi.ieee.org/api/v1/search/articles"

// ieeeMaxRecords is the largest page IEEE Xplore serves.
const ieeeMaxRecords = 200

// IEEE queries the IEEE Xplore metadata API.
type IEEE struct {
	Client    *http.Client
	Gate      *ratelimit.Gate
	UserAgent string
	APIKey    string
	PageSize  int
}

// Name returns the source identifier.
func (s *IEEE) Name() string { return SourceIEEE }

// Page fetches one page. IEEE numbers records from 1, so offset start maps
// to start_record start+1.
func (s *IEEE) Page(ctx context.Context, query string, start int) (Page, error) {
	size := s.PageSize
	if size <= 0 || size > ieeeMaxRecords {
		size = ieeeMaxRecords
	}
	page := Page{Start: start, Size: size, Total: -1}

	params := url.Values{}
	params.Set("apikey", s.APIKey)
	params.Set("format", "json")
	params.Set("querytext", query)
	params.Set("max_records", strconv.Itoa(size))
	params.Set("start_record", strconv.Itoa(start+1))
	params.Set("sort_field", "publication_year")
	params.Set("sort_order", "asc")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ieeeAPIBase+"?"+params.Encode(), nil)
	if err != nil {
		return page, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", s.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := httputil.Do(ctx, s.Client, req, s.Gate)
	if err != nil {
		return page, err
	}
	if err := httputil.CheckStatus("IEEE Xplore API", resp); err != nil {
		return page, err
	}
	defer resp.Body.Close()

	var sr ieeeResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return page, httputil.Malformed("IEEE Xplore API", err)
	}

	page.Total = sr.TotalRecords
	page.Entries = len(sr.Articles)
	for _, a := range sr.Articles {
		page.Records = append(page.Records, a.record())
	}
	return page, nil
}

// IEEE Xplore API JSON structures.
type ieeeResponse struct {
	TotalRecords int           `json:"total_records"`
	Articles     []ieeeArticle `json:"articles"`
}

type ieeeArticle struct {
	Title            string   `json:"title"`
	DOI              string   `json:"doi"`
	PublicationYear  flexInt  `json:"publication_year"`
	PublicationTitle string   `json:"publication_title"`
	Abstract         string   `json:"abstract"`
	HTMLURL          string   `json:"html_url"`
	ArticleNumber    string   `json:"article_number"`
	Authors          struct {
		Authors []struct {
			FullName string `json:"full_name"`
		} `json:"authors"`
	} `json:"authors"`
	IndexTerms struct {
		IEEETerms struct {
			Terms []string `json:"terms"`
		} `json:"ieee_terms"`
	} `json:"index_terms"`
}

func (a ieeeArticle) record() types.Record {
	rec := types.Record{
		Title:      types.CleanText(a.Title),
		DOI:        strings.TrimSpace(a.DOI),
		Published:  yearStart(int(a.PublicationYear)),
		JournalRef: types.CleanText(a.PublicationTitle),
		Abstract:   types.CleanText(a.Abstract),
		Link:       a.HTMLURL,
		Source:     SourceIEEE,
		Categories: a.IndexTerms.IEEETerms.Terms,
	}
	if rec.Link == "" && a.ArticleNumber != "" {
		rec.Link = "https://ieeexplore.ieee.org/document/" + a.ArticleNumber
	}
	for _, au := range a.Authors.Authors {
		if name := strings.TrimSpace(au.FullName); name != "" {
			rec.Authors = append(rec.Authors, name)
		}
	}
	return rec
}

// flexInt accepts a JSON number or a numeric string; anything else decodes to 0.
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(bytes.TrimSpace(b), `"`)
	if len(b) == 0 || string(b) == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.Atoi(string(b))
	if err != nil {
		*f = 0
		return nil
	}
	*f = flexInt(n)
	return nil
}
