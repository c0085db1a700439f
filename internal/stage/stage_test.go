// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package stage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/litfilter/internal/acquire"
	"github.com/pdiddy/litfilter/internal/document"
	"github.com/pdiddy/litfilter/internal/httputil"
	"github.com/pdiddy/litfilter/internal/ledger"
	"github.com/pdiddy/litfilter/internal/ratelimit"
	"github.com/pdiddy/litfilter/internal/search"
	"github.com/pdiddy/litfilter/internal/store"
	"github.com/pdiddy/litfilter/pkg/types"
)

func paper(title, doi string, year int) types.Record {
	return types.Record{
		Title:     title,
		DOI:       doi,
		Link:      "https://example.org/" + store.Slug(title),
		Published: time.Date(year, time.March, 1, 0, 0, 0, 0, time.UTC),
		Source:    search.SourceArxiv,
	}
}

// fakeSearcher serves fixed pages and counts requests.
type fakeSearcher struct {
	pages  map[int]search.Page
	calls  []int
	failAt int
}

func (f *fakeSearcher) Name() string { return "fake" }

func (f *fakeSearcher) Page(_ context.Context, _ string, start int) (search.Page, error) {
	f.calls = append(f.calls, start)
	if f.failAt > 0 && start == f.failAt {
		return search.Page{}, &httputil.StatusError{Source: "fake", StatusCode: http.StatusTooManyRequests, Class: httputil.ErrRateLimited}
	}
	if p, ok := f.pages[start]; ok {
		return p, nil
	}
	return search.Page{Start: start, Size: 2, Total: -1}, nil
}

func twoPageSearch() *fakeSearcher {
	return &fakeSearcher{pages: map[int]search.Page{
		0: {Start: 0, Size: 2, Entries: 2, Total: 3, Records: []types.Record{
			paper("Old Paper", "10.1/old", 2018),
			paper("New Paper", "10.1/new", 2021),
		}},
		2: {Start: 2, Size: 2, Entries: 1, Total: 3, Records: []types.Record{
			paper("Boundary Paper", "", 2020),
		}},
	}}
}

type env struct {
	t      *testing.T
	in     *store.Dir
	out    *store.Dir
	ledger string
}

func newEnv(t *testing.T, inputs ...types.Record) *env {
	t.Helper()
	root := t.TempDir()
	in, err := store.Open(filepath.Join(root, "in"))
	require.NoError(t, err)
	out, err := store.Open(filepath.Join(root, "out"))
	require.NoError(t, err)
	for _, rec := range inputs {
		_, err := in.Write(rec)
		require.NoError(t, err)
	}
	return &env{t: t, in: in, out: out, ledger: filepath.Join(out.Path(), ledger.FileName)}
}

// run executes one stage run with a freshly opened ledger, as a new
// process would.
func (e *env) run(s *Stage, src Source) (Summary, *ledger.Ledger, error) {
	e.t.Helper()
	l, err := ledger.Open(e.ledger)
	require.NoError(e.t, err)

	var buf bytes.Buffer
	sum, runErr := s.Run(context.Background(), src, e.out, l, &buf)
	require.NoError(e.t, l.Close())
	return sum, l, runErr
}

func (e *env) outputs() []types.Record {
	e.t.Helper()
	names, err := e.out.List()
	require.NoError(e.t, err)
	recs := make([]types.Record, 0, len(names))
	for _, name := range names {
		rec, err := e.out.Read(name)
		require.NoError(e.t, err)
		recs = append(recs, rec)
	}
	return recs
}

func titles(recs []types.Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.Title
	}
	return out
}

func TestRun_QueryRecency(t *testing.T) {
	e := newEnv(t)
	s := &Stage{Name: NameRecency, Predicate: Recency{MinYear: 2020}}
	searcher := twoPageSearch()

	sum, l, err := e.run(s, NewQuerySource(searcher, "fuzzing"))
	require.NoError(t, err)
	assert.Equal(t, Summary{Accepted: 2, Rejected: 1}, sum)
	assert.Equal(t, []int{0, 2}, searcher.calls)
	assert.ElementsMatch(t, []string{"New Paper", "Boundary Paper"}, titles(e.outputs()))

	assert.True(t, l.Has(NextCheckpoint(2)))
	assert.True(t, l.Has(CheckpointDone))
	for _, p := range searcher.pages {
		for _, rec := range p.Records {
			assert.True(t, l.Has(rec.Key()), rec.Title)
		}
	}
}

func TestRun_QueryRestartIssuesNoCalls(t *testing.T) {
	e := newEnv(t)
	s := &Stage{Name: NameRecency, Predicate: Recency{}}
	searcher := twoPageSearch()

	_, _, err := e.run(s, NewQuerySource(searcher, "q"))
	require.NoError(t, err)
	first := titles(e.outputs())

	sum, _, err := e.run(s, NewQuerySource(searcher, "q"))
	require.NoError(t, err)
	assert.Equal(t, Summary{}, sum)
	assert.Equal(t, []int{0, 2}, searcher.calls, "no page requested twice")
	assert.Equal(t, first, titles(e.outputs()))
}

func TestRun_QueryResumesAfterRateLimit(t *testing.T) {
	e := newEnv(t)
	s := &Stage{Name: NameRecency, Predicate: Recency{}}
	searcher := twoPageSearch()
	searcher.failAt = 2

	sum, _, err := e.run(s, NewQuerySource(searcher, "q"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, httputil.ErrRateLimited))
	assert.Equal(t, 1, sum.Accepted)

	searcher.failAt = 0
	sum, _, err = e.run(s, NewQuerySource(searcher, "q"))
	require.NoError(t, err)
	assert.Equal(t, Summary{Accepted: 1}, sum)
	assert.Equal(t, []int{0, 2, 2}, searcher.calls, "first page not requested again")
}

func TestRun_QueryEndsOnEmptyPage(t *testing.T) {
	e := newEnv(t)
	searcher := &fakeSearcher{pages: map[int]search.Page{
		0: {Start: 0, Size: 2, Entries: 2, Total: -1, Records: []types.Record{
			paper("A", "10.1/a", 2022), paper("B", "10.1/b", 2023),
		}},
	}}
	s := &Stage{Name: NameRecency, Predicate: Recency{}}

	sum, l, err := e.run(s, NewQuerySource(searcher, "q"))
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Accepted)
	assert.Equal(t, []int{0, 2}, searcher.calls)
	assert.True(t, l.Has(CheckpointDone))
}

// fakeResolver maps DOIs to works and counts lookups.
type fakeResolver struct {
	works map[string]types.Work
	errs  map[string]error
	calls map[string]int
}

func (f *fakeResolver) Lookup(_ context.Context, doi string) (types.Work, error) {
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[doi]++
	if err, ok := f.errs[doi]; ok {
		return types.Work{}, err
	}
	if w, ok := f.works[doi]; ok {
		return w, nil
	}
	return types.Work{}, fmt.Errorf("DOI %s: %w", doi, &httputil.StatusError{Source: "CrossRef API", StatusCode: http.StatusNotFound, Class: httputil.ErrNotFound})
}

func (f *fakeResolver) total() int {
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

const icseTitle = "Proceedings of the 44th International Conference on Software Engineering (ICSE)"

func venueFixture() ([]types.Record, *fakeResolver) {
	inputs := []types.Record{
		paper("Fuzzing Compilers", "10.1145/icse", 2022),
		paper("Refactoring Study", "10.1016/jss", 2021),
		paper("Ghost Paper", "10.9999/missing", 2021),
	}
	resolver := &fakeResolver{works: map[string]types.Work{
		"10.1145/icse": {ContainerTitle: icseTitle, Publisher: "ACM", PublishedYear: 2022},
		"10.1016/jss":  {ContainerTitle: "Journal of Systems and Software", Publisher: "Elsevier"},
	}}
	return inputs, resolver
}

func TestRun_VenueMatch(t *testing.T) {
	inputs, resolver := venueFixture()
	e := newEnv(t, inputs...)
	s := &Stage{Name: NameVenue, Predicate: VenueMatch{Resolver: resolver, Venues: DefaultVenues()}}

	sum, l, err := e.run(s, NewDirSource(e.in))
	require.NoError(t, err)
	assert.Equal(t, Summary{Accepted: 1, Rejected: 1, Failed: 1}, sum)

	out := e.outputs()
	require.Len(t, out, 1)
	assert.Equal(t, "Fuzzing Compilers", out[0].Title)
	require.NotNil(t, out[0].Venue)
	assert.Equal(t, "ICSE", out[0].Venue.Acronym)
	assert.Equal(t, "ICSE", out[0].Venue.Matched)
	assert.Equal(t, "ACM", out[0].Venue.Publisher)

	// The 404 is recorded like any other terminal outcome.
	assert.True(t, l.Has("doi:10.9999/missing"))
	assert.Equal(t, 3, l.Len())
}

func TestRun_IdempotentRestart(t *testing.T) {
	inputs, resolver := venueFixture()
	e := newEnv(t, inputs...)
	s := &Stage{Name: NameVenue, Predicate: VenueMatch{Resolver: resolver, Venues: DefaultVenues()}}

	_, _, err := e.run(s, NewDirSource(e.in))
	require.NoError(t, err)
	first := e.outputs()

	sum, l, err := e.run(s, NewDirSource(e.in))
	require.NoError(t, err)
	assert.Equal(t, Summary{Skipped: 3}, sum)
	assert.Equal(t, 3, resolver.total(), "each DOI resolved once across both runs")
	assert.Equal(t, first, e.outputs())
	assert.Equal(t, 3, l.Len())
}

func TestRun_SavedButUnmarkedIsNotRefetched(t *testing.T) {
	inputs, resolver := venueFixture()
	e := newEnv(t, inputs...)
	s := &Stage{Name: NameVenue, Predicate: VenueMatch{Resolver: resolver, Venues: DefaultVenues()}}

	// A run that died after writing its output but before marking it.
	_, err := e.out.Write(inputs[0])
	require.NoError(t, err)

	sum, l, err := e.run(s, NewDirSource(e.in))
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Skipped)
	assert.Zero(t, resolver.calls["10.1145/icse"])
	assert.True(t, l.Has("doi:10.1145/icse"))
}

func TestRun_RateLimitAbortsWithoutMarking(t *testing.T) {
	inputs, resolver := venueFixture()
	resolver.errs = map[string]error{
		"10.1016/jss": &httputil.StatusError{Source: "CrossRef API", StatusCode: http.StatusTooManyRequests, Class: httputil.ErrRateLimited},
	}
	e := newEnv(t, inputs...)
	s := &Stage{Name: NameVenue, Predicate: VenueMatch{Resolver: resolver, Venues: DefaultVenues()}}

	_, l, err := e.run(s, NewDirSource(e.in))
	require.Error(t, err)
	assert.True(t, errors.Is(err, httputil.ErrRateLimited))
	assert.False(t, l.Has("doi:10.1016/jss"))

	// The next run retries the throttled DOI and finishes the rest.
	resolver.errs = nil
	sum, l, err := e.run(s, NewDirSource(e.in))
	require.NoError(t, err)
	assert.Equal(t, 2, resolver.calls["10.1016/jss"])
	assert.Equal(t, 3, l.Len())
	assert.Equal(t, 3, sum.Total())
}

// fakeFetcher serves documents by URL.
type fakeFetcher struct {
	docs  map[string][]byte
	calls int
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	f.calls++
	if d, ok := f.docs[url]; ok {
		return d, nil
	}
	return nil, &httputil.StatusError{Source: "document host", StatusCode: http.StatusForbidden, Class: httputil.ErrServer}
}

// fakeCounter reads the page count from the document body.
type fakeCounter struct{}

func (fakeCounter) CountPages(_ context.Context, data []byte) (int, error) {
	var n int
	if _, err := fmt.Sscanf(string(data), "pages=%d", &n); err != nil {
		return 0, document.ErrUnreadable
	}
	return n, nil
}

func withPDF(rec types.Record, url string) types.Record {
	rec.PDFURL = url
	return rec
}

func TestRun_MinLengthBoundary(t *testing.T) {
	inputs := []types.Record{
		withPDF(paper("Eight Pages", "10.1/8", 2022), "https://host/8.pdf"),
		withPDF(paper("Seven Pages", "10.1/7", 2022), "https://host/7.pdf"),
		withPDF(paper("Paywalled", "10.1/pw", 2022), "https://host/paywall"),
		withPDF(paper("Forbidden", "10.1/403", 2022), "https://host/403.pdf"),
	}
	fetcher := &fakeFetcher{docs: map[string][]byte{
		"https://host/8.pdf":   []byte("pages=8"),
		"https://host/7.pdf":   []byte("pages=7"),
		"https://host/paywall": []byte("<html>"),
	}}
	e := newEnv(t, inputs...)
	s := &Stage{Name: NameLength, Predicate: MinLength{Fetcher: fetcher, Counter: fakeCounter{}, MinPages: 8}}

	sum, l, err := e.run(s, NewDirSource(e.in))
	require.NoError(t, err)
	assert.Equal(t, Summary{Accepted: 1, Rejected: 1, Failed: 2}, sum)
	assert.Equal(t, 4, l.Len())
	assert.True(t, l.Has("https://host/7.pdf"))

	out := e.outputs()
	require.Len(t, out, 1)
	assert.Equal(t, "Eight Pages", out[0].Title)
	assert.Equal(t, 8, out[0].Pages)
	doc, err := e.out.ReadDocument(out[0])
	require.NoError(t, err)
	assert.Equal(t, "pages=8", string(doc))
}

func TestRun_MinLengthUnreachableHostRejectsOnlyThatItem(t *testing.T) {
	var deadCalls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/dead.pdf":
			atomic.AddInt32(&deadCalls, 1)
			conn, _, err := w.(http.Hijacker).Hijack()
			if err == nil {
				conn.Close()
			}
		default:
			fmt.Fprint(w, "pages=12")
		}
	}))
	defer ts.Close()

	inputs := []types.Record{
		withPDF(paper("A Dead Host", "10.1/dead", 2022), ts.URL+"/dead.pdf"),
		withPDF(paper("First Good", "10.1/a", 2022), ts.URL+"/a.pdf"),
		withPDF(paper("Second Good", "10.1/b", 2022), ts.URL+"/b.pdf"),
	}
	e := newEnv(t, inputs...)
	fetcher := &acquire.Downloader{
		Client: ts.Client(),
		Gate:   ratelimit.New("documents", ratelimit.Options{RetryDelay: time.Millisecond}),
	}
	s := &Stage{Name: NameLength, Predicate: MinLength{Fetcher: fetcher, Counter: fakeCounter{}, MinPages: 8}}

	sum, l, err := e.run(s, NewDirSource(e.in))
	require.NoError(t, err)
	assert.Equal(t, Summary{Accepted: 2, Failed: 1}, sum)
	assert.Equal(t, 3, l.Len())
	assert.True(t, l.Has(ts.URL+"/dead.pdf"))
	assert.ElementsMatch(t, []string{"First Good", "Second Good"}, titles(e.outputs()))
	assert.Equal(t, int32(httputil.MaxTransportAttempts), atomic.LoadInt32(&deadCalls))

	// The rejected host is not contacted again.
	sum, _, err = e.run(s, NewDirSource(e.in))
	require.NoError(t, err)
	assert.Equal(t, Summary{Skipped: 3}, sum)
	assert.Equal(t, int32(httputil.MaxTransportAttempts), atomic.LoadInt32(&deadCalls))
}

// fakeArticles serves article full text by URL.
type fakeArticles struct {
	articles map[string]acquire.Article
	calls    int
}

func (f *fakeArticles) Article(_ context.Context, url string) (acquire.Article, error) {
	f.calls++
	a, ok := f.articles[url]
	if !ok {
		return acquire.Article{}, fmt.Errorf("%s: %w", url, httputil.ErrNotFound)
	}
	return a, nil
}

func TestRun_MinLengthFromArticle(t *testing.T) {
	withArticle := func(rec types.Record, url string) types.Record {
		rec.ArticleURL = url
		return rec
	}
	inputs := []types.Record{
		withArticle(paper("Long Journal Paper", "10.1016/long", 2022), "https://api/pii/long"),
		withArticle(paper("Short Letter", "10.1016/short", 2022), "https://api/pii/short"),
		withArticle(paper("No Count", "10.1016/none", 2022), "https://api/pii/none"),
	}
	articles := &fakeArticles{articles: map[string]acquire.Article{
		"https://api/pii/long":  {Title: "Long Journal Paper", Pages: 14, Text: "Long Journal Paper\nIntroduction"},
		"https://api/pii/short": {Title: "Short Letter", Pages: 4},
		"https://api/pii/none":  {Title: "No Count", Text: "No Count"},
	}}
	fetcher := &fakeFetcher{}
	e := newEnv(t, inputs...)
	s := &Stage{Name: NameLength, Predicate: MinLength{Fetcher: fetcher, Counter: fakeCounter{}, Articles: articles, MinPages: 8}}

	sum, l, err := e.run(s, NewDirSource(e.in))
	require.NoError(t, err)
	assert.Equal(t, Summary{Accepted: 1, Rejected: 1, Failed: 1}, sum)
	assert.Equal(t, 3, articles.calls)
	assert.Zero(t, fetcher.calls, "no PDF download for article records")
	assert.True(t, l.Has("https://api/pii/short"))

	out := e.outputs()
	require.Len(t, out, 1)
	assert.Equal(t, 14, out[0].Pages)
	assert.Equal(t, ".txt", filepath.Ext(out[0].Document))
	doc, err := e.out.ReadDocument(out[0])
	require.NoError(t, err)
	assert.Equal(t, "Long Journal Paper\nIntroduction", string(doc))
}

// fakeClassifier answers by document body.
type fakeClassifier struct {
	answers map[string]error
	surveys map[string]bool
	calls   int
}

func (f *fakeClassifier) IsSurvey(_ context.Context, pdf []byte) (bool, error) {
	f.calls++
	if err, ok := f.answers[string(pdf)]; ok {
		return false, err
	}
	return f.surveys[string(pdf)], nil
}

// lengthOutput stores records with documents as the length stage leaves them.
func lengthOutput(t *testing.T, e *env, docs map[string]string) {
	t.Helper()
	for title, body := range docs {
		rec := paper(title, "10.1/"+store.Slug(title), 2022)
		name, err := e.in.WriteDocument(rec, []byte(body))
		require.NoError(t, err)
		rec.Document = name
		_, err = e.in.Write(rec)
		require.NoError(t, err)
	}
}

func TestRun_NotSurvey(t *testing.T) {
	e := newEnv(t)
	lengthOutput(t, e, map[string]string{
		"Tool Paper":     "tool",
		"Mapping Study":  "mapping",
		"Missing Upload": "",
	})
	// Drop the last document to simulate a missing artifact.
	missing := paper("Missing Upload", "10.1/"+store.Slug("Missing Upload"), 2022)
	missing.Document = ""
	_, err := e.in.Write(missing)
	require.NoError(t, err)

	cls := &fakeClassifier{surveys: map[string]bool{"mapping": true}}
	s := &Stage{Name: NameClassify, Predicate: NotSurvey{Classifier: cls}}

	sum, _, err := e.run(s, NewDirSource(e.in))
	require.NoError(t, err)
	assert.Equal(t, Summary{Accepted: 1, Rejected: 1, Failed: 1}, sum)
	assert.Equal(t, 2, cls.calls)

	out := e.outputs()
	require.Len(t, out, 1)
	assert.Equal(t, "Tool Paper", out[0].Title)
	doc, err := e.out.ReadDocument(out[0])
	require.NoError(t, err)
	assert.Equal(t, "tool", string(doc))
}

func TestRun_MalformedClassificationStopsStage(t *testing.T) {
	e := newEnv(t)
	lengthOutput(t, e, map[string]string{"Ambiguous": "ambiguous"})

	cls := &fakeClassifier{answers: map[string]error{
		"ambiguous": httputil.Malformed("Claude API", errors.New(`unexpected answer "Maybe"`)),
	}}
	s := &Stage{Name: NameClassify, Predicate: NotSurvey{Classifier: cls}}

	sum, l, err := e.run(s, NewDirSource(e.in))
	require.Error(t, err)
	assert.True(t, errors.Is(err, httputil.ErrMalformed))
	assert.Contains(t, err.Error(), "Ambiguous")
	assert.Equal(t, Summary{}, sum)
	assert.Zero(t, l.Len(), "malformed answer must not be recorded")
	assert.Empty(t, e.outputs())
}

func TestDefinitive(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"not found", fmt.Errorf("x: %w", httputil.ErrNotFound), true},
		{"server", &httputil.StatusError{StatusCode: 500, Class: httputil.ErrServer}, true},
		{"unreadable", fmt.Errorf("u: %w", document.ErrUnreadable), true},
		{"rate limited", httputil.ErrRateLimited, false},
		{"unreachable", fmt.Errorf("%w after 3 attempts: reset", httputil.ErrUnreachable), true},
		{"malformed", httputil.Malformed("x", errors.New("bad")), false},
		{"auth", httputil.ErrAuth, false},
		{"canceled", context.Canceled, false},
		{"other", errors.New("disk full"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Definitive(tt.err))
		})
	}
}
