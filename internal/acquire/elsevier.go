// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package acquire

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/pdiddy/litfilter/internal/httputil"
	"github.com/pdiddy/litfilter/internal/ratelimit"
)

// Article is the part of an Elsevier full-text record the length and
// classification stages use.
type Article struct {
	Title string

	// Pages is the publisher's PDF page count, or 0 when not reported.
	Pages int

	// Text is the title, abstract and body as plain text, one paragraph
	// per line.
	Text string
}

// Elsevier reads full-text articles from the Elsevier article API. It
// shares the ScienceDirect search gate because both draw on the same key's
// quota.
type Elsevier struct {
	Client    *http.Client
	Gate      *ratelimit.Gate
	UserAgent string
	APIKey    string
}

// Article fetches the full-text XML at articleURL. A rejected key yields
// httputil.ErrAuth; an article the key is not entitled to (403) or that
// does not exist is a per-article failure.
func (e *Elsevier) Article(ctx context.Context, articleURL string) (Article, error) {
	if articleURL == "" {
		return Article{}, fmt.Errorf("no article URL: %w", httputil.ErrNotFound)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, articleURL, nil)
	if err != nil {
		return Article{}, fmt.Errorf("creating request for %s: %w", articleURL, httputil.ErrNotFound)
	}
	req.Header.Set("User-Agent", e.UserAgent)
	req.Header.Set("Accept", "text/xml")
	req.Header.Set("X-ELS-APIKey", e.APIKey)

	resp, err := httputil.Do(ctx, e.Client, req, e.Gate)
	if err != nil {
		return Article{}, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		return Article{}, &httputil.StatusError{Source: "Elsevier article API", StatusCode: resp.StatusCode, Class: httputil.ErrAuth}
	}
	if err := httputil.CheckStatus("Elsevier article API", resp); err != nil {
		return Article{}, fmt.Errorf("%s: %w", articleURL, err)
	}
	defer resp.Body.Close()

	a, err := parseArticle(resp.Body)
	if err != nil {
		return Article{}, httputil.Malformed("Elsevier article API", err)
	}
	return a, nil
}

// paragraphEnds are the elements after which the text gets a line break.
var paragraphEnds = map[string]bool{
	"para":          true,
	"simple-para":   true,
	"section-title": true,
}

// parseArticle walks the full-text XML. The page count sits in
// xocs:web-pdf-page-count; body text is taken from ce:abstract and
// ce:sections only, which leaves out metadata and references.
func parseArticle(r io.Reader) (Article, error) {
	var (
		a     Article
		stack []string
		body  strings.Builder
	)
	dec := xml.NewDecoder(r)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return a, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			stack = append(stack, t.Name.Local)
		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			if paragraphEnds[t.Name.Local] && inBody(stack) {
				body.WriteByte('\n')
			}
		case xml.CharData:
			switch {
			case top(stack) == "web-pdf-page-count":
				if n, err := strconv.Atoi(strings.TrimSpace(string(t))); err == nil {
					a.Pages = n
				}
			case top(stack) == "title" && parent(stack) == "coredata":
				a.Title += string(t)
			case inBody(stack):
				body.Write(t)
			}
		}
	}
	if len(stack) > 0 || (a.Title == "" && a.Pages == 0 && body.Len() == 0) {
		return a, errors.New("not an Elsevier full-text article")
	}

	a.Title = strings.Join(strings.Fields(a.Title), " ")
	lines := []string{a.Title}
	for _, line := range strings.Split(body.String(), "\n") {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			lines = append(lines, line)
		}
	}
	a.Text = strings.TrimSpace(strings.Join(lines, "\n"))
	return a, nil
}

func top(stack []string) string {
	if len(stack) == 0 {
		return ""
	}
	return stack[len(stack)-1]
}

func parent(stack []string) string {
	if len(stack) < 2 {
		return ""
	}
	return stack[len(stack)-2]
}

func inBody(stack []string) bool {
	for _, name := range stack {
		if name == "abstract" || name == "sections" {
			return true
		}
	}
	return false
}
