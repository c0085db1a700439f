// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package acquire

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/pdiddy/litfilter/pkg/types"
)

// IdentifierType classifies an input identifier.
type IdentifierType int

const (
	TypeUnknown IdentifierType = iota
	TypeArxiv
	TypeDOI
	TypeURL
)

func (t IdentifierType) String() string {
	switch t {
	case TypeArxiv:
		return "arxiv"
	case TypeDOI:
		return "doi"
	case TypeURL:
		return "url"
	default:
		return "unknown"
	}
}

// Base URLs for identifier resolution. Declared as vars so tests can
// substitute httptest servers.
var (
	arxivPDFBase    = "https://arxiv.org/pdf/"
	doiBase         = "https://doi.org/"
	crossrefAPIBase = "https://api.crossref.org/works/"
)

// arxivPattern matches arXiv IDs: "2301.07041", "arXiv:2301.07041", "2301.07041v2".
var arxivPattern = regexp.MustCompile(`^(?:arXiv:)?(\d{4}\.\d{4,5}(?:v\d+)?)$`)

// arxivAbsPattern extracts the ID from an arXiv abstract URL.
var arxivAbsPattern = regexp.MustCompile(`arxiv\.org/abs/([^?#]+)$`)

// doiPattern matches DOIs: "10.1145/1234567.1234568".
var doiPattern = regexp.MustCompile(`^10\.\d{4,9}/[^\s]+$`)

// Classify determines the identifier type and returns the normalized form.
// For arXiv, it strips the optional "arXiv:" prefix; for DOIs it strips
// resolver prefixes.
func Classify(identifier string) (IdentifierType, string) {
	identifier = strings.TrimSpace(identifier)

	if m := arxivPattern.FindStringSubmatch(identifier); m != nil {
		return TypeArxiv, m[1]
	}

	if doi := NormalizeDOI(identifier); doiPattern.MatchString(doi) {
		return TypeDOI, doi
	}

	if m := arxivAbsPattern.FindStringSubmatch(identifier); m != nil {
		return TypeArxiv, m[1]
	}

	if u, err := url.Parse(identifier); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		return TypeURL, identifier
	}

	return TypeUnknown, identifier
}

// NormalizeDOI strips "doi:" and resolver URL prefixes from a DOI.
func NormalizeDOI(doi string) string {
	doi = strings.TrimSpace(doi)
	lower := strings.ToLower(doi)
	for _, prefix := range []string{"https://doi.org/", "http://doi.org/", "https://dx.doi.org/", "http://dx.doi.org/", "doi:"} {
		if strings.HasPrefix(lower, prefix) {
			return strings.TrimSpace(doi[len(prefix):])
		}
	}
	return doi
}

// DocumentURL returns the full-text URL for rec: the source's explicit PDF
// link, then the arXiv PDF for an arXiv landing page, then the doi.org
// resolver (the HTTP client follows redirects), then the landing page.
func DocumentURL(rec types.Record) string {
	if rec.PDFURL != "" {
		return rec.PDFURL
	}
	if t, id := Classify(rec.Link); t == TypeArxiv {
		return arxivPDFBase + id
	}
	if doi := NormalizeDOI(rec.DOI); doi != "" {
		return doiBase + doi
	}
	if t, link := Classify(rec.Link); t == TypeURL {
		return link
	}
	return ""
}

// escapeDOI path-escapes each segment of a DOI so characters such as '#'
// or '?' cannot end the request path early.
func escapeDOI(doi string) string {
	parts := strings.Split(doi, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
