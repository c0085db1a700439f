// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines the data shared across the filtering pipeline: the
// candidate record, resolved DOI metadata, and per-concern configuration.
package types

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"time"
	"unicode"
)

// Record is a candidate paper normalized from one source API response.
// Records are immutable once written to a stage's output; later stages
// copy and augment (Venue, Pages, Document) into a new value.
type Record struct {
	// Title is the paper title with line breaks collapsed.
	Title string `json:"title" yaml:"title"`

	// Authors lists the paper authors in source order.
	Authors []string `json:"authors" yaml:"authors"`

	// Published is the publication or preprint date.
	Published time.Time `json:"published_time" yaml:"published_time"`

	// Link is the primary landing URL (arXiv abs page, IEEE document page, ScienceDirect link).
	Link string `json:"primary_link" yaml:"primary_link"`

	// Categories lists subject categories, primary category first.
	Categories []string `json:"categories,omitempty" yaml:"categories,omitempty"`

	// DOI is the digital object identifier, if the source reported one.
	DOI string `json:"doi,omitempty" yaml:"doi,omitempty"`

	// JournalRef is the free-text journal reference supplied by the authors.
	JournalRef string `json:"journal_ref,omitempty" yaml:"journal_ref,omitempty"`

	// Abstract is the paper abstract or summary.
	Abstract string `json:"abstract" yaml:"abstract"`

	// Comment is the author comment field (arXiv), often carrying a page count.
	Comment string `json:"comment,omitempty" yaml:"comment,omitempty"`

	// Source identifies the search backend that produced the record.
	Source string `json:"source" yaml:"source"`

	// PDFURL is a direct full-text link when the source exposes one.
	PDFURL string `json:"pdf_url,omitempty" yaml:"pdf_url,omitempty"`

	// ArticleURL is the Elsevier article API link (ScienceDirect). Its
	// full-text XML carries the page count, so the length stage reads it
	// instead of downloading a PDF.
	ArticleURL string `json:"article_url,omitempty" yaml:"article_url,omitempty"`

	// Venue is set by the venue stage from the resolved DOI metadata.
	Venue *Venue `json:"venue,omitempty" yaml:"venue,omitempty"`

	// Pages is set by the length stage.
	Pages int `json:"pages,omitempty" yaml:"pages,omitempty"`

	// Document is the artifact filename stored beside the record, set by the length stage.
	Document string `json:"document,omitempty" yaml:"document,omitempty"`
}

// Venue holds the resolved publication venue of a record.
type Venue struct {
	Publisher      string `json:"publisher,omitempty" yaml:"publisher,omitempty"`
	ContainerTitle string `json:"container_title" yaml:"container_title"`
	Acronym        string `json:"acronym,omitempty" yaml:"acronym,omitempty"`
	Name           string `json:"name,omitempty" yaml:"name,omitempty"`
	Matched        string `json:"matched" yaml:"matched"`
	PublishedYear  int    `json:"published_year,omitempty" yaml:"published_year,omitempty"`
	URL            string `json:"url,omitempty" yaml:"url,omitempty"`
}

// Work is the normalized result of a DOI lookup.
type Work struct {
	Title          string
	PublishedYear  int
	Publisher      string
	ContainerTitle string
	URL            string
}

// Key returns the canonical identity of the record: the lowercased DOI when
// present, then the primary link, then the normalized title.
func (r Record) Key() string {
	if doi := strings.ToLower(strings.TrimSpace(r.DOI)); doi != "" {
		return "doi:" + doi
	}
	if link := strings.TrimSpace(r.Link); link != "" {
		return "link:" + link
	}
	return "title:" + NormalizeTitle(r.Title)
}

// KeyHash returns a short stable hash of Key, used to disambiguate filenames.
func (r Record) KeyHash() string {
	h := sha256.Sum256([]byte(r.Key()))
	return fmt.Sprintf("%x", h[:4])
}

// Year returns the publication year, or 0 when the date is unknown.
func (r Record) Year() int {
	if r.Published.IsZero() {
		return 0
	}
	return r.Published.Year()
}

// NormalizeTitle returns a lowercased, punctuation-stripped version of the title.
func NormalizeTitle(title string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(title) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// CleanText collapses runs of whitespace, including the line breaks arXiv
// inserts into titles and abstracts, into single spaces.
func CleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
