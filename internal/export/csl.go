// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package export writes kept records as a CSL-YAML bibliography that Pandoc
// and reference managers can read.
package export

import (
	"fmt"
	"io"
	"strings"
	"unicode"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/litfilter/pkg/types"
)

// CSLItem is one entry of a CSL-YAML bibliography.
type CSLItem struct {
	ID             string    `yaml:"id"`
	Type           string    `yaml:"type"`
	Title          string    `yaml:"title"`
	Author         []CSLName `yaml:"author,omitempty"`
	Issued         *CSLDate  `yaml:"issued,omitempty"`
	ContainerTitle string    `yaml:"container-title,omitempty"`
	Publisher      string    `yaml:"publisher,omitempty"`
	DOI            string    `yaml:"DOI,omitempty"`
	URL            string    `yaml:"URL,omitempty"`
	NumberOfPages  int       `yaml:"number-of-pages,omitempty"`
	Abstract       string    `yaml:"abstract,omitempty"`
}

// CSLName is a person's name.
type CSLName struct {
	Family  string `yaml:"family,omitempty"`
	Given   string `yaml:"given,omitempty"`
	Literal string `yaml:"literal,omitempty"`
}

// CSLDate is a date in date-parts form.
type CSLDate struct {
	DateParts [][]int `yaml:"date-parts"`
}

// WriteCSL writes recs as a CSL-YAML list. Citation keys are the first
// author's family name and the year, with a letter suffix on collision.
func WriteCSL(w io.Writer, recs []types.Record) error {
	seen := make(map[string]int)
	items := make([]CSLItem, len(recs))
	for i, r := range recs {
		item := ToCSL(r)
		base := item.ID
		seen[base]++
		if n := seen[base]; n > 1 {
			item.ID = fmt.Sprintf("%s%c", base, 'a'+rune(n-1))
		}
		items[i] = item
	}
	enc := yaml.NewEncoder(w)
	defer enc.Close()
	return enc.Encode(items)
}

// ToCSL converts one record. Records with a resolved venue are typed by the
// venue acronym: an acronym marks a conference paper, a bare name a journal
// article. Records without a venue are preprints.
func ToCSL(r types.Record) CSLItem {
	item := CSLItem{
		Type:          "article",
		Title:         r.Title,
		DOI:           r.DOI,
		URL:           r.Link,
		NumberOfPages: r.Pages,
		Abstract:      r.Abstract,
	}
	for _, a := range r.Authors {
		item.Author = append(item.Author, parseAuthorName(a))
	}
	if !r.Published.IsZero() {
		item.Issued = &CSLDate{DateParts: [][]int{{r.Published.Year(), int(r.Published.Month()), r.Published.Day()}}}
	}
	if v := r.Venue; v != nil {
		item.ContainerTitle = v.ContainerTitle
		item.Publisher = v.Publisher
		if v.URL != "" {
			item.URL = v.URL
		}
		if v.Acronym != "" {
			item.Type = "paper-conference"
		} else {
			item.Type = "article-journal"
		}
		if v.PublishedYear > 0 {
			item.Issued = &CSLDate{DateParts: [][]int{{v.PublishedYear}}}
		}
	}
	item.ID = citationKey(item)
	return item
}

func citationKey(item CSLItem) string {
	var b strings.Builder
	if len(item.Author) > 0 {
		name := item.Author[0].Family
		if name == "" {
			name = item.Author[0].Literal
		}
		for _, r := range name {
			if unicode.IsLetter(r) {
				b.WriteRune(r)
			}
		}
	}
	if b.Len() == 0 {
		b.WriteString("anon")
	}
	if item.Issued != nil {
		fmt.Fprintf(&b, "%d", item.Issued.DateParts[0][0])
	}
	return b.String()
}

// parseAuthorName splits on the last space: everything before is given,
// the last token is family. Single-token names use the literal field.
func parseAuthorName(name string) CSLName {
	name = strings.TrimSpace(name)
	if name == "" {
		return CSLName{}
	}
	idx := strings.LastIndex(name, " ")
	if idx < 0 {
		return CSLName{Literal: name}
	}
	return CSLName{
		Given:  name[:idx],
		Family: name[idx+1:],
	}
}
