// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package stage

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/litfilter/pkg/types"
)

//go:embed venues.yaml
var defaultVenues []byte

// Target is one accepted publication venue.
type Target struct {
	Acronym string `yaml:"acronym"`
	Name    string `yaml:"name"`
}

type venueFile struct {
	Venues []Target `yaml:"venues"`
}

// DefaultVenues returns the built-in target venue table.
func DefaultVenues() []Target {
	table, err := parseVenues(defaultVenues)
	if err != nil {
		panic(fmt.Sprintf("embedded venue table: %v", err))
	}
	return table
}

// LoadVenues reads a venue table from path, or returns the built-in table
// when path is empty.
func LoadVenues(path string) ([]Target, error) {
	if path == "" {
		return DefaultVenues(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading venue table: %w", err)
	}
	table, err := parseVenues(data)
	if err != nil {
		return nil, fmt.Errorf("venue table %s: %w", path, err)
	}
	return table, nil
}

func parseVenues(data []byte) ([]Target, error) {
	var f venueFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	if len(f.Venues) == 0 {
		return nil, fmt.Errorf("no venues")
	}
	for i, v := range f.Venues {
		if strings.TrimSpace(v.Acronym) == "" && strings.TrimSpace(v.Name) == "" {
			return nil, fmt.Errorf("venue %d has neither acronym nor name", i+1)
		}
	}
	return f.Venues, nil
}

var acronymPattern = regexp.MustCompile(`\(([^()]+)\)\s*$`)

// SplitContainerTitle separates a trailing parenthesized acronym from the
// venue name: "Proceedings of ... Engineering (ICSE)" yields "ICSE" and
// "Proceedings of ... Engineering".
func SplitContainerTitle(title string) (acronym, name string) {
	title = types.CleanText(title)
	m := acronymPattern.FindStringSubmatchIndex(title)
	if m == nil {
		return "", title
	}
	return strings.TrimSpace(title[m[2]:m[3]]), strings.TrimSpace(title[:m[0]])
}

// MatchVenue reports the first target matching containerTitle. The acronym
// matches when one of its words equals a target acronym, so "ICSE '21" and
// "ESEC/FSE" match ICSE and FSE. The name matches when it contains a target
// name on word boundaries, ignoring case and punctuation.
func MatchVenue(containerTitle string, table []Target) (Target, bool) {
	acronym, name := SplitContainerTitle(containerTitle)
	words := acronymWords(acronym)
	padded := " " + types.NormalizeTitle(name) + " "

	for _, t := range table {
		if a := strings.ToUpper(strings.TrimSpace(t.Acronym)); a != "" && words[a] {
			return t, true
		}
		if n := types.NormalizeTitle(t.Name); n != "" && strings.Contains(padded, " "+n+" ") {
			return t, true
		}
	}
	return Target{}, false
}

func acronymWords(acronym string) map[string]bool {
	words := make(map[string]bool)
	for _, w := range strings.FieldsFunc(strings.ToUpper(acronym), func(r rune) bool {
		return !(r >= 'A' && r <= 'Z' || r >= '0' && r <= '9')
	}) {
		words[w] = true
	}
	return words
}
