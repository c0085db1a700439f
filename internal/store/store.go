// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package store persists records as one YAML file per record inside a stage
// directory, with an optional document artifact stored beside each record.
package store

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"go.yaml.in/yaml/v3"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/pdiddy/litfilter/pkg/types"
)

const (
	recordExt = ".yaml"
	pdfExt    = ".pdf"
	textExt   = ".txt"

	// maxSlugBytes keeps record filenames below common filesystem limits
	// after the hash suffix and extension are appended.
	maxSlugBytes = 200
)

// Dir is a stage directory holding record files.
type Dir struct {
	path string
}

// Open returns the stage directory at path, creating it when absent.
func Open(path string) (*Dir, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("creating store directory %s: %w", path, err)
	}
	return &Dir{path: path}, nil
}

// Path returns the directory path.
func (d *Dir) Path() string { return d.path }

// FileStem returns the filename stem for rec: a filesystem-safe slug of the
// title followed by a short hash of the record key, so distinct records with
// equal titles never overwrite each other.
func FileStem(rec types.Record) string {
	slug := Slug(rec.Title)
	if slug == "" {
		slug = "untitled"
	}
	return slug + "-" + rec.KeyHash()
}

// Write stores rec as YAML and returns the file name. The file is written
// to a temporary name and renamed into place.
func (d *Dir) Write(rec types.Record) (string, error) {
	data, err := yaml.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("marshaling record: %w", err)
	}
	name := FileStem(rec) + recordExt
	if err := writeAtomic(filepath.Join(d.path, name), data); err != nil {
		return "", err
	}
	return name, nil
}

// Exists reports whether a record file for rec is present.
func (d *Dir) Exists(rec types.Record) bool {
	_, err := os.Stat(filepath.Join(d.path, FileStem(rec)+recordExt))
	return err == nil
}

// WriteDocument stores the document bytes for rec beside its record file
// and returns the artifact file name. PDFs get a .pdf extension; anything
// else (article full text) is stored as .txt.
func (d *Dir) WriteDocument(rec types.Record, data []byte) (string, error) {
	ext := textExt
	if IsPDF(data) {
		ext = pdfExt
	}
	name := FileStem(rec) + ext
	if err := writeAtomic(filepath.Join(d.path, name), data); err != nil {
		return "", err
	}
	return name, nil
}

// IsPDF reports whether data starts with the PDF header.
func IsPDF(data []byte) bool {
	return bytes.HasPrefix(data, []byte("%PDF-"))
}

// ReadDocument returns the stored document artifact of rec. It returns an
// error wrapping os.ErrNotExist when the record has no artifact.
func (d *Dir) ReadDocument(rec types.Record) ([]byte, error) {
	if rec.Document == "" {
		return nil, fmt.Errorf("record %q has no document: %w", rec.Title, os.ErrNotExist)
	}
	data, err := os.ReadFile(filepath.Join(d.path, filepath.Base(rec.Document)))
	if err != nil {
		return nil, fmt.Errorf("reading document: %w", err)
	}
	return data, nil
}

// Read loads one record file by name.
func (d *Dir) Read(name string) (types.Record, error) {
	var rec types.Record
	data, err := os.ReadFile(filepath.Join(d.path, name))
	if err != nil {
		return rec, fmt.Errorf("reading record: %w", err)
	}
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return rec, fmt.Errorf("parsing record %s: %w", name, err)
	}
	return rec, nil
}

// List returns the record file names in lexical order. A missing directory
// yields an empty list.
func (d *Dir) List() ([]string, error) {
	entries, err := os.ReadDir(d.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", d.path, err)
	}

	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != recordExt {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Count returns the number of record files.
func (d *Dir) Count() (int, error) {
	names, err := d.List()
	return len(names), err
}

// Slug maps a title to a filesystem-safe name: diacritics are folded,
// path separators and whitespace become underscores, and the result is
// capped at maxSlugBytes on a rune boundary.
func Slug(title string) string {
	folded, _, err := transform.String(transform.Chain(
		norm.NFKD,
		runes.Remove(runes.In(unicode.Mn)),
		norm.NFC,
	), title)
	if err != nil {
		folded = title
	}

	var b strings.Builder
	underscore := false
	for _, r := range folded {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '.':
			b.WriteRune(r)
			underscore = false
		case r == '/' || r == '\\' || unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r):
			if !underscore && b.Len() > 0 {
				b.WriteByte('_')
				underscore = true
			}
		}
	}

	slug := strings.Trim(b.String(), "_.")
	if len(slug) > maxSlugBytes {
		cut := maxSlugBytes
		for cut > 0 && !utf8.RuneStart(slug[cut]) {
			cut--
		}
		slug = strings.TrimRight(slug[:cut], "_.")
	}
	return slug
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".store-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	_, writeErr := tmp.Write(data)
	syncErr := tmp.Sync()
	closeErr := tmp.Close()
	for _, err := range []error{writeErr, syncErr, closeErr} {
		if err != nil {
			os.Remove(tmpPath)
			return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
		}
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
