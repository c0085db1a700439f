// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package document counts the pages of fetched full-text PDFs. The native
// counter parses the PDF in process; the container counter runs poppler's
// pdfinfo through a docker or podman runtime.
package document

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/pdiddy/litfilter/internal/container"
	"github.com/pdiddy/litfilter/pkg/types"
)

// ErrUnreadable means the payload is not a PDF the counter can read, for
// example an HTML paywall page served with status 200.
var ErrUnreadable = errors.New("unreadable document")

// DefaultImage provides pdfinfo for the container counter.
const DefaultImage = "minidocks/poppler:latest"

// Counter returns the number of pages in a PDF.
type Counter interface {
	CountPages(ctx context.Context, data []byte) (int, error)
}

// New returns the counter selected by cfg.Counter.
func New(cfg types.LengthConfig) (Counter, error) {
	switch cfg.Counter {
	case types.CounterNative, "":
		return Native{}, nil
	case types.CounterContainer:
		rt, err := container.DetectRuntime()
		if err != nil {
			return nil, err
		}
		image := cfg.Image
		if image == "" {
			image = DefaultImage
		}
		if err := rt.ImageExists(image); err != nil {
			return nil, fmt.Errorf("page counter image: %w (pull it with `%s pull %s`)", err, rt.Name(), image)
		}
		return &Container{Runtime: rt, Image: image}, nil
	default:
		return nil, fmt.Errorf("unknown page counter %q (want native or container)", cfg.Counter)
	}
}

// Native counts pages with an in-process PDF parser.
type Native struct{}

// CountPages reads the page count from the document catalog.
func (Native) CountPages(_ context.Context, data []byte) (n int, err error) {
	// The parser panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			n, err = 0, fmt.Errorf("%w: %v", ErrUnreadable, r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	n = r.NumPage()
	if n <= 0 {
		return 0, fmt.Errorf("%w: no pages", ErrUnreadable)
	}
	return n, nil
}

// Container counts pages by running pdfinfo in a throwaway container.
type Container struct {
	Runtime container.Runtime
	Image   string
}

// pdfinfoRejected is the exit status the container reports when pdfinfo
// itself ran and refused the input. Runtime faults (daemon down, image
// missing) exit with other codes.
const pdfinfoRejected = 65

// pdfinfoCmd copies stdin to a file first because pdfinfo cannot read a pipe.
var pdfinfoCmd = []string{"sh", "-c", fmt.Sprintf(
	"cat > /tmp/in.pdf || exit 1; pdfinfo /tmp/in.pdf || exit %d", pdfinfoRejected)}

// CountPages runs pdfinfo and parses its "Pages:" line. Only a document
// pdfinfo rejects is ErrUnreadable; a failing runtime is returned as a
// plain error so the caller stops instead of rejecting every document.
func (c *Container) CountPages(ctx context.Context, data []byte) (int, error) {
	var out bytes.Buffer
	if err := c.Runtime.Run(ctx, c.Image, pdfinfoCmd, bytes.NewReader(data), &out); err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		var exit interface{ ExitCode() int }
		if errors.As(err, &exit) && exit.ExitCode() == pdfinfoRejected {
			return 0, fmt.Errorf("%w: %v", ErrUnreadable, err)
		}
		return 0, fmt.Errorf("page counter %s: %w", c.Runtime.Name(), err)
	}
	return parsePdfinfo(out.String())
}

func parsePdfinfo(out string) (int, error) {
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		key, value, ok := strings.Cut(sc.Text(), ":")
		if !ok || strings.TrimSpace(key) != "Pages" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("%w: bad page count %q", ErrUnreadable, strings.TrimSpace(value))
		}
		return n, nil
	}
	return 0, fmt.Errorf("%w: pdfinfo reported no page count", ErrUnreadable)
}
