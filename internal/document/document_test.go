// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/litfilter/pkg/types"
)

func TestNativeCountPages(t *testing.T) {
	for _, pages := range []int{1, 7, 8, 23} {
		t.Run(fmt.Sprintf("%d pages", pages), func(t *testing.T) {
			n, err := Native{}.CountPages(context.Background(), MinimalPDF(pages))
			require.NoError(t, err)
			assert.Equal(t, pages, n)
		})
	}
}

func TestNativeCountPages_Unreadable(t *testing.T) {
	tests := map[string][]byte{
		"html paywall": []byte("<!DOCTYPE html><html><body>Sign in to read</body></html>"),
		"empty":        nil,
		"truncated":    MinimalPDF(3)[:60],
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Native{}.CountPages(context.Background(), data)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrUnreadable), "got %v", err)
		})
	}
}

// fakeRuntime echoes a canned pdfinfo report.
type fakeRuntime struct {
	out   string
	err   error
	stdin []byte
	cmd   []string
}

func (f *fakeRuntime) Name() string            { return "fake" }
func (f *fakeRuntime) Available() bool          { return true }
func (f *fakeRuntime) ImageExists(string) error { return nil }

func (f *fakeRuntime) Run(_ context.Context, _ string, cmd []string, stdin io.Reader, stdout io.Writer) error {
	f.cmd = cmd
	f.stdin, _ = io.ReadAll(stdin)
	if f.err != nil {
		return f.err
	}
	_, err := io.WriteString(stdout, f.out)
	return err
}

const samplePdfinfo = `Title:          Grey-Box Fuzzing of Compilers
Producer:       pdfTeX-1.40.21
Tagged:         no
Pages:          12
Encrypted:      no
Page size:      612 x 792 pts (letter)
PDF version:    1.5
`

func TestContainerCountPages(t *testing.T) {
	rt := &fakeRuntime{out: samplePdfinfo}
	c := &Container{Runtime: rt, Image: DefaultImage}

	n, err := c.CountPages(context.Background(), []byte("%PDF-1.5 body"))
	require.NoError(t, err)
	assert.Equal(t, 12, n)
	assert.Equal(t, "%PDF-1.5 body", string(rt.stdin))
	assert.Equal(t, pdfinfoCmd, rt.cmd)
}

// exitError mimics *exec.ExitError as wrapped by the container runtime.
type exitError struct{ code int }

func (e exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }
func (e exitError) ExitCode() int { return e.code }

func TestContainerCountPages_Failure(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		unreadable bool
	}{
		{
			name:       "pdfinfo rejects the document",
			err:        fmt.Errorf("running docker container %s: %w: Syntax Error: Couldn't find trailer dictionary", DefaultImage, exitError{pdfinfoRejected}),
			unreadable: true,
		},
		{
			name: "daemon unreachable",
			err:  fmt.Errorf("running docker container %s: %w: Cannot connect to the Docker daemon at unix:///var/run/docker.sock", DefaultImage, exitError{125}),
		},
		{
			name: "runtime binary gone",
			err:  errors.New(`exec: "docker": executable file not found in $PATH`),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Container{Runtime: &fakeRuntime{err: tt.err}, Image: DefaultImage}
			_, err := c.CountPages(context.Background(), []byte("junk"))
			require.Error(t, err)
			assert.Equal(t, tt.unreadable, errors.Is(err, ErrUnreadable), "got %v", err)
		})
	}
}

func TestContainerCountPages_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := &Container{Runtime: &fakeRuntime{err: exitError{pdfinfoRejected}}, Image: DefaultImage}
	_, err := c.CountPages(ctx, []byte("junk"))
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestParsePdfinfo(t *testing.T) {
	n, err := parsePdfinfo(samplePdfinfo)
	require.NoError(t, err)
	assert.Equal(t, 12, n)

	_, err = parsePdfinfo("Title: x\n")
	assert.True(t, errors.Is(err, ErrUnreadable))

	_, err = parsePdfinfo("Pages: many\n")
	assert.True(t, errors.Is(err, ErrUnreadable))

	// "Page size" must not be mistaken for the page count.
	_, err = parsePdfinfo("Page size: 612 x 792 pts\n")
	assert.True(t, errors.Is(err, ErrUnreadable))
}

func TestNew(t *testing.T) {
	c, err := New(types.LengthConfig{})
	require.NoError(t, err)
	assert.IsType(t, Native{}, c)

	_, err = New(types.LengthConfig{Counter: "ocr"})
	assert.Error(t, err)
}

func TestMinimalPDF_Shape(t *testing.T) {
	data := MinimalPDF(2)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF-1.4\n")))
	assert.True(t, strings.HasSuffix(string(data), "%%EOF\n"))
}
