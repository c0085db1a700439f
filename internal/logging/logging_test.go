// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package logging

import (
	"bytes"
	"testing"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zerolog.Level
		wantErr bool
	}{
		{"", zerolog.InfoLevel, false},
		{"debug", zerolog.DebugLevel, false},
		{"WARN", zerolog.WarnLevel, false},
		{"warning", zerolog.WarnLevel, false},
		{"error", zerolog.ErrorLevel, false},
		{"trace", zerolog.InfoLevel, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(&buf, Options{Level: "warn", NoColor: true, RunID: "abc"})
	require.NoError(t, err)

	log.Info().Msg("hidden")
	log.Warn().Str("source", "crossref").Msg("throttled")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "throttled")
	assert.Contains(t, out, "source=crossref")
	assert.Contains(t, out, "run=abc")

	_, err = New(&buf, Options{Level: "loud"})
	assert.Error(t, err)
}

func TestPrinter(t *testing.T) {
	old := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = old })

	var buf bytes.Buffer
	p := NewPrinter(&buf)
	p.Success("saved", "%s", "Paper A")
	p.Warning("skipped", "Paper B")
	p.Error("failed", "Paper C: %v", "HTTP 500")
	p.Info("stage", "venue")

	assert.Equal(t,
		"saved:    Paper A\n"+
			"skipped:  Paper B\n"+
			"failed:   Paper C: HTTP 500\n"+
			"stage:    venue\n",
		buf.String())
}

func TestNewPrinter_NilWriter(t *testing.T) {
	assert.NotPanics(t, func() { NewPrinter(nil).Info("x", "y") })
}
