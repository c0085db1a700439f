// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package classify asks an LLM whether a paper is a survey. The model sees
// the full PDF (or the article text when the publisher serves text) and must answer with exactly YES or NO; any other answer is
// reported as a malformed response rather than interpreted.
package classify

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/pdiddy/litfilter/internal/httputil"
	"github.com/pdiddy/litfilter/internal/ratelimit"
)

// Prompt is the fixed instruction sent with every document.
const Prompt = `You are screening papers for a software engineering literature study.
Read the attached paper and decide whether it is a survey, a systematic literature review (SLR), a mapping study, or a review of existing tools.

Answer with exactly one word: YES if it is any of those, NO otherwise.
Do not output anything else.`

// Anthropic quota headers, used to configure a quota-aware gate.
const (
	HeaderRequestsRemaining = "anthropic-ratelimit-requests-remaining"
	HeaderRequestsReset     = "anthropic-ratelimit-requests-reset"
)

// claudeAPIURL is the Claude API endpoint. Package-level var for test substitution.
var claudeAPIURL = "https://api.anthropic.com/v1/messages"

const anthropicVersion = "2023-06-01"

// Claude classifies documents with the Claude Messages API.
type Claude struct {
	APIKey string
	Model  string
	Client *http.Client
	Gate   *ratelimit.Gate
}

// claudeRequest is the request body for the Claude Messages API.
type claudeRequest struct {
	Model     string          `json:"model"`
	MaxTokens int             `json:"max_tokens"`
	Messages  []claudeMessage `json:"messages"`
}

// claudeMessage is a single message in the Claude API conversation.
type claudeMessage struct {
	Role    string        `json:"role"`
	Content []claudeBlock `json:"content"`
}

// claudeBlock is a request content block: a document or text.
type claudeBlock struct {
	Type   string          `json:"type"`
	Text   string          `json:"text,omitempty"`
	Source *documentSource `json:"source,omitempty"`
}

type documentSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// claudeResponse is the response body from the Claude Messages API.
type claudeResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// IsSurvey reports whether the document is a survey, SLR, or tool review.
// A PDF is sent as a base64 document; anything else is sent as a plain-text
// document. It
// returns true only for the answer "YES" and false only for "NO"; anything
// else yields an error wrapping httputil.ErrMalformed. Rejected
// credentials yield httputil.ErrAuth.
func (c *Claude) IsSurvey(ctx context.Context, doc []byte) (bool, error) {
	body, err := json.Marshal(claudeRequest{
		Model:     c.Model,
		MaxTokens: 8,
		Messages: []claudeMessage{{
			Role: "user",
			Content: []claudeBlock{
				{Type: "document", Source: source(doc)},
				{Type: "text", Text: Prompt},
			},
		}},
	})
	if err != nil {
		return false, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, claudeAPIURL, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.APIKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := httputil.Do(ctx, client, req, c.Gate)
	if err != nil {
		return false, err
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		return false, &httputil.StatusError{Source: "Claude API", StatusCode: resp.StatusCode, Class: httputil.ErrAuth}
	}
	if err := httputil.CheckStatus("Claude API", resp); err != nil {
		return false, err
	}
	defer resp.Body.Close()

	var cResp claudeResponse
	if err := json.NewDecoder(resp.Body).Decode(&cResp); err != nil {
		return false, httputil.Malformed("Claude API", err)
	}

	var answer strings.Builder
	for _, block := range cResp.Content {
		if block.Type == "text" {
			answer.WriteString(block.Text)
		}
	}
	return ParseAnswer(answer.String())
}

func source(doc []byte) *documentSource {
	if bytes.HasPrefix(doc, []byte("%PDF-")) {
		return &documentSource{
			Type:      "base64",
			MediaType: "application/pdf",
			Data:      base64.StdEncoding.EncodeToString(doc),
		}
	}
	return &documentSource{Type: "text", MediaType: "text/plain", Data: string(doc)}
}

// ParseAnswer maps the model output to a survey verdict. Surrounding
// whitespace is ignored; the token itself must match exactly.
func ParseAnswer(text string) (bool, error) {
	switch strings.TrimSpace(text) {
	case "YES":
		return true, nil
	case "NO":
		return false, nil
	}
	shown := strings.TrimSpace(text)
	if len(shown) > 80 {
		shown = shown[:80] + "..."
	}
	return false, httputil.Malformed("Claude API", fmt.Errorf("answer %q is neither YES nor NO", shown))
}
