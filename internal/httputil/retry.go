// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package httputil provides HTTP helpers shared across connectors: the
// gate-mediated request loop and the error classes every connector maps
// its failures onto.
package httputil

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/pdiddy/litfilter/internal/ratelimit"
)

// MaxTransportAttempts is how many times Do tries a request that fails
// before a complete response arrives.
const MaxTransportAttempts = 3

// MaxBodyBytes bounds a buffered response body.
var MaxBodyBytes int64 = 256 << 20

// Do issues req through gate. Before each attempt it waits on the gate;
// after each response it feeds the headers back to the gate.
//
// On HTTP 429 the body is drained, the gate is told to throttle, and the
// request is retried. Once the accumulated throttle windows exceed the
// gate's maximum wait, Do gives up with ErrRateLimited.
//
// A failure before the full body is read (dial, TLS, reset, timeout) is
// retried after a gate back-off, up to MaxTransportAttempts attempts and
// within the same maximum wait; then Do gives up with ErrUnreachable.
// Cancellation of ctx is returned as is.
//
// The returned response body is fully buffered, so reading it cannot fail.
// Requests with a body must set GetBody (http.NewRequest does this for
// bytes and strings readers) so the body can be replayed on retry. Any
// response other than 429 is returned for the caller to classify.
func Do(ctx context.Context, client *http.Client, req *http.Request, gate *ratelimit.Gate) (*http.Response, error) {
	log := zerolog.Ctx(ctx)
	var (
		waited   time.Duration
		failures int
	)

	for attempt := 1; ; attempt++ {
		if err := gate.Acquire(ctx); err != nil {
			return nil, err
		}

		resp, err := send(ctx, client, req)
		if err == nil {
			gate.Observe(resp.Header)
			if resp.StatusCode != http.StatusTooManyRequests {
				err = buffer(resp)
				if err == nil {
					return resp, nil
				}
				if errors.Is(err, ErrServer) {
					return nil, fmt.Errorf("%s: %w", gate.Name(), err)
				}
			} else {
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()

				window := gate.Throttle(resp.Header)
				waited += window
				if waited > gate.MaxWait() {
					return nil, &StatusError{Source: gate.Name(), StatusCode: http.StatusTooManyRequests, Class: ErrRateLimited}
				}
				log.Debug().
					Str("source", gate.Name()).
					Int("attempt", attempt).
					Dur("window", window).
					Msg("HTTP 429, backing off")
				continue
			}
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		failures++
		if failures >= MaxTransportAttempts {
			return nil, fmt.Errorf("%s: %w after %d attempts: %v", gate.Name(), ErrUnreachable, failures, err)
		}
		window := gate.Backoff(failures)
		waited += window
		if waited > gate.MaxWait() {
			return nil, fmt.Errorf("%s: %w after %d attempts: %v", gate.Name(), ErrUnreachable, failures, err)
		}
		log.Warn().
			Err(err).
			Str("source", gate.Name()).
			Int("attempt", attempt).
			Dur("backoff", window).
			Msg("request failed, retrying")
	}
}

func send(ctx context.Context, client *http.Client, req *http.Request) (*http.Response, error) {
	r := req.Clone(ctx)
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("replaying request body: %w", err)
		}
		r.Body = body
	}
	return client.Do(r)
}

// buffer reads the whole body into memory and swaps it in. A body larger
// than MaxBodyBytes is reported as ErrServer.
func buffer(resp *http.Response) error {
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodyBytes+1))
	if err != nil {
		return fmt.Errorf("reading body: %w", err)
	}
	if int64(len(data)) > MaxBodyBytes {
		return fmt.Errorf("response exceeds %d bytes: %w", MaxBodyBytes, ErrServer)
	}
	resp.Body = io.NopCloser(bytes.NewReader(data))
	return nil
}

// Retryable reports whether err is a run-level failure that must stop the
// current stage without recording the item: rate limiting past the maximum
// wait and cancellation.
func Retryable(err error) bool {
	return errors.Is(err, ErrRateLimited) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
