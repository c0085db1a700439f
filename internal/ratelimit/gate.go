// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ratelimit paces calls to one external source. A Gate enforces a
// minimum interval between calls and, for quota-aware sources, blocks while
// the source reports an exhausted quota until its reset time passes.
package ratelimit

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Policy selects how a Gate reacts to response metadata.
type Policy int

const (
	// FixedInterval spaces calls by a minimum interval and ignores quota headers.
	FixedInterval Policy = iota
	// QuotaAware additionally tracks remaining quota and reset time from headers.
	QuotaAware
)

func (p Policy) String() string {
	if p == QuotaAware {
		return "quota-aware"
	}
	return "fixed-interval"
}

// Default header names used by sources that expose quota state.
const (
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderReset      = "X-RateLimit-Reset"
	HeaderRetryAfter = "Retry-After"
)

// epochThreshold separates delta-seconds reset values from Unix timestamps.
const epochThreshold = 1_000_000_000

// Options configures a Gate.
type Options struct {
	Policy Policy

	// Interval is the minimum spacing between calls. Zero disables spacing.
	Interval time.Duration

	// ResetWindow is the back-off applied after HTTP 429 when no reset
	// information is available (default 60s).
	ResetWindow time.Duration

	// MaxWait bounds the total throttle time for one request (default 2h).
	MaxWait time.Duration

	// RetryDelay is the first back-off after a failed attempt; each further
	// attempt doubles it (default 5s).
	RetryDelay time.Duration

	// RemainingHeader and ResetHeader override the quota header names.
	RemainingHeader string
	ResetHeader     string

	// Progress receives the countdown while the gate blocks on quota.
	// Nil discards it.
	Progress io.Writer
}

// State is the observed quota of a source. Remaining is -1 until a
// response reports it.
type State struct {
	Remaining int
	ResetAt   time.Time
}

// Gate enforces pacing for a single source. It is used from one
// sequential caller and is not safe for concurrent use; each source owns
// its own Gate.
type Gate struct {
	name   string
	opts   Options
	bucket *rate.Limiter
	state  State

	// pauseUntil holds calls back after a failed attempt.
	pauseUntil time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a gate for the named source. A fresh gate assumes full quota.
func New(name string, opts Options) *Gate {
	if opts.ResetWindow <= 0 {
		opts.ResetWindow = 60 * time.Second
	}
	if opts.MaxWait <= 0 {
		opts.MaxWait = 2 * time.Hour
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 5 * time.Second
	}
	if opts.RemainingHeader == "" {
		opts.RemainingHeader = HeaderRemaining
	}
	if opts.ResetHeader == "" {
		opts.ResetHeader = HeaderReset
	}
	if opts.Progress == nil {
		opts.Progress = io.Discard
	}

	limit := rate.Inf
	if opts.Interval > 0 {
		limit = rate.Every(opts.Interval)
	}

	return &Gate{
		name:   name,
		opts:   opts,
		bucket: rate.NewLimiter(limit, 1),
		state:  State{Remaining: -1},
		now:    time.Now,
		sleep:  sleepCtx,
	}
}

// Name returns the source this gate paces.
func (g *Gate) Name() string { return g.name }

// MaxWait returns the cumulative throttle bound for one request.
func (g *Gate) MaxWait() time.Duration { return g.opts.MaxWait }

// State returns the last observed quota state.
func (g *Gate) State() State { return g.state }

// Acquire blocks until it is safe to issue the next request to the source.
// When the recorded quota is zero and the reset time has not passed, it
// waits out the full window, printing a countdown.
func (g *Gate) Acquire(ctx context.Context) error {
	if g.state.Remaining == 0 {
		if wait := g.state.ResetAt.Sub(g.now()); wait > 0 {
			if err := g.countdown(ctx, wait); err != nil {
				return err
			}
		}
		// Unknown until the next response reports it.
		g.state.Remaining = -1
	}
	if wait := g.pauseUntil.Sub(g.now()); wait > 0 {
		if err := g.sleep(ctx, wait); err != nil {
			return fmt.Errorf("rate gate %s: %w", g.name, err)
		}
	}

	if err := g.bucket.Wait(ctx); err != nil {
		return fmt.Errorf("rate gate %s: %w", g.name, err)
	}
	return nil
}

// Observe updates the quota state from response headers. Fixed-interval
// gates ignore quota headers.
func (g *Gate) Observe(h http.Header) {
	if g.opts.Policy != QuotaAware || h == nil {
		return
	}
	if v := strings.TrimSpace(h.Get(g.opts.RemainingHeader)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			g.state.Remaining = n
		}
	}
	if at, ok := parseReset(h.Get(g.opts.ResetHeader), g.now()); ok {
		g.state.ResetAt = at
	}
	if g.state.Remaining == 0 && !g.state.ResetAt.After(g.now()) {
		g.state.ResetAt = g.now().Add(g.opts.ResetWindow)
	}
}

// Throttle records that the source answered HTTP 429. The next Acquire
// blocks until the reset time, taken from Retry-After, the reset header
// (quota-aware gates), or the configured reset window, in that order.
// It returns the length of the window.
func (g *Gate) Throttle(h http.Header) time.Duration {
	now := g.now()
	resetAt := now.Add(g.opts.ResetWindow)

	if at, ok := parseReset(h.Get(HeaderRetryAfter), now); ok && at.After(now) {
		resetAt = at
	} else if g.opts.Policy == QuotaAware {
		if at, ok := parseReset(h.Get(g.opts.ResetHeader), now); ok && at.After(now) {
			resetAt = at
		}
	}

	g.state = State{Remaining: 0, ResetAt: resetAt}
	return resetAt.Sub(now)
}

// Backoff holds the next Acquire back after failed attempt number
// attempt (1-based). The delay is RetryDelay doubled for each earlier
// attempt. Quota state is left untouched. It returns the delay.
func (g *Gate) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := g.opts.RetryDelay << (attempt - 1)
	g.pauseUntil = g.now().Add(d)
	return d
}

// countdown blocks for wait, writing the remaining time once per second.
func (g *Gate) countdown(ctx context.Context, wait time.Duration) error {
	zerolog.Ctx(ctx).Warn().
		Str("source", g.name).
		Dur("wait", wait).
		Time("reset_at", g.state.ResetAt).
		Msg("rate limit reached, waiting for reset")

	warn := color.New(color.FgYellow).SprintFunc()
	for wait > 0 {
		fmt.Fprintf(g.opts.Progress, "\r%s %s: remaining %d, reset in %s ",
			warn("rate limit"), g.name, g.state.Remaining, formatClock(wait))

		step := time.Second
		if wait < step {
			step = wait
		}
		if err := g.sleep(ctx, step); err != nil {
			fmt.Fprintln(g.opts.Progress)
			return fmt.Errorf("rate gate %s: %w", g.name, err)
		}
		wait = g.state.ResetAt.Sub(g.now())
	}
	fmt.Fprintln(g.opts.Progress)
	return nil
}

// parseReset interprets a reset header value. Integers below the epoch
// threshold are seconds from now, larger integers are Unix timestamps, and
// anything else is tried as RFC 3339 or an HTTP date.
func parseReset(v string, now time.Time) (time.Time, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, false
	}
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		if n >= epochThreshold {
			return time.Unix(n, 0), true
		}
		return now.Add(time.Duration(n) * time.Second), true
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, true
	}
	if t, err := http.ParseTime(v); err == nil {
		return t, true
	}
	return time.Time{}, false
}

func formatClock(d time.Duration) string {
	secs := int(d.Round(time.Second) / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, (secs%3600)/60, secs%60)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
