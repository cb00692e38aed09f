// Package ratelimit provides per-tool token bucket rate limiting for the
// MCP server.
package ratelimit

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// ErrRateLimited is returned by Check when a tool's bucket is empty.
var ErrRateLimited = errors.New("rate limit exceeded")

// Rule configures one bucket.
type Rule struct {
	PerMinute float64 `json:"per_minute" yaml:"per_minute"`
	Burst     int     `json:"burst" yaml:"burst"` // max burst size, also the initial token count
}

// Limiter is a token bucket over rate.Limiter with an injectable clock.
// It is safe for concurrent use.
type Limiter struct {
	lim     *rate.Limiter
	nowFunc func() time.Time
}

// NewLimiter creates a full bucket for rule.
func NewLimiter(rule Rule) *Limiter {
	return &Limiter{
		lim:     rate.NewLimiter(rate.Limit(rule.PerMinute/60), rule.Burst),
		nowFunc: time.Now,
	}
}

// Allow takes one token if available.
func (l *Limiter) Allow() bool {
	return l.lim.AllowN(l.nowFunc(), 1)
}

// Tokens returns the number of tokens currently available.
func (l *Limiter) Tokens() float64 {
	return l.lim.TokensAt(l.nowFunc())
}

// Tool names with a default rule.
const (
	ToolBuild   = "gkmerge_build"
	ToolCascade = "gkmerge_cascade"
	ToolMerge   = "gkmerge_merge"
	ToolGraph   = "gkmerge_graph"
	ToolWindow  = "gkmerge_window"
	ToolMergers = "gkmerge_mergers"
	ToolResults = "gkmerge_results"
)

// DefaultRules returns the per-tool limits. Experiments are expensive and
// get the tightest buckets.
func DefaultRules() map[string]Rule {
	return map[string]Rule{
		ToolBuild:   {PerMinute: 30, Burst: 5},
		ToolCascade: {PerMinute: 60, Burst: 10},
		ToolMerge:   {PerMinute: 120, Burst: 20},
		ToolGraph:   {PerMinute: 30, Burst: 5},
		ToolWindow:  {PerMinute: 2, Burst: 1},
		ToolMergers: {PerMinute: 2, Burst: 1},
		ToolResults: {PerMinute: 60, Burst: 10},
	}
}

// ToolLimiters maps tool names to their rate limiters.
type ToolLimiters map[string]*Limiter

// NewToolLimiters creates limiters from DefaultRules with overrides applied.
// An override with a non-positive burst disables limiting for that tool.
func NewToolLimiters(overrides map[string]Rule) ToolLimiters {
	rules := DefaultRules()
	for tool, r := range overrides {
		rules[tool] = r
	}
	tl := make(ToolLimiters, len(rules))
	for tool, r := range rules {
		if r.Burst <= 0 {
			continue
		}
		tl[tool] = NewLimiter(r)
	}
	return tl
}

// Check returns nil if the tool may run now. Tools without a limiter are
// always allowed.
func (tl ToolLimiters) Check(tool string) error {
	l, ok := tl[tool]
	if !ok {
		return nil
	}
	if !l.Allow() {
		return fmt.Errorf("%w for %s, please try again shortly", ErrRateLimited, tool)
	}
	return nil
}
