// Package ratelimit implements fixed-window request limiting keyed by
// client identity. Fixed windows over token buckets on purpose: the
// guarded workloads (login, conversion) tolerate window-edge bursts and
// the counter state stays trivial.
package ratelimit

import (
	"context"
	"time"
)

// Class selects the per-endpoint-class limit configuration.
type Class string

const (
	// ClassAuth guards login and registration.
	ClassAuth Class = "auth"
	// ClassConvert guards HTML-to-PNG conversion.
	ClassConvert Class = "convert"
	// ClassAPI guards everything else.
	ClassAPI Class = "api"
)

// Config is one class's window length and request budget.
type Config struct {
	Window time.Duration
	Max    int
}

var configs = map[Class]Config{
	ClassAuth:    {Window: time.Minute, Max: 10},
	ClassConvert: {Window: time.Minute, Max: 30},
	ClassAPI:     {Window: time.Minute, Max: 100},
}

// ConfigFor returns the configuration for a class, defaulting to the
// general API budget for unknown classes.
func ConfigFor(class Class) Config {
	if cfg, ok := configs[class]; ok {
		return cfg
	}
	return configs[ClassAPI]
}

// Result reports one identity's standing after an increment.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// WindowStore holds per-identity counters. Incr creates the window on
// first use, replaces it once resetAt has passed, and otherwise
// increments; it must be atomic with respect to concurrent callers.
type WindowStore interface {
	Incr(ctx context.Context, key string, window time.Duration) (count int64, resetAt time.Time, err error)
}

// Limiter applies a class's fixed-window budget to an identity.
type Limiter struct {
	store WindowStore
}

func NewLimiter(store WindowStore) *Limiter {
	return &Limiter{store: store}
}

// Check counts this request against the identity's current window and
// reports whether it fits the budget. The count is never rolled back:
// requests later rejected by credential checks still consume quota.
func (l *Limiter) Check(ctx context.Context, identity string, class Class) (Result, error) {
	cfg := ConfigFor(class)

	count, resetAt, err := l.store.Incr(ctx, string(class)+":"+identity, cfg.Window)
	if err != nil {
		return Result{}, err
	}

	remaining := cfg.Max - int(count)
	if remaining < 0 {
		remaining = 0
	}

	return Result{
		Allowed:   count <= int64(cfg.Max),
		Limit:     cfg.Max,
		Remaining: remaining,
		ResetAt:   resetAt,
	}, nil
}
