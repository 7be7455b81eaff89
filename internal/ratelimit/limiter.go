// Package ratelimit implements the per-client fixed window limiter with a
// temporary ban that guards the capture API.
package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"github.com/xiaocaoooo/yemoshot/internal/humanize"
)

// Policy describes the window, the request budget inside it and the ban applied
// once the budget is exceeded.
type Policy struct {
	Window      time.Duration
	MaxRequests int
	Ban         time.Duration
}

// DefaultPolicy allows 100 requests per 5 minutes and bans for 5 minutes.
var DefaultPolicy = Policy{
	Window:      5 * time.Minute,
	MaxRequests: 100,
	Ban:         5 * time.Minute,
}

// Reason explains a rejection.
type Reason string

const (
	ReasonBanned Reason = "banned"
	ReasonLimit  Reason = "limit"
)

// Decision is the outcome of Allow.
type Decision struct {
	Allowed    bool
	Reason     Reason
	RetryAfter time.Duration
	Message    string
}

// Limiter decides admission per client key.
type Limiter struct {
	policy Policy
	store  Store
	now    func() time.Time

	// mu makes each Allow a single read-modify-write on the store.
	mu sync.Mutex
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithStore replaces the default in-memory store.
func WithStore(s Store) Option {
	return func(l *Limiter) { l.store = s }
}

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

func New(policy Policy, opts ...Option) *Limiter {
	l := &Limiter{
		policy: policy,
		store:  NewMemoryStore(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Policy returns the configured policy.
func (l *Limiter) Policy() Policy {
	return l.policy
}

// Allow records a request for key and reports whether it may proceed.
func (l *Limiter) Allow(key string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, ok := l.store.Get(key)
	if !ok {
		l.store.Put(key, Entry{Count: 1, WindowStart: now})
		return Decision{Allowed: true}
	}

	if now.Before(e.BanUntil) {
		remaining := e.BanUntil.Sub(now)
		return Decision{
			Reason:     ReasonBanned,
			RetryAfter: remaining,
			Message:    fmt.Sprintf("Rate limit exceeded. Banned for %ds.", humanize.Seconds(remaining)),
		}
	}

	// An expired ban always starts a fresh window.
	if now.Sub(e.WindowStart) > l.policy.Window || !e.BanUntil.IsZero() {
		l.store.Put(key, Entry{Count: 1, WindowStart: now})
		return Decision{Allowed: true}
	}

	e.Count++
	if e.Count > l.policy.MaxRequests {
		e.BanUntil = now.Add(l.policy.Ban)
		l.store.Put(key, e)
		return Decision{
			Reason:     ReasonLimit,
			RetryAfter: l.policy.Ban,
			Message: fmt.Sprintf("Rate limit exceeded (%d/%s). Banned for %s.",
				l.policy.MaxRequests, humanize.Abbrev(l.policy.Window), humanize.Duration(l.policy.Ban)),
		}
	}

	l.store.Put(key, e)
	return Decision{Allowed: true}
}

// Prune drops entries whose window and ban have both lapsed and returns how many were removed.
func (l *Limiter) Prune() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	l.store.Range(func(key string, e Entry) bool {
		if now.Sub(e.WindowStart) > l.policy.Window && !now.Before(e.BanUntil) {
			l.store.Delete(key)
			removed++
		}
		return true
	})
	return removed
}

// Len reports the number of tracked clients.
func (l *Limiter) Len() int {
	return l.store.Len()
}
