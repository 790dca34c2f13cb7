// Package lockout tracks failed authentication attempts per identity and locks
// the identity once too many failures land in one window.
//
// States per key: clear -> counting(n) -> locked(until) -> clear. The counter
// lives under a key whose TTL is the window, so a failure after the window has
// elapsed starts a fresh count. Reaching the threshold sets a lock key and
// drops the counter. Failures while locked change nothing.
package lockout

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Skotchmaster/healthcare_records/internal/store"
)

const (
	DefaultMaxAttempts  = 5
	DefaultWindow       = 15 * time.Minute
	DefaultLockDuration = 15 * time.Minute
)

type Status struct {
	Locked     bool
	RetryAfter time.Duration
	Attempts   int
}

type Guard struct {
	store        store.Store
	maxAttempts  int
	window       time.Duration
	lockDuration time.Duration
}

type Option func(*Guard)

func WithMaxAttempts(n int) Option {
	return func(g *Guard) {
		if n > 0 {
			g.maxAttempts = n
		}
	}
}

func WithWindow(d time.Duration) Option {
	return func(g *Guard) {
		if d > 0 {
			g.window = d
		}
	}
}

func WithLockDuration(d time.Duration) Option {
	return func(g *Guard) {
		if d > 0 {
			g.lockDuration = d
		}
	}
}

func New(st store.Store, opts ...Option) *Guard {
	g := &Guard{
		store:        st,
		maxAttempts:  DefaultMaxAttempts,
		window:       DefaultWindow,
		lockDuration: DefaultLockDuration,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// EmailKey normalizes an email into a lockout identity key.
func EmailKey(email string) string {
	return "email:" + strings.ToLower(strings.TrimSpace(email))
}

func countKey(key string) string { return "lockout:count:" + key }
func lockKey(key string) string  { return "lockout:lock:" + key }

func (g *Guard) lockStatus(ctx context.Context, key string) (Status, bool, error) {
	_, ttl, ok, err := g.store.Get(ctx, lockKey(key))
	if err != nil {
		return Status{}, false, fmt.Errorf("lockout check: %w", err)
	}
	if !ok {
		return Status{}, false, nil
	}
	if ttl <= 0 {
		ttl = g.lockDuration
	}
	return Status{Locked: true, RetryAfter: ttl, Attempts: g.maxAttempts}, true, nil
}

func (g *Guard) Check(ctx context.Context, key string) (Status, error) {
	st, locked, err := g.lockStatus(ctx, key)
	if err != nil || locked {
		return st, err
	}
	v, _, ok, err := g.store.Get(ctx, countKey(key))
	if err != nil {
		return Status{}, fmt.Errorf("lockout check: %w", err)
	}
	if !ok {
		return Status{}, nil
	}
	n, _ := strconv.Atoi(v)
	return Status{Attempts: n}, nil
}

// RecordFailure counts one failed attempt and reports the resulting status.
func (g *Guard) RecordFailure(ctx context.Context, key string) (Status, error) {
	st, locked, err := g.lockStatus(ctx, key)
	if err != nil || locked {
		return st, err
	}

	n, err := g.store.Incr(ctx, countKey(key), g.window)
	if err != nil {
		return Status{}, fmt.Errorf("lockout record: %w", err)
	}
	if int(n) < g.maxAttempts {
		return Status{Attempts: int(n)}, nil
	}

	if err := g.store.Set(ctx, lockKey(key), "1", g.lockDuration); err != nil {
		return Status{}, fmt.Errorf("lockout lock: %w", err)
	}
	if err := g.store.Delete(ctx, countKey(key)); err != nil {
		return Status{}, fmt.Errorf("lockout lock: %w", err)
	}
	return Status{Locked: true, RetryAfter: g.lockDuration, Attempts: int(n)}, nil
}

// Reset clears the identity after a successful authentication.
func (g *Guard) Reset(ctx context.Context, key string) error {
	if err := g.store.Delete(ctx, countKey(key), lockKey(key)); err != nil {
		return fmt.Errorf("lockout reset: %w", err)
	}
	return nil
}
