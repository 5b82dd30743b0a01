// Package cache provides generic read-through memoization with TTL and
// explicit key invalidation, backed by a pluggable key-value store.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Store is an atomic per-key key-value store. Get never returns a value
// whose TTL has elapsed; Delete makes the key absent until the next Set.
// A zero TTL means no expiry.
type Store interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Key derives a deterministic cache key from an operation identity and
// the ordered values of its arguments. Distinct operations never collide
// and identical calls always produce the same key.
func Key(op string, args ...any) string {
	if len(args) == 0 {
		return op
	}
	parts := make([]string, len(args))
	for i, arg := range args {
		parts[i] = fmt.Sprint(arg)
	}
	return op + ":" + strings.Join(parts, ".")
}

// Fetch is the read-through memoization wrapper. It returns the cached
// value when present and unexpired, otherwise calls fn, stores its JSON
// serialization under key, and returns it. A nil store disables
// memoization. Store write failures are logged by the backend and never
// fail the read.
func Fetch[T any](ctx context.Context, s Store, key string, ttl time.Duration, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if s == nil {
		return fn(ctx)
	}

	raw, ok, err := s.Get(ctx, key)
	if err == nil && ok {
		var v T
		if err := json.Unmarshal(raw, &v); err == nil {
			return v, nil
		}
		// Undecodable entry: drop it and recompute.
		_ = s.Delete(ctx, key)
	}

	v, err := fn(ctx)
	if err != nil {
		return zero, err
	}

	if raw, err := json.Marshal(v); err == nil {
		_ = s.Set(ctx, key, raw, ttl)
	}
	return v, nil
}

// Invalidate deletes the named keys as part of a write's side effects,
// forcing the next read through each of them to recompute.
func Invalidate(ctx context.Context, s Store, keys ...string) error {
	if s == nil {
		return nil
	}
	var errs []error
	for _, key := range keys {
		if err := s.Delete(ctx, key); err != nil {
			errs = append(errs, fmt.Errorf("cache: invalidate %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}
