// Package kvstore is the persistent string key/value contract used by the
// terminal client for the notes cache and saved preferences.
package kvstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

// Store persists string values. A missing key is reported as ok=false, not
// as an error.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
}

// Value is a typed preference stored as JSON under a fixed key.
type Value[T any] struct {
	store    Store
	key      string
	fallback T
}

func NewValue[T any](store Store, key string, fallback T) *Value[T] {
	return &Value[T]{store: store, key: key, fallback: fallback}
}

// Get returns the stored value, or the fallback when the key is missing,
// unreadable or holds something that does not decode as T.
func (v *Value[T]) Get(ctx context.Context) T {
	raw, ok, err := v.store.Get(ctx, v.key)
	if err != nil {
		slog.WarnContext(ctx, "reading stored value failed", "key", v.key, "error", err)
		return v.fallback
	}
	if !ok {
		return v.fallback
	}

	var out T
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		slog.WarnContext(ctx, "discarding malformed stored value", "key", v.key, "error", err)
		return v.fallback
	}
	return out
}

func (v *Value[T]) Set(ctx context.Context, value T) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", v.key, err)
	}
	if err := v.store.Set(ctx, v.key, string(data)); err != nil {
		return fmt.Errorf("storing %s: %w", v.key, err)
	}
	return nil
}
