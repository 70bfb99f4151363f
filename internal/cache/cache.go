// Package cache keeps completed notes per pull request so that reselecting a
// pull request within the expiry window needs no generation.
package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/ashtonliu88/diff-digest/internal/kvstore"
	"github.com/ashtonliu88/diff-digest/internal/notes"
)

// Key is the single store record holding every entry.
const Key = "diff-digest-notes-cache"

const DefaultExpiry = time.Hour

// Entry is one cached result. Timestamp has millisecond precision: it is
// stored as unix milliseconds, so only values produced by Stamp survive a
// Put and Get unchanged.
type Entry struct {
	SubjectID      string    `json:"-"`
	TechnicalNotes string    `json:"developerNotes"`
	UserNotes      string    `json:"marketingNotes"`
	Timestamp      time.Time `json:"-"`
}

type record struct {
	TechnicalNotes string `json:"developerNotes"`
	UserNotes      string `json:"marketingNotes"`
	Timestamp      int64  `json:"timestamp"`
}

// Result converts the entry for display.
func (e Entry) Result() notes.Result {
	return notes.Result{
		TechnicalNotes: e.TechnicalNotes,
		UserNotes:      e.UserNotes,
		CompletedAt:    e.Timestamp,
	}
}

type Clock func() time.Time

// Stamp rounds t down to the precision the cache stores.
func Stamp(t time.Time) time.Time {
	return time.UnixMilli(t.UnixMilli())
}

type Cache struct {
	mu     sync.Mutex
	store  kvstore.Store
	now    Clock
	expiry time.Duration
}

type Option func(*Cache)

func WithClock(now Clock) Option {
	return func(c *Cache) { c.now = now }
}

// WithExpiry sets the window after which an entry is ignored. Non-positive
// values keep the default.
func WithExpiry(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.expiry = d
		}
	}
}

func New(store kvstore.Store, opts ...Option) *Cache {
	c := &Cache{store: store, now: time.Now, expiry: DefaultExpiry}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the entry for subjectID unless it is missing or older than the
// expiry window. An entry exactly at the window boundary is still valid.
func (c *Cache) Get(ctx context.Context, subjectID string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.load(ctx)[subjectID]
	if !ok {
		return Entry{}, false
	}
	ts := time.UnixMilli(rec.Timestamp)
	if c.now().Sub(ts) > c.expiry {
		return Entry{}, false
	}
	return Entry{
		SubjectID:      subjectID,
		TechnicalNotes: rec.TechnicalNotes,
		UserNotes:      rec.UserNotes,
		Timestamp:      ts,
	}, true
}

// Put stores e, replacing any earlier entry for the same subject. A zero
// Timestamp is set to the stamped current time. Storage failures are logged only.
func (c *Cache) Put(ctx context.Context, e Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e.Timestamp.IsZero() {
		e.Timestamp = Stamp(c.now())
	}

	records := c.load(ctx)
	records[e.SubjectID] = record{
		TechnicalNotes: e.TechnicalNotes,
		UserNotes:      e.UserNotes,
		Timestamp:      e.Timestamp.UnixMilli(),
	}

	data, err := json.Marshal(records)
	if err != nil {
		slog.ErrorContext(ctx, "encoding notes cache failed", "error", err)
		return
	}
	if err := c.store.Set(ctx, Key, string(data)); err != nil {
		slog.ErrorContext(ctx, "saving notes cache failed", "error", err, "subject_id", e.SubjectID)
	}
}

// load never fails: unreadable or corrupt data is an empty cache.
func (c *Cache) load(ctx context.Context) map[string]record {
	records := map[string]record{}

	raw, ok, err := c.store.Get(ctx, Key)
	if err != nil {
		slog.ErrorContext(ctx, "reading notes cache failed", "error", err)
		return records
	}
	if !ok || raw == "" {
		return records
	}
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		slog.ErrorContext(ctx, "discarding corrupt notes cache", "error", err)
		return map[string]record{}
	}
	return records
}
