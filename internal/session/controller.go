// Package session drives one generation at a time on behalf of a UI: it
// consults the notes cache, streams from the server, demultiplexes the two
// note channels and publishes state changes.
package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/ashtonliu88/diff-digest/common/id"
	"github.com/ashtonliu88/diff-digest/common/logger"
	"github.com/ashtonliu88/diff-digest/internal/cache"
	"github.com/ashtonliu88/diff-digest/internal/notes"
)

const defaultErrorMessage = "An error occurred while generating notes"

const readBufferSize = 4 << 10

// Controller owns the in-flight generation and the live result. All methods
// are safe for concurrent use.
//
// Every run is tagged with the generation counter at its start. A run only
// mutates state while its tag is current, so a superseded or cancelled run
// can never publish or commit to the cache.
type Controller struct {
	generator Generator
	cache     *cache.Cache
	now       func() time.Time

	mu         sync.Mutex
	state      State
	body       string
	generation uint64
	cancel     context.CancelFunc
	done       chan struct{}
	subs       map[int]chan State
	nextSub    int
	closed     bool
}

type Option func(*Controller)

func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

func NewController(generator Generator, notesCache *cache.Cache, opts ...Option) *Controller {
	c := &Controller{
		generator: generator,
		cache:     notesCache,
		now:       time.Now,
		state:     State{Status: StatusIdle},
		subs:      map[int]chan State{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Generate selects subjectID and shows its notes: from the cache when a valid
// entry exists, otherwise by starting a new generation that supersedes any
// in-flight one. It returns without waiting for the generation.
func (c *Controller) Generate(ctx context.Context, subjectID, body string) {
	c.start(ctx, subjectID, body, false)
}

// Select makes subjectID the current selection without generating, aborting
// any in-flight generation. A following Regenerate generates for it.
func (c *Controller) Select(subjectID, body string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.abortLocked()
	c.body = body
	c.state = State{SelectedSubjectID: subjectID}
	c.state.setStatus(StatusIdle)
	c.publishLocked()
}

// Regenerate repeats the last request for the selected subject, bypassing the
// cache. It does nothing when no subject was selected.
func (c *Controller) Regenerate(ctx context.Context) {
	c.mu.Lock()
	subjectID, body := c.state.SelectedSubjectID, c.body
	c.mu.Unlock()

	if subjectID == "" || body == "" {
		return
	}
	c.start(ctx, subjectID, body, true)
}

// Cancel aborts the in-flight generation and returns to idle. Partial output
// stays visible but is never cached.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Status != StatusGenerating {
		return
	}
	c.abortLocked()
	c.state.setStatus(StatusIdle)
	c.publishLocked()
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribe returns a channel receiving the latest state after every change.
// Slow readers only miss intermediate states. The channel is closed by the
// returned function or by Close.
func (c *Controller) Subscribe() (<-chan State, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan State, 1)
	if c.closed {
		close(ch)
		return ch, func() {}
	}

	key := c.nextSub
	c.nextSub++
	c.subs[key] = ch
	ch <- c.state

	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if sub, ok := c.subs[key]; ok {
			delete(c.subs, key)
			close(sub)
		}
	}
}

// Wait blocks until no generation is in flight, following supersessions,
// then returns the resulting state.
func (c *Controller) Wait(ctx context.Context) (State, error) {
	for {
		c.mu.Lock()
		done, state := c.done, c.state
		c.mu.Unlock()

		if done == nil || state.Status != StatusGenerating {
			return state, nil
		}
		select {
		case <-done:
		case <-ctx.Done():
			return c.State(), ctx.Err()
		}
	}
}

// Close aborts any in-flight generation and releases subscribers. Later
// calls to Generate are ignored.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	c.abortLocked()
	if c.state.Status == StatusGenerating {
		c.state.setStatus(StatusIdle)
	}
	for key, ch := range c.subs {
		delete(c.subs, key)
		close(ch)
	}
}

func (c *Controller) start(ctx context.Context, subjectID, body string, force bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	c.abortLocked()
	c.body = body

	if !force {
		if entry, ok := c.cache.Get(ctx, subjectID); ok {
			c.state = State{
				SelectedSubjectID: subjectID,
				Result:            entry.Result(),
				FromCache:         true,
			}
			c.state.setStatus(StatusComplete)
			c.publishLocked()
			slog.DebugContext(ctx, "notes served from cache", "subject_id", subjectID)
			return
		}
	}

	sessionID := id.New()
	runCtx := logger.WithLogFields(ctx, logger.LogFields{
		SessionID: &sessionID,
		SubjectID: logger.Ptr(subjectID),
		Component: "digest.session",
	})
	runCtx, cancel := context.WithCancel(runCtx)

	c.cancel = cancel
	c.done = make(chan struct{})
	gen := c.generation

	c.state = State{SelectedSubjectID: subjectID}
	c.state.setStatus(StatusGenerating)
	c.publishLocked()

	go c.run(runCtx, gen, c.done, notes.Request{SubjectID: subjectID, Body: body})
}

// abortLocked invalidates the current run.
func (c *Controller) abortLocked() {
	c.generation++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

func (c *Controller) run(ctx context.Context, gen uint64, done chan struct{}, req notes.Request) {
	defer close(done)

	slog.InfoContext(ctx, "generation started", "diff_bytes", len(req.Body))

	stream, err := c.generator.GenerateNotes(ctx, req)
	if err != nil {
		c.finish(ctx, gen, nil, err)
		return
	}
	defer stream.Close()

	demux := notes.NewDemuxer()
	buf := make([]byte, readBufferSize)
	for {
		n, readErr := stream.Read(buf)
		if n > 0 {
			_, _ = demux.Write(buf[:n])
			c.update(gen, demux.Snapshot())
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			demux.Flush()
			c.finish(ctx, gen, demux, readErr)
			return
		}
	}

	err = demux.Close()
	if err == nil {
		if msg, failed := stream.TrailerError(); failed {
			demux.StripErrorPayload(msg)
			err = &notes.RemoteError{Message: msg}
		}
	}
	c.finish(ctx, gen, demux, err)
}

func (c *Controller) update(gen uint64, partial notes.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation {
		return
	}
	c.state.Result = partial
	c.publishLocked()
}

func (c *Controller) finish(ctx context.Context, gen uint64, demux *notes.Demuxer, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation {
		slog.DebugContext(ctx, "discarding superseded generation")
		return
	}
	if cancel := c.cancel; cancel != nil {
		c.cancel = nil
		defer cancel()
	}

	if demux != nil {
		c.state.Result = demux.Snapshot()
	}

	switch {
	case err == nil:
		c.state.Result.CompletedAt = cache.Stamp(c.now())
		c.state.setStatus(StatusComplete)
		c.cache.Put(ctx, cache.Entry{
			SubjectID:      c.state.SelectedSubjectID,
			TechnicalNotes: c.state.Result.TechnicalNotes,
			UserNotes:      c.state.Result.UserNotes,
			Timestamp:      c.state.Result.CompletedAt,
		})
		slog.InfoContext(ctx, "generation complete",
			"technical_bytes", len(c.state.Result.TechnicalNotes),
			"user_bytes", len(c.state.Result.UserNotes))

	case errors.Is(err, context.Canceled) || ctx.Err() != nil:
		c.state.setStatus(StatusIdle)
		slog.InfoContext(ctx, "generation cancelled")

	default:
		c.state.Error = errorMessage(err)
		c.state.setStatus(StatusErrored)
		slog.ErrorContext(ctx, "generation failed", "error", err)
	}
	c.publishLocked()
}

func (c *Controller) publishLocked() {
	for _, ch := range c.subs {
		select {
		case <-ch:
		default:
		}
		ch <- c.state
	}
}

func errorMessage(err error) string {
	var remote *notes.RemoteError
	if errors.As(err, &remote) && remote.Message != "" {
		return remote.Message
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return defaultErrorMessage
}
