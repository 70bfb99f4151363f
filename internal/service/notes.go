package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/ashtonliu88/diff-digest/common/llm"
	"github.com/ashtonliu88/diff-digest/common/logger"
	"github.com/ashtonliu88/diff-digest/internal/notes"
	"go.opentelemetry.io/otel/attribute"
)

// ErrStreamClosed is returned by writes after the outbound stream was closed
// or the peer went away.
var ErrStreamClosed = errors.New("outbound stream closed")

// Sink is the outbound byte stream of one generation response.
type Sink interface {
	io.Writer
	Flush()
	Close() error
}

// TrailerSink is implemented by sinks that can attach a trailer after the
// body has started.
type TrailerSink interface {
	SetTrailer(key, value string)
}

type NotesService interface {
	// Stream writes the framed dual-note stream for req to sink and closes
	// sink exactly once before returning.
	Stream(ctx context.Context, req notes.Request, sink Sink) error
}

type notesService struct {
	client   llm.StreamClient
	composer *notes.Composer
}

func NewNotesService(client llm.StreamClient, composer *notes.Composer) NotesService {
	if composer == nil {
		composer = notes.DefaultComposer()
	}
	return &notesService{client: client, composer: composer}
}

func (s *notesService) Stream(ctx context.Context, req notes.Request, sink Sink) error {
	out := newOutbound(sink)
	defer out.Close()

	if err := req.Validate(); err != nil {
		slog.WarnContext(ctx, "rejecting notes request", "error", err)
		_ = out.Write(notes.EncodeError(notes.ValidationMessage))
		return err
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		SubjectID: logger.Ptr(req.SubjectID),
		Component: "digest.service.notes",
	})
	ctx, span := logger.StartSpan(ctx, "notes.generate",
		attribute.String("subject_id", req.SubjectID),
		attribute.Int("diff_bytes", len(req.Body)),
		attribute.String("model", s.client.Model()),
	)
	defer span.End()

	slog.InfoContext(ctx, "generating notes", "diff_bytes", len(req.Body), "model", s.client.Model())

	ins := s.composer.Compose(req.SubjectID, req.Body)
	for i, phase := range ins.Phases() {
		if i > 0 {
			if err := out.Write([]byte(notes.Separator)); err != nil {
				return s.abandon(ctx, err)
			}
			span.Event("channel.switch")
		}

		if err := s.runPhase(ctx, ins.System, phase, out); err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrStreamClosed) {
				return s.abandon(ctx, err)
			}

			upErr := &notes.UpstreamError{Phase: phase.Channel, Err: err}
			span.Fail(upErr)
			slog.ErrorContext(ctx, "notes generation failed", "error", upErr)
			out.Fail(err.Error())
			return upErr
		}
	}

	slog.InfoContext(ctx, "notes generated", "bytes_written", out.Written())
	return nil
}

// abandon handles a client that went away: nothing more is written.
func (s *notesService) abandon(ctx context.Context, err error) error {
	slog.InfoContext(ctx, "client disconnected, abandoning generation", "reason", err)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}

func (s *notesService) runPhase(ctx context.Context, system string, phase notes.Phase, out *outbound) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Phase: logger.Ptr(string(phase.Channel))})
	ctx, span := logger.StartSpan(ctx, "notes.phase",
		attribute.String("phase", string(phase.Channel)),
		attribute.Int("max_tokens", phase.MaxTokens),
		attribute.Float64("temperature", phase.Temperature),
	)
	defer span.End()

	fragments := s.client.StreamCompletion(ctx, llm.StreamRequest{
		SystemPrompt: system,
		UserPrompt:   phase.UserPrompt,
		MaxTokens:    phase.MaxTokens,
		Temperature:  llm.Temp(phase.Temperature),
	})

	count := 0
	for fragment, err := range fragments {
		if err != nil {
			span.Fail(err)
			return fmt.Errorf("%s phase: %w", phase.Channel, err)
		}
		if fragment == "" {
			continue
		}
		if err := out.Write([]byte(fragment)); err != nil {
			return err
		}
		count++
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	span.Set(attribute.Int("fragments", count))
	slog.DebugContext(ctx, "phase complete", "fragments", count)
	return nil
}

// outbound guards a Sink: writes are flushed one by one, writes after close
// or after a failed write are no-ops, and Close reaches the sink once.
type outbound struct {
	mu      sync.Mutex
	sink    Sink
	closed  bool
	broken  bool
	written int
}

func newOutbound(sink Sink) *outbound {
	return &outbound{sink: sink}
}

func (o *outbound) Write(p []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed || o.broken {
		return ErrStreamClosed
	}
	n, err := o.sink.Write(p)
	o.written += n
	if err != nil {
		o.broken = true
		return fmt.Errorf("%w: %v", ErrStreamClosed, err)
	}
	o.sink.Flush()
	return nil
}

// Fail appends a best-effort error payload and, when supported, the error
// trailer. Once content has been written the payload cannot be told apart
// from it without the trailer.
func (o *outbound) Fail(msg string) {
	if ts, ok := o.sink.(TrailerSink); ok {
		ts.SetTrailer(notes.ErrorTrailer, msg)
	}
	_ = o.Write(notes.EncodeError(msg))
}

func (o *outbound) Written() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.written
}

func (o *outbound) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return
	}
	o.closed = true
	if err := o.sink.Close(); err != nil {
		slog.Debug("closing outbound stream", "error", err)
	}
}
