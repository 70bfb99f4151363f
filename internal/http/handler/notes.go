package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ashtonliu88/diff-digest/common/logger"
	"github.com/ashtonliu88/diff-digest/internal/http/dto"
	"github.com/ashtonliu88/diff-digest/internal/notes"
	"github.com/ashtonliu88/diff-digest/internal/service"
	"github.com/gin-gonic/gin"
)

type NotesHandler struct {
	notesService service.NotesService
}

func NewNotesHandler(notesService service.NotesService) *NotesHandler {
	return &NotesHandler{notesService: notesService}
}

// Generate streams developer notes, the sentinel and marketing notes as
// plain text. Validation and upstream failures are reported in-band as the
// JSON error payload with status 200, since the status line may already be
// on the wire when the failure happens.
func (h *NotesHandler) Generate(c *gin.Context) {
	ctx := logger.WithLogFields(c.Request.Context(), logger.LogFields{
		Component: "digest.http.notes",
	})

	var req dto.GenerateNotesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.WarnContext(ctx, "malformed notes request", "error", err)
	}

	c.Header("Content-Type", notes.ContentType)
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Content-Type-Options", "nosniff")
	c.Header("Trailer", notes.ErrorTrailer)
	c.Status(http.StatusOK)

	sink := &ginSink{w: c.Writer}
	err := h.notesService.Stream(ctx, notes.Request{
		SubjectID: req.PRID,
		Body:      req.Diff,
	}, sink)

	if err != nil && !errors.Is(err, context.Canceled) {
		_ = c.Error(err)
	}
}

// ginSink adapts the gin response writer to service.Sink. The response
// itself ends when the handler returns, so Close only stops further writes.
type ginSink struct {
	w      gin.ResponseWriter
	closed bool
}

func (s *ginSink) Write(p []byte) (int, error) {
	if s.closed {
		return 0, service.ErrStreamClosed
	}
	return s.w.Write(p)
}

func (s *ginSink) Flush() {
	if !s.closed {
		s.w.Flush()
	}
}

func (s *ginSink) Close() error {
	s.closed = true
	return nil
}

// SetTrailer sets a declared trailer. Header values cannot carry newlines.
func (s *ginSink) SetTrailer(key, value string) {
	value = strings.NewReplacer("\r", " ", "\n", " ").Replace(value)
	s.w.Header().Set(key, value)
}
