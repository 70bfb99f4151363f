package logger

import (
	"context"
	"log/slog"
	"unicode/utf8"
)

type contextKey struct{}

// LogFields are attached to a context once and added to every record logged
// with it.
type LogFields struct {
	SessionID *int64  // snowflake ID of one generation request
	SubjectID *string // pull request the notes are for
	Phase     *string // "technical" or "user"
	Component string  // e.g. "digest.service.notes"
}

// WithLogFields returns ctx carrying fields merged over any already present.
// Nil and empty values in fields leave the existing ones in place.
func WithLogFields(ctx context.Context, fields LogFields) context.Context {
	merged := GetLogFields(ctx)
	if fields.SessionID != nil {
		merged.SessionID = fields.SessionID
	}
	if fields.SubjectID != nil {
		merged.SubjectID = fields.SubjectID
	}
	if fields.Phase != nil {
		merged.Phase = fields.Phase
	}
	if fields.Component != "" {
		merged.Component = fields.Component
	}
	return context.WithValue(ctx, contextKey{}, merged)
}

func GetLogFields(ctx context.Context) LogFields {
	if fields, ok := ctx.Value(contextKey{}).(LogFields); ok {
		return fields
	}
	return LogFields{}
}

func (f LogFields) attrs() []slog.Attr {
	attrs := make([]slog.Attr, 0, 4)
	if f.SessionID != nil {
		attrs = append(attrs, slog.Int64("session_id", *f.SessionID))
	}
	if f.SubjectID != nil {
		attrs = append(attrs, slog.String("subject_id", *f.SubjectID))
	}
	if f.Phase != nil {
		attrs = append(attrs, slog.String("phase", *f.Phase))
	}
	if f.Component != "" {
		attrs = append(attrs, slog.String("component", f.Component))
	}
	return attrs
}

func Ptr[T any](v T) *T {
	return &v
}

// Truncate shortens s to at most maxLen characters, appending "..." when cut.
func Truncate(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	return string([]rune(s)[:maxLen]) + "..."
}
