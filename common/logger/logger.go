package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/ashtonliu88/diff-digest/core/config"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/trace"
)

func Setup(cfg config.Config) {
	SetupTo(os.Stdout, cfg)
}

// SetupTo installs the default logger writing to w. The terminal client logs
// to stderr so that streamed notes on stdout stay clean.
//
// In production with an OTLP endpoint, records go to the OTel log bridge
// instead of w.
func SetupTo(w io.Writer, cfg config.Config) {
	slog.SetDefault(slog.New(newHandler(w, cfg)))
}

func newHandler(w io.Writer, cfg config.Config) slog.Handler {
	if cfg.IsProduction() && cfg.OTel.Enabled() {
		return otelslog.NewHandler(
			cfg.OTel.ServiceName,
			otelslog.WithLoggerProvider(global.GetLoggerProvider()),
		)
	}

	opts := &slog.HandlerOptions{Level: level(cfg)}

	format := strings.ToLower(cfg.Log.Format)
	if format == "" {
		format = "text"
		if cfg.IsProduction() {
			format = "json"
		}
	}
	if format == "json" {
		return NewTraceHandler(slog.NewJSONHandler(w, opts))
	}
	return NewTraceHandler(slog.NewTextHandler(w, opts))
}

func level(cfg config.Config) slog.Level {
	var lvl slog.Level
	if cfg.Log.Level != "" && lvl.UnmarshalText([]byte(cfg.Log.Level)) == nil {
		return lvl
	}
	if cfg.IsDevelopment() {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// TraceHandler adds the active trace and span IDs plus the context LogFields
// to every record.
type TraceHandler struct {
	slog.Handler
}

func NewTraceHandler(h slog.Handler) *TraceHandler {
	return &TraceHandler{Handler: h}
}

func (h *TraceHandler) Handle(ctx context.Context, r slog.Record) error {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		r.AddAttrs(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	r.AddAttrs(GetLogFields(ctx).attrs()...)
	return h.Handler.Handle(ctx, r)
}

func (h *TraceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &TraceHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *TraceHandler) WithGroup(name string) slog.Handler {
	return &TraceHandler{Handler: h.Handler.WithGroup(name)}
}
