package logger

import (
	"context"
	"log/slog"

	"github.com/garyellow/timetable-linebot-go/internal/ctxutil"
)

// ContextHandler adds the tracing values stored by ctxutil (user_id,
// request_id, import_id, channel) to every record.
type ContextHandler struct {
	handler slog.Handler
}

// NewContextHandler creates a new ContextHandler that wraps the provided handler.
func NewContextHandler(handler slog.Handler) *ContextHandler {
	return &ContextHandler{handler: handler}
}

// Enabled delegates to the wrapped handler.
func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// Handle enriches the record and passes it on.
func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if v := ctxutil.GetUserID(ctx); v != "" {
		r.AddAttrs(slog.String("user_id", v))
	}
	if v, ok := ctxutil.GetRequestID(ctx); ok {
		r.AddAttrs(slog.String("request_id", v))
	}
	if v := ctxutil.GetImportID(ctx); v != "" {
		r.AddAttrs(slog.String("import_id", v))
	}
	if v := ctxutil.GetChannel(ctx); v != "" {
		r.AddAttrs(slog.String("channel", v))
	}
	return h.handler.Handle(ctx, r)
}

// WithAttrs returns a ContextHandler around the wrapped handler's WithAttrs.
func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{handler: h.handler.WithAttrs(attrs)}
}

// WithGroup returns a ContextHandler around the wrapped handler's WithGroup.
func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{handler: h.handler.WithGroup(name)}
}
