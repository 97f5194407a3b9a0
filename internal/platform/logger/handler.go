package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// ServiceHandler is a slog.Handler that adds service metadata
// (service name, host, environment) to every record.
type ServiceHandler struct {
	// The underlying handler (usually JSON)
	handler slog.Handler
	// Metadata added to every log record
	metadata []slog.Attr
}

// NewServiceHandler creates a JSON handler wrapped with service metadata.
func NewServiceHandler(out io.Writer, opts *slog.HandlerOptions, service string) *ServiceHandler {
	var handlerOpts slog.HandlerOptions
	if opts != nil {
		// Copy so the caller's options are never modified
		handlerOpts = *opts
	}

	return &ServiceHandler{
		handler:  slog.NewJSONHandler(out, &handlerOpts),
		metadata: serviceMetadata(service),
	}
}

// Enabled implements the slog.Handler interface.
func (h *ServiceHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// WithAttrs implements the slog.Handler interface.
func (h *ServiceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ServiceHandler{
		handler:  h.handler.WithAttrs(attrs),
		metadata: h.metadata,
	}
}

// WithGroup implements the slog.Handler interface.
func (h *ServiceHandler) WithGroup(name string) slog.Handler {
	return &ServiceHandler{
		handler:  h.handler.WithGroup(name),
		metadata: h.metadata,
	}
}

// Handle implements the slog.Handler interface.
func (h *ServiceHandler) Handle(ctx context.Context, record slog.Record) error {
	enhanced := record.Clone()
	enhanced.AddAttrs(h.metadata...)
	return h.handler.Handle(ctx, enhanced)
}

func serviceMetadata(service string) []slog.Attr {
	attrs := []slog.Attr{slog.String("service", service)}
	if host, err := os.Hostname(); err == nil {
		attrs = append(attrs, slog.String("host", host))
	}
	if env := os.Getenv("QUILL_ENV"); env != "" {
		attrs = append(attrs, slog.String("env", env))
	}
	return attrs
}
