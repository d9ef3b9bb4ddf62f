// Package telemetry wires structured logging, metrics and trace
// correlation for the service. Logging is zerolog; metrics go through
// the OTEL metrics API and are exported via a Prometheus registry.
package telemetry

import (
	"context"
	"io"
	"os"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTELHook adds trace and span IDs to every log entry carrying a
// context, and flips the span status on error-level logs.
type OTELHook struct{}

func (h OTELHook) Run(e *zerolog.Event, level zerolog.Level, msg string) {
	ctx := e.GetCtx()
	if ctx == nil {
		return
	}

	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return
	}

	e.Str("trace_id", span.SpanContext().TraceID().String())
	e.Str("span_id", span.SpanContext().SpanID().String())

	if level == zerolog.ErrorLevel {
		span.SetStatus(codes.Error, msg)
	}
}

// NewLogger builds the service root logger writing to stdout.
func NewLogger(service, level string) zerolog.Logger {
	return NewLoggerTo(os.Stdout, service, level)
}

// NewLoggerTo builds a logger writing to w. Unknown levels fall back
// to info.
func NewLoggerTo(w io.Writer, service, level string) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	return zerolog.New(w).
		Level(lvl).
		With().
		Timestamp().
		Str("service", service).
		Logger().
		Hook(OTELHook{})
}

// Ctx returns a logger bound to ctx so the OTEL hook can pick up the
// active span.
func Ctx(ctx context.Context, logger zerolog.Logger) *zerolog.Logger {
	l := logger.With().Ctx(ctx).Logger()
	return &l
}
