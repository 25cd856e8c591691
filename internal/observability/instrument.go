// Package observability bootstraps process-wide structured logging: a
// human/JSON handler on stderr fanned out alongside an OpenTelemetry log
// bridge, so every slog call both prints locally and exports to an OTLP
// collector when one is configured.
package observability

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/processors/minsev"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// Instrument configures the global slog logger: a local handler (text or
// json) plus an OTLP log exporter gated by OTEL_EXPORTER_OTLP_ENDPOINT /
// OTEL_EXPORTER_OTLP_LOGS_ENDPOINT. With neither set, logs are exported to
// stdout so the OTLP pipeline stays exercised in local development too.
func Instrument(level slog.Level, format string) error {
	local, err := localHandler(level, format)
	if err != nil {
		return fmt.Errorf("observability: local handler: %w", err)
	}

	provider, err := newLoggerProvider(level)
	if err != nil {
		return fmt.Errorf("observability: logger provider: %w", err)
	}
	bridge := otelslog.NewHandler("agentbridge", otelslog.WithLoggerProvider(provider))

	slog.SetDefault(slog.New(fanoutHandler{local, bridge}))
	return nil
}

func localHandler(level slog.Level, format string) (slog.Handler, error) {
	opts := &slog.HandlerOptions{Level: level}
	switch format {
	case "json":
		return slog.NewJSONHandler(os.Stderr, opts), nil
	case "text", "":
		return slog.NewTextHandler(os.Stderr, opts), nil
	default:
		return nil, fmt.Errorf("unsupported log format %q", format)
	}
}

// newLoggerProvider picks an OTLP exporter by endpoint-related environment
// variables (grpc by default, http/protobuf when OTEL_EXPORTER_OTLP_PROTOCOL
// says so), falling back to a stdout exporter when no collector is
// configured. minsev drops records below level before they reach the
// exporter, so raising -log-level also trims OTLP export volume.
func newLoggerProvider(level slog.Level) (*sdklog.LoggerProvider, error) {
	exporter, err := newExporter()
	if err != nil {
		return nil, err
	}

	severity := minsev.NewLogProcessor(sdklog.NewBatchProcessor(exporter), slogLevelToSeverity(level))
	return sdklog.NewLoggerProvider(sdklog.WithProcessor(severity)), nil
}

func newExporter() (sdklog.Exporter, error) {
	ctx := context.Background()

	if os.Getenv("OTEL_EXPORTER_OTLP_PROTOCOL") == "http/protobuf" {
		return otlploghttp.New(ctx)
	}
	if os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != "" || os.Getenv("OTEL_EXPORTER_OTLP_LOGS_ENDPOINT") != "" {
		return otlploggrpc.New(ctx)
	}
	return stdoutlog.New()
}

func slogLevelToSeverity(level slog.Level) otellog.Severity {
	switch {
	case level <= slog.LevelDebug:
		return otellog.SeverityDebug
	case level <= slog.LevelInfo:
		return otellog.SeverityInfo
	case level <= slog.LevelWarn:
		return otellog.SeverityWarn
	default:
		return otellog.SeverityError
	}
}

// fanoutHandler dispatches every record to each of its handlers in order,
// continuing past the first error so one failing sink never silences
// another.
type fanoutHandler []slog.Handler

func (f fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanoutHandler) Handle(ctx context.Context, record slog.Record) error {
	var firstErr error
	for _, h := range f {
		if !h.Enabled(ctx, record.Level) {
			continue
		}
		if err := h.Handle(ctx, record.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (f fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanoutHandler, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanoutHandler) WithGroup(name string) slog.Handler {
	out := make(fanoutHandler, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}
