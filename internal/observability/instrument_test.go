package observability

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	otellog "go.opentelemetry.io/otel/log"
)

func TestLocalHandlerRejectsUnknownFormat(t *testing.T) {
	if _, err := localHandler(slog.LevelInfo, "xml"); err == nil {
		t.Fatal("expected an error for an unsupported log format")
	}
}

func TestLocalHandlerDefaultsToText(t *testing.T) {
	if _, err := localHandler(slog.LevelInfo, ""); err != nil {
		t.Fatalf("empty format should default to text, got error: %v", err)
	}
}

func TestSlogLevelToSeverity(t *testing.T) {
	cases := []struct {
		level slog.Level
		want  otellog.Severity
	}{
		{slog.LevelDebug, otellog.SeverityDebug},
		{slog.LevelInfo, otellog.SeverityInfo},
		{slog.LevelWarn, otellog.SeverityWarn},
		{slog.LevelError, otellog.SeverityError},
	}
	for _, c := range cases {
		got := slogLevelToSeverity(c.level)
		if got != c.want {
			t.Fatalf("slogLevelToSeverity(%v) = %v, want %v", c.level, got, c.want)
		}
	}
}

func TestFanoutHandlerDispatchesToEverySink(t *testing.T) {
	var bufA, bufB bytes.Buffer
	fanout := fanoutHandler{
		slog.NewTextHandler(&bufA, nil),
		slog.NewJSONHandler(&bufB, nil),
	}

	logger := slog.New(fanout)
	logger.Info("hello", "k", "v")

	if bufA.Len() == 0 {
		t.Fatal("text sink received nothing")
	}
	if bufB.Len() == 0 {
		t.Fatal("json sink received nothing")
	}
}

func TestFanoutHandlerEnabledIfAnySinkEnabled(t *testing.T) {
	quiet := slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError})
	verbose := slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelDebug})
	fanout := fanoutHandler{quiet, verbose}

	if !fanout.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("expected Enabled to be true when at least one sink accepts the level")
	}
}
