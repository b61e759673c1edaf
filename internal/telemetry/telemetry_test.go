package telemetry_test

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/gachabot/internal/telemetry"
)

func TestNewNopProvider(t *testing.T) {
	p := telemetry.NewNopProvider()

	if p.TracerProvider == nil {
		t.Fatal("TracerProvider is nil")
	}
	if p.MeterProvider == nil {
		t.Fatal("MeterProvider is nil")
	}
	if p.LoggerProvider == nil {
		t.Fatal("LoggerProvider is nil")
	}
	if p.Logger == nil {
		t.Fatal("Logger is nil")
	}
}

func TestNopProvider_Shutdown(t *testing.T) {
	p := telemetry.NewNopProvider()
	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
}

func TestLogWithTrace_NoSpan(t *testing.T) {
	logger := slog.Default()
	// Context with no span should return the same logger.
	got := telemetry.LogWithTrace(context.Background(), logger)
	if got == nil {
		t.Fatal("LogWithTrace() returned nil")
	}
}

func TestLogWithTrace_WithSpan(t *testing.T) {
	p := telemetry.NewNopProvider()
	tracer := p.TracerProvider.Tracer("test")
	ctx, span := tracer.Start(context.Background(), "test-span")
	defer span.End()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	telemetry.LogWithTrace(ctx, logger).Info("draw")

	sc := trace.SpanFromContext(ctx).SpanContext()
	if !strings.Contains(buf.String(), "trace_id="+sc.TraceID().String()) {
		t.Errorf("log line %q missing trace_id", buf.String())
	}
}

func TestNopProvider_HasMetrics(t *testing.T) {
	p := telemetry.NewNopProvider()
	if p.Metrics == nil {
		t.Fatal("Metrics is nil")
	}
	p.Metrics.Draw(context.Background(), "common", "weighted")
}
