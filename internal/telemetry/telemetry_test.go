package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"go.opentelemetry.io/otel/trace"

	"github.com/tendant/workspace-authz/internal/config"
)

func TestTraceHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewTraceHandler(slog.NewJSONHandler(&buf, nil)))

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	logger.With("component", "test").InfoContext(ctx, "hello")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("unmarshal log line: %v", err)
	}
	if rec["trace_id"] != traceID.String() || rec["span_id"] != spanID.String() {
		t.Errorf("record = %v, want trace and span ids", rec)
	}
	if rec["component"] != "test" {
		t.Errorf("component = %v, want test", rec["component"])
	}
}

func TestTraceHandler_NoSpan(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewTraceHandler(slog.NewJSONHandler(&buf, nil)))

	logger.InfoContext(context.Background(), "hello")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("unmarshal log line: %v", err)
	}
	if _, ok := rec["trace_id"]; ok {
		t.Error("trace_id should be absent without a span")
	}
}

func TestNewLogger_ProductionIsJSON(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	logger := NewLogger(&config.Config{Env: "production"}, &buf)
	logger.Info("started", "port", 8080)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("production logs should be JSON: %v (%s)", err, buf.String())
	}
	if rec["msg"] != "started" {
		t.Errorf("msg = %v", rec["msg"])
	}
}

func TestSetup_Disabled(t *testing.T) {
	tel, err := Setup(context.Background(), config.OTelConfig{}, "dev")
	if err != nil || tel != nil {
		t.Fatalf("Setup() = %v, %v, want nil, nil", tel, err)
	}
	if err := tel.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() on nil = %v", err)
	}
}

func TestParseHeaders(t *testing.T) {
	got := parseHeaders("api-key=secret, x-team = core,broken")
	if len(got) != 2 || got["api-key"] != "secret" || got["x-team"] != "core" {
		t.Errorf("parseHeaders() = %v", got)
	}
	if len(parseHeaders("")) != 0 {
		t.Error("empty input should give no headers")
	}
}
