package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/cwrk-planet/room-chat/internal/logger"
)

func TestDetectEnv(t *testing.T) {
	cases := map[string]logger.Env{
		"":           logger.EnvDev,
		"staging":    logger.EnvStage,
		"PROD":       logger.EnvProd,
		"production": logger.EnvProd,
	}
	for raw, want := range cases {
		t.Setenv("APP_ENV", raw)
		if got := logger.DetectEnv(); got != want {
			t.Fatalf("APP_ENV=%q: expected %q, got %q", raw, want, got)
		}
	}
}

func TestParseLevel(t *testing.T) {
	if lvl, err := logger.ParseLevel("debug"); err != nil || lvl != slog.LevelDebug {
		t.Fatalf("debug: got %v, %v", lvl, err)
	}
	if lvl, err := logger.ParseLevel(""); err != nil || lvl != slog.LevelInfo {
		t.Fatalf("empty: got %v, %v", lvl, err)
	}
	if _, err := logger.ParseLevel("loud"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestInit_StdBackend_Text(t *testing.T) {
	var buf bytes.Buffer
	logger.Init(logger.Config{
		Service: "room-chat",
		Version: "v0.1.0",
		Env:     logger.EnvDev,
		Backend: logger.BackendStd,
		Level:   slog.LevelDebug,
		Output:  &buf,
	})
	slog.Debug("room created", "room", "k1")

	out := buf.String()
	if strings.HasPrefix(strings.TrimSpace(out), "{") {
		t.Fatalf("expected text output, got JSON: %s", out)
	}
	for _, want := range []string{"room created", "room=k1", "service=room-chat", "env=dev"} {
		if !strings.Contains(out, want) {
			t.Fatalf("%q missing: %s", want, out)
		}
	}
}

func TestInit_ZapBackend_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger.Init(logger.Config{
		Service:          "room-chat",
		Version:          "1.2.3",
		Env:              logger.EnvProd,
		Backend:          logger.BackendZap,
		Level:            slog.LevelInfo,
		SampleInitial:    100000,
		SampleThereafter: 100000,
		Output:           &buf,
	})
	slog.Debug("dropped")
	slog.Info("booted", slog.String("addr", ":8080"))

	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("expected one JSON line, got %s, err=%v", buf.String(), err)
	}
	if m["msg"] != "booted" || m["level"] != "INFO" {
		t.Fatalf("unexpected record: %v", m)
	}
	if m["service"] != "room-chat" || m["env"] != "prod" || m["version"] != "1.2.3" {
		t.Fatalf("common attrs missing: %v", m)
	}
	if m["addr"] != ":8080" {
		t.Fatalf("custom attr missing: %v", m)
	}
}

func TestFromCtx_AddsTraceIDs(t *testing.T) {
	var buf bytes.Buffer
	l := logger.Init(logger.Config{
		Env:              logger.EnvProd,
		Backend:          logger.BackendZap,
		SampleInitial:    100000,
		SampleThereafter: 100000,
		Output:           &buf,
	})

	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()

	ctx, span := tp.Tracer("test").Start(context.Background(), "join")
	logger.FromCtx(ctx, l).Info("with trace")
	span.End()

	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("expected JSON, got: %s, err=%v", buf.String(), err)
	}
	if m["trace_id"] == nil || m["span_id"] == nil {
		t.Fatalf("trace_id/span_id missing: %v", m)
	}

	if got := logger.FromCtx(context.Background(), l); got != l {
		t.Fatalf("expected the same logger without a span")
	}
}
