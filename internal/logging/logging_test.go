package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"
)

// captureLogOutput redirects the package logger to a buffer for the
// duration of f and returns what was written.
func captureLogOutput(f func()) string {
	var buf bytes.Buffer
	oldLogger := defaultLogger
	defaultLogger = slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	f()
	defaultLogger = oldLogger
	return buf.String()
}

func TestInitLogger(t *testing.T) {
	tests := []struct {
		name   string
		level  Level
		format Format
	}{
		{"debug json", LevelDebug, FormatJSON},
		{"info json", LevelInfo, FormatJSON},
		{"warn json", LevelWarn, FormatJSON},
		{"error json", LevelError, FormatJSON},
		{"info text", LevelInfo, FormatText},
		{"invalid level falls back to info", Level(999), FormatJSON},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			InitLogger(tt.level, tt.format)
			if GetLogger() == nil {
				t.Error("expected logger to be initialized, got nil")
			}
		})
	}
	InitLogger(LevelInfo, FormatJSON)
}

func TestRunID(t *testing.T) {
	tests := []struct {
		name     string
		ctx      context.Context
		expected string
	}{
		{"context with run id", WithRunID(context.Background(), "run-123"), "run-123"},
		{"context without run id", context.Background(), ""},
		{"context with wrong type value", context.WithValue(context.Background(), RunIDKey, 12345), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetRunID(tt.ctx); got != tt.expected {
				t.Errorf("GetRunID = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestLoggingFunctions(t *testing.T) {
	tests := []struct {
		name string
		fn   func()
	}{
		{"Debug", func() { Debug("debug message", "key", "value") }},
		{"Info", func() { Info("info message", "key", "value") }},
		{"Warn", func() { Warn("warning message", "key", "value") }},
		{"Error", func() { Error("error message", "key", "value") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if output := captureLogOutput(tt.fn); output == "" {
				t.Error("expected log output, got empty string")
			}
		})
	}
}

func TestContextLoggingFunctions(t *testing.T) {
	ctx := WithRunID(context.Background(), "test-run-id")

	tests := []struct {
		name string
		fn   func()
	}{
		{"DebugContext", func() { DebugContext(ctx, "debug message") }},
		{"InfoContext", func() { InfoContext(ctx, "info message") }},
		{"WarnContext", func() { WarnContext(ctx, "warning message") }},
		{"ErrorContext", func() { ErrorContext(ctx, "error message") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output := captureLogOutput(tt.fn)
			if output == "" {
				t.Error("expected log output, got empty string")
			}
			if !strings.Contains(output, "test-run-id") {
				t.Error("expected output to contain run id")
			}
		})
	}
}

func TestPipelineStage(t *testing.T) {
	output := captureLogOutput(func() {
		PipelineStage("normalize", "witness-L.xml", 150*time.Millisecond, "accents", "all")
	})
	for _, want := range []string{"pipeline_stage", "normalize", "witness-L.xml", "duration_ms", "accents"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected output to contain %q, got %s", want, output)
		}
	}
}

func TestValidationFailure(t *testing.T) {
	output := captureLogOutput(func() {
		ValidationFailure("collation.xml", 3)
	})
	for _, want := range []string{"validation_failure", "collation.xml", "3"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected output to contain %q, got %s", want, output)
		}
	}
}

func TestWitnessIngested(t *testing.T) {
	output := captureLogOutput(func() {
		WitnessIngested("L", 24, "traditions", 2)
	})
	for _, want := range []string{"witness_ingested", `"L"`, "divisions", "traditions"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected output to contain %q, got %s", want, output)
		}
	}
}
