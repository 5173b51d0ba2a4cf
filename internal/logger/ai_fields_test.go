package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spigell/job-buddy/internal/ai"
)

func TestStringFields(t *testing.T) {
	fields := StringFields(
		StringField{Key: "  provider  ", Value: "  Gemini  "},
		StringField{Key: "ignored", Value: "   "},
		StringField{Key: "   ", Value: "empty key"},
	)

	if len(fields) != 1 {
		t.Fatalf("expected 1 field, got %d", len(fields))
	}

	if fields[0].Key != "provider" || fields[0].String != "Gemini" {
		t.Fatalf("unexpected provider field: %+v", fields[0])
	}

	empty := StringFields()
	if len(empty) != 0 {
		t.Fatalf("expected empty fields, got %d", len(empty))
	}
}

func TestWithFields(t *testing.T) {
	core, observed := observer.New(zapcore.InfoLevel)
	logger := zap.New(core)

	enriched := WithFields(logger, zap.String("foo", "bar"))
	enriched.Info("test log")

	entries := observed.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}

	ctx := entries[0].ContextMap()
	if ctx["foo"] != "bar" {
		t.Fatalf("expected field to be bar, got %q", ctx["foo"])
	}

	enriched = WithFields(nil, zap.String("baz", "qux"))
	if enriched == nil {
		t.Fatalf("expected fallback logger when nil provided")
	}

	// Ensure logging with the fallback logger does not panic.
	enriched.Info("another log")
}

func TestCommonFields(t *testing.T) {
	fields := CommonFields("  Gemini  ", "model-v1")
	if len(fields) != 2 {
		t.Fatalf("expected 2 fields, got %d", len(fields))
	}

	if fields[0].Key != FieldProvider || fields[0].String != "Gemini" {
		t.Fatalf("unexpected provider field: %+v", fields[0])
	}

	if fields[1].Key != FieldModel || fields[1].String != "model-v1" {
		t.Fatalf("unexpected model field: %+v", fields[1])
	}

	empty := CommonFields("", "")
	if len(empty) != 0 {
		t.Fatalf("expected empty fields, got %d", len(empty))
	}
}

func TestWithRunID(t *testing.T) {
	core, observed := observer.New(zapcore.InfoLevel)
	logger := zap.New(core)

	WithRunID(logger, " run-42 ").Info("test log")
	WithRunID(logger, "").Info("untagged")

	entries := observed.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}

	if got := entries[0].ContextMap()[FieldRun]; got != "run-42" {
		t.Fatalf("expected run id run-42, got %q", got)
	}

	if _, ok := entries[1].ContextMap()[FieldRun]; ok {
		t.Fatalf("expected no run id for an empty value")
	}

	// Ensure logging with the fallback logger does not panic.
	WithRunID(nil, "run-42").Info("another log")
}

func TestCallFields(t *testing.T) {
	meta := ai.CallMeta{
		Label: "extract_requirements",
		Model: "gpt-4o-mini",
		Usage: ai.Usage{PromptTokens: 120, CachedPromptTokens: 20, CompletionTokens: 80},
		Cost:  0.000063,
	}

	core, observed := observer.New(zapcore.InfoLevel)
	zap.New(core).Info("call", CallFields(meta)...)

	ctx := observed.All()[0].ContextMap()
	if ctx[FieldCall] != "extract_requirements" {
		t.Fatalf("unexpected call field: %v", ctx[FieldCall])
	}
	if ctx[FieldModel] != "gpt-4o-mini" {
		t.Fatalf("unexpected model field: %v", ctx[FieldModel])
	}
	if ctx["prompt_tokens"] != int64(120) || ctx["completion_tokens"] != int64(80) {
		t.Fatalf("unexpected token fields: %v", ctx)
	}
	if ctx["cost"] != 0.000063 {
		t.Fatalf("unexpected cost: %v", ctx["cost"])
	}

	empty := CallFields(ai.CallMeta{})
	if len(empty) != 4 {
		t.Fatalf("expected only numeric fields for empty meta, got %d", len(empty))
	}
}
