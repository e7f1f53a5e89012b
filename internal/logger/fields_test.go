package logger

import (
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
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
}

func TestWithFieldsFallsBackToNop(t *testing.T) {
	enriched := WithFields(nil, zap.String("baz", "qux"))
	if enriched == nil {
		t.Fatalf("expected fallback logger when nil provided")
	}

	enriched.Info("another log")
}

func TestWithSessionAndCommonFields(t *testing.T) {
	core, observed := observer.New(zapcore.InfoLevel)
	log := WithSession(WithCommonFields(zap.New(core), "gemini", "model-x"), "abc")
	log.Info("test log")

	entries := observed.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}

	ctx := entries[0].ContextMap()
	if ctx[FieldProvider] != "gemini" || ctx[FieldModel] != "model-x" {
		t.Fatalf("unexpected provider fields: %v", ctx)
	}
	if ctx[FieldSessionID] != "abc" {
		t.Fatalf("expected session id abc, got %v", ctx[FieldSessionID])
	}

	if len(SessionFields("  ")) != 0 {
		t.Fatalf("expected blank session id to be dropped")
	}
}

func TestLogOperation(t *testing.T) {
	core, observed := observer.New(zapcore.InfoLevel)
	log := zap.New(core)

	LogOperation(log, "save_user_message", nil)
	LogOperation(log, "export_profile", errors.New("sheets down"), zap.String("profile_id", "1234abcd"))
	LogOperation(nil, "ignored", nil)

	entries := observed.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}

	ok := entries[0].ContextMap()
	if ok[FieldOperation] != "save_user_message" || ok[FieldSuccess] != true {
		t.Fatalf("unexpected success entry: %v", ok)
	}

	failed := entries[1]
	if failed.Level != zapcore.WarnLevel {
		t.Fatalf("expected warn level, got %s", failed.Level)
	}
	ctx := failed.ContextMap()
	if ctx[FieldSuccess] != false || ctx["error"] != "sheets down" || ctx["profile_id"] != "1234abcd" {
		t.Fatalf("unexpected failure entry: %v", ctx)
	}
}
