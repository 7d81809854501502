package logger

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	pkgerrors "github.com/aardg/massabalans/pkg/errors"
)

func TestLoggerErrorIncludesContextFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Level: ParseLevel("debug"), Output: buf, Format: "json"})

	ctx := context.Background()
	ctx = log.WithRunID(ctx, "run-123")
	ctx = log.WithTable(ctx, "monta_orders")

	log.Error(ctx, "boom", errors.New("boom"))

	if !bytes.Contains(buf.Bytes(), []byte(`"run_id":"run-123"`)) {
		t.Fatalf("expected run_id to be preserved; entry=%s", buf.String())
	}
	if !bytes.Contains(buf.Bytes(), []byte(`"table":"monta_orders"`)) {
		t.Fatalf("expected table to be preserved; entry=%s", buf.String())
	}
	if !bytes.Contains(buf.Bytes(), []byte(`"stack"`)) {
		t.Fatalf("expected stack trace on error; entry=%s", buf.String())
	}
}

func TestLoggerWarnStackToggle(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Level: ParseLevel("debug"), Output: buf, Format: "json", WarnStack: true})
	log.Warn(context.Background(), "warny")
	if !bytes.Contains(buf.Bytes(), []byte(`"stack"`)) {
		t.Fatalf("expected stack when warn stack enabled")
	}
}

func TestLoggerRespectsLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Level: ParseLevel("warn"), Output: buf, Format: "json"})
	log.Info(context.Background(), "quiet")
	if buf.Len() != 0 {
		t.Fatalf("expected info to be filtered at warn level, got %s", buf.String())
	}
}

func TestParseLevelDefaults(t *testing.T) {
	if lvl := ParseLevel(""); lvl != zerolog.InfoLevel {
		t.Fatalf("expected default info level, got %v", lvl)
	}
	if lvl := ParseLevel("invalid"); lvl != zerolog.InfoLevel {
		t.Fatalf("invalid level should fallback to info, got %v", lvl)
	}
	if lvl := ParseLevel(" DEBUG "); lvl != zerolog.DebugLevel {
		t.Fatalf("expected debug, got %v", lvl)
	}
}

func TestLoggerErrorCarriesTypedCode(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{Output: buf})

	log.Error(context.Background(), "pipeline.failed", pkgerrors.New(pkgerrors.CodeMergeApply, "merge staged facts"))
	if !bytes.Contains(buf.Bytes(), []byte(`"error_code":"MERGE_APPLY_ERROR"`)) {
		t.Fatalf("expected error code field; entry=%s", buf.String())
	}

	buf.Reset()
	log.Error(context.Background(), "plain", errors.New("plain"))
	if bytes.Contains(buf.Bytes(), []byte(`"error_code"`)) {
		t.Fatalf("untyped error should not carry a code; entry=%s", buf.String())
	}
}

func TestLoggerFieldsDoNotLeakBetweenContexts(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{Output: buf})

	base := log.WithCommand(context.Background(), "reconcile")
	scoped := log.WithFields(base, map[string]any{"rows_read": 4})

	log.Info(base, "base")
	if bytes.Contains(buf.Bytes(), []byte(`"rows_read"`)) {
		t.Fatalf("parent context picked up child field; entry=%s", buf.String())
	}
	buf.Reset()
	log.Info(scoped, "scoped")
	if !bytes.Contains(buf.Bytes(), []byte(`"command":"reconcile"`)) || !bytes.Contains(buf.Bytes(), []byte(`"rows_read":4`)) {
		t.Fatalf("expected inherited and own fields; entry=%s", buf.String())
	}
}

func TestNopDiscards(t *testing.T) {
	log := Nop()
	ctx := log.WithRunID(context.Background(), "run-1")
	log.Error(ctx, "ignored", errors.New("ignored"))
}
