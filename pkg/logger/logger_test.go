package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestLoggerInit(t *testing.T) {
	if err := Init(); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() {
		if err := Sync(); err != nil {
			t.Errorf("failed to sync logger: %v", err)
		}
	}()

	if Get() == nil {
		t.Fatal("logger is nil after initialization")
	}
}

func TestInitWithFormatRejectsUnknown(t *testing.T) {
	if err := InitWithFormat("xml", &bytes.Buffer{}); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestJSONOutputCarriesFields(t *testing.T) {
	var buf bytes.Buffer
	if err := InitWithFormat(FormatJSON, &buf); err != nil {
		t.Fatalf("init: %v", err)
	}

	Named("score-api").With(Int("round_heat_id", 7)).Error(context.Background(), "upsert failed",
		Int("run_num", 2),
		Error(errors.New("connection reset")),
	)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if entry["msg"] != "upsert failed" {
		t.Errorf("unexpected msg: %v", entry["msg"])
	}
	if entry["component"] != "score-api" {
		t.Errorf("expected component field, got %v", entry["component"])
	}
	if entry["round_heat_id"] != float64(7) || entry["run_num"] != float64(2) {
		t.Errorf("missing context fields: %v", entry)
	}
	if entry["error"] != "connection reset" {
		t.Errorf("expected error text, got %v", entry["error"])
	}
	if src, _ := entry["source"].(string); !strings.Contains(src, "logger_test.go") {
		t.Errorf("expected source to point at the test file, got %q", src)
	}
}

func TestSetLevelStringFiltersDebug(t *testing.T) {
	var buf bytes.Buffer
	if err := InitWithFormat(FormatText, &buf); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := SetLevelString("warn"); err != nil {
		t.Fatalf("set level: %v", err)
	}
	defer func() { _ = SetLevelString("info") }()

	ctx := context.Background()
	Get().Debug(ctx, "hidden")
	Get().Info(ctx, "hidden too")
	Get().Warn(ctx, "shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug/info leaked at warn level: %q", out)
	}
	if !strings.Contains(out, "shown") {
		t.Errorf("warn line missing: %q", out)
	}

	if err := SetLevelString("loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestNopDiscards(t *testing.T) {
	l := Nop()
	l.Error(context.Background(), "nothing to see")
	if l.Named("x") == nil || l.With(String("k", "v")) == nil {
		t.Fatal("derived loggers must not be nil")
	}
}
