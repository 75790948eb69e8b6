package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	logger, err := New(&buf, slog.LevelInfo, FormatJSON)
	if err != nil {
		t.Fatal(err)
	}

	logger.Debug("hidden")
	logger.Info("ledger rehydrated", "accounts", 3)

	var line map[string]any
	err = json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line)
	if err != nil {
		t.Fatalf("not a single json line: %q: %v", buf.String(), err)
	}

	if line["msg"] != "ledger rehydrated" || line["accounts"] != float64(3) {
		t.Fatalf("unexpected record: %v", line)
	}

	buf.Reset()

	text, err := New(&buf, slog.LevelDebug, "TEXT")
	if err != nil {
		t.Fatal(err)
	}

	text.Debug("shown")
	if !strings.Contains(buf.String(), "msg=shown") {
		t.Fatalf("text output = %q", buf.String())
	}

	_, err = New(&buf, slog.LevelInfo, "xml")
	if err == nil {
		t.Fatal("expected error for unknown format")
	}
}
