package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/fakturenn/invoicebridge/internal/core"
)

func TestInfofWritesStructuredRecord(t *testing.T) {
	var buf bytes.Buffer
	logger := New(slog.New(slog.NewJSONHandler(&buf, nil)))

	logger.Infof("job %d started", 42)

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("unmarshal log line: %v", err)
	}
	if record["msg"] != "job 42 started" {
		t.Errorf("msg = %v, want %q", record["msg"], "job 42 started")
	}
	if record["level"] != "INFO" {
		t.Errorf("level = %v, want INFO", record["level"])
	}
}

func TestLoggerSatisfiesCoreLogger(t *testing.T) {
	var _ core.Logger = New(nil)
}
