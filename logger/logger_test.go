package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestConfigureInvalidValues(t *testing.T) {
	l := Logger()
	if err := l.Configure("nope", "json", "stdout", 0); err == nil {
		t.Fatalf("expected error for invalid level")
	}
	if err := l.Configure("info", "xml", "stdout", 0); err == nil {
		t.Fatalf("expected error for invalid format")
	}
}

func TestJSONOutputFields(t *testing.T) {
	l := Logger()
	if err := l.Configure("debug", "json", "stdout", 0); err != nil {
		t.Fatalf("configure: %v", err)
	}

	var buf bytes.Buffer
	l.SetOutput(&buf)

	l.WithComponent("ingest").WithFields(Fields{"player_id": 3}).Info("batch accepted")

	line := strings.TrimSpace(buf.String())
	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(line), &payload); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, line)
	}
	if payload["component"] != "ingest" {
		t.Errorf("missing component field: %v", payload)
	}
	if payload["message"] != "batch accepted" {
		t.Errorf("unexpected message: %v", payload["message"])
	}
	if _, ok := payload["timestamp"]; !ok {
		t.Errorf("missing timestamp field: %v", payload)
	}
}
