package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]logrus.Level{
		"debug":   logrus.DebugLevel,
		" WARN ":  logrus.WarnLevel,
		"error":   logrus.ErrorLevel,
		"":        logrus.InfoLevel,
		"verbose": logrus.InfoLevel,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestJSONOutsideLocal(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("LOG_LEVEL", "info")

	var buf bytes.Buffer
	l := NewTo(&buf)
	l.WithError(errors.New("boom")).Info("failed")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON output, got %q: %v", buf.String(), err)
	}
	if entry["error"] != "boom" || entry["service"] != "marketlens" || entry["msg"] != "failed" {
		t.Errorf("unexpected entry: %v", entry)
	}
}

func TestWithRequest(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")

	var buf bytes.Buffer
	l := NewTo(&buf)

	req := httptest.NewRequest("POST", "/api/filter", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	l.WithRequest(req).Info("handled")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if entry["req_id"] != "abc-123" || entry["path"] != "/api/filter" || entry["method"] != "POST" {
		t.Errorf("unexpected entry: %v", entry)
	}

	fresh := httptest.NewRequest("GET", "/healthz", nil)
	if id := RequestID(fresh); len(id) != 36 {
		t.Errorf("expected a generated uuid, got %q", id)
	}
}

func TestDebugSuppressedAtInfo(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("LOG_LEVEL", "")

	var buf bytes.Buffer
	NewTo(&buf).Debug("hidden")
	if buf.Len() != 0 {
		t.Errorf("debug line leaked: %q", buf.String())
	}
}
