package logging

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", DebugLevel},
		{"INFO", InfoLevel},
		{" warn ", WarnLevel},
		{"warning", WarnLevel},
		{"error", ErrorLevel},
		{"bogus", InfoLevel},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestWriterLoggerLevelsAndFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger(&buf, InfoLevel)

	l.Debug("hidden")
	l.WithFields(Fields{"component": "test", "a": 1}).Info("shown", Fields{"b": 2})

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug line written below level: %q", out)
	}
	if !strings.Contains(out, "[INFO] shown a=1 b=2 component=test") {
		t.Errorf("unexpected line: %q", out)
	}
}

func TestContextFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger(&buf, DebugLevel)

	ctx := ContextWithFields(context.Background(), Fields{"request_id": "r1"})
	ctx = ContextWithFields(ctx, Fields{"track": "a"})
	l.WithContext(ctx).Debug("hello")

	out := buf.String()
	if !strings.Contains(out, "request_id=r1") || !strings.Contains(out, "track=a") {
		t.Errorf("context fields missing: %q", out)
	}
	if FieldsFromContext(context.Background()) != nil {
		t.Errorf("FieldsFromContext on empty ctx should be nil")
	}
}
