package log

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLoggerAddsComponent(t *testing.T) {
	var buf bytes.Buffer
	l := NewText(&buf, slog.LevelInfo, ComponentReminder)

	l.InfoContext(context.Background(), "run started", FieldRunID, "abc")

	out := buf.String()
	if !strings.Contains(out, "component=reminder") {
		t.Errorf("expected component field, got %q", out)
	}
	if !strings.Contains(out, "run_id=abc") {
		t.Errorf("expected run_id field, got %q", out)
	}
}

func TestLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewText(&buf, slog.LevelWarn, ComponentApp)
	l.Info("hidden")
	l.Debug("hidden")
	if buf.Len() != 0 {
		t.Errorf("expected nothing below warn, got %q", buf.String())
	}
	l.Warn("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Errorf("expected warn record, got %q", buf.String())
	}
}

func TestLogFieldsBuilder(t *testing.T) {
	f := NewFields().
		WithComponent(ComponentSummary).
		WithOrganization("org-1").
		WithObligations(2, 1).
		WithError(errors.New("boom")).
		WithError(nil)

	if f[FieldComponent] != ComponentSummary {
		t.Errorf("component = %v", f[FieldComponent])
	}
	if f[FieldOrganizationID] != "org-1" {
		t.Errorf("organization = %v", f[FieldOrganizationID])
	}
	if f[FieldInvoicesCount] != 2 || f[FieldBindingsCount] != 1 {
		t.Errorf("counts = %v/%v", f[FieldInvoicesCount], f[FieldBindingsCount])
	}
	if f[FieldError] != "boom" {
		t.Errorf("error = %v", f[FieldError])
	}
	if got := len(f.ToSlice()); got != 2*len(f) {
		t.Errorf("ToSlice length = %d, want %d", got, 2*len(f))
	}
}

func TestLogReminderRunLevel(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(NewText(&buf, slog.LevelInfo, ComponentReminder))

	sl.LogReminderRun(context.Background(), "scheduled", false, 0, 0, 1)
	if !strings.Contains(buf.String(), "level=WARN") {
		t.Errorf("failed run should log at warn, got %q", buf.String())
	}

	buf.Reset()
	sl.LogReminderRun(context.Background(), "manual", true, 3, 2, 0)
	if !strings.Contains(buf.String(), "level=INFO") || !strings.Contains(buf.String(), "reminders_sent=3") {
		t.Errorf("unexpected record %q", buf.String())
	}
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	l := FromContext(context.Background())
	if l == nil || l.Component() != "unknown" {
		t.Fatalf("expected default logger with unknown component, got %+v", l)
	}
}

func TestNewContextRoundTrip(t *testing.T) {
	l := NewText(&bytes.Buffer{}, slog.LevelInfo, ComponentHTTP)
	got := FromContext(NewContext(context.Background(), l))
	if got != l {
		t.Fatalf("expected the stored logger back")
	}
}
