package app

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestStripANSI(t *testing.T) {
	t.Parallel()

	in := ansiBlue + "INFO" + ansiReset + " plain " + ansiRed + "ERR" + ansiReset
	got := stripANSI(in)
	want := "INFO plain ERR"
	if got != want {
		t.Fatalf("stripANSI()=%q want=%q", got, want)
	}
}

func TestPrettyHandler_PlainOutput(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(newPrettyHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}, false))

	log.With("component", "api").Info("http.request",
		"method", "get",
		"status", 404,
		"status_class", "4xx",
		"duration_ms", int64(12),
		"user_agent", "curl 8",
		slog.Group("share", "scope", "single"),
	)
	log.Debug("hidden")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug line must be filtered: %q", out)
	}
	if strings.Contains(out, "\x1b[") {
		t.Fatalf("unexpected ANSI codes in plain mode: %q", out)
	}
	for _, want := range []string{
		"[INFO] http.request",
		"component=api",
		"method=GET",
		"status=404",
		"class=4xx",
		"duration=12ms",
		`user_agent="curl 8"`,
		"share.scope=single",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("output %q missing %q", out, want)
		}
	}
}

func TestPrettyHandler_ColorStripsToPlain(t *testing.T) {
	t.Parallel()

	var colored, plain bytes.Buffer
	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	for _, tc := range []struct {
		buf   *bytes.Buffer
		color bool
	}{{&colored, true}, {&plain, false}} {
		h := newPrettyHandler(tc.buf, nil, tc.color)
		r := slog.NewRecord(ts, slog.LevelError, "share.resolve.fail", 0)
		r.AddAttrs(slog.String("result", "server_error"), slog.Int("status", 503))
		if err := h.Handle(t.Context(), r); err != nil {
			t.Fatalf("handle: %v", err)
		}
	}

	if !strings.Contains(colored.String(), ansiRed) {
		t.Fatalf("expected red in colored output: %q", colored.String())
	}
	if got, want := stripANSI(colored.String()), plain.String(); got != want {
		t.Fatalf("stripped=%q want=%q", got, want)
	}
}

func TestStatusClassAndQuote(t *testing.T) {
	t.Parallel()

	if got := statusClass(42); got != "unknown" {
		t.Fatalf("statusClass(42)=%q", got)
	}
	if got := quoteIfNeeded(""); got != `""` {
		t.Fatalf("quoteIfNeeded empty=%q", got)
	}
	if got := quoteIfNeeded("a=b"); got != `"a=b"` {
		t.Fatalf("quoteIfNeeded a=b => %q", got)
	}
}
