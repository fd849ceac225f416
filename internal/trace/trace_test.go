package trace

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestLevelScopes(t *testing.T) {
	cases := []struct {
		level Level
		scope Scope
		want  bool
	}{
		{LevelOff, ScopeDriver, false},
		{LevelError, ScopeDriver, false},
		{LevelPhase, ScopePass, true},
		{LevelPhase, ScopeFamily, false},
		{LevelDetail, ScopeFamily, true},
		{LevelDetail, ScopeMethod, false},
		{LevelDebug, ScopeMethod, true},
	}
	for _, tc := range cases {
		if got := tc.level.ShouldEmit(tc.scope); got != tc.want {
			t.Fatalf("%s.ShouldEmit(%s) = %v, want %v", tc.level, tc.scope, got, tc.want)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
	if l, _ := ParseLevel("DETAIL"); l != LevelDetail {
		t.Fatalf("level parsing must ignore case")
	}
}

func TestStartPropagatesParent(t *testing.T) {
	ring := NewRingTracer(16, LevelDebug)
	ctx := WithTracer(context.Background(), ring)
	ctx, pass := Start(ctx, ScopePass, "ambiguity")
	_, fam := StartFamily(ctx, "add")
	fam.WithExtra("methods", "3").End("")
	Point(ctx, ScopeMethod, "overlap", "add/add")
	pass.End("done")

	events := ring.Snapshot()
	if len(events) != 5 {
		t.Fatalf("expected 5 events, got %d", len(events))
	}
	if events[1].Name != "family:add" || events[1].Scope != ScopeFamily {
		t.Fatalf("unexpected family begin event %+v", events[1])
	}
	if events[1].ParentID != pass.ID() || events[3].ParentID != pass.ID() {
		t.Fatalf("children must point at the pass span")
	}
	if events[2].Kind != KindSpanEnd || events[2].Extra["methods"] != "3" {
		t.Fatalf("unexpected family end event %+v", events[2])
	}
	for i := 1; i < len(events); i++ {
		if events[i].Seq <= events[i-1].Seq {
			t.Fatalf("sequence numbers must increase")
		}
	}
}

func TestRingWrapsAround(t *testing.T) {
	ring := NewRingTracer(2, LevelPhase)
	for _, name := range []string{"a", "b", "c"} {
		Begin(ring, ScopePass, name, 0)
	}
	Begin(ring, ScopeMethod, "filtered", 0)
	events := ring.Snapshot()
	if len(events) != 2 || events[0].Name != "b" || events[1].Name != "c" {
		t.Fatalf("unexpected ring contents %+v", events)
	}
}

func TestBothModeFeedsStreamAndRing(t *testing.T) {
	var out bytes.Buffer
	tr, err := New(Config{Level: LevelPhase, Mode: ModeBoth, Output: &out, RingSize: 8})
	if err != nil {
		t.Fatal(err)
	}
	Begin(tr, ScopePass, "calls", 0).End("")
	ring := Ring(tr)
	if ring == nil || ring.Len() != 2 {
		t.Fatalf("expected the ring to hold both events")
	}
	if strings.Count(out.String(), "calls") != 2 {
		t.Fatalf("expected both events streamed, got %q", out.String())
	}
	var dump bytes.Buffer
	if err := ring.Dump(&dump, FormatText); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(dump.String(), "→ calls") || !strings.Contains(dump.String(), "← calls") {
		t.Fatalf("unexpected dump %q", dump.String())
	}

	if Ring(NewStreamTracer(&out, LevelPhase, FormatText)) != nil {
		t.Fatalf("a stream tracer has no ring")
	}
	if _, err := ParseMode("disk"); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}

func TestStreamFormats(t *testing.T) {
	var text bytes.Buffer
	tr, err := New(Config{Level: LevelPhase, Output: &text})
	if err != nil {
		t.Fatal(err)
	}
	sp := Begin(tr, ScopePass, "calls", 0)
	sp.WithExtra("b", "2").WithExtra("a", "1").End("ok")
	lines := strings.Split(strings.TrimSpace(text.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %q", text.String())
	}
	if !strings.Contains(lines[1], "← calls (ok) {a=1, b=2}") {
		t.Fatalf("unexpected end line %q", lines[1])
	}

	var nd bytes.Buffer
	tr = NewStreamTracer(&nd, LevelPhase, FormatNDJSON)
	Begin(tr, ScopeDriver, "check", 0).End("")
	for _, line := range strings.Split(strings.TrimSpace(nd.String()), "\n") {
		var ev map[string]any
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			t.Fatalf("invalid NDJSON line %q: %v", line, err)
		}
		if ev["scope"] != "driver" {
			t.Fatalf("unexpected scope in %q", line)
		}
	}

	off, err := New(Config{Level: LevelOff})
	if err != nil || off.Enabled() {
		t.Fatalf("LevelOff must yield the nop tracer")
	}
}
