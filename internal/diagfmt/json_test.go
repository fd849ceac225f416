package diagfmt

import (
	"bytes"
	"encoding/json"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestJSONBasic(t *testing.T) {
	bag, fs := sampleBag(t, "/tmp/project/test.md")
	var buf bytes.Buffer
	err := JSON(&buf, bag, fs, JSONOpts{IncludePositions: true, PathMode: PathModeBasename, IncludeNotes: true})
	if err != nil {
		t.Fatalf("JSON() error: %v", err)
	}
	var out DiagnosticsOutput
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("invalid JSON output: %v\n%s", err, buf.String())
	}
	if out.Count != 1 || len(out.Diagnostics) != 1 {
		t.Fatalf("expected one diagnostic, got %+v", out)
	}
	d := out.Diagnostics[0]
	if d.Severity != "ERROR" || d.Code != "DSP5001" || d.Title == "" {
		t.Errorf("unexpected header %+v", d)
	}
	want := LocationJSON{File: "test.md", StartByte: 29, EndByte: 37, StartLine: 2, StartCol: 6, EndLine: 2, EndCol: 14}
	if d.Location != want {
		t.Errorf("location = %+v, want %+v", d.Location, want)
	}
	if len(d.Notes) != 1 || d.Notes[0].Location.StartLine != 1 {
		t.Errorf("unexpected notes %+v", d.Notes)
	}
}

func TestJSONWithoutPositionsOrNotes(t *testing.T) {
	bag, fs := sampleBag(t, "test.md")
	out := BuildDiagnosticsOutput(bag, fs, JSONOpts{})
	d := out.Diagnostics[0]
	if d.Location.StartLine != 0 || d.Notes != nil {
		t.Fatalf("positions and notes must be omitted: %+v", d)
	}
}

func TestJSONMax(t *testing.T) {
	bag, fs := sampleBag(t, "test.md")
	bag.Add(bag.Items()[0])
	out := BuildDiagnosticsOutput(bag, fs, JSONOpts{Max: 1})
	if out.Count != 1 || out.Dropped != 1 {
		t.Fatalf("expected one shown and one dropped, got count=%d dropped=%d", out.Count, out.Dropped)
	}
}

func TestYAML(t *testing.T) {
	bag, fs := sampleBag(t, "test.md")
	var buf bytes.Buffer
	if err := YAML(&buf, bag, fs, JSONOpts{IncludePositions: true}); err != nil {
		t.Fatalf("YAML() error: %v", err)
	}
	var out DiagnosticsOutput
	if err := yaml.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("invalid YAML: %v\n%s", err, buf.String())
	}
	if out.Count != 1 || out.Diagnostics[0].Code != "DSP5001" || out.Diagnostics[0].Location.StartCol != 6 {
		t.Fatalf("unexpected YAML round trip %+v", out)
	}
}
