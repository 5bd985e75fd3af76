package loader

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vanderheijden86/aios/pkg/testutil"
)

func TestParseSnapshot(t *testing.T) {
	input := "\xEF\xBB\xBF" + `{"kind":"note","id":"n1","title":"Standup","created_at":"2026-03-01T09:00:00Z"}
{"kind":"task","id":"t1","title":"Ship","priority":"high","due_date":"2026-03-04T17:00:00Z"}

{"kind":"Events","id":"e1","title":"Sync","start":"2026-03-04T10:00:00Z","end":"2026-03-04T11:00:00Z","attendees":["a"]}
{"kind":"task","title":"missing id"}
{"kind":"email","id":"m1"}
not json
`
	var warnings []string
	snap, stats, err := ParseSnapshot(strings.NewReader(input), ParseOptions{
		WarningHandler: func(msg string) { warnings = append(warnings, msg) },
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(snap.Notes) != 1 || snap.Notes[0].ID != "n1" {
		t.Errorf("unexpected notes %+v", snap.Notes)
	}
	if len(snap.Tasks) != 1 || snap.Tasks[0].DueDate == nil {
		t.Errorf("unexpected tasks %+v", snap.Tasks)
	}
	if len(snap.Events) != 1 || !snap.Events[0].IsMeeting() {
		t.Errorf("unexpected events %+v", snap.Events)
	}
	if stats != (Stats{Notes: 1, Tasks: 1, Events: 1, Skipped: 3}) {
		t.Errorf("unexpected stats %+v", stats)
	}
	if len(warnings) != 3 {
		t.Fatalf("expected 3 warnings, got %v", warnings)
	}
	if !strings.Contains(warnings[0], "line 5") || !strings.Contains(warnings[1], `unknown kind "email"`) {
		t.Errorf("unexpected warnings %v", warnings)
	}
}

func TestParseSnapshotSkipsLongLines(t *testing.T) {
	long := `{"kind":"note","id":"big","content":"` + strings.Repeat("x", 200) + `"}`
	input := long + "\n" + `{"kind":"note","id":"small"}` + "\n"

	var warned bool
	snap, stats, err := ParseSnapshot(strings.NewReader(input), ParseOptions{
		BufferSize:     64,
		WarningHandler: func(string) { warned = true },
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !warned || stats.Skipped != 1 {
		t.Errorf("expected the long line to be skipped, stats %+v", stats)
	}
	if len(snap.Notes) != 1 || snap.Notes[0].ID != "small" {
		t.Errorf("unexpected notes %+v", snap.Notes)
	}
}

func TestLoadSnapshotFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "export.jsonl")
	if err := os.WriteFile(path, []byte(`{"kind":"task","id":"t1","title":"Ship"}`+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	snap, stats, err := LoadSnapshotFromFile(path, ParseOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if stats.Tasks != 1 || len(snap.Tasks) != 1 {
		t.Errorf("unexpected result %+v", stats)
	}

	if _, _, err := LoadSnapshotFromFile(filepath.Join(t.TempDir(), "missing.jsonl"), ParseOptions{}); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestNormalizeKind(t *testing.T) {
	tests := map[string]string{
		"note":           KindNote,
		" Tasks ":        KindTask,
		"calendar_event": KindEvent,
		"email":          "email",
	}
	for in, want := range tests {
		if got := normalizeKind(in); got != want {
			t.Errorf("normalizeKind(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseSnapshotRoundTripsGeneratedExport(t *testing.T) {
	want := testutil.QuickSnapshot()
	snap, stats, err := ParseSnapshot(strings.NewReader(testutil.ToJSONL(want)), ParseOptions{
		WarningHandler: func(msg string) { t.Errorf("unexpected warning: %s", msg) },
	})
	if err != nil {
		t.Fatal(err)
	}
	if stats.Notes != len(want.Notes) || stats.Tasks != len(want.Tasks) || stats.Events != len(want.Events) {
		t.Errorf("unexpected stats %+v", stats)
	}
	snap.CapturedAt = want.CapturedAt
	testutil.AssertJSONEqual(t, want, snap)
}
