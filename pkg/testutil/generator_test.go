package testutil

import (
	"reflect"
	"testing"

	"github.com/vanderheijden86/aios/pkg/model"
)

func TestGeneratorIsDeterministic(t *testing.T) {
	a := NewDefault().Snapshot(10, 20, 5)
	b := NewDefault().Snapshot(10, 20, 5)
	AssertJSONEqual(t, a, b)

	pa := NewDefault().RawProps(model.EventSearchPerformed)
	pb := NewDefault().RawProps(model.EventSearchPerformed)
	if !reflect.DeepEqual(pa, pb) {
		t.Errorf("RawProps not deterministic: %v vs %v", pa, pb)
	}
}

func TestSnapshotRecordsAreValid(t *testing.T) {
	snap := QuickSnapshot()
	if len(snap.Notes) != 8 || len(snap.Tasks) != 12 || len(snap.Events) != 6 {
		t.Fatalf("unexpected sizes: %d notes, %d tasks, %d events", len(snap.Notes), len(snap.Tasks), len(snap.Events))
	}
	for _, n := range snap.Notes {
		if err := n.Validate(); err != nil {
			t.Errorf("note invalid: %v", err)
		}
		if n.UpdatedAt.Before(n.CreatedAt) {
			t.Errorf("note %s updated before created", n.ID)
		}
	}
	for _, task := range snap.Tasks {
		if err := task.Validate(); err != nil {
			t.Errorf("task invalid: %v", err)
		}
	}
	for _, e := range snap.Events {
		if err := e.Validate(); err != nil {
			t.Errorf("event invalid: %v", err)
		}
		if !e.IsMeeting() {
			t.Errorf("event %s has no attendees", e.ID)
		}
	}
}

func TestEvents(t *testing.T) {
	events := QuickEvents(40)
	AssertNoDuplicateEventIDs(t, events)
	AssertEventsValid(t, events)
	AssertPropsAllowlisted(t, events)

	if events[0].ID != "evt-00000" || events[39].ID != EventID(39) {
		t.Errorf("unexpected ids %s..%s", events[0].ID, events[39].ID)
	}
	AssertEventOrder(t, events[:3], "evt-00000", "evt-00001", "evt-00002")

	seen := make(map[model.EventName]bool)
	for _, e := range events {
		seen[e.Name] = true
	}
	if len(seen) != len(model.EventNames()) {
		t.Errorf("expected every event name, got %d", len(seen))
	}
}

func TestRawPropsCoversAllowlist(t *testing.T) {
	gen := NewDefault()
	for _, name := range model.EventNames() {
		props := gen.RawProps(name)
		allow, _ := model.AllowedProps(name)
		if len(props) != len(allow) {
			t.Errorf("%s: %d props for %d allowlisted keys", name, len(props), len(allow))
		}
		if id, ok := props[model.PropModuleID]; ok {
			if !model.IsKnownModule(model.DefaultModules(), model.ModuleID(id.(string))) {
				t.Errorf("%s: unknown module %v", name, id)
			}
		}
	}
	if gen.RawProps("not_an_event") != nil {
		t.Error("expected nil props for unknown event")
	}
}

func TestAssertSingleActivePerKey(t *testing.T) {
	recs := []model.Recommendation{
		{ID: "1", DedupKey: "k", Status: model.StatusActive},
		{ID: "2", DedupKey: "k", Status: model.StatusDeclined},
		{ID: "3", DedupKey: "j", Status: model.StatusActive},
	}
	AssertSingleActivePerKey(t, recs)

	counts := CountByStatus(recs)
	if counts[model.StatusActive] != 2 || counts[model.StatusDeclined] != 1 {
		t.Errorf("unexpected counts %v", counts)
	}
}

func TestWriteJSONFile(t *testing.T) {
	path := WriteJSONFile(t, t.TempDir(), "snap.json", Empty())
	if path == "" {
		t.Fatal("expected a path")
	}
}
