package testutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vanderheijden86/aios/pkg/model"
)

// AssertNoDuplicateEventIDs verifies all event IDs are unique.
func AssertNoDuplicateEventIDs(t *testing.T, events []model.Event) {
	t.Helper()
	seen := make(map[string]bool)
	for _, e := range events {
		if seen[e.ID] {
			t.Errorf("duplicate event ID: %s", e.ID)
		}
		seen[e.ID] = true
	}
}

// AssertEventsValid verifies all events pass validation.
func AssertEventsValid(t *testing.T, events []model.Event) {
	t.Helper()
	for i, e := range events {
		if err := e.Validate(); err != nil {
			t.Errorf("event %d (%s) invalid: %v", i, e.ID, err)
		}
	}
}

// AssertPropsAllowlisted verifies every property key is registered for its
// event name.
func AssertPropsAllowlisted(t *testing.T, events []model.Event) {
	t.Helper()
	for _, e := range events {
		allow, ok := model.AllowedProps(e.Name)
		if !ok {
			t.Errorf("event %s has unknown name %q", e.ID, e.Name)
			continue
		}
		for k := range e.Props {
			if _, ok := allow[k]; !ok {
				t.Errorf("event %s (%s) carries non-allowlisted prop %q", e.ID, e.Name, k)
			}
		}
	}
}

// AssertEventOrder verifies events appear with exactly the given IDs, in order.
func AssertEventOrder(t *testing.T, events []model.Event, ids ...string) {
	t.Helper()
	got := EventIDs(events)
	if strings.Join(got, ",") != strings.Join(ids, ",") {
		t.Errorf("event order mismatch:\nexpected: %v\ngot:      %v", ids, got)
	}
}

// AssertSingleActivePerKey verifies at most one active recommendation
// exists per dedup key.
func AssertSingleActivePerKey(t *testing.T, recs []model.Recommendation) {
	t.Helper()
	seen := make(map[string]string)
	for _, r := range recs {
		if r.Status != model.StatusActive {
			continue
		}
		if other, ok := seen[r.DedupKey]; ok {
			t.Errorf("dedup key %s active on both %s and %s", r.DedupKey, other, r.ID)
		}
		seen[r.DedupKey] = r.ID
	}
}

// AssertJSONEqual compares two values by their JSON representation.
func AssertJSONEqual(t *testing.T, expected, actual any) {
	t.Helper()
	e, err := json.MarshalIndent(expected, "", "  ")
	if err != nil {
		t.Fatalf("marshal expected: %v", err)
	}
	a, err := json.MarshalIndent(actual, "", "  ")
	if err != nil {
		t.Fatalf("marshal actual: %v", err)
	}
	if string(e) != string(a) {
		t.Errorf("JSON mismatch:\nexpected:\n%s\n\nactual:\n%s", e, a)
	}
}

// WriteJSONFile writes v as JSON to dir/name and returns the path.
func WriteJSONFile(t *testing.T, dir, name string, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal %s: %v", name, err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// EventIDs extracts IDs from events.
func EventIDs(events []model.Event) []string {
	ids := make([]string, len(events))
	for i, e := range events {
		ids[i] = e.ID
	}
	return ids
}

// CountByStatus counts recommendations by status.
func CountByStatus(recs []model.Recommendation) map[model.RecommendationStatus]int {
	counts := make(map[model.RecommendationStatus]int)
	for _, r := range recs {
		counts[r.Status]++
	}
	return counts
}
