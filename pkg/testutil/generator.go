// Package testutil provides deterministic fixtures for notes, tasks, calendar
// events and telemetry events.
package testutil

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/vanderheijden86/aios/pkg/model"
)

// GeneratorConfig controls fixture generation.
type GeneratorConfig struct {
	Seed     int64     // Random seed for determinism (0 = use current time)
	IDPrefix string    // Prefix for entity IDs (default: "T")
	BaseTime time.Time // "Now" for generated timestamps (default: fixed time)
}

// DefaultBaseTime is a Wednesday, 09:15 UTC.
var DefaultBaseTime = time.Date(2026, 3, 4, 9, 15, 0, 0, time.UTC)

// DefaultConfig returns a config suitable for most tests.
func DefaultConfig() GeneratorConfig {
	return GeneratorConfig{
		Seed:     42,
		IDPrefix: "T",
		BaseTime: DefaultBaseTime,
	}
}

// Generator creates fixtures.
type Generator struct {
	cfg GeneratorConfig
	rng *rand.Rand
}

// New creates a Generator with the given config.
func New(cfg GeneratorConfig) *Generator {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if cfg.BaseTime.IsZero() {
		cfg.BaseTime = DefaultBaseTime
	}
	if cfg.IDPrefix == "" {
		cfg.IDPrefix = "T"
	}
	return &Generator{cfg: cfg, rng: rand.New(rand.NewSource(seed))}
}

// NewDefault creates a Generator with DefaultConfig.
func NewDefault() *Generator {
	return New(DefaultConfig())
}

// Now returns the generator's base time.
func (g *Generator) Now() time.Time {
	return g.cfg.BaseTime
}

func (g *Generator) id(kind string, i int) string {
	return fmt.Sprintf("%s-%s-%03d", g.cfg.IDPrefix, kind, i)
}

func (g *Generator) hoursAgo(maxHours int) time.Time {
	return g.cfg.BaseTime.Add(-time.Duration(g.rng.Intn(maxHours+1)) * time.Hour)
}

var priorities = []model.TaskPriority{"", model.TaskPriorityLow, model.TaskPriorityMedium, model.TaskPriorityHigh}

// Tasks generates n tasks: roughly a third overdue, a third due later,
// the rest without a due date; about one in five completed.
func (g *Generator) Tasks(n int) []model.Task {
	tasks := make([]model.Task, n)
	for i := range tasks {
		t := model.Task{
			ID:        g.id("task", i),
			Title:     fmt.Sprintf("Task %d", i),
			Priority:  priorities[g.rng.Intn(len(priorities))],
			CreatedAt: g.hoursAgo(24 * 30),
		}
		switch g.rng.Intn(3) {
		case 0:
			due := g.cfg.BaseTime.Add(-time.Duration(1+g.rng.Intn(72)) * time.Hour)
			t.DueDate = &due
		case 1:
			due := g.cfg.BaseTime.Add(time.Duration(1+g.rng.Intn(72)) * time.Hour)
			t.DueDate = &due
		}
		if g.rng.Intn(5) == 0 {
			done := g.cfg.BaseTime
			t.Completed = true
			t.CompletedAt = &done
		}
		tasks[i] = t
	}
	return tasks
}

// Notes generates n notes touched up to 90 days ago.
func (g *Generator) Notes(n int) []model.Note {
	notes := make([]model.Note, n)
	for i := range notes {
		created := g.hoursAgo(24 * 120)
		updated := created
		if g.rng.Intn(2) == 0 {
			updated = g.hoursAgo(24 * 90)
			if updated.Before(created) {
				updated = created
			}
		}
		notes[i] = model.Note{
			ID:        g.id("note", i),
			Title:     fmt.Sprintf("Note %d", i),
			Content:   "generated",
			CreatedAt: created,
			UpdatedAt: updated,
		}
	}
	return notes
}

// Meetings generates n one-hour meetings starting between three days ago
// and six hours from now.
func (g *Generator) Meetings(n int) []model.CalendarEvent {
	events := make([]model.CalendarEvent, n)
	for i := range events {
		start := g.cfg.BaseTime.Add(time.Duration(g.rng.Intn(78*4)-72*4) * 15 * time.Minute)
		events[i] = model.CalendarEvent{
			ID:        g.id("event", i),
			Title:     fmt.Sprintf("Meeting %d", i),
			Start:     start,
			End:       start.Add(time.Hour),
			Attendees: []string{"alice", "bob"}[:1+g.rng.Intn(2)],
		}
	}
	return events
}

// Snapshot generates a snapshot with the given collection sizes. A random
// subset of past meetings gets a linked note.
func (g *Generator) Snapshot(notes, tasks, meetings int) model.Snapshot {
	snap := model.Snapshot{
		Notes:      g.Notes(notes),
		Tasks:      g.Tasks(tasks),
		Events:     g.Meetings(meetings),
		CapturedAt: g.cfg.BaseTime,
	}
	for _, e := range snap.Events {
		if len(snap.Notes) > 0 && e.End.Before(g.cfg.BaseTime) && g.rng.Intn(2) == 0 {
			snap.Notes[g.rng.Intn(len(snap.Notes))].LinkedEventID = e.ID
		}
	}
	return snap
}

// EventID formats a sequential telemetry event id ("evt-00042").
func EventID(i int) string {
	return fmt.Sprintf("evt-%05d", i)
}

// Events generates n default-mode telemetry events with sequential ids,
// one second apart, cycling through the taxonomy.
func (g *Generator) Events(n int) []model.Event {
	names := model.EventNames()
	events := make([]model.Event, n)
	for i := range events {
		at := g.cfg.BaseTime.Add(time.Duration(i) * time.Second)
		events[i] = model.Event{
			ID:         EventID(i),
			Name:       names[i%len(names)],
			Mode:       model.ModeDefault,
			OccurredAt: &at,
			SessionID:  "session-1",
			UserID:     "user-1",
			DeviceID:   "device-1",
			Props:      map[string]string{},
		}
	}
	return events
}

// RawProps returns caller-side properties for name: one plausible raw value
// for every allowlisted key. Category values are valid tokens, module_id is
// a registered module.
func (g *Generator) RawProps(name model.EventName) map[string]any {
	allow, ok := model.AllowedProps(name)
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(allow))
	for k := range allow {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	props := make(map[string]any, len(allow))
	for _, key := range keys {
		switch allow[key] {
		case model.PropCount:
			props[key] = g.rng.Intn(200)
		case model.PropLength:
			props[key] = g.rng.Intn(3000)
		case model.PropDuration:
			props[key] = time.Duration(g.rng.Intn(20*60)) * time.Second
		case model.PropFlag:
			props[key] = g.rng.Intn(2) == 0
		default:
			props[key] = fmt.Sprintf("cat_%d", g.rng.Intn(10))
		}
	}
	if _, ok := allow[model.PropModuleID]; ok {
		ids := model.DefaultModules().IDs()
		props[model.PropModuleID] = string(ids[g.rng.Intn(len(ids))])
	}
	return props
}

// ToJSONL renders snap in the import format: one record per line tagged
// with its kind.
func ToJSONL(snap model.Snapshot) string {
	var sb strings.Builder
	write := func(v any) {
		data, _ := json.Marshal(v)
		sb.Write(data)
		sb.WriteByte('\n')
	}
	for _, n := range snap.Notes {
		write(struct {
			Kind string `json:"kind"`
			model.Note
		}{"note", n})
	}
	for _, t := range snap.Tasks {
		write(struct {
			Kind string `json:"kind"`
			model.Task
		}{"task", t})
	}
	for _, e := range snap.Events {
		write(struct {
			Kind string `json:"kind"`
			model.CalendarEvent
		}{"event", e})
	}
	return sb.String()
}

// Quick helpers for common fixtures

// QuickSnapshot returns a small deterministic snapshot.
func QuickSnapshot() model.Snapshot {
	return NewDefault().Snapshot(8, 12, 6)
}

// QuickEvents returns n deterministic telemetry events.
func QuickEvents(n int) []model.Event {
	return NewDefault().Events(n)
}

// Empty returns an empty snapshot.
func Empty() model.Snapshot {
	return model.Snapshot{CapturedAt: DefaultBaseTime}
}
