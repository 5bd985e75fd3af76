package recommend

import (
	"fmt"
	"sort"
	"time"

	"github.com/vanderheijden86/aios/pkg/config"
	"github.com/vanderheijden86/aios/pkg/model"
)

// Candidate is what a rule proposes. The engine turns surviving candidates
// into active recommendations.
type Candidate struct {
	ModuleID    model.ModuleID
	Title       string
	Description string
	Evidence    model.Evidence
	Priority    int
	DedupKey    string
}

// Rule is one recommendation heuristic. Condition is a cheap check whether
// the rule can apply to the snapshot at all; Generate picks at most one
// candidate. Rules must not modify the snapshot.
type Rule interface {
	Kind() model.RecommendationKind
	Condition(snap model.Snapshot, now time.Time) bool
	Generate(snap model.Snapshot, now time.Time) (Candidate, bool)
}

// Rule priorities. Higher sorts first in the active list.
const (
	PriorityOverdueTask  = 90
	PriorityMeetingNotes = 80
	PriorityMeetingPrep  = 70
	PriorityDueToday     = 60
	PriorityScheduleTask = 50
	PriorityStaleNote    = 20
)

// RuleConfig tunes the built-in rules.
type RuleConfig struct {
	MeetingLookback   time.Duration
	PrepWindow        time.Duration
	StaleNoteAfter    time.Duration
	DueTodayThreshold int
}

// DefaultRuleConfig returns the standard rule settings.
func DefaultRuleConfig() RuleConfig {
	return RuleConfig{
		MeetingLookback:   48 * time.Hour,
		PrepWindow:        time.Hour,
		StaleNoteAfter:    30 * 24 * time.Hour,
		DueTodayThreshold: 3,
	}
}

// RuleConfigFrom converts the file configuration.
func RuleConfigFrom(c config.RecommendConfig) RuleConfig {
	return RuleConfig{
		MeetingLookback:   c.MeetingLookback,
		PrepWindow:        c.PrepWindow,
		StaleNoteAfter:    c.StaleNoteAfter,
		DueTodayThreshold: c.DueTodayThreshold,
	}
}

// DefaultRules returns the built-in rules in evaluation order.
func DefaultRules(cfg RuleConfig) []Rule {
	d := DefaultRuleConfig()
	if cfg.MeetingLookback <= 0 {
		cfg.MeetingLookback = d.MeetingLookback
	}
	if cfg.PrepWindow <= 0 {
		cfg.PrepWindow = d.PrepWindow
	}
	if cfg.StaleNoteAfter <= 0 {
		cfg.StaleNoteAfter = d.StaleNoteAfter
	}
	if cfg.DueTodayThreshold <= 0 {
		cfg.DueTodayThreshold = d.DueTodayThreshold
	}
	return []Rule{
		MeetingNotesRule{Lookback: cfg.MeetingLookback},
		MeetingPrepRule{Window: cfg.PrepWindow},
		OverdueTaskRule{},
		DueTodayRule{Threshold: cfg.DueTodayThreshold},
		ScheduleTaskRule{},
		StaleNoteRule{After: cfg.StaleNoteAfter},
	}
}

// linkedEvents returns the ids of calendar events that already have a note.
func linkedEvents(notes []model.Note) map[string]bool {
	out := make(map[string]bool)
	for _, n := range notes {
		if n.LinkedEventID != "" && !n.Archived {
			out[n.LinkedEventID] = true
		}
	}
	return out
}

func activeMeetings(events []model.CalendarEvent) []model.CalendarEvent {
	out := make([]model.CalendarEvent, 0, len(events))
	for _, e := range events {
		if e.IsMeeting() && !e.Cancelled {
			out = append(out, e)
		}
	}
	return out
}

func meetingEnd(e model.CalendarEvent) time.Time {
	if e.End.IsZero() {
		return e.Start
	}
	return e.End
}

// MeetingNotesRule suggests capturing notes for a meeting that ended
// recently and has no linked note.
type MeetingNotesRule struct {
	Lookback time.Duration
}

func (MeetingNotesRule) Kind() model.RecommendationKind { return model.KindMeetingNotes }

func (r MeetingNotesRule) Condition(snap model.Snapshot, now time.Time) bool {
	return len(activeMeetings(snap.Events)) > 0
}

func (r MeetingNotesRule) Generate(snap model.Snapshot, now time.Time) (Candidate, bool) {
	linked := linkedEvents(snap.Notes)
	var best *model.CalendarEvent
	meetings := activeMeetings(snap.Events)
	for i := range meetings {
		e := &meetings[i]
		end := meetingEnd(*e)
		if linked[e.ID] || end.After(now) || now.Sub(end) > r.Lookback {
			continue
		}
		// Most recently ended first; id breaks ties.
		if best == nil || end.After(meetingEnd(*best)) || (end.Equal(meetingEnd(*best)) && e.ID < best.ID) {
			best = e
		}
	}
	if best == nil {
		return Candidate{}, false
	}
	return Candidate{
		ModuleID:    model.ModuleNotebook,
		Title:       fmt.Sprintf("Capture notes for %q", best.Title),
		Description: fmt.Sprintf("The meeting ended %s ago and has no notes yet.", roundDuration(now.Sub(meetingEnd(*best)))),
		Evidence:    model.Evidence{Module: model.ModuleCalendar, EntityID: best.ID, CapturedAt: now},
		Priority:    PriorityMeetingNotes,
		DedupKey:    model.DedupKey(model.KindMeetingNotes, best.ID),
	}, true
}

// MeetingPrepRule suggests preparing for a meeting that starts soon.
type MeetingPrepRule struct {
	Window time.Duration
}

func (MeetingPrepRule) Kind() model.RecommendationKind { return model.KindMeetingPrep }

func (r MeetingPrepRule) Condition(snap model.Snapshot, now time.Time) bool {
	return len(activeMeetings(snap.Events)) > 0
}

func (r MeetingPrepRule) Generate(snap model.Snapshot, now time.Time) (Candidate, bool) {
	linked := linkedEvents(snap.Notes)
	var best *model.CalendarEvent
	meetings := activeMeetings(snap.Events)
	for i := range meetings {
		e := &meetings[i]
		if linked[e.ID] || !e.Start.After(now) || e.Start.Sub(now) > r.Window {
			continue
		}
		if best == nil || e.Start.Before(best.Start) || (e.Start.Equal(best.Start) && e.ID < best.ID) {
			best = e
		}
	}
	if best == nil {
		return Candidate{}, false
	}
	return Candidate{
		ModuleID:    model.ModuleCalendar,
		Title:       fmt.Sprintf("Prepare for %q", best.Title),
		Description: fmt.Sprintf("Starts in %s with %d attendees.", roundDuration(best.Start.Sub(now)), len(best.Attendees)),
		Evidence:    model.Evidence{Module: model.ModuleCalendar, EntityID: best.ID, CapturedAt: now},
		Priority:    PriorityMeetingPrep,
		DedupKey:    model.DedupKey(model.KindMeetingPrep, best.ID),
	}, true
}

func taskPriorityRank(p model.TaskPriority) int {
	switch p {
	case model.TaskPriorityHigh:
		return 3
	case model.TaskPriorityMedium:
		return 2
	case model.TaskPriorityLow:
		return 1
	}
	return 0
}

// OverdueTaskRule surfaces the most urgent overdue task.
type OverdueTaskRule struct{}

func (OverdueTaskRule) Kind() model.RecommendationKind { return model.KindOverdueTask }

func (OverdueTaskRule) Condition(snap model.Snapshot, now time.Time) bool {
	return len(snap.Tasks) > 0
}

func (OverdueTaskRule) Generate(snap model.Snapshot, now time.Time) (Candidate, bool) {
	var overdue []model.Task
	for _, t := range snap.Tasks {
		if t.IsOverdue(now) {
			overdue = append(overdue, t)
		}
	}
	if len(overdue) == 0 {
		return Candidate{}, false
	}
	// Highest task priority, then longest overdue, then id.
	sort.Slice(overdue, func(i, j int) bool {
		a, b := overdue[i], overdue[j]
		if ra, rb := taskPriorityRank(a.Priority), taskPriorityRank(b.Priority); ra != rb {
			return ra > rb
		}
		if !a.DueDate.Equal(*b.DueDate) {
			return a.DueDate.Before(*b.DueDate)
		}
		return a.ID < b.ID
	})
	t := overdue[0]
	desc := fmt.Sprintf("Overdue by %s.", roundDuration(now.Sub(*t.DueDate)))
	if len(overdue) > 1 {
		desc = fmt.Sprintf("Overdue by %s. %d other tasks are also overdue.", roundDuration(now.Sub(*t.DueDate)), len(overdue)-1)
	}
	return Candidate{
		ModuleID:    model.ModuleTasks,
		Title:       fmt.Sprintf("Finish overdue task %q", t.Title),
		Description: desc,
		Evidence:    model.Evidence{Module: model.ModuleTasks, EntityID: t.ID, CapturedAt: now},
		Priority:    PriorityOverdueTask,
		DedupKey:    model.DedupKey(model.KindOverdueTask, t.ID),
	}, true
}

// DueTodayRule flags a heavy day: at least Threshold open tasks due
// before the end of the current day.
type DueTodayRule struct {
	Threshold int
}

func (DueTodayRule) Kind() model.RecommendationKind { return model.KindDueToday }

func (r DueTodayRule) Condition(snap model.Snapshot, now time.Time) bool {
	return len(snap.Tasks) >= r.Threshold
}

func (r DueTodayRule) Generate(snap model.Snapshot, now time.Time) (Candidate, bool) {
	y, m, d := now.Date()
	endOfDay := time.Date(y, m, d, 0, 0, 0, 0, now.Location()).AddDate(0, 0, 1)

	n := 0
	for _, t := range snap.Tasks {
		if t.Completed || t.DueDate == nil {
			continue
		}
		if !t.DueDate.Before(now) && t.DueDate.Before(endOfDay) {
			n++
		}
	}
	if n < r.Threshold {
		return Candidate{}, false
	}
	day := now.Format(time.DateOnly)
	return Candidate{
		ModuleID:    model.ModuleTasks,
		Title:       fmt.Sprintf("%d tasks due today", n),
		Description: "Review today's tasks and reschedule what won't fit.",
		Evidence:    model.Evidence{Module: model.ModuleTasks, EntityID: day, CapturedAt: now},
		Priority:    PriorityDueToday,
		DedupKey:    model.DedupKey(model.KindDueToday, day),
	}, true
}

// ScheduleTaskRule suggests giving the oldest high-priority task without a
// due date a slot.
type ScheduleTaskRule struct{}

func (ScheduleTaskRule) Kind() model.RecommendationKind { return model.KindScheduleTask }

func (ScheduleTaskRule) Condition(snap model.Snapshot, now time.Time) bool {
	return len(snap.Tasks) > 0
}

func (ScheduleTaskRule) Generate(snap model.Snapshot, now time.Time) (Candidate, bool) {
	var best *model.Task
	for i := range snap.Tasks {
		t := &snap.Tasks[i]
		if t.Completed || t.DueDate != nil || t.Priority != model.TaskPriorityHigh {
			continue
		}
		if best == nil || t.CreatedAt.Before(best.CreatedAt) || (t.CreatedAt.Equal(best.CreatedAt) && t.ID < best.ID) {
			best = t
		}
	}
	if best == nil {
		return Candidate{}, false
	}
	return Candidate{
		ModuleID:    model.ModuleTasks,
		Title:       fmt.Sprintf("Schedule %q", best.Title),
		Description: "High-priority task with no due date.",
		Evidence:    model.Evidence{Module: model.ModuleTasks, EntityID: best.ID, CapturedAt: now},
		Priority:    PriorityScheduleTask,
		DedupKey:    model.DedupKey(model.KindScheduleTask, best.ID),
	}, true
}

// StaleNoteRule suggests revisiting the note untouched for the longest time
// beyond After.
type StaleNoteRule struct {
	After time.Duration
}

func (StaleNoteRule) Kind() model.RecommendationKind { return model.KindStaleNote }

func (r StaleNoteRule) Condition(snap model.Snapshot, now time.Time) bool {
	return len(snap.Notes) > 0
}

func (r StaleNoteRule) Generate(snap model.Snapshot, now time.Time) (Candidate, bool) {
	var best *model.Note
	for i := range snap.Notes {
		n := &snap.Notes[i]
		touched := n.LastTouched()
		if n.Archived || touched.IsZero() || now.Sub(touched) < r.After {
			continue
		}
		if best == nil || touched.Before(best.LastTouched()) || (touched.Equal(best.LastTouched()) && n.ID < best.ID) {
			best = n
		}
	}
	if best == nil {
		return Candidate{}, false
	}
	return Candidate{
		ModuleID:    model.ModuleNotebook,
		Title:       fmt.Sprintf("Revisit %q", best.Title),
		Description: fmt.Sprintf("Untouched for %d days. Archive it or bring it up to date.", int(now.Sub(best.LastTouched()).Hours()/24)),
		Evidence:    model.Evidence{Module: model.ModuleNotebook, EntityID: best.ID, CapturedAt: now},
		Priority:    PriorityStaleNote,
		DedupKey:    model.DedupKey(model.KindStaleNote, best.ID),
	}, true
}

func roundDuration(d time.Duration) time.Duration {
	if d >= time.Hour {
		return d.Round(time.Hour)
	}
	return d.Round(time.Minute)
}
