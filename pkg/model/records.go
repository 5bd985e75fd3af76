package model

import (
	"fmt"
	"time"
)

// Note is a notebook entry.
type Note struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Content       string    `json:"content"`
	Tags          []string  `json:"tags,omitempty"`
	LinkedEventID string    `json:"linked_event_id,omitempty"`
	Archived      bool      `json:"archived,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Validate checks the minimal invariants of a note.
func (n Note) Validate() error {
	if n.ID == "" {
		return fmt.Errorf("note id cannot be empty")
	}
	return nil
}

// LastTouched returns UpdatedAt, falling back to CreatedAt.
func (n Note) LastTouched() time.Time {
	if n.UpdatedAt.IsZero() {
		return n.CreatedAt
	}
	return n.UpdatedAt
}

// TaskPriority is the user-assigned urgency of a task.
type TaskPriority string

const (
	TaskPriorityLow    TaskPriority = "low"
	TaskPriorityMedium TaskPriority = "medium"
	TaskPriorityHigh   TaskPriority = "high"
)

// Task is a to-do item.
type Task struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Priority    TaskPriority `json:"priority,omitempty"`
	DueDate     *time.Time   `json:"due_date,omitempty"`
	Completed   bool         `json:"completed"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
	ListID      string       `json:"list_id,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

// Validate checks the minimal invariants of a task.
func (t Task) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("task id cannot be empty")
	}
	return nil
}

// IsOverdue reports whether the task is open and past its due date.
func (t Task) IsOverdue(now time.Time) bool {
	return !t.Completed && t.DueDate != nil && t.DueDate.Before(now)
}

// CalendarEvent is a calendar entry (meeting, appointment).
type CalendarEvent struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Location  string    `json:"location,omitempty"`
	Attendees []string  `json:"attendees,omitempty"`
	Cancelled bool      `json:"cancelled,omitempty"`
}

// Validate checks the minimal invariants of a calendar event.
func (e CalendarEvent) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("calendar event id cannot be empty")
	}
	if e.Start.IsZero() {
		return fmt.Errorf("calendar event %s has no start", e.ID)
	}
	if !e.End.IsZero() && e.End.Before(e.Start) {
		return fmt.Errorf("calendar event %s ends before it starts", e.ID)
	}
	return nil
}

// IsMeeting reports whether the event involves other people.
func (e CalendarEvent) IsMeeting() bool {
	return len(e.Attendees) > 0
}

// Snapshot is a read-only view of the user's data at a point in time.
type Snapshot struct {
	Notes      []Note          `json:"notes" hash:"set"`
	Tasks      []Task          `json:"tasks" hash:"set"`
	Events     []CalendarEvent `json:"events" hash:"set"`
	CapturedAt time.Time       `json:"captured_at" hash:"ignore"`
}
