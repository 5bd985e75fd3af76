package model

import (
	"fmt"
	"time"
)

// Mode is the identity mode an event was captured (or last re-sanitized) under.
type Mode string

const (
	// ModeDefault carries stable user/device identity and a full timestamp.
	ModeDefault Mode = "default"
	// ModePrivacy carries a rotating anonymous id and coarse (day, hour) time only.
	ModePrivacy Mode = "privacy"
)

// IsValid reports whether m is a known mode.
func (m Mode) IsValid() bool {
	return m == ModeDefault || m == ModePrivacy
}

// Event is a single sanitized telemetry record.
//
// Identity fields are mutually exclusive by mode: default-mode events carry
// UserID/DeviceID and OccurredAt, privacy-mode events carry AnonID and
// DayOfWeek/HourOfDay. An event captured in privacy mode and flushed after
// switching back to default mode keeps its anonymous SessionID and coarse
// time and has neither stable identity nor OccurredAt. Props only ever holds
// bucket labels, flags and identifier-like categories.
type Event struct {
	ID         string            `json:"event_id"`
	Name       EventName         `json:"event_name"`
	ModuleID   ModuleID          `json:"module_id,omitempty"`
	Mode       Mode              `json:"mode"`
	OccurredAt *time.Time        `json:"occurred_at,omitempty"`
	DayOfWeek  *int              `json:"day_of_week,omitempty"`
	HourOfDay  *int              `json:"hour_of_day,omitempty"`
	SessionID  string            `json:"session_id,omitempty"`
	UserID     string            `json:"user_id,omitempty"`
	DeviceID   string            `json:"device_id,omitempty"`
	AnonID     string            `json:"anon_id,omitempty"`
	Props      map[string]string `json:"props,omitempty"`
}

// Validate checks the structural invariants of an event.
func (e Event) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("event id cannot be empty")
	}
	if !e.Name.Known() {
		return fmt.Errorf("unknown event name: %q", e.Name)
	}
	if !e.Mode.IsValid() {
		return fmt.Errorf("invalid mode: %q", e.Mode)
	}
	switch e.Mode {
	case ModePrivacy:
		if e.UserID != "" || e.DeviceID != "" {
			return fmt.Errorf("privacy-mode event %s carries stable identity", e.ID)
		}
		if e.OccurredAt != nil {
			return fmt.Errorf("privacy-mode event %s carries a full timestamp", e.ID)
		}
	case ModeDefault:
		if e.AnonID != "" {
			return fmt.Errorf("default-mode event %s carries an anonymous id", e.ID)
		}
	}
	if e.DayOfWeek != nil && (*e.DayOfWeek < 0 || *e.DayOfWeek > 6) {
		return fmt.Errorf("day_of_week out of range: %d", *e.DayOfWeek)
	}
	if e.HourOfDay != nil && (*e.HourOfDay < 0 || *e.HourOfDay > 23) {
		return fmt.Errorf("hour_of_day out of range: %d", *e.HourOfDay)
	}
	return nil
}

// Clone returns a deep copy of the event.
func (e Event) Clone() Event {
	out := e
	if e.OccurredAt != nil {
		t := *e.OccurredAt
		out.OccurredAt = &t
	}
	if e.DayOfWeek != nil {
		d := *e.DayOfWeek
		out.DayOfWeek = &d
	}
	if e.HourOfDay != nil {
		h := *e.HourOfDay
		out.HourOfDay = &h
	}
	if e.Props != nil {
		out.Props = make(map[string]string, len(e.Props))
		for k, v := range e.Props {
			out.Props[k] = v
		}
	}
	return out
}
