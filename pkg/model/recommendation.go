package model

import (
	"fmt"
	"time"
)

// RecommendationKind is the rule type that produced a recommendation.
type RecommendationKind string

const (
	KindMeetingNotes RecommendationKind = "meeting_notes"
	KindMeetingPrep  RecommendationKind = "meeting_prep"
	KindOverdueTask  RecommendationKind = "overdue_task"
	KindDueToday     RecommendationKind = "due_today"
	KindScheduleTask RecommendationKind = "schedule_task"
	KindStaleNote    RecommendationKind = "stale_note"
)

// IsValid reports whether k is a registered rule type.
func (k RecommendationKind) IsValid() bool {
	switch k {
	case KindMeetingNotes, KindMeetingPrep, KindOverdueTask, KindDueToday, KindScheduleTask, KindStaleNote:
		return true
	}
	return false
}

// RecommendationStatus is the lifecycle state of a recommendation.
type RecommendationStatus string

const (
	StatusActive   RecommendationStatus = "active"
	StatusAccepted RecommendationStatus = "accepted"
	StatusDeclined RecommendationStatus = "declined"
)

// IsValid reports whether s is a known status.
func (s RecommendationStatus) IsValid() bool {
	return s == StatusActive || s == StatusAccepted || s == StatusDeclined
}

// IsTerminal reports whether no further transitions are allowed out of s.
func (s RecommendationStatus) IsTerminal() bool {
	return s == StatusAccepted || s == StatusDeclined
}

// CanTransitionTo reports whether s -> to is a legal transition.
// Only active -> accepted and active -> declined are allowed.
func (s RecommendationStatus) CanTransitionTo(to RecommendationStatus) bool {
	return s == StatusActive && to.IsTerminal()
}

// Evidence points at the record that made a rule fire.
type Evidence struct {
	Module     ModuleID  `json:"module"`
	EntityID   string    `json:"entity_id"`
	CapturedAt time.Time `json:"captured_at"`
}

// Recommendation is a suggested action surfaced in the Command Center.
type Recommendation struct {
	ID          string               `json:"id"`
	ModuleID    ModuleID             `json:"module_id"`
	Kind        RecommendationKind   `json:"kind"`
	Title       string               `json:"title"`
	Description string               `json:"description,omitempty"`
	Evidence    Evidence             `json:"evidence"`
	Priority    int                  `json:"priority"`
	Status      RecommendationStatus `json:"status"`
	CreatedAt   time.Time            `json:"created_at"`
	ResolvedAt  *time.Time           `json:"resolved_at,omitempty"`
	DedupKey    string               `json:"dedup_key"`
}

// DedupKey derives the deduplication key for a rule type and referenced entity.
func DedupKey(kind RecommendationKind, entityID string) string {
	return fmt.Sprintf("%s:%s", kind, entityID)
}

// Validate checks the structural invariants of a recommendation.
func (r Recommendation) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("recommendation id cannot be empty")
	}
	if !r.Kind.IsValid() {
		return fmt.Errorf("invalid recommendation kind: %q", r.Kind)
	}
	if !r.Status.IsValid() {
		return fmt.Errorf("invalid recommendation status: %q", r.Status)
	}
	if r.DedupKey == "" {
		return fmt.Errorf("recommendation %s has no dedup key", r.ID)
	}
	if r.Title == "" {
		return fmt.Errorf("recommendation %s has no title", r.ID)
	}
	if r.CreatedAt.IsZero() {
		return fmt.Errorf("recommendation %s has no created_at", r.ID)
	}
	return nil
}

// Age returns how long the recommendation has existed at now.
func (r Recommendation) Age(now time.Time) time.Duration {
	if r.CreatedAt.IsZero() || now.Before(r.CreatedAt) {
		return 0
	}
	return now.Sub(r.CreatedAt)
}
