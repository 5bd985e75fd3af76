package model

import "sort"

// EventName is a canonical event identifier. The set is closed: names not
// registered in the taxonomy are dropped by the analytics client.
type EventName string

const (
	EventAppOpened               EventName = "app_opened"
	EventAppForegrounded         EventName = "app_foregrounded"
	EventAppBackgrounded         EventName = "app_backgrounded"
	EventScreenViewed            EventName = "screen_viewed"
	EventItemCreated             EventName = "item_created"
	EventItemUpdated             EventName = "item_updated"
	EventItemDeleted             EventName = "item_deleted"
	EventItemCompleted           EventName = "item_completed"
	EventSearchPerformed         EventName = "search_performed"
	EventRecommendationGenerated EventName = "recommendation_generated"
	EventRecommendationAccepted  EventName = "recommendation_accepted"
	EventRecommendationDeclined  EventName = "recommendation_declined"
	EventPrivacyModeChanged      EventName = "privacy_mode_changed"
	EventSettingsChanged         EventName = "settings_changed"
	EventSyncCompleted           EventName = "sync_completed"
	EventErrorOccurred           EventName = "error_occurred"
)

// PropKind describes how an allowlisted property value is sanitized.
type PropKind int

const (
	// PropCategory passes identifier-like tokens through unchanged.
	PropCategory PropKind = iota
	// PropCount buckets non-negative counts.
	PropCount
	// PropLength buckets character lengths.
	PropLength
	// PropDuration buckets durations expressed in milliseconds.
	PropDuration
	// PropFlag normalizes booleans to "true"/"false".
	PropFlag
)

func (k PropKind) String() string {
	switch k {
	case PropCategory:
		return "category"
	case PropCount:
		return "count"
	case PropLength:
		return "length"
	case PropDuration:
		return "duration"
	case PropFlag:
		return "flag"
	default:
		return "unknown"
	}
}

// Allowlist maps a property key to its kind.
type Allowlist map[string]PropKind

// PropModuleID is the property carrying the originating module.
const PropModuleID = "module_id"

var taxonomy = map[EventName]Allowlist{
	EventAppOpened: {
		"launch_type":   PropCategory,
		"session_count": PropCount,
	},
	EventAppForegrounded: {
		"background_ms": PropDuration,
	},
	EventAppBackgrounded: {
		"session_ms": PropDuration,
	},
	EventScreenViewed: {
		PropModuleID: PropCategory,
		"screen":     PropCategory,
		"load_ms":    PropDuration,
	},
	EventItemCreated: {
		PropModuleID:   PropCategory,
		"item_type":    PropCategory,
		"char_count":   PropLength,
		"has_due_date": PropFlag,
		"source":       PropCategory,
	},
	EventItemUpdated: {
		PropModuleID:  PropCategory,
		"item_type":   PropCategory,
		"char_count":  PropLength,
		"field_count": PropCount,
	},
	EventItemDeleted: {
		PropModuleID: PropCategory,
		"item_type":  PropCategory,
	},
	EventItemCompleted: {
		PropModuleID: PropCategory,
		"item_type":  PropCategory,
		"age_ms":     PropDuration,
	},
	EventSearchPerformed: {
		PropModuleID:   PropCategory,
		"result_count": PropCount,
		"query_length": PropLength,
		"latency_ms":   PropDuration,
	},
	EventRecommendationGenerated: {
		PropModuleID: PropCategory,
		"rule_type":  PropCategory,
		"priority":   PropCount,
	},
	EventRecommendationAccepted: {
		PropModuleID: PropCategory,
		"rule_type":  PropCategory,
		"age_ms":     PropDuration,
	},
	EventRecommendationDeclined: {
		PropModuleID: PropCategory,
		"rule_type":  PropCategory,
		"age_ms":     PropDuration,
	},
	EventPrivacyModeChanged: {
		"enabled": PropFlag,
	},
	EventSettingsChanged: {
		PropModuleID: PropCategory,
		"setting":    PropCategory,
		"enabled":    PropFlag,
	},
	EventSyncCompleted: {
		PropModuleID:  PropCategory,
		"item_count":  PropCount,
		"duration_ms": PropDuration,
	},
	EventErrorOccurred: {
		PropModuleID: PropCategory,
		"error_code": PropCategory,
		"fatal":      PropFlag,
	},
}

// Known reports whether n belongs to the taxonomy.
func (n EventName) Known() bool {
	_, ok := taxonomy[n]
	return ok
}

// AllowedProps returns the allowlist for n. The returned map is shared and
// must not be modified.
func AllowedProps(n EventName) (Allowlist, bool) {
	a, ok := taxonomy[n]
	return a, ok
}

// EventNames returns every registered event name, sorted.
func EventNames() []EventName {
	names := make([]EventName, 0, len(taxonomy))
	for n := range taxonomy {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}
