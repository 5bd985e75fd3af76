package analytics

import (
	"context"
	"time"

	"github.com/vanderheijden86/aios/pkg/model"
)

// Convenience wrappers over Log. Each one fixes the event name and prop set
// and adds no behavior of its own.

func (c *Client) TrackAppOpened(ctx context.Context, launchType string, sessionCount int) {
	c.Log(ctx, model.EventAppOpened, map[string]any{
		"launch_type":   launchType,
		"session_count": sessionCount,
	})
}

func (c *Client) TrackAppForegrounded(ctx context.Context, backgroundFor time.Duration) {
	c.Log(ctx, model.EventAppForegrounded, map[string]any{"background_ms": backgroundFor})
}

func (c *Client) TrackAppBackgrounded(ctx context.Context, sessionLength time.Duration) {
	c.Log(ctx, model.EventAppBackgrounded, map[string]any{"session_ms": sessionLength})
}

func (c *Client) TrackScreenViewed(ctx context.Context, module model.ModuleID, screen string, loadTime time.Duration) {
	c.Log(ctx, model.EventScreenViewed, map[string]any{
		model.PropModuleID: module,
		"screen":           screen,
		"load_ms":          loadTime,
	})
}

func (c *Client) TrackItemCreated(ctx context.Context, module model.ModuleID, itemType string, charCount int, hasDueDate bool) {
	c.Log(ctx, model.EventItemCreated, map[string]any{
		model.PropModuleID: module,
		"item_type":        itemType,
		"char_count":       charCount,
		"has_due_date":     hasDueDate,
	})
}

func (c *Client) TrackItemUpdated(ctx context.Context, module model.ModuleID, itemType string, charCount, fieldCount int) {
	c.Log(ctx, model.EventItemUpdated, map[string]any{
		model.PropModuleID: module,
		"item_type":        itemType,
		"char_count":       charCount,
		"field_count":      fieldCount,
	})
}

func (c *Client) TrackItemDeleted(ctx context.Context, module model.ModuleID, itemType string) {
	c.Log(ctx, model.EventItemDeleted, map[string]any{
		model.PropModuleID: module,
		"item_type":        itemType,
	})
}

func (c *Client) TrackItemCompleted(ctx context.Context, module model.ModuleID, itemType string, age time.Duration) {
	c.Log(ctx, model.EventItemCompleted, map[string]any{
		model.PropModuleID: module,
		"item_type":        itemType,
		"age_ms":           age,
	})
}

// TrackSearch records a search by its shape only; the query text itself is
// never passed in.
func (c *Client) TrackSearch(ctx context.Context, module model.ModuleID, resultCount, queryLength int, latency time.Duration) {
	c.Log(ctx, model.EventSearchPerformed, map[string]any{
		model.PropModuleID: module,
		"result_count":     resultCount,
		"query_length":     queryLength,
		"latency_ms":       latency,
	})
}

func (c *Client) TrackSettingsChanged(ctx context.Context, module model.ModuleID, setting string, enabled bool) {
	c.Log(ctx, model.EventSettingsChanged, map[string]any{
		model.PropModuleID: module,
		"setting":          setting,
		"enabled":          enabled,
	})
}

func (c *Client) TrackSyncCompleted(ctx context.Context, module model.ModuleID, itemCount int, took time.Duration) {
	c.Log(ctx, model.EventSyncCompleted, map[string]any{
		model.PropModuleID: module,
		"item_count":       itemCount,
		"duration_ms":      took,
	})
}

func (c *Client) TrackError(ctx context.Context, module model.ModuleID, code string, fatal bool) {
	c.Log(ctx, model.EventErrorOccurred, map[string]any{
		model.PropModuleID: module,
		"error_code":       code,
		"fatal":            fatal,
	})
}

// TrackRecommendationGenerated, TrackRecommendationAccepted and
// TrackRecommendationDeclined let the client serve as the recommendation
// engine's tracker.

func (c *Client) TrackRecommendationGenerated(ctx context.Context, rec model.Recommendation) {
	c.Log(ctx, model.EventRecommendationGenerated, map[string]any{
		model.PropModuleID: rec.ModuleID,
		"rule_type":        string(rec.Kind),
		"priority":         rec.Priority,
	})
}

func (c *Client) TrackRecommendationAccepted(ctx context.Context, rec model.Recommendation) {
	c.Log(ctx, model.EventRecommendationAccepted, resolvedProps(rec))
}

func (c *Client) TrackRecommendationDeclined(ctx context.Context, rec model.Recommendation) {
	c.Log(ctx, model.EventRecommendationDeclined, resolvedProps(rec))
}

func resolvedProps(rec model.Recommendation) map[string]any {
	props := map[string]any{
		model.PropModuleID: rec.ModuleID,
		"rule_type":        string(rec.Kind),
	}
	if rec.ResolvedAt != nil {
		props["age_ms"] = rec.ResolvedAt.Sub(rec.CreatedAt)
	}
	return props
}
