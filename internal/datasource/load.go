package datasource

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/vanderheijden86/aios/internal/store"
	"github.com/vanderheijden86/aios/pkg/metrics"
	"github.com/vanderheijden86/aios/pkg/model"
)

// Snapshot reads every collection concurrently. A collection that fails to
// load is reported in its LoadResult and contributes no records; corrupt
// records are skipped individually.
func (r *StoreReader) Snapshot(ctx context.Context) (model.Snapshot, []LoadResult) {
	defer metrics.Timer(metrics.SnapshotLoad)()

	snap := model.Snapshot{CapturedAt: r.now().UTC()}
	sources := AllSources()
	results := make([]LoadResult, len(sources))

	g, ctx := errgroup.WithContext(ctx)
	for i, src := range sources {
		g.Go(func() error {
			res := LoadResult{Source: src}
			select {
			case <-ctx.Done():
				res.Error = ctx.Err()
				results[i] = res
				return nil
			default:
			}

			records, err := r.st.Get(ctx, src.Key())
			if err != nil {
				res.Error = fmt.Errorf("reading %s: %w", src, err)
				results[i] = res
				return nil // a missing source means no recommendations from it, not a failed pass
			}

			switch src {
			case SourceNotes:
				snap.Notes, res.Discarded = store.DecodeEach[model.Note](records, model.Note.Validate)
				res.Count = len(snap.Notes)
			case SourceTasks:
				snap.Tasks, res.Discarded = store.DecodeEach[model.Task](records, model.Task.Validate)
				res.Count = len(snap.Tasks)
			case SourceCalendar:
				snap.Events, res.Discarded = store.DecodeEach[model.CalendarEvent](records, model.CalendarEvent.Validate)
				res.Count = len(snap.Events)
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	for _, res := range results {
		switch {
		case res.Error != nil:
			r.logger.Warn().Err(res.Error).Str("source", string(res.Source)).Msg("snapshot source unavailable")
		case res.Discarded > 0:
			r.logger.Warn().Str("source", string(res.Source)).Int("discarded", res.Discarded).Msg("skipped corrupt records")
		}
	}
	return snap, results
}

// Save writes the collections of snap to st. Feature modules own this data;
// Save exists for seeding and tests.
func Save(ctx context.Context, st store.Store, snap model.Snapshot) error {
	notes, err := store.EncodeAll(snap.Notes)
	if err != nil {
		return err
	}
	tasks, err := store.EncodeAll(snap.Tasks)
	if err != nil {
		return err
	}
	events, err := store.EncodeAll(snap.Events)
	if err != nil {
		return err
	}
	for key, records := range map[string][]store.Record{
		store.KeyNotes:          notes,
		store.KeyTasks:          tasks,
		store.KeyCalendarEvents: events,
	} {
		if err := st.Set(ctx, key, records); err != nil {
			return fmt.Errorf("saving %s: %w", key, err)
		}
	}
	return nil
}
