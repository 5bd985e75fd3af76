package datasource

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vanderheijden86/aios/internal/store"
	"github.com/vanderheijden86/aios/pkg/model"
)

// failingStore fails reads for one key.
type failingStore struct {
	store.Store
	key string
}

func (f failingStore) Get(ctx context.Context, key string) ([]store.Record, error) {
	if key == f.key {
		return nil, errors.New("disk on fire")
	}
	return f.Store.Get(ctx, key)
}

func seed(t *testing.T, st store.Store) model.Snapshot {
	t.Helper()
	now := time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)
	due := now.Add(-time.Hour)
	snap := model.Snapshot{
		Notes: []model.Note{{ID: "n1", Title: "Standup", CreatedAt: now}},
		Tasks: []model.Task{
			{ID: "t1", Title: "Ship", DueDate: &due, CreatedAt: now},
			{ID: "t2", Title: "Review", CreatedAt: now},
		},
		Events: []model.CalendarEvent{{ID: "e1", Title: "Sync", Start: now, End: now.Add(time.Hour), Attendees: []string{"a"}}},
	}
	require.NoError(t, Save(context.Background(), st, snap))
	return snap
}

func TestSnapshotReadsAllSources(t *testing.T) {
	st := store.NewMemory()
	want := seed(t, st)
	captured := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)

	snap, results := NewStoreReader(st, WithClock(func() time.Time { return captured })).Snapshot(context.Background())

	require.Equal(t, want.Notes, snap.Notes)
	require.Equal(t, want.Tasks[0].ID, snap.Tasks[0].ID)
	require.Len(t, snap.Tasks, 2)
	require.Len(t, snap.Events, 1)
	require.Equal(t, captured, snap.CapturedAt)
	require.Len(t, results, 3)
	for _, r := range results {
		require.NoError(t, r.Error)
	}
}

func TestSnapshotSkipsCorruptRecords(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	seed(t, st)

	records, err := st.Get(ctx, store.KeyTasks)
	require.NoError(t, err)
	records = append(records, store.Record(`{"id":`), store.Record(`{"title":"no id"}`))
	require.NoError(t, st.Set(ctx, store.KeyTasks, records))

	snap, results := NewStoreReader(st).Snapshot(ctx)
	require.Len(t, snap.Tasks, 2)
	for _, r := range results {
		if r.Source == SourceTasks {
			require.Equal(t, 2, r.Discarded)
			require.Equal(t, 2, r.Count)
		}
	}
}

func TestSnapshotTreatsUnreadableSourceAsEmpty(t *testing.T) {
	st := store.NewMemory()
	seed(t, st)

	snap, results := NewStoreReader(failingStore{Store: st, key: store.KeyCalendarEvents}).Snapshot(context.Background())
	require.Empty(t, snap.Events)
	require.Len(t, snap.Notes, 1)
	require.Len(t, snap.Tasks, 2)

	var failed []SourceType
	for _, r := range results {
		if r.Error != nil {
			failed = append(failed, r.Source)
		}
	}
	require.Equal(t, []SourceType{SourceCalendar}, failed)
}

func TestSourceTypeKeys(t *testing.T) {
	for _, src := range AllSources() {
		require.NotEmpty(t, src.Key(), src)
		require.True(t, model.IsKnownModule(model.DefaultModules(), src.Module()), src)
	}
}
