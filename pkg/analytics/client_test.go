package analytics

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/vanderheijden86/aios/internal/store"
	"github.com/vanderheijden86/aios/pkg/analytics/queue"
	"github.com/vanderheijden86/aios/pkg/analytics/transport"
	"github.com/vanderheijden86/aios/pkg/model"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 4, 9, 15, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// fakeSender replays results in order, repeating the last one, and records
// every batch it was given.
type fakeSender struct {
	mu      sync.Mutex
	results []transport.Result
	batches [][]model.Event
	send    func(ctx context.Context) transport.Result
}

func (f *fakeSender) Send(ctx context.Context, batch []model.Event) transport.Result {
	f.mu.Lock()
	cp := make([]model.Event, len(batch))
	for i, e := range batch {
		cp[i] = e.Clone()
	}
	f.batches = append(f.batches, cp)
	send := f.send
	var res transport.Result
	switch {
	case len(f.results) > 1:
		res, f.results = f.results[0], f.results[1:]
	case len(f.results) == 1:
		res = f.results[0]
	}
	f.mu.Unlock()

	if send != nil {
		return send(ctx)
	}
	return res
}

func (f *fakeSender) Batches() [][]model.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]model.Event(nil), f.batches...)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Backoff.Jitter = 0
	return cfg
}

func newTestClient(t *testing.T, st store.Store, cfg Config, sender transport.Sender, clock *fakeClock, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{WithSender(sender), WithClock(clock.Now)}, opts...)
	c := New(st, cfg, opts...)
	require.NoError(t, c.Initialize(context.Background()))
	return c
}

func queued(c *Client) []model.Event {
	entries := c.queue.PeekBatch(c.queue.Len())
	out := make([]model.Event, len(entries))
	for i, e := range entries {
		out[i] = e.Event
	}
	return out
}

func findEvent(t *testing.T, events []model.Event, name model.EventName) model.Event {
	t.Helper()
	for _, e := range events {
		if e.Name == name {
			return e
		}
	}
	t.Fatalf("no %s event in %d events", name, len(events))
	return model.Event{}
}

func TestLogDefaultMode(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t, store.NewMemory(), testConfig(), &fakeSender{}, newFakeClock())

	c.Log(ctx, model.EventItemCreated, map[string]any{
		"module_id": "notebook",
		"item_type": "note",
		"title":     "secret",
	})

	events := queued(c)
	require.Len(t, events, 1)
	e := events[0]
	require.Equal(t, map[string]string{"module_id": "notebook", "item_type": "note"}, e.Props)
	require.Equal(t, model.ModeDefault, e.Mode)
	require.Equal(t, model.ModuleNotebook, e.ModuleID)
	require.NotEmpty(t, e.ID)
	require.NotEmpty(t, e.UserID)
	require.NotEmpty(t, e.DeviceID)
	require.NotEmpty(t, e.SessionID)
	require.NotNil(t, e.OccurredAt)
	require.Empty(t, e.AnonID)
	require.Nil(t, e.DayOfWeek)
	require.Nil(t, e.HourOfDay)
	require.NoError(t, e.Validate())
}

func TestLogPrivacyMode(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	c := newTestClient(t, store.NewMemory(), testConfig(), &fakeSender{}, clock)
	require.NoError(t, c.EnablePrivacyMode(ctx))
	require.True(t, c.IsPrivacyModeEnabled())

	c.Log(ctx, model.EventItemCreated, map[string]any{
		"module_id": "notebook",
		"item_type": "note",
		"title":     "secret",
	})

	events := queued(c)
	e := findEvent(t, events, model.EventItemCreated)
	require.Equal(t, model.ModePrivacy, e.Mode)
	require.Empty(t, e.UserID)
	require.Empty(t, e.DeviceID)
	require.NotEmpty(t, e.AnonID)
	require.Nil(t, e.OccurredAt)
	require.NotNil(t, e.DayOfWeek)
	require.NotNil(t, e.HourOfDay)
	require.Equal(t, int(time.Wednesday), *e.DayOfWeek)
	require.Equal(t, 9, *e.HourOfDay)
	require.NotContains(t, e.Props, "title")

	changed := findEvent(t, events, model.EventPrivacyModeChanged)
	require.Equal(t, model.ModePrivacy, changed.Mode, "the toggle is logged under the new mode")
	require.Equal(t, "true", changed.Props["enabled"])
}

func TestPrivacyToggleIsIdempotent(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t, store.NewMemory(), testConfig(), &fakeSender{}, newFakeClock())

	require.NoError(t, c.EnablePrivacyMode(ctx))
	require.NoError(t, c.EnablePrivacyMode(ctx))
	require.NoError(t, c.DisablePrivacyMode(ctx))
	require.False(t, c.IsPrivacyModeEnabled())

	var toggles int
	for _, e := range queued(c) {
		if e.Name == model.EventPrivacyModeChanged {
			toggles++
		}
	}
	require.Equal(t, 2, toggles)
}

func TestPrivacyModeSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	clock := newFakeClock()

	c := newTestClient(t, st, testConfig(), &fakeSender{}, clock)
	require.NoError(t, c.EnablePrivacyMode(ctx))
	c.TrackItemDeleted(ctx, model.ModuleTasks, "task")
	require.Equal(t, 2, c.QueueLen())

	restarted := newTestClient(t, st, testConfig(), &fakeSender{}, clock)
	require.True(t, restarted.IsPrivacyModeEnabled())
	require.Equal(t, 2, restarted.QueueLen())
	require.NoError(t, restarted.Initialize(ctx), "Initialize is idempotent")

	restarted.TrackItemDeleted(ctx, model.ModuleTasks, "task")
	events := queued(restarted)
	require.Equal(t, events[1].AnonID, events[2].AnonID, "same install and day yield the same anon id")
	require.NotEqual(t, events[1].SessionID, events[2].SessionID, "each process starts a new session")
}

// flakyPrefsStore fails reads of the preference record while failures > 0.
type flakyPrefsStore struct {
	store.Store
	mu       sync.Mutex
	failures int
	writes   int
}

func (f *flakyPrefsStore) Get(ctx context.Context, key string) ([]store.Record, error) {
	if key == store.KeyAnalyticsPrefs {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.failures > 0 {
			f.failures--
			return nil, errors.New("transient read failure")
		}
	}
	return f.Store.Get(ctx, key)
}

func (f *flakyPrefsStore) Set(ctx context.Context, key string, records []store.Record) error {
	if key == store.KeyAnalyticsPrefs {
		f.mu.Lock()
		f.writes++
		f.mu.Unlock()
	}
	return f.Store.Set(ctx, key, records)
}

func (f *flakyPrefsStore) Writes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes
}

func TestUnreadablePrefsFailClosed(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	clock := newFakeClock()

	first := newTestClient(t, mem, testConfig(), &fakeSender{}, clock)
	stored := first.prefs
	require.NoError(t, first.EnablePrivacyMode(ctx))

	st := &flakyPrefsStore{Store: mem, failures: 1}
	c := New(st, testConfig(), WithClock(clock.Now))
	require.Error(t, c.Initialize(ctx))
	require.True(t, c.IsPrivacyModeEnabled())

	c.TrackItemDeleted(ctx, model.ModuleTasks, "task")
	e := queued(c)[len(queued(c))-1]
	require.Equal(t, model.ModePrivacy, e.Mode)
	require.Empty(t, e.UserID)
	require.Empty(t, e.DeviceID)
	require.NotEmpty(t, e.AnonID)
	require.Zero(t, st.Writes(), "stored preferences must not be overwritten")

	restarted := newTestClient(t, mem, testConfig(), &fakeSender{}, clock)
	require.True(t, restarted.IsPrivacyModeEnabled())
	require.Equal(t, stored.UserID, restarted.prefs.UserID)
	require.Equal(t, stored.DeviceID, restarted.prefs.DeviceID)
	require.Equal(t, stored.AnonSecret, restarted.prefs.AnonSecret)
}

func TestUnreadablePrefsRecoverOnFlush(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	clock := newFakeClock()

	first := newTestClient(t, mem, testConfig(), &fakeSender{}, clock)
	stored := first.prefs
	require.False(t, stored.PrivacyMode)

	st := &flakyPrefsStore{Store: mem, failures: 1}
	sender := &fakeSender{results: []transport.Result{{Outcome: transport.Success, StatusCode: 200}}}
	c := New(st, testConfig(), WithSender(sender), WithClock(clock.Now))
	require.Error(t, c.Initialize(ctx))
	require.True(t, c.IsPrivacyModeEnabled())

	_, err := c.Flush(ctx)
	require.NoError(t, err)
	require.False(t, c.IsPrivacyModeEnabled(), "stored default mode applies once readable")

	c.TrackItemDeleted(ctx, model.ModuleTasks, "task")
	e := queued(c)[0]
	require.Equal(t, model.ModeDefault, e.Mode)
	require.Equal(t, stored.UserID, e.UserID)
	require.Equal(t, stored.DeviceID, e.DeviceID)
	require.Zero(t, st.Writes())
}

func TestPrivacyChoiceWhilePrefsUnreadable(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	clock := newFakeClock()

	first := newTestClient(t, mem, testConfig(), &fakeSender{}, clock)
	stored := first.prefs

	st := &flakyPrefsStore{Store: mem, failures: 2}
	c := New(st, testConfig(), WithClock(clock.Now))
	require.Error(t, c.Initialize(ctx))

	// Still unreadable: the choice applies in memory only.
	require.Error(t, c.DisablePrivacyMode(ctx))
	require.False(t, c.IsPrivacyModeEnabled())
	require.Zero(t, st.Writes())

	// Readable again: the choice is kept and persisted with the stored ids.
	require.NoError(t, c.EnablePrivacyMode(ctx))
	require.True(t, c.IsPrivacyModeEnabled())
	require.Equal(t, 1, st.Writes())

	prefs, err := loadPrefs(ctx, mem)
	require.NoError(t, err)
	require.True(t, prefs.PrivacyMode)
	require.Equal(t, stored.UserID, prefs.UserID)
	require.Equal(t, stored.AnonSecret, prefs.AnonSecret)
}

// TestPrivacyModeFieldExclusivity drives random sequences of logging, mode
// toggles and flushes and checks that no event ever mixes identities.
func TestPrivacyModeFieldExclusivity(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ctx := context.Background()
		clock := newFakeClock()
		sender := &fakeSender{results: []transport.Result{{Outcome: transport.Success}}}
		c := New(store.NewMemory(), testConfig(), WithSender(sender), WithClock(clock.Now))
		if err := c.Initialize(ctx); err != nil {
			t.Fatalf("Initialize: %v", err)
		}

		steps := rapid.IntRange(1, 40).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			switch rapid.IntRange(0, 4).Draw(t, "op") {
			case 0, 1:
				c.TrackItemCreated(ctx, model.ModuleNotebook, "note", 12, false)
			case 2:
				_ = c.EnablePrivacyMode(ctx)
			case 3:
				_ = c.DisablePrivacyMode(ctx)
			case 4:
				if _, err := c.Flush(ctx); err != nil {
					t.Fatalf("Flush: %v", err)
				}
			}
			clock.Advance(time.Duration(rapid.IntRange(0, 36).Draw(t, "hours")) * time.Hour)
		}

		var all []model.Event
		all = append(all, queued(c)...)
		for _, b := range sender.Batches() {
			all = append(all, b...)
		}
		for _, e := range all {
			if err := e.Validate(); err != nil {
				t.Fatalf("invalid event: %v", err)
			}
			switch e.Mode {
			case model.ModePrivacy:
				if e.UserID != "" || e.DeviceID != "" {
					t.Fatalf("privacy event %s carries stable identity", e.ID)
				}
			case model.ModeDefault:
				if e.AnonID != "" {
					t.Fatalf("default event %s carries anon id", e.ID)
				}
			}
		}
	})
}

func TestFlushResanitizesStaleModeEntries(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	sender := &fakeSender{results: []transport.Result{{Outcome: transport.Success, StatusCode: 200}}}
	c := newTestClient(t, store.NewMemory(), testConfig(), sender, clock)

	c.TrackItemCreated(ctx, model.ModuleNotebook, "note", 40, true)
	require.NoError(t, c.EnablePrivacyMode(ctx))

	rep, err := c.Flush(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, rep.Resanitized)
	require.Equal(t, 2, rep.Delivered)

	batch := sender.Batches()[0]
	require.Len(t, batch, 2)
	for _, e := range batch {
		require.Equal(t, model.ModePrivacy, e.Mode)
		require.Empty(t, e.UserID)
		require.Empty(t, e.DeviceID)
		require.NotEmpty(t, e.AnonID)
		require.Nil(t, e.OccurredAt)
		require.NotNil(t, e.DayOfWeek)
	}
	require.Equal(t, batch[0].SessionID, batch[1].SessionID)

	// Back to default: anonymously captured events are never upgraded.
	clock.Advance(time.Minute)
	c.TrackItemDeleted(ctx, model.ModuleNotebook, "note")
	require.NoError(t, c.DisablePrivacyMode(ctx))

	rep, err = c.Flush(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, rep.Resanitized)

	batch = sender.Batches()[1]
	deleted := findEvent(t, batch, model.EventItemDeleted)
	require.Equal(t, model.ModeDefault, deleted.Mode)
	require.Empty(t, deleted.AnonID)
	require.Empty(t, deleted.UserID)
	require.Empty(t, deleted.DeviceID)
	require.NotEmpty(t, deleted.SessionID, "the anonymous session is kept")
	require.Nil(t, deleted.OccurredAt)
	require.NotNil(t, deleted.DayOfWeek)
}

func TestFlushDropsBatchAfterRepeatedServerErrors(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	sender := &fakeSender{results: []transport.Result{{
		Outcome:    transport.Retryable,
		StatusCode: 500,
		Err:        errors.New("ingestion endpoint returned 500"),
	}}}

	var mu sync.Mutex
	drops := map[DropReason]int{}
	c := newTestClient(t, store.NewMemory(), testConfig(), sender, clock, WithDropHandler(func(_ model.EventName, r DropReason) {
		mu.Lock()
		drops[r]++
		mu.Unlock()
	}))
	for i := 0; i < 3; i++ {
		c.TrackScreenViewed(ctx, model.ModuleCalendar, "week", 80*time.Millisecond)
	}

	for attempt := 1; attempt <= 3; attempt++ {
		rep, err := c.Flush(ctx)
		require.NoError(t, err)
		require.Equal(t, transport.Retryable, rep.Outcome)
		require.Equal(t, 3, rep.Sent)
		if attempt < 3 {
			require.Equal(t, 3, c.QueueLen(), "entries stay queued until the last attempt")
			require.Zero(t, rep.Dropped)
		} else {
			require.Equal(t, 3, rep.Dropped)
		}
		clock.Advance(time.Hour)
	}

	require.Zero(t, c.QueueLen())
	require.Len(t, sender.Batches(), 3)

	rep, err := c.Flush(ctx)
	require.NoError(t, err)
	require.Equal(t, SkipEmpty, rep.Skipped)
	require.Len(t, sender.Batches(), 3, "dropped batch is never sent again")

	stats := c.Stats()
	require.Zero(t, stats.Delivered)
	require.Equal(t, int64(3), stats.Dropped[DropRetriesExhausted.String()])
	require.Equal(t, int64(3), stats.BatchesRetried)
	mu.Lock()
	require.Equal(t, 3, drops[DropRetriesExhausted])
	mu.Unlock()
}

func TestFlushBackoffGate(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	sender := &fakeSender{results: []transport.Result{
		{Outcome: transport.Retryable, Err: errors.New("timeout")},
		{Outcome: transport.Retryable, Err: errors.New("timeout")},
		{Outcome: transport.Success},
	}}
	c := newTestClient(t, store.NewMemory(), testConfig(), sender, clock)
	c.TrackAppOpened(ctx, "cold", 1)

	rep, err := c.Flush(ctx)
	require.NoError(t, err)
	require.Equal(t, clock.Now().Add(time.Second), rep.NextAttempt)

	rep, err = c.Flush(ctx)
	require.NoError(t, err)
	require.Equal(t, SkipBackoff, rep.Skipped)
	require.Len(t, sender.Batches(), 1)

	clock.Advance(time.Second)
	rep, err = c.Flush(ctx)
	require.NoError(t, err)
	require.Equal(t, clock.Now().Add(2*time.Second), rep.NextAttempt, "second failure doubles the delay")

	clock.Advance(2 * time.Second)
	rep, err = c.Flush(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, rep.Delivered)
	require.True(t, c.Stats().NextAttempt.IsZero(), "success resets the backoff")
}

func TestFlushFatalDropsBatch(t *testing.T) {
	ctx := context.Background()
	sender := &fakeSender{results: []transport.Result{{Outcome: transport.Fatal, StatusCode: 400, Err: errors.New("bad request")}}}
	c := newTestClient(t, store.NewMemory(), testConfig(), sender, newFakeClock())
	c.TrackError(ctx, model.ModuleEmail, "imap_timeout", false)
	c.TrackError(ctx, model.ModuleEmail, "imap_timeout", true)

	rep, err := c.Flush(ctx)
	require.NoError(t, err)
	require.Equal(t, transport.Fatal, rep.Outcome)
	require.Equal(t, 2, rep.Dropped)
	require.Zero(t, c.QueueLen())
	require.Equal(t, int64(2), c.Stats().Dropped[DropFatal.String()])
	require.True(t, c.Stats().NextAttempt.IsZero(), "fatal failures are not retried")
}

func TestFlushRespectsBatchSize(t *testing.T) {
	ctx := context.Background()
	sender := &fakeSender{results: []transport.Result{{Outcome: transport.Success}}}
	cfg := testConfig()
	cfg.BatchSize = 50
	c := newTestClient(t, store.NewMemory(), cfg, sender, newFakeClock())
	for i := 0; i < 120; i++ {
		c.TrackSearch(ctx, model.ModuleNotebook, i, 5, 30*time.Millisecond)
	}

	var sizes []int
	for c.QueueLen() > 0 {
		rep, err := c.Flush(ctx)
		require.NoError(t, err)
		sizes = append(sizes, rep.Delivered)
	}
	require.Equal(t, []int{50, 50, 20}, sizes)

	// FIFO across batches.
	batches := sender.Batches()
	require.Equal(t, "0", batches[0][0].Props["result_count"])
	require.Equal(t, "100+", batches[2][19].Props["result_count"])
}

func TestFlushAbandonedLeavesBatchQueued(t *testing.T) {
	sender := &fakeSender{send: func(ctx context.Context) transport.Result {
		<-ctx.Done()
		return transport.Result{Outcome: transport.Retryable, Err: ctx.Err()}
	}}
	c := newTestClient(t, store.NewMemory(), testConfig(), sender, newFakeClock())
	c.TrackAppBackgrounded(context.Background(), 3*time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	rep, err := c.Flush(ctx)
	require.NoError(t, err)
	require.True(t, rep.Abandoned)

	entries := c.queue.PeekBatch(10)
	require.Len(t, entries, 1)
	require.Zero(t, entries[0].RetryCount)
	require.True(t, c.Stats().NextAttempt.IsZero())
	require.Zero(t, c.Stats().BatchesSent)
}

func TestFlushIsSingleFlight(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	sender := &fakeSender{send: func(ctx context.Context) transport.Result {
		close(entered)
		<-release
		return transport.Result{Outcome: transport.Success}
	}}
	c := newTestClient(t, store.NewMemory(), testConfig(), sender, newFakeClock())
	c.TrackAppOpened(context.Background(), "warm", 2)

	done := make(chan FlushReport)
	go func() {
		rep, _ := c.Flush(context.Background())
		done <- rep
	}()
	<-entered

	rep, err := c.Flush(context.Background())
	require.NoError(t, err)
	require.Equal(t, SkipInProgress, rep.Skipped)

	close(release)
	first := <-done
	require.Equal(t, 1, first.Delivered)
}

func TestDisabledClientIsNoop(t *testing.T) {
	ctx := context.Background()
	sender := &fakeSender{}
	cfg := testConfig()
	cfg.Enabled = false
	c := newTestClient(t, store.NewMemory(), cfg, sender, newFakeClock())

	c.TrackAppOpened(ctx, "cold", 1)
	require.Zero(t, c.QueueLen())
	rep, err := c.Flush(ctx)
	require.NoError(t, err)
	require.Equal(t, SkipDisabled, rep.Skipped)

	c.SetEnabled(true)
	c.TrackAppOpened(ctx, "cold", 1)
	require.Equal(t, 1, c.QueueLen())
}

func TestUnknownEventIsDropped(t *testing.T) {
	var got []DropReason
	c := newTestClient(t, store.NewMemory(), testConfig(), &fakeSender{}, newFakeClock(),
		WithDropHandler(func(_ model.EventName, r DropReason) { got = append(got, r) }))

	c.Log(context.Background(), "photo_uploaded", map[string]any{"count": 1})
	require.Zero(t, c.QueueLen())
	require.Equal(t, []DropReason{DropUnknownEvent}, got)
	require.Equal(t, int64(1), c.Stats().TotalDropped())
}

func TestQueueFullDropsEvent(t *testing.T) {
	cfg := testConfig()
	cfg.Queue = queue.Options{MaxSize: 2, HighWater: 1, CompactFraction: 0, MaxRetries: 3}
	c := newTestClient(t, store.NewMemory(), cfg, &fakeSender{}, newFakeClock())

	for i := 0; i < 3; i++ {
		c.TrackAppOpened(context.Background(), "cold", i)
	}
	stats := c.Stats()
	require.Equal(t, int64(2), stats.Logged)
	require.Equal(t, int64(1), stats.Dropped[DropQueueFull.String()])
	require.Equal(t, 2, stats.Queued)
}

func TestNotInitialized(t *testing.T) {
	c := New(store.NewMemory(), testConfig())
	c.TrackAppOpened(context.Background(), "cold", 1)
	require.Zero(t, c.QueueLen())

	_, err := c.Flush(context.Background())
	require.ErrorIs(t, err, ErrNotInitialized)
	require.ErrorIs(t, c.EnablePrivacyMode(context.Background()), ErrNotInitialized)
	require.NoError(t, c.Close(context.Background()))
}

func TestFlushWithoutSenderKeepsEvents(t *testing.T) {
	c := New(store.NewMemory(), testConfig())
	require.NoError(t, c.Initialize(context.Background()))
	c.TrackAppOpened(context.Background(), "cold", 1)

	rep, err := c.Flush(context.Background())
	require.NoError(t, err)
	require.Equal(t, SkipNoSender, rep.Skipped)
	require.Equal(t, 1, c.QueueLen())
}

func TestStartFlushesPeriodically(t *testing.T) {
	sender := &fakeSender{results: []transport.Result{{Outcome: transport.Success}}}
	cfg := testConfig()
	cfg.FlushInterval = 10 * time.Millisecond
	c := New(store.NewMemory(), cfg, WithSender(sender))
	require.NoError(t, c.Initialize(context.Background()))
	c.TrackAppOpened(context.Background(), "cold", 1)

	c.Start(context.Background())
	c.Start(context.Background())
	require.Eventually(t, func() bool { return c.QueueLen() == 0 }, 2*time.Second, 5*time.Millisecond)

	c.TrackAppBackgrounded(context.Background(), time.Minute)
	require.NoError(t, c.Close(context.Background()))
	require.Zero(t, c.QueueLen(), "Close performs a final flush")
}

func TestRecommendationTracking(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t, store.NewMemory(), testConfig(), &fakeSender{}, newFakeClock())

	created := time.Date(2026, 3, 4, 8, 0, 0, 0, time.UTC)
	resolved := created.Add(90 * time.Second)
	rec := model.Recommendation{
		ID:         "r1",
		ModuleID:   model.ModuleCalendar,
		Kind:       model.KindMeetingNotes,
		Title:      "Add notes for Board sync",
		Priority:   80,
		CreatedAt:  created,
		ResolvedAt: &resolved,
	}
	c.TrackRecommendationGenerated(ctx, rec)
	c.TrackRecommendationAccepted(ctx, rec)

	events := queued(c)
	require.Len(t, events, 2)
	require.Equal(t, map[string]string{"module_id": "calendar", "rule_type": "meeting_notes", "priority": "51-100"}, events[0].Props)
	require.Equal(t, "30s-2m", events[1].Props["age_ms"])
	for _, e := range events {
		for _, v := range e.Props {
			require.NotContains(t, v, "Board")
		}
	}
}
