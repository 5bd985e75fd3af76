// Package queue implements the persistent, bounded FIFO of analytics events
// awaiting delivery.
//
// Every mutation (enqueue, compaction, removal, retry bookkeeping) happens
// under a single lock and is written through to the local store before the
// lock is released, so producers and the flush cycle never observe a
// partially applied change. Entries are never reordered.
package queue

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vanderheijden86/aios/internal/store"
	"github.com/vanderheijden86/aios/pkg/metrics"
	"github.com/vanderheijden86/aios/pkg/model"
)

// ErrCorruptEntry marks a stored entry that cannot be used.
var ErrCorruptEntry = errors.New("queue: corrupt entry")

// Entry is a queued event plus its delivery bookkeeping.
type Entry struct {
	Event      model.Event `json:"event"`
	RetryCount int         `json:"retry_count"`
	EnqueuedAt time.Time   `json:"enqueued_at"`
}

// ID returns the event id of the entry.
func (e Entry) ID() string { return e.Event.ID }

// Validate rejects entries that could not have been produced by Enqueue.
func (e Entry) Validate() error {
	if e.RetryCount < 0 {
		return fmt.Errorf("%w: negative retry count", ErrCorruptEntry)
	}
	if err := e.Event.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptEntry, err)
	}
	return nil
}

// Options bounds the queue.
type Options struct {
	MaxSize         int
	HighWater       float64 // compaction runs once size reaches HighWater*MaxSize
	CompactFraction float64 // fraction of MaxSize evicted per compaction; 0 disables eviction
	MaxRetries      int     // entries with this many failed attempts are dropped
}

// DefaultOptions returns the standard queue bounds.
func DefaultOptions() Options {
	return Options{MaxSize: 1000, HighWater: 0.9, CompactFraction: 0.2, MaxRetries: 3}
}

func (o Options) normalized() Options {
	d := DefaultOptions()
	if o.MaxSize <= 0 {
		o.MaxSize = d.MaxSize
	}
	if o.HighWater <= 0 || o.HighWater > 1 {
		o.HighWater = d.HighWater
	}
	if o.CompactFraction < 0 || o.CompactFraction > 1 {
		o.CompactFraction = d.CompactFraction
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = d.MaxRetries
	}
	return o
}

// highWaterMark is the size at which compaction is attempted.
func (o Options) highWaterMark() int {
	return int(math.Ceil(o.HighWater*float64(o.MaxSize) - 1e-9))
}

// evictCount is how many of the oldest entries one compaction removes.
func (o Options) evictCount() int {
	if o.CompactFraction == 0 {
		return 0
	}
	n := int(math.Round(o.CompactFraction * float64(o.MaxSize)))
	if n < 1 {
		n = 1
	}
	return n
}

// Queue is the persistent event queue. It is safe for concurrent use.
type Queue struct {
	mu      sync.Mutex
	st      store.Store
	opts    Options
	entries []Entry
	logger  zerolog.Logger
	now     func() time.Time
}

// Option configures a Queue.
type Option func(*Queue)

// WithLogger sets the operator logger.
func WithLogger(l zerolog.Logger) Option {
	return func(q *Queue) { q.logger = l }
}

// WithClock overrides the time source used for EnqueuedAt.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// New returns an empty queue persisting into st. Call Load to restore
// previously persisted entries.
func New(st store.Store, opts Options, options ...Option) *Queue {
	q := &Queue{
		st:     st,
		opts:   opts.normalized(),
		logger: zerolog.Nop(),
		now:    time.Now,
	}
	for _, o := range options {
		o(q)
	}
	return q
}

// Options returns the effective bounds.
func (q *Queue) Options() Options { return q.opts }

// Load replaces the in-memory state with the persisted entries. Corrupt
// entries are discarded individually and the cleaned list is written back.
func (q *Queue) Load(ctx context.Context) (discarded int, err error) {
	defer metrics.Timer(metrics.QueueLoad)()

	records, err := q.st.Get(ctx, store.KeyAnalyticsQueue)
	if err != nil {
		return 0, fmt.Errorf("loading queue: %w", err)
	}
	entries, discarded := store.DecodeEach[Entry](records, Entry.Validate)

	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = entries
	if discarded > 0 {
		q.logger.Warn().Int("discarded", discarded).Int("kept", len(entries)).Msg("discarded corrupt queue entries")
		q.persistLocked(ctx)
	}
	return discarded, nil
}

// Len returns the number of queued entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Enqueue appends e to the tail. It returns false, leaving the queue
// untouched, when the queue is full and compaction cannot make room; the
// caller must treat that as a dropped event.
func (q *Queue) Enqueue(ctx context.Context, e model.Event) bool {
	defer metrics.Timer(metrics.Enqueue)()

	q.mu.Lock()
	defer q.mu.Unlock()

	compacted := 0
	if len(q.entries) >= q.opts.highWaterMark() {
		compacted = q.compactLocked()
	}
	if len(q.entries) >= q.opts.MaxSize {
		if compacted > 0 {
			q.persistLocked(ctx)
		}
		return false
	}

	q.entries = append(q.entries, Entry{Event: e.Clone(), EnqueuedAt: q.now().UTC()})
	q.persistLocked(ctx)
	return true
}

// Compact drops exhausted entries and, if the queue is still at or above its
// high-water mark, evicts the oldest entries. It returns the number removed.
func (q *Queue) Compact(ctx context.Context) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) < q.opts.highWaterMark() {
		return 0
	}
	n := q.compactLocked()
	if n > 0 {
		q.persistLocked(ctx)
	}
	return n
}

func (q *Queue) compactLocked() int {
	defer metrics.Timer(metrics.Compaction)()

	removed := len(q.removeExhaustedLocked())
	if len(q.entries) < q.opts.highWaterMark() {
		return removed
	}

	evict := q.opts.evictCount()
	if evict > len(q.entries) {
		evict = len(q.entries)
	}
	if evict > 0 {
		q.entries = append([]Entry(nil), q.entries[evict:]...)
		metrics.EventsCompacted.Add(int64(evict))
		q.logger.Warn().Int("evicted", evict).Int("remaining", len(q.entries)).Msg("queue compacted")
	}
	return removed + evict
}

// PeekBatch returns copies of up to n oldest entries without removing them.
func (q *Queue) PeekBatch(n int) []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()

	if n <= 0 || len(q.entries) == 0 {
		return nil
	}
	if n > len(q.entries) {
		n = len(q.entries)
	}
	out := make([]Entry, n)
	for i := 0; i < n; i++ {
		out[i] = q.entries[i]
		out[i].Event = q.entries[i].Event.Clone()
	}
	return out
}

// RemoveBatch removes the entries with the given event ids and returns how
// many were found.
func (q *Queue) RemoveBatch(ctx context.Context, ids []string) int {
	if len(ids) == 0 {
		return 0
	}
	set := idSet(ids)

	q.mu.Lock()
	defer q.mu.Unlock()

	kept := q.entries[:0:0]
	removed := 0
	for _, e := range q.entries {
		if _, ok := set[e.ID()]; ok {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	if removed > 0 {
		q.entries = kept
		q.persistLocked(ctx)
	}
	return removed
}

// IncrementRetry bumps the retry count of the given entries and returns how
// many were found.
func (q *Queue) IncrementRetry(ctx context.Context, ids []string) int {
	if len(ids) == 0 {
		return 0
	}
	set := idSet(ids)

	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	for i := range q.entries {
		if _, ok := set[q.entries[i].ID()]; ok {
			q.entries[i].RetryCount++
			n++
		}
	}
	if n > 0 {
		q.persistLocked(ctx)
	}
	return n
}

// DropExhausted removes entries that reached MaxRetries failed attempts and
// returns them.
func (q *Queue) DropExhausted(ctx context.Context) []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()

	dropped := q.removeExhaustedLocked()
	if len(dropped) > 0 {
		q.persistLocked(ctx)
	}
	return dropped
}

func (q *Queue) removeExhaustedLocked() []Entry {
	var dropped []Entry
	kept := q.entries[:0:0]
	for _, e := range q.entries {
		if e.RetryCount >= q.opts.MaxRetries {
			dropped = append(dropped, e)
			continue
		}
		kept = append(kept, e)
	}
	if len(dropped) > 0 {
		q.entries = kept
	}
	return dropped
}

// ReplaceEvents swaps in new versions of queued events, matched by id,
// keeping each entry's position and retry count. It returns how many
// entries were replaced.
func (q *Queue) ReplaceEvents(ctx context.Context, events []model.Event) int {
	if len(events) == 0 {
		return 0
	}
	byID := make(map[string]model.Event, len(events))
	for _, e := range events {
		byID[e.ID] = e
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	for i := range q.entries {
		if e, ok := byID[q.entries[i].ID()]; ok {
			q.entries[i].Event = e.Clone()
			n++
		}
	}
	if n > 0 {
		q.persistLocked(ctx)
	}
	return n
}

// persistLocked writes the full entry list through to the store. Failures
// are logged and the in-memory state is kept; the next successful write
// brings the store back in sync. Cancellation of ctx does not abort the
// write.
func (q *Queue) persistLocked(ctx context.Context) {
	records, err := store.EncodeAll(q.entries)
	if err != nil {
		q.logger.Error().Err(err).Msg("encoding queue")
		return
	}
	if err := q.st.Set(context.WithoutCancel(ctx), store.KeyAnalyticsQueue, records); err != nil {
		q.logger.Error().Err(err).Int("entries", len(q.entries)).Msg("persisting queue")
	}
}

func idSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
