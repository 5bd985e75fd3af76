package recommend

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vanderheijden86/aios/internal/store"
	"github.com/vanderheijden86/aios/pkg/model"
)

var (
	// ErrNotFound is returned for an unknown recommendation id.
	ErrNotFound = errors.New("recommendation not found")
	// ErrTerminalStatus is returned when resolving an already resolved recommendation.
	ErrTerminalStatus = errors.New("recommendation already resolved")
)

// Tracker observes recommendation lifecycle changes. The analytics client
// implements it.
type Tracker interface {
	TrackRecommendationGenerated(ctx context.Context, rec model.Recommendation)
	TrackRecommendationAccepted(ctx context.Context, rec model.Recommendation)
	TrackRecommendationDeclined(ctx context.Context, rec model.Recommendation)
}

// Store persists recommendations under a dedicated local-store key. All
// read-modify-write sequences run under one lock, so deduplication and
// status transitions are atomic.
type Store struct {
	mu         sync.Mutex
	st         store.Store
	logger     zerolog.Logger
	now        func() time.Time
	tracker    Tracker
	maxHistory int
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithStoreLogger sets the operator logger.
func WithStoreLogger(l zerolog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// WithStoreClock overrides the time source used for ResolvedAt.
func WithStoreClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// WithStoreTracker reports accept and decline actions.
func WithStoreTracker(t Tracker) StoreOption {
	return func(s *Store) { s.tracker = t }
}

// WithMaxHistory bounds the number of resolved recommendations kept,
// dropping the oldest beyond n. By default history is kept indefinitely.
func WithMaxHistory(n int) StoreOption {
	return func(s *Store) { s.maxHistory = n }
}

// NewStore returns a recommendation store over st.
func NewStore(st store.Store, opts ...StoreOption) *Store {
	s := &Store{
		st:     st,
		logger: zerolog.Nop(),
		now:    time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) loadLocked(ctx context.Context) ([]model.Recommendation, error) {
	records, err := s.st.Get(ctx, store.KeyRecommendations)
	if err != nil {
		return nil, fmt.Errorf("loading recommendations: %w", err)
	}
	recs, discarded := store.DecodeEach[model.Recommendation](records, model.Recommendation.Validate)
	if discarded > 0 {
		s.logger.Warn().Int("discarded", discarded).Msg("skipped corrupt recommendations")
	}
	return recs, nil
}

func (s *Store) saveLocked(ctx context.Context, recs []model.Recommendation) error {
	recs = s.pruneHistory(recs)
	records, err := store.EncodeAll(recs)
	if err != nil {
		return err
	}
	if err := s.st.Set(ctx, store.KeyRecommendations, records); err != nil {
		return fmt.Errorf("saving recommendations: %w", err)
	}
	return nil
}

// pruneHistory drops the oldest resolved recommendations beyond maxHistory.
// Active recommendations are never pruned.
func (s *Store) pruneHistory(recs []model.Recommendation) []model.Recommendation {
	if s.maxHistory <= 0 {
		return recs
	}
	var resolved []int
	for i, r := range recs {
		if r.Status.IsTerminal() {
			resolved = append(resolved, i)
		}
	}
	excess := len(resolved) - s.maxHistory
	if excess <= 0 {
		return recs
	}
	sort.SliceStable(resolved, func(a, b int) bool {
		return resolvedAt(recs[resolved[a]]).Before(resolvedAt(recs[resolved[b]]))
	})
	drop := make(map[int]bool, excess)
	for _, i := range resolved[:excess] {
		drop[i] = true
	}
	out := make([]model.Recommendation, 0, len(recs)-excess)
	for i, r := range recs {
		if !drop[i] {
			out = append(out, r)
		}
	}
	return out
}

func resolvedAt(r model.Recommendation) time.Time {
	if r.ResolvedAt != nil {
		return *r.ResolvedAt
	}
	return r.CreatedAt
}

// Insert persists candidates whose dedup key has no active recommendation.
// The check and the insert happen under the store lock. It returns the
// recommendations created and the number skipped as duplicates.
func (s *Store) Insert(ctx context.Context, candidates []model.Recommendation) (created []model.Recommendation, skipped int, err error) {
	if len(candidates) == 0 {
		return nil, 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	recs, err := s.loadLocked(ctx)
	if err != nil {
		return nil, 0, err
	}
	active := make(map[string]bool, len(recs))
	for _, r := range recs {
		if r.Status == model.StatusActive {
			active[r.DedupKey] = true
		}
	}
	for _, c := range candidates {
		if active[c.DedupKey] {
			skipped++
			continue
		}
		active[c.DedupKey] = true
		recs = append(recs, c)
		created = append(created, c)
	}
	if len(created) == 0 {
		return nil, skipped, nil
	}
	if err := s.saveLocked(ctx, recs); err != nil {
		return nil, skipped, err
	}
	return created, skipped, nil
}

// Active returns active recommendations ordered by priority (descending),
// then creation time (newest first).
func (s *Store) Active(ctx context.Context) ([]model.Recommendation, error) {
	s.mu.Lock()
	recs, err := s.loadLocked(ctx)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	out := make([]model.Recommendation, 0, len(recs))
	for _, r := range recs {
		if r.Status == model.StatusActive {
			out = append(out, r)
		}
	}
	SortForDisplay(out)
	return out, nil
}

// SortForDisplay orders recommendations by priority descending, then
// CreatedAt descending, then id.
func SortForDisplay(recs []model.Recommendation) {
	sort.SliceStable(recs, func(i, j int) bool {
		a, b := recs[i], recs[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

// Get returns the recommendation with the given id.
func (s *Store) Get(ctx context.Context, id string) (model.Recommendation, error) {
	s.mu.Lock()
	recs, err := s.loadLocked(ctx)
	s.mu.Unlock()
	if err != nil {
		return model.Recommendation{}, err
	}
	for _, r := range recs {
		if r.ID == id {
			return r, nil
		}
	}
	return model.Recommendation{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Accept moves an active recommendation to accepted.
func (s *Store) Accept(ctx context.Context, id string) (model.Recommendation, error) {
	rec, err := s.resolve(ctx, id, model.StatusAccepted)
	if err == nil && s.tracker != nil {
		s.tracker.TrackRecommendationAccepted(ctx, rec)
	}
	return rec, err
}

// Decline moves an active recommendation to declined.
func (s *Store) Decline(ctx context.Context, id string) (model.Recommendation, error) {
	rec, err := s.resolve(ctx, id, model.StatusDeclined)
	if err == nil && s.tracker != nil {
		s.tracker.TrackRecommendationDeclined(ctx, rec)
	}
	return rec, err
}

func (s *Store) resolve(ctx context.Context, id string, to model.RecommendationStatus) (model.Recommendation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	recs, err := s.loadLocked(ctx)
	if err != nil {
		return model.Recommendation{}, err
	}
	for i := range recs {
		if recs[i].ID != id {
			continue
		}
		if !recs[i].Status.CanTransitionTo(to) {
			return recs[i], fmt.Errorf("%w: %s is %s", ErrTerminalStatus, id, recs[i].Status)
		}
		now := s.now().UTC()
		recs[i].Status = to
		recs[i].ResolvedAt = &now
		rec := recs[i]
		if err := s.saveLocked(ctx, recs); err != nil {
			return model.Recommendation{}, err
		}
		return rec, nil
	}
	return model.Recommendation{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// History returns resolved recommendations, most recently resolved first.
// A non-positive limit returns all of them.
func (s *Store) History(ctx context.Context, limit int) ([]model.Recommendation, error) {
	s.mu.Lock()
	recs, err := s.loadLocked(ctx)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	var out []model.Recommendation
	for _, r := range recs {
		if r.Status.IsTerminal() {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := resolvedAt(out[i]), resolvedAt(out[j])
		if !a.Equal(b) {
			return a.After(b)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Statistics aggregates all stored recommendations.
func (s *Store) Statistics(ctx context.Context) (Statistics, error) {
	s.mu.Lock()
	recs, err := s.loadLocked(ctx)
	s.mu.Unlock()
	if err != nil {
		return Statistics{}, err
	}
	return ComputeStatistics(recs), nil
}
