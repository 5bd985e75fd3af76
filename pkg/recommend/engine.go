// Package recommend implements the Command Center recommendation engine:
// rules inspect a read-only snapshot of notes, tasks and calendar events and
// propose suggestions, which are deduplicated against the active set and
// persisted for display.
package recommend

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mitchellh/hashstructure/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vanderheijden86/aios/internal/datasource"
	"github.com/vanderheijden86/aios/pkg/metrics"
	"github.com/vanderheijden86/aios/pkg/model"
)

// DefaultMaxParallel bounds concurrent rule evaluations.
const DefaultMaxParallel = 8

// RuleFailure records a rule that errored or panicked during a pass.
type RuleFailure struct {
	Kind model.RecommendationKind `json:"kind"`
	Err  string                   `json:"error"`
}

// RunResult summarizes one engine pass.
type RunResult struct {
	Created  []model.Recommendation  `json:"created"`
	Skipped  int                     `json:"skipped"`
	Fired    int                     `json:"fired"`
	Failed   []RuleFailure           `json:"failed,omitempty"`
	DataHash uint64                  `json:"data_hash"`
	Sources  []datasource.LoadResult `json:"sources"`
	Duration time.Duration           `json:"duration"`
	Err      error                   `json:"-"`
}

// Engine evaluates rules against snapshots and persists new recommendations.
type Engine struct {
	reader      datasource.Reader
	store       *Store
	rules       []Rule
	tracker     Tracker
	logger      zerolog.Logger
	now         func() time.Time
	maxParallel int
	modules     model.ModuleRegistry
	newID       func() string
}

// Option configures an Engine.
type Option func(*Engine)

// WithRules replaces the rule set.
func WithRules(rules ...Rule) Option {
	return func(e *Engine) { e.rules = rules }
}

// WithTracker reports generated recommendations.
func WithTracker(t Tracker) Option {
	return func(e *Engine) { e.tracker = t }
}

// WithLogger sets the operator logger.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithClock overrides the time source rules evaluate against.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithModules sets the registry candidate module ids are checked against.
// A nil registry uses model.DefaultModules.
func WithModules(reg model.ModuleRegistry) Option {
	return func(e *Engine) {
		if reg != nil {
			e.modules = reg
		}
	}
}

// WithMaxParallel bounds concurrent rule evaluations.
func WithMaxParallel(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxParallel = n
		}
	}
}

// NewEngine returns an engine using the default rules.
func NewEngine(reader datasource.Reader, st *Store, opts ...Option) *Engine {
	e := &Engine{
		reader:      reader,
		store:       st,
		rules:       DefaultRules(DefaultRuleConfig()),
		logger:      zerolog.Nop(),
		now:         time.Now,
		maxParallel: DefaultMaxParallel,
		modules:     model.DefaultModules(),
		newID:       uuid.NewString,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Rules returns the rules in evaluation order.
func (e *Engine) Rules() []Rule {
	return append([]Rule(nil), e.rules...)
}

type evaluation struct {
	candidate Candidate
	fired     bool
	err       error
}

// Run performs one pass: snapshot, evaluate every rule, dedupe and persist.
// Rule failures are isolated and reported in the result. A storage failure
// while persisting is logged and reported in RunResult.Err; no error is
// returned to the caller.
func (e *Engine) Run(ctx context.Context) RunResult {
	defer metrics.Timer(metrics.EngineRun)()
	start := time.Now()

	snap, sources := e.reader.Snapshot(ctx)
	res := RunResult{Sources: sources}
	for _, s := range sources {
		if s.Error != nil {
			e.logger.Warn().Err(s.Error).Str("source", string(s.Source)).Msg("source unavailable, treating as empty")
		}
	}
	if h, err := hashstructure.Hash(snap, hashstructure.FormatV2, nil); err == nil {
		res.DataHash = h
	}

	now := e.now()
	evals := e.evaluate(ctx, snap, now)

	var candidates []model.Recommendation
	for i, ev := range evals {
		kind := e.rules[i].Kind()
		if ev.err != nil {
			metrics.RuleFailures.Inc()
			res.Failed = append(res.Failed, RuleFailure{Kind: kind, Err: ev.err.Error()})
			e.logger.Error().Err(ev.err).Str("rule", string(kind)).Msg("rule evaluation failed")
			continue
		}
		if !ev.fired {
			continue
		}
		res.Fired++
		candidates = append(candidates, e.materialize(kind, ev.candidate, now))
	}

	created, skipped, err := e.store.Insert(ctx, candidates)
	res.Skipped = skipped
	if err != nil {
		res.Err = err
		e.logger.Error().Err(err).Int("candidates", len(candidates)).Msg("persisting recommendations failed")
	}
	res.Created = created
	metrics.RecommendationsMade.Add(int64(len(created)))
	if e.tracker != nil {
		for _, r := range created {
			e.tracker.TrackRecommendationGenerated(ctx, r)
		}
	}

	res.Duration = time.Since(start)
	e.logger.Debug().
		Int("fired", res.Fired).
		Int("created", len(res.Created)).
		Int("skipped", res.Skipped).
		Int("failed", len(res.Failed)).
		Uint64("data_hash", res.DataHash).
		Dur("took", res.Duration).
		Msg("recommendation pass complete")
	return res
}

// evaluate runs every rule concurrently. The result slice is indexed like
// e.rules so candidate order does not depend on scheduling.
func (e *Engine) evaluate(ctx context.Context, snap model.Snapshot, now time.Time) []evaluation {
	evals := make([]evaluation, len(e.rules))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.maxParallel)
	for i, rule := range e.rules {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				evals[i].err = err
				return nil
			}
			evals[i] = evalRule(rule, snap, now, e.modules)
			return nil
		})
	}
	_ = g.Wait()
	return evals
}

func evalRule(rule Rule, snap model.Snapshot, now time.Time, modules model.ModuleRegistry) (ev evaluation) {
	defer metrics.Timer(metrics.RuleEvaluation)()
	defer func() {
		if r := recover(); r != nil {
			ev = evaluation{err: fmt.Errorf("rule %s panicked: %v", rule.Kind(), r)}
		}
	}()

	if !rule.Condition(snap, now) {
		return evaluation{}
	}
	c, ok := rule.Generate(snap, now)
	if !ok {
		return evaluation{}
	}
	if c.DedupKey == "" || c.Title == "" {
		return evaluation{err: fmt.Errorf("rule %s produced an incomplete candidate", rule.Kind())}
	}
	if !model.IsKnownModule(modules, c.ModuleID) {
		return evaluation{err: fmt.Errorf("rule %s produced a candidate for unknown module %q", rule.Kind(), c.ModuleID)}
	}
	return evaluation{candidate: c, fired: true}
}

func (e *Engine) materialize(kind model.RecommendationKind, c Candidate, now time.Time) model.Recommendation {
	return model.Recommendation{
		ID:          e.newID(),
		ModuleID:    c.ModuleID,
		Kind:        kind,
		Title:       c.Title,
		Description: c.Description,
		Evidence:    c.Evidence,
		Priority:    c.Priority,
		Status:      model.StatusActive,
		CreatedAt:   now.UTC(),
		DedupKey:    c.DedupKey,
	}
}
