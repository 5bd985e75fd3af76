// Package analytics is the privacy-preserving telemetry pipeline: it
// sanitizes properties against a closed event taxonomy, stamps identity
// according to the current privacy mode, queues events durably and
// delivers them in batches.
//
// Logging is fire-and-forget. Client.Log never returns an error and never
// waits on the network; failures are visible only through Stats, the
// optional drop handler and the operator log.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vanderheijden86/aios/internal/store"
	"github.com/vanderheijden86/aios/pkg/analytics/queue"
	"github.com/vanderheijden86/aios/pkg/analytics/transport"
	"github.com/vanderheijden86/aios/pkg/config"
	"github.com/vanderheijden86/aios/pkg/debug"
	"github.com/vanderheijden86/aios/pkg/metrics"
	"github.com/vanderheijden86/aios/pkg/model"
)

// ErrNotInitialized is returned by operations that require Initialize.
var ErrNotInitialized = errors.New("analytics: client not initialized")

// BackgroundFlushTimeout bounds the flush triggered by OnBackground and Close.
const BackgroundFlushTimeout = 5 * time.Second

// Config holds the client settings.
type Config struct {
	Enabled       bool
	BatchSize     int
	FlushInterval time.Duration
	UserID        string
	Queue         queue.Options
	Backoff       transport.Backoff
}

// DefaultConfig returns the standard client settings.
func DefaultConfig() Config {
	return Config{
		Enabled:       true,
		BatchSize:     50,
		FlushInterval: 30 * time.Second,
		Queue:         queue.DefaultOptions(),
		Backoff:       transport.DefaultBackoff(),
	}
}

// ConfigFrom converts the file configuration into client settings.
func ConfigFrom(a config.AnalyticsConfig) Config {
	return Config{
		Enabled:       a.IsEnabled(),
		BatchSize:     a.BatchSize,
		FlushInterval: a.FlushInterval,
		UserID:        a.UserID,
		Queue: queue.Options{
			MaxSize:         a.Queue.MaxSize,
			HighWater:       a.Queue.HighWater,
			CompactFraction: a.Queue.CompactFraction,
			MaxRetries:      a.Queue.MaxRetries,
		},
		Backoff: transport.Backoff{
			Base:   a.Backoff.Base,
			Max:    a.Backoff.Max,
			Jitter: a.Backoff.Jitter,
		},
	}
}

// DropReason explains why an event never reached the endpoint.
type DropReason int

const (
	DropUnknownEvent DropReason = iota
	DropNotInitialized
	DropQueueFull
	DropRetriesExhausted
	DropFatal
	numDropReasons
)

func (r DropReason) String() string {
	switch r {
	case DropUnknownEvent:
		return "unknown_event"
	case DropNotInitialized:
		return "not_initialized"
	case DropQueueFull:
		return "queue_full"
	case DropRetriesExhausted:
		return "retries_exhausted"
	case DropFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// DropHandler observes dropped events.
type DropHandler func(name model.EventName, reason DropReason)

// Client is the analytics orchestrator. Construct one per process with New
// and pass it to the code that logs events.
type Client struct {
	cfg       Config
	st        store.Store
	sender    transport.Sender
	sanitizer *Sanitizer
	queue     *queue.Queue
	logger    zerolog.Logger
	now       func() time.Time
	onDrop    DropHandler

	enabled atomic.Bool

	mu          sync.RWMutex
	initialized bool
	prefs       Prefs
	stable      *StableIdentity
	identity    IdentityProvider
	// prefsPending is set while the stored preference could not be read.
	// The client runs in privacy mode with in-memory ids until a reload
	// succeeds, and never writes the preference record in the meantime.
	prefsPending  bool
	privacyChosen bool

	flushMu sync.Mutex

	gateMu      sync.Mutex
	failures    int
	nextAttempt time.Time

	loopMu   sync.Mutex
	stopLoop context.CancelFunc
	loopDone chan struct{}

	logged      atomic.Int64
	delivered   atomic.Int64
	resanitized atomic.Int64
	batchesSent atomic.Int64
	retried     atomic.Int64
	failed      atomic.Int64
	dropped     [numDropReasons]atomic.Int64
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the operator logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithSender sets the batch transport. Without a sender events are queued
// but never flushed.
func WithSender(s transport.Sender) Option {
	return func(c *Client) { c.sender = s }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithDropHandler registers a callback invoked for every dropped event.
func WithDropHandler(h DropHandler) Option {
	return func(c *Client) { c.onDrop = h }
}

// WithModules sets the registry used to validate module_id values.
func WithModules(reg model.ModuleRegistry) Option {
	return func(c *Client) { c.sanitizer = NewSanitizer(reg) }
}

// New returns a client persisting into st. Call Initialize before logging.
func New(st store.Store, cfg Config, opts ...Option) *Client {
	d := DefaultConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = d.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = d.FlushInterval
	}

	c := &Client{
		cfg:       cfg,
		st:        st,
		sanitizer: NewSanitizer(nil),
		logger:    zerolog.Nop(),
		now:       time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	c.enabled.Store(cfg.Enabled)
	c.queue = queue.New(st, cfg.Queue,
		queue.WithLogger(c.logger.With().Str("component", "queue").Logger()),
		queue.WithClock(c.now),
	)
	return c
}

// Initialize restores the persisted privacy preference and queue. It is
// idempotent. Storage failures are logged and returned, but the client is
// usable afterwards with whatever state could be recovered.
func (c *Client) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.initialized {
		return nil
	}

	var errs []error
	prefs, err := loadPrefs(ctx, c.st)
	if err != nil {
		c.logger.Error().Err(err).Msg("loading analytics preferences, running in privacy mode until they can be read")
		errs = append(errs, err)
		if _, err := prefs.complete(c.cfg.UserID); err != nil {
			errs = append(errs, err)
		}
		prefs.PrivacyMode = true
		c.prefsPending = true
		c.adoptPrefsLocked(prefs)
	} else if err := c.applyLoadedPrefsLocked(ctx, prefs, false); err != nil {
		errs = append(errs, err)
	}

	discarded, err := c.queue.Load(ctx)
	if err != nil {
		c.logger.Error().Err(err).Msg("loading event queue")
		errs = append(errs, err)
	}
	c.logger.Info().
		Bool("privacy_mode", c.prefs.PrivacyMode).
		Bool("prefs_pending", c.prefsPending).
		Int("queued", c.queue.Len()).
		Int("discarded", discarded).
		Msg("analytics initialized")

	c.initialized = true
	return errors.Join(errs...)
}

// applyLoadedPrefsLocked completes freshly loaded preferences, persists
// any ids it had to generate and switches to the resulting identity.
func (c *Client) applyLoadedPrefsLocked(ctx context.Context, prefs Prefs, dirty bool) error {
	var errs []error
	changed, err := prefs.complete(c.cfg.UserID)
	if err != nil {
		errs = append(errs, err)
	}
	if changed || dirty {
		if err := savePrefs(ctx, c.st, prefs); err != nil {
			c.logger.Error().Err(err).Msg("saving analytics preferences")
			errs = append(errs, err)
		}
	}
	c.adoptPrefsLocked(prefs)
	return errors.Join(errs...)
}

func (c *Client) adoptPrefsLocked(prefs Prefs) {
	modeChanged := c.identity == nil || c.prefs.PrivacyMode != prefs.PrivacyMode
	idsChanged := c.stable == nil || c.prefs.UserID != prefs.UserID || c.prefs.DeviceID != prefs.DeviceID
	secretChanged := c.prefs.AnonSecret != prefs.AnonSecret
	c.prefs = prefs
	if idsChanged {
		c.stable = NewStableIdentity(prefs.UserID, prefs.DeviceID)
	}
	if modeChanged || idsChanged || secretChanged {
		if prefs.PrivacyMode {
			c.identity = NewAnonymousIdentity(prefs.secret())
		} else {
			c.identity = c.stable
		}
	}
}

// reloadPrefsLocked retries reading the stored preference after Initialize
// failed to. A privacy choice made in the meantime wins over the stored
// value and is persisted together with the stored ids.
func (c *Client) reloadPrefsLocked(ctx context.Context) error {
	if !c.prefsPending {
		return nil
	}
	prefs, err := loadPrefs(ctx, c.st)
	if err != nil {
		return err
	}
	c.prefsPending = false
	dirty := c.privacyChosen && prefs.PrivacyMode != c.prefs.PrivacyMode
	if dirty {
		prefs.PrivacyMode = c.prefs.PrivacyMode
	}
	c.privacyChosen = false
	err = c.applyLoadedPrefsLocked(ctx, prefs, dirty)
	c.logger.Info().Bool("privacy_mode", c.prefs.PrivacyMode).Msg("analytics preferences recovered")
	return err
}

func (c *Client) retryPendingPrefs(ctx context.Context) {
	c.mu.RLock()
	pending := c.prefsPending
	c.mu.RUnlock()
	if !pending {
		return
	}
	c.mu.Lock()
	err := c.reloadPrefsLocked(ctx)
	c.mu.Unlock()
	if err != nil {
		c.logger.Debug().Err(err).Msg("analytics preferences still unreadable")
	}
}

// SetEnabled turns the whole pipeline on or off at runtime. While disabled,
// Log is a no-op and Flush does nothing.
func (c *Client) SetEnabled(enabled bool) {
	if c.enabled.Swap(enabled) != enabled {
		c.logger.Info().Bool("enabled", enabled).Msg("analytics enabled flag changed")
	}
}

// Enabled reports whether the pipeline is on.
func (c *Client) Enabled() bool { return c.enabled.Load() }

// Log records an event. Unknown names are dropped, props are sanitized for
// the current mode and the event is queued. Log never blocks on the network
// and reports nothing to the caller.
func (c *Client) Log(ctx context.Context, name model.EventName, props map[string]any) {
	if !c.enabled.Load() {
		return
	}

	c.mu.RLock()
	initialized, identity := c.initialized, c.identity
	c.mu.RUnlock()
	if !initialized {
		debug.Warn("analytics", "dropping %s: client not initialized", name)
		c.drop(name, DropNotInitialized)
		return
	}

	clean, rep, err := c.sanitizer.Sanitize(name, props)
	if err != nil {
		debug.Warn("analytics", "dropping unknown event %q", name)
		c.drop(name, DropUnknownEvent)
		return
	}
	if len(rep.Forbidden) > 0 {
		debug.Warn("analytics", "%s: dropped forbidden props %v", name, rep.Forbidden)
	}
	if len(rep.NotAllowed) > 0 {
		debug.Warn("analytics", "%s: dropped props not on allowlist %v", name, rep.NotAllowed)
	}
	if len(rep.Invalid) > 0 {
		debug.Warn("analytics", "%s: dropped props with unusable values %v", name, rep.Invalid)
	}

	now := c.now()
	e := model.Event{
		ID:       uuid.NewString(),
		Name:     name,
		ModuleID: model.ModuleID(clean[model.PropModuleID]),
		Props:    clean,
	}
	c.stamp(&e, identity, now)

	if !c.queue.Enqueue(ctx, e) {
		c.logger.Warn().Str("event", string(name)).Msg("event queue full, dropping event")
		c.drop(name, DropQueueFull)
		return
	}
	c.logged.Add(1)
	metrics.EventsLogged.Inc()
}

// stamp applies identity fields and the time representation of the
// provider's mode.
func (c *Client) stamp(e *model.Event, identity IdentityProvider, now time.Time) {
	f := identity.Fields(now)
	e.Mode = identity.Mode()
	e.SessionID = f.SessionID
	switch e.Mode {
	case model.ModePrivacy:
		e.AnonID = f.AnonID
		dow, hour := CoarseTime(now)
		e.DayOfWeek, e.HourOfDay = &dow, &hour
	default:
		e.UserID, e.DeviceID = f.UserID, f.DeviceID
		ts := now.UTC()
		e.OccurredAt = &ts
	}
}

// resanitize brings an event queued under another mode in line with the
// current one. Moving into privacy mode strips stable identity and
// coarsens the timestamp. Moving out of privacy mode only drops the anon
// id: the event keeps its anonymous session and coarse time and never gains
// stable identity.
func (c *Client) resanitize(e model.Event, identity IdentityProvider, now time.Time) model.Event {
	out := e.Clone()
	if props, _, err := c.sanitizer.SanitizeStrings(out.Name, out.Props); err == nil {
		out.Props = props
	}

	switch identity.Mode() {
	case model.ModePrivacy:
		at := now
		if out.OccurredAt != nil {
			at = *out.OccurredAt
			dow, hour := CoarseTime(at)
			out.DayOfWeek, out.HourOfDay = &dow, &hour
		}
		f := identity.Fields(at)
		out.UserID, out.DeviceID, out.OccurredAt = "", "", nil
		out.AnonID = f.AnonID
		out.SessionID = f.SessionID
		out.Mode = model.ModePrivacy
	default:
		out.AnonID = ""
		out.Mode = model.ModeDefault
	}
	return out
}

func (c *Client) drop(name model.EventName, reason DropReason) {
	c.dropped[reason].Add(1)
	metrics.EventsDropped.Inc()
	if c.onDrop != nil {
		c.onDrop(name, reason)
	}
}

// EnablePrivacyMode persists privacy mode, switches to anonymous identity
// and logs the change under the new mode. The switch takes effect even if
// persisting the preference fails; the persistence error is returned.
func (c *Client) EnablePrivacyMode(ctx context.Context) error {
	return c.setPrivacyMode(ctx, true)
}

// DisablePrivacyMode persists default mode, switches back to stable
// identity and logs the change under the new mode.
func (c *Client) DisablePrivacyMode(ctx context.Context) error {
	return c.setPrivacyMode(ctx, false)
}

func (c *Client) setPrivacyMode(ctx context.Context, on bool) error {
	c.mu.Lock()
	if !c.initialized {
		c.mu.Unlock()
		return ErrNotInitialized
	}
	var err error
	if reloadErr := c.reloadPrefsLocked(ctx); reloadErr != nil && c.prefsPending {
		c.privacyChosen = true
		err = fmt.Errorf("privacy mode not persisted: %w", reloadErr)
	}
	if c.prefs.PrivacyMode == on {
		c.mu.Unlock()
		return err
	}
	c.prefs.PrivacyMode = on
	if !c.prefsPending {
		err = savePrefs(ctx, c.st, c.prefs)
	}
	if on {
		c.identity = NewAnonymousIdentity(c.prefs.secret())
	} else {
		c.identity = c.stable
	}
	c.mu.Unlock()

	if err != nil {
		c.logger.Error().Err(err).Bool("privacy_mode", on).Msg("persisting privacy mode")
	}
	c.logger.Info().Bool("privacy_mode", on).Msg("privacy mode changed")
	c.Log(ctx, model.EventPrivacyModeChanged, map[string]any{"enabled": on})
	return err
}

// IsPrivacyModeEnabled reports the current mode.
func (c *Client) IsPrivacyModeEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.prefs.PrivacyMode
}

// QueueLen returns the number of events waiting for delivery.
func (c *Client) QueueLen() int { return c.queue.Len() }

// Stats is a snapshot of the client's counters.
type Stats struct {
	Logged         int64                 `json:"logged"`
	Delivered      int64                 `json:"delivered"`
	Resanitized    int64                 `json:"resanitized"`
	BatchesSent    int64                 `json:"batches_sent"`
	BatchesRetried int64                 `json:"batches_retried"`
	BatchesFailed  int64                 `json:"batches_failed"`
	Dropped        map[string]int64      `json:"dropped"`
	Queued         int                   `json:"queued"`
	PrivacyMode    bool                  `json:"privacy_mode"`
	Enabled        bool                  `json:"enabled"`
	NextAttempt    time.Time             `json:"next_attempt,omitempty"`
	Timings        []metrics.TimingStats `json:"timings,omitempty"`
}

// TotalDropped sums drops over all reasons.
func (s Stats) TotalDropped() int64 {
	var n int64
	for _, v := range s.Dropped {
		n += v
	}
	return n
}

// Stats returns the current counters.
func (c *Client) Stats() Stats {
	s := Stats{
		Logged:         c.logged.Load(),
		Delivered:      c.delivered.Load(),
		Resanitized:    c.resanitized.Load(),
		BatchesSent:    c.batchesSent.Load(),
		BatchesRetried: c.retried.Load(),
		BatchesFailed:  c.failed.Load(),
		Dropped:        make(map[string]int64, numDropReasons),
		Queued:         c.queue.Len(),
		PrivacyMode:    c.IsPrivacyModeEnabled(),
		Enabled:        c.Enabled(),
		Timings:        metrics.AllTimingStats(),
	}
	for r := DropReason(0); r < numDropReasons; r++ {
		if v := c.dropped[r].Load(); v > 0 {
			s.Dropped[r.String()] = v
		}
	}
	c.gateMu.Lock()
	s.NextAttempt = c.nextAttempt
	c.gateMu.Unlock()
	return s
}
