package metrics

import "sync/atomic"

// Counter is a monotonically increasing pipeline counter.
type Counter struct {
	name        string
	description string
	value       atomic.Int64
}

func newCounter(name, description string) *Counter {
	return &Counter{name: name, description: description}
}

// Add increments the counter by n. Non-positive values are ignored.
func (c *Counter) Add(n int64) {
	if !Enabled() || n <= 0 {
		return
	}
	c.value.Add(n)
}

// Inc increments the counter by one.
func (c *Counter) Inc() {
	c.Add(1)
}

// Value returns the current count.
func (c *Counter) Value() int64 {
	return c.value.Load()
}

// Name returns the counter name.
func (c *Counter) Name() string {
	return c.name
}

// Reset sets the counter back to zero.
func (c *Counter) Reset() {
	c.value.Store(0)
}

// Pipeline counters shared by every analytics client in the process.
var (
	EventsLogged        = newCounter("aios.analytics.events_logged", "Events accepted into the queue")
	EventsDropped       = newCounter("aios.analytics.events_dropped", "Events dropped before or after queueing")
	EventsDelivered     = newCounter("aios.analytics.events_delivered", "Events acknowledged by the ingestion endpoint")
	EventsCompacted     = newCounter("aios.analytics.events_compacted", "Events evicted by queue compaction")
	BatchesRetried      = newCounter("aios.analytics.batches_retried", "Batches that failed with a retryable error")
	BatchesFailed       = newCounter("aios.analytics.batches_failed", "Batches dropped after a fatal error or exhausted retries")
	RecommendationsMade = newCounter("aios.recommend.created", "Recommendations persisted by the engine")
	RuleFailures        = newCounter("aios.recommend.rule_failures", "Rule evaluations that failed or panicked")
)

// AllCounters returns all registered counters.
func AllCounters() []*Counter {
	return []*Counter{
		EventsLogged,
		EventsDropped,
		EventsDelivered,
		EventsCompacted,
		BatchesRetried,
		BatchesFailed,
		RecommendationsMade,
		RuleFailures,
	}
}

// CounterValues returns a name -> value snapshot of all counters.
func CounterValues() map[string]int64 {
	out := make(map[string]int64, len(AllCounters()))
	for _, c := range AllCounters() {
		out[c.name] = c.Value()
	}
	return out
}
