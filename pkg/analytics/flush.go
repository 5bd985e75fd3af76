package analytics

import (
	"context"
	"time"

	"github.com/vanderheijden86/aios/pkg/analytics/queue"
	"github.com/vanderheijden86/aios/pkg/analytics/transport"
	"github.com/vanderheijden86/aios/pkg/metrics"
	"github.com/vanderheijden86/aios/pkg/model"
)

// Skip reasons reported by Flush when no batch was sent.
const (
	SkipDisabled   = "disabled"
	SkipNoSender   = "no_sender"
	SkipInProgress = "in_progress"
	SkipBackoff    = "backoff"
	SkipEmpty      = "empty"
)

// FlushReport describes one flush cycle.
type FlushReport struct {
	Skipped     string // non-empty when no batch was sent
	Sent        int
	Delivered   int
	Resanitized int
	Dropped     int // exhausted or fatally rejected entries removed this cycle
	Abandoned   bool
	Outcome     transport.Outcome
	StatusCode  int
	Err         error
	NextAttempt time.Time
}

// Flush delivers at most one batch. Entries queued under a mode other than
// the current one are re-sanitized before sending. On success the batch is
// removed; on a retryable failure its retry counts are bumped, exhausted
// entries are dropped and the next attempt is delayed by the backoff; on a
// fatal failure the batch is dropped. If ctx ends while the batch is in
// flight the batch is left queued untouched.
//
// Only one flush runs at a time; concurrent calls return immediately with
// Skipped set to SkipInProgress.
func (c *Client) Flush(ctx context.Context) (FlushReport, error) {
	c.mu.RLock()
	initialized := c.initialized
	c.mu.RUnlock()
	if !initialized {
		return FlushReport{}, ErrNotInitialized
	}
	c.retryPendingPrefs(ctx)
	c.mu.RLock()
	identity := c.identity
	c.mu.RUnlock()
	if !c.enabled.Load() {
		return FlushReport{Skipped: SkipDisabled}, nil
	}
	if c.sender == nil {
		return FlushReport{Skipped: SkipNoSender}, nil
	}
	if !c.flushMu.TryLock() {
		return FlushReport{Skipped: SkipInProgress}, nil
	}
	defer c.flushMu.Unlock()
	defer metrics.Timer(metrics.FlushCycle)()

	now := c.now()
	c.gateMu.Lock()
	gate := c.nextAttempt
	c.gateMu.Unlock()
	if now.Before(gate) {
		return FlushReport{Skipped: SkipBackoff, NextAttempt: gate}, nil
	}

	var rep FlushReport
	if exhausted := c.queue.DropExhausted(ctx); len(exhausted) > 0 {
		rep.Dropped += len(exhausted)
		c.dropEntries(exhausted, DropRetriesExhausted)
	}

	batch := c.queue.PeekBatch(c.cfg.BatchSize)
	if len(batch) == 0 {
		rep.Skipped = SkipEmpty
		return rep, nil
	}

	mode := identity.Mode()
	events := make([]model.Event, len(batch))
	var rewritten []model.Event
	for i, entry := range batch {
		events[i] = entry.Event
		if entry.Event.Mode != mode {
			events[i] = c.resanitize(entry.Event, identity, now)
			rewritten = append(rewritten, events[i])
		}
	}
	if len(rewritten) > 0 {
		rep.Resanitized = c.queue.ReplaceEvents(ctx, rewritten)
		c.resanitized.Add(int64(rep.Resanitized))
	}

	ids := make([]string, len(batch))
	for i, entry := range batch {
		ids[i] = entry.ID()
	}

	res := c.sender.Send(ctx, events)
	rep.Sent = len(events)
	rep.Outcome, rep.StatusCode, rep.Err = res.Outcome, res.StatusCode, res.Err

	if ctx.Err() != nil && res.Outcome != transport.Success {
		rep.Abandoned = true
		c.logger.Debug().Int("events", len(batch)).Msg("flush abandoned, batch left queued")
		return rep, nil
	}
	c.batchesSent.Add(1)

	switch res.Outcome {
	case transport.Success:
		rep.Delivered = c.queue.RemoveBatch(ctx, ids)
		c.delivered.Add(int64(rep.Delivered))
		metrics.EventsDelivered.Add(int64(rep.Delivered))
		c.resetBackoff()

	case transport.Fatal:
		c.queue.RemoveBatch(ctx, ids)
		rep.Dropped += len(batch)
		c.failed.Add(1)
		metrics.BatchesFailed.Inc()
		c.dropEntries(batch, DropFatal)
		c.logger.Error().Err(res.Err).
			Int("status", res.StatusCode).
			Int("events", len(batch)).
			Msg("ingestion endpoint rejected batch, dropping")
		c.resetBackoff()

	case transport.Retryable:
		c.queue.IncrementRetry(ctx, ids)
		c.retried.Add(1)
		metrics.BatchesRetried.Inc()
		if exhausted := c.queue.DropExhausted(ctx); len(exhausted) > 0 {
			rep.Dropped += len(exhausted)
			c.failed.Add(1)
			metrics.BatchesFailed.Inc()
			c.dropEntries(exhausted, DropRetriesExhausted)
			c.logger.Error().Err(res.Err).
				Int("events", len(exhausted)).
				Int("max_retries", c.queue.Options().MaxRetries).
				Msg("dropping batch after exhausting retries")
		} else {
			c.logger.Warn().Err(res.Err).Int("events", len(batch)).Msg("batch delivery failed, will retry")
		}
		rep.NextAttempt = c.backoffAfterFailure(now)
	}
	return rep, nil
}

func (c *Client) dropEntries(entries []queue.Entry, reason DropReason) {
	for _, e := range entries {
		c.dropped[reason].Add(1)
		metrics.EventsDropped.Inc()
		if c.onDrop != nil {
			c.onDrop(e.Event.Name, reason)
		}
	}
}

func (c *Client) backoffAfterFailure(now time.Time) time.Time {
	c.gateMu.Lock()
	defer c.gateMu.Unlock()
	c.failures++
	c.nextAttempt = now.Add(c.cfg.Backoff.Delay(c.failures))
	return c.nextAttempt
}

func (c *Client) resetBackoff() {
	c.gateMu.Lock()
	c.failures = 0
	c.nextAttempt = time.Time{}
	c.gateMu.Unlock()
}

// Start runs the periodic flush loop until ctx is done or Close is called.
// Calling Start on a running client is a no-op.
func (c *Client) Start(ctx context.Context) {
	c.loopMu.Lock()
	defer c.loopMu.Unlock()
	if c.stopLoop != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.stopLoop, c.loopDone = cancel, done

	go func() {
		defer close(done)
		ticker := time.NewTicker(c.cfg.FlushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := c.Flush(ctx); err != nil {
					c.logger.Error().Err(err).Msg("periodic flush")
				}
			}
		}
	}()
}

// OnForeground flushes opportunistically when the app returns to the
// foreground.
func (c *Client) OnForeground(ctx context.Context) FlushReport {
	rep, _ := c.Flush(ctx)
	return rep
}

// OnBackground flushes with a bounded deadline before the app is
// suspended. A batch still in flight at the deadline stays queued.
func (c *Client) OnBackground(ctx context.Context) FlushReport {
	ctx, cancel := context.WithTimeout(ctx, BackgroundFlushTimeout)
	defer cancel()
	rep, _ := c.Flush(ctx)
	return rep
}

// Close stops the flush loop and makes a final bounded flush attempt.
func (c *Client) Close(ctx context.Context) error {
	c.loopMu.Lock()
	stop, done := c.stopLoop, c.loopDone
	c.stopLoop, c.loopDone = nil, nil
	c.loopMu.Unlock()

	if stop != nil {
		stop()
		<-done
	}

	c.mu.RLock()
	initialized := c.initialized
	c.mu.RUnlock()
	if !initialized {
		return nil
	}
	c.OnBackground(ctx)
	return nil
}
