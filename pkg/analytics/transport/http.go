// Package transport delivers batches of sanitized events to the remote
// ingestion endpoint and classifies the outcome for the retry policy.
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vanderheijden86/aios/pkg/metrics"
	"github.com/vanderheijden86/aios/pkg/model"
	"github.com/vanderheijden86/aios/pkg/version"
)

// Outcome classifies a delivery attempt.
type Outcome int

const (
	// Success means the endpoint acknowledged the batch.
	Success Outcome = iota
	// Retryable covers server errors, timeouts and network failures.
	Retryable
	// Fatal covers client errors; resending the same batch would fail identically.
	Fatal
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Retryable:
		return "retryable"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Result is the outcome of one Send call.
type Result struct {
	Outcome    Outcome
	StatusCode int // 0 when no response was received
	Err        error
}

// Sender delivers one batch.
type Sender interface {
	Send(ctx context.Context, batch []model.Event) Result
}

// Payload is the JSON body posted to the ingestion endpoint.
type Payload struct {
	BatchID string        `json:"batch_id"`
	SentAt  time.Time     `json:"sent_at"`
	Events  []model.Event `json:"events"`
}

// Classify maps an HTTP status code to an Outcome. Request timeout (408)
// and rate limiting (429) are transient and therefore retryable.
func Classify(status int) Outcome {
	switch {
	case status >= 200 && status < 300:
		return Success
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests:
		return Retryable
	case status >= 400 && status < 500:
		return Fatal
	default:
		return Retryable
	}
}

// HTTPSender posts batches as JSON to a single endpoint.
type HTTPSender struct {
	endpoint string
	client   *http.Client
	timeout  time.Duration
	headers  http.Header
	logger   zerolog.Logger
	now      func() time.Time
}

// HTTPOption configures an HTTPSender.
type HTTPOption func(*HTTPSender)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(s *HTTPSender) { s.client = c }
}

// WithTimeout sets the per-attempt deadline.
func WithTimeout(d time.Duration) HTTPOption {
	return func(s *HTTPSender) { s.timeout = d }
}

// WithHeader adds a header to every request.
func WithHeader(key, value string) HTTPOption {
	return func(s *HTTPSender) { s.headers.Add(key, value) }
}

// WithLogger sets the operator logger.
func WithLogger(l zerolog.Logger) HTTPOption {
	return func(s *HTTPSender) { s.logger = l }
}

// NewHTTPSender returns a sender posting to endpoint.
func NewHTTPSender(endpoint string, opts ...HTTPOption) *HTTPSender {
	s := &HTTPSender{
		endpoint: endpoint,
		client:   &http.Client{},
		timeout:  10 * time.Second,
		headers:  make(http.Header),
		logger:   zerolog.Nop(),
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Endpoint returns the configured endpoint URL.
func (s *HTTPSender) Endpoint() string { return s.endpoint }

// Send posts batch and classifies the response. Expiry of the per-attempt
// timeout is reported as Retryable.
func (s *HTTPSender) Send(ctx context.Context, batch []model.Event) Result {
	defer metrics.Timer(metrics.TransportSend)()

	body, err := json.Marshal(Payload{
		BatchID: uuid.NewString(),
		SentAt:  s.now().UTC(),
		Events:  batch,
	})
	if err != nil {
		return Result{Outcome: Fatal, Err: fmt.Errorf("encoding batch: %w", err)}
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{Outcome: Fatal, Err: fmt.Errorf("building request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	for k, vs := range s.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := s.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("request timed out: %w", err)
		}
		return Result{Outcome: Retryable, Err: err}
	}
	defer resp.Body.Close()
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

	outcome := Classify(resp.StatusCode)
	res := Result{Outcome: outcome, StatusCode: resp.StatusCode}
	if outcome != Success {
		res.Err = fmt.Errorf("ingestion endpoint returned %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}
	s.logger.Debug().
		Int("events", len(batch)).
		Int("status", resp.StatusCode).
		Str("outcome", outcome.String()).
		Msg("batch sent")
	return res
}
