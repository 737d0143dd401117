// Package delivery pushes derived signals to the downstream web endpoint.
package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/forid0k/signalx/internal/metrics"
	"github.com/forid0k/signalx/internal/signal"
)

const (
	defaultAttempts = 3
	defaultBackoff  = 500 * time.Millisecond
)

// Failure reports a signal that stayed undelivered after every attempt.
type Failure struct {
	Attempts int
	Err      error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("delivery failed after %d attempts: %v", f.Attempts, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// pushBody is the wire contract of the downstream endpoint. Field names and
// presence are fixed; downstream consumers depend on them.
type pushBody struct {
	Issue      string  `json:"issue"`
	Number     int     `json:"number"`
	SizeClass  string  `json:"sizeClass"`
	Parity     string  `json:"parity"`
	Confidence float64 `json:"confidence"`
	ProducedAt string  `json:"producedAt"`
}

// Client submits signals to one push target with bounded retries. The target
// never changes after construction.
type Client struct {
	url      string
	apiKey   string
	attempts int
	backoff  time.Duration
	log      zerolog.Logger

	Http *http.Client
}

// NewClient builds a push client. Non-positive attempts or backoff fall back
// to the defaults.
func NewClient(url, apiKey string, attempts int, backoff time.Duration, log zerolog.Logger) *Client {
	if attempts <= 0 {
		attempts = defaultAttempts
	}
	if backoff <= 0 {
		backoff = defaultBackoff
	}
	return &Client{
		url:      url,
		apiKey:   apiKey,
		attempts: attempts,
		backoff:  backoff,
		log:      log,
		Http:     &http.Client{Timeout: 10 * time.Second},
	}
}

// Push delivers one signal, retrying transport errors and non-2xx responses
// with doubling backoff. It returns a *Failure once attempts are exhausted;
// callers log it and move on, the next signal still gets delivered.
// Cancelling ctx stops new attempts; the attempt already in flight runs to
// the client timeout.
func (c *Client) Push(ctx context.Context, sig signal.Signal) error {
	body, err := json.Marshal(pushBody{
		Issue:      sig.Issue,
		Number:     sig.Number,
		SizeClass:  string(sig.Size),
		Parity:     string(sig.Parity),
		Confidence: sig.Confidence,
		ProducedAt: sig.ProducedAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("encode signal: %w", err)
	}

	// one correlation id across every attempt for this signal
	requestID := uuid.NewString()
	wait := c.backoff
	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		if attempt > 1 {
			c.log.Warn().Err(lastErr).Str("issue", sig.Issue).Int("attempt", attempt).Msg("retrying signal delivery")
			metrics.DeliveryRetriesTotal.Inc()
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return &Failure{Attempts: attempt - 1, Err: ctx.Err()}
			}
			wait *= 2
		}
		lastErr = c.send(ctx, body, requestID)
		if lastErr == nil {
			metrics.DeliveriesTotal.Inc()
			return nil
		}
	}
	metrics.DeliveryFailuresTotal.Inc()
	return &Failure{Attempts: c.attempts, Err: lastErr}
}

func (c *Client) send(ctx context.Context, body []byte, requestID string) error {
	// A started attempt must complete or hit the client timeout, never die
	// to shutdown mid-request.
	req, err := http.NewRequestWithContext(context.WithoutCancel(ctx), http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", requestID)
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.Http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("push status %d", resp.StatusCode)
	}
	return nil
}
