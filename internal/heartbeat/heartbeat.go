// Package heartbeat periodically reports liveness to an external monitor.
package heartbeat

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/forid0k/signalx/internal/metrics"
)

const defaultInterval = 60 * time.Second

type beatBody struct {
	Status string `json:"status"`
	Ts     int64  `json:"ts"`
}

// Reporter posts a small status document on a fixed interval.
type Reporter struct {
	url      string
	interval time.Duration
	log      zerolog.Logger

	// Http is exported so tests can inject a client.
	Http *http.Client
}

// NewReporter builds a reporter for the given endpoint. A non-positive
// interval falls back to one minute.
func NewReporter(url string, interval time.Duration, log zerolog.Logger) *Reporter {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Reporter{
		url:      url,
		interval: interval,
		log:      log,
		Http:     &http.Client{Timeout: 8 * time.Second},
	}
}

// Run beats once immediately and then on every interval tick until the
// context ends. With no endpoint configured it returns straight away.
func (r *Reporter) Run(ctx context.Context) {
	if r.url == "" {
		return
	}

	r.beat(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.beat(ctx)
		}
	}
}

// A failed beat is logged and skipped. The monitor tolerates gaps and
// the next tick tries again.
func (r *Reporter) beat(ctx context.Context) {
	body, err := json.Marshal(beatBody{Status: "online", Ts: time.Now().Unix()})
	if err != nil {
		r.log.Warn().Err(err).Msg("heartbeat failed")
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		r.log.Warn().Err(err).Msg("heartbeat failed")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.Http.Do(req)
	if err != nil {
		r.log.Warn().Err(err).Msg("heartbeat failed")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		r.log.Warn().Int("status", resp.StatusCode).Msg("heartbeat failed")
		return
	}
	metrics.HeartbeatsTotal.Inc()
}
