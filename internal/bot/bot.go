// Package bot assembles the stream session, the processing pipeline, and the
// side channels (heartbeat, backfill, telegram) into one runnable unit.
package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/forid0k/signalx/internal/backfill"
	"github.com/forid0k/signalx/internal/config"
	"github.com/forid0k/signalx/internal/heartbeat"
	"github.com/forid0k/signalx/internal/stream"
	"github.com/forid0k/signalx/internal/util"
)

// Bot owns the long-running pieces of the process.
type Bot struct {
	pipe     *Pipeline
	session  *stream.Session
	beat     *heartbeat.Reporter
	importer *backfill.Importer
	log      zerolog.Logger
	started  time.Time
}

// New wires a Bot from configuration. It fails fast on anything the process
// cannot run without: a push URL, a stream URL, or telegram credentials that
// do not authenticate.
func New(cfg *config.Config, log zerolog.Logger) (*Bot, error) {
	pipe, err := NewPipeline(cfg, log)
	if err != nil {
		return nil, err
	}

	if cfg.Stream.BaseURL == "" {
		return nil, fmt.Errorf("stream base url is required")
	}
	opts := []stream.Option{
		stream.WithKeepalive(
			time.Duration(cfg.Stream.PingIntervalSecs)*time.Second,
			time.Duration(cfg.Stream.IdleTimeoutSecs)*time.Second,
		),
		stream.WithBackoff(
			time.Duration(cfg.Stream.ReconnectBaseMs)*time.Millisecond,
			time.Duration(cfg.Stream.ReconnectCapMs)*time.Millisecond,
		),
	}
	if cfg.Stream.SubscribeEvent != "" {
		opts = append(opts, stream.WithSubscribe(cfg.Stream.SubscribeEvent, cfg.Stream.SubscribePayload))
	}
	session, err := stream.NewSession(cfg.Stream.BaseURL, cfg.Stream.Path, cfg.Stream.Query, util.Component(log, "stream"), opts...)
	if err != nil {
		return nil, err
	}

	b := &Bot{pipe: pipe, session: session, log: log, started: time.Now()}
	if cfg.Heartbeat.URL != "" {
		b.beat = heartbeat.NewReporter(
			cfg.Heartbeat.URL,
			time.Duration(cfg.Heartbeat.IntervalSecs)*time.Second,
			util.Component(log, "heartbeat"),
		)
	}
	if cfg.History.URL != "" && cfg.History.OnStart {
		b.importer = backfill.NewImporter(cfg.History.URL, pipe.Interpreter(), util.Component(log, "backfill"))
	}
	return b, nil
}

// Run replays history when configured, then consumes the live stream until
// the context ends. A cancelled context is a clean stop, not an error.
func (b *Bot) Run(ctx context.Context) error {
	if b.importer != nil {
		if err := b.importer.Run(ctx, b.pipe.Handle); err != nil {
			b.log.Warn().Err(err).Msg("backfill failed, continuing with live stream")
		}
	}
	if b.pipe.notifier != nil {
		go b.pipe.notifier.Run(ctx)
	}
	if b.beat != nil {
		go b.beat.Run(ctx)
	}

	msgs := make(chan []byte, 1024)
	errCh := make(chan error, 1)
	go func() { errCh <- b.session.Run(ctx, msgs) }()

	b.log.Info().Str("stream", b.session.URL()).Msg("signal pipeline started")
	for {
		select {
		case <-ctx.Done():
			b.log.Info().Msg("shutting down")
			return nil
		case err := <-errCh:
			if ctx.Err() != nil {
				return nil
			}
			return err
		case raw := <-msgs:
			b.pipe.Handle(ctx, raw)
		}
	}
}

// Healthz reports liveness plus a small production summary.
func (b *Bot) Healthz() http.HandlerFunc {
	type status struct {
		Status     string `json:"status"`
		UptimeSecs int64  `json:"uptimeSecs"`
		Signals    int    `json:"signals"`
		LastIssue  string `json:"lastIssue,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		s := status{
			Status:     "ok",
			UptimeSecs: int64(time.Since(b.started).Seconds()),
			Signals:    b.pipe.journal.Total(),
		}
		if last, ok := b.pipe.Last(); ok {
			s.LastIssue = last.Issue
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(s)
	}
}
