package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/forid0k/signalx/internal/config"
	"github.com/forid0k/signalx/internal/dedup"
	"github.com/forid0k/signalx/internal/delivery"
	"github.com/forid0k/signalx/internal/interpret"
	"github.com/forid0k/signalx/internal/journal"
	"github.com/forid0k/signalx/internal/metrics"
	"github.com/forid0k/signalx/internal/notify"
	"github.com/forid0k/signalx/internal/signal"
	"github.com/forid0k/signalx/internal/strategy"
	"github.com/forid0k/signalx/internal/util"
)

const snippetLen = 200

// Pipeline turns one raw round payload into a delivered signal: interpret,
// dedup, derive, push, mirror.
type Pipeline struct {
	log      zerolog.Logger
	interp   *interpret.Interpreter
	guard    *dedup.Guard
	deriver  *strategy.Deriver
	pusher   *delivery.Client
	notifier *notify.Notifier
	journal  *journal.Journal
}

// NewPipeline builds the processing chain from configuration. The push URL
// is the one hard requirement; everything else has a usable default.
func NewPipeline(cfg *config.Config, log zerolog.Logger) (*Pipeline, error) {
	if cfg.Push.URL == "" {
		return nil, fmt.Errorf("push url is required (push.url or WEB_PUSH_URL)")
	}

	rules := interpret.DefaultRules()
	if len(cfg.Parser.IssueFields) > 0 {
		rules.IssueFields = cfg.Parser.IssueFields
	}
	if len(cfg.Parser.NumberFields) > 0 {
		rules.NumberFields = cfg.Parser.NumberFields
	}
	if len(cfg.Parser.WrapperKeys) > 0 {
		rules.WrapperKeys = cfg.Parser.WrapperKeys
	}
	rules.LastDigit = !cfg.Parser.RawNumbers

	p := &Pipeline{
		log:     log,
		interp:  interpret.New(rules),
		guard:   dedup.NewGuard(cfg.Dedup.Capacity, time.Duration(cfg.Dedup.TTLSecs)*time.Second),
		deriver: strategy.Build(cfg.Strategy.Confidence, cfg.Strategy.BigThreshold),
		pusher: delivery.NewClient(
			cfg.Push.URL,
			cfg.Push.APIKey,
			cfg.Push.MaxAttempts,
			time.Duration(cfg.Push.BackoffMs)*time.Millisecond,
			util.Component(log, "delivery"),
		),
		journal: journal.New(64),
	}

	if cfg.Telegram.Enabled {
		notifier, err := notify.New(
			cfg.Telegram.Token,
			cfg.Telegram.APIEndpoint,
			cfg.Telegram.ChatID,
			cfg.Telegram.Label,
			util.Component(log, "telegram"),
		)
		if err != nil {
			return nil, fmt.Errorf("telegram setup: %w", err)
		}
		p.notifier = notifier
	}
	return p, nil
}

// Interpreter exposes the payload interpreter so backfill can reuse the
// exact field rules the live stream runs with.
func (p *Pipeline) Interpreter() *interpret.Interpreter { return p.interp }

// Notifier exposes the telegram mirror so callers can run its worker. It is
// nil when the mirror is disabled.
func (p *Pipeline) Notifier() *notify.Notifier { return p.notifier }

// Handle processes one raw frame end to end. Failures stay contained to the
// frame: a bad payload, a duplicate, or a delivery error never stops the loop.
func (p *Pipeline) Handle(ctx context.Context, raw []byte) {
	res, err := p.interp.Parse(raw)
	if err != nil {
		reason := "unknown"
		var parseErr *interpret.ParseError
		if errors.As(err, &parseErr) {
			reason = string(parseErr.Reason)
		}
		metrics.ParseFailuresTotal.WithLabelValues(reason).Inc()
		p.log.Debug().Str("reason", reason).Str("payload", snippet(raw)).Msg("discarded payload")
		return
	}

	if !p.guard.Admit(res.Issue) {
		metrics.DuplicatesTotal.Inc()
		p.log.Debug().Str("issue", res.Issue).Msg("duplicate round skipped")
		return
	}

	sig := p.deriver.Derive(res)
	metrics.SignalsTotal.WithLabelValues(string(sig.Size), string(sig.Parity)).Inc()
	p.journal.Record(sig)
	p.log.Info().
		Str("issue", sig.Issue).
		Int("number", sig.Number).
		Str("size", string(sig.Size)).
		Str("parity", string(sig.Parity)).
		Float64("confidence", sig.Confidence).
		Msg("signal produced")

	if err := p.pusher.Push(ctx, sig); err != nil {
		p.log.Error().Err(err).Str("issue", sig.Issue).Msg("signal delivery failed")
	}

	// The mirror is best-effort and independent of delivery outcome.
	if p.notifier != nil {
		p.notifier.Notify(sig)
	}
}

// Last returns the most recently produced signal.
func (p *Pipeline) Last() (signal.Signal, bool) { return p.journal.Last() }

func snippet(raw []byte) string {
	if len(raw) <= snippetLen {
		return string(raw)
	}
	return string(raw[:snippetLen]) + "..."
}
