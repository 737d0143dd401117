// Package stream maintains the live websocket session against the
// round-result push service.
package stream

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/forid0k/signalx/internal/metrics"
)

const (
	defaultPingInterval = 15 * time.Second
	defaultIdleTimeout  = 45 * time.Second
	defaultBackoffBase  = time.Second
	defaultBackoffCap   = 60 * time.Second
)

type subscribeFrame struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

// Session owns the connection lifecycle: dial, subscribe, keepalive, and
// reconnect with capped exponential backoff. The connection handle never
// leaves the session.
type Session struct {
	url              string
	subscribeEvent   string
	subscribePayload any
	pingInterval     time.Duration
	idleTimeout      time.Duration
	backoffBase      time.Duration
	backoffCap       time.Duration
	log              zerolog.Logger
	dialer           *websocket.Dialer
}

// Option configures Session construction parameters.
type Option func(*Session)

// WithSubscribe sets the one-shot subscribe message sent after each connect.
func WithSubscribe(event string, payload any) Option {
	return func(s *Session) {
		s.subscribeEvent = event
		s.subscribePayload = payload
	}
}

// WithKeepalive overrides the ping cadence and the inbound idle timeout.
func WithKeepalive(ping, idle time.Duration) Option {
	return func(s *Session) {
		if ping > 0 {
			s.pingInterval = ping
		}
		if idle > 0 {
			s.idleTimeout = idle
		}
	}
}

// WithBackoff overrides reconnect pacing.
func WithBackoff(base, cap time.Duration) Option {
	return func(s *Session) {
		if base > 0 {
			s.backoffBase = base
		}
		if cap > 0 {
			s.backoffCap = cap
		}
	}
}

// NewSession builds a session against base+path with the given query
// parameters. http(s) schemes normalize to ws(s); session-bound URLs are
// deliberately unsupported since they expire.
func NewSession(baseURL, path string, query map[string]string, log zerolog.Logger, opts ...Option) (*Session, error) {
	target, err := buildURL(baseURL, path, query)
	if err != nil {
		return nil, err
	}
	s := &Session{
		url:          target,
		pingInterval: defaultPingInterval,
		idleTimeout:  defaultIdleTimeout,
		backoffBase:  defaultBackoffBase,
		backoffCap:   defaultBackoffCap,
		log:          log,
		dialer:       &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// URL returns the resolved websocket endpoint.
func (s *Session) URL() string { return s.url }

// Run feeds raw inbound frames onto out, in order, until the context is
// canceled. Disconnects and handshake failures retry forever with doubling
// backoff up to the cap; the delay resets to base once a connection has
// produced at least one message.
func (s *Session) Run(ctx context.Context, out chan<- []byte) error {
	backoff := s.backoffBase
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		got, err := s.consume(ctx, out)
		if got {
			backoff = s.backoffBase
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			metrics.ReconnectsTotal.Inc()
			s.log.Warn().Err(err).Dur("backoff", backoff).Msg("stream disconnected, retrying")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff = time.Duration(math.Min(float64(s.backoffCap), float64(backoff)*2))
			continue
		}
		return nil
	}
}

// consume runs one connection to completion and reports whether it yielded
// any messages.
func (s *Session) consume(ctx context.Context, out chan<- []byte) (bool, error) {
	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return false, fmt.Errorf("dial stream: %w", err)
	}
	defer conn.Close()

	s.log.Info().Str("url", s.url).Msg("connected round-result stream")

	conn.SetReadLimit(1 << 20)
	conn.SetReadDeadline(time.Now().Add(s.idleTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.idleTimeout))
		return nil
	})

	if s.subscribeEvent != "" {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteJSON(subscribeFrame{Event: s.subscribeEvent, Payload: s.subscribePayload}); err != nil {
			// fire-and-forget: sources without a subscribe handshake still stream
			s.log.Warn().Err(err).Msg("subscribe send failed")
		}
	}

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go func() {
		ticker := time.NewTicker(s.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					s.log.Warn().Err(err).Msg("stream ping failed")
					return
				}
			case <-pingCtx.Done():
				return
			}
		}
	}()
	go func() {
		// unblocks the read loop when the context ends
		<-pingCtx.Done()
		conn.Close()
	}()

	got := false
	for {
		select {
		case <-ctx.Done():
			return got, ctx.Err()
		default:
		}
		_, message, err := conn.ReadMessage()
		if err != nil {
			return got, err
		}
		conn.SetReadDeadline(time.Now().Add(s.idleTimeout))
		got = true

		select {
		case out <- message:
			metrics.MessagesTotal.Inc()
		case <-ctx.Done():
			return got, ctx.Err()
		}
	}
}

func buildURL(base, path string, query map[string]string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return "", fmt.Errorf("parse stream url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported stream scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("stream url %q has no host", base)
	}
	if path != "" {
		u.Path = strings.TrimSuffix(u.Path, "/") + "/" + strings.TrimPrefix(path, "/")
	}
	q := u.Query()
	for k, v := range query {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
