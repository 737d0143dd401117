package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/forid0k/signalx/internal/bot"
	"github.com/forid0k/signalx/internal/config"
)

func TestStreamToDeliveryFlow(t *testing.T) {
	var mu sync.Mutex
	var deliveries []map[string]any
	push := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-Key") != "integration-key" {
			t.Errorf("missing api key header")
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode delivery: %v", err)
			return
		}
		mu.Lock()
		deliveries = append(deliveries, body)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer push.Close()

	upgrader := websocket.Upgrader{}
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		frames := []string{
			`{"issueNumber":"20240101001","result":7}`,
			`{"issueNumber":"20240101001","result":7}`,
			`42{"issue":"20240101002","data":{"number":2}}`,
		}
		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer upstream.Close()

	cfg := &config.Config{
		Stream:   config.Stream{BaseURL: upstream.URL},
		Push:     config.Push{URL: push.URL, APIKey: "integration-key", MaxAttempts: 2, BackoffMs: 10},
		Strategy: config.Strategy{BigThreshold: 5},
	}

	b, err := bot.New(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	deadline := time.After(5 * time.Second)
	for {
		mu.Lock()
		n := len(deliveries)
		mu.Unlock()
		if n >= 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for deliveries")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("Run did not stop after cancel")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(deliveries) != 2 {
		t.Fatalf("expected exactly 2 deliveries, got %d", len(deliveries))
	}
	first := deliveries[0]
	if first["issue"] != "20240101001" || first["sizeClass"] != "BIG" || first["parity"] != "ODD" {
		t.Fatalf("unexpected first delivery: %+v", first)
	}
	second := deliveries[1]
	if second["issue"] != "20240101002" || second["sizeClass"] != "SMALL" || second["parity"] != "EVEN" {
		t.Fatalf("unexpected second delivery: %+v", second)
	}
}

func TestGuardSuppressesReplayAcrossReconnect(t *testing.T) {
	var mu sync.Mutex
	var issues []string
	push := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode delivery: %v", err)
			return
		}
		issue, _ := body["issue"].(string)
		mu.Lock()
		issues = append(issues, issue)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer push.Close()

	var conns atomic.Int32
	upgrader := websocket.Upgrader{}
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		// every connection opens with the same round; only the second moves on
		if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"issue":"20240102001","number":7}`)); err != nil {
			return
		}
		if conns.Add(1) == 1 {
			return
		}
		if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"issue":"20240102002","number":2}`)); err != nil {
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer upstream.Close()

	cfg := &config.Config{
		Stream:   config.Stream{BaseURL: upstream.URL, ReconnectBaseMs: 20, ReconnectCapMs: 100},
		Push:     config.Push{URL: push.URL, APIKey: "replay-key", MaxAttempts: 2, BackoffMs: 10},
		Strategy: config.Strategy{BigThreshold: 5},
	}

	b, err := bot.New(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	deadline := time.After(5 * time.Second)
	for {
		mu.Lock()
		last := ""
		if len(issues) > 0 {
			last = issues[len(issues)-1]
		}
		mu.Unlock()
		if last == "20240102002" {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for the post-reconnect delivery")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("Run did not stop after cancel")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(issues) != 2 {
		t.Fatalf("expected the replayed issue delivered once, got %v", issues)
	}
	if issues[0] != "20240102001" || issues[1] != "20240102002" {
		t.Fatalf("unexpected delivery order: %v", issues)
	}
}
