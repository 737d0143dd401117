package heartbeat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestBeatPostsStatusBody(t *testing.T) {
	type captured struct {
		method      string
		contentType string
		body        beatBody
	}
	got := make(chan captured, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var b beatBody
		if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
			t.Errorf("decode heartbeat body: %v", err)
		}
		got <- captured{method: r.Method, contentType: r.Header.Get("Content-Type"), body: b}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	reporter := NewReporter(server.URL, time.Minute, zerolog.Nop())
	reporter.Http = server.Client()
	reporter.beat(context.Background())

	select {
	case c := <-got:
		if c.method != http.MethodPost {
			t.Fatalf("expected POST, got %s", c.method)
		}
		if c.contentType != "application/json" {
			t.Fatalf("unexpected content type %q", c.contentType)
		}
		if c.body.Status != "online" {
			t.Fatalf("expected online status, got %q", c.body.Status)
		}
		if c.body.Ts == 0 {
			t.Fatalf("expected a unix timestamp")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("heartbeat never reached the server")
	}
}

func TestRunBeatsOnInterval(t *testing.T) {
	var mu sync.Mutex
	hits := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits++
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	reporter := NewReporter(server.URL, 20*time.Millisecond, zerolog.Nop())
	reporter.Http = server.Client()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		reporter.Run(ctx)
		close(done)
	}()

	deadline := time.After(3 * time.Second)
	for {
		mu.Lock()
		n := hits
		mu.Unlock()
		if n >= 3 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("expected at least 3 beats, got %d", n)
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not stop after cancel")
	}
}

func TestRunSurvivesServerErrors(t *testing.T) {
	var mu sync.Mutex
	hits := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits++
		mu.Unlock()
		http.Error(w, "down for maintenance", http.StatusInternalServerError)
	}))
	defer server.Close()

	reporter := NewReporter(server.URL, 20*time.Millisecond, zerolog.Nop())
	reporter.Http = server.Client()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go reporter.Run(ctx)

	deadline := time.After(3 * time.Second)
	for {
		mu.Lock()
		n := hits
		mu.Unlock()
		if n >= 2 {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("expected heartbeats to continue after errors, got %d", n)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestRunReturnsWithoutEndpoint(t *testing.T) {
	reporter := NewReporter("", time.Millisecond, zerolog.Nop())
	done := make(chan struct{})
	go func() {
		reporter.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Run should return immediately without an endpoint")
	}
}
