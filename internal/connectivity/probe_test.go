package connectivity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestCheckNotifiesOnTransition(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	monitor, err := NewProbeMonitor(server.URL, time.Second, server.Client())
	if err != nil {
		t.Fatalf("new probe monitor: %v", err)
	}

	var states []bool
	sub := monitor.Subscribe(func(online bool) {
		states = append(states, online)
	})
	defer sub.Unsubscribe()

	monitor.Check(context.Background())
	if len(states) != 1 || !states[0] {
		t.Fatalf("states = %v, want [true]", states)
	}

	// A repeated probe with the same outcome must not notify again.
	monitor.Check(context.Background())
	if len(states) != 1 {
		t.Fatalf("states after repeat = %v, want one entry", states)
	}

	server.Close()
	monitor.Check(context.Background())
	if len(states) != 2 || states[1] {
		t.Fatalf("states after server close = %v, want [true false]", states)
	}
}

func TestServerErrorStillCountsAsReachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	monitor, err := NewProbeMonitor(server.URL, time.Second, server.Client())
	if err != nil {
		t.Fatalf("new probe monitor: %v", err)
	}

	monitor.Check(context.Background())
	if !monitor.Online() {
		t.Fatal("expected 5xx response to count as reachable")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	monitor, err := NewProbeMonitor(server.URL, time.Second, server.Client())
	if err != nil {
		t.Fatalf("new probe monitor: %v", err)
	}

	calls := 0
	sub := monitor.Subscribe(func(online bool) { calls++ })
	sub.Unsubscribe()
	// Releasing the handle twice must be harmless.
	sub.Unsubscribe()

	monitor.Check(context.Background())
	if calls != 0 {
		t.Fatalf("calls = %d, want 0", calls)
	}
}

func TestNewProbeMonitorValidation(t *testing.T) {
	if _, err := NewProbeMonitor(" ", time.Second, nil); err == nil {
		t.Fatal("expected error for empty probe url")
	}
	if _, err := NewProbeMonitor("http://example.com", 0, nil); err == nil {
		t.Fatal("expected error for zero interval")
	}
}
