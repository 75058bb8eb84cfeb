package connectivity

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/louisbranch/storyloom/internal/platform/timeouts"
)

// ProbeMonitor derives reachability by polling a probe URL. Any HTTP
// response, regardless of status code, counts as reachable; only transport
// errors count as offline. Subscribers are notified on state changes, not
// on every probe.
type ProbeMonitor struct {
	probeURL string
	interval time.Duration
	client   *http.Client

	mu          sync.Mutex
	online      bool
	known       bool
	nextID      int
	subscribers map[int]func(online bool)
}

// NewProbeMonitor creates a monitor polling probeURL every interval.
func NewProbeMonitor(probeURL string, interval time.Duration, client *http.Client) (*ProbeMonitor, error) {
	if strings.TrimSpace(probeURL) == "" {
		return nil, fmt.Errorf("probe url is required")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("probe interval must be greater than zero")
	}
	if client == nil {
		client = &http.Client{Timeout: timeouts.Probe}
	}
	return &ProbeMonitor{
		probeURL:    probeURL,
		interval:    interval,
		client:      client,
		subscribers: make(map[int]func(online bool)),
	}, nil
}

// Subscribe registers fn for reachability changes.
func (m *ProbeMonitor) Subscribe(fn func(online bool)) Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	m.subscribers[id] = fn
	return &probeSubscription{monitor: m, id: id}
}

// Run polls the probe URL until ctx is cancelled.
func (m *ProbeMonitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}

// Check performs one reachability probe and notifies subscribers if the
// state changed.
func (m *ProbeMonitor) Check(ctx context.Context) {
	online := m.probe(ctx)
	m.setOnline(online)
}

func (m *ProbeMonitor) probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, m.probeURL, nil)
	if err != nil {
		log.Printf("connectivity probe request: %v", err)
		return false
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return true
}

func (m *ProbeMonitor) setOnline(online bool) {
	m.mu.Lock()
	if m.known && m.online == online {
		m.mu.Unlock()
		return
	}
	m.known = true
	m.online = online
	subscribers := make([]func(online bool), 0, len(m.subscribers))
	for _, fn := range m.subscribers {
		subscribers = append(subscribers, fn)
	}
	m.mu.Unlock()

	log.Printf("connectivity changed: online=%v", online)
	for _, fn := range subscribers {
		fn(online)
	}
}

// Online reports the last observed reachability state.
func (m *ProbeMonitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

type probeSubscription struct {
	monitor *ProbeMonitor
	id      int
	once    sync.Once
}

func (s *probeSubscription) Unsubscribe() {
	s.once.Do(func() {
		s.monitor.mu.Lock()
		defer s.monitor.mu.Unlock()
		delete(s.monitor.subscribers, s.id)
	})
}
