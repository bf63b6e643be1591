package config

import (
	"net/http"
	"sync"
)

// mockRoundTripper answers every request with handler and counts attempts.
type mockRoundTripper struct {
	mu      sync.Mutex
	calls   int
	handler func(req *http.Request) (*http.Response, error)
}

func (m *mockRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	return m.handler(req)
}
