package app

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"planner.commuteway.org/internal/metrics"
)

func TestURLLabel(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"http://osrm:5000/", "http://osrm:5000/"},
		{"http://osrm:5000/table/v1/foot/90.405100,23.778100;90.395800,23.738300?sources=0", "http://osrm:5000/table/v1/foot"},
		{"https://example.com/gtfs.zip?key=secret", "https://example.com/gtfs.zip"},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, tt.url, nil)
		if got := urlLabel(req); got != tt.want {
			t.Errorf("urlLabel(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}

func TestPooledClientRecordsLatency(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer server.Close()

	before := testutil.CollectAndCount(metrics.OutgoingLatency)

	client := NewPooledClient(time.Second)
	resp, err := client.Get(server.URL + "/pooled/client/test/path")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()

	if after := testutil.CollectAndCount(metrics.OutgoingLatency); after != before+1 {
		t.Errorf("expected one new latency series, got %d before and %d after", before, after)
	}
}
