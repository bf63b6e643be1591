package app

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"planner.commuteway.org/internal/metrics"
)

// maxLabelSegments bounds the path kept in the latency label. Routing table
// requests carry coordinates in the path, which must not become labels.
const maxLabelSegments = 3

// latencyTrackingRoundTripper records the duration of every outgoing request
// in metrics.OutgoingLatency, labelled by URL, method and status.
type latencyTrackingRoundTripper struct {
	next http.RoundTripper
}

func (rt *latencyTrackingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := rt.next.RoundTrip(req)
	duration := time.Since(start).Seconds()

	status := "error"
	if err == nil && resp != nil {
		status = strconv.Itoa(resp.StatusCode)
	}

	metrics.OutgoingLatency.WithLabelValues(
		urlLabel(req),
		req.Method,
		status,
	).Observe(duration)

	return resp, err
}

// urlLabel returns scheme, host and at most maxLabelSegments path segments,
// without the query string.
func urlLabel(req *http.Request) string {
	segments := strings.Split(strings.Trim(req.URL.Path, "/"), "/")
	if len(segments) > maxLabelSegments {
		segments = segments[:maxLabelSegments]
	}
	path := "/" + strings.Join(segments, "/")
	return req.URL.Scheme + "://" + req.URL.Host + path
}

// NewPooledClient returns an HTTP client shared by the routing service
// strategy, the GTFS downloader and the remote config loader.
//
// Connections are kept alive for 90s so that back-to-back distance matrix
// requests during discovery reuse them. Dial and TLS handshakes fail after
// 5s. timeout caps a whole request, including reading the body; a GTFS
// bundle download needs more than a table request, so it is configurable.
func NewPooledClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: 5 * time.Second,
	}

	return &http.Client{
		Transport: &latencyTrackingRoundTripper{next: transport},
		Timeout:   timeout,
	}
}
