package distance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"planner.commuteway.org/internal/metrics"
	"planner.commuteway.org/internal/models"
	"planner.commuteway.org/internal/report"
	"planner.commuteway.org/internal/utils"
)

const (
	defaultProfile       = "foot"
	defaultProbeTimeout  = 2 * time.Second
	defaultMaxMatrixSize = 100
	maxResponseBytes     = 8 << 20
)

// NetworkOptions configures the road network strategy.
type NetworkOptions struct {
	BaseURL       string
	Profile       string
	ProbeTimeout  time.Duration
	MaxMatrixSize int
}

// Network asks an OSRM-compatible routing service for road network distances
// using its table endpoint.
type Network struct {
	client        *http.Client
	baseURL       *url.URL
	profile       string
	probeTimeout  time.Duration
	maxMatrixSize int
	logger        *slog.Logger
}

// tableResponse is the subset of the OSRM table response that is used.
// Cells are pointers because the service returns null for unroutable pairs.
type tableResponse struct {
	Code      string       `json:"code"`
	Message   string       `json:"message"`
	Distances [][]*float64 `json:"distances"`
	Durations [][]*float64 `json:"durations"`
}

func NewNetwork(client *http.Client, opts NetworkOptions, logger *slog.Logger) (*Network, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid routing URL %q: %w", opts.BaseURL, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid routing URL %q: scheme must be http or https", opts.BaseURL)
	}

	n := &Network{
		client:        client,
		baseURL:       base,
		profile:       opts.Profile,
		probeTimeout:  opts.ProbeTimeout,
		maxMatrixSize: opts.MaxMatrixSize,
		logger:        logger,
	}
	if n.profile == "" {
		n.profile = defaultProfile
	}
	if n.probeTimeout <= 0 {
		n.probeTimeout = defaultProbeTimeout
	}
	if n.maxMatrixSize <= 0 {
		n.maxMatrixSize = defaultMaxMatrixSize
	}
	return n, nil
}

func (n *Network) Name() models.Method { return models.MethodNetwork }

// IsAvailable probes the service root. Any answer below 500 means the
// service is up, since OSRM answers 400 on its root path.
func (n *Network) IsAvailable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, n.probeTimeout)
	defer cancel()

	probeURL := n.baseURL.String() + "/"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, probeURL, nil)
	if err != nil {
		return false
	}

	resp, err := n.client.Do(req)
	if err != nil {
		n.logger.Warn("Routing service probe failed", "routing_url", n.baseURL.String(), "error", err)
		metrics.RoutingServiceStatus.WithLabelValues(n.baseURL.String()).Set(0)
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	up := resp.StatusCode < http.StatusInternalServerError
	if up {
		metrics.RoutingServiceStatus.WithLabelValues(n.baseURL.String()).Set(1)
	} else {
		metrics.RoutingServiceStatus.WithLabelValues(n.baseURL.String()).Set(0)
	}
	return up
}

// CalculateDistances requests the full origins x destinations matrix. When
// the matrix exceeds the configured size the destinations are split into
// chunks and one request is made per chunk.
func (n *Network) CalculateDistances(ctx context.Context, origins, destinations []models.Coordinate) ([][]models.DistanceResult, error) {
	if len(origins) == 0 || len(destinations) == 0 {
		return emptyMatrix(len(origins)), nil
	}

	chunkSize := n.maxMatrixSize / len(origins)
	if chunkSize < 1 {
		chunkSize = 1
	}

	out := make([][]models.DistanceResult, len(origins))
	for i := range out {
		out[i] = make([]models.DistanceResult, 0, len(destinations))
	}

	for start := 0; start < len(destinations); start += chunkSize {
		end := min(start+chunkSize, len(destinations))
		part, err := n.table(ctx, origins, destinations[start:end])
		if err != nil {
			return nil, err
		}
		for i := range out {
			out[i] = append(out[i], part[i]...)
		}
	}
	return out, nil
}

func (n *Network) table(ctx context.Context, origins, destinations []models.Coordinate) ([][]models.DistanceResult, error) {
	reqURL := n.tableURL(origins, destinations)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create table request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("table request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read table response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("routing service returned status %d", resp.StatusCode)
		report.ReportErrorWithSentryOptions(err, report.SentryReportOptions{
			Tags:        utils.MakeMap("routing_url", n.baseURL.String(), "profile", n.profile),
			Level:       sentry.LevelWarning,
			Fingerprint: []string{"routing-table-status", strconv.Itoa(resp.StatusCode)},
		})
		return nil, err
	}

	var table tableResponse
	if err := json.Unmarshal(body, &table); err != nil {
		return nil, fmt.Errorf("failed to decode table response: %w", err)
	}
	if table.Code != "Ok" {
		return nil, fmt.Errorf("routing service returned code %q: %s", table.Code, table.Message)
	}

	return decodeTable(table, len(origins), len(destinations))
}

// tableURL builds GET {base}/table/v1/{profile}/{lng,lat;...}?sources=..&destinations=..
// with the origins listed first.
func (n *Network) tableURL(origins, destinations []models.Coordinate) string {
	coords := make([]string, 0, len(origins)+len(destinations))
	sources := make([]string, 0, len(origins))
	targets := make([]string, 0, len(destinations))

	for i, c := range origins {
		coords = append(coords, formatCoordinate(c))
		sources = append(sources, strconv.Itoa(i))
	}
	for j, c := range destinations {
		coords = append(coords, formatCoordinate(c))
		targets = append(targets, strconv.Itoa(len(origins)+j))
	}

	q := url.Values{}
	q.Set("sources", strings.Join(sources, ";"))
	q.Set("destinations", strings.Join(targets, ";"))
	q.Set("annotations", "distance,duration")

	return fmt.Sprintf("%s/table/v1/%s/%s?%s", n.baseURL.String(), n.profile, strings.Join(coords, ";"), q.Encode())
}

func formatCoordinate(c models.Coordinate) string {
	return strconv.FormatFloat(c.Lng, 'f', 6, 64) + "," + strconv.FormatFloat(c.Lat, 'f', 6, 64)
}

func decodeTable(table tableResponse, rows, cols int) ([][]models.DistanceResult, error) {
	if len(table.Distances) != rows {
		return nil, fmt.Errorf("table response has %d distance rows, expected %d", len(table.Distances), rows)
	}

	out := make([][]models.DistanceResult, rows)
	for i := 0; i < rows; i++ {
		if len(table.Distances[i]) != cols {
			return nil, fmt.Errorf("table response row %d has %d cells, expected %d", i, len(table.Distances[i]), cols)
		}
		row := make([]models.DistanceResult, cols)
		for j := 0; j < cols; j++ {
			d := table.Distances[i][j]
			if d == nil {
				return nil, fmt.Errorf("no route between source %d and destination %d", i, j)
			}
			row[j] = models.DistanceResult{
				DistanceMeters:  *d,
				DurationSeconds: durationAt(table.Durations, i, j),
				Method:          models.MethodNetwork,
			}
		}
		out[i] = row
	}
	return out, nil
}

// durationAt returns 0 when the service omitted durations.
func durationAt(durations [][]*float64, i, j int) float64 {
	if i >= len(durations) || j >= len(durations[i]) || durations[i][j] == nil {
		return 0
	}
	return *durations[i][j]
}
