package gtfs

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"planner.commuteway.org/internal/config"
)

func readFixture(t *testing.T, fixturePath string) []byte {
	t.Helper()

	data, err := os.ReadFile(filepath.Join("testdata", fixturePath))
	if err != nil {
		t.Fatalf("Failed to read fixture file: %v", err)
	}
	return data
}

// setupGtfsServer serves the fixture with the given status. A non-200 status
// is answered without a body. hits counts requests.
func setupGtfsServer(t *testing.T, fixturePath string, status *atomic.Int32, hits *atomic.Int32) *httptest.Server {
	t.Helper()

	data := readFixture(t, fixturePath)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if code := int(status.Load()); code != http.StatusOK {
			w.WriteHeader(code)
			return
		}
		w.Header().Set("Content-Type", "application/zip")
		w.Write(data)
	}))
	t.Cleanup(server.Close)
	return server
}

func testGTFSConfig(t *testing.T, url string) config.GTFSConfig {
	t.Helper()
	return config.GTFSConfig{
		URL:      url,
		Feed:     "dhaka",
		CacheDir: filepath.Join(t.TempDir(), "cache"),
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
