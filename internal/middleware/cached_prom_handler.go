package middleware

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/expfmt"
)

// CachedPromHandler serves the text exposition of a gatherer, rebuilt at most
// once per ttl. Every scrape in between gets the same cached bytes, so
// concurrent scrapers do not each pay for a full gather.
type CachedPromHandler struct {
	mu       sync.RWMutex
	cache    []byte
	gatherer prometheus.Gatherer
	format   expfmt.Format
	ttl      time.Duration
	live     http.Handler
	logger   *slog.Logger
}

// NewCachedPromHandler builds the first exposition synchronously and keeps it
// fresh in a goroutine that stops when ctx is done.
func NewCachedPromHandler(ctx context.Context, gatherer prometheus.Gatherer, ttl time.Duration, logger *slog.Logger) *CachedPromHandler {
	c := &CachedPromHandler{
		gatherer: gatherer,
		format:   expfmt.NewFormat(expfmt.TypeTextPlain),
		ttl:      ttl,
		live:     promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}),
		logger:   logger,
	}
	if err := c.refresh(); err != nil {
		logger.Warn("Initial metrics gather failed", "error", err)
	}

	go c.refreshLoop(ctx)
	return c
}

func (c *CachedPromHandler) refreshLoop(ctx context.Context) {
	ticker := time.NewTicker(c.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.refresh(); err != nil {
				c.logger.Warn("Failed to refresh cached metrics", "error", err)
			}
		}
	}
}

// refresh gathers and encodes every metric family. On error the previous
// exposition is kept.
func (c *CachedPromHandler) refresh() error {
	families, err := c.gatherer.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}

	var buf bytes.Buffer
	enc := expfmt.NewEncoder(&buf, c.format)
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("failed to encode metric family %s: %w", mf.GetName(), err)
		}
	}

	c.mu.Lock()
	c.cache = buf.Bytes()
	c.mu.Unlock()
	return nil
}

// ServeHTTP writes the cached exposition, or gathers live while the cache is
// still empty.
func (c *CachedPromHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c.mu.RLock()
	cached := c.cache
	c.mu.RUnlock()

	if len(cached) == 0 {
		c.live.ServeHTTP(w, r)
		return
	}
	w.Header().Set("Content-Type", string(c.format))
	_, _ = w.Write(cached)
}
