package utils

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"planner.commuteway.org/internal/report"
)

// CachedFileName returns the file name used to cache the download of sourceURL
// for the given feed. Names are "<feed>_<sha1(url)>.zip".
func CachedFileName(feed, sourceURL string) string {
	hash := sha1.Sum([]byte(sourceURL))
	return fmt.Sprintf("%s_%s.zip", feed, hex.EncodeToString(hash[:]))
}

// GetLastCachedFile returns the most recently modified cached file of feed.
func GetLastCachedFile(cacheDir, feed string) (string, error) {
	files, err := os.ReadDir(cacheDir)
	if err != nil {
		return "", err
	}

	var lastModTime time.Time
	var lastModFile string

	prefix := feed + "_"

	for _, file := range files {
		if file.IsDir() || !strings.HasPrefix(file.Name(), prefix) {
			continue
		}
		fileInfo, err := file.Info()
		if err != nil {
			return "", err
		}
		if fileInfo.ModTime().After(lastModTime) {
			lastModTime = fileInfo.ModTime()
			lastModFile = file.Name()
		}
	}

	if lastModFile == "" {
		return "", fmt.Errorf("no cached files found for feed %q", feed)
	}

	return filepath.Join(cacheDir, lastModFile), nil
}

// CreateCacheDirectory ensures the cache directory exists, creating it if necessary.
func CreateCacheDirectory(cacheDir string, logger *slog.Logger) error {
	stat, err := os.Stat(cacheDir)
	if err == nil {
		if !stat.IsDir() {
			err := fmt.Errorf("%s is not a directory", cacheDir)
			report.ReportErrorWithSentryOptions(err, report.SentryReportOptions{
				Level:        sentry.LevelError,
				ExtraContext: map[string]interface{}{"cache_dir": cacheDir},
			})
			return err
		}
		return nil
	}
	if !os.IsNotExist(err) {
		return err
	}

	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		report.ReportErrorWithSentryOptions(err, report.SentryReportOptions{
			Level:        sentry.LevelError,
			ExtraContext: map[string]interface{}{"cache_dir": cacheDir},
		})
		return err
	}
	logger.Info("Created cache directory", "cache_dir", cacheDir)
	return nil
}
