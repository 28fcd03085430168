// Package data fetches the calendar's JSON data sources. A source is
// either a local file path or an http(s) URL; remote sources carry an
// ETag/Last-Modified disk cache so a dead host degrades to the last good
// payload instead of an empty feature.
package data

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Source identifies one JSON data source.
type Source struct {
	// ID is a short identifier used in cache paths and logs,
	// e.g. "non_attendance".
	ID string
	// Location is a local file path or an http(s) URL. Empty means the
	// source is not configured and fetches report os.ErrNotExist.
	Location string
}

// IsRemote reports whether the source is fetched over HTTP.
func (s Source) IsRemote() bool {
	return strings.HasPrefix(s.Location, "http://") || strings.HasPrefix(s.Location, "https://")
}

// cacheMeta holds HTTP cache metadata for a single remote source.
type cacheMeta struct {
	Location     string    `json:"location"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Fetcher loads JSON sources with a per-source disk cache for remote
// locations.
type Fetcher struct {
	client   *http.Client
	cacheDir string
	logger   *zap.Logger
}

// NewFetcher creates a Fetcher caching remote bodies under cacheDir.
func NewFetcher(cacheDir string, logger *zap.Logger) *Fetcher {
	if cacheDir == "" {
		cacheDir = "./var/data-cache"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		client:   &http.Client{Timeout: 15 * time.Second},
		cacheDir: cacheDir,
		logger:   logger,
	}
}

// FetchJSON loads the source and decodes it into v.
func (f *Fetcher) FetchJSON(ctx context.Context, src Source, v any) error {
	body, err := f.Fetch(ctx, src)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode %s: %w", src.ID, err)
	}
	return nil
}

// Fetch returns the raw source body.
func (f *Fetcher) Fetch(ctx context.Context, src Source) ([]byte, error) {
	if src.Location == "" {
		return nil, fmt.Errorf("source %s: %w", src.ID, os.ErrNotExist)
	}
	if !src.IsRemote() {
		body, err := os.ReadFile(src.Location)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", src.ID, err)
		}
		return body, nil
	}
	return f.fetchRemote(ctx, src)
}

// fetchRemote fetches over HTTP honoring ETag and Last-Modified, falling
// back to the cached body on network failure or a non-OK status.
func (f *Fetcher) fetchRemote(ctx context.Context, src Source) ([]byte, error) {
	cachePath := f.cachePathFor(src.Location)
	if err := os.MkdirAll(cachePath, 0o700); err != nil {
		return nil, err
	}

	meta, _ := f.loadMeta(cachePath)
	cachedBody, _ := os.ReadFile(filepath.Join(cachePath, "body.json"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.Location, nil)
	if err != nil {
		return nil, err
	}
	if meta.ETag != "" {
		req.Header.Set("If-None-Match", meta.ETag)
	}
	if meta.LastModified != "" {
		req.Header.Set("If-Modified-Since", meta.LastModified)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if len(cachedBody) > 0 {
			f.logger.Warn("fetch failed, using cached body",
				zap.String("source", src.ID), zap.Error(err))
			return cachedBody, nil
		}
		return nil, fmt.Errorf("source %s: %w", src.ID, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return nil, fmt.Errorf("source %s: %w", src.ID, readErr)
		}
		newMeta := cacheMeta{
			Location:     src.Location,
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
			UpdatedAt:    time.Now().UTC(),
		}
		if err := f.saveCache(cachePath, newMeta, body); err != nil {
			f.logger.Warn("cache save failed",
				zap.String("source", src.ID), zap.Error(err))
		}
		f.logger.Debug("fetched source",
			zap.String("source", src.ID), zap.Int("bytes", len(body)))
		return body, nil

	case http.StatusNotModified:
		if len(cachedBody) == 0 {
			return nil, fmt.Errorf("source %s: 304 with no cached body", src.ID)
		}
		return cachedBody, nil

	default:
		if len(cachedBody) > 0 {
			f.logger.Warn("non-OK status, using cached body",
				zap.String("source", src.ID), zap.Int("status", resp.StatusCode))
			return cachedBody, nil
		}
		return nil, fmt.Errorf("source %s: %s", src.ID, resp.Status)
	}
}

func (f *Fetcher) cachePathFor(location string) string {
	sum := sha256.Sum256([]byte(location))
	return filepath.Join(f.cacheDir, hex.EncodeToString(sum[:8]))
}

func (f *Fetcher) loadMeta(cachePath string) (cacheMeta, error) {
	var meta cacheMeta
	raw, err := os.ReadFile(filepath.Join(cachePath, "meta.json"))
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(raw, &meta); err != nil {
		return cacheMeta{}, err
	}
	return meta, nil
}

func (f *Fetcher) saveCache(cachePath string, meta cacheMeta, body []byte) error {
	// Body first so meta never points at a missing body.
	if err := os.WriteFile(filepath.Join(cachePath, "body.json"), body, 0o600); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(cachePath, "meta.json"), raw, 0o600)
}

// IsNotConfigured reports whether err means the source has no location
// or points at a missing file; callers treat both as "feature absent".
func IsNotConfigured(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}
