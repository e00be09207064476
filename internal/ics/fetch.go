package ics

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	appLog "sharecal/internal/log"
	"sharecal/internal/model"
)

// maxBodySize bounds a single downloaded calendar.
const maxBodySize = 32 << 20

// cacheEntry holds HTTP cache metadata for a single ICS URL.
type cacheEntry struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Loader reads iCalendar payloads from local files or http(s) URLs.
//
// When cacheDir is set, remote bodies are cached on disk and revalidated
// with ETag / Last-Modified; the cached copy is served if the remote is
// unreachable.
type Loader struct {
	client   *http.Client
	cacheDir string
}

// NewLoader creates a Loader. An empty cacheDir disables caching.
func NewLoader(cacheDir string) *Loader {
	return &Loader{
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
		cacheDir: cacheDir,
	}
}

// Load returns the raw body of src, a file path or an http(s) URL.
func (l *Loader) Load(ctx context.Context, src string) ([]byte, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return nil, errors.New("ics source is empty")
	}
	if !isRemote(src) {
		body, err := os.ReadFile(src)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", src, err)
		}
		return body, nil
	}
	return l.fetch(ctx, src)
}

// LoadEvents loads src and parses it with ParseICS.
func (l *Loader) LoadEvents(ctx context.Context, src string) ([]model.Event, error) {
	body, err := l.Load(ctx, src)
	if err != nil {
		return nil, err
	}
	return ParseICS(body)
}

func isRemote(src string) bool {
	u, err := url.Parse(src)
	if err != nil {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

func (l *Loader) fetch(ctx context.Context, src string) ([]byte, error) {
	var (
		cachePath  string
		meta       cacheEntry
		cachedBody []byte
	)
	if l.cacheDir != "" {
		cachePath = l.cachePathForURL(src)
		if err := os.MkdirAll(cachePath, 0o700); err != nil {
			return nil, err
		}
		meta, _ = loadCacheMeta(cachePath)
		cachedBody, _ = os.ReadFile(filepath.Join(cachePath, "body.ics"))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/calendar, */*;q=0.5")
	if len(cachedBody) > 0 {
		if meta.ETag != "" {
			req.Header.Set("If-None-Match", meta.ETag)
		}
		if meta.LastModified != "" {
			req.Header.Set("If-Modified-Since", meta.LastModified)
		}
	}

	appLog.Info("ics fetch start", "url", redactURL(src))

	resp, err := l.client.Do(req)
	if err != nil {
		if len(cachedBody) > 0 {
			appLog.Error("ics fetch network error, using cached body", err, "url", redactURL(src))
			return cachedBody, nil
		}
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
		if err != nil {
			return nil, err
		}
		if cachePath != "" {
			newMeta := cacheEntry{
				URL:          src,
				ETag:         resp.Header.Get("ETag"),
				LastModified: resp.Header.Get("Last-Modified"),
			}
			if err := saveCache(cachePath, newMeta, body); err != nil {
				appLog.Error("ics cache save failed", err, "url", redactURL(src))
			}
		}
		appLog.Info("ics fetch success", "url", redactURL(src), "status", resp.StatusCode, "bytes", len(body))
		return body, nil

	case http.StatusNotModified:
		if len(cachedBody) == 0 {
			return nil, errors.New("received 304 Not Modified but no cached body available")
		}
		appLog.Info("ics fetch not modified; using cache", "url", redactURL(src))
		return cachedBody, nil

	default:
		if len(cachedBody) > 0 {
			appLog.Error("ics fetch non-OK, using cached body", errors.New(resp.Status), "url", redactURL(src), "status", resp.StatusCode)
			return cachedBody, nil
		}
		return nil, fmt.Errorf("fetch %s: %s", redactURL(src), resp.Status)
	}
}

func (l *Loader) cachePathForURL(u string) string {
	sum := sha256.Sum256([]byte(u))
	return filepath.Join(l.cacheDir, hex.EncodeToString(sum[:8]))
}

func loadCacheMeta(cachePath string) (cacheEntry, error) {
	var meta cacheEntry
	data, err := os.ReadFile(filepath.Join(cachePath, "meta.json"))
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return cacheEntry{}, err
	}
	return meta, nil
}

func saveCache(cachePath string, meta cacheEntry, body []byte) error {
	// Body first so meta never points at a missing body.
	if err := os.WriteFile(filepath.Join(cachePath, "body.ics"), body, 0o600); err != nil {
		return err
	}

	meta.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(cachePath, "meta.json"), data, 0o600)
}

// redactURL keeps only scheme and host; calendar URLs often embed tokens.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "ics://...(redacted)"
	}
	return u.Scheme + "://" + u.Host + "/...(redacted)"
}
