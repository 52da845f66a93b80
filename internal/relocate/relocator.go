// Package relocate moves externally hosted images into durable object
// storage under content-addressed keys, rewriting post bodies to the
// relocated URLs. Source-host URLs (Notion's signed file links in
// particular) expire; the relocated copies do not.
package relocate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

const defaultContentType = "image/jpeg"

var extByContentType = map[string]string{
	"image/jpeg":    ".jpg",
	"image/png":     ".png",
	"image/webp":    ".webp",
	"image/gif":     ".gif",
	"image/svg+xml": ".svg",
}

var contentTypeByExt = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
	".gif":  "image/gif",
	".svg":  "image/svg+xml",
}

// Config holds relocator settings.
type Config struct {
	PublicBaseURL  string
	KeyPrefix      string
	Timeout        time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
}

// Relocator downloads image bytes, derives a hash-addressed storage
// key, and uploads through an Uploader unless a live object already
// exists at the computed public URL.
type Relocator struct {
	httpClient     *http.Client
	uploader       Uploader
	publicBaseURL  string
	keyPrefix      string
	maxAttempts    int
	initialBackoff time.Duration
	logger         *slog.Logger
}

func New(cfg Config, uploader Uploader, logger *slog.Logger) *Relocator {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Relocator{
		httpClient:     &http.Client{Timeout: timeout},
		uploader:       uploader,
		publicBaseURL:  strings.TrimRight(cfg.PublicBaseURL, "/"),
		keyPrefix:      strings.Trim(cfg.KeyPrefix, "/"),
		maxAttempts:    cfg.MaxAttempts,
		initialBackoff: cfg.InitialBackoff,
		logger:         logger,
	}
}

// Rewrite relocates every image referenced by body and substitutes the
// relocated URLs. A failed image is logged and left pointing at its
// original URL; the returned count reports such degradations. The
// error return is reserved for context cancellation, which ends the
// record rather than the single image.
func (r *Relocator) Rewrite(ctx context.Context, cache *Cache, body string) (string, int, error) {
	failures := 0

	for _, sourceURL := range ExtractImageURLs(body) {
		relocated, err := r.RelocateURL(ctx, cache, sourceURL)
		if err != nil {
			if ctx.Err() != nil {
				return body, failures, ctx.Err()
			}
			r.logger.Warn("image relocation failed, keeping original URL",
				"url", sourceURL,
				"error", err,
			)
			failures++
			continue
		}
		body = strings.ReplaceAll(body, sourceURL, relocated)
	}

	return body, failures, nil
}

// RelocateURL resolves one source URL to its relocated public URL,
// downloading and uploading only on a cache miss.
func (r *Relocator) RelocateURL(ctx context.Context, cache *Cache, sourceURL string) (string, error) {
	if relocated, ok := cache.lookup(sourceURL); ok {
		return relocated, nil
	}

	data, contentType, err := r.download(ctx, sourceURL)
	if err != nil {
		return "", fmt.Errorf("download: %w", err)
	}

	hash := sha256.Sum256(data)
	digest := hex.EncodeToString(hash[:])
	key := r.storageKey(digest, contentType)
	publicURL := r.publicBaseURL + "/" + key

	switch {
	case cache.keyUploaded(key):
		// identical bytes under a different URL, uploaded this run
	case r.objectExists(ctx, publicURL):
		// a previous run already stored these bytes
		cache.markKeyUploaded(key)
	default:
		if err := r.uploadBytes(ctx, key, data, contentType); err != nil {
			return "", fmt.Errorf("upload: %w", err)
		}
		cache.markKeyUploaded(key)
	}

	cache.record(sourceURL, publicURL)
	return publicURL, nil
}

func (r *Relocator) storageKey(digest, contentType string) string {
	ext, ok := extByContentType[contentType]
	if !ok {
		ext = ".jpg"
	}
	return fmt.Sprintf("%s/%s/%s%s", r.keyPrefix, digest[:2], digest, ext)
}

func (r *Relocator) download(ctx context.Context, sourceURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("create request: %w", err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read body: %w", err)
	}

	return data, detectContentType(resp.Header.Get("Content-Type"), sourceURL), nil
}

// detectContentType trusts the response header when it names an image
// type, then the URL's path extension, then falls back to a generic
// image type.
func detectContentType(header, sourceURL string) string {
	if header != "" {
		if mediaType, _, err := mime.ParseMediaType(header); err == nil && strings.HasPrefix(mediaType, "image/") {
			return mediaType
		}
	}
	if u, err := url.Parse(sourceURL); err == nil {
		if ct, ok := contentTypeByExt[strings.ToLower(path.Ext(u.Path))]; ok {
			return ct
		}
	}
	return defaultContentType
}

// objectExists probes the public URL with a HEAD request. A false
// negative just means a harmless re-upload of identical bytes to the
// same key.
func (r *Relocator) objectExists(ctx context.Context, publicURL string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, publicURL, nil)
	if err != nil {
		return false
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}

// uploadBytes stages data in a scratch file, hands it to the uploader
// with retries, and removes the scratch file on every path.
func (r *Relocator) uploadBytes(ctx context.Context, key string, data []byte, contentType string) error {
	scratch := filepath.Join(os.TempDir(), "relocate-"+uuid.NewString())
	if err := os.WriteFile(scratch, data, 0o600); err != nil {
		return fmt.Errorf("write scratch file: %w", err)
	}
	defer os.Remove(scratch)

	var err error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		err = r.uploader.Upload(ctx, key, scratch, contentType)
		if err == nil {
			return nil
		}

		if attempt == r.maxAttempts {
			break
		}

		backoff := time.Duration(attempt) * r.initialBackoff
		r.logger.Warn("upload failed, retrying",
			"key", key,
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}

	return fmt.Errorf("after %d attempts: %w", r.maxAttempts, err)
}
