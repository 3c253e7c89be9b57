// Package blob copies attachments from their source URL into an object
// store and returns a stable public URL.
package blob

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/raphaelgruber/threadsync/internal/metrics"
	"github.com/raphaelgruber/threadsync/internal/models"
)

// DefaultMaxBytes caps downloads. Discord uploads top out well below this.
const DefaultMaxBytes = 100 << 20

// ErrTooLarge is returned when a download exceeds the size cap.
var ErrTooLarge = errors.New("attachment exceeds size limit")

// ObjectStore is the upload side of a relocator.
type ObjectStore interface {
	Exists(ctx context.Context, key string) (bool, error)
	Put(ctx context.Context, key, contentType string, data []byte) error
	URL(key string) string
}

// Options configures a Relocator.
type Options struct {
	Prefix     string
	MaxBytes   int64
	HTTPClient *http.Client
	Metrics    *metrics.Collector
	Logger     *slog.Logger
}

// Relocator downloads attachments and stores them content-addressed.
type Relocator struct {
	store    ObjectStore
	prefix   string
	maxBytes int64
	http     *http.Client
	metrics  *metrics.Collector
	logger   *slog.Logger
}

// NewRelocator creates a relocator writing to store.
func NewRelocator(store ObjectStore, opts Options) *Relocator {
	maxBytes := opts.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 2 * time.Minute}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Relocator{
		store:    store,
		prefix:   opts.Prefix,
		maxBytes: maxBytes,
		http:     httpClient,
		metrics:  opts.Metrics,
		logger:   logger,
	}
}

// Relocate copies sourceURL into the store and returns the public URL.
// Objects are keyed by content hash, so a re-run reuses the earlier upload.
func (r *Relocator) Relocate(ctx context.Context, sourceURL, filename, contentType string) (string, error) {
	defer r.metrics.Since(metrics.OpRelay, time.Now())

	data, err := r.download(ctx, sourceURL)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", filename, err)
	}

	sum := sha256.Sum256(data)
	key := r.prefix + hex.EncodeToString(sum[:]) + "/" + ObjectName(filename)

	exists, err := r.store.Exists(ctx, key)
	if err != nil {
		return "", fmt.Errorf("check %s: %w", key, err)
	}
	if !exists {
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		if err := r.store.Put(ctx, key, contentType, data); err != nil {
			return "", fmt.Errorf("upload %s: %w", key, err)
		}
	}

	r.logger.Debug("attachment relocated", "filename", filename, "key", key, "reused", exists, "bytes", len(data))
	return r.store.URL(key), nil
}

func (r *Relocator) download(ctx context.Context, sourceURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if resp.ContentLength > r.maxBytes {
		return nil, ErrTooLarge
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, r.maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > r.maxBytes {
		return nil, ErrTooLarge
	}
	return data, nil
}

// ObjectName turns a user supplied filename into a safe object name,
// keeping the extension.
func ObjectName(filename string) string {
	base := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	ext := path.Ext(base)
	stem := models.Slugify(strings.TrimSuffix(base, ext))
	if stem == "" {
		stem = "file"
	}
	if ext = models.Slugify(strings.TrimPrefix(ext, ".")); ext != "" {
		return stem + "." + ext
	}
	return stem
}

// Passthrough keeps attachments at their source URL. It backs
// BLOB_BACKEND=none, where source URLs are accepted as final.
type Passthrough struct{}

// Relocate returns sourceURL unchanged.
func (Passthrough) Relocate(_ context.Context, sourceURL, _, _ string) (string, error) {
	if sourceURL == "" {
		return "", errors.New("attachment has no source url")
	}
	return sourceURL, nil
}
