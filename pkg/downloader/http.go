package downloader

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"

	// Registers the WebP decoder with image.Decode.
	_ "golang.org/x/image/webp"
)

const (
	defaultTimeout  = 30 * time.Second
	defaultMaxBytes = 20 << 20
)

// Config holds the HTTP downloader settings.
type Config struct {
	Timeout   time.Duration `yaml:"timeout"`
	MaxBytes  int64         `yaml:"max_bytes"`
	UserAgent string        `yaml:"user_agent"`
}

// Option customises an HTTPDownloader.
type Option func(d *HTTPDownloader)

// WithHTTPClient replaces the underlying client. The configured timeout is
// still applied per request through the request context.
func WithHTTPClient(client *http.Client) Option {
	return func(d *HTTPDownloader) {
		d.client = client
	}
}

// HTTPDownloader downloads over HTTP(S) with one goroutine per request.
// It keeps no response cache and never retries.
type HTTPDownloader struct {
	cfg    Config
	client *http.Client
	logger zerolog.Logger
}

// NewHTTPDownloader creates a downloader. Zero config values fall back to a
// 30 second timeout and a 20 MiB body limit.
func NewHTTPDownloader(cfg Config, logger zerolog.Logger, opts ...Option) *HTTPDownloader {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = defaultMaxBytes
	}
	d := &HTTPDownloader{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger.With().Str("component", "HTTPDownloader").Logger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

type httpTask struct {
	u      *url.URL
	cancel context.CancelCauseFunc

	mu        sync.Mutex
	cancelled bool
	finished  bool
}

func (t *httpTask) URL() *url.URL { return t.u }

func (t *httpTask) Cancel() {
	t.mu.Lock()
	if t.cancelled || t.finished {
		t.mu.Unlock()
		return
	}
	t.cancelled = true
	t.mu.Unlock()
	t.cancel(ErrCancelled)
}

// finish reports whether the completion may run and, if so, claims it.
func (t *httpTask) finish() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancelled || t.finished {
		return false
	}
	t.finished = true
	return true
}

// Download starts fetching u in the background and returns immediately.
func (d *HTTPDownloader) Download(ctx context.Context, u *url.URL, completion func(Result)) Task {
	reqCtx, cancel := context.WithCancelCause(ctx)
	task := &httpTask{u: u, cancel: cancel}

	go func() {
		defer cancel(nil)
		res := d.fetch(reqCtx, u)
		if !task.finish() {
			d.logger.Debug().Str("url", u.String()).Msg("Download finished after cancellation, dropping result.")
			return
		}
		if completion != nil {
			completion(res)
		}
	}()
	return task
}

func (d *HTTPDownloader) fetch(ctx context.Context, u *url.URL) Result {
	meta := Metadata{URL: u.String()}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Result{Metadata: meta, Err: fmt.Errorf("%w: %q", ErrUnsupportedURL, u.String())}
	}

	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Result{Metadata: meta, Err: fmt.Errorf("failed to build request: %w", err)}
	}
	if d.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", d.cfg.UserAgent)
	}
	req.Header.Set("Accept", "image/*")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := d.client.Do(req)
	if err != nil {
		return Result{Metadata: meta, Err: fmt.Errorf("failed to download %s: %w", u.Redacted(), err)}
	}
	defer func() { _ = resp.Body.Close() }()

	meta = metadataFrom(u, resp)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{Metadata: meta, Err: fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, d.cfg.MaxBytes+1))
	if err != nil {
		return Result{Metadata: meta, Err: fmt.Errorf("failed to read body: %w", err)}
	}
	if int64(len(body)) > d.cfg.MaxBytes {
		return Result{Metadata: meta, Err: fmt.Errorf("%w: limit %d bytes", ErrBodyTooLarge, d.cfg.MaxBytes)}
	}

	img, err := imaging.Decode(bytes.NewReader(body), imaging.AutoOrientation(true))
	if err != nil {
		return Result{Metadata: meta, Err: fmt.Errorf("failed to decode image: %w", err)}
	}

	d.logger.Debug().
		Str("url", u.Redacted()).
		Int("status", resp.StatusCode).
		Int("bytes", len(body)).
		Msg("Downloaded image.")
	return Result{Image: img, Metadata: meta}
}

func metadataFrom(u *url.URL, resp *http.Response) Metadata {
	meta := Metadata{
		URL:           u.String(),
		StatusCode:    resp.StatusCode,
		ContentType:   resp.Header.Get("Content-Type"),
		ContentLength: resp.ContentLength,
		ETag:          resp.Header.Get("ETag"),
		Header:        resp.Header.Clone(),
	}
	if lm := resp.Header.Get("Last-Modified"); lm != "" {
		if t, err := http.ParseTime(lm); err == nil {
			meta.LastModified = t
		}
	}
	return meta
}
