// Package preview serves processed remote images over HTTP.
//
//	GET /preview?url=https://example.com/a.jpg&w=30&h=30&radius=15
//	GET /preview?url=https://example.com/a.jpg&w=64&h=64&thumb=1
package preview

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/illmade-knight/go-remoteimage/pkg/dispatch"
	"github.com/illmade-knight/go-remoteimage/pkg/processor"
	"github.com/illmade-knight/go-remoteimage/pkg/remoteimage"
	"github.com/rs/zerolog"
)

// Config bounds what a single preview request may ask for.
type Config struct {
	MaxDimension int           `yaml:"max_dimension"`
	Timeout      time.Duration `yaml:"timeout"`
}

// Handler renders one image per request through a Loader.
type Handler struct {
	loader *remoteimage.Loader
	cfg    Config
	logger zerolog.Logger
}

// NewHandler creates a preview handler. Defaults: 2048 px, 45 s.
func NewHandler(loader *remoteimage.Loader, cfg Config, logger zerolog.Logger) *Handler {
	if cfg.MaxDimension <= 0 {
		cfg.MaxDimension = 2048
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	return &Handler{
		loader: loader,
		cfg:    cfg,
		logger: logger.With().Str("component", "PreviewHandler").Logger(),
	}
}

// capture is the Display of one preview request.
type capture struct {
	mu  sync.Mutex
	img image.Image
}

func (c *capture) Show(img image.Image) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.img = img
}

func (c *capture) shown() image.Image {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.img
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	u, p, err := h.parse(r.URL.Query())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	// One UI context per request.
	ui := dispatch.NewSerialQueue(h.logger)
	ui.Start(context.Background())
	defer h.stopQueue(ui)

	ctx := r.Context()
	display := &capture{}
	view := h.loader.NewImageViewOn(display, ui)
	done := make(chan struct{})
	opts := []remoteimage.Option{remoteimage.WithCompletion(func() { close(done) })}
	if p != nil {
		opts = append(opts, remoteimage.WithProcessor(p))
	}

	if !ui.Dispatch(func() { view.SetImage(ctx, u, opts...) }) {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}

	timer := time.NewTimer(h.cfg.Timeout)
	defer timer.Stop()
	select {
	case <-done:
	case <-ctx.Done():
		ui.Dispatch(view.Cancel)
		h.logger.Debug().Str("url", u.Redacted()).Msg("Client went away before the image settled.")
		return
	case <-timer.C:
		ui.Dispatch(view.Cancel)
		http.Error(w, "timed out", http.StatusGatewayTimeout)
		return
	}

	img := display.shown()
	if img == nil {
		http.Error(w, "image could not be loaded", http.StatusBadGateway)
		return
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode preview.")
		http.Error(w, "encode failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) stopQueue(q *dispatch.SerialQueue) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := q.Stop(ctx); err != nil {
		h.logger.Warn().Err(err).Msg("Preview queue did not drain.")
	}
}

func (h *Handler) parse(q url.Values) (*url.URL, processor.Processor, error) {
	raw := q.Get("url")
	if raw == "" {
		return nil, nil, errors.New("missing url parameter")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, nil, errors.New("url must be http or https")
	}

	width, err := h.dimension(q, "w")
	if err != nil {
		return nil, nil, err
	}
	height, err := h.dimension(q, "h")
	if err != nil {
		return nil, nil, err
	}

	var steps []processor.Processor
	if q.Get("thumb") == "1" {
		if width == 0 || height == 0 {
			return nil, nil, errors.New("thumb requires w and h")
		}
		steps = append(steps, processor.NewThumbnail(width, height))
	}
	if rs := q.Get("radius"); rs != "" {
		radius, err := strconv.ParseFloat(rs, 64)
		if err != nil || radius < 0 {
			return nil, nil, errors.New("radius must be a non-negative number")
		}
		if width == 0 || height == 0 {
			return nil, nil, errors.New("radius requires w and h")
		}
		steps = append(steps, processor.NewRoundCorner(width, height, radius))
	}

	switch len(steps) {
	case 0:
		return u, nil, nil
	case 1:
		return u, steps[0], nil
	default:
		return u, processor.NewChain(steps...), nil
	}
}

func (h *Handler) dimension(q url.Values, name string) (int, error) {
	s := q.Get(name)
	if s == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil || v <= 0 || v > h.cfg.MaxDimension {
		return 0, fmt.Errorf("%s must be an integer between 1 and %d", name, h.cfg.MaxDimension)
	}
	return v, nil
}
