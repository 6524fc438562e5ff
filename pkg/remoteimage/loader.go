package remoteimage

import (
	"context"
	"errors"
	"image"
	"time"

	"github.com/illmade-knight/go-remoteimage/pkg/dispatch"
	"github.com/illmade-knight/go-remoteimage/pkg/downloader"
	"github.com/illmade-knight/go-remoteimage/pkg/imagecache"
	"github.com/rs/zerolog"
)

const defaultStoreTimeout = 10 * time.Second

var errNoDownloader = errors.New("no downloader configured")

// LoaderConfig holds the loader settings. StoreWorkers and StoreQueueSize size
// the background pool handed to NewLoader.
type LoaderConfig struct {
	StoreTimeout   time.Duration `yaml:"store_timeout"`
	StoreWorkers   int           `yaml:"store_workers"`
	StoreQueueSize int           `yaml:"store_queue_size"`
}

// Loader coordinates cache lookups, downloads, processing and display for
// every ImageView it creates.
type Loader struct {
	cfg        LoaderConfig
	tools      *Tools
	ui         dispatch.Dispatcher
	background dispatch.Dispatcher
	logger     zerolog.Logger
}

// NewLoader creates a Loader. Download results are delivered on ui; cache
// writes run on background.
func NewLoader(
	cfg LoaderConfig,
	tools *Tools,
	ui dispatch.Dispatcher,
	background dispatch.Dispatcher,
	logger zerolog.Logger,
) (*Loader, error) {
	if tools == nil {
		return nil, errors.New("tools cannot be nil")
	}
	if ui == nil {
		return nil, errors.New("ui dispatcher cannot be nil")
	}
	if background == nil {
		return nil, errors.New("background dispatcher cannot be nil")
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = defaultStoreTimeout
	}
	return &Loader{
		cfg:        cfg,
		tools:      tools,
		ui:         ui,
		background: background,
		logger:     logger.With().Str("component", "Loader").Logger(),
	}, nil
}

// Tools returns the collaborators the loader reads on every request.
func (l *Loader) Tools() *Tools {
	return l.tools
}

// NewImageView binds display to the loader. Download results are delivered
// on the loader's UI dispatcher.
func (l *Loader) NewImageView(display Display) *ImageView {
	return l.NewImageViewOn(display, l.ui)
}

// NewImageViewOn binds display to the loader with its own UI dispatcher. The
// caller must make every SetImage and Cancel on the view from ui, or from a
// single goroutine that ui serializes with.
func (l *Loader) NewImageViewOn(display Display, ui dispatch.Dispatcher) *ImageView {
	if ui == nil {
		ui = l.ui
	}
	host, _ := display.(IndicatorHost)
	return &ImageView{
		loader:  l,
		ui:      ui,
		display: display,
		host:    host,
	}
}

// store writes img in the background. Failures and a full queue are logged
// and otherwise ignored.
func (l *Loader) store(c imagecache.ImageCache, key string, img image.Image, meta downloader.Metadata) {
	accepted := l.background.Dispatch(func() {
		ctx, cancel := context.WithTimeout(context.Background(), l.cfg.StoreTimeout)
		defer cancel()
		c.Store(ctx, key, img, &meta)
	})
	if !accepted {
		l.logger.Warn().Str("key", key).Msg("Background queue rejected cache store, dropping it.")
	}
}
