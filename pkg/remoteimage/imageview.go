package remoteimage

import (
	"context"
	"image"
	"net/url"
	"sync"

	"github.com/google/uuid"
	"github.com/illmade-knight/go-remoteimage/pkg/dispatch"
	"github.com/illmade-knight/go-remoteimage/pkg/downloader"
	"github.com/illmade-knight/go-remoteimage/pkg/imagecache"
)

// request is the in-flight handle of one SetImage call.
type request struct {
	id    string
	key   string
	opts  options
	cache imagecache.ImageCache
	task  downloader.Task

	indicatorStarted bool
	cancelled        bool
}

// ImageView is one consumer of the loader: a display plus the state of its
// current request.
type ImageView struct {
	loader  *Loader
	ui      dispatch.Dispatcher
	display Display
	host    IndicatorHost

	mu        sync.Mutex
	current   *request
	indicator Indicator
}

// SetImage loads u into the view, replacing whatever request was in flight.
// A nil u shows the placeholder, or clears the display when there is none.
func (v *ImageView) SetImage(ctx context.Context, u *url.URL, opts ...Option) {
	o := applyOptions(opts)
	logger := v.loader.logger

	v.mu.Lock()
	v.supersedeLocked()

	if u == nil {
		v.detachIndicatorLocked()
		v.display.Show(o.placeholder)
		v.mu.Unlock()
		complete(o.onComplete)
		return
	}

	v.reconcileIndicatorLocked(o.indicator)

	key := imagecache.Key(u, o.processor)
	c := v.loader.tools.Cache()
	if c != nil {
		if img, ok := c.Lookup(ctx, key); ok {
			v.display.Show(img)
			v.mu.Unlock()
			logger.Debug().Str("key", key).Msg("Cache hit.")
			complete(o.onComplete)
			return
		}
	}

	r := &request{
		id:    uuid.NewString(),
		key:   key,
		opts:  o,
		cache: c,
	}
	v.current = r
	if o.indicator != nil {
		o.indicator.StartLoading()
		r.indicatorStarted = true
	}

	d := v.loader.tools.Downloader()
	if d == nil {
		v.mu.Unlock()
		logger.Error().Str("request_id", r.id).Msg("No downloader configured.")
		v.deliver(r, downloader.Result{Err: errNoDownloader})
		return
	}

	logger.Debug().Str("request_id", r.id).Str("url", u.Redacted()).Str("key", key).Msg("Cache miss, downloading.")
	r.task = d.Download(ctx, u, func(res downloader.Result) {
		v.deliver(r, res)
	})
	v.mu.Unlock()
}

// SetImageString parses raw and calls SetImage. An empty string counts as no
// URL. A string that does not parse is still requested, so it fails through
// the download path and shows the placeholder.
func (v *ImageView) SetImageString(ctx context.Context, raw string, opts ...Option) {
	if raw == "" {
		v.SetImage(ctx, nil, opts...)
		return
	}
	u, err := url.Parse(raw)
	if err != nil {
		u = &url.URL{Path: raw}
	}
	v.SetImage(ctx, u, opts...)
}

// Cancel drops the in-flight request, if any, without showing anything.
// Call it when the display is discarded.
func (v *ImageView) Cancel() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.supersedeLocked()
	v.detachIndicatorLocked()
}

// deliver hops the download result onto the UI dispatcher.
func (v *ImageView) deliver(r *request, res downloader.Result) {
	if !v.ui.Dispatch(func() { v.finish(r, res) }) {
		v.loader.logger.Debug().Str("request_id", r.id).Msg("UI dispatcher rejected download result.")
	}
}

// finish applies a download result unless r has been superseded.
func (v *ImageView) finish(r *request, res downloader.Result) {
	logger := v.loader.logger

	v.mu.Lock()
	if r.cancelled || v.current != r {
		v.mu.Unlock()
		logger.Debug().Str("request_id", r.id).Msg("Discarding result of superseded request.")
		return
	}
	v.current = nil

	var result image.Image
	if res.Err == nil && res.Image != nil {
		result = res.Image
		if p := r.opts.processor; p != nil {
			if processed := p.Process(result); processed != nil {
				result = processed
			} else {
				logger.Debug().Str("request_id", r.id).Str("processor", p.Identifier()).Msg("Processor returned nothing, using original image.")
			}
		}
		v.display.Show(result)
	} else {
		logger.Info().Err(res.Err).Str("request_id", r.id).Str("url", res.Metadata.URL).Msg("Image download failed.")
		if r.opts.placeholder != nil {
			v.display.Show(r.opts.placeholder)
		}
	}

	if r.indicatorStarted {
		r.opts.indicator.StopLoading()
		r.indicatorStarted = false
	}
	if v.indicator != nil && v.indicator == r.opts.indicator {
		v.detachIndicatorLocked()
	}
	v.mu.Unlock()

	if result != nil && r.cache != nil {
		v.loader.store(r.cache, r.key, result, res.Metadata)
	}
	complete(r.opts.onComplete)
}

// supersedeLocked cancels the in-flight request and stops its indicator.
func (v *ImageView) supersedeLocked() {
	r := v.current
	if r == nil {
		return
	}
	v.current = nil
	r.cancelled = true
	if r.task != nil {
		r.task.Cancel()
	}
	if r.indicatorStarted {
		r.opts.indicator.StopLoading()
		r.indicatorStarted = false
	}
	v.loader.logger.Debug().Str("request_id", r.id).Msg("Request superseded.")
}

// reconcileIndicatorLocked detaches a stale indicator and attaches ind.
func (v *ImageView) reconcileIndicatorLocked(ind Indicator) {
	if v.indicator != nil && v.indicator != ind {
		v.detachIndicatorLocked()
	}
	if ind != nil && v.indicator == nil {
		if v.host != nil {
			v.host.AttachIndicator(ind)
		}
		v.indicator = ind
	}
}

func (v *ImageView) detachIndicatorLocked() {
	if v.indicator == nil {
		return
	}
	if v.host != nil {
		v.host.DetachIndicator(v.indicator)
	}
	v.indicator = nil
}

func complete(fn func()) {
	if fn != nil {
		fn()
	}
}
