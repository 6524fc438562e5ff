// Package metrics exposes Prometheus counters for the image cache and the
// downloader.
package metrics

import (
	"context"
	"errors"
	"image"
	"net/http"
	"net/url"

	"github.com/illmade-knight/go-remoteimage/pkg/downloader"
	"github.com/illmade-knight/go-remoteimage/pkg/imagecache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "remoteimage"

// Cache counts lookups by result and stores on an ImageCache.
type Cache struct {
	inner   imagecache.ImageCache
	lookups *prometheus.CounterVec
	stores  prometheus.Counter
}

// NewCache wraps inner and registers its counters with reg.
func NewCache(inner imagecache.ImageCache, reg prometheus.Registerer) (*Cache, error) {
	if inner == nil {
		return nil, errors.New("image cache cannot be nil")
	}
	c := &Cache{
		inner: inner,
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Image cache lookups by result (hit or miss).",
		}, []string{"result"}),
		stores: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "stores_total",
			Help:      "Images handed to the cache for storing.",
		}),
	}
	for _, col := range []prometheus.Collector{c.lookups, c.stores} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Cache) Lookup(ctx context.Context, key string) (image.Image, bool) {
	img, ok := c.inner.Lookup(ctx, key)
	if ok {
		c.lookups.WithLabelValues("hit").Inc()
	} else {
		c.lookups.WithLabelValues("miss").Inc()
	}
	return img, ok
}

func (c *Cache) Store(ctx context.Context, key string, img image.Image, meta *downloader.Metadata) {
	c.stores.Inc()
	c.inner.Store(ctx, key, img, meta)
}

// Downloader counts finished downloads by result.
type Downloader struct {
	inner     downloader.Downloader
	downloads *prometheus.CounterVec
}

// NewDownloader wraps inner and registers its counter with reg.
func NewDownloader(inner downloader.Downloader, reg prometheus.Registerer) (*Downloader, error) {
	if inner == nil {
		return nil, errors.New("downloader cannot be nil")
	}
	d := &Downloader{
		inner: inner,
		downloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "downloader",
			Name:      "downloads_total",
			Help:      "Completed downloads by result (ok or error). Cancelled downloads are not counted.",
		}, []string{"result"}),
	}
	if err := reg.Register(d.downloads); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Downloader) Download(ctx context.Context, u *url.URL, completion func(downloader.Result)) downloader.Task {
	return d.inner.Download(ctx, u, func(res downloader.Result) {
		if res.Err != nil {
			d.downloads.WithLabelValues("error").Inc()
		} else {
			d.downloads.WithLabelValues("ok").Inc()
		}
		if completion != nil {
			completion(res)
		}
	})
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
