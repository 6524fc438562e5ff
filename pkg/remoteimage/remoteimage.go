// Package remoteimage binds remote images to displays.
//
// A Loader owns the shared collaborators (downloader, cache, dispatchers) and
// hands out one ImageView per display. An ImageView has at most one request
// in flight: every SetImage supersedes the previous one, and a superseded
// request can no longer touch the display, its indicator or its completion.
//
// SetImage must be called from the view's UI context, i.e. the goroutine that
// drains the view's UI dispatcher, or from code that is otherwise serialized
// with it. Views made with NewImageView share the Loader's dispatcher; views
// made with NewImageViewOn bring their own. Display and Indicator methods are invoked with the view's lock held and
// must not call back into the same ImageView; completion callbacks are invoked
// without the lock and may.
package remoteimage

import (
	"image"

	"github.com/illmade-knight/go-remoteimage/pkg/processor"
)

// Indicator is a loading indicator.
type Indicator interface {
	StartLoading()
	StopLoading()
}

// Display shows an image. A nil image clears it.
type Display interface {
	Show(img image.Image)
}

// DisplayFunc adapts a function to Display.
type DisplayFunc func(img image.Image)

func (f DisplayFunc) Show(img image.Image) { f(img) }

// IndicatorHost is implemented by displays that host indicator widgets.
// The ImageView attaches an indicator before a request uses it and detaches it
// once the request settles or a different indicator replaces it.
type IndicatorHost interface {
	AttachIndicator(ind Indicator)
	DetachIndicator(ind Indicator)
}

type options struct {
	placeholder image.Image
	indicator   Indicator
	processor   processor.Processor
	onComplete  func()
}

// Option configures a single SetImage call.
type Option func(*options)

// WithPlaceholder is shown when there is no URL or the download fails.
func WithPlaceholder(img image.Image) Option {
	return func(o *options) { o.placeholder = img }
}

// WithIndicator runs ind while the image is downloading. Indicators are
// compared by identity, so implementations should be pointer types.
func WithIndicator(ind Indicator) Option {
	return func(o *options) { o.indicator = ind }
}

// WithProcessor transforms the downloaded image before display and caching.
func WithProcessor(p processor.Processor) Option {
	return func(o *options) { o.processor = p }
}

// WithCompletion is called once the request settles, whether it succeeded or
// not. It is not called for superseded or cancelled requests.
func WithCompletion(fn func()) Option {
	return func(o *options) { o.onComplete = fn }
}

func applyOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}
