package remoteimage_test

import (
	"context"
	"image"
	"image/color"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/illmade-knight/go-remoteimage/pkg/dispatch"
	"github.com/illmade-knight/go-remoteimage/pkg/downloader"
	"github.com/illmade-knight/go-remoteimage/pkg/remoteimage"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// --- downloader double ---

type fakeTask struct {
	u         *url.URL
	cancelled atomic.Bool
}

func (t *fakeTask) Cancel()       { t.cancelled.Store(true) }
func (t *fakeTask) URL() *url.URL { return t.u }

type pendingDownload struct {
	task       *fakeTask
	completion func(downloader.Result)
}

// fakeDownloader holds every download until the test finishes it. Like a
// transport that cannot stop promptly, it delivers results even to cancelled
// tasks, so the loader's own guard is what keeps stale results away.
type fakeDownloader struct {
	mu      sync.Mutex
	pending []pendingDownload
	result  downloader.Result
}

func (d *fakeDownloader) Download(_ context.Context, u *url.URL, completion func(downloader.Result)) downloader.Task {
	d.mu.Lock()
	defer d.mu.Unlock()
	task := &fakeTask{u: u}
	d.pending = append(d.pending, pendingDownload{task: task, completion: completion})
	return task
}

func (d *fakeDownloader) calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

func (d *fakeDownloader) download(i int) pendingDownload {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending[i]
}

// finishDownload completes download i with the configured result.
func (d *fakeDownloader) finishDownload(i int) {
	d.mu.Lock()
	res := d.result
	d.mu.Unlock()
	d.finishWith(i, res)
}

func (d *fakeDownloader) finishWith(i int, res downloader.Result) {
	p := d.download(i)
	p.completion(res)
}

// --- cache double ---

type storeCall struct {
	key  string
	img  image.Image
	meta *downloader.Metadata
}

type fakeCache struct {
	mu      sync.Mutex
	images  map[string]image.Image
	lookups []string
	stores  chan storeCall
}

func newFakeCache() *fakeCache {
	return &fakeCache{images: make(map[string]image.Image), stores: make(chan storeCall, 16)}
}

func (c *fakeCache) Store(_ context.Context, key string, img image.Image, meta *downloader.Metadata) {
	c.mu.Lock()
	c.images[key] = img
	c.mu.Unlock()
	c.stores <- storeCall{key: key, img: img, meta: meta}
}

func (c *fakeCache) Lookup(_ context.Context, key string) (image.Image, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lookups = append(c.lookups, key)
	img, ok := c.images[key]
	return img, ok
}

func (c *fakeCache) lookupCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.lookups)
}

// --- display and indicator doubles ---

type recordingIndicator struct {
	mu  sync.Mutex
	log []string
}

func (i *recordingIndicator) StartLoading() { i.record("start") }
func (i *recordingIndicator) StopLoading()  { i.record("stop") }

func (i *recordingIndicator) record(s string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.log = append(i.log, s)
}

func (i *recordingIndicator) statusLog() []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]string(nil), i.log...)
}

type recordingDisplay struct {
	mu       sync.Mutex
	shown    []image.Image
	attached map[remoteimage.Indicator]bool
	events   []string
}

func newRecordingDisplay() *recordingDisplay {
	return &recordingDisplay{attached: make(map[remoteimage.Indicator]bool)}
}

func (d *recordingDisplay) Show(img image.Image) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.shown = append(d.shown, img)
}

func (d *recordingDisplay) AttachIndicator(ind remoteimage.Indicator) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.attached[ind] = true
	d.events = append(d.events, "attach")
}

func (d *recordingDisplay) DetachIndicator(ind remoteimage.Indicator) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.attached, ind)
	d.events = append(d.events, "detach")
}

func (d *recordingDisplay) current() image.Image {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.shown) == 0 {
		return nil
	}
	return d.shown[len(d.shown)-1]
}

func (d *recordingDisplay) showCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.shown)
}

func (d *recordingDisplay) isAttached(ind remoteimage.Indicator) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attached[ind]
}

// --- processor double ---

type stubProcessor struct {
	id     string
	output image.Image
	calls  atomic.Int32
}

func (p *stubProcessor) Identifier() string { return p.id }

func (p *stubProcessor) Process(image.Image) image.Image {
	p.calls.Add(1)
	return p.output
}

// rejectingDispatcher refuses every task.
type rejectingDispatcher struct{}

func (rejectingDispatcher) Dispatch(func()) bool { return false }

// --- harness ---

type harness struct {
	loader     *remoteimage.Loader
	ui         *dispatch.SerialQueue
	downloader *fakeDownloader
	cache      *fakeCache
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	ui := dispatch.NewSerialQueue(zerolog.Nop())
	ui.Start(ctx)
	background := dispatch.NewWorkerPool(dispatch.WorkerPoolConfig{NumWorkers: 2, QueueSize: 16}, zerolog.Nop())
	background.Start(ctx)

	d := &fakeDownloader{}
	c := newFakeCache()
	loader, err := remoteimage.NewLoader(
		remoteimage.LoaderConfig{StoreTimeout: time.Second},
		remoteimage.NewTools(d, c),
		ui,
		background,
		zerolog.Nop(),
	)
	require.NoError(t, err)
	return &harness{loader: loader, ui: ui, downloader: d, cache: c}
}

// drain waits until every task queued on the UI dispatcher so far has run.
func (h *harness) drain(t *testing.T) {
	t.Helper()
	done := make(chan struct{})
	require.True(t, h.ui.Dispatch(func() { close(done) }))
	waitFor(t, done)
}

func waitFor(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
	}
}

func signal() (func(), <-chan struct{}) {
	ch := make(chan struct{})
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }, ch
}

func solidImage(c color.Color) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	for x := 0; x < 2; x++ {
		for y := 0; y < 2; y++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}
