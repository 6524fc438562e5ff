package downloader_test

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/illmade-knight/go-remoteimage/pkg/downloader"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.NRGBA{R: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

// download runs a download and waits for its completion.
func download(t *testing.T, d downloader.Downloader, u *url.URL) downloader.Result {
	t.Helper()
	results := make(chan downloader.Result, 1)
	d.Download(context.Background(), u, func(r downloader.Result) { results <- r })
	select {
	case r := <-results:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for download completion")
		return downloader.Result{}
	}
}

func TestHTTPDownloader_Download(t *testing.T) {
	body := pngBytes(t, 4, 3)
	var gotUserAgent atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok.png":
			gotUserAgent.Store(r.UserAgent())
			w.Header().Set("Content-Type", "image/png")
			w.Header().Set("ETag", `"abc"`)
			w.Header().Set("Last-Modified", "Wed, 21 Oct 2015 07:28:00 GMT")
			_, _ = w.Write(body)
		case "/missing.png":
			http.NotFound(w, r)
		case "/garbage":
			_, _ = w.Write([]byte("definitely not an image"))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	t.Cleanup(server.Close)

	d := downloader.NewHTTPDownloader(downloader.Config{UserAgent: "remoteimage-test"}, zerolog.Nop())

	t.Run("Success decodes image and fills metadata", func(t *testing.T) {
		// Act
		res := download(t, d, mustParse(t, server.URL+"/ok.png"))

		// Assert
		require.NoError(t, res.Err)
		require.NotNil(t, res.Image)
		assert.Equal(t, image.Rect(0, 0, 4, 3), res.Image.Bounds())
		assert.Equal(t, http.StatusOK, res.Metadata.StatusCode)
		assert.Equal(t, "image/png", res.Metadata.ContentType)
		assert.Equal(t, `"abc"`, res.Metadata.ETag)
		assert.Equal(t, 2015, res.Metadata.LastModified.Year())
		assert.Equal(t, "remoteimage-test", gotUserAgent.Load())
	})

	t.Run("Non-2xx is ErrUnexpectedStatus", func(t *testing.T) {
		res := download(t, d, mustParse(t, server.URL+"/missing.png"))
		assert.ErrorIs(t, res.Err, downloader.ErrUnexpectedStatus)
		assert.Nil(t, res.Image)
		assert.Equal(t, http.StatusNotFound, res.Metadata.StatusCode)
	})

	t.Run("Undecodable body is an error", func(t *testing.T) {
		res := download(t, d, mustParse(t, server.URL+"/garbage"))
		assert.Error(t, res.Err)
		assert.Nil(t, res.Image)
	})

	t.Run("Unsupported scheme", func(t *testing.T) {
		res := download(t, d, mustParse(t, "ftp://example.com/a.png"))
		assert.ErrorIs(t, res.Err, downloader.ErrUnsupportedURL)
	})

	t.Run("Body over limit", func(t *testing.T) {
		small := downloader.NewHTTPDownloader(downloader.Config{MaxBytes: 10}, zerolog.Nop())
		res := download(t, small, mustParse(t, server.URL+"/ok.png"))
		assert.ErrorIs(t, res.Err, downloader.ErrBodyTooLarge)
	})

	t.Run("Task reports its URL", func(t *testing.T) {
		u := mustParse(t, server.URL+"/ok.png")
		done := make(chan struct{})
		task := d.Download(context.Background(), u, func(downloader.Result) { close(done) })
		assert.Equal(t, u, task.URL())
		<-done
	})
}

func TestHTTPDownloader_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		server.Close()
	})

	d := downloader.NewHTTPDownloader(downloader.Config{Timeout: 50 * time.Millisecond}, zerolog.Nop())
	res := download(t, d, mustParse(t, server.URL+"/slow.png"))

	assert.Error(t, res.Err)
	assert.Nil(t, res.Image)
}

func TestHTTPDownloader_CancelSuppressesCompletion(t *testing.T) {
	// Arrange: a server that blocks until the request is abandoned.
	requestSeen := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(requestSeen)
		<-r.Context().Done()
	}))
	t.Cleanup(server.Close)

	d := downloader.NewHTTPDownloader(downloader.Config{}, zerolog.Nop())
	called := make(chan struct{}, 1)

	// Act
	task := d.Download(context.Background(), mustParse(t, server.URL+"/a.png"), func(downloader.Result) {
		called <- struct{}{}
	})
	<-requestSeen
	task.Cancel()
	task.Cancel()

	// Assert
	select {
	case <-called:
		t.Fatal("completion must not run after Cancel")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestHTTPDownloader_CancelDuringCompletion(t *testing.T) {
	// Arrange
	body := pngBytes(t, 2, 2)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(body)
	}))
	t.Cleanup(server.Close)

	d := downloader.NewHTTPDownloader(downloader.Config{}, zerolog.Nop())
	started := make(chan struct{})
	release := make(chan struct{})
	finished := make(chan downloader.Result, 1)

	// Act: the completion is already running when Cancel is called.
	task := d.Download(context.Background(), mustParse(t, server.URL+"/a.png"), func(res downloader.Result) {
		close(started)
		<-release
		finished <- res
	})
	<-started
	task.Cancel()
	close(release)

	// Assert: Cancel returned without interrupting the running completion.
	select {
	case res := <-finished:
		require.NoError(t, res.Err)
		assert.NotNil(t, res.Image)
	case <-time.After(2 * time.Second):
		t.Fatal("running completion did not finish")
	}
}
