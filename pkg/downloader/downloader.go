// Package downloader fetches remote images and decodes them.
//
// A Download call returns a Task immediately. The completion runs on the
// downloader's own goroutine, at most once, and never after the Task has been
// cancelled. Callers that need to touch UI state must hop back to their own
// execution context.
package downloader

import (
	"context"
	"errors"
	"image"
	"net/http"
	"net/url"
	"time"
)

var (
	// ErrUnsupportedURL is returned for URLs that are not http or https.
	ErrUnsupportedURL = errors.New("unsupported url")
	// ErrUnexpectedStatus is returned for non-2xx responses.
	ErrUnexpectedStatus = errors.New("unexpected http status")
	// ErrBodyTooLarge is returned when the response exceeds Config.MaxBytes.
	ErrBodyTooLarge = errors.New("response body too large")
	// ErrCancelled is the error a Task's context carries after Cancel.
	ErrCancelled = errors.New("download cancelled")
)

// Metadata describes the HTTP response an image came from.
type Metadata struct {
	URL           string      `json:"url" firestore:"url"`
	StatusCode    int         `json:"status_code" firestore:"status_code"`
	ContentType   string      `json:"content_type,omitempty" firestore:"content_type,omitempty"`
	ContentLength int64       `json:"content_length" firestore:"content_length"`
	ETag          string      `json:"etag,omitempty" firestore:"etag,omitempty"`
	LastModified  time.Time   `json:"last_modified,omitempty" firestore:"last_modified,omitempty"`
	Header        http.Header `json:"header,omitempty" firestore:"-"`
}

// Result is delivered to a download's completion.
// Image is nil when Err is set.
type Result struct {
	Image    image.Image
	Metadata Metadata
	Err      error
}

// Task is the handle of one in-flight download.
type Task interface {
	// Cancel aborts the download. A completion that has not started by the time
	// Cancel returns will not run; one already running is not interrupted.
	Cancel()
	URL() *url.URL
}

// Downloader starts asynchronous image downloads.
type Downloader interface {
	Download(ctx context.Context, u *url.URL, completion func(Result)) Task
}
