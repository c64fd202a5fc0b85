package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// StreamHandle is an open response stream plus the metadata needed to decide
// between streaming and single-shot handling.
type StreamHandle struct {
	StatusCode  int
	ContentType string
	Body        io.ReadCloser
}

// Release closes the underlying stream. Safe to call more than once on
// net/http bodies; every exit path of a decode releases its handle.
func (h *StreamHandle) Release() error {
	return h.Body.Close()
}

// IsEventStream reports whether the response is a long-lived SSE stream.
func (h *StreamHandle) IsEventStream() bool {
	return strings.HasPrefix(h.ContentType, "text/event-stream")
}

// Transport opens response streams against the backend. The default
// implementation sits on net/http; tests substitute their own.
type Transport interface {
	Open(ctx context.Context, method, url string, headers map[string]string, body io.Reader) (*StreamHandle, error)
}

// HTTPTransport is the default Transport over net/http.
//
// The underlying http.Client carries no global timeout: progress streams for
// large model downloads legitimately outlive any fixed deadline, and every
// operation is bounded by its cancellation token instead.
type HTTPTransport struct {
	client *http.Client
}

// NewHTTPTransport returns a Transport backed by its own http.Client.
func NewHTTPTransport() *HTTPTransport {
	return &HTTPTransport{
		client: &http.Client{},
	}
}

// Open performs the request and returns the response as a StreamHandle.
// Responses with a non-2xx status are drained, closed, and surfaced as a
// *ResponseError; the caller never receives a half-usable handle.
func (t *HTTPTransport) Open(ctx context.Context, method, url string, headers map[string]string, body io.Reader) (*StreamHandle, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("opening %s %s: %w", method, url, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		_ = resp.Body.Close()
		return nil, &ResponseError{
			StatusCode: resp.StatusCode,
			Body:       string(respBody),
		}
	}

	return &StreamHandle{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        resp.Body,
	}, nil
}
