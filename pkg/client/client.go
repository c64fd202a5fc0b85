// Package client is the engine that talks to a remote inference and
// model-management backend over HTTP, including long-lived SSE streams for
// chat generation and asynchronous download progress.
//
// A Client is an explicit handle with one active connection at a time, not a
// process-wide singleton. All operations register with a shared request
// tracker so that one, several, or all in-flight operations can be cancelled
// independently.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dieharders/obrew-go/pkg/progress"
	"github.com/dieharders/obrew-go/pkg/sse"
	"github.com/dieharders/obrew-go/pkg/track"
)

// Capabilities is the backend's service catalogue as returned by the
// handshake. The engine treats it as opaque; consumers introspect it.
type Capabilities map[string]json.RawMessage

// Config holds connection settings for a Client.
type Config struct {
	// BaseURL is the backend origin, e.g. "http://localhost:8008".
	BaseURL string

	// Headers are applied to every request (e.g. auth tokens).
	Headers map[string]string
}

// Option configures a Client created with New.
type Option func(*Client)

// WithTransport substitutes the transport layer. Used by tests and by
// callers with custom HTTP stacks.
func WithTransport(t Transport) Option {
	return func(c *Client) { c.transport = t }
}

// WithLogger sets the client logger. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// Client coordinates chat calls, downloads, and progress subscriptions
// against one backend. Safe for concurrent use; decoding for independent
// operations runs fully concurrently while only the request-tracker map is
// shared.
type Client struct {
	config    Config
	transport Transport
	requests  *track.Tracker
	decoder   *sse.Decoder
	progress  *progress.Tracker
	logger    *zap.Logger

	mu           sync.Mutex
	enabled      bool
	capabilities Capabilities
}

// New returns a Client for the backend at cfg.BaseURL. The client starts
// disconnected; call Connect before issuing operations.
func New(cfg Config, opts ...Option) (*Client, error) {
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", cfg.BaseURL, err)
	}

	c := &Client{
		config:   cfg,
		requests: track.NewTracker(),
		logger:   zap.NewNop(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.transport == nil {
		c.transport = NewHTTPTransport()
	}

	c.decoder = sse.NewDecoder(c.logger)
	c.progress = progress.NewTracker(c, c.requests, c.logger)

	return c, nil
}

// Connect performs the handshake: it fetches the backend's service
// catalogue and, on success, marks the client enabled. Connecting an
// already-connected client refreshes the capability set.
func (c *Client) Connect(ctx context.Context) error {
	caps, err := c.fetchCapabilities(ctx)
	if err != nil {
		c.noteTransportError(err)
		return fmt.Errorf("connecting to %s: %w", c.config.BaseURL, err)
	}

	c.mu.Lock()
	c.capabilities = caps
	c.enabled = true
	c.mu.Unlock()

	c.logger.Info("connected to backend",
		zap.String("base_url", c.config.BaseURL),
		zap.Int("capability_count", len(caps)),
	)

	return nil
}

// Disconnect cancels every in-flight operation and resets the connection
// state to disabled.
func (c *Client) Disconnect() {
	c.requests.CancelAll()

	c.mu.Lock()
	c.capabilities = nil
	c.enabled = false
	c.mu.Unlock()

	c.logger.Info("disconnected from backend", zap.String("base_url", c.config.BaseURL))
}

// Enabled reports whether the client holds an active connection.
func (c *Client) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

// Capabilities returns the service catalogue from the last successful
// handshake, or nil when disconnected.
func (c *Client) Capabilities() Capabilities {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capabilities
}

// Cancel aborts the operation registered under id. A no-op for unknown ids.
func (c *Client) Cancel(id string) {
	c.requests.Cancel(id)
}

// CancelAll aborts every in-flight operation.
func (c *Client) CancelAll() {
	c.requests.CancelAll()
}

// Active returns the ids of all in-flight operations.
func (c *Client) Active() []string {
	return c.requests.Active()
}

// Health pings the backend with a derived timeout token. Timeout and manual
// cancellation compose through the same signal mechanism.
func (c *Client) Health(ctx context.Context, timeout time.Duration) error {
	id, opCtx := c.requests.BeginTimeout(ctx, "", timeout)
	defer c.requests.End(id)

	handle, err := c.transport.Open(opCtx, http.MethodGet, c.endpoint(healthPath), c.config.Headers, nil)
	if err != nil {
		c.noteTransportError(err)
		return fmt.Errorf("health check: %w", err)
	}
	defer func() { _ = handle.Release() }()

	return nil
}

// noteTransportError flips the connection state to disabled when err matches
// a known network-failure signature, so subsequent calls fail fast rather
// than attempting a dead connection.
func (c *Client) noteTransportError(err error) {
	if !IsConnectionLoss(err) {
		return
	}

	c.mu.Lock()
	wasEnabled := c.enabled
	c.enabled = false
	c.capabilities = nil
	c.mu.Unlock()

	if wasEnabled {
		c.logger.Warn("backend connection lost", zap.Error(err))
	}
}

// NoteTransportError records a transport failure observed outside the
// engine's own request paths, such as a progress stream dying mid-decode.
// Implements progress.StreamErrorObserver.
func (c *Client) NoteTransportError(err error) {
	c.noteTransportError(err)
}

// requireConnection returns ErrNotConnected when no handshake has succeeded.
func (c *Client) requireConnection() error {
	if !c.Enabled() {
		return ErrNotConnected
	}
	return nil
}

// endpoint joins the base URL with an endpoint path.
func (c *Client) endpoint(path string) string {
	return c.config.BaseURL + path
}
