package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/dieharders/obrew-go/pkg/envelope"
	"github.com/dieharders/obrew-go/pkg/sse"
)

// ChatMessage is one turn of a conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is a chat/completion request against the inference endpoint.
type ChatRequest struct {
	// ID optionally names the operation so it can be cancelled with
	// Client.Cancel. When empty a fresh id is generated internally.
	ID string `json:"-"`

	Model    string        `json:"model,omitempty"`
	Messages []ChatMessage `json:"messages,omitempty"`
	Prompt   string        `json:"prompt,omitempty"`
	Stream   bool          `json:"stream"`

	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

// Completion sends a chat request and returns the full normalized answer
// text, whether the backend answered with a single JSON body or a
// token-by-token SSE stream.
func (c *Client) Completion(ctx context.Context, req *ChatRequest) (string, error) {
	return c.StreamCompletion(ctx, req, nil)
}

// StreamCompletion is Completion with a per-token hook: onToken receives the
// normalized text of each data frame as it arrives. onToken may be nil.
//
// The response shape decides the path: an SSE content type (or a request
// that asked to stream) is decoded frame by frame with text accumulation;
// anything else is read once and normalized through the envelope shim.
func (c *Client) StreamCompletion(ctx context.Context, req *ChatRequest, onToken func(token string)) (string, error) {
	if err := c.requireConnection(); err != nil {
		return "", err
	}

	id, opCtx := c.requests.Begin(ctx, req.ID)
	defer c.requests.End(id)

	encoded, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encoding chat request: %w", err)
	}

	headers := c.jsonHeaders()
	if req.Stream {
		headers["Accept"] = "text/event-stream"
	}

	handle, err := c.transport.Open(opCtx, http.MethodPost, c.endpoint(inferencePath), headers, bytes.NewReader(encoded))
	if err != nil {
		c.noteTransportError(err)
		return "", fmt.Errorf("opening inference stream: %w", err)
	}
	defer func() { _ = handle.Release() }()

	c.logger.Debug("inference request opened",
		zap.String("request_id", id),
		zap.String("model", req.Model),
		zap.Bool("streaming", handle.IsEventStream()),
	)

	if handle.IsEventStream() {
		return c.consumeStream(opCtx, handle, onToken)
	}

	return c.consumeOneShot(handle, onToken)
}

// consumeStream decodes an SSE response body, accumulating normalized text.
func (c *Client) consumeStream(ctx context.Context, handle *StreamHandle, onToken func(string)) (string, error) {
	callbacks := sse.Callbacks{}
	if onToken != nil {
		callbacks.OnData = func(payload string) {
			onToken(envelope.ExtractText([]byte(payload)))
		}
	}

	text, err := c.decoder.DecodeText(ctx, handle.Body, callbacks)
	if err != nil {
		c.noteTransportError(err)
		return text, err
	}
	return text, nil
}

// consumeOneShot reads a single JSON body and normalizes it.
func (c *Client) consumeOneShot(handle *StreamHandle, onToken func(string)) (string, error) {
	body, err := io.ReadAll(handle.Body)
	if err != nil {
		c.noteTransportError(err)
		return "", fmt.Errorf("reading inference response: %w", err)
	}

	text := envelope.ExtractText(body)
	if onToken != nil {
		onToken(text)
	}
	return text, nil
}
