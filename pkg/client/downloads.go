package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/dieharders/obrew-go/pkg/progress"
)

// DownloadRequest asks the backend to begin fetching a model artifact.
type DownloadRequest struct {
	RepoID   string `json:"repo_id"`
	FileName string `json:"file_name,omitempty"`
}

// downloadStarted is the payload answering a download start request.
type downloadStarted struct {
	TaskID string `json:"task_id"`
}

// StartDownload begins a long-running model download and returns the task id
// used to observe its progress.
func (c *Client) StartDownload(ctx context.Context, req DownloadRequest) (string, error) {
	var started downloadStarted
	if err := c.doJSON(ctx, http.MethodPost, downloadPath, req, &started); err != nil {
		return "", fmt.Errorf("starting download of %s: %w", req.RepoID, err)
	}

	c.logger.Info("download started",
		zap.String("repo_id", req.RepoID),
		zap.String("task_id", started.TaskID),
	)

	return started.TaskID, nil
}

// CancelDownload asks the backend to abort a download task. The progress
// stream for the task subsequently reports a cancelled terminal status.
func (c *Client) CancelDownload(ctx context.Context, taskID string) error {
	payload := struct {
		TaskID string `json:"task_id"`
	}{TaskID: taskID}

	if err := c.doJSON(ctx, http.MethodPost, downloadCancelPath, payload, nil); err != nil {
		return fmt.Errorf("cancelling download task %s: %w", taskID, err)
	}
	return nil
}

// SubscribeProgress opens the progress stream for a download task and
// invokes cb as frames arrive. The returned subscription cancels
// independently of other operations; failure to open the stream is returned
// synchronously.
func (c *Client) SubscribeProgress(ctx context.Context, taskID string, cb progress.Callbacks) (*progress.Subscription, error) {
	if err := c.requireConnection(); err != nil {
		return nil, err
	}
	return c.progress.Subscribe(ctx, taskID, cb)
}

// OpenProgressStream implements progress.StreamOpener over the transport.
func (c *Client) OpenProgressStream(ctx context.Context, taskID string) (io.ReadCloser, error) {
	headers := map[string]string{"Accept": "text/event-stream"}
	for key, value := range c.config.Headers {
		headers[key] = value
	}

	target := c.endpoint(progressPath) + "?task_id=" + url.QueryEscape(taskID)
	handle, err := c.transport.Open(ctx, http.MethodGet, target, headers, nil)
	if err != nil {
		c.noteTransportError(err)
		return nil, err
	}

	return handle.Body, nil
}
