package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// Backend endpoint paths. These are data-transfer surfaces only; no
// decision logic lives behind them.
const (
	servicesPath       = "/v1/services/api"
	healthPath         = "/v1/health"
	inferencePath      = "/v1/text/inference"
	installedPath      = "/v1/text/installed"
	loadPath           = "/v1/text/load"
	unloadPath         = "/v1/text/unload"
	downloadPath       = "/v1/downloads"
	downloadCancelPath = "/v1/downloads/cancel"
	progressPath       = "/v1/downloads/progress"
	settingsPath       = "/v1/persist/settings"
)

// apiResponse is the backend's uniform JSON envelope for non-streaming
// endpoints.
type apiResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// ModelInfo describes one installed model.
type ModelInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	RepoID   string `json:"repo_id,omitempty"`
	FileName string `json:"file_name,omitempty"`
	FilePath string `json:"file_path,omitempty"`
	SizeMB   int64  `json:"size_mb,omitempty"`
	Loaded   bool   `json:"loaded,omitempty"`
}

// LoadModelRequest asks the backend to load a model into memory.
type LoadModelRequest struct {
	ModelID string         `json:"model_id"`
	Options map[string]any `json:"options,omitempty"`
}

// Settings is a named bundle of persisted backend configuration.
type Settings struct {
	Name   string         `json:"name"`
	Values map[string]any `json:"values"`
}

// InstalledModels lists the models installed on the backend.
func (c *Client) InstalledModels(ctx context.Context) ([]ModelInfo, error) {
	var models []ModelInfo
	if err := c.doJSON(ctx, http.MethodGet, installedPath, nil, &models); err != nil {
		return nil, fmt.Errorf("listing installed models: %w", err)
	}
	return models, nil
}

// LoadModel loads a model into the backend's memory.
func (c *Client) LoadModel(ctx context.Context, req LoadModelRequest) error {
	if err := c.doJSON(ctx, http.MethodPost, loadPath, req, nil); err != nil {
		return fmt.Errorf("loading model %s: %w", req.ModelID, err)
	}
	return nil
}

// UnloadModel evicts the currently loaded model.
func (c *Client) UnloadModel(ctx context.Context) error {
	if err := c.doJSON(ctx, http.MethodPost, unloadPath, nil, nil); err != nil {
		return fmt.Errorf("unloading model: %w", err)
	}
	return nil
}

// SaveSettings persists a named settings bundle on the backend.
func (c *Client) SaveSettings(ctx context.Context, settings Settings) error {
	if err := c.doJSON(ctx, http.MethodPost, settingsPath, settings, nil); err != nil {
		return fmt.Errorf("saving settings %s: %w", settings.Name, err)
	}
	return nil
}

// GetSettings fetches all persisted settings bundles.
func (c *Client) GetSettings(ctx context.Context) ([]Settings, error) {
	var settings []Settings
	if err := c.doJSON(ctx, http.MethodGet, settingsPath, nil, &settings); err != nil {
		return nil, fmt.Errorf("fetching settings: %w", err)
	}
	return settings, nil
}

// fetchCapabilities retrieves the backend's service catalogue. Unlike the
// other catalogue calls it does not require an established connection; it
// IS the handshake.
func (c *Client) fetchCapabilities(ctx context.Context) (Capabilities, error) {
	var caps Capabilities
	if err := c.call(ctx, http.MethodGet, servicesPath, nil, &caps); err != nil {
		return nil, err
	}
	return caps, nil
}

// doJSON is the connection-gated request helper behind the catalogue calls.
func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	if err := c.requireConnection(); err != nil {
		return err
	}
	return c.call(ctx, method, path, in, out)
}

// call performs one tracked request/response round trip through the
// transport, unwrapping the backend's response envelope into out.
func (c *Client) call(ctx context.Context, method, path string, in, out any) error {
	id, opCtx := c.requests.Begin(ctx, "")
	defer c.requests.End(id)

	var body io.Reader
	headers := c.jsonHeaders()
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	handle, err := c.transport.Open(opCtx, method, c.endpoint(path), headers, body)
	if err != nil {
		c.noteTransportError(err)
		return err
	}
	defer func() { _ = handle.Release() }()

	respBody, err := io.ReadAll(handle.Body)
	if err != nil {
		c.noteTransportError(err)
		return fmt.Errorf("reading response: %w", err)
	}

	var envelope apiResponse
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return fmt.Errorf("decoding response envelope: %w", err)
	}
	if !envelope.Success {
		if envelope.Message != "" {
			return errors.New(envelope.Message)
		}
		return errors.New("backend reported failure")
	}

	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("decoding response data: %w", err)
		}
	}

	return nil
}

// jsonHeaders merges the configured default headers with JSON content
// negotiation.
func (c *Client) jsonHeaders() map[string]string {
	headers := map[string]string{
		"Content-Type": "application/json",
		"Accept":       "application/json",
	}
	for key, value := range c.config.Headers {
		headers[key] = value
	}
	return headers
}
