package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/desertthunder/ytrpc/internal/models"
	"github.com/desertthunder/ytrpc/internal/shared"
)

// APIError is a non-2xx reply from the engine.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("engine returned %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusServiceUnavailable:
		return shared.ErrServiceUnavailable
	case http.StatusGatewayTimeout:
		return shared.ErrTimeout
	case http.StatusBadRequest:
		return shared.ErrInvalidInput
	default:
		return nil
	}
}

// EngineClient talks to a running engine.
type EngineClient struct {
	api *APIService
}

// NewEngineClient creates an [EngineClient] for the engine at baseURL.
func NewEngineClient(baseURL string, client *http.Client) *EngineClient {
	return &EngineClient{api: NewAPIService(baseURL, client)}
}

// Status fetches the current status snapshot.
func (c *EngineClient) Status(ctx context.Context) (models.StatusSnapshot, error) {
	var s models.StatusSnapshot
	err := c.decode(c.api.Get(ctx, "/api/status"))(&s)
	return s, err
}

// Connect asks an idle engine to start connecting.
func (c *EngineClient) Connect(ctx context.Context) (models.StatusSnapshot, error) {
	return c.command(ctx, "/api/connect")
}

// Reconnect issues a manual reconnect.
func (c *EngineClient) Reconnect(ctx context.Context) (models.StatusSnapshot, error) {
	return c.command(ctx, "/api/reconnect")
}

// Disconnect issues a manual disconnect.
func (c *EngineClient) Disconnect(ctx context.Context) (models.StatusSnapshot, error) {
	return c.command(ctx, "/api/disconnect")
}

// History lists confirmed presences, newest first. A limit of 0 uses the engine default.
func (c *EngineClient) History(ctx context.Context, limit int) ([]models.HistoryEntry, error) {
	path := "/api/history"
	if limit > 0 {
		path = fmt.Sprintf("%s?limit=%d", path, limit)
	}
	var entries []models.HistoryEntry
	err := c.decode(c.api.Get(ctx, path))(&entries)
	return entries, err
}

// SubmitTrack posts a source event to the engine.
func (c *EngineClient) SubmitTrack(ctx context.Context, ev models.SourceEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode track: %w", err)
	}
	resp, err := c.api.Post(ctx, "/api/track", data)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrServiceUnavailable, err)
	}
	return checkStatus(resp)
}

// Watch opens the status stream. The channel closes when ctx ends or the connection drops;
// the first value is the engine's current status.
func (c *EngineClient) Watch(ctx context.Context) (<-chan models.StatusSnapshot, error) {
	url := "ws" + strings.TrimPrefix(c.api.BaseURL(), "http") + "/ws"

	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open status stream: %v", shared.ErrServiceUnavailable, err)
	}

	out := make(chan models.StatusSnapshot, 1)
	go func() {
		defer close(out)
		defer conn.CloseNow()

		for {
			var s models.StatusSnapshot
			if err := wsjson.Read(ctx, conn, &s); err != nil {
				return
			}
			// keep only the newest snapshot if the reader is behind
			select {
			case <-out:
			default:
			}
			out <- s
		}
	}()

	return out, nil
}

func (c *EngineClient) command(ctx context.Context, path string) (models.StatusSnapshot, error) {
	var s models.StatusSnapshot
	err := c.decode(c.api.Post(ctx, path, nil))(&s)
	return s, err
}

func (c *EngineClient) decode(resp *APIResponse, err error) func(v any) error {
	return func(v any) error {
		if err != nil {
			return fmt.Errorf("%w: %v", shared.ErrServiceUnavailable, err)
		}
		if err := checkStatus(resp); err != nil {
			return err
		}
		if err := json.Unmarshal(resp.Body, v); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		return nil
	}
}

func checkStatus(resp *APIResponse) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	msg := strings.TrimSpace(string(resp.Body))
	if resp.IsJSON {
		if m, ok := resp.JSONData.(map[string]any); ok {
			if s, ok := m["error"].(string); ok {
				msg = s
			}
		}
	}
	return &APIError{StatusCode: resp.StatusCode, Message: msg}
}
