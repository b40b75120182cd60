package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/pmoellner/hausdeck/config"
)

// Bridge defines the subset of bridge admin operations required by the
// console. The concrete implementation speaks JSON over HTTP; tests swap in
// fakes.
type Bridge interface {
	UIPayload(ctx context.Context) (*UIPayload, error)
	BridgeInfo(ctx context.Context) (*BridgeInfo, error)
	RuntimeConfig(ctx context.Context) (*RuntimeConfig, error)
	SaveRuntimeConfig(ctx context.Context, update RuntimeConfigUpdate) (*RuntimeConfig, error)
	Connect(ctx context.Context) (*ConnectResponse, error)
	Disconnect(ctx context.Context) (*ConnectResponse, error)
	SetToken(ctx context.Context, token string) (*RuntimeConfig, error)
	DeleteToken(ctx context.Context) (*RuntimeConfig, error)
	SaveConfig(ctx context.Context, cfg UIConfig) (*UIConfig, error)
	PatchEntity(ctx context.Context, patch EntityPatch) (*UIConfig, error)
	Rooms(ctx context.Context) ([]RoomConfig, error)
	CreateRoom(ctx context.Context, name string) ([]RoomConfig, error)
	RenameRoom(ctx context.Context, roomID, name string) ([]RoomConfig, error)
	DeleteRoom(ctx context.Context, roomID string) ([]RoomConfig, error)
	Logs(ctx context.Context) ([]string, error)
	TriggerSync(ctx context.Context) (*SyncResponse, error)
	ApplySelection(ctx context.Context) (*ApplyResponse, error)
	PressLinkButton(ctx context.Context) (*LinkButtonResponse, error)
	ResetBridge(ctx context.Context) (*ResetResponse, error)
	RecordUsage(ctx context.Context, event PatinaEvent)
}

// Client talks to the bridge admin API.
type Client struct {
	base   *url.URL
	http   *http.Client
	logger zerolog.Logger
}

var _ Bridge = (*Client)(nil)

// NewClient creates a bridge client from the configured endpoint.
func NewClient(cfg config.BridgeConfig, logger zerolog.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("bridge url is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.URL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse bridge url %q: %w", cfg.URL, err)
	}
	timeout := cfg.Timeout.Duration
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		base:   base,
		http:   &http.Client{Timeout: timeout},
		logger: logger.With().Str("component", "remote").Logger(),
	}, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, reader)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return fmt.Errorf("%s %s: %s", method, path, decodeAPIError(res))
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}

// decodeAPIError extracts a human-readable message from a non-2xx response.
// The bridge usually answers with a JSON {"error": ...} body, sometimes with
// plain text; an empty body degrades to the bare status code.
func decodeAPIError(res *http.Response) string {
	raw, err := io.ReadAll(io.LimitReader(res.Body, 4096))
	if err == nil && len(raw) > 0 {
		var payload struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &payload) == nil && payload.Error != "" {
			return payload.Error
		}
		if text := strings.TrimSpace(string(raw)); text != "" && !strings.HasPrefix(text, "{") {
			return text
		}
	}
	return fmt.Sprintf("HTTP %d", res.StatusCode)
}

// UIPayload fetches the combined snapshot document.
func (c *Client) UIPayload(ctx context.Context) (*UIPayload, error) {
	var payload UIPayload
	if err := c.do(ctx, http.MethodGet, "/hass/ui-payload", nil, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// BridgeInfo fetches the diagnostics record.
func (c *Client) BridgeInfo(ctx context.Context) (*BridgeInfo, error) {
	var info BridgeInfo
	if err := c.do(ctx, http.MethodGet, "/hass/bridge-info", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// RuntimeConfig fetches the backend connection settings.
func (c *Client) RuntimeConfig(ctx context.Context) (*RuntimeConfig, error) {
	var cfg RuntimeConfig
	if err := c.do(ctx, http.MethodGet, "/hass/runtime-config", nil, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SaveRuntimeConfig replaces the backend connection settings.
func (c *Client) SaveRuntimeConfig(ctx context.Context, update RuntimeConfigUpdate) (*RuntimeConfig, error) {
	var cfg RuntimeConfig
	if err := c.do(ctx, http.MethodPut, "/hass/runtime-config", update, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Connect asks the bridge to connect to its backend.
func (c *Client) Connect(ctx context.Context) (*ConnectResponse, error) {
	var res ConnectResponse
	if err := c.do(ctx, http.MethodPost, "/hass/connect", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Disconnect asks the bridge to drop its backend connection.
func (c *Client) Disconnect(ctx context.Context) (*ConnectResponse, error) {
	var res ConnectResponse
	if err := c.do(ctx, http.MethodPost, "/hass/disconnect", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// SetToken stores a backend access token. The token never comes back in any
// response.
func (c *Client) SetToken(ctx context.Context, token string) (*RuntimeConfig, error) {
	var cfg RuntimeConfig
	if err := c.do(ctx, http.MethodPut, "/hass/token", tokenRequest{Token: token}, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DeleteToken removes the stored backend token.
func (c *Client) DeleteToken(ctx context.Context) (*RuntimeConfig, error) {
	var cfg RuntimeConfig
	if err := c.do(ctx, http.MethodDelete, "/hass/token", nil, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SaveConfig replaces the whole UI configuration document.
func (c *Client) SaveConfig(ctx context.Context, cfg UIConfig) (*UIConfig, error) {
	var normalized UIConfig
	if err := c.do(ctx, http.MethodPut, "/hass/ui-config", cfg, &normalized); err != nil {
		return nil, err
	}
	return &normalized, nil
}

// PatchEntity applies a partial update to one entity.
func (c *Client) PatchEntity(ctx context.Context, patch EntityPatch) (*UIConfig, error) {
	if patch.EntityID == "" {
		return nil, fmt.Errorf("entity patch missing entity_id")
	}
	var cfg UIConfig
	if err := c.do(ctx, http.MethodPut, "/hass/entity", patch, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Rooms lists the configured rooms.
func (c *Client) Rooms(ctx context.Context) ([]RoomConfig, error) {
	var res roomsResponse
	if err := c.do(ctx, http.MethodGet, "/hass/rooms", nil, &res); err != nil {
		return nil, err
	}
	return res.Rooms, nil
}

// CreateRoom adds a room by display name.
func (c *Client) CreateRoom(ctx context.Context, name string) ([]RoomConfig, error) {
	var res roomsResponse
	if err := c.do(ctx, http.MethodPost, "/hass/rooms", roomCreateRequest{Name: name}, &res); err != nil {
		return nil, err
	}
	return res.Rooms, nil
}

// RenameRoom changes a room's display name.
func (c *Client) RenameRoom(ctx context.Context, roomID, name string) ([]RoomConfig, error) {
	var res roomsResponse
	if err := c.do(ctx, http.MethodPut, "/hass/room", roomRenameRequest{RoomID: roomID, Name: name}, &res); err != nil {
		return nil, err
	}
	return res.Rooms, nil
}

// DeleteRoom removes a room. Entities assigned to it fall back to the
// default room on the bridge side.
func (c *Client) DeleteRoom(ctx context.Context, roomID string) ([]RoomConfig, error) {
	var res roomsResponse
	if err := c.do(ctx, http.MethodDelete, "/hass/rooms", roomDeleteRequest{RoomID: roomID}, &res); err != nil {
		return nil, err
	}
	return res.Rooms, nil
}

// Logs fetches the bridge's visible log lines.
func (c *Client) Logs(ctx context.Context) ([]string, error) {
	var res logsResponse
	if err := c.do(ctx, http.MethodGet, "/hass/logs", nil, &res); err != nil {
		return nil, err
	}
	return res.Logs, nil
}

// TriggerSync queues a backend sync on the bridge.
func (c *Client) TriggerSync(ctx context.Context) (*SyncResponse, error) {
	var res SyncResponse
	if err := c.do(ctx, http.MethodPost, "/hass/sync", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ApplySelection pushes the current inclusion selection to the Hue side.
func (c *Client) ApplySelection(ctx context.Context) (*ApplyResponse, error) {
	var res ApplyResponse
	if err := c.do(ctx, http.MethodPost, "/hass/apply", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// PressLinkButton presses the virtual pairing button.
func (c *Client) PressLinkButton(ctx context.Context) (*LinkButtonResponse, error) {
	var res LinkButtonResponse
	if err := c.do(ctx, http.MethodPost, "/hass/linkbutton", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ResetBridge factory-resets the bridge's Hue resources.
func (c *Client) ResetBridge(ctx context.Context) (*ResetResponse, error) {
	var res ResetResponse
	if err := c.do(ctx, http.MethodPost, "/hass/reset-bridge", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// RecordUsage reports an interaction to the wear counter. Failures are
// swallowed; the counter is cosmetic and must never surface errors.
func (c *Client) RecordUsage(ctx context.Context, event PatinaEvent) {
	if err := c.do(ctx, http.MethodPost, "/hass/patina/event", event, nil); err != nil {
		c.logger.Debug().Err(err).Str("kind", event.Kind).Msg("usage event dropped")
	}
}
