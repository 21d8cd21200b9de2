// Package goldbot provides a Go client for the bot's status API.
package goldbot

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"goldbot/internal/httpapi"
)

// Client calls the status API served by a running bot.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the bot at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&e) == nil && e.Error != "" {
			return fmt.Errorf("GET %s: %s (status %d)", path, e.Error, resp.StatusCode)
		}
		return fmt.Errorf("GET %s: status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Health retrieves the bot's health summary.
func (c *Client) Health(ctx context.Context) (httpapi.HealthJSON, error) {
	var h httpapi.HealthJSON
	err := c.get(ctx, "/api/health", &h)
	return h, err
}

// Positions retrieves all positions. status filters to one lifecycle state
// when non-empty (e.g. "OPEN", "PENDING").
func (c *Client) Positions(ctx context.Context, status string) ([]httpapi.PositionJSON, error) {
	path := "/api/positions"
	if status != "" {
		path += "?status=" + status
	}
	var out []httpapi.PositionJSON
	err := c.get(ctx, path, &out)
	return out, err
}

// Signal retrieves one signal and its splits by message id.
func (c *Client) Signal(ctx context.Context, id int64) (httpapi.SignalJSON, error) {
	var out httpapi.SignalJSON
	err := c.get(ctx, fmt.Sprintf("/api/signals/%d", id), &out)
	return out, err
}
