// Package diagclient is the HTTP client for the diagnostics surface, used
// by bridgectl and the TUI.
package diagclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/adityalohuni/browser-bridge/internal/diag"
)

type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func New(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    httpClient,
	}
}

func (c *Client) Health(ctx context.Context) (diag.Health, error) {
	var out diag.Health
	err := c.getJSON(ctx, "/health", &out)
	return out, err
}

func (c *Client) State(ctx context.Context) (diag.State, error) {
	var out diag.State
	err := c.getJSON(ctx, "/debug/state", &out)
	return out, err
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("diagnostics request failed: %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
