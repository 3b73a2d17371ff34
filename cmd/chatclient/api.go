package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/northlane/livechat-server/internal/model"
)

// apiClient talks to the admin REST API on the same host as the websocket.
type apiClient struct {
	base  *url.URL
	token string
	http  *http.Client
}

func newAPIClient(wsURL string) (*apiClient, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "wss":
		u.Scheme = "https"
	default:
		u.Scheme = "http"
	}
	u.Path, u.RawQuery = "/admin/api", ""
	return &apiClient{base: u, http: &http.Client{Timeout: 10 * time.Second}}, nil
}

func (c *apiClient) login(ctx context.Context, password, displayName string) (string, error) {
	body, _ := json.Marshal(map[string]string{"password": password, "displayName": displayName})
	var resp struct {
		Token string `json:"token"`
	}
	if err := c.do(ctx, http.MethodPost, "/login", bytes.NewReader(body), &resp); err != nil {
		return "", fmt.Errorf("login: %w", err)
	}
	return resp.Token, nil
}

func (c *apiClient) openSessions(ctx context.Context) ([]model.ChatSession, error) {
	var resp struct {
		Items []model.ChatSession `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, "/chat/sessions?status=open&limit=100", nil, &resp); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return resp.Items, nil
}

func (c *apiClient) messages(ctx context.Context, sessionID string) ([]model.ChatMessage, error) {
	var resp struct {
		Items []model.ChatMessage `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, "/chat/sessions/"+url.PathEscape(sessionID)+"/messages?limit=100", nil, &resp); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return resp.Items, nil
}

func (c *apiClient) do(ctx context.Context, method, path string, body *bytes.Reader, out any) error {
	target := c.base.String() + path

	var req *http.Request
	var err error
	if body != nil {
		req, err = http.NewRequestWithContext(ctx, method, target, body)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, target, nil)
	}
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, e.Error)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
