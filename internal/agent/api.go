package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/EternisAI/silo-control/internal/agents"
)

var ErrUnauthorized = errors.New("controller rejected agent credentials")

// apiClient speaks the controller's agent protocol.
type apiClient struct {
	baseURL    string
	httpClient *http.Client

	mu    sync.RWMutex
	creds Credentials
}

func newAPIClient(baseURL string, timeout time.Duration) *apiClient {
	return &apiClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (a *apiClient) credentials() Credentials {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.creds
}

func (a *apiClient) setCredentials(creds Credentials) {
	a.mu.Lock()
	a.creds = creds
	a.mu.Unlock()
}

type registerResponse struct {
	AgentID string `json:"agent_id"`
	Token   string `json:"token"`
}

func (a *apiClient) register(ctx context.Context) (Credentials, error) {
	var resp registerResponse
	if err := a.do(ctx, http.MethodPost, "/api/register", nil, nil, &resp); err != nil {
		return Credentials{}, err
	}
	if resp.AgentID == "" || resp.Token == "" {
		return Credentials{}, fmt.Errorf("register: empty credentials in response")
	}
	return Credentials{
		AgentID:   resp.AgentID,
		Token:     resp.Token,
		ServerURL: a.baseURL,
		CreatedAt: time.Now(),
	}, nil
}

func (a *apiClient) pendingCommands(ctx context.Context) ([]agents.Command, error) {
	var resp struct {
		Commands []agents.Command `json:"commands"`
	}
	if err := a.doAgent(ctx, http.MethodGet, "/api/commands", nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Commands, nil
}

func (a *apiClient) ack(ctx context.Context, ids []string) error {
	body := map[string][]string{"command_ids": ids}
	return a.doAgentSuffix(ctx, http.MethodPost, "/api/commands", "/ack", body, nil)
}

func (a *apiClient) reportResult(ctx context.Context, r Result) error {
	body := map[string]interface{}{
		"command_id": r.CommandID,
		"stdout":     r.Stdout,
		"stderr":     r.Stderr,
		"exit_code":  r.ExitCode,
	}
	return a.doAgent(ctx, http.MethodPost, "/api/command-result", nil, body, nil)
}

func (a *apiClient) heartbeat(ctx context.Context, info map[string]interface{}) error {
	return a.doAgent(ctx, http.MethodPost, "/api/heartbeat", nil, info, nil)
}

func (a *apiClient) updateScreenInfo(ctx context.Context, info map[string]interface{}) error {
	return a.doAgent(ctx, http.MethodPost, "/api/update-screen-info", nil, info, nil)
}

func (a *apiClient) registerStream(ctx context.Context, streamType, streamURL string) error {
	body := map[string]string{
		"stream_type": streamType,
		"stream_url":  streamURL,
	}
	return a.doAgent(ctx, http.MethodPost, "/api/register-stream", nil, body, nil)
}

func (a *apiClient) checkNotifications(ctx context.Context, since time.Time) ([]agents.Notification, error) {
	query := url.Values{}
	if !since.IsZero() {
		query.Set("since", since.Format(time.RFC3339Nano))
	}

	var resp struct {
		Success       bool                  `json:"success"`
		Notifications []agents.Notification `json:"notifications"`
		Error         string                `json:"error"`
	}
	if err := a.doAgent(ctx, http.MethodGet, "/api/check-notifications", query, nil, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, fmt.Errorf("check notifications: %s", resp.Error)
	}
	return resp.Notifications, nil
}

func (a *apiClient) doAgent(ctx context.Context, method, prefix string, query url.Values, body, out interface{}) error {
	creds := a.credentials()
	if !creds.Valid() {
		return ErrUnauthorized
	}
	if query == nil {
		query = url.Values{}
	}
	query.Set("token", creds.Token)
	return a.do(ctx, method, prefix+"/"+url.PathEscape(creds.AgentID), query, body, out)
}

func (a *apiClient) doAgentSuffix(ctx context.Context, method, prefix, suffix string, body, out interface{}) error {
	creds := a.credentials()
	if !creds.Valid() {
		return ErrUnauthorized
	}
	query := url.Values{"token": {creds.Token}}
	return a.do(ctx, method, prefix+"/"+url.PathEscape(creds.AgentID)+suffix, query, body, out)
}

func (a *apiClient) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	endpoint := a.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("%s %s: HTTP %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(data)))
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}
