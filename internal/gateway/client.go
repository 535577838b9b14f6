package gateway

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
)

// Routing selects where a completion request executes.
type Routing struct {
	Warehouse string
	Database  string
	Schema    string
}

// Request is one completion call.
type Request struct {
	Prompt  string
	AgentID string
	Routing Routing
}

// Agent is one entry from the gateway's agent listing.
type Agent struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Credentials identify and authenticate the caller against the gateway.
type Credentials struct {
	Account  string
	User     string
	Password string
}

// Client is a connection handle to the completion gateway for one
// account/user identity.
type Client struct {
	HTTPClient *http.Client
	baseURL    string
	creds      Credentials
}

func NewClient(baseURL string, creds Credentials) *Client {
	return &Client{
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		creds:      creds,
	}
}

type completeRequest struct {
	Prompt    string `json:"prompt"`
	AgentID   string `json:"agent_id"`
	Account   string `json:"account"`
	User      string `json:"username"`
	Warehouse string `json:"warehouse,omitempty"`
	Database  string `json:"database,omitempty"`
	Schema    string `json:"schema,omitempty"`
}

type completeResponse struct {
	Text string `json:"text"`
}

// Complete performs exactly one completion call. The caller owns retry
// policy; there is none here.
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	if c.baseURL == "" {
		return "", fmt.Errorf("gateway base url missing")
	}
	if c.creds.Password == "" {
		return "", fmt.Errorf("gateway credentials missing")
	}

	body, err := sonic.Marshal(completeRequest{
		Prompt:    req.Prompt,
		AgentID:   req.AgentID,
		Account:   c.creds.Account,
		User:      c.creds.User,
		Warehouse: req.Routing.Warehouse,
		Database:  req.Routing.Database,
		Schema:    req.Routing.Schema,
	})
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/complete", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.creds.Password)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("gateway call: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("gateway error: status=%d body=%s", resp.StatusCode, string(b))
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading gateway response: %w", err)
	}
	var cr completeResponse
	if err := sonic.Unmarshal(raw, &cr); err != nil {
		return "", fmt.Errorf("decoding gateway response: %w", err)
	}
	return strings.TrimSpace(cr.Text), nil
}

// ListAgents fetches the agents available to this identity.
func (c *Client) ListAgents(ctx context.Context) ([]Agent, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("gateway base url missing")
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/agents", nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.creds.Password)

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("gateway call: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("gateway error: status=%d body=%s", resp.StatusCode, string(b))
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading gateway response: %w", err)
	}
	var out struct {
		Agents []Agent `json:"agents"`
	}
	if err := sonic.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decoding gateway response: %w", err)
	}
	return out.Agents, nil
}

// Close releases any pooled transport connections held by this handle.
func (c *Client) Close() {
	c.HTTPClient.CloseIdleConnections()
}
