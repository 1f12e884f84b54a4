// Package daytona provides an HTTP client for the Daytona sandbox provider API.
package daytona

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bartonmalow/suna/internal/domain/sandbox"
	"github.com/bartonmalow/suna/internal/resilience"
)

// wireSandbox is the provider's representation of a sandbox.
type wireSandbox struct {
	ID        string `json:"id"`
	CreatedAt string `json:"createdAt"`
}

// Client talks to the Daytona workspace API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	breaker    *resilience.Breaker
}

// NewClient creates a new Daytona client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SetBreaker attaches a circuit breaker to all outgoing HTTP calls.
func (c *Client) SetBreaker(b *resilience.Breaker) {
	c.breaker = b
}

// List returns all sandboxes currently known to the provider.
func (c *Client) List(ctx context.Context) ([]sandbox.Sandbox, error) {
	var wire []wireSandbox

	err := c.execute(func() error {
		data, status, err := c.do(ctx, http.MethodGet, "/api/sandbox")
		if err != nil {
			return err
		}
		if status >= 400 {
			return fmt.Errorf("daytona API error %d: %s", status, string(data))
		}
		return json.Unmarshal(data, &wire)
	})
	if err != nil {
		return nil, fmt.Errorf("list sandboxes: %w", err)
	}

	sandboxes := make([]sandbox.Sandbox, 0, len(wire))
	for _, w := range wire {
		sandboxes = append(sandboxes, sandbox.Sandbox{ID: w.ID, CreatedAt: w.CreatedAt})
	}
	return sandboxes, nil
}

// Delete removes a sandbox. A 404 from the provider means the sandbox is
// already gone and counts as success.
func (c *Client) Delete(ctx context.Context, id string) error {
	err := c.execute(func() error {
		data, status, err := c.do(ctx, http.MethodDelete, "/api/sandbox/"+id+"?force=true")
		if err != nil {
			return err
		}
		if status >= 400 && status != http.StatusNotFound {
			return fmt.Errorf("daytona API error %d: %s", status, string(data))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete sandbox %s: %w", id, err)
	}
	return nil
}

// execute runs call through the breaker when one is attached.
func (c *Client) execute(call func() error) error {
	if c.breaker != nil {
		return c.breaker.Execute(call)
	}
	return call()
}

func (c *Client) do(ctx context.Context, method, path string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("read response: %w", err)
	}

	return data, resp.StatusCode, nil
}
