package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// HTTPClient talks to the cluster orchestrator's control API over
// HTTP/JSON. It is the production Client implementation.
type HTTPClient struct {
	baseURL string
	http    *http.Client
}

// NewHTTPClient creates a client for the orchestrator API at baseURL
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		http: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (c *HTTPClient) CreateService(ctx context.Context, namespace, name string, spec ServiceSpec) error {
	path := fmt.Sprintf("/v1/namespaces/%s/services/%s", url.PathEscape(namespace), url.PathEscape(name))
	return c.do(ctx, http.MethodPut, path, spec, nil)
}

func (c *HTTPClient) GetStatus(ctx context.Context, namespace, name string) (*ServiceStatus, error) {
	path := fmt.Sprintf("/v1/namespaces/%s/services/%s/status", url.PathEscape(namespace), url.PathEscape(name))
	var status ServiceStatus
	if err := c.do(ctx, http.MethodGet, path, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (c *HTTPClient) Rollback(ctx context.Context, namespace, name, targetImage string) error {
	path := fmt.Sprintf("/v1/namespaces/%s/services/%s/rollback", url.PathEscape(namespace), url.PathEscape(name))
	body := map[string]string{"target_image": targetImage}
	return c.do(ctx, http.MethodPost, path, body, nil)
}

func (c *HTTPClient) ConfigureTrafficSplit(ctx context.Context, namespace, blueID, greenID string, percentage int) error {
	path := fmt.Sprintf("/v1/namespaces/%s/traffic-split", url.PathEscape(namespace))
	body := map[string]interface{}{
		"blue_id":    blueID,
		"green_id":   greenID,
		"percentage": percentage,
	}
	return c.do(ctx, http.MethodPost, path, body, nil)
}

// do issues one JSON request and decodes the response into out when non-nil
func (c *HTTPClient) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("orchestrator unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("orchestrator returned %d: %s", resp.StatusCode, string(data))
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
