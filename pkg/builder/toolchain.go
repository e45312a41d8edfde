package builder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// ToolchainInput describes one image build
type ToolchainInput struct {
	RepoURL        string            `json:"repo_url"`
	CommitSHA      string            `json:"commit_sha"`
	DockerfilePath string            `json:"dockerfile_path"`
	BuildArgs      map[string]string `json:"build_args,omitempty"`
}

// ToolchainResult is the outcome of a toolchain run. Logs are populated
// on failure as well, so callers can persist them either way.
type ToolchainResult struct {
	Logs     string `json:"logs"`
	ImageURL string `json:"image_url,omitempty"`
}

// Toolchain abstracts the external image build system. Windlass does not
// build container images itself; it hands the revision to a build agent
// and records the outcome.
type Toolchain interface {
	Run(ctx context.Context, in ToolchainInput) (*ToolchainResult, error)
}

// HTTPToolchain drives a remote build agent over HTTP. The agent builds
// synchronously and responds when the image is pushed.
type HTTPToolchain struct {
	baseURL string
	http    *http.Client
}

// NewHTTPToolchain creates a toolchain client for the agent at baseURL
func NewHTTPToolchain(baseURL string) *HTTPToolchain {
	return &HTTPToolchain{
		baseURL: baseURL,
		http: &http.Client{
			Timeout: 30 * time.Minute, // Builds are slow
		},
	}
}

func (t *HTTPToolchain) Run(ctx context.Context, in ToolchainInput) (*ToolchainResult, error) {
	data, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/v1/builds", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("build agent unreachable: %w", err)
	}
	defer resp.Body.Close()

	var result ToolchainResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode build result: %w", err)
	}

	if resp.StatusCode >= 400 {
		return &result, fmt.Errorf("build failed with status %d", resp.StatusCode)
	}
	return &result, nil
}
