package metricsvc

import (
	"context"
	"sync"
	"time"
)

// Metrics is one deployment's traffic profile over a queried window
type Metrics struct {
	SuccessRate       float64 `json:"success_rate"` // 0..1
	ErrorRate         float64 `json:"error_rate"`   // 0..1
	LatencyP50        float64 `json:"latency_p50"`  // milliseconds
	ActiveConnections int     `json:"active_connections"`
}

// Service provides per-deployment traffic metrics from an external
// metrics backend
type Service interface {
	GetDeploymentMetrics(ctx context.Context, deploymentID string, start, end time.Time) (*Metrics, error)
}

// Fake is a scriptable Service for tests
type Fake struct {
	mu      sync.Mutex
	byID    map[string]Metrics
	Default Metrics
	Err     error
	Calls   int
}

// NewFake creates a fake that returns healthy-looking defaults
func NewFake() *Fake {
	return &Fake{
		byID: make(map[string]Metrics),
		Default: Metrics{
			SuccessRate: 1.0,
			ErrorRate:   0.0,
			LatencyP50:  50,
		},
	}
}

// Set scripts the metrics returned for deploymentID
func (f *Fake) Set(deploymentID string, m Metrics) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[deploymentID] = m
}

func (f *Fake) GetDeploymentMetrics(ctx context.Context, deploymentID string, start, end time.Time) (*Metrics, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls++
	if f.Err != nil {
		return nil, f.Err
	}
	if m, ok := f.byID[deploymentID]; ok {
		out := m
		return &out, nil
	}
	out := f.Default
	return &out, nil
}
