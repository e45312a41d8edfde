package health

import (
	"context"
	"fmt"
	"time"

	"github.com/windlass/windlass/pkg/metricsvc"
)

// DefaultWindow is the trailing metrics window used at every automated
// gate unless explicitly overridden.
const DefaultWindow = 5 * time.Minute

// Thresholds define the healthy/unhealthy boundary. A deployment is
// healthy only when every threshold holds.
type Thresholds struct {
	MaxErrorRate    float64 `json:"max_error_rate" yaml:"max_error_rate"`
	MinSuccessRate  float64 `json:"min_success_rate" yaml:"min_success_rate"`
	MaxAvgLatencyMs float64 `json:"max_avg_latency_ms" yaml:"max_avg_latency_ms"`
}

// DefaultThresholds returns the platform defaults
func DefaultThresholds() Thresholds {
	return Thresholds{
		MaxErrorRate:    0.05,
		MinSuccessRate:  0.95,
		MaxAvgLatencyMs: 1000,
	}
}

// Snapshot is the verdict for one deployment over one window
type Snapshot struct {
	Healthy           bool    `json:"healthy"`
	SuccessRate       float64 `json:"success_rate"`
	ErrorRate         float64 `json:"error_rate"`
	AvgLatencyMs      float64 `json:"avg_latency_ms"`
	ActiveConnections int     `json:"active_connections"`
	Reason            string  `json:"reason,omitempty"` // Set when unhealthy
}

// Evaluator computes health verdicts from the metrics service. It is the
// sole gating function for all automated rollout decisions.
type Evaluator struct {
	metrics    metricsvc.Service
	thresholds Thresholds
}

// NewEvaluator creates an evaluator with the given thresholds
func NewEvaluator(metrics metricsvc.Service, thresholds Thresholds) *Evaluator {
	return &Evaluator{metrics: metrics, thresholds: thresholds}
}

// Thresholds returns the active thresholds
func (e *Evaluator) Thresholds() Thresholds {
	return e.thresholds
}

// Evaluate computes a verdict for the deployment over [start, end]
func (e *Evaluator) Evaluate(ctx context.Context, deploymentID string, start, end time.Time) (*Snapshot, error) {
	m, err := e.metrics.GetDeploymentMetrics(ctx, deploymentID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to get metrics for %s: %w", deploymentID, err)
	}

	snap := &Snapshot{
		Healthy:           true,
		SuccessRate:       m.SuccessRate,
		ErrorRate:         m.ErrorRate,
		AvgLatencyMs:      m.LatencyP50,
		ActiveConnections: m.ActiveConnections,
	}

	switch {
	case m.ErrorRate > e.thresholds.MaxErrorRate:
		snap.Healthy = false
		snap.Reason = fmt.Sprintf("error rate %.2f%% exceeds threshold %.2f%%",
			m.ErrorRate*100, e.thresholds.MaxErrorRate*100)
	case m.SuccessRate < e.thresholds.MinSuccessRate:
		snap.Healthy = false
		snap.Reason = fmt.Sprintf("success rate %.2f%% below threshold %.2f%%",
			m.SuccessRate*100, e.thresholds.MinSuccessRate*100)
	case m.LatencyP50 > e.thresholds.MaxAvgLatencyMs:
		snap.Healthy = false
		snap.Reason = fmt.Sprintf("avg latency %.0fms exceeds threshold %.0fms",
			m.LatencyP50, e.thresholds.MaxAvgLatencyMs)
	}

	return snap, nil
}

// EvaluateTrailing computes a verdict over the trailing window ending now
func (e *Evaluator) EvaluateTrailing(ctx context.Context, deploymentID string, window time.Duration) (*Snapshot, error) {
	if window <= 0 {
		window = DefaultWindow
	}
	now := time.Now()
	return e.Evaluate(ctx, deploymentID, now.Add(-window), now)
}
