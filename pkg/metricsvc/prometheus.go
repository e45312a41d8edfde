package metricsvc

import (
	"context"
	"fmt"
	"time"

	promapi "github.com/prometheus/client_golang/api"
	promv1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// PrometheusService implements Service against a Prometheus server that
// scrapes the ingress tier. Requests are labelled by deployment_id so a
// canary and its stable counterpart are queryable independently.
type PrometheusService struct {
	api promv1.API
}

// NewPrometheusService creates a metrics service querying addr
func NewPrometheusService(addr string) (*PrometheusService, error) {
	client, err := promapi.NewClient(promapi.Config{Address: addr})
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus client: %w", err)
	}
	return &PrometheusService{api: promv1.NewAPI(client)}, nil
}

func (s *PrometheusService) GetDeploymentMetrics(ctx context.Context, deploymentID string, start, end time.Time) (*Metrics, error) {
	window := end.Sub(start)
	if window <= 0 {
		window = 5 * time.Minute
	}
	rng := model.Duration(window)

	successRate, err := s.queryScalar(ctx, fmt.Sprintf(
		`sum(rate(windlass_http_requests_total{deployment_id="%s",status=~"2.."}[%s])) / sum(rate(windlass_http_requests_total{deployment_id="%s"}[%s]))`,
		deploymentID, rng, deploymentID, rng,
	), end)
	if err != nil {
		return nil, fmt.Errorf("failed to query success rate: %w", err)
	}

	errorRate, err := s.queryScalar(ctx, fmt.Sprintf(
		`sum(rate(windlass_http_requests_total{deployment_id="%s",status=~"5.."}[%s])) / sum(rate(windlass_http_requests_total{deployment_id="%s"}[%s]))`,
		deploymentID, rng, deploymentID, rng,
	), end)
	if err != nil {
		return nil, fmt.Errorf("failed to query error rate: %w", err)
	}

	latency, err := s.queryScalar(ctx, fmt.Sprintf(
		`histogram_quantile(0.5, sum(rate(windlass_http_duration_seconds_bucket{deployment_id="%s"}[%s])) by (le)) * 1000`,
		deploymentID, rng,
	), end)
	if err != nil {
		return nil, fmt.Errorf("failed to query latency: %w", err)
	}

	connections, err := s.queryScalar(ctx, fmt.Sprintf(
		`sum(windlass_active_connections{deployment_id="%s"})`,
		deploymentID,
	), end)
	if err != nil {
		return nil, fmt.Errorf("failed to query connections: %w", err)
	}

	return &Metrics{
		SuccessRate:       successRate,
		ErrorRate:         errorRate,
		LatencyP50:        latency,
		ActiveConnections: int(connections),
	}, nil
}

// queryScalar evaluates a PromQL expression at ts and returns the first
// sample value, or 0 when the series is empty
func (s *PrometheusService) queryScalar(ctx context.Context, query string, ts time.Time) (float64, error) {
	result, _, err := s.api.Query(ctx, query, ts)
	if err != nil {
		return 0, err
	}

	switch v := result.(type) {
	case model.Vector:
		if len(v) == 0 {
			return 0, nil
		}
		return float64(v[0].Value), nil
	case *model.Scalar:
		return float64(v.Value), nil
	default:
		return 0, fmt.Errorf("unexpected prometheus result type %s", result.Type())
	}
}
