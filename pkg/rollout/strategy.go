package rollout

import (
	"context"
	"errors"

	"github.com/windlass/windlass/pkg/errdefs"
	"github.com/windlass/windlass/pkg/health"
	"github.com/windlass/windlass/pkg/orchestrator"
	"github.com/windlass/windlass/pkg/storage"
	"github.com/windlass/windlass/pkg/types"
)

// Params configures the strategies the engine hands out
type Params struct {
	Rolling types.RollingConfig
	Canary  types.CanaryConfig
}

// DefaultParams returns the strategy defaults used when the config file
// leaves them unset
func DefaultParams() Params {
	return Params{
		Rolling: types.RollingConfig{
			MaxUnavailable: 1,
			MaxSurge:       1,
			TotalSteps:     10,
		},
		Canary: types.CanaryConfig{
			Steps:           []int{10, 25, 50, 100},
			AutoPromote:     true,
			RollbackOnError: true,
		},
	}
}

// Engine dispatches rollout work to the strategy a deployment was
// created with
type Engine struct {
	rolling *Rolling
	canary  *Canary
}

func NewEngine(store storage.Store, orch orchestrator.Client, evaluator *health.Evaluator, sched *Scheduler, params Params) *Engine {
	return &Engine{
		rolling: NewRolling(store, orch, params.Rolling),
		canary:  NewCanary(store, orch, evaluator, sched, params.Canary),
	}
}

// Rolling returns the rolling strategy
func (e *Engine) Rolling() *Rolling { return e.rolling }

// Canary returns the canary strategy
func (e *Engine) Canary() *Canary { return e.canary }

// Begin starts the rollout recorded in the deployment's metadata.
// Deployments without a strategy are plain replacements and need no
// rollout driving.
func (e *Engine) Begin(ctx context.Context, deploymentID string) error {
	d, err := e.rolling.store.GetDeployment(deploymentID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return errdefs.NotFound(errdefs.CodeDeploymentNotFound, "deployment %s not found", deploymentID)
		}
		return errdefs.Internal(err, "failed to load deployment")
	}

	switch types.DeployStrategy(d.Metadata[types.MetaStrategy]) {
	case types.DeployStrategyRolling:
		return e.rolling.Begin(ctx, d)
	case types.DeployStrategyCanary:
		return e.canary.Begin(ctx, d)
	default:
		return nil
	}
}

// Stop cancels all scheduled strategy work
func (e *Engine) Stop() {
	e.canary.sched.Stop()
}
