package rollout

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/windlass/windlass/pkg/errdefs"
	"github.com/windlass/windlass/pkg/health"
	"github.com/windlass/windlass/pkg/log"
	"github.com/windlass/windlass/pkg/metrics"
	"github.com/windlass/windlass/pkg/orchestrator"
	"github.com/windlass/windlass/pkg/storage"
	"github.com/windlass/windlass/pkg/types"
)

// Canary state values kept in deployment metadata
const (
	canaryObserving = "observing"
	canaryPaused    = "paused"
)

// DefaultObservationTime gates each canary step when the config leaves
// it unset
const DefaultObservationTime = 5 * time.Minute

// Canary shifts traffic to a new deployment in observed steps. After
// each shift the deployment's metrics are watched for the observation
// window; the health verdict decides promotion, rollback, or a pause
// awaiting an operator.
type Canary struct {
	store     storage.Store
	orch      orchestrator.Client
	evaluator *health.Evaluator
	sched     *Scheduler
	config    types.CanaryConfig
	logger    zerolog.Logger
}

func NewCanary(store storage.Store, orch orchestrator.Client, evaluator *health.Evaluator, sched *Scheduler, config types.CanaryConfig) *Canary {
	if len(config.Steps) == 0 {
		config.Steps = []int{10, 25, 50, 100}
	}
	if config.ObservationTime <= 0 {
		config.ObservationTime = DefaultObservationTime
	}
	return &Canary{
		store:     store,
		orch:      orch,
		evaluator: evaluator,
		sched:     sched,
		config:    config,
		logger:    log.WithComponent("rollout.canary"),
	}
}

// Begin routes the first traffic step to the canary and schedules its
// observation gate. Without a stable deployment to split against the
// canary degenerates to a plain rollout.
func (c *Canary) Begin(ctx context.Context, d *types.Deployment) error {
	stable := c.findStable(d)
	if stable == nil {
		c.logger.Info().Str("deployment_id", d.ID).Msg("no stable deployment, skipping canary steps")
		return nil
	}

	d.SetMeta(types.MetaCanaryStableID, stable.ID)
	d.SetMeta(types.MetaCanaryStep, "0")
	d.SetMeta(types.MetaCanaryState, canaryObserving)
	if err := c.store.UpdateDeployment(d); err != nil {
		return errdefs.Internal(err, "failed to initialize canary state")
	}

	namespace := d.Metadata[types.MetaNamespace]
	if err := c.orch.ConfigureTrafficSplit(ctx, namespace, stable.ID, d.ID, c.config.Steps[0]); err != nil {
		return errdefs.Dependency(errdefs.CodeOrchestratorUnavailable, err, "failed to shift traffic to canary")
	}

	c.logger.Info().
		Str("deployment_id", d.ID).
		Str("stable_id", stable.ID).
		Int("weight", c.config.Steps[0]).
		Msg("canary rollout started")
	c.scheduleObservation(d.ID)
	return nil
}

// RunObservation is the gate fired after each observation window. It
// re-reads state first, so a stale or duplicate firing is a no-op.
func (c *Canary) RunObservation(ctx context.Context, deploymentID string) error {
	d, err := c.store.GetDeployment(deploymentID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return errdefs.NotFound(errdefs.CodeDeploymentNotFound, "deployment %s not found", deploymentID)
		}
		return errdefs.Internal(err, "failed to load deployment")
	}
	if d.Status == types.DeploymentStatusFailed || d.Metadata[types.MetaCanaryState] != canaryObserving {
		return nil
	}

	snapshot, err := c.evaluator.EvaluateTrailing(ctx, d.ID, c.config.ObservationTime)
	if err != nil {
		// Unknown is not unhealthy: pause rather than guess
		c.logger.Warn().Err(err).Str("deployment_id", d.ID).Msg("canary metrics unavailable, pausing")
		metrics.GateDecisionsTotal.WithLabelValues("canary", "pause").Inc()
		return c.setState(d.ID, canaryPaused)
	}

	if !snapshot.Healthy {
		if c.config.RollbackOnError {
			metrics.GateDecisionsTotal.WithLabelValues("canary", "rollback").Inc()
			return c.Rollback(ctx, d.ID, snapshot.Reason)
		}
		c.logger.Warn().Str("deployment_id", d.ID).Str("reason", snapshot.Reason).Msg("canary unhealthy, pausing for operator")
		metrics.GateDecisionsTotal.WithLabelValues("canary", "pause").Inc()
		return c.setState(d.ID, canaryPaused)
	}

	if c.config.AutoPromote {
		metrics.GateDecisionsTotal.WithLabelValues("canary", "promote").Inc()
		return c.Promote(ctx, d.ID)
	}
	metrics.GateDecisionsTotal.WithLabelValues("canary", "pause").Inc()
	return c.setState(d.ID, canaryPaused)
}

// Promote advances the canary one traffic step. Reaching the final step
// completes the rollout and marks the deployment active.
func (c *Canary) Promote(ctx context.Context, deploymentID string) error {
	for {
		d, err := c.store.GetDeployment(deploymentID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return errdefs.NotFound(errdefs.CodeDeploymentNotFound, "deployment %s not found", deploymentID)
			}
			return errdefs.Internal(err, "failed to load deployment")
		}
		if d.Status == types.DeploymentStatusFailed {
			return errdefs.Conflict(errdefs.CodeInvalidTransition, "deployment is %s", d.Status)
		}

		step, _ := strconv.Atoi(d.Metadata[types.MetaCanaryStep])
		if step >= len(c.config.Steps)-1 {
			return nil
		}
		step++
		weight := c.config.Steps[step]

		namespace := d.Metadata[types.MetaNamespace]
		stableID := d.Metadata[types.MetaCanaryStableID]
		if err := c.orch.ConfigureTrafficSplit(ctx, namespace, stableID, d.ID, weight); err != nil {
			return errdefs.Dependency(errdefs.CodeOrchestratorUnavailable, err, "failed to shift traffic to canary")
		}

		d.SetMeta(types.MetaCanaryStep, strconv.Itoa(step))
		final := step == len(c.config.Steps)-1 && weight >= 100
		if final {
			d.Status = types.DeploymentStatusActive
			now := time.Now()
			d.CompletedAt = &now
		} else {
			d.SetMeta(types.MetaCanaryState, canaryObserving)
		}

		err = c.store.UpdateDeployment(d)
		if errors.Is(err, storage.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return errdefs.Internal(err, "failed to record canary step")
		}

		if final {
			c.supersedeStable(d)
			c.logger.Info().Str("deployment_id", d.ID).Msg("canary fully promoted")
		} else {
			c.logger.Info().Str("deployment_id", d.ID).Int("weight", weight).Msg("canary promoted")
			c.scheduleObservation(d.ID)
		}
		return nil
	}
}

// Rollback routes all traffic back to stable and fails the canary
func (c *Canary) Rollback(ctx context.Context, deploymentID, reason string) error {
	d, err := c.store.GetDeployment(deploymentID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return errdefs.NotFound(errdefs.CodeDeploymentNotFound, "deployment %s not found", deploymentID)
		}
		return errdefs.Internal(err, "failed to load deployment")
	}

	c.sched.Cancel(canaryKey(d.ID))
	namespace := d.Metadata[types.MetaNamespace]
	stableID := d.Metadata[types.MetaCanaryStableID]
	if err := c.orch.ConfigureTrafficSplit(ctx, namespace, stableID, d.ID, 0); err != nil {
		return errdefs.Dependency(errdefs.CodeOrchestratorUnavailable, err, "failed to restore stable traffic")
	}

	d.Status = types.DeploymentStatusFailed
	d.SetMeta(types.MetaRollbackReason, reason)
	if err := c.store.UpdateDeployment(d); err != nil {
		return errdefs.Internal(err, "failed to record canary rollback")
	}
	metrics.RollbacksTotal.Inc()
	c.logger.Warn().Str("deployment_id", d.ID).Str("reason", reason).Msg("canary rolled back")
	return nil
}

// Resume re-arms the observation gate of a paused canary
func (c *Canary) Resume(ctx context.Context, deploymentID string) error {
	if err := c.setState(deploymentID, canaryObserving); err != nil {
		return err
	}
	c.scheduleObservation(deploymentID)
	return nil
}

// Split reports the current stable/canary traffic division
func (c *Canary) Split(d *types.Deployment) types.TrafficSplit {
	step, _ := strconv.Atoi(d.Metadata[types.MetaCanaryStep])
	if step >= len(c.config.Steps) {
		step = len(c.config.Steps) - 1
	}
	weight := c.config.Steps[step]
	return types.TrafficSplit{Stable: 100 - weight, Canary: weight}
}

func (c *Canary) scheduleObservation(deploymentID string) {
	c.sched.Schedule(canaryKey(deploymentID), c.config.ObservationTime, func() {
		if err := c.RunObservation(context.Background(), deploymentID); err != nil {
			c.logger.Error().Err(err).Str("deployment_id", deploymentID).Msg("canary observation failed")
		}
	})
}

func (c *Canary) setState(deploymentID, state string) error {
	for {
		d, err := c.store.GetDeployment(deploymentID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return errdefs.NotFound(errdefs.CodeDeploymentNotFound, "deployment %s not found", deploymentID)
			}
			return errdefs.Internal(err, "failed to load deployment")
		}
		d.SetMeta(types.MetaCanaryState, state)
		err = c.store.UpdateDeployment(d)
		if errors.Is(err, storage.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return errdefs.Internal(err, "failed to record canary state")
		}
		return nil
	}
}

func (c *Canary) findStable(d *types.Deployment) *types.Deployment {
	deployments, err := c.store.ListDeploymentsByEnvironment(d.ProjectID, d.EnvironmentID)
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to list deployments for canary")
		return nil
	}
	for _, candidate := range deployments {
		if candidate.ID != d.ID && candidate.Status == types.DeploymentStatusActive {
			return candidate
		}
	}
	return nil
}

func (c *Canary) supersedeStable(d *types.Deployment) {
	stableID := d.Metadata[types.MetaCanaryStableID]
	if stableID == "" {
		return
	}
	stable, err := c.store.GetDeployment(stableID)
	if err != nil {
		return
	}
	if stable.Status != types.DeploymentStatusActive {
		return
	}
	stable.Status = types.DeploymentStatusSuperseded
	stable.SetMeta(types.MetaSupersededBy, d.ID)
	if err := c.store.UpdateDeployment(stable); err != nil {
		c.logger.Error().Err(err).Str("deployment_id", stableID).Msg("failed to supersede stable deployment")
	}
}

func canaryKey(deploymentID string) string {
	return "canary/" + deploymentID
}
