package rollout

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/windlass/windlass/pkg/errdefs"
	"github.com/windlass/windlass/pkg/log"
	"github.com/windlass/windlass/pkg/metrics"
	"github.com/windlass/windlass/pkg/orchestrator"
	"github.com/windlass/windlass/pkg/storage"
	"github.com/windlass/windlass/pkg/types"
)

// Rolling replaces instances step by step. The orchestrator does the
// instance shuffling; this side tracks step progress on the deployment
// record and decides completion and abort.
type Rolling struct {
	store  storage.Store
	orch   orchestrator.Client
	config types.RollingConfig
	logger zerolog.Logger
}

func NewRolling(store storage.Store, orch orchestrator.Client, config types.RollingConfig) *Rolling {
	if config.TotalSteps <= 0 {
		config.TotalSteps = 10
	}
	return &Rolling{
		store:  store,
		orch:   orch,
		config: config,
		logger: log.WithComponent("rollout.rolling"),
	}
}

// Begin initializes step tracking on the deployment
func (r *Rolling) Begin(ctx context.Context, d *types.Deployment) error {
	d.SetMeta(types.MetaRollingStep, "0")
	d.SetMeta(types.MetaRollingTotalSteps, strconv.Itoa(r.config.TotalSteps))
	if err := r.store.UpdateDeployment(d); err != nil {
		return errdefs.Internal(err, "failed to initialize rolling progress")
	}
	r.logger.Info().
		Str("deployment_id", d.ID).
		Int("total_steps", r.config.TotalSteps).
		Msg("rolling rollout started")
	return nil
}

// Progress reads the step counters off a deployment record
func (r *Rolling) Progress(d *types.Deployment) types.RollingProgress {
	step, _ := strconv.Atoi(d.Metadata[types.MetaRollingStep])
	total, _ := strconv.Atoi(d.Metadata[types.MetaRollingTotalSteps])
	if total == 0 {
		total = r.config.TotalSteps
	}
	return types.RollingProgress{CurrentStep: step, TotalSteps: total}
}

// CompleteStep advances the rollout one step. Reaching the final step
// marks the deployment active.
func (r *Rolling) CompleteStep(ctx context.Context, deploymentID string) (types.RollingProgress, error) {
	for {
		d, err := r.store.GetDeployment(deploymentID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return types.RollingProgress{}, errdefs.NotFound(errdefs.CodeDeploymentNotFound, "deployment %s not found", deploymentID)
			}
			return types.RollingProgress{}, errdefs.Internal(err, "failed to load deployment")
		}
		if d.Status.Terminal() {
			return r.Progress(d), errdefs.Conflict(errdefs.CodeInvalidTransition, "deployment is %s", d.Status)
		}

		progress := r.Progress(d)
		if progress.CurrentStep >= progress.TotalSteps {
			return progress, nil
		}
		progress.CurrentStep++
		d.SetMeta(types.MetaRollingStep, strconv.Itoa(progress.CurrentStep))

		if progress.CurrentStep >= progress.TotalSteps {
			d.Status = types.DeploymentStatusActive
			now := time.Now()
			d.CompletedAt = &now
		}

		err = r.store.UpdateDeployment(d)
		if errors.Is(err, storage.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return progress, errdefs.Internal(err, "failed to record rolling progress")
		}

		if progress.CurrentStep >= progress.TotalSteps {
			metrics.GateDecisionsTotal.WithLabelValues("rolling", "complete").Inc()
			r.logger.Info().Str("deployment_id", d.ID).Msg("rolling rollout completed")
		}
		return progress, nil
	}
}

// Abort rolls the workload back to the previous image and fails the
// deployment
func (r *Rolling) Abort(ctx context.Context, deploymentID, targetImage, reason string) error {
	d, err := r.store.GetDeployment(deploymentID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return errdefs.NotFound(errdefs.CodeDeploymentNotFound, "deployment %s not found", deploymentID)
		}
		return errdefs.Internal(err, "failed to load deployment")
	}

	namespace := d.Metadata[types.MetaNamespace]
	service := d.Metadata[types.MetaServiceName]
	if err := r.orch.Rollback(ctx, namespace, service, targetImage); err != nil {
		return errdefs.Dependency(errdefs.CodeOrchestratorUnavailable, err, "rollback of %s/%s failed", namespace, service)
	}

	d.Status = types.DeploymentStatusFailed
	d.SetMeta(types.MetaRollbackReason, reason)
	if err := r.store.UpdateDeployment(d); err != nil {
		return errdefs.Internal(err, "failed to record rollout abort")
	}
	metrics.GateDecisionsTotal.WithLabelValues("rolling", "abort").Inc()
	r.logger.Warn().Str("deployment_id", d.ID).Str("reason", reason).Msg("rolling rollout aborted")
	return nil
}
