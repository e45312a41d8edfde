package reconciler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/windlass/windlass/pkg/log"
	"github.com/windlass/windlass/pkg/metrics"
	"github.com/windlass/windlass/pkg/notify"
	"github.com/windlass/windlass/pkg/orchestrator"
	"github.com/windlass/windlass/pkg/storage"
	"github.com/windlass/windlass/pkg/types"
)

// DefaultInterval is how often tracked deployments are polled
const DefaultInterval = 5 * time.Second

// Reconciler polls the orchestrator for every tracked deployment and
// converges the stored status on what the cluster reports
type Reconciler struct {
	store    storage.Store
	orch     orchestrator.Client
	notifier notify.Notifier
	interval time.Duration
	logger   zerolog.Logger

	mu      sync.Mutex
	tracked map[string]struct{}

	cancel context.CancelFunc
	done   chan struct{}
}

func New(store storage.Store, orch orchestrator.Client, notifier notify.Notifier, interval time.Duration) *Reconciler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Reconciler{
		store:    store,
		orch:     orch,
		notifier: notifier,
		interval: interval,
		logger:   log.WithComponent("reconciler"),
		tracked:  make(map[string]struct{}),
	}
}

// Track adds a deployment to the polling set
func (r *Reconciler) Track(deploymentID string) {
	r.mu.Lock()
	r.tracked[deploymentID] = struct{}{}
	r.mu.Unlock()
}

// Untrack removes a deployment from the polling set
func (r *Reconciler) Untrack(deploymentID string) {
	r.mu.Lock()
	delete(r.tracked, deploymentID)
	r.mu.Unlock()
}

// Start resumes tracking of every non-terminal deployment in the store
// and launches the polling loop
func (r *Reconciler) Start() error {
	deployments, err := r.store.ListDeployments()
	if err != nil {
		return err
	}
	for _, d := range deployments {
		if !d.Status.Terminal() {
			r.Track(d.ID)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan struct{})
	go r.run(ctx)
	r.logger.Info().Dur("interval", r.interval).Msg("reconciler started")
	return nil
}

// Stop halts the polling loop and waits for the current cycle to finish
func (r *Reconciler) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.done
	r.logger.Info().Msg("reconciler stopped")
}

func (r *Reconciler) run(ctx context.Context) {
	defer close(r.done)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RunCycle(ctx)
		}
	}
}

// RunCycle reconciles every tracked deployment once
func (r *Reconciler) RunCycle(ctx context.Context) {
	timer := metrics.NewTimer()

	r.mu.Lock()
	ids := make([]string, 0, len(r.tracked))
	for id := range r.tracked {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		if ctx.Err() != nil {
			return
		}
		r.reconcile(ctx, id)
	}

	metrics.ReconciliationCyclesTotal.Inc()
	timer.ObserveDuration(metrics.ReconciliationDuration)
}

// reconcile converges one deployment on the orchestrator's reported
// status. A transient poll error leaves the record untouched; only the
// orchestrator explicitly reporting failure marks a deployment failed.
func (r *Reconciler) reconcile(ctx context.Context, id string) {
	logger := r.logger.With().Str("deployment_id", id).Logger()

	deployment, err := r.store.GetDeployment(id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			logger.Warn().Msg("tracked deployment vanished, untracking")
			r.Untrack(id)
			return
		}
		logger.Error().Err(err).Msg("failed to load deployment")
		return
	}
	if deployment.Status.Terminal() {
		r.Untrack(id)
		return
	}

	namespace := deployment.Metadata[types.MetaNamespace]
	service := deployment.Metadata[types.MetaServiceName]
	status, err := r.orch.GetStatus(ctx, namespace, service)
	if err != nil {
		metrics.PollErrorsTotal.Inc()
		logger.Warn().Err(err).Msg("status poll failed, retrying next cycle")
		return
	}

	next := mapPhase(status, deployment.Status)
	if next == deployment.Status {
		return
	}

	old := deployment.Status
	deployment.Status = next
	if next == types.DeploymentStatusActive {
		now := time.Now()
		deployment.CompletedAt = &now
	}

	if err := r.store.UpdateDeployment(deployment); err != nil {
		if errors.Is(err, storage.ErrVersionConflict) {
			// Someone else moved the record, re-read next cycle
			logger.Debug().Msg("deployment changed concurrently, skipping")
			return
		}
		logger.Error().Err(err).Msg("failed to update deployment")
		return
	}

	logger.Info().
		Str("from", string(old)).
		Str("to", string(next)).
		Msg("deployment status changed")
	go r.notifier.DeploymentStatusChange(deployment.ID, old, next)
	metrics.DeploymentsTotal.WithLabelValues(string(next)).Inc()

	if next == types.DeploymentStatusActive {
		r.supersedePrevious(deployment)
	}
	if next.Terminal() {
		r.Untrack(id)
	}
}

// supersedePrevious demotes any other active deployment in the same
// environment so at most one stays active
func (r *Reconciler) supersedePrevious(current *types.Deployment) {
	deployments, err := r.store.ListDeploymentsByEnvironment(current.ProjectID, current.EnvironmentID)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to list deployments for supersede")
		return
	}
	for _, d := range deployments {
		if d.ID == current.ID || d.Status != types.DeploymentStatusActive {
			continue
		}
		for {
			d.Status = types.DeploymentStatusSuperseded
			d.SetMeta(types.MetaSupersededBy, current.ID)
			err := r.store.UpdateDeployment(d)
			if errors.Is(err, storage.ErrVersionConflict) {
				fresh, gerr := r.store.GetDeployment(d.ID)
				if gerr != nil || fresh.Status != types.DeploymentStatusActive {
					break
				}
				d = fresh
				continue
			}
			if err != nil {
				r.logger.Error().Err(err).Str("deployment_id", d.ID).Msg("failed to supersede deployment")
			}
			break
		}
	}
}

// mapPhase translates an orchestrator phase into a deployment status.
// Phases with no terminal meaning keep the deployment deploying.
func mapPhase(status *orchestrator.ServiceStatus, current types.DeploymentStatus) types.DeploymentStatus {
	switch status.Phase {
	case orchestrator.PhaseRunning:
		if status.Replicas > 0 && status.ReadyReplicas == status.Replicas {
			return types.DeploymentStatusActive
		}
		return types.DeploymentStatusDeploying
	case orchestrator.PhaseFailed:
		return types.DeploymentStatusFailed
	case orchestrator.PhaseDeploying, orchestrator.PhaseRollingBack, orchestrator.PhasePending:
		return types.DeploymentStatusDeploying
	default:
		return current
	}
}
