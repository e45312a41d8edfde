package bluegreen

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/windlass/windlass/pkg/errdefs"
	"github.com/windlass/windlass/pkg/health"
	"github.com/windlass/windlass/pkg/log"
	"github.com/windlass/windlass/pkg/metrics"
	"github.com/windlass/windlass/pkg/notify"
	"github.com/windlass/windlass/pkg/orchestrator"
	"github.com/windlass/windlass/pkg/rollout"
	"github.com/windlass/windlass/pkg/storage"
	"github.com/windlass/windlass/pkg/types"
)

// ProductionEnvironment is the environment whose active deployment is
// taken as blue
const ProductionEnvironment = "production"

// validationWeight is the sliver of traffic green receives while being
// validated
const validationWeight = 5

// gradualSteps divides a gradual switch into fixed increments
const gradualSteps = 10

// InitSpec carries the inputs of a blue-green initialization
type InitSpec struct {
	ProjectID         string                `json:"project_id"`
	GreenDeploymentID string                `json:"green_deployment_id"`
	Config            types.BlueGreenConfig `json:"config"`
}

// Status is the full picture of a blue-green cycle: the stored record
// plus a live health snapshot of both sides
type Status struct {
	Record      *types.BlueGreenDeployment `json:"record"`
	BlueHealth  *health.Snapshot           `json:"blue_health,omitempty"`
	GreenHealth *health.Snapshot           `json:"green_health,omitempty"`
}

// Manager runs blue-green switch cycles: a candidate (green) deployment
// is validated next to the serving (blue) one, then traffic moves over
// immediately or gradually, health-gated at every step
type Manager struct {
	store     storage.Store
	orch      orchestrator.Client
	evaluator *health.Evaluator
	sched     *rollout.Scheduler
	notifier  notify.Notifier
	logger    zerolog.Logger
}

func NewManager(store storage.Store, orch orchestrator.Client, evaluator *health.Evaluator, sched *rollout.Scheduler, notifier notify.Notifier) *Manager {
	return &Manager{
		store:     store,
		orch:      orch,
		evaluator: evaluator,
		sched:     sched,
		notifier:  notifier,
		logger:    log.WithComponent("bluegreen"),
	}
}

// Initialize starts a blue-green cycle. Blue is the project's active
// production deployment; green is the validated candidate. With a
// validation period configured, green receives a sliver of traffic and a
// validation check is scheduled; otherwise the cycle waits for an
// explicit switch.
func (m *Manager) Initialize(ctx context.Context, spec InitSpec) (*types.BlueGreenDeployment, error) {
	if spec.ProjectID == "" || spec.GreenDeploymentID == "" {
		return nil, errdefs.Validation(errdefs.CodeInvalidInput, "project_id and green_deployment_id are required")
	}
	if spec.Config.Strategy == "" {
		spec.Config.Strategy = types.SwitchImmediate
	}

	project, err := m.store.GetProject(spec.ProjectID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, errdefs.NotFound(errdefs.CodeProjectNotFound, "project %s not found", spec.ProjectID)
		}
		return nil, errdefs.Internal(err, "failed to load project")
	}

	green, err := m.store.GetDeployment(spec.GreenDeploymentID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, errdefs.NotFound(errdefs.CodeDeploymentNotFound, "deployment %s not found", spec.GreenDeploymentID)
		}
		return nil, errdefs.Internal(err, "failed to load green deployment")
	}
	if green.ProjectID != project.ID {
		return nil, errdefs.Validation(errdefs.CodeInvalidInput, "deployment %s does not belong to project %s", green.ID, project.ID)
	}

	blue, err := m.activeProduction(project.ID)
	if err != nil {
		return nil, err
	}

	bg := &types.BlueGreenDeployment{
		ID:                uuid.NewString(),
		ProjectID:         project.ID,
		BlueDeploymentID:  blue.ID,
		GreenDeploymentID: green.ID,
		Status:            types.BlueGreenActiveBlue,
		TrafficToGreen:    0,
		Config:            spec.Config,
		StartedAt:         time.Now(),
	}
	if err := m.store.CreateBlueGreen(bg); err != nil {
		return nil, errdefs.Internal(err, "failed to create blue-green record")
	}

	if spec.Config.ValidationPeriodMinutes > 0 {
		namespace := blue.Metadata[types.MetaNamespace]
		if err := m.orch.ConfigureTrafficSplit(ctx, namespace, blue.ID, green.ID, validationWeight); err != nil {
			return nil, errdefs.Dependency(errdefs.CodeOrchestratorUnavailable, err, "failed to route validation traffic")
		}
		bg.TrafficToGreen = validationWeight
		if err := m.store.UpdateBlueGreen(bg); err != nil {
			return nil, errdefs.Internal(err, "failed to update blue-green record")
		}
		metrics.TrafficToGreen.WithLabelValues(project.ID).Set(float64(validationWeight))

		period := time.Duration(spec.Config.ValidationPeriodMinutes) * time.Minute
		m.sched.Schedule(validationKey(bg.ID), period, func() {
			if err := m.RunValidationCheck(context.Background(), bg.ID); err != nil {
				m.logger.Error().Err(err).Str("bluegreen_id", bg.ID).Msg("validation check failed")
			}
		})
	}

	m.logger.Info().
		Str("bluegreen_id", bg.ID).
		Str("project_id", project.ID).
		Str("blue", blue.ID).
		Str("green", green.ID).
		Str("strategy", string(spec.Config.Strategy)).
		Msg("blue-green cycle started")
	return bg, nil
}

// RunValidationCheck is the gate fired when green's validation period
// ends. It re-reads state first, so a stale firing is a no-op.
func (m *Manager) RunValidationCheck(ctx context.Context, id string) error {
	bg, err := m.get(id)
	if err != nil {
		return err
	}
	if bg.Status != types.BlueGreenActiveBlue && bg.Status != types.BlueGreenSwitching {
		return nil
	}
	if bg.CompletedAt != nil {
		return nil
	}

	window := time.Duration(bg.Config.ValidationPeriodMinutes) * time.Minute
	if window <= 0 {
		window = health.DefaultWindow
	}
	snapshot, err := m.evaluator.EvaluateTrailing(ctx, bg.GreenDeploymentID, window)
	if err != nil {
		m.logger.Warn().Err(err).Str("bluegreen_id", bg.ID).Msg("green metrics unavailable, pausing switch")
		return m.PauseSwitch(ctx, bg.ID)
	}

	if !snapshot.Healthy {
		metrics.GateDecisionsTotal.WithLabelValues("bluegreen", "rollback").Inc()
		if bg.Config.RollbackOnError {
			return m.RollbackToBlue(ctx, bg.ID, snapshot.Reason)
		}
		m.logger.Warn().Str("bluegreen_id", bg.ID).Str("reason", snapshot.Reason).Msg("green unhealthy, pausing for operator")
		return m.PauseSwitch(ctx, bg.ID)
	}

	if !bg.Config.AutoSwitch {
		metrics.GateDecisionsTotal.WithLabelValues("bluegreen", "pause").Inc()
		return m.PauseSwitch(ctx, bg.ID)
	}

	metrics.GateDecisionsTotal.WithLabelValues("bluegreen", "promote").Inc()
	switch bg.Config.Strategy {
	case types.SwitchGradual, types.SwitchCanary:
		return m.beginGradual(ctx, bg)
	default:
		return m.SwitchToGreen(ctx, bg.ID, 100)
	}
}

// SwitchToGreen routes percentage of traffic to green and persists the
// shift. 100 percent completes the cycle.
func (m *Manager) SwitchToGreen(ctx context.Context, id string, percentage int) error {
	if percentage < 0 || percentage > 100 {
		return errdefs.Validation(errdefs.CodeInvalidInput, "percentage must be between 0 and 100")
	}

	bg, err := m.get(id)
	if err != nil {
		return err
	}
	if bg.CompletedAt != nil {
		return errdefs.Conflict(errdefs.CodeInvalidTransition, "blue-green cycle already completed")
	}
	// Traffic only moves toward green while switching; the way back is
	// RollbackToBlue
	if bg.Status == types.BlueGreenSwitching && percentage < bg.TrafficToGreen {
		return errdefs.Conflict(errdefs.CodeInvalidTransition, "traffic to green is %d%%, cannot drop to %d%%", bg.TrafficToGreen, percentage)
	}

	blue, err := m.store.GetDeployment(bg.BlueDeploymentID)
	if err != nil {
		return errdefs.Internal(err, "failed to load blue deployment")
	}
	namespace := blue.Metadata[types.MetaNamespace]
	if err := m.orch.ConfigureTrafficSplit(ctx, namespace, bg.BlueDeploymentID, bg.GreenDeploymentID, percentage); err != nil {
		return errdefs.Dependency(errdefs.CodeOrchestratorUnavailable, err, "failed to shift traffic")
	}

	bg.TrafficToGreen = percentage
	if percentage >= 100 {
		bg.Status = types.BlueGreenActiveGreen
		now := time.Now()
		bg.CompletedAt = &now
	} else {
		bg.Status = types.BlueGreenSwitching
	}
	if err := m.store.UpdateBlueGreen(bg); err != nil {
		return errdefs.Internal(err, "failed to persist traffic shift")
	}
	metrics.TrafficToGreen.WithLabelValues(bg.ProjectID).Set(float64(percentage))

	if percentage >= 100 {
		m.sched.Cancel(gradualKey(bg.ID))
		m.promoteGreen(bg)
		m.logger.Info().Str("bluegreen_id", bg.ID).Msg("switch to green completed")
		go m.notifier.Alert("bluegreen.switched", "info", "traffic fully switched to green", map[string]string{
			"bluegreen_id": bg.ID,
			"project_id":   bg.ProjectID,
		})
	} else {
		m.logger.Info().Str("bluegreen_id", bg.ID).Int("traffic_to_green", percentage).Msg("traffic shifted")
	}
	return nil
}

// RunGradualTick advances a gradual switch by one increment, health-gated.
// A tick firing against a cycle that is paused, completed, or rolled back
// is a no-op.
func (m *Manager) RunGradualTick(ctx context.Context, id string) error {
	bg, err := m.get(id)
	if err != nil {
		return err
	}
	if bg.Status != types.BlueGreenSwitching || bg.CompletedAt != nil {
		return nil
	}

	snapshot, err := m.evaluator.EvaluateTrailing(ctx, bg.GreenDeploymentID, health.DefaultWindow)
	if err != nil {
		m.logger.Warn().Err(err).Str("bluegreen_id", bg.ID).Msg("green metrics unavailable, pausing switch")
		return m.PauseSwitch(ctx, bg.ID)
	}
	if !snapshot.Healthy {
		if bg.Config.RollbackOnError {
			return m.RollbackToBlue(ctx, bg.ID, snapshot.Reason)
		}
		return m.PauseSwitch(ctx, bg.ID)
	}

	next := bg.TrafficToGreen + 100/gradualSteps
	if next > 100 {
		next = 100
	}
	if err := m.SwitchToGreen(ctx, bg.ID, next); err != nil {
		return err
	}
	if next < 100 {
		m.scheduleGradualTick(bg)
	}
	return nil
}

// RollbackToBlue restores all traffic to blue, fails the green
// deployment, and concludes the cycle
func (m *Manager) RollbackToBlue(ctx context.Context, id, reason string) error {
	bg, err := m.get(id)
	if err != nil {
		return err
	}
	if bg.CompletedAt != nil {
		return errdefs.Conflict(errdefs.CodeInvalidTransition, "blue-green cycle already completed")
	}

	m.sched.Cancel(validationKey(bg.ID))
	m.sched.Cancel(gradualKey(bg.ID))

	blue, err := m.store.GetDeployment(bg.BlueDeploymentID)
	if err != nil {
		return errdefs.Internal(err, "failed to load blue deployment")
	}
	namespace := blue.Metadata[types.MetaNamespace]
	if err := m.orch.ConfigureTrafficSplit(ctx, namespace, bg.BlueDeploymentID, bg.GreenDeploymentID, 0); err != nil {
		return errdefs.Dependency(errdefs.CodeOrchestratorUnavailable, err, "failed to restore blue traffic")
	}

	bg.Status = types.BlueGreenActiveBlue
	bg.TrafficToGreen = 0
	now := time.Now()
	bg.CompletedAt = &now
	if err := m.store.UpdateBlueGreen(bg); err != nil {
		return errdefs.Internal(err, "failed to persist rollback")
	}
	metrics.TrafficToGreen.WithLabelValues(bg.ProjectID).Set(0)
	metrics.RollbacksTotal.Inc()

	green, err := m.store.GetDeployment(bg.GreenDeploymentID)
	if err == nil && green.Status != types.DeploymentStatusFailed && green.Status != types.DeploymentStatusSuperseded {
		green.Status = types.DeploymentStatusFailed
		green.SetMeta(types.MetaRollbackReason, reason)
		if uerr := m.store.UpdateDeployment(green); uerr != nil {
			m.logger.Error().Err(uerr).Str("deployment_id", green.ID).Msg("failed to fail green deployment")
		}
	}

	m.logger.Warn().Str("bluegreen_id", bg.ID).Str("reason", reason).Msg("rolled back to blue")
	go m.notifier.Alert("bluegreen.rolled_back", "warning", reason, map[string]string{
		"bluegreen_id": bg.ID,
		"project_id":   bg.ProjectID,
	})
	return nil
}

// PauseSwitch freezes traffic where it is and cancels pending ticks.
// Resume or RollbackToBlue takes it from there.
func (m *Manager) PauseSwitch(ctx context.Context, id string) error {
	bg, err := m.get(id)
	if err != nil {
		return err
	}
	if bg.CompletedAt != nil {
		return errdefs.Conflict(errdefs.CodeInvalidTransition, "blue-green cycle already completed")
	}

	m.sched.Cancel(validationKey(bg.ID))
	m.sched.Cancel(gradualKey(bg.ID))

	bg.Status = types.BlueGreenPaused
	if err := m.store.UpdateBlueGreen(bg); err != nil {
		return errdefs.Internal(err, "failed to persist pause")
	}
	m.logger.Info().Str("bluegreen_id", bg.ID).Int("traffic_to_green", bg.TrafficToGreen).Msg("switch paused")
	return nil
}

// Resume continues a paused cycle from its current traffic level
func (m *Manager) Resume(ctx context.Context, id string) error {
	bg, err := m.get(id)
	if err != nil {
		return err
	}
	if bg.Status != types.BlueGreenPaused {
		return errdefs.Conflict(errdefs.CodeInvalidTransition, "blue-green cycle is %s, not paused", bg.Status)
	}

	bg.Status = types.BlueGreenSwitching
	if err := m.store.UpdateBlueGreen(bg); err != nil {
		return errdefs.Internal(err, "failed to persist resume")
	}
	m.scheduleGradualTick(bg)
	m.logger.Info().Str("bluegreen_id", bg.ID).Msg("switch resumed")
	return nil
}

// GetStatus returns the stored record plus a live health snapshot of
// both sides. Health that cannot be evaluated is simply omitted.
func (m *Manager) GetStatus(ctx context.Context, id string) (*Status, error) {
	bg, err := m.get(id)
	if err != nil {
		return nil, err
	}

	status := &Status{Record: bg}
	if snapshot, err := m.evaluator.EvaluateTrailing(ctx, bg.BlueDeploymentID, health.DefaultWindow); err == nil {
		status.BlueHealth = snapshot
	}
	if snapshot, err := m.evaluator.EvaluateTrailing(ctx, bg.GreenDeploymentID, health.DefaultWindow); err == nil {
		status.GreenHealth = snapshot
	}
	return status, nil
}

// GetByProject returns the most recent blue-green cycle for a project
func (m *Manager) GetByProject(ctx context.Context, projectID string) (*types.BlueGreenDeployment, error) {
	bg, err := m.store.GetBlueGreenByProject(projectID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, errdefs.NotFound(errdefs.CodeDeploymentNotFound, "no blue-green cycle for project %s", projectID)
		}
		return nil, errdefs.Internal(err, "failed to load blue-green record")
	}
	return bg, nil
}

func (m *Manager) beginGradual(ctx context.Context, bg *types.BlueGreenDeployment) error {
	first := 100 / gradualSteps
	if bg.TrafficToGreen > first {
		first = bg.TrafficToGreen
	}
	if err := m.SwitchToGreen(ctx, bg.ID, first); err != nil {
		return err
	}
	fresh, err := m.get(bg.ID)
	if err != nil {
		return err
	}
	if fresh.Status == types.BlueGreenSwitching {
		m.scheduleGradualTick(fresh)
	}
	return nil
}

func (m *Manager) scheduleGradualTick(bg *types.BlueGreenDeployment) {
	m.sched.Schedule(gradualKey(bg.ID), m.tickSpacing(bg), func() {
		if err := m.RunGradualTick(context.Background(), bg.ID); err != nil {
			m.logger.Error().Err(err).Str("bluegreen_id", bg.ID).Msg("gradual tick failed")
		}
	})
}

// tickSpacing spreads the gradual increments across the configured
// switch duration
func (m *Manager) tickSpacing(bg *types.BlueGreenDeployment) time.Duration {
	minutes := bg.Config.SwitchDurationMinutes
	if minutes <= 0 {
		minutes = 30
	}
	return time.Duration(minutes) * time.Minute / gradualSteps
}

// promoteGreen makes green the active deployment and demotes blue
func (m *Manager) promoteGreen(bg *types.BlueGreenDeployment) {
	green, err := m.store.GetDeployment(bg.GreenDeploymentID)
	if err == nil && green.Status != types.DeploymentStatusActive && !green.Status.Terminal() {
		green.Status = types.DeploymentStatusActive
		now := time.Now()
		green.CompletedAt = &now
		if uerr := m.store.UpdateDeployment(green); uerr != nil {
			m.logger.Error().Err(uerr).Str("deployment_id", green.ID).Msg("failed to activate green deployment")
		}
	}

	blue, err := m.store.GetDeployment(bg.BlueDeploymentID)
	if err == nil && blue.Status == types.DeploymentStatusActive {
		blue.Status = types.DeploymentStatusSuperseded
		blue.SetMeta(types.MetaSupersededBy, bg.GreenDeploymentID)
		if uerr := m.store.UpdateDeployment(blue); uerr != nil {
			m.logger.Error().Err(uerr).Str("deployment_id", blue.ID).Msg("failed to supersede blue deployment")
		}
	}
}

func (m *Manager) activeProduction(projectID string) (*types.Deployment, error) {
	env, err := m.store.GetEnvironmentByName(projectID, ProductionEnvironment)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, errdefs.NotFound(errdefs.CodeNoActiveProduction, "project %s has no production environment", projectID)
		}
		return nil, errdefs.Internal(err, "failed to load production environment")
	}

	deployments, err := m.store.ListDeploymentsByEnvironment(projectID, env.ID)
	if err != nil {
		return nil, errdefs.Internal(err, "failed to list deployments")
	}
	for _, d := range deployments {
		if d.Status == types.DeploymentStatusActive {
			return d, nil
		}
	}
	return nil, errdefs.NotFound(errdefs.CodeNoActiveProduction, "project %s has no active production deployment", projectID)
}

func (m *Manager) get(id string) (*types.BlueGreenDeployment, error) {
	bg, err := m.store.GetBlueGreen(id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, errdefs.NotFound(errdefs.CodeDeploymentNotFound, "blue-green cycle %s not found", id)
		}
		return nil, errdefs.Internal(err, "failed to load blue-green record")
	}
	return bg, nil
}

func validationKey(id string) string { return "bluegreen/validate/" + id }
func gradualKey(id string) string    { return "bluegreen/gradual/" + id }
