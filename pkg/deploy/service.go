package deploy

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/windlass/windlass/pkg/errdefs"
	"github.com/windlass/windlass/pkg/log"
	"github.com/windlass/windlass/pkg/metrics"
	"github.com/windlass/windlass/pkg/notify"
	"github.com/windlass/windlass/pkg/orchestrator"
	"github.com/windlass/windlass/pkg/storage"
	"github.com/windlass/windlass/pkg/types"
)

// Tracker receives deployments that need live status reconciliation
type Tracker interface {
	Track(deploymentID string)
}

// CreateSpec carries the inputs of a deployment request
type CreateSpec struct {
	ProjectID     string                 `json:"project_id"`
	BuildID       string                 `json:"build_id"`
	EnvironmentID string                 `json:"environment_id"`
	UserID        string                 `json:"user_id,omitempty"`
	Strategy      types.DeployStrategy   `json:"strategy,omitempty"`
	Ports         []int                  `json:"ports,omitempty"`
	EnvFrom       []string               `json:"env_from,omitempty"`
	Autoscale     *orchestrator.Autoscale `json:"autoscale,omitempty"`
	ServiceType   string                 `json:"service_type,omitempty"`
}

// Service creates deployment records and drives the orchestrator to
// materialize them
type Service struct {
	store    storage.Store
	orch     orchestrator.Client
	notifier notify.Notifier
	tracker  Tracker
	logger   zerolog.Logger
}

func NewService(store storage.Store, orch orchestrator.Client, notifier notify.Notifier, tracker Tracker) *Service {
	return &Service{
		store:    store,
		orch:     orch,
		notifier: notifier,
		tracker:  tracker,
		logger:   log.WithComponent("deploy"),
	}
}

// Create validates the request, records the deployment, and asks the
// orchestrator to materialize it. The deployment record survives an
// orchestrator failure so the attempt is auditable.
func (s *Service) Create(ctx context.Context, spec CreateSpec) (*types.Deployment, error) {
	if spec.ProjectID == "" || spec.BuildID == "" || spec.EnvironmentID == "" {
		return nil, errdefs.Validation(errdefs.CodeInvalidInput, "project_id, build_id and environment_id are required")
	}

	project, err := s.store.GetProject(spec.ProjectID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, errdefs.NotFound(errdefs.CodeProjectNotFound, "project %s not found", spec.ProjectID)
		}
		return nil, errdefs.Internal(err, "failed to load project")
	}

	env, err := s.store.GetEnvironment(spec.EnvironmentID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, errdefs.NotFound(errdefs.CodeEnvironmentNotFound, "environment %s not found", spec.EnvironmentID)
		}
		return nil, errdefs.Internal(err, "failed to load environment")
	}
	if env.ProjectID != project.ID {
		return nil, errdefs.Validation(errdefs.CodeInvalidInput, "environment %s does not belong to project %s", env.ID, project.ID)
	}

	build, err := s.store.GetBuild(spec.BuildID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, errdefs.NotFound(errdefs.CodeBuildNotFound, "build %s not found", spec.BuildID)
		}
		return nil, errdefs.Internal(err, "failed to load build")
	}
	if build.Status != types.BuildStatusSuccess {
		return nil, errdefs.Validation(errdefs.CodeBuildNotSuccessful, "build %s is %s, only successful builds are deployable", build.ID, build.Status)
	}

	namespace := env.Namespace
	if namespace == "" {
		namespace = project.Namespace
	}

	deployment := &types.Deployment{
		ID:            uuid.NewString(),
		ProjectID:     project.ID,
		BuildID:       build.ID,
		EnvironmentID: env.ID,
		UserID:        spec.UserID,
		Status:        types.DeploymentStatusPending,
		CreatedAt:     time.Now(),
	}
	deployment.SetMeta(types.MetaNamespace, namespace)
	deployment.SetMeta(types.MetaServiceName, project.Slug)
	deployment.SetMeta(types.MetaImage, build.ImageURL)
	if spec.Strategy != "" {
		deployment.SetMeta(types.MetaStrategy, string(spec.Strategy))
	}

	if err := s.store.CreateDeployment(deployment); err != nil {
		return nil, errdefs.Internal(err, "failed to create deployment")
	}

	orchSpec := orchestrator.ServiceSpec{
		Image:        build.ImageURL,
		Ports:        spec.Ports,
		EnvFrom:      spec.EnvFrom,
		Autoscale:    spec.Autoscale,
		ServiceType:  spec.ServiceType,
		DeploymentID: deployment.ID,
	}
	if err := s.orch.CreateService(ctx, namespace, project.Slug, orchSpec); err != nil {
		deployment.Status = types.DeploymentStatusFailed
		deployment.SetMeta(types.MetaError, err.Error())
		if uerr := s.store.UpdateDeployment(deployment); uerr != nil {
			s.logger.Error().Err(uerr).Str("deployment_id", deployment.ID).Msg("failed to record orchestrator failure")
		}
		metrics.DeploymentsTotal.WithLabelValues(string(types.DeploymentStatusFailed)).Inc()
		return nil, errdefs.Dependency(errdefs.CodeOrchestratorUnavailable, err, "orchestrator rejected service %s/%s", namespace, project.Slug)
	}

	deployment.Status = types.DeploymentStatusDeploying
	if err := s.store.UpdateDeployment(deployment); err != nil {
		return nil, errdefs.Internal(err, "failed to update deployment")
	}

	s.tracker.Track(deployment.ID)
	go s.notifier.DeploymentCreated(deployment.ID)
	metrics.DeploymentsTotal.WithLabelValues(string(types.DeploymentStatusDeploying)).Inc()

	s.logger.Info().
		Str("deployment_id", deployment.ID).
		Str("project_id", project.ID).
		Str("environment", env.Name).
		Str("image", build.ImageURL).
		Msg("deployment created")
	return deployment, nil
}

// Get returns a deployment by ID
func (s *Service) Get(ctx context.Context, id string) (*types.Deployment, error) {
	deployment, err := s.store.GetDeployment(id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, errdefs.NotFound(errdefs.CodeDeploymentNotFound, "deployment %s not found", id)
		}
		return nil, errdefs.Internal(err, "failed to load deployment")
	}
	return deployment, nil
}

// ListByProject returns the project's deployments, newest first
func (s *Service) ListByProject(ctx context.Context, projectID string) ([]*types.Deployment, error) {
	deployments, err := s.store.ListDeploymentsByProject(projectID)
	if err != nil {
		return nil, errdefs.Internal(err, "failed to list deployments")
	}
	return deployments, nil
}

// Active returns the single active deployment for the environment
func (s *Service) Active(ctx context.Context, projectID, environmentID string) (*types.Deployment, error) {
	deployments, err := s.store.ListDeploymentsByEnvironment(projectID, environmentID)
	if err != nil {
		return nil, errdefs.Internal(err, "failed to list deployments")
	}
	for _, d := range deployments {
		if d.Status == types.DeploymentStatusActive {
			return d, nil
		}
	}
	return nil, errdefs.NotFound(errdefs.CodeNoActiveDeploymentFound, "no active deployment for environment %s", environmentID)
}

// Previous returns the deployment that was active immediately before the
// current one: the most recently superseded deployment in the environment
func (s *Service) Previous(ctx context.Context, projectID, environmentID string) (*types.Deployment, error) {
	deployments, err := s.store.ListDeploymentsByEnvironment(projectID, environmentID)
	if err != nil {
		return nil, errdefs.Internal(err, "failed to list deployments")
	}
	for _, d := range deployments {
		if d.Status == types.DeploymentStatusSuperseded {
			return d, nil
		}
	}
	return nil, errdefs.Validation(errdefs.CodeNoPreviousDeployment, "no previous deployment for environment %s", environmentID)
}
