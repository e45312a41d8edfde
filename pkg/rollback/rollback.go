package rollback

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

// Request identifies what to roll back. The current deployment is named
// either directly by DeploymentID or by project plus environment.
type Request struct {
	DeploymentID string `json:"deployment_id,omitempty"`
	ProjectID    string `json:"project_id,omitempty"`
	ProjectSlug  string `json:"project_slug,omitempty"`
	Environment  string `json:"environment,omitempty"`
	Reason       string `json:"reason,omitempty"`
}

// Result summarizes a completed rollback
type Result struct {
	Deployment *types.Deployment `json:"deployment"`
	From       string            `json:"rolled_back_from"`
	To         string            `json:"rolled_back_to"`
	FromImage  string            `json:"from_image,omitempty"`
	ToImage    string            `json:"to_image,omitempty"`
}

// Coordinator resolves rollback targets and restores the previous
// deployment
type Coordinator struct {
	store    storage.Store
	orch     orchestrator.Client
	notifier notify.Notifier
	tracker  Tracker
	logger   zerolog.Logger
}

func NewCoordinator(store storage.Store, orch orchestrator.Client, notifier notify.Notifier, tracker Tracker) *Coordinator {
	return &Coordinator{
		store:    store,
		orch:     orch,
		notifier: notifier,
		tracker:  tracker,
		logger:   log.WithComponent("rollback"),
	}
}

// Rollback restores the deployment that was active immediately before the
// current one. The target is resolved before the orchestrator is touched:
// a request with no previous deployment fails without any cluster calls.
func (c *Coordinator) Rollback(ctx context.Context, req Request) (*Result, error) {
	current, err := c.resolveCurrent(req)
	if err != nil {
		return nil, err
	}

	previous, err := c.findPrevious(current)
	if err != nil {
		return nil, err
	}

	fromImage := current.Metadata[types.MetaImage]
	toImage := previous.Metadata[types.MetaImage]
	namespace := current.Metadata[types.MetaNamespace]
	service := current.Metadata[types.MetaServiceName]

	if err := c.orch.Rollback(ctx, namespace, service, toImage); err != nil {
		return nil, errdefs.Dependency(errdefs.CodeOrchestratorUnavailable, err, "rollback of %s/%s failed", namespace, service)
	}

	reason := req.Reason
	if reason == "" {
		reason = "manual rollback"
	}

	// The restored state gets its own record so lineage stays append-only
	deployment := &types.Deployment{
		ID:            uuid.NewString(),
		ProjectID:     previous.ProjectID,
		BuildID:       previous.BuildID,
		EnvironmentID: previous.EnvironmentID,
		Status:        types.DeploymentStatusDeploying,
		CreatedAt:     time.Now(),
	}
	deployment.SetMeta(types.MetaNamespace, namespace)
	deployment.SetMeta(types.MetaServiceName, service)
	deployment.SetMeta(types.MetaImage, toImage)
	deployment.SetMeta(types.MetaRollbackReason, reason)
	deployment.SetMeta(types.MetaRollbackFrom, current.ID)
	deployment.SetMeta(types.MetaRollbackTo, previous.ID)
	deployment.SetMeta(types.MetaRollbackFromImage, fromImage)
	deployment.SetMeta(types.MetaRollbackToImage, toImage)
	if err := c.store.CreateDeployment(deployment); err != nil {
		return nil, errdefs.Internal(err, "failed to create rollback deployment")
	}

	if current.Status == types.DeploymentStatusActive {
		current.Status = types.DeploymentStatusSuperseded
		current.SetMeta(types.MetaSupersededBy, deployment.ID)
		if uerr := c.store.UpdateDeployment(current); uerr != nil {
			c.logger.Error().Err(uerr).Str("deployment_id", current.ID).Msg("failed to supersede rolled-back deployment")
		}
	}

	c.tracker.Track(deployment.ID)
	metrics.RollbacksTotal.Inc()
	go c.notifier.Alert("deployment.rolled_back", "warning", reason, map[string]string{
		"deployment_id": deployment.ID,
		"rolled_back_from": current.ID,
		"rolled_back_to":   previous.ID,
	})

	c.logger.Warn().
		Str("from", current.ID).
		Str("to", previous.ID).
		Str("deployment_id", deployment.ID).
		Str("reason", reason).
		Msg("rollback initiated")

	return &Result{
		Deployment: deployment,
		From:       current.ID,
		To:         previous.ID,
		FromImage:  fromImage,
		ToImage:    toImage,
	}, nil
}

// resolveCurrent finds the deployment being rolled back, by ID or by
// project and environment
func (c *Coordinator) resolveCurrent(req Request) (*types.Deployment, error) {
	if req.DeploymentID != "" {
		d, err := c.store.GetDeployment(req.DeploymentID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil, errdefs.NotFound(errdefs.CodeDeploymentNotFound, "deployment %s not found", req.DeploymentID)
			}
			return nil, errdefs.Internal(err, "failed to load deployment")
		}
		return d, nil
	}

	if req.Environment == "" {
		return nil, errdefs.Validation(errdefs.CodeInvalidInput, "deployment_id or project and environment are required")
	}

	var project *types.Project
	var err error
	switch {
	case req.ProjectID != "":
		project, err = c.store.GetProject(req.ProjectID)
	case req.ProjectSlug != "":
		project, err = c.store.GetProjectBySlug(req.ProjectSlug)
	default:
		return nil, errdefs.Validation(errdefs.CodeInvalidInput, "project_id or project_slug is required")
	}
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, errdefs.NotFound(errdefs.CodeProjectNotFound, "project not found")
		}
		return nil, errdefs.Internal(err, "failed to load project")
	}

	env, err := c.store.GetEnvironmentByName(project.ID, req.Environment)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, errdefs.NotFound(errdefs.CodeEnvironmentNotFound, "environment %s not found", req.Environment)
		}
		return nil, errdefs.Internal(err, "failed to load environment")
	}

	deployments, err := c.store.ListDeploymentsByEnvironment(project.ID, env.ID)
	if err != nil {
		return nil, errdefs.Internal(err, "failed to list deployments")
	}
	for _, d := range deployments {
		if d.Status == types.DeploymentStatusActive {
			return d, nil
		}
	}
	return nil, errdefs.NotFound(errdefs.CodeNoActiveDeploymentFound, "no active deployment in environment %s", req.Environment)
}

// findPrevious returns the deployment that was active immediately before
// current in the same environment
func (c *Coordinator) findPrevious(current *types.Deployment) (*types.Deployment, error) {
	deployments, err := c.store.ListDeploymentsByEnvironment(current.ProjectID, current.EnvironmentID)
	if err != nil {
		return nil, errdefs.Internal(err, "failed to list deployments")
	}
	for _, d := range deployments {
		if d.ID != current.ID && d.Status == types.DeploymentStatusSuperseded {
			return d, nil
		}
	}
	return nil, errdefs.Validation(errdefs.CodeNoPreviousDeployment, "no previous deployment to roll back to")
}
