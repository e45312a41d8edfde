package builder

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/windlass/windlass/pkg/errdefs"
	"github.com/windlass/windlass/pkg/log"
	"github.com/windlass/windlass/pkg/notify"
	"github.com/windlass/windlass/pkg/queue"
	"github.com/windlass/windlass/pkg/storage"
	"github.com/windlass/windlass/pkg/types"
)

// SubmitSpec carries the inputs of a build request
type SubmitSpec struct {
	ProjectID      string            `json:"project_id"`
	CommitSHA      string            `json:"commit_sha"`
	Branch         string            `json:"branch"`
	DockerfilePath string            `json:"dockerfile_path,omitempty"`
	BuildArgs      map[string]string `json:"build_args,omitempty"`
}

// Service owns the build pipeline: submission, queueing, worker
// consumption, cancellation, and listing.
type Service struct {
	store     storage.Store
	queue     *queue.Queue
	toolchain Toolchain
	notifier  notify.Notifier
	workers   int
	logger    zerolog.Logger

	mu      sync.Mutex
	running map[string]context.CancelFunc // Build ID -> abort for in-flight builds

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewService creates the build service with the given worker pool size
func NewService(store storage.Store, q *queue.Queue, toolchain Toolchain, notifier notify.Notifier, workers int) *Service {
	if workers <= 0 {
		workers = 2
	}
	return &Service{
		store:     store,
		queue:     q,
		toolchain: toolchain,
		notifier:  notifier,
		workers:   workers,
		logger:    log.WithComponent("builder"),
		running:   make(map[string]context.CancelFunc),
	}
}

// SubmitBuild validates the request, creates the build record, and
// durably enqueues the work item
func (s *Service) SubmitBuild(ctx context.Context, spec SubmitSpec) (*types.Build, error) {
	if spec.ProjectID == "" {
		return nil, errdefs.Validation(errdefs.CodeInvalidInput, "project_id is required")
	}
	if spec.CommitSHA == "" {
		return nil, errdefs.Validation(errdefs.CodeInvalidInput, "commit_sha is required")
	}

	project, err := s.store.GetProject(spec.ProjectID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, errdefs.NotFound(errdefs.CodeProjectNotFound, "project %s not found", spec.ProjectID)
		}
		return nil, errdefs.Internal(err, "failed to load project")
	}

	dockerfile := spec.DockerfilePath
	if dockerfile == "" {
		dockerfile = "Dockerfile"
	}

	now := time.Now()
	build := &types.Build{
		ID:             uuid.NewString(),
		ProjectID:      project.ID,
		CommitSHA:      spec.CommitSHA,
		Branch:         spec.Branch,
		DockerfilePath: dockerfile,
		BuildArgs:      spec.BuildArgs,
		Status:         types.BuildStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.CreateBuild(build); err != nil {
		return nil, errdefs.Internal(err, "failed to create build")
	}

	job := &queue.Job{
		ID:             build.ID,
		ProjectID:      project.ID,
		RepoURL:        project.RepoURL,
		CommitSHA:      build.CommitSHA,
		Branch:         build.Branch,
		DockerfilePath: build.DockerfilePath,
		BuildArgs:      build.BuildArgs,
	}
	if err := s.queue.Enqueue(job); err != nil {
		return nil, errdefs.Internal(err, "failed to enqueue build")
	}

	// The job is durable now, flip pending -> queued
	build, err = s.transition(build.ID, func(b *types.Build) error {
		if !b.Status.CanTransition(types.BuildStatusQueued) {
			return errdefs.Conflict(errdefs.CodeInvalidTransition, "build is %s", b.Status)
		}
		b.Status = types.BuildStatusQueued
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("build_id", build.ID).
		Str("project_id", project.ID).
		Str("commit", build.CommitSHA).
		Msg("build submitted")
	return build, nil
}

// GetBuild returns a build by ID
func (s *Service) GetBuild(ctx context.Context, id string) (*types.Build, error) {
	build, err := s.store.GetBuild(id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, errdefs.NotFound(errdefs.CodeBuildNotFound, "build %s not found", id)
		}
		return nil, errdefs.Internal(err, "failed to load build")
	}
	return build, nil
}

// ListBuilds returns one page of builds plus the total count
func (s *Service) ListBuilds(ctx context.Context, projectID string, limit, offset int) ([]*types.Build, int, error) {
	builds, total, err := s.store.ListBuilds(projectID, limit, offset)
	if err != nil {
		return nil, 0, errdefs.Internal(err, "failed to list builds")
	}
	return builds, total, nil
}

// CancelBuild cancels a pending or running build. Pending jobs are
// removed from the queue outright; running builds get an abort signal and
// the worker finalizes the record. Terminal builds are not cancellable.
func (s *Service) CancelBuild(ctx context.Context, id string) (*types.Build, error) {
	build, err := s.GetBuild(ctx, id)
	if err != nil {
		return nil, err
	}

	switch build.Status {
	case types.BuildStatusPending, types.BuildStatusQueued:
		if err := s.queue.Remove(id); err != nil {
			return nil, errdefs.Internal(err, "failed to remove queued job")
		}
		return s.transition(id, func(b *types.Build) error {
			if b.Status.Terminal() {
				return errdefs.Conflict(errdefs.CodeBuildNotCancellable, "build is already %s", b.Status)
			}
			b.Status = types.BuildStatusCancelled
			now := time.Now()
			b.FinishedAt = &now
			return nil
		})

	case types.BuildStatusRunning:
		s.mu.Lock()
		abort, ok := s.running[id]
		s.mu.Unlock()
		if ok {
			abort()
		}
		// Best effort: the worker observes the abort and finalizes
		return build, nil

	default:
		return nil, errdefs.Conflict(errdefs.CodeBuildNotCancellable, "build is already %s", build.Status)
	}
}

// transition applies fn to a fresh read of the build and writes it back,
// retrying from a fresh read on version conflicts
func (s *Service) transition(id string, fn func(*types.Build) error) (*types.Build, error) {
	for {
		build, err := s.store.GetBuild(id)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil, errdefs.NotFound(errdefs.CodeBuildNotFound, "build %s not found", id)
			}
			return nil, errdefs.Internal(err, "failed to load build")
		}

		if err := fn(build); err != nil {
			return nil, err
		}
		build.UpdatedAt = time.Now()

		err = s.store.UpdateBuild(build)
		if errors.Is(err, storage.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return nil, errdefs.Internal(err, "failed to update build")
		}
		return build, nil
	}
}
