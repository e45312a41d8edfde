package rollback

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windlass/windlass/pkg/errdefs"
	"github.com/windlass/windlass/pkg/notify"
	"github.com/windlass/windlass/pkg/orchestrator"
	"github.com/windlass/windlass/pkg/storage"
	"github.com/windlass/windlass/pkg/types"
)

type fakeTracker struct {
	mu  sync.Mutex
	ids []string
}

func (f *fakeTracker) Track(id string) {
	f.mu.Lock()
	f.ids = append(f.ids, id)
	f.mu.Unlock()
}

type fixture struct {
	coord   *Coordinator
	store   storage.Store
	orch    *orchestrator.Fake
	tracker *fakeTracker

	project *types.Project
	env     *types.Environment
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	orch := orchestrator.NewFake()
	tracker := &fakeTracker{}
	coord := NewCoordinator(store, orch, notify.Discard{}, tracker)

	project := &types.Project{
		ID:        uuid.NewString(),
		Name:      "demo",
		Slug:      "demo",
		RepoURL:   "https://example.com/demo.git",
		Namespace: "demo",
		CreatedAt: time.Now(),
	}
	require.NoError(t, store.CreateProject(project))

	env := &types.Environment{
		ID:        uuid.NewString(),
		ProjectID: project.ID,
		Name:      "production",
		Namespace: "demo-prod",
		CreatedAt: time.Now(),
	}
	require.NoError(t, store.CreateEnvironment(env))

	return &fixture{coord: coord, store: store, orch: orch, tracker: tracker, project: project, env: env}
}

func (f *fixture) seedDeployment(t *testing.T, status types.DeploymentStatus, image string, age time.Duration) *types.Deployment {
	t.Helper()
	d := &types.Deployment{
		ID:            uuid.NewString(),
		ProjectID:     f.project.ID,
		BuildID:       uuid.NewString(),
		EnvironmentID: f.env.ID,
		Status:        status,
		CreatedAt:     time.Now().Add(-age),
	}
	d.SetMeta(types.MetaNamespace, "demo-prod")
	d.SetMeta(types.MetaServiceName, "demo")
	d.SetMeta(types.MetaImage, image)
	require.NoError(t, f.store.CreateDeployment(d))
	return d
}

func TestRollbackByDeploymentID(t *testing.T) {
	f := newFixture(t)
	previous := f.seedDeployment(t, types.DeploymentStatusSuperseded, "registry/app:v1", time.Hour)
	current := f.seedDeployment(t, types.DeploymentStatusActive, "registry/app:v2", 0)

	result, err := f.coord.Rollback(context.Background(), Request{
		DeploymentID: current.ID,
		Reason:       "latency regression",
	})
	require.NoError(t, err)
	assert.Equal(t, current.ID, result.From)
	assert.Equal(t, previous.ID, result.To)
	assert.Equal(t, "registry/app:v2", result.FromImage)
	assert.Equal(t, "registry/app:v1", result.ToImage)

	// The orchestrator was pointed back at the previous image
	require.Len(t, f.orch.Rollbacks, 1)
	assert.Equal(t, "registry/app:v1", f.orch.Rollbacks[0].TargetImage)
	assert.Equal(t, "demo-prod", f.orch.Rollbacks[0].Namespace)
	assert.Equal(t, "demo", f.orch.Rollbacks[0].Name)

	// The restored state is a fresh record with full lineage
	restored := result.Deployment
	assert.Equal(t, types.DeploymentStatusDeploying, restored.Status)
	assert.Equal(t, previous.BuildID, restored.BuildID)
	assert.Equal(t, current.ID, restored.Metadata[types.MetaRollbackFrom])
	assert.Equal(t, previous.ID, restored.Metadata[types.MetaRollbackTo])
	assert.Equal(t, "latency regression", restored.Metadata[types.MetaRollbackReason])

	// The rolled-back deployment is demoted
	got, err := f.store.GetDeployment(current.ID)
	require.NoError(t, err)
	assert.Equal(t, types.DeploymentStatusSuperseded, got.Status)

	// And the reconciler drives the restored record
	f.tracker.mu.Lock()
	defer f.tracker.mu.Unlock()
	assert.Contains(t, f.tracker.ids, restored.ID)
}

func TestRollbackByProjectAndEnvironment(t *testing.T) {
	f := newFixture(t)
	f.seedDeployment(t, types.DeploymentStatusSuperseded, "registry/app:v1", time.Hour)
	current := f.seedDeployment(t, types.DeploymentStatusActive, "registry/app:v2", 0)

	result, err := f.coord.Rollback(context.Background(), Request{
		ProjectSlug: "demo",
		Environment: "production",
	})
	require.NoError(t, err)
	assert.Equal(t, current.ID, result.From)
}

func TestRollbackNoPreviousDeployment(t *testing.T) {
	f := newFixture(t)
	f.seedDeployment(t, types.DeploymentStatusActive, "registry/app:v1", 0)

	_, err := f.coord.Rollback(context.Background(), Request{
		ProjectID:   f.project.ID,
		Environment: "production",
	})
	require.Error(t, err)
	assert.Equal(t, errdefs.CodeNoPreviousDeployment, errdefs.CodeOf(err))

	// Resolution failed before any cluster side effects
	assert.Zero(t, f.orch.CallCount())
}

func TestRollbackNoActiveDeployment(t *testing.T) {
	f := newFixture(t)
	f.seedDeployment(t, types.DeploymentStatusSuperseded, "registry/app:v1", time.Hour)

	_, err := f.coord.Rollback(context.Background(), Request{
		ProjectID:   f.project.ID,
		Environment: "production",
	})
	require.Error(t, err)
	assert.Equal(t, errdefs.CodeNoActiveDeploymentFound, errdefs.CodeOf(err))
	assert.Zero(t, f.orch.CallCount())
}

func TestRollbackUnknownEnvironment(t *testing.T) {
	f := newFixture(t)

	_, err := f.coord.Rollback(context.Background(), Request{
		ProjectID:   f.project.ID,
		Environment: "staging",
	})
	require.Error(t, err)
	assert.Equal(t, errdefs.CodeEnvironmentNotFound, errdefs.CodeOf(err))
}

func TestRollbackValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.coord.Rollback(context.Background(), Request{})
	require.Error(t, err)
	assert.True(t, errdefs.IsValidation(err))

	_, err = f.coord.Rollback(context.Background(), Request{Environment: "production"})
	require.Error(t, err)
	assert.True(t, errdefs.IsValidation(err))
}
