package storage

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windlass/windlass/pkg/types"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	store, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func seedProject(t *testing.T, store *BoltStore) *types.Project {
	t.Helper()
	project := &types.Project{
		ID:        uuid.NewString(),
		Name:      "demo",
		Slug:      "demo",
		RepoURL:   "https://example.com/demo.git",
		Namespace: "demo",
		CreatedAt: time.Now(),
	}
	require.NoError(t, store.CreateProject(project))
	return project
}

func TestProjectRoundTrip(t *testing.T) {
	store := newTestStore(t)
	project := seedProject(t, store)

	got, err := store.GetProject(project.ID)
	require.NoError(t, err)
	assert.Equal(t, project.Name, got.Name)
	assert.Equal(t, int64(1), got.Version)

	bySlug, err := store.GetProjectBySlug("demo")
	require.NoError(t, err)
	assert.Equal(t, project.ID, bySlug.ID)

	_, err = store.GetProject("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEnvironmentByName(t *testing.T) {
	store := newTestStore(t)
	project := seedProject(t, store)

	env := &types.Environment{
		ID:        uuid.NewString(),
		ProjectID: project.ID,
		Name:      "production",
		Namespace: "demo-prod",
		CreatedAt: time.Now(),
	}
	require.NoError(t, store.CreateEnvironment(env))

	got, err := store.GetEnvironmentByName(project.ID, "production")
	require.NoError(t, err)
	assert.Equal(t, env.ID, got.ID)

	_, err = store.GetEnvironmentByName(project.ID, "staging")
	assert.ErrorIs(t, err, ErrNotFound)

	envs, err := store.ListEnvironmentsByProject(project.ID)
	require.NoError(t, err)
	assert.Len(t, envs, 1)
}

func TestBuildVersionConflict(t *testing.T) {
	store := newTestStore(t)
	project := seedProject(t, store)

	build := &types.Build{
		ID:        uuid.NewString(),
		ProjectID: project.ID,
		CommitSHA: "abc123",
		Status:    types.BuildStatusPending,
		CreatedAt: time.Now(),
	}
	require.NoError(t, store.CreateBuild(build))
	assert.Equal(t, int64(1), build.Version)

	// Two readers pick up version 1
	first, err := store.GetBuild(build.ID)
	require.NoError(t, err)
	second, err := store.GetBuild(build.ID)
	require.NoError(t, err)

	first.Status = types.BuildStatusQueued
	require.NoError(t, store.UpdateBuild(first))
	assert.Equal(t, int64(2), first.Version)

	// The stale writer must be rejected
	second.Status = types.BuildStatusCancelled
	err = store.UpdateBuild(second)
	assert.ErrorIs(t, err, ErrVersionConflict)

	// Stored state reflects only the winning write
	got, err := store.GetBuild(build.ID)
	require.NoError(t, err)
	assert.Equal(t, types.BuildStatusQueued, got.Status)
}

func TestListBuildsPagination(t *testing.T) {
	store := newTestStore(t)
	project := seedProject(t, store)

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		build := &types.Build{
			ID:        uuid.NewString(),
			ProjectID: project.ID,
			CommitSHA: "sha",
			Status:    types.BuildStatusSuccess,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, store.CreateBuild(build))
	}

	builds, total, err := store.ListBuilds(project.ID, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, builds, 2)
	// Newest first
	assert.True(t, builds[0].CreatedAt.After(builds[1].CreatedAt))

	rest, total, err := store.ListBuilds(project.ID, 10, 4)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Len(t, rest, 1)

	none, total, err := store.ListBuilds(project.ID, 10, 99)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Empty(t, none)
}

func TestDeploymentVersionConflict(t *testing.T) {
	store := newTestStore(t)
	project := seedProject(t, store)

	deployment := &types.Deployment{
		ID:            uuid.NewString(),
		ProjectID:     project.ID,
		BuildID:       uuid.NewString(),
		EnvironmentID: uuid.NewString(),
		Status:        types.DeploymentStatusDeploying,
		CreatedAt:     time.Now(),
	}
	require.NoError(t, store.CreateDeployment(deployment))

	stale, err := store.GetDeployment(deployment.ID)
	require.NoError(t, err)

	deployment.Status = types.DeploymentStatusActive
	require.NoError(t, store.UpdateDeployment(deployment))

	stale.Status = types.DeploymentStatusFailed
	assert.ErrorIs(t, store.UpdateDeployment(stale), ErrVersionConflict)
}

func TestListDeploymentsByEnvironment(t *testing.T) {
	store := newTestStore(t)
	project := seedProject(t, store)
	envID := uuid.NewString()

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		d := &types.Deployment{
			ID:            uuid.NewString(),
			ProjectID:     project.ID,
			BuildID:       uuid.NewString(),
			EnvironmentID: envID,
			Status:        types.DeploymentStatusSuperseded,
			CreatedAt:     base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, store.CreateDeployment(d))
	}
	other := &types.Deployment{
		ID:            uuid.NewString(),
		ProjectID:     project.ID,
		BuildID:       uuid.NewString(),
		EnvironmentID: uuid.NewString(),
		Status:        types.DeploymentStatusActive,
		CreatedAt:     time.Now(),
	}
	require.NoError(t, store.CreateDeployment(other))

	deployments, err := store.ListDeploymentsByEnvironment(project.ID, envID)
	require.NoError(t, err)
	require.Len(t, deployments, 3)
	// Newest first
	assert.True(t, deployments[0].CreatedAt.After(deployments[1].CreatedAt))
}

func TestBlueGreenByProject(t *testing.T) {
	store := newTestStore(t)
	project := seedProject(t, store)

	old := &types.BlueGreenDeployment{
		ID:        uuid.NewString(),
		ProjectID: project.ID,
		Status:    types.BlueGreenActiveGreen,
		StartedAt: time.Now().Add(-time.Hour),
	}
	require.NoError(t, store.CreateBlueGreen(old))

	recent := &types.BlueGreenDeployment{
		ID:        uuid.NewString(),
		ProjectID: project.ID,
		Status:    types.BlueGreenActiveBlue,
		StartedAt: time.Now(),
	}
	require.NoError(t, store.CreateBlueGreen(recent))

	got, err := store.GetBlueGreenByProject(project.ID)
	require.NoError(t, err)
	assert.Equal(t, recent.ID, got.ID)

	_, err = store.GetBlueGreenByProject("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
