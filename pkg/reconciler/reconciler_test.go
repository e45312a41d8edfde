package reconciler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windlass/windlass/pkg/notify"
	"github.com/windlass/windlass/pkg/orchestrator"
	"github.com/windlass/windlass/pkg/storage"
	"github.com/windlass/windlass/pkg/types"
)

func newTestReconciler(t *testing.T) (*Reconciler, storage.Store, *orchestrator.Fake) {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	orch := orchestrator.NewFake()
	r := New(store, orch, notify.Discard{}, time.Second)
	return r, store, orch
}

func seedDeployment(t *testing.T, store storage.Store, status types.DeploymentStatus) *types.Deployment {
	t.Helper()
	d := &types.Deployment{
		ID:            uuid.NewString(),
		ProjectID:     uuid.NewString(),
		BuildID:       uuid.NewString(),
		EnvironmentID: uuid.NewString(),
		Status:        status,
		CreatedAt:     time.Now(),
	}
	d.SetMeta(types.MetaNamespace, "demo-prod")
	d.SetMeta(types.MetaServiceName, "demo")
	require.NoError(t, store.CreateDeployment(d))
	return d
}

func TestReconcileToActive(t *testing.T) {
	r, store, orch := newTestReconciler(t)
	d := seedDeployment(t, store, types.DeploymentStatusDeploying)
	r.Track(d.ID)

	orch.SetStatus("demo-prod", "demo", orchestrator.ServiceStatus{
		Phase:         orchestrator.PhaseRunning,
		Replicas:      3,
		ReadyReplicas: 3,
	})
	r.RunCycle(context.Background())

	got, err := store.GetDeployment(d.ID)
	require.NoError(t, err)
	assert.Equal(t, types.DeploymentStatusActive, got.Status)
	require.NotNil(t, got.CompletedAt)

	// Terminal deployments leave the tracked set
	r.mu.Lock()
	_, tracked := r.tracked[d.ID]
	r.mu.Unlock()
	assert.False(t, tracked)
}

func TestReconcileNotAllReplicasReady(t *testing.T) {
	r, store, orch := newTestReconciler(t)
	d := seedDeployment(t, store, types.DeploymentStatusDeploying)
	r.Track(d.ID)

	orch.SetStatus("demo-prod", "demo", orchestrator.ServiceStatus{
		Phase:         orchestrator.PhaseRunning,
		Replicas:      3,
		ReadyReplicas: 1,
	})
	r.RunCycle(context.Background())

	got, err := store.GetDeployment(d.ID)
	require.NoError(t, err)
	assert.Equal(t, types.DeploymentStatusDeploying, got.Status)
	assert.Nil(t, got.CompletedAt)
}

func TestReconcileToFailed(t *testing.T) {
	r, store, orch := newTestReconciler(t)
	d := seedDeployment(t, store, types.DeploymentStatusDeploying)
	r.Track(d.ID)

	orch.SetStatus("demo-prod", "demo", orchestrator.ServiceStatus{
		Phase: orchestrator.PhaseFailed,
	})
	r.RunCycle(context.Background())

	got, err := store.GetDeployment(d.ID)
	require.NoError(t, err)
	assert.Equal(t, types.DeploymentStatusFailed, got.Status)
}

func TestTransientPollErrorLeavesStatus(t *testing.T) {
	r, store, orch := newTestReconciler(t)
	d := seedDeployment(t, store, types.DeploymentStatusDeploying)
	r.Track(d.ID)

	orch.StatusErr = errors.New("timeout")
	r.RunCycle(context.Background())

	// A flaky poll never fails a deployment
	got, err := store.GetDeployment(d.ID)
	require.NoError(t, err)
	assert.Equal(t, types.DeploymentStatusDeploying, got.Status)

	// And the deployment stays tracked for the next cycle
	r.mu.Lock()
	_, tracked := r.tracked[d.ID]
	r.mu.Unlock()
	assert.True(t, tracked)

	// Once the orchestrator recovers, reconciliation resumes
	orch.StatusErr = nil
	orch.SetStatus("demo-prod", "demo", orchestrator.ServiceStatus{
		Phase:         orchestrator.PhaseRunning,
		Replicas:      1,
		ReadyReplicas: 1,
	})
	r.RunCycle(context.Background())

	got, err = store.GetDeployment(d.ID)
	require.NoError(t, err)
	assert.Equal(t, types.DeploymentStatusActive, got.Status)
}

func TestActivationSupersedesPrevious(t *testing.T) {
	r, store, orch := newTestReconciler(t)

	projectID := uuid.NewString()
	envID := uuid.NewString()
	mk := func(status types.DeploymentStatus, age time.Duration) *types.Deployment {
		d := &types.Deployment{
			ID:            uuid.NewString(),
			ProjectID:     projectID,
			BuildID:       uuid.NewString(),
			EnvironmentID: envID,
			Status:        status,
			CreatedAt:     time.Now().Add(-age),
		}
		d.SetMeta(types.MetaNamespace, "demo-prod")
		d.SetMeta(types.MetaServiceName, "demo")
		require.NoError(t, store.CreateDeployment(d))
		return d
	}

	old := mk(types.DeploymentStatusActive, time.Hour)
	fresh := mk(types.DeploymentStatusDeploying, 0)
	r.Track(fresh.ID)

	orch.SetStatus("demo-prod", "demo", orchestrator.ServiceStatus{
		Phase:         orchestrator.PhaseRunning,
		Replicas:      2,
		ReadyReplicas: 2,
	})
	r.RunCycle(context.Background())

	gotFresh, err := store.GetDeployment(fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, types.DeploymentStatusActive, gotFresh.Status)

	gotOld, err := store.GetDeployment(old.ID)
	require.NoError(t, err)
	assert.Equal(t, types.DeploymentStatusSuperseded, gotOld.Status)
	assert.Equal(t, fresh.ID, gotOld.Metadata[types.MetaSupersededBy])
}

func TestVanishedDeploymentIsUntracked(t *testing.T) {
	r, _, _ := newTestReconciler(t)
	r.Track("ghost")

	r.RunCycle(context.Background())

	r.mu.Lock()
	_, tracked := r.tracked["ghost"]
	r.mu.Unlock()
	assert.False(t, tracked)
}

func TestStartResumesNonTerminalDeployments(t *testing.T) {
	r, store, _ := newTestReconciler(t)

	inFlight := seedDeployment(t, store, types.DeploymentStatusDeploying)
	done := seedDeployment(t, store, types.DeploymentStatusActive)

	require.NoError(t, r.Start())
	defer r.Stop()

	r.mu.Lock()
	_, trackedInFlight := r.tracked[inFlight.ID]
	_, trackedDone := r.tracked[done.ID]
	r.mu.Unlock()
	assert.True(t, trackedInFlight)
	assert.False(t, trackedDone)
}
