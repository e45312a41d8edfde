package rollout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windlass/windlass/pkg/health"
	"github.com/windlass/windlass/pkg/metricsvc"
	"github.com/windlass/windlass/pkg/orchestrator"
	"github.com/windlass/windlass/pkg/storage"
	"github.com/windlass/windlass/pkg/types"
)

type canaryFixture struct {
	canary  *Canary
	store   storage.Store
	orch    *orchestrator.Fake
	metrics *metricsvc.Fake

	stable *types.Deployment
	cand   *types.Deployment
}

func newCanaryFixture(t *testing.T, cfg types.CanaryConfig) *canaryFixture {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	orch := orchestrator.NewFake()
	fakeMetrics := metricsvc.NewFake()
	evaluator := health.NewEvaluator(fakeMetrics, health.DefaultThresholds())
	sched := NewScheduler()
	t.Cleanup(sched.Stop)

	if cfg.ObservationTime == 0 {
		cfg.ObservationTime = time.Hour // Gates fire only when the test calls them
	}
	canary := NewCanary(store, orch, evaluator, sched, cfg)

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

	return &canaryFixture{
		canary:  canary,
		store:   store,
		orch:    orch,
		metrics: fakeMetrics,
		stable:  mk(types.DeploymentStatusActive, time.Hour),
		cand:    mk(types.DeploymentStatusDeploying, 0),
	}
}

func TestCanaryBegin(t *testing.T) {
	f := newCanaryFixture(t, types.CanaryConfig{Steps: []int{10, 50, 100}})

	require.NoError(t, f.canary.Begin(context.Background(), f.cand))

	split := f.orch.LastSplit()
	require.NotNil(t, split)
	assert.Equal(t, 10, split.Percentage)
	assert.Equal(t, f.stable.ID, split.BlueID)
	assert.Equal(t, f.cand.ID, split.GreenID)

	got, err := f.store.GetDeployment(f.cand.ID)
	require.NoError(t, err)
	assert.Equal(t, f.stable.ID, got.Metadata[types.MetaCanaryStableID])
	assert.Equal(t, "0", got.Metadata[types.MetaCanaryStep])
}

func TestCanaryHealthyAutoPromotes(t *testing.T) {
	f := newCanaryFixture(t, types.CanaryConfig{
		Steps:       []int{10, 50, 100},
		AutoPromote: true,
	})
	require.NoError(t, f.canary.Begin(context.Background(), f.cand))

	// First observation window passes with healthy metrics
	require.NoError(t, f.canary.RunObservation(context.Background(), f.cand.ID))

	split := f.orch.LastSplit()
	require.NotNil(t, split)
	assert.Equal(t, 50, split.Percentage)

	// Second pass reaches 100% and completes the rollout
	require.NoError(t, f.canary.RunObservation(context.Background(), f.cand.ID))

	got, err := f.store.GetDeployment(f.cand.ID)
	require.NoError(t, err)
	assert.Equal(t, types.DeploymentStatusActive, got.Status)
	require.NotNil(t, got.CompletedAt)

	// Stable got demoted
	gotStable, err := f.store.GetDeployment(f.stable.ID)
	require.NoError(t, err)
	assert.Equal(t, types.DeploymentStatusSuperseded, gotStable.Status)
}

func TestCanaryUnhealthyRollsBack(t *testing.T) {
	f := newCanaryFixture(t, types.CanaryConfig{
		Steps:           []int{10, 50, 100},
		AutoPromote:     true,
		RollbackOnError: true,
	})
	require.NoError(t, f.canary.Begin(context.Background(), f.cand))

	f.metrics.Set(f.cand.ID, metricsvc.Metrics{SuccessRate: 0.80, ErrorRate: 0.20, LatencyP50: 150})
	require.NoError(t, f.canary.RunObservation(context.Background(), f.cand.ID))

	// Traffic restored to stable
	split := f.orch.LastSplit()
	require.NotNil(t, split)
	assert.Equal(t, 0, split.Percentage)

	got, err := f.store.GetDeployment(f.cand.ID)
	require.NoError(t, err)
	assert.Equal(t, types.DeploymentStatusFailed, got.Status)
	assert.NotEmpty(t, got.Metadata[types.MetaRollbackReason])
}

func TestCanaryUnhealthyWithoutRollbackPauses(t *testing.T) {
	f := newCanaryFixture(t, types.CanaryConfig{
		Steps:           []int{10, 100},
		AutoPromote:     true,
		RollbackOnError: false,
	})
	require.NoError(t, f.canary.Begin(context.Background(), f.cand))

	f.metrics.Set(f.cand.ID, metricsvc.Metrics{SuccessRate: 0.80, ErrorRate: 0.20, LatencyP50: 150})
	require.NoError(t, f.canary.RunObservation(context.Background(), f.cand.ID))

	got, err := f.store.GetDeployment(f.cand.ID)
	require.NoError(t, err)
	assert.Equal(t, types.DeploymentStatusDeploying, got.Status)
	assert.Equal(t, canaryPaused, got.Metadata[types.MetaCanaryState])

	// A paused canary ignores further observation firings
	f.metrics.Set(f.cand.ID, metricsvc.Metrics{SuccessRate: 1, ErrorRate: 0, LatencyP50: 50})
	require.NoError(t, f.canary.RunObservation(context.Background(), f.cand.ID))
	got, err = f.store.GetDeployment(f.cand.ID)
	require.NoError(t, err)
	assert.Equal(t, "0", got.Metadata[types.MetaCanaryStep])
}

func TestCanaryMetricsUnavailablePauses(t *testing.T) {
	f := newCanaryFixture(t, types.CanaryConfig{
		Steps:           []int{10, 100},
		AutoPromote:     true,
		RollbackOnError: true,
	})
	require.NoError(t, f.canary.Begin(context.Background(), f.cand))

	f.metrics.Err = errors.New("prometheus down")
	require.NoError(t, f.canary.RunObservation(context.Background(), f.cand.ID))

	// Unknown health pauses, it never rolls back
	got, err := f.store.GetDeployment(f.cand.ID)
	require.NoError(t, err)
	assert.Equal(t, types.DeploymentStatusDeploying, got.Status)
	assert.Equal(t, canaryPaused, got.Metadata[types.MetaCanaryState])
}

func TestCanaryManualPromoteWithoutAutoPromote(t *testing.T) {
	f := newCanaryFixture(t, types.CanaryConfig{
		Steps:       []int{10, 100},
		AutoPromote: false,
	})
	require.NoError(t, f.canary.Begin(context.Background(), f.cand))

	// Healthy but auto-promote off: the gate pauses
	require.NoError(t, f.canary.RunObservation(context.Background(), f.cand.ID))
	got, err := f.store.GetDeployment(f.cand.ID)
	require.NoError(t, err)
	assert.Equal(t, canaryPaused, got.Metadata[types.MetaCanaryState])

	// An operator promotes explicitly
	require.NoError(t, f.canary.Promote(context.Background(), f.cand.ID))
	got, err = f.store.GetDeployment(f.cand.ID)
	require.NoError(t, err)
	assert.Equal(t, types.DeploymentStatusActive, got.Status)
}

func TestCanaryWithoutStableSkipsSteps(t *testing.T) {
	f := newCanaryFixture(t, types.CanaryConfig{Steps: []int{10, 100}})

	// Demote the stable so no active deployment exists
	stable, err := f.store.GetDeployment(f.stable.ID)
	require.NoError(t, err)
	stable.Status = types.DeploymentStatusFailed
	require.NoError(t, f.store.UpdateDeployment(stable))

	require.NoError(t, f.canary.Begin(context.Background(), f.cand))
	assert.Nil(t, f.orch.LastSplit())
}

func TestCanarySplit(t *testing.T) {
	f := newCanaryFixture(t, types.CanaryConfig{Steps: []int{10, 50, 100}, AutoPromote: true})
	require.NoError(t, f.canary.Begin(context.Background(), f.cand))

	d, err := f.store.GetDeployment(f.cand.ID)
	require.NoError(t, err)
	assert.Equal(t, types.TrafficSplit{Stable: 90, Canary: 10}, f.canary.Split(d))

	require.NoError(t, f.canary.RunObservation(context.Background(), f.cand.ID))
	d, err = f.store.GetDeployment(f.cand.ID)
	require.NoError(t, err)
	assert.Equal(t, types.TrafficSplit{Stable: 50, Canary: 50}, f.canary.Split(d))
}
