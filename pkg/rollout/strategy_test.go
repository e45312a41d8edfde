package rollout

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windlass/windlass/pkg/errdefs"
	"github.com/windlass/windlass/pkg/health"
	"github.com/windlass/windlass/pkg/metricsvc"
	"github.com/windlass/windlass/pkg/orchestrator"
	"github.com/windlass/windlass/pkg/storage"
	"github.com/windlass/windlass/pkg/types"
)

func newEngineFixture(t *testing.T) (*Engine, storage.Store, *orchestrator.Fake) {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	orch := orchestrator.NewFake()
	evaluator := health.NewEvaluator(metricsvc.NewFake(), health.DefaultThresholds())
	sched := NewScheduler()
	t.Cleanup(sched.Stop)

	return NewEngine(store, orch, evaluator, sched, DefaultParams()), store, orch
}

func seedStrategyDeployment(t *testing.T, store storage.Store, strategy types.DeployStrategy) *types.Deployment {
	t.Helper()
	d := &types.Deployment{
		ID:            uuid.NewString(),
		ProjectID:     uuid.NewString(),
		BuildID:       uuid.NewString(),
		EnvironmentID: uuid.NewString(),
		Status:        types.DeploymentStatusDeploying,
	}
	d.SetMeta(types.MetaNamespace, "demo-prod")
	d.SetMeta(types.MetaServiceName, "demo")
	if strategy != "" {
		d.SetMeta(types.MetaStrategy, string(strategy))
	}
	require.NoError(t, store.CreateDeployment(d))
	return d
}

func TestEngineBeginRolling(t *testing.T) {
	engine, store, _ := newEngineFixture(t)
	d := seedStrategyDeployment(t, store, types.DeployStrategyRolling)

	require.NoError(t, engine.Begin(context.Background(), d.ID))

	got, err := store.GetDeployment(d.ID)
	require.NoError(t, err)
	assert.Equal(t, "0", got.Metadata[types.MetaRollingStep])
}

func TestEngineBeginCanary(t *testing.T) {
	engine, store, orch := newEngineFixture(t)
	d := seedStrategyDeployment(t, store, types.DeployStrategyCanary)

	stable := &types.Deployment{
		ID:            uuid.NewString(),
		ProjectID:     d.ProjectID,
		BuildID:       uuid.NewString(),
		EnvironmentID: d.EnvironmentID,
		Status:        types.DeploymentStatusActive,
	}
	require.NoError(t, store.CreateDeployment(stable))

	require.NoError(t, engine.Begin(context.Background(), d.ID))

	got, err := store.GetDeployment(d.ID)
	require.NoError(t, err)
	assert.Equal(t, "0", got.Metadata[types.MetaCanaryStep])
	assert.Equal(t, stable.ID, got.Metadata[types.MetaCanaryStableID])

	split := orch.LastSplit()
	require.NotNil(t, split)
	assert.Equal(t, DefaultParams().Canary.Steps[0], split.Percentage)
}

func TestEngineBeginPlainDeploymentIsNoop(t *testing.T) {
	engine, store, orch := newEngineFixture(t)
	d := seedStrategyDeployment(t, store, "")

	require.NoError(t, engine.Begin(context.Background(), d.ID))

	got, err := store.GetDeployment(d.ID)
	require.NoError(t, err)
	assert.NotContains(t, got.Metadata, types.MetaRollingStep)
	assert.Nil(t, orch.LastSplit())
}

func TestEngineBeginUnknownDeployment(t *testing.T) {
	engine, _, _ := newEngineFixture(t)

	err := engine.Begin(context.Background(), uuid.NewString())
	assert.Equal(t, errdefs.CodeDeploymentNotFound, errdefs.CodeOf(err))
}
