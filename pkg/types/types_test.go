package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildStatusTransitions(t *testing.T) {
	tests := []struct {
		from    BuildStatus
		to      BuildStatus
		allowed bool
	}{
		{BuildStatusPending, BuildStatusQueued, true},
		{BuildStatusPending, BuildStatusRunning, true},
		{BuildStatusPending, BuildStatusCancelled, true},
		{BuildStatusQueued, BuildStatusRunning, true},
		{BuildStatusRunning, BuildStatusSuccess, true},
		{BuildStatusRunning, BuildStatusFailed, true},
		{BuildStatusRunning, BuildStatusCancelled, true},

		// No going backwards
		{BuildStatusQueued, BuildStatusPending, false},
		{BuildStatusRunning, BuildStatusQueued, false},

		// Terminal states are final
		{BuildStatusSuccess, BuildStatusFailed, false},
		{BuildStatusFailed, BuildStatusRunning, false},
		{BuildStatusCancelled, BuildStatusSuccess, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"_to_"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransition(tt.to))
		})
	}
}

func TestBuildStatusTerminal(t *testing.T) {
	assert.False(t, BuildStatusPending.Terminal())
	assert.False(t, BuildStatusQueued.Terminal())
	assert.False(t, BuildStatusRunning.Terminal())
	assert.True(t, BuildStatusSuccess.Terminal())
	assert.True(t, BuildStatusFailed.Terminal())
	assert.True(t, BuildStatusCancelled.Terminal())
}

func TestDeploymentStatusTerminal(t *testing.T) {
	assert.False(t, DeploymentStatusPending.Terminal())
	assert.False(t, DeploymentStatusDeploying.Terminal())
	assert.True(t, DeploymentStatusActive.Terminal())
	assert.True(t, DeploymentStatusFailed.Terminal())
	assert.True(t, DeploymentStatusSuperseded.Terminal())
}

func TestSetMeta(t *testing.T) {
	var d Deployment
	d.SetMeta(MetaImage, "registry/app:v2")
	d.SetMeta(MetaNamespace, "prod")

	assert.Equal(t, "registry/app:v2", d.Metadata[MetaImage])
	assert.Equal(t, "prod", d.Metadata[MetaNamespace])
}

func TestBlueGreenSwitching(t *testing.T) {
	bg := BlueGreenDeployment{Status: BlueGreenSwitching}
	assert.True(t, bg.Switching())
	bg.Status = BlueGreenActiveBlue
	assert.False(t, bg.Switching())
}
