package notify

import (
	"github.com/windlass/windlass/pkg/types"
)

// Notifier receives platform events. Delivery is fire-and-forget:
// implementations must never block or fail the caller.
type Notifier interface {
	DeploymentCreated(deploymentID string)
	DeploymentStatusChange(deploymentID string, oldStatus, newStatus types.DeploymentStatus)
	Alert(kind, severity, message string, metadata map[string]string)
}

// Discard is a Notifier that drops everything. Useful in tests.
type Discard struct{}

func (Discard) DeploymentCreated(string)                                               {}
func (Discard) DeploymentStatusChange(string, types.DeploymentStatus, types.DeploymentStatus) {}
func (Discard) Alert(string, string, string, map[string]string)                        {}

// Multi fans out to several notifiers in order
type Multi []Notifier

func (m Multi) DeploymentCreated(id string) {
	for _, n := range m {
		n.DeploymentCreated(id)
	}
}

func (m Multi) DeploymentStatusChange(id string, oldStatus, newStatus types.DeploymentStatus) {
	for _, n := range m {
		n.DeploymentStatusChange(id, oldStatus, newStatus)
	}
}

func (m Multi) Alert(kind, severity, message string, metadata map[string]string) {
	for _, n := range m {
		n.Alert(kind, severity, message, metadata)
	}
}
