package orchestrator

import (
	"context"
)

// Phase is the orchestrator's view of a workload's lifecycle
type Phase string

const (
	PhasePending     Phase = "Pending"
	PhaseDeploying   Phase = "Deploying"
	PhaseRunning     Phase = "Running"
	PhaseFailed      Phase = "Failed"
	PhaseRollingBack Phase = "RollingBack"
)

// Autoscale bounds for a workload
type Autoscale struct {
	Min        int `json:"min"`
	Max        int `json:"max"`
	CPUPercent int `json:"cpu_percent"`
}

// ServiceSpec describes the workload the orchestrator should materialize
type ServiceSpec struct {
	Image        string     `json:"image"`
	Ports        []int      `json:"ports,omitempty"`
	EnvFrom      []string   `json:"env_from,omitempty"`
	Autoscale    *Autoscale `json:"autoscale,omitempty"`
	ServiceType  string     `json:"service_type,omitempty"`
	DeploymentID string     `json:"deployment_id"`
}

// ServiceStatus is the live status reported by the orchestrator
type ServiceStatus struct {
	Phase         Phase  `json:"phase"`
	CurrentImage  string `json:"current_image"`
	PreviousImage string `json:"previous_image,omitempty"`
	Replicas      int    `json:"replicas"`
	ReadyReplicas int    `json:"ready_replicas"`
	Endpoint      string `json:"endpoint,omitempty"`
}

// Client abstracts the external cluster orchestrator. All core logic
// depends on this interface only, never on a concrete transport, so
// strategies and the reconciliation loop are testable with the Fake.
type Client interface {
	// CreateService materializes (or updates) a running workload
	CreateService(ctx context.Context, namespace, name string, spec ServiceSpec) error

	// GetStatus queries live workload status
	GetStatus(ctx context.Context, namespace, name string) (*ServiceStatus, error)

	// Rollback points the workload back at targetImage
	Rollback(ctx context.Context, namespace, name, targetImage string) error

	// ConfigureTrafficSplit routes percentage of traffic to the green
	// deployment and the remainder to blue
	ConfigureTrafficSplit(ctx context.Context, namespace, blueID, greenID string, percentage int) error
}
