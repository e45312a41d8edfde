package types

import (
	"time"
)

// Project represents a deployable application tracked by Windlass
type Project struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	RepoURL   string    `json:"repo_url"`
	Namespace string    `json:"namespace"` // Orchestrator namespace workloads run in
	CreatedAt time.Time `json:"created_at"`
	Version   int64     `json:"version"`
}

// Environment is a named deployment target within a project
type Environment struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	Name      string    `json:"name"` // e.g. "production", "staging"
	Namespace string    `json:"namespace"`
	CreatedAt time.Time `json:"created_at"`
	Version   int64     `json:"version"`
}

// Build is a single attempt to produce a deployable artifact from a source revision
type Build struct {
	ID             string            `json:"id"`
	ProjectID      string            `json:"project_id"`
	CommitSHA      string            `json:"commit_sha"`
	Branch         string            `json:"branch"`
	DockerfilePath string            `json:"dockerfile_path"`
	BuildArgs      map[string]string `json:"build_args,omitempty"`
	Status         BuildStatus       `json:"status"`
	Logs           string            `json:"logs,omitempty"` // Append-only
	ImageURL       string            `json:"image_url,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
	StartedAt      *time.Time        `json:"started_at,omitempty"`
	FinishedAt     *time.Time        `json:"finished_at,omitempty"`
	Version        int64             `json:"version"`
}

// BuildStatus represents the lifecycle state of a build
type BuildStatus string

const (
	BuildStatusPending   BuildStatus = "pending"
	BuildStatusQueued    BuildStatus = "queued"
	BuildStatusRunning   BuildStatus = "running"
	BuildStatusSuccess   BuildStatus = "success"
	BuildStatusFailed    BuildStatus = "failed"
	BuildStatusCancelled BuildStatus = "cancelled"
)

// buildStatusRank orders build statuses for the monotonic transition check.
// Terminal statuses share a rank so none of them can reach another.
var buildStatusRank = map[BuildStatus]int{
	BuildStatusPending:   0,
	BuildStatusQueued:    1,
	BuildStatusRunning:   2,
	BuildStatusSuccess:   3,
	BuildStatusFailed:    3,
	BuildStatusCancelled: 3,
}

// Terminal reports whether the status is final
func (s BuildStatus) Terminal() bool {
	switch s {
	case BuildStatusSuccess, BuildStatusFailed, BuildStatusCancelled:
		return true
	}
	return false
}

// CanTransition reports whether a build may move from s to next.
// Statuses only move forward and never leave a terminal state.
func (s BuildStatus) CanTransition(next BuildStatus) bool {
	if s.Terminal() {
		return false
	}
	from, ok := buildStatusRank[s]
	if !ok {
		return false
	}
	to, ok := buildStatusRank[next]
	if !ok {
		return false
	}
	return to > from
}

// Deployment is a running instance of a build targeted at an environment
type Deployment struct {
	ID            string            `json:"id"`
	ProjectID     string            `json:"project_id"`
	BuildID       string            `json:"build_id"`
	EnvironmentID string            `json:"environment_id"`
	UserID        string            `json:"user_id,omitempty"`
	Status        DeploymentStatus  `json:"status"`
	Metadata      map[string]string `json:"metadata,omitempty"` // Rollback lineage, error detail
	CreatedAt     time.Time         `json:"created_at"`
	CompletedAt   *time.Time        `json:"completed_at,omitempty"`
	Version       int64             `json:"version"`
}

// SetMeta writes a metadata key, allocating the map on first use
func (d *Deployment) SetMeta(key, value string) {
	if d.Metadata == nil {
		d.Metadata = make(map[string]string)
	}
	d.Metadata[key] = value
}

// DeploymentStatus represents the lifecycle state of a deployment
type DeploymentStatus string

const (
	DeploymentStatusPending   DeploymentStatus = "pending"
	DeploymentStatusDeploying DeploymentStatus = "deploying"
	DeploymentStatusActive    DeploymentStatus = "active"
	DeploymentStatusFailed    DeploymentStatus = "failed"

	// DeploymentStatusSuperseded marks a formerly active deployment that was
	// replaced by a newer active one. The record is retained for rollback
	// lineage; at most one deployment per (project, environment) is active.
	DeploymentStatusSuperseded DeploymentStatus = "superseded"
)

// Terminal reports whether the deployment has left the reconciliation loop
func (s DeploymentStatus) Terminal() bool {
	switch s {
	case DeploymentStatusActive, DeploymentStatusFailed, DeploymentStatusSuperseded:
		return true
	}
	return false
}

// Deployment metadata keys written by the core components.
const (
	MetaError             = "error"
	MetaStrategy          = "strategy"
	MetaNamespace         = "namespace"
	MetaServiceName       = "serviceName"
	MetaImage             = "image"
	MetaRollbackReason    = "rollbackReason"
	MetaRollbackFrom      = "rollbackFrom"
	MetaRollbackTo        = "rollbackTo"
	MetaRollbackFromImage = "rollbackFromImage"
	MetaRollbackToImage   = "rollbackToImage"
	MetaSupersededBy      = "supersededBy"
	MetaRollingStep       = "rollingStep"
	MetaRollingTotalSteps = "rollingTotalSteps"
	MetaCanaryStep        = "canaryStep"
	MetaCanaryStableID    = "canaryStableId"
	MetaCanaryState       = "canaryState"
)

// DeployStrategy defines how a build is promoted into an environment
type DeployStrategy string

const (
	DeployStrategyRolling   DeployStrategy = "rolling"
	DeployStrategyCanary    DeployStrategy = "canary"
	DeployStrategyBlueGreen DeployStrategy = "blue-green"
)

// RollingConfig controls a rolling rollout
type RollingConfig struct {
	MaxUnavailable int `json:"max_unavailable"`
	MaxSurge       int `json:"max_surge"`
	TotalSteps     int `json:"total_steps"`
}

// RollingProgress is the projection of a rolling rollout
type RollingProgress struct {
	CurrentStep int `json:"current_step"`
	TotalSteps  int `json:"total_steps"`
}

// CanaryConfig controls a canary rollout
type CanaryConfig struct {
	Steps           []int         `json:"steps"` // Ordered traffic percentages, e.g. [10, 25, 50, 100]
	ObservationTime time.Duration `json:"observation_time"`
	AutoPromote     bool          `json:"auto_promote"`
	RollbackOnError bool          `json:"rollback_on_error"`
}

// TrafficSplit is the live division of traffic between stable and canary
type TrafficSplit struct {
	Stable int `json:"stable"`
	Canary int `json:"canary"`
}

// SwitchStrategy defines how a blue-green switch moves traffic
type SwitchStrategy string

const (
	SwitchImmediate SwitchStrategy = "immediate"
	SwitchGradual   SwitchStrategy = "gradual"
	SwitchCanary    SwitchStrategy = "canary"
)

// BlueGreenStatus represents the state of a blue-green cycle
type BlueGreenStatus string

const (
	BlueGreenActiveBlue  BlueGreenStatus = "active_blue"
	BlueGreenSwitching   BlueGreenStatus = "switching"
	BlueGreenActiveGreen BlueGreenStatus = "active_green"
	BlueGreenPaused      BlueGreenStatus = "paused"
)

// BlueGreenConfig controls a blue-green switch cycle
type BlueGreenConfig struct {
	Strategy                SwitchStrategy `json:"strategy"`
	SwitchDurationMinutes   int            `json:"switch_duration_minutes,omitempty"`
	ValidationPeriodMinutes int            `json:"validation_period_minutes,omitempty"`
	AutoSwitch              bool           `json:"auto_switch"`
	RollbackOnError         bool           `json:"rollback_on_error"`
}

// BlueGreenDeployment tracks one blue-green switch cycle between two deployments
type BlueGreenDeployment struct {
	ID                string          `json:"id"`
	ProjectID         string          `json:"project_id"`
	BlueDeploymentID  string          `json:"blue_deployment_id"`  // Currently serving
	GreenDeploymentID string          `json:"green_deployment_id"` // Candidate
	Status            BlueGreenStatus `json:"status"`
	TrafficToGreen    int             `json:"traffic_to_green"` // 0-100
	Config            BlueGreenConfig `json:"config"`
	StartedAt         time.Time       `json:"started_at"`
	CompletedAt       *time.Time      `json:"completed_at,omitempty"`
	Version           int64           `json:"version"`
}

// Switching reports whether traffic is currently moving toward green
func (b *BlueGreenDeployment) Switching() bool {
	return b.Status == BlueGreenSwitching
}
