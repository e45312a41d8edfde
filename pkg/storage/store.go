package storage

import (
	"errors"

	"github.com/windlass/windlass/pkg/types"
)

// ErrNotFound indicates the requested record does not exist.
var ErrNotFound = errors.New("storage: not found")

// ErrVersionConflict indicates a conditional write carried a stale version.
// Callers retry from a fresh read.
var ErrVersionConflict = errors.New("storage: version conflict")

// Store defines the interface for durable platform state.
// Implemented by BoltDB-backed storage.
type Store interface {
	// Projects
	CreateProject(project *types.Project) error
	GetProject(id string) (*types.Project, error)
	GetProjectBySlug(slug string) (*types.Project, error)
	ListProjects() ([]*types.Project, error)

	// Environments
	CreateEnvironment(env *types.Environment) error
	GetEnvironment(id string) (*types.Environment, error)
	GetEnvironmentByName(projectID, name string) (*types.Environment, error)
	ListEnvironmentsByProject(projectID string) ([]*types.Environment, error)

	// Builds
	CreateBuild(build *types.Build) error
	GetBuild(id string) (*types.Build, error)
	UpdateBuild(build *types.Build) error
	ListBuilds(projectID string, limit, offset int) ([]*types.Build, int, error)

	// Deployments
	CreateDeployment(deployment *types.Deployment) error
	GetDeployment(id string) (*types.Deployment, error)
	UpdateDeployment(deployment *types.Deployment) error
	ListDeployments() ([]*types.Deployment, error)
	ListDeploymentsByProject(projectID string) ([]*types.Deployment, error)
	ListDeploymentsByEnvironment(projectID, environmentID string) ([]*types.Deployment, error)

	// Blue-green cycles
	CreateBlueGreen(bg *types.BlueGreenDeployment) error
	GetBlueGreen(id string) (*types.BlueGreenDeployment, error)
	GetBlueGreenByProject(projectID string) (*types.BlueGreenDeployment, error)
	UpdateBlueGreen(bg *types.BlueGreenDeployment) error

	// Utility
	Close() error
}
