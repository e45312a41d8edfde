package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"

	bolt "go.etcd.io/bbolt"

	"github.com/windlass/windlass/pkg/types"
)

var (
	// Bucket names
	bucketProjects     = []byte("projects")
	bucketEnvironments = []byte("environments")
	bucketBuilds       = []byte("builds")
	bucketDeployments  = []byte("deployments")
	bucketBlueGreen    = []byte("bluegreen")
)

// BoltStore implements Store interface using BoltDB
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates a new BoltDB-backed store
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "windlass.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketProjects,
			bucketEnvironments,
			bucketBuilds,
			bucketDeployments,
			bucketBlueGreen,
		}

		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})

	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// put marshals v and stores it under id in bucket
func put(tx *bolt.Tx, bucket []byte, id string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return tx.Bucket(bucket).Put([]byte(id), data)
}

// currentVersion reads the stored version for id, or 0 when absent
func currentVersion(tx *bolt.Tx, bucket []byte, id string) (int64, error) {
	data := tx.Bucket(bucket).Get([]byte(id))
	if data == nil {
		return 0, ErrNotFound
	}
	var v struct {
		Version int64 `json:"version"`
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return 0, err
	}
	return v.Version, nil
}

// Project operations

func (s *BoltStore) CreateProject(project *types.Project) error {
	project.Version = 1
	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx, bucketProjects, project.ID, project)
	})
}

func (s *BoltStore) GetProject(id string) (*types.Project, error) {
	var project types.Project
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketProjects).Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &project)
	})
	if err != nil {
		return nil, err
	}
	return &project, nil
}

func (s *BoltStore) GetProjectBySlug(slug string) (*types.Project, error) {
	var found *types.Project
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketProjects).ForEach(func(k, v []byte) error {
			var project types.Project
			if err := json.Unmarshal(v, &project); err != nil {
				return err
			}
			if project.Slug == slug {
				found = &project
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

func (s *BoltStore) ListProjects() ([]*types.Project, error) {
	var projects []*types.Project
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketProjects).ForEach(func(k, v []byte) error {
			var project types.Project
			if err := json.Unmarshal(v, &project); err != nil {
				return err
			}
			projects = append(projects, &project)
			return nil
		})
	})
	return projects, err
}

// Environment operations

func (s *BoltStore) CreateEnvironment(env *types.Environment) error {
	env.Version = 1
	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx, bucketEnvironments, env.ID, env)
	})
}

func (s *BoltStore) GetEnvironment(id string) (*types.Environment, error) {
	var env types.Environment
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketEnvironments).Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &env)
	})
	if err != nil {
		return nil, err
	}
	return &env, nil
}

func (s *BoltStore) GetEnvironmentByName(projectID, name string) (*types.Environment, error) {
	var found *types.Environment
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketEnvironments).ForEach(func(k, v []byte) error {
			var env types.Environment
			if err := json.Unmarshal(v, &env); err != nil {
				return err
			}
			if env.ProjectID == projectID && env.Name == name {
				found = &env
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

func (s *BoltStore) ListEnvironmentsByProject(projectID string) ([]*types.Environment, error) {
	var envs []*types.Environment
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketEnvironments).ForEach(func(k, v []byte) error {
			var env types.Environment
			if err := json.Unmarshal(v, &env); err != nil {
				return err
			}
			if env.ProjectID == projectID {
				envs = append(envs, &env)
			}
			return nil
		})
	})
	return envs, err
}

// Build operations

func (s *BoltStore) CreateBuild(build *types.Build) error {
	build.Version = 1
	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx, bucketBuilds, build.ID, build)
	})
}

func (s *BoltStore) GetBuild(id string) (*types.Build, error) {
	var build types.Build
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketBuilds).Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &build)
	})
	if err != nil {
		return nil, err
	}
	return &build, nil
}

// UpdateBuild performs a conditional write: the build's Version must match
// the stored version, otherwise ErrVersionConflict is returned and the
// caller retries from a fresh read.
func (s *BoltStore) UpdateBuild(build *types.Build) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		stored, err := currentVersion(tx, bucketBuilds, build.ID)
		if err != nil {
			return err
		}
		if stored != build.Version {
			return ErrVersionConflict
		}
		build.Version++
		return put(tx, bucketBuilds, build.ID, build)
	})
}

// ListBuilds returns one page of builds for a project, newest first,
// along with the total count before pagination. An empty projectID
// matches all projects.
func (s *BoltStore) ListBuilds(projectID string, limit, offset int) ([]*types.Build, int, error) {
	var builds []*types.Build
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketBuilds).ForEach(func(k, v []byte) error {
			var build types.Build
			if err := json.Unmarshal(v, &build); err != nil {
				return err
			}
			if projectID == "" || build.ProjectID == projectID {
				builds = append(builds, &build)
			}
			return nil
		})
	})
	if err != nil {
		return nil, 0, err
	}

	sort.Slice(builds, func(i, j int) bool {
		return builds[i].CreatedAt.After(builds[j].CreatedAt)
	})

	total := len(builds)
	if offset >= total {
		return []*types.Build{}, total, nil
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	return builds[offset:end], total, nil
}

// Deployment operations

func (s *BoltStore) CreateDeployment(deployment *types.Deployment) error {
	deployment.Version = 1
	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx, bucketDeployments, deployment.ID, deployment)
	})
}

func (s *BoltStore) GetDeployment(id string) (*types.Deployment, error) {
	var deployment types.Deployment
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketDeployments).Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &deployment)
	})
	if err != nil {
		return nil, err
	}
	return &deployment, nil
}

// UpdateDeployment performs a conditional write, see UpdateBuild.
func (s *BoltStore) UpdateDeployment(deployment *types.Deployment) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		stored, err := currentVersion(tx, bucketDeployments, deployment.ID)
		if err != nil {
			return err
		}
		if stored != deployment.Version {
			return ErrVersionConflict
		}
		deployment.Version++
		return put(tx, bucketDeployments, deployment.ID, deployment)
	})
}

func (s *BoltStore) ListDeployments() ([]*types.Deployment, error) {
	var deployments []*types.Deployment
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketDeployments).ForEach(func(k, v []byte) error {
			var deployment types.Deployment
			if err := json.Unmarshal(v, &deployment); err != nil {
				return err
			}
			deployments = append(deployments, &deployment)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sortDeployments(deployments)
	return deployments, nil
}

func (s *BoltStore) ListDeploymentsByProject(projectID string) ([]*types.Deployment, error) {
	deployments, err := s.ListDeployments()
	if err != nil {
		return nil, err
	}
	var filtered []*types.Deployment
	for _, d := range deployments {
		if d.ProjectID == projectID {
			filtered = append(filtered, d)
		}
	}
	return filtered, nil
}

func (s *BoltStore) ListDeploymentsByEnvironment(projectID, environmentID string) ([]*types.Deployment, error) {
	deployments, err := s.ListDeployments()
	if err != nil {
		return nil, err
	}
	var filtered []*types.Deployment
	for _, d := range deployments {
		if d.ProjectID == projectID && d.EnvironmentID == environmentID {
			filtered = append(filtered, d)
		}
	}
	return filtered, nil
}

// sortDeployments orders newest first
func sortDeployments(deployments []*types.Deployment) {
	sort.Slice(deployments, func(i, j int) bool {
		return deployments[i].CreatedAt.After(deployments[j].CreatedAt)
	})
}

// Blue-green operations

func (s *BoltStore) CreateBlueGreen(bg *types.BlueGreenDeployment) error {
	bg.Version = 1
	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx, bucketBlueGreen, bg.ID, bg)
	})
}

func (s *BoltStore) GetBlueGreen(id string) (*types.BlueGreenDeployment, error) {
	var bg types.BlueGreenDeployment
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketBlueGreen).Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &bg)
	})
	if err != nil {
		return nil, err
	}
	return &bg, nil
}

// GetBlueGreenByProject returns the most recently started cycle for a project
func (s *BoltStore) GetBlueGreenByProject(projectID string) (*types.BlueGreenDeployment, error) {
	var found *types.BlueGreenDeployment
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketBlueGreen).ForEach(func(k, v []byte) error {
			var bg types.BlueGreenDeployment
			if err := json.Unmarshal(v, &bg); err != nil {
				return err
			}
			if bg.ProjectID == projectID {
				if found == nil || bg.StartedAt.After(found.StartedAt) {
					found = &bg
				}
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

// UpdateBlueGreen performs a conditional write, see UpdateBuild.
func (s *BoltStore) UpdateBlueGreen(bg *types.BlueGreenDeployment) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		stored, err := currentVersion(tx, bucketBlueGreen, bg.ID)
		if err != nil {
			return err
		}
		if stored != bg.Version {
			return ErrVersionConflict
		}
		bg.Version++
		return put(tx, bucketBlueGreen, bg.ID, bg)
	})
}
