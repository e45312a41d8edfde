package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/windlass/windlass/pkg/errdefs"
	"github.com/windlass/windlass/pkg/storage"
	"github.com/windlass/windlass/pkg/types"
)

type createProjectRequest struct {
	Name      string `json:"name"`
	Slug      string `json:"slug,omitempty"`
	RepoURL   string `json:"repo_url"`
	Namespace string `json:"namespace,omitempty"`
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req createProjectRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Name == "" || req.RepoURL == "" {
		writeError(w, errdefs.Validation(errdefs.CodeInvalidInput, "name and repo_url are required"))
		return
	}

	slug := req.Slug
	if slug == "" {
		slug = strings.ToLower(strings.ReplaceAll(req.Name, " ", "-"))
	}
	namespace := req.Namespace
	if namespace == "" {
		namespace = slug
	}

	project := &types.Project{
		ID:        uuid.NewString(),
		Name:      req.Name,
		Slug:      slug,
		RepoURL:   req.RepoURL,
		Namespace: namespace,
		CreatedAt: time.Now(),
	}
	if err := s.store.CreateProject(project); err != nil {
		writeError(w, errdefs.Internal(err, "failed to create project"))
		return
	}
	writeJSON(w, http.StatusCreated, project)
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	project, err := s.store.GetProject(id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, errdefs.NotFound(errdefs.CodeProjectNotFound, "project %s not found", id))
			return
		}
		writeError(w, errdefs.Internal(err, "failed to load project"))
		return
	}
	writeJSON(w, http.StatusOK, project)
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.store.ListProjects()
	if err != nil {
		writeError(w, errdefs.Internal(err, "failed to list projects"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"projects": projects})
}

type createEnvironmentRequest struct {
	Name      string `json:"name"`
	Namespace string `json:"namespace,omitempty"`
}

func (s *Server) handleCreateEnvironment(w http.ResponseWriter, r *http.Request) {
	projectID := mux.Vars(r)["id"]
	var req createEnvironmentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Name == "" {
		writeError(w, errdefs.Validation(errdefs.CodeInvalidInput, "name is required"))
		return
	}

	project, err := s.store.GetProject(projectID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, errdefs.NotFound(errdefs.CodeProjectNotFound, "project %s not found", projectID))
			return
		}
		writeError(w, errdefs.Internal(err, "failed to load project"))
		return
	}

	namespace := req.Namespace
	if namespace == "" {
		namespace = project.Namespace + "-" + req.Name
	}

	env := &types.Environment{
		ID:        uuid.NewString(),
		ProjectID: project.ID,
		Name:      req.Name,
		Namespace: namespace,
		CreatedAt: time.Now(),
	}
	if err := s.store.CreateEnvironment(env); err != nil {
		writeError(w, errdefs.Internal(err, "failed to create environment"))
		return
	}
	writeJSON(w, http.StatusCreated, env)
}

func (s *Server) handleListEnvironments(w http.ResponseWriter, r *http.Request) {
	projectID := mux.Vars(r)["id"]
	envs, err := s.store.ListEnvironmentsByProject(projectID)
	if err != nil {
		writeError(w, errdefs.Internal(err, "failed to list environments"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"environments": envs})
}
