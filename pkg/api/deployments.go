package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/windlass/windlass/pkg/deploy"
	"github.com/windlass/windlass/pkg/rollback"
)

func (s *Server) handleCreateDeployment(w http.ResponseWriter, r *http.Request) {
	var spec deploy.CreateSpec
	if err := decodeJSON(r, &spec); err != nil {
		writeError(w, err)
		return
	}

	deployment, err := s.deploys.Create(r.Context(), spec)
	if err != nil {
		writeError(w, err)
		return
	}

	// Strategy driving starts once the record exists; a failure here is
	// visible on the record, not the create response
	if err := s.engine.Begin(r.Context(), deployment.ID); err != nil {
		s.logger.Error().Err(err).Str("deployment_id", deployment.ID).Msg("failed to begin rollout")
	}
	writeJSON(w, http.StatusCreated, deployment)
}

func (s *Server) handleGetDeployment(w http.ResponseWriter, r *http.Request) {
	deployment, err := s.deploys.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deployment)
}

func (s *Server) handleListDeployments(w http.ResponseWriter, r *http.Request) {
	deployments, err := s.deploys.ListByProject(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"deployments": deployments})
}

func (s *Server) handleLatestDeployment(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	deployment, err := s.deploys.Active(r.Context(), vars["id"], vars["env"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deployment)
}

func (s *Server) handlePreviousDeployment(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	deployment, err := s.deploys.Previous(r.Context(), vars["id"], vars["env"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deployment)
}

func (s *Server) handlePromoteCanary(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.engine.Canary().Promote(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	deployment, err := s.deploys.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deployment)
}

func (s *Server) handleResumeCanary(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.engine.Canary().Resume(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	deployment, err := s.deploys.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deployment)
}

func (s *Server) handleRollback(w http.ResponseWriter, r *http.Request) {
	var req rollback.Request
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := s.rollbacks.Rollback(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
