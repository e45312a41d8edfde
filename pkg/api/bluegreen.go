package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/windlass/windlass/pkg/bluegreen"
	"github.com/windlass/windlass/pkg/errdefs"
)

func (s *Server) handleInitializeBlueGreen(w http.ResponseWriter, r *http.Request) {
	var spec bluegreen.InitSpec
	if err := decodeJSON(r, &spec); err != nil {
		writeError(w, err)
		return
	}

	bg, err := s.bluegreen.Initialize(r.Context(), spec)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, bg)
}

func (s *Server) handleBlueGreenStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.bluegreen.GetStatus(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

type switchRequest struct {
	Percentage *int `json:"percentage,omitempty"`
}

func (s *Server) handleBlueGreenSwitch(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req switchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	percentage := 100
	if req.Percentage != nil {
		percentage = *req.Percentage
	}
	if err := s.bluegreen.SwitchToGreen(r.Context(), id, percentage); err != nil {
		writeError(w, err)
		return
	}
	s.writeBlueGreen(w, r, id)
}

type blueGreenRollbackRequest struct {
	Reason string `json:"reason,omitempty"`
}

func (s *Server) handleBlueGreenRollback(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req blueGreenRollbackRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	reason := req.Reason
	if reason == "" {
		reason = "manual rollback to blue"
	}
	if err := s.bluegreen.RollbackToBlue(r.Context(), id, reason); err != nil {
		writeError(w, err)
		return
	}
	s.writeBlueGreen(w, r, id)
}

func (s *Server) handleBlueGreenPause(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.bluegreen.PauseSwitch(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	s.writeBlueGreen(w, r, id)
}

func (s *Server) handleBlueGreenResume(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.bluegreen.Resume(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	s.writeBlueGreen(w, r, id)
}

func (s *Server) writeBlueGreen(w http.ResponseWriter, r *http.Request, id string) {
	status, err := s.bluegreen.GetStatus(r.Context(), id)
	if err != nil {
		writeError(w, errdefs.Internal(err, "failed to load blue-green status"))
		return
	}
	writeJSON(w, http.StatusOK, status)
}
