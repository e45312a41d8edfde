package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/windlass/windlass/pkg/builder"
)

func (s *Server) handleSubmitBuild(w http.ResponseWriter, r *http.Request) {
	var spec builder.SubmitSpec
	if err := decodeJSON(r, &spec); err != nil {
		writeError(w, err)
		return
	}

	build, err := s.builds.SubmitBuild(r.Context(), spec)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, build)
}

func (s *Server) handleGetBuild(w http.ResponseWriter, r *http.Request) {
	build, err := s.builds.GetBuild(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, build)
}

func (s *Server) handleCancelBuild(w http.ResponseWriter, r *http.Request) {
	build, err := s.builds.CancelBuild(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, build)
}

func (s *Server) handleListBuilds(w http.ResponseWriter, r *http.Request) {
	projectID := mux.Vars(r)["id"]
	limit := queryInt(r, "limit", 20)
	offset := queryInt(r, "offset", 0)

	builds, total, err := s.builds.ListBuilds(r.Context(), projectID, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"builds": builds,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
