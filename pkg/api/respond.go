package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/windlass/windlass/pkg/errdefs"
	"github.com/windlass/windlass/pkg/log"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger := log.WithComponent("api")
		logger.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, errdefs.HTTPStatus(err), errorBody{
		Error: errorDetail{
			Code:    string(errdefs.CodeOf(err)),
			Message: err.Error(),
		},
	})
}

// decodeJSON parses the request body into v. An empty body is allowed
// and leaves v zero-valued.
func decodeJSON(r *http.Request, v interface{}) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if err != nil && err != io.EOF {
		return errdefs.Validation(errdefs.CodeInvalidInput, "invalid request body: %v", err)
	}
	return nil
}
