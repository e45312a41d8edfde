package errdefs

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"not found", NotFound(CodeProjectNotFound, "gone"), http.StatusNotFound},
		{"validation", Validation(CodeBuildNotSuccessful, "bad build"), http.StatusBadRequest},
		{"conflict", Conflict(CodeInvalidTransition, "build is terminal"), http.StatusConflict},
		{"dependency", Dependency(CodeOrchestratorUnavailable, errors.New("refused"), "down"), http.StatusInternalServerError},
		{"not cancellable is a bad request", Conflict(CodeBuildNotCancellable, "too late"), http.StatusBadRequest},
		{"no previous deployment is a bad request", Validation(CodeNoPreviousDeployment, "nothing to restore"), http.StatusBadRequest},
		{"internal", Internal(errors.New("boom"), "broke"), http.StatusInternalServerError},
		{"plain error", errors.New("anonymous"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, HTTPStatus(tt.err))
		})
	}
}

func TestCodeSurvivesWrapping(t *testing.T) {
	inner := NotFound(CodeDeploymentNotFound, "deployment d-1 not found")
	wrapped := fmt.Errorf("while rolling back: %w", inner)

	assert.Equal(t, CodeDeploymentNotFound, CodeOf(wrapped))
	assert.True(t, IsNotFound(wrapped))
	assert.Equal(t, http.StatusNotFound, HTTPStatus(wrapped))
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := Dependency(CodeOrchestratorUnavailable, cause, "orchestrator unreachable")

	assert.ErrorIs(t, err, cause)
	assert.True(t, IsDependency(err))
}

func TestKindHelpers(t *testing.T) {
	assert.True(t, IsValidation(Validation(CodeInvalidInput, "empty")))
	assert.True(t, IsConflict(Conflict(CodeVersionConflict, "stale")))
	assert.False(t, IsNotFound(Validation(CodeInvalidInput, "empty")))
	assert.False(t, IsValidation(errors.New("plain")))
}

func TestCodeOfPlainError(t *testing.T) {
	assert.Equal(t, CodeInternalError, CodeOf(errors.New("plain")))
}
