package errdefs

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error into the propagation categories of the platform.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindDependency
)

// Code is the stable, machine-readable error code surfaced to API callers.
type Code string

const (
	CodeProjectNotFound         Code = "ProjectNotFound"
	CodeBuildNotFound           Code = "BuildNotFound"
	CodeDeploymentNotFound      Code = "DeploymentNotFound"
	CodeEnvironmentNotFound     Code = "EnvironmentNotFound"
	CodeNoActiveProduction      Code = "NoActiveProduction"
	CodeNoActiveDeploymentFound Code = "NoActiveDeploymentFound"
	CodeBuildNotSuccessful      Code = "BuildNotSuccessful"
	CodeNoPreviousDeployment    Code = "NoPreviousDeployment"
	CodeBuildNotCancellable     Code = "BuildNotCancellable"
	CodeInvalidInput            Code = "InvalidInput"
	CodeInvalidTransition       Code = "InvalidTransition"
	CodeVersionConflict         Code = "VersionConflict"
	CodeOrchestratorUnavailable Code = "OrchestratorUnavailable"
	CodeDependencyError         Code = "DependencyError"
	CodeInternalError           Code = "InternalError"
)

// Error is the typed error returned by Windlass services. It carries a
// stable code plus a human-readable message and optionally wraps a cause.
type Error struct {
	Kind    Kind
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NotFound builds a not-found error with the given code
func NotFound(code Code, format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Validation builds a validation error rejected before any write
func Validation(code Code, format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Conflict builds an illegal-state-transition error
func Conflict(code Code, format string, args ...interface{}) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Dependency builds an error for an unreachable or failing collaborator
func Dependency(code Code, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: KindDependency, Code: code, Message: fmt.Sprintf(format, args...), Err: cause}
}

// Internal builds an unexpected error
func Internal(cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: KindInternal, Code: CodeInternalError, Message: fmt.Sprintf(format, args...), Err: cause}
}

// CodeOf extracts the stable code from err, or CodeInternalError
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternalError
}

// KindOf extracts the kind from err, or KindInternal
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsNotFound reports whether err is a not-found error
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}

// IsConflict reports whether err is an illegal state transition
func IsConflict(err error) bool {
	return KindOf(err) == KindConflict
}

// IsValidation reports whether err was rejected before any write
func IsValidation(err error) bool {
	return KindOf(err) == KindValidation
}

// IsDependency reports whether err came from an external collaborator
func IsDependency(err error) bool {
	return KindOf(err) == KindDependency
}

// HTTPStatus maps an error to the status code the API surfaces. A few
// codes carry a fixed status regardless of their kind: refusing to
// cancel or roll back is a plain bad request on the wire, not a missing
// entity or a conflict.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeNoPreviousDeployment, CodeBuildNotCancellable:
		return http.StatusBadRequest
	}
	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindDependency:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
