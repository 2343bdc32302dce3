package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by services and adapters.
var (
	// ErrNotFound indicates a missing resource when no typed variant fits
	ErrNotFound = errors.New("not found")

	// ErrDocumentNotFound indicates the document does not exist
	ErrDocumentNotFound = errors.New("document not found")

	// ErrVersionNotFound indicates the requested version does not exist
	ErrVersionNotFound = errors.New("version not found")

	// ErrJobNotFound indicates the job does not exist
	ErrJobNotFound = errors.New("job not found")

	// ErrAlreadyExists indicates a uniqueness conflict
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates a request that failed validation
	ErrInvalidInput = errors.New("invalid input")

	// ErrPatchNotReady indicates the job has not produced a patch yet
	ErrPatchNotReady = errors.New("patch not ready")

	// ErrInvalidTransition indicates a job state change that the state
	// machine does not permit
	ErrInvalidTransition = errors.New("invalid job state transition")

	// ErrJobFinished indicates the job is already in a terminal state
	ErrJobFinished = errors.New("job already finished")

	// ErrJobCancelled indicates the job was cancelled by caller request
	ErrJobCancelled = errors.New("job cancelled")

	// ErrChecksumMismatch indicates stored content does not match its
	// recorded checksum
	ErrChecksumMismatch = errors.New("content checksum mismatch")

	// ErrInvalidProvider indicates an unknown collaborator provider was specified
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrServiceUnavailable indicates an external service could not be reached
	ErrServiceUnavailable = errors.New("service unavailable")
)

// BuildReason classifies why a patch could not be built from a suggestion.
type BuildReason string

const (
	BuildAmbiguousMatch      BuildReason = "ambiguous_match"
	BuildNotFound            BuildReason = "not_found"
	BuildMalformedSuggestion BuildReason = "malformed_suggestion"
)

// BuildError is returned when the patch builder cannot turn a
// collaborator suggestion into a structural patch. It terminates the
// owning job in the failed state; it is never silently dropped.
type BuildError struct {
	Reason BuildReason
	Detail string
}

func (e *BuildError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("patch build failed: %s", e.Reason)
	}
	return fmt.Sprintf("patch build failed: %s: %s", e.Reason, e.Detail)
}

// NewBuildError creates a BuildError with a formatted detail message.
func NewBuildError(reason BuildReason, format string, args ...any) *BuildError {
	return &BuildError{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// ValidationReason classifies why a patch failed validation.
type ValidationReason string

const (
	ValidationVersionMismatch ValidationReason = "version_mismatch"
	ValidationLengthMismatch  ValidationReason = "length_mismatch"
	ValidationContentDrift    ValidationReason = "content_drift"
)

// ValidationError is returned when a patch fails structural or content
// checks against a target version. Recoverable: the job records it and
// lands in failed; the orchestrator never crashes on one.
type ValidationError struct {
	Reason ValidationReason
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("patch validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("patch validation failed: %s: %s", e.Reason, e.Detail)
}

// NewValidationError creates a ValidationError with a formatted detail message.
func NewValidationError(reason ValidationReason, format string, args ...any) *ValidationError {
	return &ValidationError{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// CollaboratorErrorKind classifies model collaborator call failures.
type CollaboratorErrorKind string

const (
	CollaboratorTimeout     CollaboratorErrorKind = "timeout"
	CollaboratorRateLimited CollaboratorErrorKind = "rate_limited"
	CollaboratorUnavailable CollaboratorErrorKind = "unavailable"
	CollaboratorBadResponse CollaboratorErrorKind = "bad_response"
)

// CollaboratorError wraps a failed call to the external model
// collaborator. Transient kinds (timeout, rate limit, unavailable) are
// retried a bounded number of times; bad responses are not.
type CollaboratorError struct {
	Kind   CollaboratorErrorKind
	Detail string
	Err    error
}

func (e *CollaboratorError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("collaborator call failed: %s", e.Kind)
	}
	return fmt.Sprintf("collaborator call failed: %s: %s", e.Kind, e.Detail)
}

func (e *CollaboratorError) Unwrap() error { return e.Err }

// Transient reports whether the failure class is worth retrying.
func (e *CollaboratorError) Transient() bool {
	switch e.Kind {
	case CollaboratorTimeout, CollaboratorRateLimited, CollaboratorUnavailable:
		return true
	default:
		return false
	}
}

// StorageError wraps a persistence failure during an append or read.
// An append that fails with one leaves the document's history unchanged.
type StorageError struct {
	Op  string // "append", "read", "put", ...
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s failed: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Stable failure codes recorded on terminally failed jobs and returned
// by the API. Codes are part of the external contract; do not rename.
const (
	FailureCodeAmbiguousMatch      = "ambiguous_match"
	FailureCodeNotFound            = "target_not_found"
	FailureCodeMalformedSuggestion = "malformed_suggestion"
	FailureCodeVersionMismatch     = "version_mismatch"
	FailureCodeLengthMismatch      = "length_mismatch"
	FailureCodeContentDrift        = "content_drift"
	FailureCodeCollaborator        = "collaborator_error"
	FailureCodeTimeout             = "timeout"
	FailureCodeStorage             = "storage_error"
	FailureCodeCancelled           = "cancelled"
	FailureCodeInternal            = "internal_error"
)

// FailureCode maps any pipeline error to its stable machine-readable code.
func FailureCode(err error) string {
	var buildErr *BuildError
	if errors.As(err, &buildErr) {
		switch buildErr.Reason {
		case BuildAmbiguousMatch:
			return FailureCodeAmbiguousMatch
		case BuildNotFound:
			return FailureCodeNotFound
		default:
			return FailureCodeMalformedSuggestion
		}
	}

	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		switch validationErr.Reason {
		case ValidationVersionMismatch:
			return FailureCodeVersionMismatch
		case ValidationLengthMismatch:
			return FailureCodeLengthMismatch
		default:
			return FailureCodeContentDrift
		}
	}

	var collabErr *CollaboratorError
	if errors.As(err, &collabErr) {
		if collabErr.Kind == CollaboratorTimeout {
			return FailureCodeTimeout
		}
		return FailureCodeCollaborator
	}

	var storageErr *StorageError
	if errors.As(err, &storageErr) {
		return FailureCodeStorage
	}

	if errors.Is(err, ErrJobCancelled) {
		return FailureCodeCancelled
	}

	return FailureCodeInternal
}
