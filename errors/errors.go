/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package errors

import (
	"errors"
	"fmt"
)

// Common sentinel errors
var (
	// ErrNotFound is returned when a record is not found
	ErrNotFound = errors.New("record not found")

	// ErrAlreadyExists is returned when attempting to create a record that already exists
	ErrAlreadyExists = errors.New("record already exists")

	// ErrInvalidInput is returned when input validation fails
	ErrInvalidInput = errors.New("invalid input")

	// ErrConditionFailed is returned when a conditional write fails
	ErrConditionFailed = errors.New("condition check failed")

	// ErrNoIndexMap is returned when no index map is found for a type
	ErrNoIndexMap = errors.New("no index map found for type")
)

// Sentinels for each Kind, so callers may use errors.Is as well as KindOf.
var (
	ErrConfigurationMissing = errors.New("directory configuration missing")
	ErrAlreadyRunning       = errors.New("reconciliation run already in process")
	ErrDirectoryRead        = errors.New("directory read failed")
	ErrEntityApply          = errors.New("entity apply failed")
	ErrTerminationTimeout   = errors.New("run did not terminate in time")
	ErrVersionConflict      = errors.New("version conflict")
)

// Kind classifies a reconciliation failure.
type Kind string

const (
	KindUnknown              Kind = ""
	KindConfigurationMissing Kind = "ConfigurationMissing"
	KindAlreadyRunning       Kind = "AlreadyRunning"
	KindDirectoryReadFailure Kind = "DirectoryReadFailure"
	KindEntityApplyFailure   Kind = "EntityApplyFailure"
	KindTerminationTimeout   Kind = "TerminationTimeout"
	KindVersionConflict      Kind = "VersionConflict"
)

var kindSentinels = map[Kind]error{
	KindConfigurationMissing: ErrConfigurationMissing,
	KindAlreadyRunning:       ErrAlreadyRunning,
	KindDirectoryReadFailure: ErrDirectoryRead,
	KindEntityApplyFailure:   ErrEntityApply,
	KindTerminationTimeout:   ErrTerminationTimeout,
	KindVersionConflict:      ErrVersionConflict,
}

// SyncError carries a Kind along with the operation and cause.
type SyncError struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *SyncError) Error() string {
	msg := e.Message
	if msg == "" {
		if sentinel, ok := kindSentinels[e.Kind]; ok {
			msg = sentinel.Error()
		} else {
			msg = string(e.Kind)
		}
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

func (e *SyncError) Is(target error) bool {
	sentinel, ok := kindSentinels[e.Kind]
	return ok && target == sentinel
}

// NotFoundError represents an error when a record is not found
type NotFoundError struct {
	Type string
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with key %q not found", e.Type, e.Key)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// AlreadyExistsError represents an error when a record already exists
type AlreadyExistsError struct {
	Type string
	Key  string
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("%s with key %q already exists", e.Type, e.Key)
}

func (e *AlreadyExistsError) Is(target error) bool {
	return target == ErrAlreadyExists
}

// ValidationError represents an input validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for field %q: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// ConditionFailedError represents a failed conditional write
type ConditionFailedError struct {
	Operation string
	Condition string
}

func (e *ConditionFailedError) Error() string {
	return fmt.Sprintf("condition check failed for %s operation: %s", e.Operation, e.Condition)
}

func (e *ConditionFailedError) Is(target error) bool {
	return target == ErrConditionFailed
}

// VersionConflictError is a ConditionFailedError on the record version.
type VersionConflictError struct {
	Type     string
	Key      string
	Expected int64
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("%s with key %q was modified concurrently (expected version %d)", e.Type, e.Key, e.Expected)
}

func (e *VersionConflictError) Is(target error) bool {
	return target == ErrConditionFailed || target == ErrVersionConflict
}

// Helper functions for creating errors

// NewNotFoundError creates a new NotFoundError
func NewNotFoundError(entityType, key string) error {
	return &NotFoundError{Type: entityType, Key: key}
}

// NewAlreadyExistsError creates a new AlreadyExistsError
func NewAlreadyExistsError(entityType, key string) error {
	return &AlreadyExistsError{Type: entityType, Key: key}
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// NewConditionFailedError creates a new ConditionFailedError
func NewConditionFailedError(operation, condition string) error {
	return &ConditionFailedError{Operation: operation, Condition: condition}
}

// NewVersionConflictError creates a new VersionConflictError
func NewVersionConflictError(entityType, key string, expected int64) error {
	return &VersionConflictError{Type: entityType, Key: key, Expected: expected}
}

// New creates a SyncError of the given kind.
func New(kind Kind, op, message string) error {
	return &SyncError{Kind: kind, Op: op, Message: message}
}

// Wrap creates a SyncError of the given kind around err.
func Wrap(kind Kind, op string, err error) error {
	return &SyncError{Kind: kind, Op: op, Err: err}
}

// KindOf returns the Kind of the first SyncError in err's chain.
// Version conflicts reported by a store are classified even when unwrapped.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var se *SyncError
	if errors.As(err, &se) {
		return se.Kind
	}
	if errors.Is(err, ErrVersionConflict) {
		return KindVersionConflict
	}
	return KindUnknown
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if an error is an already exists error
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsConditionFailed checks if an error is a condition failed error
func IsConditionFailed(err error) bool {
	return errors.Is(err, ErrConditionFailed)
}

// IsVersionConflict checks if an error is a version conflict
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}
