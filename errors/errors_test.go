/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestNotFoundError(t *testing.T) {
	err := NewNotFoundError("StoreUser", "alice")

	expected := `StoreUser with key "alice" not found`
	if err.Error() != expected {
		t.Errorf("Expected error message %q, got %q", expected, err.Error())
	}

	if !errors.Is(err, ErrNotFound) {
		t.Error("NotFoundError should match ErrNotFound")
	}

	if !IsNotFound(err) {
		t.Error("IsNotFound should return true for NotFoundError")
	}
}

func TestVersionConflictError(t *testing.T) {
	err := NewVersionConflictError("StoreGroup", "engineers", 3)

	expected := `StoreGroup with key "engineers" was modified concurrently (expected version 3)`
	if err.Error() != expected {
		t.Errorf("Expected error message %q, got %q", expected, err.Error())
	}

	// A version conflict is also a failed condition.
	if !IsConditionFailed(err) {
		t.Error("VersionConflictError should match ErrConditionFailed")
	}
	if !IsVersionConflict(err) {
		t.Error("IsVersionConflict should return true for VersionConflictError")
	}
	if KindOf(err) != KindVersionConflict {
		t.Errorf("Expected kind %q, got %q", KindVersionConflict, KindOf(err))
	}
}

func TestValidationError(t *testing.T) {
	tests := []struct {
		name     string
		field    string
		message  string
		expected string
	}{
		{
			name:     "with field",
			field:    "users_filter",
			message:  "must be enclosed in parentheses",
			expected: `validation failed for field "users_filter": must be enclosed in parentheses`,
		},
		{
			name:     "without field",
			field:    "",
			message:  "missing required fields",
			expected: "validation failed: missing required fields",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewValidationError(tt.field, tt.message)

			if err.Error() != tt.expected {
				t.Errorf("Expected error message %q, got %q", tt.expected, err.Error())
			}

			if !IsValidationError(err) {
				t.Error("IsValidationError should return true for ValidationError")
			}
		})
	}
}

func TestSyncErrorKinds(t *testing.T) {
	tests := []struct {
		kind     Kind
		sentinel error
	}{
		{KindConfigurationMissing, ErrConfigurationMissing},
		{KindAlreadyRunning, ErrAlreadyRunning},
		{KindDirectoryReadFailure, ErrDirectoryRead},
		{KindEntityApplyFailure, ErrEntityApply},
		{KindTerminationTimeout, ErrTerminationTimeout},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			err := New(tt.kind, "start", "")
			if !errors.Is(err, tt.sentinel) {
				t.Errorf("SyncError of kind %q should match its sentinel", tt.kind)
			}
			if !IsKind(err, tt.kind) {
				t.Errorf("IsKind(%q) should be true", tt.kind)
			}

			wrapped := fmt.Errorf("handler: %w", err)
			if KindOf(wrapped) != tt.kind {
				t.Errorf("Expected wrapped kind %q, got %q", tt.kind, KindOf(wrapped))
			}
		})
	}
}

func TestSyncErrorMessage(t *testing.T) {
	cause := fmt.Errorf("ldap: connection refused")
	err := Wrap(KindDirectoryReadFailure, "read users", cause)

	expected := "read users: directory read failed: ldap: connection refused"
	if err.Error() != expected {
		t.Errorf("Expected error message %q, got %q", expected, err.Error())
	}
	if !errors.Is(err, cause) {
		t.Error("SyncError should unwrap to its cause")
	}

	custom := New(KindConfigurationMissing, "", "missing keys: ldap_base")
	if custom.Error() != "missing keys: ldap_base" {
		t.Errorf("Unexpected message %q", custom.Error())
	}
}

func TestKindOfPlainError(t *testing.T) {
	if KindOf(nil) != KindUnknown {
		t.Error("KindOf(nil) should be KindUnknown")
	}
	if KindOf(fmt.Errorf("boom")) != KindUnknown {
		t.Error("KindOf(plain error) should be KindUnknown")
	}
}

func TestErrorWrapping(t *testing.T) {
	original := NewNotFoundError("StoreUser", "alice")
	wrapped := fmt.Errorf("store operation failed: %w", original)

	if !IsNotFound(wrapped) {
		t.Error("IsNotFound should work with wrapped errors")
	}
}

func TestSentinelErrors(t *testing.T) {
	sentinels := []error{
		ErrNotFound,
		ErrAlreadyExists,
		ErrInvalidInput,
		ErrConditionFailed,
		ErrNoIndexMap,
		ErrConfigurationMissing,
		ErrAlreadyRunning,
		ErrDirectoryRead,
		ErrEntityApply,
		ErrTerminationTimeout,
		ErrVersionConflict,
	}

	for i, err1 := range sentinels {
		for j, err2 := range sentinels {
			if i != j && errors.Is(err1, err2) {
				t.Errorf("Sentinel errors should be distinct: %v matches %v", err1, err2)
			}
		}
	}
}
