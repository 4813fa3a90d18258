// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrInvalid indicates a malformed request or out-of-range field.
var ErrInvalid = errors.New("invalid")

// ErrUnauthorized indicates the caller may not perform the operation.
var ErrUnauthorized = errors.New("unauthorized")

// ErrFeatureDisabled indicates the gating feature flag is off.
var ErrFeatureDisabled = errors.New("feature disabled")

// ErrConflict indicates a concurrent modification conflict.
var ErrConflict = errors.New("conflict: resource was modified by another request")
