package services

import "errors"

// Deterministic outcomes are returned as-is; transient store trouble is
// retried a bounded number of times and then surfaced as ErrUnavailable.
// Notification failures never appear here at all, the dispatcher absorbs them.
var (
	ErrValidation  = errors.New("invalid input")
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrForbidden   = errors.New("forbidden")
	ErrUnavailable = errors.New("store unavailable")
)
