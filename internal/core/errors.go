package core

import "fmt"

// ValidationError reports malformed or missing input, such as an unknown
// category or an empty item batch. Pricing and aggregation failures abort
// the whole batch they belong to.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func validationf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// NotFoundError reports a referenced project, estimation, purchase request,
// or item that does not exist.
type NotFoundError struct {
	Msg string
}

func (e *NotFoundError) Error() string { return e.Msg }

func notFoundf(format string, args ...any) error {
	return &NotFoundError{Msg: fmt.Sprintf(format, args...)}
}

// ConflictError reports a request that contradicts current state: quantity
// over availability, a non-editable item lifecycle state, or submitted
// values that diverged from stored values since the requester last read
// them. Details carries one message per offending item when a batch check
// collects multiple violations.
type ConflictError struct {
	Msg     string
	Details []string
}

func (e *ConflictError) Error() string { return e.Msg }

func conflictf(format string, args ...any) error {
	return &ConflictError{Msg: fmt.Sprintf(format, args...)}
}

// StateError reports an action invalid for the entity's current status,
// such as editing a non-draft purchase request.
type StateError struct {
	Msg string
}

func (e *StateError) Error() string { return e.Msg }

func statef(format string, args ...any) error {
	return &StateError{Msg: fmt.Sprintf(format, args...)}
}

// PermissionError reports a state transition attempted by a role that is
// not allowed to perform it.
type PermissionError struct {
	Msg string
}

func (e *PermissionError) Error() string { return e.Msg }

func permissionf(format string, args ...any) error {
	return &PermissionError{Msg: fmt.Sprintf(format, args...)}
}
