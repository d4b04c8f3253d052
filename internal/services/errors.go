package services

import (
	"errors"
	"fmt"
)

var (
	ErrValidation          = errors.New("validation failed")
	ErrDuplicateSubmission = errors.New("profile already submitted for this identifier")
	ErrNotFound            = errors.New("not found")
	ErrStateConflict       = errors.New("status does not allow this action")
	ErrInvitationInvalid   = errors.New("invitation code invalid")
	ErrExternalService     = errors.New("external service failure")
	ErrCodeSpaceExhausted  = errors.New("could not generate a unique invitation code")
)

// ValidationError reports a malformed or out-of-range field
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// InvitationReason distinguishes why a code could not be used
type InvitationReason string

const (
	InvitationNotFound InvitationReason = "not_found"
	InvitationUsed     InvitationReason = "used"
	InvitationExpired  InvitationReason = "expired"
	InvitationDisabled InvitationReason = "disabled"
	InvitationMissing  InvitationReason = "missing"
)

// InvitationError carries the user-facing reason a code was refused
type InvitationError struct {
	Code    string
	Reason  InvitationReason
	Message string
}

func (e *InvitationError) Error() string {
	return e.Message
}

func (e *InvitationError) Unwrap() error {
	return ErrInvitationInvalid
}

// StateConflictError names the status that blocked a transition
type StateConflictError struct {
	ProfileID uint
	Current   string
	Action    string
}

func (e *StateConflictError) Error() string {
	return fmt.Sprintf("当前状态(%s)不允许%s", e.Current, e.Action)
}

func (e *StateConflictError) Unwrap() error {
	return ErrStateConflict
}
