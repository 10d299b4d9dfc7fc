package engine

import "github.com/pkg/errors"

// Status codes reported to the chat platform for domain errors.
const (
	StatusNotFound        = "NOT_FOUND"
	StatusInvalidArgument = "INVALID_ARGUMENT"
)

// DomainError is an expected failure whose message is safe to show to chat users.
type DomainError interface {
	error
	StatusCode() string
	UserFacingMessage() string
}

// NotFoundError reports a missing user story or user.
type NotFoundError struct {
	Message string
}

func (e NotFoundError) Error() string             { return e.Message }
func (e NotFoundError) StatusCode() string        { return StatusNotFound }
func (e NotFoundError) UserFacingMessage() string { return e.Message }

// BadRequestError reports invalid input or an illegal status transition.
type BadRequestError struct {
	Message string
}

func (e BadRequestError) Error() string             { return e.Message }
func (e BadRequestError) StatusCode() string        { return StatusInvalidArgument }
func (e BadRequestError) UserFacingMessage() string { return e.Message }

// AsDomainError extracts a DomainError from err's chain.
func AsDomainError(err error) (DomainError, bool) {
	var nf NotFoundError
	if errors.As(err, &nf) {
		return nf, true
	}
	var br BadRequestError
	if errors.As(err, &br) {
		return br, true
	}
	return nil, false
}

func badRequest(msg string) error { return BadRequestError{Message: msg} }

var (
	errStoryNotFound = NotFoundError{Message: "User story not found."}
	errUserNotFound  = NotFoundError{Message: "User not found."}
)
