package store

import "fmt"

// Store operations report failures through these typed errors; route handlers
// translate them to HTTP statuses with errors.As, so wrapped chains survive.

// NotFoundError: the resource does not exist, or the caller cannot see it.
// Handlers deliberately use the same body for both cases.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

// ExpiredError: the resource exists but its lifetime has lapsed. Session
// validation uses it to tell a stale token apart from an unknown one.
type ExpiredError struct {
	Resource string
	ID       string
}

func (e *ExpiredError) Error() string {
	return fmt.Sprintf("%s %q has expired", e.Resource, e.ID)
}

// ValidationError: the request payload fails a field-level check.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// ConflictError: the write collides with existing state, e.g. a taken email
// or an identity link that would displace an established one. Code is a
// stable machine-readable tag; Details optionally carries the colliding ids.
type ConflictError struct {
	Message string
	Code    string
	Details map[string]interface{}
}

func (e *ConflictError) Error() string {
	return e.Message
}

// ForbiddenError: the caller is authenticated but not allowed to touch the
// resource.
type ForbiddenError struct{}

func (e *ForbiddenError) Error() string {
	return "forbidden"
}
