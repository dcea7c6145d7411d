package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorMessages(t *testing.T) {
	require.Equal(t, `conversation "c1" not found`, (&NotFoundError{Resource: "conversation", ID: "c1"}).Error())
	require.Equal(t, `session "s1" has expired`, (&ExpiredError{Resource: "session", ID: "s1"}).Error())
	require.Equal(t, "invalid direction: must be growing or decreasing", (&ValidationError{Field: "direction", Message: "must be growing or decreasing"}).Error())
	require.Equal(t, "bot account already linked", (&ConflictError{Message: "bot account already linked", Code: "bot-already-linked"}).Error())
	require.Equal(t, "forbidden", (&ForbiddenError{}).Error())
}

// Handlers match store errors with errors.As after layers of %w wrapping, so
// each type has to survive a wrapped chain.
func TestErrorsMatchThroughWrapping(t *testing.T) {
	wrap := func(err error) error {
		return fmt.Errorf("load owner: %w", fmt.Errorf("query: %w", err))
	}

	var notFound *NotFoundError
	require.ErrorAs(t, wrap(&NotFoundError{Resource: "account", ID: "a1"}), &notFound)
	require.Equal(t, "account", notFound.Resource)

	var expired *ExpiredError
	require.ErrorAs(t, wrap(&ExpiredError{Resource: "session", ID: "s1"}), &expired)
	require.Equal(t, "s1", expired.ID)

	var validation *ValidationError
	require.ErrorAs(t, wrap(&ValidationError{Field: "name", Message: "must not be empty"}), &validation)
	require.Equal(t, "name", validation.Field)

	var conflict *ConflictError
	require.ErrorAs(t, wrap(&ConflictError{Message: "email taken", Code: "account-exists"}), &conflict)
	require.Equal(t, "account-exists", conflict.Code)

	var forbidden *ForbiddenError
	require.ErrorAs(t, wrap(&ForbiddenError{}), &forbidden)

	// A NotFoundError must never satisfy a ConflictError target.
	conflict = nil
	require.False(t, errors.As(wrap(&NotFoundError{Resource: "account", ID: "a1"}), &conflict))
}
