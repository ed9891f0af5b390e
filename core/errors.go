package core

import (
	"fmt"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

// NewStructValidationError converts validator.ValidationErrors into a *ValidationError with translated messages.
// Any other error is returned as is.
func NewStructValidationError(err error, translator ut.Translator) error {
	vErrs, ok := errors.Cause(err).(validator.ValidationErrors)
	if !ok {
		return err
	}
	flds := make([]FieldError, 0, len(vErrs))
	for _, vErr := range vErrs {
		flds = append(flds, FieldError{Field: vErr.Field(), Error: vErr.Translate(translator)})
	}
	return NewValidationError(errors.New("invalid input"), flds...)
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}

// AuthorizationError is returned when an actor lacks the role or assignment an action requires.
type AuthorizationError struct {
	ActorID string
	Action  string
	Reason  string
}

func NewAuthorizationError(actorID, action, reason string) error {
	return &AuthorizationError{ActorID: actorID, Action: action, Reason: reason}
}

func (err AuthorizationError) Error() string {
	return fmt.Sprintf("%s: permission denied for %q: %s", err.Action, err.ActorID, err.Reason)
}

// StateConflictError is returned when a record is not in the state a transition expects.
// The record is left untouched.
type StateConflictError struct {
	ID   string
	From string
	To   string
}

func NewStateConflictError(id, from, to string) error {
	return &StateConflictError{ID: id, From: from, To: to}
}

func (err StateConflictError) Error() string {
	return fmt.Sprintf("%s: cannot move from %q to %q", err.ID, err.From, err.To)
}

func IsValidation(err error) bool {
	var vErr *ValidationError
	return errors.As(err, &vErr)
}

func IsAuthorization(err error) bool {
	var aErr *AuthorizationError
	return errors.As(err, &aErr)
}

func IsStateConflict(err error) bool {
	var sErr *StateConflictError
	return errors.As(err, &sErr)
}
