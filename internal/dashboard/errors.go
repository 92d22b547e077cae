package dashboard

import (
	"errors"

	"github.com/prepbrain/prepdeck/internal/controlplane"
)

// ValidationError is a local input check that failed before any network
// call was made.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func invalid(msg string) error { return &ValidationError{Msg: msg} }

// IsValidation reports whether err is a local validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Message normalises transport, application and validation errors into the
// single string shown to the operator.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Msg
	}
	var ae *controlplane.APIError
	if errors.As(err, &ae) {
		return ae.Message
	}
	return err.Error()
}
