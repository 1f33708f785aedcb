package predictor

import (
	"errors"
	"fmt"
	"net/http"
)

// InputError reports a malformed prediction input. The HTTP layer maps it to 400.
type InputError struct {
	Field string
	Msg   string
}

func (e *InputError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Msg
	}
	return fmt.Sprintf("invalid input field %q: %s", e.Field, e.Msg)
}

// StatusCode implements the HTTP layer's HTTPError interface.
func (e *InputError) StatusCode() int { return http.StatusBadRequest }

func inputErrorf(field, format string, args ...any) error {
	return &InputError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

// IsInputError reports whether err (or anything it wraps) is an InputError.
func IsInputError(err error) bool {
	var ie *InputError
	return errors.As(err, &ie)
}
