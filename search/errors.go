package search

import (
	"errors"
	"fmt"
)

// ErrIndexCorrupt indicates a persisted index failed self-description
// validation on load. The index it was being restored into is unchanged.
var ErrIndexCorrupt = errors.New("index corrupt")

// ValidationError reports malformed caller input (empty query, negative
// topK). It is returned before any provider call is made.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
