package fusion

import (
	"fmt"

	"image-discerner/internal/domain/discern"
)

// ValidationError reports a branch result that is absent or malformed.
// It matches discern.ErrValidation under errors.Is.
type ValidationError struct {
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", discern.ErrValidation, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", discern.ErrValidation, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == discern.ErrValidation
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// PatternConfigError reports a vehicle pattern that cannot be loaded.
type PatternConfigError struct {
	Pattern string
	Field   string
	Err     error
}

func (e *PatternConfigError) Error() string {
	return fmt.Sprintf("invalid vehicle pattern %q (%s): %v", e.Pattern, e.Field, e.Err)
}

func (e *PatternConfigError) Unwrap() error {
	return e.Err
}
