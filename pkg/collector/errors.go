package collector

import (
	"errors"
	"fmt"
)

// ErrMissingRequiredInput is returned when a required direct source for the
// target did not terminate completed. The target is skipped; the execution
// continues.
var ErrMissingRequiredInput = errors.New("missing required input")

// missingInput wraps ErrMissingRequiredInput with node context.
func missingInput(targetID, sourceID string) error {
	return fmt.Errorf("node %s: direct source %s unavailable: %w", targetID, sourceID, ErrMissingRequiredInput)
}
