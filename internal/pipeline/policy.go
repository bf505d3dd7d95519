package pipeline

import (
	"errors"
	"fmt"
)

// FailurePolicy decides what happens when a processor fails mid-chain.
type FailurePolicy string

const (
	// FailFast stops the chain at the first processor error.
	FailFast FailurePolicy = "fail_fast"
	// BestEffort logs the error, records a warning and runs the next processor.
	BestEffort FailurePolicy = "best_effort"
)

// ErrUnknownPolicy is returned when a failure policy name is not recognized.
var ErrUnknownPolicy = errors.New("unknown failure policy")

// ParseFailurePolicy parses a policy name. The empty string is FailFast.
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch FailurePolicy(s) {
	case "", FailFast:
		return FailFast, nil
	case BestEffort:
		return BestEffort, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
	}
}
