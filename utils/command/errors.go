package command

import (
	"errors"
	"fmt"

	"github.com/kris-hansen/redbiomctl/utils/grammar"
)

var (
	// ErrUnknownOperation is returned when the family/action pair is not in the grammar
	ErrUnknownOperation = grammar.ErrUnknownOperation
	// ErrMissingRequiredFlag matches any *MissingRequiredFlagError
	ErrMissingRequiredFlag = errors.New("missing required flag")
	// ErrInvalidFlagValue matches any *InvalidFlagValueError
	ErrInvalidFlagValue = errors.New("invalid flag value")
)

// MissingRequiredFlagError names a required flag (or required positional) that was not supplied
type MissingRequiredFlagError struct {
	Flag string
}

func (e *MissingRequiredFlagError) Error() string {
	return fmt.Sprintf("missing required flag %s", e.Flag)
}

// Is lets errors.Is match ErrMissingRequiredFlag
func (e *MissingRequiredFlagError) Is(target error) bool {
	return target == ErrMissingRequiredFlag
}

// InvalidFlagValueError reports a value that failed a type, range or choice check
type InvalidFlagValueError struct {
	Flag   string
	Reason string
}

func (e *InvalidFlagValueError) Error() string {
	return fmt.Sprintf("invalid value for %s: %s", e.Flag, e.Reason)
}

// Is lets errors.Is match ErrInvalidFlagValue
func (e *InvalidFlagValueError) Is(target error) bool {
	return target == ErrInvalidFlagValue
}

func invalid(flag, format string, args ...interface{}) error {
	return &InvalidFlagValueError{Flag: flag, Reason: fmt.Sprintf(format, args...)}
}
