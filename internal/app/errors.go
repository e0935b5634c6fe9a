package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/dig"

	"delivery-orchestrator/internal/apperr"
)

// Process exit codes.
const (
	ExitOK               = 0
	ExitConfig           = 1
	ExitStoreUnreachable = 2
	ExitInvariant        = 3
)

// ErrConfig marks configuration and usage errors.
var ErrConfig = errors.New("configuration error")

func configError(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrConfig, err)
}

func usageError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfig, fmt.Sprintf(format, args...))
}

// ExitCode maps the error a command ended with to its exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	root := dig.RootCause(err)
	is := func(target error) bool {
		return errors.Is(err, target) || errors.Is(root, target)
	}
	switch {
	case is(apperr.ErrInvariantViolation):
		return ExitInvariant
	case is(ErrConfig):
		return ExitConfig
	case is(apperr.ErrStoreUnavailable):
		return ExitStoreUnreachable
	case is(context.Canceled):
		return ExitOK
	default:
		return ExitConfig
	}
}
