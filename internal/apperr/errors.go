package apperr

import "errors"

// ErrInvalid is returned when the input fails domain validation.
var ErrInvalid = errors.New("invalid input")

// ErrNotFound indicates that the requested document does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned by inserts whose natural key already exists.
// Safe to swallow while replaying events.
var ErrDuplicate = errors.New("duplicate key")

// ErrNotMatched means a conditional update lost the race: zero or several
// documents matched the expected prior state.
var ErrNotMatched = errors.New("not matched")

// ErrStoreUnavailable wraps transport level failures of the store.
var ErrStoreUnavailable = errors.New("store unavailable")

// ErrCommitConflict is returned by the committer after it compensated a
// half-done assignment.
var ErrCommitConflict = errors.New("commit conflict")

// ErrInvariantViolation is fatal to the partition that observed it.
var ErrInvariantViolation = errors.New("invariant violation")

// Unavailable wraps err so that errors.Is(err, ErrStoreUnavailable) holds.
func Unavailable(err error) error {
	if err == nil {
		return nil
	}
	return &wrapped{kind: ErrStoreUnavailable, err: err}
}

type wrapped struct {
	kind error
	err  error
}

func (w *wrapped) Error() string { return w.kind.Error() + ": " + w.err.Error() }

func (w *wrapped) Unwrap() []error { return []error{w.kind, w.err} }
