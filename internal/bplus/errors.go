package bplus

import "github.com/cockroachdb/errors"

// Error kinds the page engine raises (spec §7). The engine recovers
// nothing locally — every kind propagates to the caller; invariant
// violations are corruption bugs and must not be swallowed.
var (
	// ErrNotFound is returned by Remove when the key is absent.
	ErrNotFound = errors.New("bplus: key not found")

	// ErrFormat marks an unrecognized page kind or key-form tag on
	// deserialize.
	ErrFormat = errors.New("bplus: page format error")

	// ErrInvariant marks a linked-list back-pointer mismatch during
	// delete/merge, or an unexpected `first` during rebalance. Fatal:
	// signals corruption, not a recoverable condition.
	ErrInvariant = errors.New("bplus: invariant violation")
)

// wrapIO marks err as originating from the record manager, propagated
// verbatim per §7's io-error policy.
func wrapIO(op string, err error) error {
	if err == nil {
		return nil
	}
	return errors.Wrapf(err, "bplus: %s", op)
}

func formatErrorf(format string, args ...any) error {
	return errors.WithStack(errors.Mark(errors.Newf(format, args...), ErrFormat))
}

func invariantErrorf(format string, args ...any) error {
	return errors.WithStack(errors.Mark(errors.Newf(format, args...), ErrInvariant))
}
