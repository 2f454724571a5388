package infinote

import "errors"

// Protocol and programmer errors. None of these are retryable; operations
// that fail leave the buffer, vector and log unchanged. A request taken from
// the queue by State.Execute is not put back when its execution fails.
var (
	// ErrSpliceOutOfBounds is returned by Buffer.Splice when the splice
	// index lies past the end of the buffer.
	ErrSpliceOutOfBounds = errors.New("infinote: buffer splice operation out of bounds")

	// ErrFoldParity is returned when a request is folded by an odd amount.
	// Folds collapse do/undo or undo/redo pairs and must be multiples of 2.
	ErrFoldParity = errors.New("infinote: fold amounts must be multiples of 2")

	// ErrMergeMismatch is returned when merging a reversible delete with a
	// non-reversible one.
	ErrMergeMismatch = errors.New("infinote: cannot merge reversible and non-reversible deletes")

	// ErrMirrorUndefined is returned when mirroring a non-reversible delete.
	ErrMirrorUndefined = errors.New("infinote: cannot mirror a non-reversible delete")

	// ErrNoTranslationPath is returned by State.Translate when no sequence
	// of folds and transforms reaches the target vector.
	ErrNoTranslationPath = errors.New("infinote: could not find a translation path")

	// ErrNoAssociatedRequest is returned when an undo or redo request has no
	// matching request in the log.
	ErrNoAssociatedRequest = errors.New("infinote: no associated request in log")

	// ErrMalformedVector is returned by ParseVector for input that is not in
	// the canonical "u1:n1;u2:n2" form.
	ErrMalformedVector = errors.New("infinote: malformed vector string")
)
