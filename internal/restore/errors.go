package restore

import "errors"

var (
	// ErrNoPartsFound means no filenames matched the part pattern.
	ErrNoPartsFound = errors.New("no matching archive parts found")

	// ErrValidationFailed means at least one part failed its integrity
	// scan; extraction never starts in that case.
	ErrValidationFailed = errors.New("archive validation failed")

	// ErrAbortedByUser means the caller declined to continue past a gap
	// in the part sequence. It is a deliberate outcome, not a defect.
	ErrAbortedByUser = errors.New("aborted by user")
)
