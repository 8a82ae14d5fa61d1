package trip

import "errors"

var (
	// ErrUnknownNamespace is returned when a series name's namespace matches
	// neither an active sensor nor an active processor.
	ErrUnknownNamespace = errors.New("unknown series namespace")

	// ErrInconsistentSecondaryDirectory is returned by Recalculate when the
	// secondary directory still holds files after the old derived series
	// were removed.
	ErrInconsistentSecondaryDirectory = errors.New("secondary directory is not empty")

	// ErrClosed is returned by Publish and Close on a live trip that has
	// already been closed.
	ErrClosed = errors.New("trip is closed")

	// ErrPrimaryReadOnly is returned when a logged trip is asked to create or
	// append to a primary series.
	ErrPrimaryReadOnly = errors.New("primary series of a logged trip are read-only")

	// ErrInvalidSeriesName is returned for names that are empty or contain
	// path separators.
	ErrInvalidSeriesName = errors.New("invalid series name")
)
