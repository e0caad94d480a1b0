package transcribe

import "errors"

var (
	// ErrInvalidState is returned when an operation targets an entry that is
	// not committed yet, such as editing an interim utterance.
	ErrInvalidState = errors.New("invalid state")

	// ErrSegmentNotFound is returned when no committed segment has the given id.
	ErrSegmentNotFound = errors.New("segment not found")

	ErrInvalidSplit = errors.New("invalid split point")
)
