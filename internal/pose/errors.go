package pose

import "errors"

var (
	// ErrMalformedInput is returned when a keypoint set lacks required landmarks
	// or cannot be normalized.
	ErrMalformedInput = errors.New("malformed keypoint set")

	// ErrClassifierUnavailable marks a failed classifier call.
	ErrClassifierUnavailable = errors.New("classifier unavailable")

	// ErrUnknownLabel is returned when a pose label is not part of the enumeration.
	ErrUnknownLabel = errors.New("unknown pose label")
)
