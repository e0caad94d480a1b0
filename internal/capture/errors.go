package capture

import "errors"

var (
	ErrDeviceUnavailable = errors.New("capture device unavailable")
	ErrInvalidState      = errors.New("invalid capture state")
	ErrNoRecording       = errors.New("no recording data")
)
