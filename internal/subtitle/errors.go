package subtitle

import "errors"

var (
	ErrExportFailure = errors.New("export failed")
	ErrUnknownFormat = errors.New("unknown subtitle format")
	ErrMalformedCue  = errors.New("malformed cue")
)
