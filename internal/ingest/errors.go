package ingest

import "errors"

var (
	ErrStreamDisconnected = errors.New("transcription stream disconnected")
	ErrInvalidState       = errors.New("invalid ingest state")
	ErrHandleClosed       = errors.New("ingest handle already closed")
)
