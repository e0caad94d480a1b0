package capture

import (
	"context"
	"time"
)

// Device is a capture source such as a microphone.
type Device interface {
	Supports(mimeType string) bool
	Open(ctx context.Context, c Constraints, mimeType string) (Stream, error)
}

// Stream is an open device. Flush returns the bytes captured since the last
// flush. A muted stream keeps the device open but captures nothing.
type Stream interface {
	Flush() ([]byte, error)
	Mute()
	Unmute()
	Close() error
}

// Ticker drives the flush and duration counter.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct{ t *time.Ticker }

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

func NewTimeTicker(d time.Duration) Ticker {
	return timeTicker{t: time.NewTicker(d)}
}
