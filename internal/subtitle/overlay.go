package subtitle

import (
	"sync"
	"time"

	"github.com/sjawhar/classroom-live/internal/transcribe"
)

// Frame is what the overlay shows for one cursor position.
type Frame struct {
	Visible  bool            `json:"visible"`
	Lines    []Line          `json:"lines"`
	Settings DisplaySettings `json:"settings"`
}

// Overlay wraps a Renderer with visibility state. With AutoHide set, an empty
// caption set starts a countdown that hides the overlay; any newly active
// segment cancels it. A manual hide holds until a manual show, and a manual
// show suppresses auto-hide until captions appear again.
type Overlay struct {
	mu           sync.Mutex
	renderer     Renderer
	visible      bool
	manualHidden bool
	pinned       bool
	timer        *time.Timer
	gen          uint64

	onVisibility func(bool)
	afterFunc    func(time.Duration, func()) *time.Timer
}

func NewOverlay(renderer Renderer, onVisibility func(visible bool)) *Overlay {
	return &Overlay{
		renderer:     renderer,
		visible:      true,
		onVisibility: onVisibility,
		afterFunc:    time.AfterFunc,
	}
}

func (o *Overlay) Settings() DisplaySettings {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.renderer.Settings
}

// SetSettings swaps display settings; a disabled AutoHide cancels any pending
// countdown.
func (o *Overlay) SetSettings(s DisplaySettings) {
	o.mu.Lock()
	o.renderer.Settings = s
	if !s.AutoHide {
		o.cancelLocked()
	}
	o.mu.Unlock()
}

// Update renders the captions for cursor and advances the auto-hide state.
func (o *Overlay) Update(cursor time.Duration, segments []transcribe.Segment) Frame {
	o.mu.Lock()
	lines := o.renderer.Render(cursor, segments)
	changed := false

	switch {
	case o.manualHidden:
	case len(lines) > 0:
		o.cancelLocked()
		o.pinned = false
		if !o.visible {
			o.visible = true
			changed = true
		}
	case o.renderer.Settings.AutoHide && o.visible && !o.pinned && o.timer == nil:
		o.gen++
		gen := o.gen
		o.timer = o.afterFunc(o.renderer.Settings.HideDelay(), func() { o.expire(gen) })
	}

	frame := Frame{Visible: o.visible, Lines: lines, Settings: o.renderer.Settings}
	o.mu.Unlock()

	if changed {
		o.notify(true)
	}
	return frame
}

// SetVisible applies a manual show or hide.
func (o *Overlay) SetVisible(visible bool) {
	o.mu.Lock()
	o.cancelLocked()
	o.manualHidden = !visible
	o.pinned = visible
	changed := o.visible != visible
	o.visible = visible
	o.mu.Unlock()

	if changed {
		o.notify(visible)
	}
}

func (o *Overlay) Visible() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.visible
}

// Close cancels any pending countdown.
func (o *Overlay) Close() {
	o.mu.Lock()
	o.cancelLocked()
	o.mu.Unlock()
}

func (o *Overlay) expire(gen uint64) {
	o.mu.Lock()
	if gen != o.gen || o.timer == nil {
		o.mu.Unlock()
		return
	}
	o.timer = nil
	changed := o.visible
	o.visible = false
	o.mu.Unlock()

	if changed {
		o.notify(false)
	}
}

func (o *Overlay) cancelLocked() {
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
	o.gen++
}

func (o *Overlay) notify(visible bool) {
	if o.onVisibility != nil {
		o.onVisibility(visible)
	}
}
