package conference

import (
	"context"
	"fmt"
	"sync"
)

// Bridge issues commands once the conference is joined and tracks the
// participant and mute state reported by events.
type Bridge struct {
	engine Engine
	bus    *Bus
	tokens []Token

	mu           sync.Mutex
	ready        *Readiness
	participants map[string]Participant
	audioMuted   bool
	videoMuted   bool
	recording    bool
}

func NewBridge(engine Engine, bus *Bus) *Bridge {
	b := &Bridge{
		engine:       engine,
		bus:          bus,
		ready:        NewReadiness(),
		participants: make(map[string]Participant),
	}
	b.tokens = []Token{
		bus.Subscribe(EventConferenceJoined, b.onJoined),
		bus.Subscribe(EventConferenceLeft, b.onLeft),
		bus.Subscribe(EventParticipantJoined, b.onParticipantJoined),
		bus.Subscribe(EventParticipantLeft, b.onParticipantLeft),
		bus.Subscribe(EventAudioMuteChanged, func(ev Event) { b.set(&b.audioMuted, ev.Muted) }),
		bus.Subscribe(EventVideoMuteChanged, func(ev Event) { b.set(&b.videoMuted, ev.Muted) }),
		bus.Subscribe(EventRecordingStatusChanged, func(ev Event) { b.set(&b.recording, ev.Recording) }),
	}
	return b
}

// Close detaches the bridge from the bus.
func (b *Bridge) Close() {
	for _, t := range b.tokens {
		b.bus.Unsubscribe(t)
	}
}

func (b *Bridge) readiness() *Readiness {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ready
}

// Wait blocks until the conference is joined.
func (b *Bridge) Wait(ctx context.Context) error { return b.readiness().Wait(ctx) }

func (b *Bridge) Ready() bool { return b.readiness().Ready() }

func (b *Bridge) onJoined(Event) { b.readiness().MarkReady() }

// onLeft re-arms readiness for the next join. An unfired signal is kept so
// commands already waiting on it run after that join.
func (b *Bridge) onLeft(Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ready.Ready() {
		b.ready = NewReadiness()
	}
	b.participants = make(map[string]Participant)
	b.recording = false
}

func (b *Bridge) onParticipantJoined(ev Event) {
	role := ev.Role
	if role == "" {
		role = "participant"
	}
	b.mu.Lock()
	b.participants[ev.ParticipantID] = Participant{ID: ev.ParticipantID, DisplayName: ev.DisplayName, Role: role}
	b.mu.Unlock()
}

func (b *Bridge) onParticipantLeft(ev Event) {
	b.mu.Lock()
	delete(b.participants, ev.ParticipantID)
	b.mu.Unlock()
}

func (b *Bridge) set(field *bool, v bool) {
	b.mu.Lock()
	*field = v
	b.mu.Unlock()
}

func (b *Bridge) Participants() []Participant {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Participant, 0, len(b.participants))
	for _, p := range b.participants {
		out = append(out, p)
	}
	return out
}

// State reports audio mute, video mute and recording flags.
func (b *Bridge) State() (audioMuted, videoMuted, recording bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.audioMuted, b.videoMuted, b.recording
}

// Execute waits for readiness and forwards cmd to the engine.
func (b *Bridge) Execute(ctx context.Context, cmd Command) error {
	if err := b.Wait(ctx); err != nil {
		return err
	}
	if err := b.engine.Execute(ctx, cmd); err != nil {
		return fmt.Errorf("execute %s: %w", cmd.Name, err)
	}
	return nil
}

func (b *Bridge) ToggleAudio(ctx context.Context) error {
	return b.Execute(ctx, Command{Name: CmdToggleAudio})
}

func (b *Bridge) ToggleVideo(ctx context.Context) error {
	return b.Execute(ctx, Command{Name: CmdToggleVideo})
}

func (b *Bridge) ToggleChat(ctx context.Context) error {
	return b.Execute(ctx, Command{Name: CmdToggleChat})
}

func (b *Bridge) ShareScreen(ctx context.Context) error {
	return b.Execute(ctx, Command{Name: CmdShareScreen})
}

func (b *Bridge) StartRecording(ctx context.Context) error {
	return b.Execute(ctx, Command{Name: CmdStartRecording, Arg: map[string]any{"mode": "file", "shouldShare": false}})
}

func (b *Bridge) StopRecording(ctx context.Context) error {
	return b.Execute(ctx, Command{Name: CmdStopRecording})
}

func (b *Bridge) ToggleSubtitles(ctx context.Context) error {
	return b.Execute(ctx, Command{Name: CmdToggleSubtitles})
}

func (b *Bridge) HangUp(ctx context.Context) error {
	return b.Execute(ctx, Command{Name: CmdHangUp})
}

func (b *Bridge) SetVideoQuality(ctx context.Context, height int) error {
	return b.Execute(ctx, Command{Name: CmdSetVideoQuality, Arg: height})
}

func (b *Bridge) SendChatMessage(ctx context.Context, text string) error {
	return b.Execute(ctx, Command{Name: CmdSendChatMessage, Arg: text})
}

func (b *Bridge) SetDisplayName(ctx context.Context, name string) error {
	return b.Execute(ctx, Command{Name: CmdSetDisplayName, Arg: name})
}

func (b *Bridge) SetSubject(ctx context.Context, subject string) error {
	return b.Execute(ctx, Command{Name: CmdSetSubject, Arg: subject})
}
