// Package conference is the contract with the external conferencing engine:
// the commands the classroom issues and the events it consumes.
package conference

import (
	"context"
	"errors"
	"time"

	"github.com/sjawhar/classroom-live/internal/transcribe"
)

var ErrNotReady = errors.New("conference not ready")

type CommandName string

const (
	CmdToggleAudio     CommandName = "toggleAudio"
	CmdToggleVideo     CommandName = "toggleVideo"
	CmdToggleChat      CommandName = "toggleChat"
	CmdShareScreen     CommandName = "shareScreen"
	CmdStartRecording  CommandName = "startRecording"
	CmdStopRecording   CommandName = "stopRecording"
	CmdToggleSubtitles CommandName = "toggleSubtitles"
	CmdHangUp          CommandName = "hangUp"
	CmdSetVideoQuality CommandName = "setVideoQuality"
	CmdSendChatMessage CommandName = "sendChatMessage"
	CmdSetDisplayName  CommandName = "setDisplayName"
	CmdSetSubject      CommandName = "setSubject"
)

// Command is one instruction for the conferencing engine. Arg carries the
// single parameter of setVideoQuality, sendChatMessage, setDisplayName and
// setSubject.
type Command struct {
	Name CommandName `json:"name"`
	Arg  any         `json:"arg,omitempty"`
}

// Engine executes commands on the conferencing engine.
type Engine interface {
	Execute(ctx context.Context, cmd Command) error
}

type EventKind string

const (
	EventConferenceJoined           EventKind = "conferenceJoined"
	EventConferenceLeft             EventKind = "conferenceLeft"
	EventParticipantJoined          EventKind = "participantJoined"
	EventParticipantLeft            EventKind = "participantLeft"
	EventAudioMuteChanged           EventKind = "audioMuteChanged"
	EventVideoMuteChanged           EventKind = "videoMuteChanged"
	EventRecordingStatusChanged     EventKind = "recordingStatusChanged"
	EventTranscriptionChunkReceived EventKind = "transcriptionChunkReceived"
)

func (k EventKind) Valid() bool {
	switch k {
	case EventConferenceJoined, EventConferenceLeft, EventParticipantJoined, EventParticipantLeft,
		EventAudioMuteChanged, EventVideoMuteChanged, EventRecordingStatusChanged, EventTranscriptionChunkReceived:
		return true
	}
	return false
}

// Event is one notification from the conferencing engine. Only the fields
// relevant to Kind are set.
type Event struct {
	Kind          EventKind             `json:"kind"`
	RoomName      string                `json:"roomName,omitempty"`
	ParticipantID string                `json:"participantId,omitempty"`
	DisplayName   string                `json:"displayName,omitempty"`
	Role          string                `json:"role,omitempty"`
	Muted         bool                  `json:"muted,omitempty"`
	Recording     bool                  `json:"on,omitempty"`
	Chunk         *transcribe.Utterance `json:"chunk,omitempty"`
	At            time.Time             `json:"at,omitzero"`
}

type Participant struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Role        string `json:"role"`
}
