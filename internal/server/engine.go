package server

import (
	"context"
	"fmt"

	"github.com/sjawhar/classroom-live/internal/conference"
)

// HubEngine executes conference commands by relaying them to the browser
// that hosts the conferencing engine.
type HubEngine struct {
	Hub *Hub
}

func (e HubEngine) Execute(ctx context.Context, cmd conference.Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !knownCommand(cmd.Name) {
		return fmt.Errorf("unknown conference command %q", cmd.Name)
	}
	if e.Hub.Clients() == 0 {
		return fmt.Errorf("%w: no conference client connected", conference.ErrNotReady)
	}
	e.Hub.broadcastEvent(ConferenceCommandEvent{
		Event:   e.Hub.event("conference_command"),
		Command: cmd,
	})
	return nil
}

// Participants is unknown without a bridge tracking roster events.
func (e HubEngine) Participants() []conference.Participant { return nil }

func knownCommand(name conference.CommandName) bool {
	switch name {
	case conference.CmdToggleAudio, conference.CmdToggleVideo, conference.CmdToggleChat,
		conference.CmdShareScreen, conference.CmdStartRecording, conference.CmdStopRecording,
		conference.CmdToggleSubtitles, conference.CmdHangUp, conference.CmdSetVideoQuality,
		conference.CmdSendChatMessage, conference.CmdSetDisplayName, conference.CmdSetSubject:
		return true
	}
	return false
}
