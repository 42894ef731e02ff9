package liveroom

import (
	"github.com/9pphy4fbqg-dev/sancia-dapp/backend/chat"
	"github.com/9pphy4fbqg-dev/sancia-dapp/backend/session"
)

type EventKind int

const (
	EventState EventKind = iota
	EventDevice
	EventChat
	EventPresence
	EventMicRequested
	EventMicCancelled
	EventMicApproved
	EventMicRejected
	EventSpeakerLeft
	EventSpeakerDisconnected
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventState:
		return "state"
	case EventDevice:
		return "device"
	case EventChat:
		return "chat"
	case EventPresence:
		return "presence"
	case EventMicRequested:
		return "mic_requested"
	case EventMicCancelled:
		return "mic_cancelled"
	case EventMicApproved:
		return "mic_approved"
	case EventMicRejected:
		return "mic_rejected"
	case EventSpeakerLeft:
		return "speaker_left"
	case EventSpeakerDisconnected:
		return "speaker_disconnected"
	case EventError:
		return "error"
	}
	return "unknown"
}

// Event is what a front end renders. Only the fields relevant to Kind are set;
// Enabled doubles as "joined" for presence events.
type Event struct {
	Kind     EventKind
	State    session.State
	Device   session.Device
	Enabled  bool
	Identity string
	Chat     *chat.Message
	Err      error
}
