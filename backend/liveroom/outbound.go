package liveroom

import (
	"context"
	"errors"
	"slices"

	"github.com/9pphy4fbqg-dev/sancia-dapp/backend/chat"
	"github.com/9pphy4fbqg-dev/sancia-dapp/backend/moderation"
	"github.com/9pphy4fbqg-dev/sancia-dapp/backend/protocol"
	"github.com/9pphy4fbqg-dev/sancia-dapp/backend/session"
)

// SendChat appends the message locally and broadcasts it. A failed send
// leaves the local copy in place.
func (r *Room) SendChat(ctx context.Context, text string) (chat.Message, error) {
	msg, err := r.chat.Compose(r.Identity(), text, r.now())
	if err != nil {
		return chat.Message{}, err
	}
	r.emit(Event{Kind: EventChat, Identity: msg.From, Chat: &msg})

	b, err := protocol.EncodeChat(msg)
	if err != nil {
		return msg, err
	}
	return msg, r.send(ctx, b)
}

// RequestMic asks the publisher for a speaker slot.
func (r *Room) RequestMic(ctx context.Context) error {
	if err := r.viewerCan(); err != nil {
		return err
	}
	if !r.speaker.Request() {
		return ErrAlreadyRequested
	}
	if err := r.signal(ctx, protocol.KindMicRequest, ""); err != nil {
		r.speaker.Cancel()
		return err
	}
	return nil
}

func (r *Room) CancelMicRequest(ctx context.Context) error {
	if err := r.viewerCan(); err != nil {
		return err
	}
	if !r.speaker.Cancel() {
		return ErrNoPendingRequest
	}
	return r.signal(ctx, protocol.KindCancelMicRequest, "")
}

// LeaveMic gives the speaker slot back and closes the microphone. While the
// microphone is still being opened it fails with session.ErrToggleInFlight
// and the slot is kept.
func (r *Room) LeaveMic(ctx context.Context) error {
	if err := r.viewerCan(); err != nil {
		return err
	}
	if !r.speaker.Connected() {
		return ErrNotSpeaking
	}
	err := r.sess.SetDevice(ctx, session.Microphone, false)
	switch {
	case errors.Is(err, session.ErrToggleInFlight):
		return err
	case err != nil:
		r.emit(Event{Kind: EventError, Device: session.Microphone, Err: err})
	}
	if !r.speaker.Leave() {
		return ErrNotSpeaking
	}
	r.sess.GrantMicrophone(false)
	return r.signal(ctx, protocol.KindLeaveMic, "")
}

// ApproveMic promotes one pending viewer to speaker.
func (r *Room) ApproveMic(ctx context.Context, viewer string) error {
	if err := r.publisherCan(); err != nil {
		return err
	}
	if !slices.Contains(r.queue.Pending(), viewer) {
		return moderation.ErrUnknownRequester
	}
	if err := r.signal(ctx, protocol.KindApproveMic, viewer); err != nil {
		return err
	}
	return r.queue.Approve(viewer)
}

func (r *Room) RejectMic(ctx context.Context, viewer string) error {
	if err := r.publisherCan(); err != nil {
		return err
	}
	if !slices.Contains(r.queue.Pending(), viewer) {
		return moderation.ErrUnknownRequester
	}
	if err := r.signal(ctx, protocol.KindRejectMic, viewer); err != nil {
		return err
	}
	return r.queue.Reject(viewer)
}

// DisconnectMic revokes a speaker slot. The viewer is expected to close its
// microphone on receipt; nothing confirms that it did.
func (r *Room) DisconnectMic(ctx context.Context, viewer string) error {
	if err := r.publisherCan(); err != nil {
		return err
	}
	if !r.queue.IsSpeaker(viewer) {
		return moderation.ErrUnknownSpeaker
	}
	if err := r.signal(ctx, protocol.KindDisconnectMic, viewer); err != nil {
		return err
	}
	return r.queue.Disconnect(viewer)
}

func (r *Room) viewerCan() error {
	switch {
	case !r.opts.EnableMicRequest:
		return ErrMicRequestDisabled
	case r.sess.Role() != session.Viewer:
		return ErrWrongRole
	case r.sess.State() != session.Connected:
		return session.ErrNotConnected
	}
	return nil
}

func (r *Room) publisherCan() error {
	switch {
	case !r.opts.EnableMicRequest:
		return ErrMicRequestDisabled
	case r.sess.Role() != session.Publisher:
		return ErrWrongRole
	case r.sess.State() != session.Connected:
		return session.ErrNotConnected
	}
	return nil
}

func (r *Room) signal(ctx context.Context, kind protocol.Kind, to string) error {
	b, err := protocol.EncodeSignal(protocol.NewSignal(kind, r.Identity(), to, r.now()))
	if err != nil {
		return errors.Join(ErrSend, err)
	}
	return r.send(ctx, b)
}
