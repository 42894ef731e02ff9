package liveroom

import (
	"context"
	"errors"

	"github.com/9pphy4fbqg-dev/sancia-dapp/backend/protocol"
	"github.com/9pphy4fbqg-dev/sancia-dapp/backend/session"
)

// HandleData processes one payload received on the data channel. src is the
// sender as stamped by the relay. Malformed payloads and unknown signal kinds
// are dropped.
func (r *Room) HandleData(src string, payload []byte) {
	env, err := protocol.Decode(payload)
	if err != nil {
		r.logger.Warn().Err(err).Str("src", src).Msg("dropping data channel payload")
		return
	}

	switch {
	case env.Chat != nil:
		r.handleChat(src, *env.Chat)
	case env.Signal != nil:
		r.handleSignal(src, *env.Signal)
	}
}

func (r *Room) handleChat(src string, msg protocol.Chat) {
	if src != "" && src != msg.From {
		r.logger.Warn().Str("src", src).Str("from", msg.From).Msg("chat sender mismatch")
		return
	}
	if r.chat.Receive(msg, r.Identity()) {
		r.emit(Event{Kind: EventChat, Identity: msg.From, Chat: &msg})
	}
}

func (r *Room) handleSignal(src string, sig protocol.Signal) {
	logger := r.logger.With().Str("type", string(sig.Type)).Str("from", sig.From).Logger()

	switch {
	case !r.opts.EnableMicRequest:
		logger.Debug().Msg("mic requests disabled, ignoring signal")
		return
	case !sig.Type.Known():
		logger.Debug().Msg("ignoring unknown signal kind")
		return
	case src != "" && src != sig.From:
		logger.Warn().Str("src", src).Msg("signal sender mismatch")
		return
	case sig.From == r.Identity():
		return
	case sig.Type.Addressed() && sig.To != r.Identity():
		return
	case !sig.AddressedTo(r.Identity()):
		return
	}

	if r.sess.Role() == session.Publisher {
		r.publisherSignal(sig)
	} else {
		r.viewerSignal(sig)
	}
}

func (r *Room) publisherSignal(sig protocol.Signal) {
	switch sig.Type {
	case protocol.KindMicRequest:
		if r.queue.Request(sig.From) {
			r.emit(Event{Kind: EventMicRequested, Identity: sig.From})
		}
	case protocol.KindCancelMicRequest:
		if r.queue.Cancel(sig.From) {
			r.emit(Event{Kind: EventMicCancelled, Identity: sig.From})
		}
	case protocol.KindLeaveMic:
		if r.queue.Leave(sig.From) {
			r.emit(Event{Kind: EventSpeakerLeft, Identity: sig.From})
		}
	}
}

func (r *Room) viewerSignal(sig protocol.Signal) {
	ctx := context.Background()
	switch sig.Type {
	case protocol.KindApproveMic:
		if !r.speaker.Approve() {
			return
		}
		r.sess.GrantMicrophone(true)
		r.emit(Event{Kind: EventMicApproved, Identity: sig.From})
		if err := r.sess.SetDevice(ctx, session.Microphone, true); err != nil {
			r.emit(Event{Kind: EventError, Device: session.Microphone, Err: err})
			if r.speaker.Leave() {
				// tell the publisher we could not take the slot
				r.sess.GrantMicrophone(false)
				_ = r.signal(ctx, protocol.KindLeaveMic, "")
			}
			return
		}
		if !r.speaker.Connected() {
			// the slot was revoked while the microphone was opening
			r.dropMicrophone(ctx)
		}
	case protocol.KindRejectMic:
		if r.speaker.Reject() {
			r.emit(Event{Kind: EventMicRejected, Identity: sig.From})
		}
	case protocol.KindDisconnectMic:
		if !r.speaker.Disconnect() {
			return
		}
		r.dropMicrophone(ctx)
		r.emit(Event{Kind: EventSpeakerDisconnected, Identity: r.Identity()})
	}
}

// dropMicrophone closes the microphone and revokes the grant. An enable still
// in flight is left to the approve path, which closes the microphone once it
// finds the slot gone.
func (r *Room) dropMicrophone(ctx context.Context) {
	err := r.sess.SetDevice(ctx, session.Microphone, false)
	if err != nil && !errors.Is(err, session.ErrToggleInFlight) {
		r.emit(Event{Kind: EventError, Device: session.Microphone, Err: err})
	}
	r.sess.GrantMicrophone(false)
}
