// Package liveroom drives one participant's view of a live room: the
// session lifecycle, chat, and the request-to-speak handshake, all carried
// over a single broadcast data channel.
//
// Every screen flavour is the same Room with different Options.
package liveroom

import (
	"context"
	"errors"
	"time"

	"github.com/9pphy4fbqg-dev/sancia-dapp/backend/chat"
	"github.com/9pphy4fbqg-dev/sancia-dapp/backend/credential"
	"github.com/9pphy4fbqg-dev/sancia-dapp/backend/moderation"
	"github.com/9pphy4fbqg-dev/sancia-dapp/backend/session"
	"github.com/rs/zerolog"
)

var (
	ErrMicRequestDisabled = errors.New("mic requests are disabled in this room")
	ErrWrongRole          = errors.New("operation is not available for this role")
	ErrAlreadyRequested   = errors.New("mic request already sent or granted")
	ErrNoPendingRequest   = errors.New("no pending mic request")
	ErrNotSpeaking        = errors.New("not a connected speaker")
	ErrSend               = errors.New("unable to send to room")
)

type (
	// Options replace the per-screen copies: adaptive remote quality and
	// whether viewers may ask to speak.
	Options struct {
		AdaptiveQuality  bool `yaml:"adaptive_quality"`
		EnableMicRequest bool `yaml:"enable_mic_request"`
	}

	// Transport is the room connection plus its broadcast data channel.
	Transport interface {
		session.Transport
		Publish(ctx context.Context, payload []byte) error
	}

	Config struct {
		RoomID         string
		Identity       string
		Role           session.Role
		Options        Options
		Transport      Transport
		Media          session.Media
		Logger         *zerolog.Logger
		MaxChatHistory int
		Now            func() time.Time
		OnEvent        func(Event)
	}

	Room struct {
		opts    Options
		tr      Transport
		sess    *session.Session
		chat    *chat.Log
		queue   *moderation.Queue
		speaker *moderation.Speaker
		now     func() time.Time
		onEvent func(Event)
		logger  zerolog.Logger
	}
)

func New(cfg Config) *Room {
	r := &Room{
		opts:    cfg.Options,
		tr:      cfg.Transport,
		chat:    chat.NewLog(cfg.MaxChatHistory),
		queue:   moderation.NewQueue(),
		speaker: moderation.NewSpeaker(),
		now:     cfg.Now,
		onEvent: cfg.OnEvent,
		logger: cfg.Logger.With().
			Str("component", "liveroom").
			Str("roomID", cfg.RoomID).
			Str("identity", cfg.Identity).
			Str("role", cfg.Role.String()).
			Logger(),
	}
	if r.now == nil {
		r.now = time.Now
	}
	r.sess = session.New(session.Config{
		RoomID:          cfg.RoomID,
		Identity:        cfg.Identity,
		Role:            cfg.Role,
		AdaptiveQuality: cfg.Options.AdaptiveQuality,
		Transport:       cfg.Transport,
		Media:           cfg.Media,
		Logger:          cfg.Logger,
		OnState:         r.stateChanged,
		OnDevice: func(d session.Device, enabled bool) {
			r.emit(Event{Kind: EventDevice, Device: d, Enabled: enabled})
		},
	})
	return r
}

func (r *Room) Identity() string { return r.sess.Identity() }

func (r *Room) Session() session.Snapshot { return r.sess.Snapshot() }

func (r *Room) Messages() []chat.Message { return r.chat.Messages() }

// Pending lists viewers waiting for the publisher's decision.
func (r *Room) Pending() []string { return r.queue.Pending() }

// Speakers lists viewers currently allowed to speak.
func (r *Room) Speakers() []string { return r.queue.Speakers() }

func (r *Room) SpeakerState() moderation.SpeakerState { return r.speaker.State() }

// MicConnected is true on a viewer that was approved and has not left.
func (r *Room) MicConnected() bool { return r.speaker.Connected() }

func (r *Room) Join(ctx context.Context, cred credential.State) error {
	return r.sess.Connect(ctx, cred)
}

func (r *Room) Leave(ctx context.Context) error {
	return r.sess.Disconnect(ctx)
}

func (r *Room) Toggle(ctx context.Context, d session.Device) error {
	return r.sess.Toggle(ctx, d)
}

// HandleTransportState forwards connection changes reported by the transport.
func (r *Room) HandleTransportState(st session.State) {
	r.sess.HandleTransportState(st)
}

func (r *Room) stateChanged(st session.State) {
	if st == session.Disconnected {
		r.speaker.Reset()
		r.queue.Reset()
	}
	r.emit(Event{Kind: EventState, State: st})
}

// HandlePresence reacts to relay presence. A participant that left can no
// longer answer, so the publisher drops its request and speaker slot.
func (r *Room) HandlePresence(identity string, joined bool) {
	r.emit(Event{Kind: EventPresence, Identity: identity, Enabled: joined})
	if joined || r.sess.Role() != session.Publisher {
		return
	}
	if r.queue.Forget(identity) {
		r.logger.Debug().Str("peer", identity).Msg("dropped mic state of departed participant")
		r.emit(Event{Kind: EventSpeakerLeft, Identity: identity})
	}
}

func (r *Room) emit(ev Event) {
	if r.onEvent != nil {
		r.onEvent(ev)
	}
}

func (r *Room) send(ctx context.Context, payload []byte) error {
	if err := r.tr.Publish(ctx, payload); err != nil {
		r.logger.Error().Err(err).Msg("failed to publish to data channel")
		return errors.Join(ErrSend, err)
	}
	return nil
}
