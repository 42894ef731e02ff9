package session

import (
	"context"
	"errors"
	"sync"

	"github.com/9pphy4fbqg-dev/sancia-dapp/backend/credential"
	"github.com/rs/zerolog"
)

var (
	ErrAlreadyConnected = errors.New("session is not disconnected")
	ErrNotConnected     = errors.New("session is not connected")
	ErrNotPermitted     = errors.New("device is not permitted for this role")
	ErrToggleInFlight   = errors.New("device toggle already in flight")
	ErrDevice           = errors.New("device operation failed")
	ErrConnect          = errors.New("unable to connect")
)

type Role int

const (
	Viewer Role = iota
	Publisher
)

func (r Role) String() string {
	if r == Publisher {
		return "publisher"
	}
	return "viewer"
}

type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	}
	return "unknown"
}

type Device int

const (
	Camera Device = iota
	Microphone
	ScreenShare
)

var devices = [...]Device{Camera, Microphone, ScreenShare}

func (d Device) String() string {
	switch d {
	case Camera:
		return "camera"
	case Microphone:
		return "microphone"
	case ScreenShare:
		return "screen_share"
	}
	return "unknown"
}

type (
	// Transport opens and closes the room connection. Later state changes
	// (drops, internal reconnects) are fed back through Session.HandleTransportState.
	Transport interface {
		Connect(ctx context.Context, roomID, identity, token string) error
		Close() error
	}

	// Media acquires and releases local capture devices and subscribes to remote tracks.
	Media interface {
		SubscribeAll(ctx context.Context, adaptive bool) error
		SetDevice(ctx context.Context, d Device, enabled bool) error
	}

	Config struct {
		RoomID          string
		Identity        string
		Role            Role
		AdaptiveQuality bool
		Transport       Transport
		Media           Media
		Logger          *zerolog.Logger

		OnState  func(State)
		OnDevice func(Device, bool)
	}

	Snapshot struct {
		RoomID      string
		Identity    string
		Role        Role
		State       State
		Camera      bool
		Microphone  bool
		ScreenShare bool
		MicGranted  bool
	}

	// Session is one local participant's relationship to one room.
	Session struct {
		roomID   string
		identity string
		role     Role
		adaptive bool
		tr       Transport
		media    Media
		onState  func(State)
		onDevice func(Device, bool)
		logger   zerolog.Logger

		mx         *sync.Mutex
		state      State
		flags      [len(devices)]bool
		inFlight   [len(devices)]bool
		micGranted bool
	}
)

func New(cfg Config) *Session {
	return &Session{
		roomID:   cfg.RoomID,
		identity: cfg.Identity,
		role:     cfg.Role,
		adaptive: cfg.AdaptiveQuality,
		tr:       cfg.Transport,
		media:    cfg.Media,
		onState:  cfg.OnState,
		onDevice: cfg.OnDevice,
		logger: cfg.Logger.With().
			Str("component", "session").
			Str("roomID", cfg.RoomID).
			Str("identity", cfg.Identity).
			Logger(),
		mx: &sync.Mutex{},
	}
}

func (s *Session) Identity() string { return s.identity }

func (s *Session) Role() Role { return s.role }

func (s *Session) State() State {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.state
}

func (s *Session) Snapshot() Snapshot {
	s.mx.Lock()
	defer s.mx.Unlock()
	return Snapshot{
		RoomID:      s.roomID,
		Identity:    s.identity,
		Role:        s.role,
		State:       s.state,
		Camera:      s.flags[Camera],
		Microphone:  s.flags[Microphone],
		ScreenShare: s.flags[ScreenShare],
		MicGranted:  s.micGranted,
	}
}

// Connect starts connecting with cred. A pending credential is not an error:
// the session stays disconnected until a ready one arrives.
func (s *Session) Connect(ctx context.Context, cred credential.State) error {
	if cred.Status == credential.Pending {
		s.logger.Debug().Msg("credential pending, waiting")
		return nil
	}
	if err := cred.Validate(); err != nil {
		s.logger.Warn().Err(err).Str("status", cred.Status.String()).Msg("credential rejected")
		return err
	}

	s.mx.Lock()
	if s.state != Disconnected {
		s.mx.Unlock()
		return ErrAlreadyConnected
	}
	s.state = Connecting
	s.mx.Unlock()
	s.notifyState(Connecting)

	if err := s.tr.Connect(ctx, s.roomID, s.identity, cred.Token); err != nil {
		s.logger.Error().Err(err).Msg("transport connect failed")
		s.enterDisconnected(ctx)
		return errors.Join(ErrConnect, err)
	}
	s.HandleTransportState(Connected)
	return nil
}

// HandleTransportState applies a state reported by the transport. Recovery
// from Reconnecting is left to the transport; the session never retries itself.
func (s *Session) HandleTransportState(next State) {
	s.mx.Lock()
	cur := s.state
	s.mx.Unlock()

	switch {
	case cur == Disconnected:
		// terminal until the next Connect
		return
	case next == Connected && (cur == Connecting || cur == Reconnecting):
		s.enterConnected()
	case next == Reconnecting && cur == Connected:
		s.transition(Connected, Reconnecting)
	case next == Disconnected:
		s.logger.Warn().Str("from", cur.String()).Msg("transport gave up")
		s.enterDisconnected(context.Background())
	default:
		s.logger.Trace().
			Str("from", cur.String()).
			Str("to", next.String()).
			Msg("ignored transport state")
	}
}

// Disconnect is the user-initiated exit.
func (s *Session) Disconnect(ctx context.Context) error {
	s.mx.Lock()
	cur := s.state
	s.mx.Unlock()
	if cur == Disconnected {
		return nil
	}
	s.enterDisconnected(ctx)
	return s.tr.Close()
}

// GrantMicrophone allows a viewer to use the microphone after the publisher approved it.
func (s *Session) GrantMicrophone(granted bool) {
	s.mx.Lock()
	s.micGranted = granted
	s.mx.Unlock()
}

// Toggle flips the device.
func (s *Session) Toggle(ctx context.Context, d Device) error {
	s.mx.Lock()
	enabled := !s.flags[d]
	s.mx.Unlock()
	return s.SetDevice(ctx, d, enabled)
}

// SetDevice enables or disables a capture device. The flag is updated
// optimistically and rolled back if the media call fails. Only one call per
// device may be in flight; a concurrent one is rejected. Switching a device
// off is always permitted.
func (s *Session) SetDevice(ctx context.Context, d Device, enabled bool) error {
	s.mx.Lock()
	if s.state != Connected {
		s.mx.Unlock()
		return ErrNotConnected
	}
	if enabled && !s.permitted(d) {
		s.mx.Unlock()
		return ErrNotPermitted
	}
	if s.inFlight[d] {
		s.mx.Unlock()
		return ErrToggleInFlight
	}
	prev := s.flags[d]
	if prev == enabled {
		s.mx.Unlock()
		return nil
	}
	s.flags[d] = enabled
	s.inFlight[d] = true
	s.mx.Unlock()
	s.notifyDevice(d, enabled)

	err := s.media.SetDevice(ctx, d, enabled)

	s.mx.Lock()
	s.inFlight[d] = false
	disconnected := s.state == Disconnected
	rolledBack := false
	if err != nil && !disconnected && s.flags[d] == enabled {
		s.flags[d] = prev
		rolledBack = true
	}
	s.mx.Unlock()

	logger := s.logger.With().Str("device", d.String()).Bool("enabled", enabled).Logger()
	if err != nil {
		logger.Error().Err(err).Msg("device toggle failed")
		if rolledBack {
			s.notifyDevice(d, prev)
		}
		return errors.Join(ErrDevice, err)
	}
	if disconnected && enabled {
		// session ended while the device was being acquired
		if err = s.media.SetDevice(ctx, d, false); err != nil {
			logger.Error().Err(err).Msg("failed to release device after disconnect")
		}
		return ErrNotConnected
	}
	logger.Debug().Msg("device toggled")
	return nil
}

func (s *Session) permitted(d Device) bool {
	if s.role == Publisher {
		return true
	}
	return d == Microphone && s.micGranted
}

func (s *Session) enterConnected() {
	s.mx.Lock()
	if s.state == Connected || s.state == Disconnected {
		s.mx.Unlock()
		return
	}
	s.state = Connected
	s.mx.Unlock()
	s.notifyState(Connected)

	if err := s.media.SubscribeAll(context.Background(), s.adaptive); err != nil {
		s.logger.Error().Err(err).Msg("failed to subscribe to remote media")
	}
}

// enterDisconnected resets every device flag and releases what was enabled.
func (s *Session) enterDisconnected(ctx context.Context) {
	s.mx.Lock()
	if s.state == Disconnected {
		s.mx.Unlock()
		return
	}
	s.state = Disconnected
	release := make([]Device, 0, len(devices))
	for _, d := range devices {
		if s.flags[d] {
			release = append(release, d)
		}
		s.flags[d] = false
	}
	s.micGranted = false
	s.mx.Unlock()

	s.notifyState(Disconnected)
	for _, d := range release {
		s.notifyDevice(d, false)
		if err := s.media.SetDevice(ctx, d, false); err != nil {
			s.logger.Warn().Err(err).Str("device", d.String()).Msg("failed to release device")
		}
	}
}

func (s *Session) transition(from, to State) {
	s.mx.Lock()
	if s.state != from {
		s.mx.Unlock()
		return
	}
	s.state = to
	s.mx.Unlock()
	s.notifyState(to)
}

func (s *Session) notifyState(st State) {
	s.logger.Debug().Str("state", st.String()).Msg("session state changed")
	if s.onState != nil {
		s.onState(st)
	}
}

func (s *Session) notifyDevice(d Device, enabled bool) {
	if s.onDevice != nil {
		s.onDevice(d, enabled)
	}
}
