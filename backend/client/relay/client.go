// Package relay is the client side of the room relay: it keeps one websocket
// to the relay open, reconnecting on its own after unexpected drops, and
// exchanges data announcements with the other room members.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/9pphy4fbqg-dev/sancia-dapp/backend/model"
	"github.com/9pphy4fbqg-dev/sancia-dapp/backend/session"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	defaultMaxReconnectAttempts = 5
	defaultInitialBackoff       = 500 * time.Millisecond
	defaultMaxBackoff           = 5 * time.Second

	defaultHandshakeTimeout = 3 * time.Second
	defaultWriteDeadline    = 5 * time.Second
	defaultCloseDeadline    = 2 * time.Second
	defaultReadDeadline     = 15 * time.Second
	defaultMaxMessageSize   = 9000
	defaultInboxSize        = 64
)

var (
	ErrNotConnected     = errors.New("relay is not connected")
	ErrAlreadyConnected = errors.New("relay is already connected")
	ErrDial             = errors.New("unable to dial relay")

	errStopped = errors.New("relay client stopped")
)

type (
	Config struct {
		// BaseURL of the relay websocket server, e.g. ws://localhost:8888.
		BaseURL string
		Logger  *zerolog.Logger

		MaxReconnectAttempts int
		InitialBackoff       time.Duration
		MaxBackoff           time.Duration

		OnState    func(session.State)
		OnData     func(from string, payload []byte)
		OnPresence func(identity string, joined bool)
	}

	Client struct {
		baseURL     string
		logger      zerolog.Logger
		dialer      *websocket.Dialer
		maxAttempts int
		backoff     time.Duration
		maxBackoff  time.Duration

		onState    func(session.State)
		onData     func(string, []byte)
		onPresence func(string, bool)

		mx      *sync.Mutex
		writeMx *sync.Mutex
		conn    *websocket.Conn
		stop    chan struct{}
		running bool
		// gen identifies the current connection; work left over from a
		// closed one checks it and backs off
		gen uint64
	}
)

func NewClient(cfg Config) *Client {
	c := &Client{
		baseURL:     cfg.BaseURL,
		logger:      cfg.Logger.With().Str("component", "relay-client").Logger(),
		dialer:      &websocket.Dialer{HandshakeTimeout: defaultHandshakeTimeout},
		maxAttempts: cfg.MaxReconnectAttempts,
		backoff:     cfg.InitialBackoff,
		maxBackoff:  cfg.MaxBackoff,
		onState:     cfg.OnState,
		onData:      cfg.OnData,
		onPresence:  cfg.OnPresence,
		mx:          &sync.Mutex{},
		writeMx:     &sync.Mutex{},
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = defaultMaxReconnectAttempts
	}
	if c.backoff <= 0 {
		c.backoff = defaultInitialBackoff
	}
	if c.maxBackoff < c.backoff {
		c.maxBackoff = defaultMaxBackoff
		if c.maxBackoff < c.backoff {
			c.maxBackoff = c.backoff
		}
	}
	return c
}

// SetHandlers installs the event callbacks. It must be called before Connect.
func (c *Client) SetHandlers(onState func(session.State), onData func(string, []byte), onPresence func(string, bool)) {
	c.mx.Lock()
	defer c.mx.Unlock()
	c.onState = onState
	c.onData = onData
	c.onPresence = onPresence
}

func (c *Client) Connect(ctx context.Context, roomID, identity, token string) error {
	c.mx.Lock()
	if c.running {
		c.mx.Unlock()
		return ErrAlreadyConnected
	}
	c.running = true
	c.gen++
	gen := c.gen
	c.stop = make(chan struct{})
	stop := c.stop
	c.mx.Unlock()

	c.emitState(gen, session.Connecting)

	endpoint, err := c.endpoint(roomID, identity)
	if err != nil {
		c.finish(gen)
		return errors.Join(ErrDial, err)
	}
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	conn, err := c.dial(ctx, endpoint, header)
	if err != nil {
		c.finish(gen)
		return err
	}
	if !c.setConn(gen, conn) {
		_ = conn.Close()
		return errors.Join(ErrDial, errStopped)
	}
	c.emitState(gen, session.Connected)

	logger := c.logger.With().Str("roomID", roomID).Str("identity", identity).Logger()
	inbox := make(chan model.Announcement, defaultInboxSize)
	go c.deliver(gen, inbox, &logger)
	go c.run(gen, conn, endpoint, header, stop, inbox, &logger)
	return nil
}

func (c *Client) endpoint(roomID, identity string) (string, error) {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return "", err
	}
	return base.JoinPath("signal", "room", roomID, "user", identity).String(), nil
}

func (c *Client) dial(ctx context.Context, endpoint string, header http.Header) (*websocket.Conn, error) {
	conn, resp, err := c.dialer.DialContext(ctx, endpoint, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, errors.Join(ErrDial, err)
	}
	conn.SetReadLimit(defaultMaxMessageSize)
	conn.SetPingHandler(func(data string) error {
		if err := conn.SetReadDeadline(time.Now().Add(defaultReadDeadline)); err != nil {
			return err
		}
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(defaultWriteDeadline))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})
	return conn, nil
}

// run reads until the connection drops, then reconnects with exponential
// backoff. It exits on Close or after the last failed attempt.
func (c *Client) run(
	gen uint64,
	conn *websocket.Conn,
	endpoint string,
	header http.Header,
	stop <-chan struct{},
	inbox chan<- model.Announcement,
	logger *zerolog.Logger,
) {
	defer func() {
		close(inbox)
		c.finish(gen)
	}()
	for {
		err := c.readLoop(conn, inbox, stop, logger)
		c.clearConn(gen)
		if c.stopped(stop) {
			return
		}
		if websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
			logger.Error().Err(err).Msg("relay rejected session")
			c.emitState(gen, session.Disconnected)
			return
		}
		logger.Warn().Err(err).Msg("relay connection dropped")
		c.emitState(gen, session.Reconnecting)

		if conn = c.reconnect(endpoint, header, stop, logger); conn == nil {
			if !c.stopped(stop) {
				c.emitState(gen, session.Disconnected)
			}
			return
		}
		if !c.setConn(gen, conn) {
			_ = conn.Close()
			return
		}
		c.emitState(gen, session.Connected)
	}
}

func (c *Client) reconnect(endpoint string, header http.Header, stop <-chan struct{}, logger *zerolog.Logger) *websocket.Conn {
	delay := c.backoff
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		timer := time.NewTimer(delay)
		select {
		case <-stop:
			timer.Stop()
			return nil
		case <-timer.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), defaultHandshakeTimeout)
		conn, err := c.dial(ctx, endpoint, header)
		cancel()
		if err == nil && c.stopped(stop) {
			_ = conn.Close()
			return nil
		}
		if err == nil {
			logger.Info().Int("attempt", attempt).Msg("relay reconnected")
			return conn
		}
		logger.Warn().Err(err).Int("attempt", attempt).Dur("delay", delay).Msg("reconnect attempt failed")

		delay *= 2
		if delay > c.maxBackoff {
			delay = c.maxBackoff
		}
	}
	logger.Error().Int("attempts", c.maxAttempts).Msg("giving up on relay")
	return nil
}

// readLoop hands announcements to the delivery goroutine so slow handlers
// never hold up pong replies.
func (c *Client) readLoop(conn *websocket.Conn, inbox chan<- model.Announcement, stop <-chan struct{}, logger *zerolog.Logger) error {
	for {
		if err := conn.SetReadDeadline(time.Now().Add(defaultReadDeadline)); err != nil {
			return err
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var ann model.Announcement
		if err = json.Unmarshal(msg, &ann); err != nil {
			logger.Error().Err(err).Msg("failed to unmarshal announcement")
			continue
		}
		select {
		case inbox <- ann:
		case <-stop:
			return errStopped
		}
	}
}

// deliver runs the handlers in arrival order, across reconnects, until the
// connection that started it is closed.
func (c *Client) deliver(gen uint64, inbox <-chan model.Announcement, logger *zerolog.Logger) {
	for ann := range inbox {
		if !c.current(gen) {
			continue
		}
		c.dispatch(ann, logger)
	}
}

func (c *Client) dispatch(ann model.Announcement, logger *zerolog.Logger) {
	c.mx.Lock()
	onData, onPresence := c.onData, c.onPresence
	c.mx.Unlock()

	switch ann.Type {
	case model.AnnouncementTypeData:
		if onData != nil {
			onData(ann.SRC, ann.Payload)
		}
	case model.AnnouncementTypeJoined, model.AnnouncementTypeLeft:
		if onPresence != nil {
			onPresence(ann.SRC, ann.Type == model.AnnouncementTypeJoined)
		}
	default:
		logger.Debug().Str("type", ann.Type).Msg("ignoring announcement")
	}
}

// Publish broadcasts payload to every other member of the room.
func (c *Client) Publish(ctx context.Context, payload []byte) error {
	b, err := json.Marshal(&model.Announcement{
		Type:    model.AnnouncementTypeData,
		Payload: payload,
	})
	if err != nil {
		return err
	}

	c.mx.Lock()
	conn := c.conn
	c.mx.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	deadline := time.Now().Add(defaultWriteDeadline)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMx.Lock()
	defer c.writeMx.Unlock()
	if err = conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, b)
}

// Close ends the session on user request; no reconnect follows and Connect
// may be called again right away.
func (c *Client) Close() error {
	c.mx.Lock()
	if !c.running {
		c.mx.Unlock()
		return nil
	}
	close(c.stop)
	conn := c.conn
	c.conn = nil
	c.running = false
	c.mx.Unlock()

	if conn == nil {
		return nil
	}
	err := conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(defaultCloseDeadline))
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		c.logger.Debug().Err(err).Msg("failed to send close message")
	}
	return conn.Close()
}

func (c *Client) Connected() bool {
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.conn != nil
}

// setConn installs conn for connection gen unless Close already ended it.
func (c *Client) setConn(gen uint64, conn *websocket.Conn) bool {
	c.mx.Lock()
	defer c.mx.Unlock()
	if !c.running || c.gen != gen {
		return false
	}
	c.conn = conn
	return true
}

func (c *Client) clearConn(gen uint64) {
	c.mx.Lock()
	if c.gen == gen {
		c.conn = nil
	}
	c.mx.Unlock()
}

func (c *Client) finish(gen uint64) {
	c.mx.Lock()
	if c.gen == gen {
		c.running = false
		c.conn = nil
	}
	c.mx.Unlock()
}

func (c *Client) current(gen uint64) bool {
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.running && c.gen == gen
}

func (c *Client) stopped(stop <-chan struct{}) bool {
	select {
	case <-stop:
		return true
	default:
		return false
	}
}

func (c *Client) emitState(gen uint64, st session.State) {
	c.mx.Lock()
	onState := c.onState
	live := c.running && c.gen == gen
	c.mx.Unlock()
	if !live {
		return
	}
	c.logger.Debug().Str("state", st.String()).Msg("relay state")
	if onState != nil {
		onState(st)
	}
}
