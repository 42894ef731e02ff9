package relay

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/9pphy4fbqg-dev/sancia-dapp/backend/server/websocket"
	"github.com/9pphy4fbqg-dev/sancia-dapp/backend/service"
	"github.com/9pphy4fbqg-dev/sancia-dapp/backend/session"
	"github.com/9pphy4fbqg-dev/sancia-dapp/backend/storage/memory"
	_switch "github.com/9pphy4fbqg-dev/sancia-dapp/backend/switch"
	"github.com/davecgh/go-spew/spew"
	gorilla "github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const (
	hostID   = "0xhost"
	viewerID = "0xviewer"
	token    = "header.payload.signature"
)

type presence struct {
	id     string
	joined bool
}

type message struct {
	from    string
	payload []byte
}

type states struct {
	mx   sync.Mutex
	list []session.State
}

func (s *states) add(st session.State) {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.list = append(s.list, st)
}

func (s *states) List() []session.State {
	s.mx.Lock()
	defer s.mx.Unlock()
	return append([]session.State(nil), s.list...)
}

func (s *states) Last() session.State {
	l := s.List()
	if len(l) == 0 {
		return session.Disconnected
	}
	return l[len(l)-1]
}

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

type relayEnv struct {
	url   string
	store *memory.MemStore
	sw    *_switch.Switch
}

func startRelay(t *testing.T) relayEnv {
	t.Helper()
	logger := zerolog.Nop()
	store := memory.NewMemStore(memory.Config{OfficialHosts: []string{hostID}})
	sw := _switch.NewSwitch(&logger)
	svc := service.NewService(service.Config{RoomStore: store, Switch: sw, Logger: &logger})
	srv := websocket.NewServer(websocket.Config{
		Logger:           &logger,
		SignalingService: svc,
		PingInterval:     time.Second,
	})
	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(ts.Close)
	return relayEnv{url: wsURL(ts), store: store, sw: sw}
}

func TestRelayRoundTrip(t *testing.T) {
	ctx := context.Background()
	env := startRelay(t)
	_, err := env.store.JoinRoom("official", hostID, true)
	require.NoError(t, err)
	_, err = env.store.JoinRoom("official", viewerID, false)
	require.NoError(t, err)

	logger := zerolog.Nop()
	hostPresence := make(chan presence, 4)
	hostData := make(chan message, 4)
	host := NewClient(Config{
		BaseURL:    env.url,
		Logger:     &logger,
		OnData:     func(from string, payload []byte) { hostData <- message{from, payload} },
		OnPresence: func(id string, joined bool) { hostPresence <- presence{id, joined} },
	})
	viewerData := make(chan message, 4)
	viewer := NewClient(Config{
		BaseURL: env.url,
		Logger:  &logger,
		OnData:  func(from string, payload []byte) { viewerData <- message{from, payload} },
	})

	require.NoError(t, host.Connect(ctx, "official", hostID, token))
	defer func() { _ = host.Close() }()
	require.ErrorIs(t, host.Connect(ctx, "official", hostID, token), ErrAlreadyConnected)
	require.Eventually(t, func() bool { return env.sw.Members("official") == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, viewer.Connect(ctx, "official", viewerID, token))
	require.Eventually(t, func() bool { return env.sw.Members("official") == 2 }, 2*time.Second, 10*time.Millisecond)

	select {
	case p := <-hostPresence:
		require.Equal(t, presence{viewerID, true}, p)
	case <-time.After(2 * time.Second):
		require.FailNow(t, "host did not see the viewer join")
	}

	require.NoError(t, viewer.Publish(ctx, []byte(`{"type":"mic_request","from":"0xviewer","timestamp":1}`)))
	select {
	case m := <-hostData:
		require.Equal(t, viewerID, m.from)
		require.JSONEq(t, `{"type":"mic_request","from":"0xviewer","timestamp":1}`, string(m.payload))
	case <-time.After(2 * time.Second):
		require.FailNow(t, "host did not receive the request")
	}

	require.NoError(t, host.Publish(ctx, []byte(`{"type":"approve_mic","from":"0xhost","to":"0xviewer","timestamp":2}`)))
	select {
	case m := <-viewerData:
		require.Equal(t, hostID, m.from)
	case <-time.After(2 * time.Second):
		require.FailNow(t, "viewer did not receive the approval")
	}

	require.NoError(t, viewer.Close())
	require.Eventually(t, func() bool { return !viewer.Connected() }, 2*time.Second, 10*time.Millisecond)
	select {
	case p := <-hostPresence:
		require.Equal(t, presence{viewerID, false}, p)
	case <-time.After(2 * time.Second):
		require.FailNow(t, "host did not see the viewer leave")
	}
	require.ErrorIs(t, viewer.Publish(ctx, []byte(`{}`)), ErrNotConnected)
}

func TestRelayRejectsNonMember(t *testing.T) {
	env := startRelay(t)
	logger := zerolog.Nop()
	st := &states{}
	c := NewClient(Config{BaseURL: env.url, Logger: &logger, OnState: st.add})

	require.NoError(t, c.Connect(context.Background(), "official", "0xstranger", token))
	require.Eventually(t, func() bool { return st.Last() == session.Disconnected }, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, []session.State{session.Connecting, session.Connected, session.Disconnected}, st.List(), spew.Sdump(st.List()))
}

// flakyRelay accepts the first connection and drops it right away. Later
// connections are either refused or kept open.
func flakyRelay(t *testing.T, acceptLater bool) *httptest.Server {
	t.Helper()
	var calls atomic.Int32
	up := &gorilla.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if n > 1 && !acceptLater {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer func() { _ = conn.Close() }()
		if n == 1 {
			_ = conn.WriteControl(gorilla.CloseMessage,
				gorilla.FormatCloseMessage(gorilla.CloseGoingAway, "restarting"),
				time.Now().Add(time.Second))
			return
		}
		for {
			if _, _, err = conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestReconnectGivesUp(t *testing.T) {
	ts := flakyRelay(t, false)
	logger := zerolog.Nop()
	st := &states{}
	c := NewClient(Config{
		BaseURL:              wsURL(ts),
		Logger:               &logger,
		MaxReconnectAttempts: 2,
		InitialBackoff:       10 * time.Millisecond,
		MaxBackoff:           20 * time.Millisecond,
		OnState:              st.add,
	})

	require.NoError(t, c.Connect(context.Background(), "official", viewerID, token))
	require.Eventually(t, func() bool { return st.Last() == session.Disconnected }, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, []session.State{
		session.Connecting, session.Connected, session.Reconnecting, session.Disconnected,
	}, st.List(), spew.Sdump(st.List()))
}

func TestReconnectRecovers(t *testing.T) {
	ts := flakyRelay(t, true)
	logger := zerolog.Nop()
	st := &states{}
	c := NewClient(Config{
		BaseURL:        wsURL(ts),
		Logger:         &logger,
		InitialBackoff: 10 * time.Millisecond,
		OnState:        st.add,
	})

	require.NoError(t, c.Connect(context.Background(), "official", viewerID, token))
	require.Eventually(t, func() bool { return len(st.List()) == 4 }, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, []session.State{
		session.Connecting, session.Connected, session.Reconnecting, session.Connected,
	}, st.List(), spew.Sdump(st.List()))
	require.True(t, c.Connected())

	require.NoError(t, c.Close())
	time.Sleep(50 * time.Millisecond)
	require.Len(t, st.List(), 4, "closing on request does not reconnect")
}

func TestDialFailure(t *testing.T) {
	logger := zerolog.Nop()
	st := &states{}
	c := NewClient(Config{BaseURL: "ws://127.0.0.1:1", Logger: &logger, OnState: st.add})

	require.ErrorIs(t, c.Connect(context.Background(), "official", viewerID, token), ErrDial)
	require.Equal(t, []session.State{session.Connecting}, st.List())
	require.ErrorIs(t, c.Publish(context.Background(), []byte(`{}`)), ErrNotConnected)
}

func TestCloseThenConnectAgain(t *testing.T) {
	ctx := context.Background()
	env := startRelay(t)
	_, err := env.store.JoinRoom("official", viewerID, false)
	require.NoError(t, err)

	logger := zerolog.Nop()
	st := &states{}
	c := NewClient(Config{BaseURL: env.url, Logger: &logger, OnState: st.add})

	require.NoError(t, c.Connect(ctx, "official", viewerID, token))
	require.NoError(t, c.Close())
	require.False(t, c.Connected())

	require.NoError(t, c.Connect(ctx, "official", viewerID, token))
	defer func() { _ = c.Close() }()
	require.True(t, c.Connected())

	// teardown of the first connection must leave the second one alone
	time.Sleep(100 * time.Millisecond)
	require.True(t, c.Connected())
	require.Equal(t, session.Connected, st.Last(), spew.Sdump(st.List()))
	require.NoError(t, c.Publish(ctx, []byte(`{"type":"mic_request","from":"0xviewer","timestamp":1}`)))
}

func TestSlowHandlerKeepsAnsweringPings(t *testing.T) {
	pong := make(chan struct{}, 1)
	up := &gorilla.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer func() { _ = conn.Close() }()
		conn.SetPongHandler(func(string) error {
			select {
			case pong <- struct{}{}:
			default:
			}
			return nil
		})
		_ = conn.WriteMessage(gorilla.TextMessage,
			[]byte(`{"src":"0xhost","type":"data","payload":{"type":"approve_mic","from":"0xhost","to":"0xviewer","timestamp":1}}`))
		_ = conn.WriteControl(gorilla.PingMessage, nil, time.Now().Add(time.Second))
		for {
			if _, _, err = conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(ts.Close)

	logger := zerolog.Nop()
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	c := NewClient(Config{
		BaseURL: wsURL(ts),
		Logger:  &logger,
		OnData: func(string, []byte) {
			entered <- struct{}{}
			<-release
		},
	})
	require.NoError(t, c.Connect(context.Background(), "official", viewerID, token))

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		require.FailNow(t, "data was not delivered")
	}
	select {
	case <-pong:
	case <-time.After(2 * time.Second):
		require.FailNow(t, "ping went unanswered while a handler was busy")
	}
	close(release)
	require.NoError(t, c.Close())
}
