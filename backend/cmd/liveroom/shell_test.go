package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/9pphy4fbqg-dev/sancia-dapp/backend/credential"
	"github.com/9pphy4fbqg-dev/sancia-dapp/backend/liveroom"
	"github.com/9pphy4fbqg-dev/sancia-dapp/backend/media"
	"github.com/9pphy4fbqg-dev/sancia-dapp/backend/session"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type loopback struct{ sent [][]byte }

func (l *loopback) Connect(context.Context, string, string, string) error { return nil }
func (l *loopback) Close() error                                        { return nil }
func (l *loopback) Publish(_ context.Context, payload []byte) error {
	l.sent = append(l.sent, payload)
	return nil
}

func newTestShell(t *testing.T, role session.Role) (*shell, *bytes.Buffer, *loopback) {
	t.Helper()
	logger := zerolog.Nop()
	buf := &bytes.Buffer{}
	out := newPrinter(buf)
	tr := &loopback{}
	room := liveroom.New(liveroom.Config{
		RoomID:    "official",
		Identity:  "0x000000000000000000000000000000000000beef",
		Role:      role,
		Options:   liveroom.Options{EnableMicRequest: true},
		Transport: tr,
		Media:     media.NewSimulated(&logger),
		Logger:    &logger,
		OnEvent:   out.event,
	})
	require.NoError(t, room.Join(context.Background(), credential.NewReady("h.p.s")))
	return &shell{room: room, out: out, logger: &logger}, buf, tr
}

func TestShellCommands(t *testing.T) {
	ctx := context.Background()
	sh, buf, tr := newTestShell(t, session.Publisher)

	require.True(t, sh.exec(ctx, "gm everyone"))
	require.Len(t, tr.sent, 1)
	require.Contains(t, buf.String(), "<0xbeef> gm everyone")

	require.True(t, sh.exec(ctx, "/cam"))
	require.True(t, sh.room.Session().Camera)
	require.Contains(t, buf.String(), "* camera on")

	require.True(t, sh.exec(ctx, "/approve 0xnobody"))
	require.Contains(t, buf.String(), "! ")

	require.True(t, sh.exec(ctx, "/bogus"))
	require.Contains(t, buf.String(), `unknown command "/bogus"`)

	require.True(t, sh.exec(ctx, "   "))
	require.False(t, sh.exec(ctx, "/quit"))
}

func TestShellStatus(t *testing.T) {
	sh, buf, _ := newTestShell(t, session.Viewer)
	require.True(t, sh.exec(context.Background(), "/status"))
	require.Contains(t, buf.String(), "role=viewer state=connected")
	require.Contains(t, buf.String(), "speaker=idle")
}

func TestShort(t *testing.T) {
	require.Equal(t, "0xbeef", short("0x000000000000000000000000000000000000beef"))
	require.Equal(t, "abc", short("abc"))
}
