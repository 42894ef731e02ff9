package service

import (
	"context"
	"testing"

	"github.com/9pphy4fbqg-dev/sancia-dapp/backend/model"
	"github.com/9pphy4fbqg-dev/sancia-dapp/backend/storage/memory"
	_switch "github.com/9pphy4fbqg-dev/sancia-dapp/backend/switch"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestService() (*Service, *memory.MemStore, *_switch.Switch) {
	logger := zerolog.Nop()
	store := memory.NewMemStore(memory.Config{})
	sw := _switch.NewSwitch(&logger)
	return NewService(Config{RoomStore: store, Switch: sw, Logger: &logger}), store, sw
}

func TestSignalingSessionRequiresMembership(t *testing.T) {
	svc, _, _ := newTestService()
	err := svc.CreateSignalingSession(context.Background(), "official", "0xstranger", model.NewWire())
	require.ErrorIs(t, err, ErrNotAMember)

	err = svc.CreateSignalingSession(context.Background(), "missing", "0xstranger", model.NewWire())
	require.ErrorIs(t, err, memory.ErrRoomNotFound)
}

func TestSupersededSessionKeepsMemberOnline(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc, store, sw := newTestService()
	_, err := svc.JoinRoom("official", "0xa", false)
	require.NoError(t, err)

	old, fresh := model.NewWire(), model.NewWire()
	require.NoError(t, svc.CreateSignalingSession(ctx, "official", "0xa", old))
	require.NoError(t, svc.CreateSignalingSession(ctx, "official", "0xa", fresh))

	require.NoError(t, svc.DeleteSignalingSession(ctx, "official", "0xa", old))
	room, err := store.GetRoom("official")
	require.NoError(t, err)
	require.True(t, room.Participants["0xa"].Online)
	require.Equal(t, 1, sw.Members("official"))

	require.NoError(t, svc.DeleteSignalingSession(ctx, "official", "0xa", fresh))
	room, err = store.GetRoom("official")
	require.NoError(t, err)
	require.False(t, room.Participants["0xa"].Online)
}

func TestJoinAndCreateWrapStoreErrors(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.JoinRoom("missing", "0xa", false)
	require.ErrorIs(t, err, ErrJoin)
	require.ErrorIs(t, err, memory.ErrRoomNotFound)

	_, err = svc.CreateRoom("", "x")
	require.ErrorIs(t, err, ErrCreate)

	room, err := svc.CreateRoom("0xa", "my stream")
	require.NoError(t, err)
	require.Len(t, svc.ListRooms(), 2)
	require.Equal(t, "my stream", room.Name)
}
